package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "shiftwatch/pkg/logx"
)

// fileStore appends outcome records to <prefix>.outcomes.jsonl. Reads
// scan the file backwards-equivalent: the tail is kept in memory, so
// RecentOutcomes never re-reads what this process already wrote.
type fileStore struct {
	log logx.Logger

	mu   sync.Mutex
	file *os.File
	// tail holds the most recent records, oldest first, capped at tailMax.
	tail    []OutcomeRecord
	tailMax int
}

const defaultTailMax = 200

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(filepath.Base(path)))
	outPath := filepath.Join(dir, base) + ".outcomes.jsonl"

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	tail, err := loadTail(outPath, defaultTailMax)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("outcome history unreadable, starting empty", logx.Err(err))
	}

	f, err := os.OpenFile(outPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	return &fileStore{
		log:     log,
		file:    f,
		tail:    tail,
		tailMax: defaultTailMax,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

func (s *fileStore) AppendOutcome(ctx context.Context, r OutcomeRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return errors.New("outcome file closed")
	}
	if err := json.NewEncoder(s.file).Encode(r); err != nil {
		return err
	}
	s.tail = append(s.tail, r)
	if len(s.tail) > s.tailMax {
		s.tail = s.tail[len(s.tail)-s.tailMax:]
	}
	return nil
}

func (s *fileStore) RecentOutcomes(ctx context.Context, limit int) ([]OutcomeRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit > len(s.tail) {
		limit = len(s.tail)
	}
	out := make([]OutcomeRecord, 0, limit)
	for i := len(s.tail) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.tail[i])
	}
	return out, nil
}

func loadTail(path string, max int) ([]OutcomeRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var tail []OutcomeRecord
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r OutcomeRecord
		// Corrupt lines (partial writes from a crash) are skipped.
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		tail = append(tail, r)
		if len(tail) > max {
			tail = tail[len(tail)-max:]
		}
	}
	return tail, sc.Err()
}
