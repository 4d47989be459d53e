package storage

import (
	"context"
	"errors"
	"strings"

	logx "shiftwatch/pkg/logx"
)

// Store is the persistence API used by the scheduling coordinator.
type Store interface {
	AppendOutcome(ctx context.Context, r OutcomeRecord) error
	// RecentOutcomes returns up to limit records, newest first.
	RecentOutcomes(ctx context.Context, limit int) ([]OutcomeRecord, error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
