package schedule

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"shiftwatch/internal/config"
	"shiftwatch/internal/notify"
	"shiftwatch/internal/notify/memory"
	"shiftwatch/internal/plan"
	"shiftwatch/internal/timeline"
	logx "shiftwatch/pkg/logx"
)

// stubProvider emits one "day" shift (14:00–22:00 UTC) per requested
// day. Generate optionally blocks to let tests hold a rebuild open.
type stubProvider struct {
	mu      sync.Mutex
	calls   int
	block   chan struct{} // Generate waits on this when non-nil
	entered chan struct{} // signaled once Generate is reached
}

func (p *stubProvider) Generate(systemID string, from time.Time, days int) ([]timeline.Entry, error) {
	p.mu.Lock()
	p.calls++
	block, entered := p.block, p.entered
	p.entered = nil
	p.mu.Unlock()
	if entered != nil {
		close(entered)
	}
	if block != nil {
		<-block
	}

	y, m, d := from.Date()
	base := time.Date(y, m, d, 0, 0, 0, 0, from.Location())
	out := make([]timeline.Entry, 0, days)
	for i := 0; i < days; i++ {
		out = append(out, timeline.Entry{Date: base.AddDate(0, 0, i), Phase: "day", Work: true})
	}
	return out, nil
}

func (p *stubProvider) ExactTimes(date time.Time, phase string) (timeline.Times, bool) {
	y, m, d := date.Date()
	start := time.Date(y, m, d, 14, 0, 0, 0, date.Location())
	return timeline.Times{Start: start, End: start.Add(8 * time.Hour)}, true
}

func (p *stubProvider) generateCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func newTestCoordinator(t *testing.T, port notify.Port, prov timeline.Provider, opts func(*Options)) *Coordinator {
	t.Helper()
	store := config.NewSettingsStore(filepath.Join(t.TempDir(), "settings.yaml"), "", logx.Nop())
	o := Options{
		Provider:      prov,
		Port:          port,
		Settings:      store,
		SystemID:      "test",
		Location:      time.UTC,
		LookaheadDays: 5,
		Debounce:      30 * time.Millisecond,
		Now:           func() time.Time { return time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC) },
	}
	if opts != nil {
		opts(&o)
	}
	return New(o)
}

func pendingIDs(t *testing.T, port notify.Port) []string {
	t.Helper()
	ps, err := port.Pending(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	ids := make([]string, len(ps))
	for i, p := range ps {
		ids[i] = p.ID
	}
	return ids
}

func TestRebuildIdempotent(t *testing.T) {
	t.Parallel()
	port := memory.New(nil)
	c := newTestCoordinator(t, port, &stubProvider{}, nil)

	out1, ok := c.Rebuild(context.Background())
	if !ok {
		t.Fatal("first rebuild dropped")
	}
	if out1.Err != nil {
		t.Fatalf("rebuild error: %v", out1.Err)
	}
	if out1.Scheduled == 0 {
		t.Fatal("rebuild scheduled nothing")
	}
	first := pendingIDs(t, port)

	out2, ok := c.Rebuild(context.Background())
	if !ok || out2.Err != nil {
		t.Fatalf("second rebuild: ok=%v err=%v", ok, out2.Err)
	}
	second := pendingIDs(t, port)

	if len(first) != len(second) {
		t.Fatalf("pending set changed size: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("pending IDs diverge at %d: %q vs %q", i, first[i], second[i])
		}
	}
	if n, err := c.PendingCount(context.Background()); err != nil || n != out2.Scheduled {
		t.Fatalf("PendingCount = %d, %v; want %d", n, err, out2.Scheduled)
	}
}

func TestRebuildSingleFlight(t *testing.T) {
	t.Parallel()
	prov := &stubProvider{
		block:   make(chan struct{}),
		entered: make(chan struct{}),
	}
	port := memory.New(nil)
	c := newTestCoordinator(t, port, prov, nil)

	done := make(chan Outcome, 1)
	go func() {
		out, _ := c.Rebuild(context.Background())
		done <- out
	}()
	<-prov.entered

	if _, ok := c.Rebuild(context.Background()); ok {
		t.Fatal("overlapping rebuild must be dropped")
	}

	close(prov.block)
	out := <-done
	if out.Err != nil {
		t.Fatalf("held rebuild failed: %v", out.Err)
	}

	// With the first one finished, rebuilds are accepted again.
	if _, ok := c.Rebuild(context.Background()); !ok {
		t.Fatal("rebuild after completion must be accepted")
	}
}

func TestRebuildDebounceCollapses(t *testing.T) {
	t.Parallel()
	prov := &stubProvider{}
	port := memory.New(nil)
	c := newTestCoordinator(t, port, prov, nil)
	defer c.Stop()

	for i := 0; i < 5; i++ {
		c.RebuildDebounced()
		time.Sleep(5 * time.Millisecond)
	}

	deadline := time.After(2 * time.Second)
	for prov.generateCalls() == 0 {
		select {
		case <-deadline:
			t.Fatal("debounced rebuild never ran")
		case <-time.After(10 * time.Millisecond):
		}
	}
	// Give a second rebuild a chance to (wrongly) fire.
	time.Sleep(100 * time.Millisecond)
	if n := prov.generateCalls(); n != 1 {
		t.Fatalf("burst of requests ran %d rebuilds, want 1", n)
	}
}

func TestRebuildAuthorizationDenied(t *testing.T) {
	t.Parallel()
	port := memory.New(nil)
	c := newTestCoordinator(t, port, &stubProvider{}, nil)

	// Seed pending requests from an earlier authorized run.
	if out, ok := c.Rebuild(context.Background()); !ok || out.Scheduled == 0 {
		t.Fatalf("seed rebuild: ok=%v out=%+v", ok, out)
	}

	port.SetAuthorization(notify.AuthDenied)
	out, ok := c.Rebuild(context.Background())
	if !ok {
		t.Fatal("denied rebuild must still run (and clean up)")
	}
	if !errors.Is(out.Err, ErrNotAuthorized) {
		t.Fatalf("err = %v, want ErrNotAuthorized", out.Err)
	}
	if out.Scheduled != 0 {
		t.Fatalf("denied rebuild scheduled %d", out.Scheduled)
	}
	if ids := pendingIDs(t, port); len(ids) != 0 {
		t.Fatalf("stale requests survived revocation: %v", ids)
	}
}

func TestRebuildCountsPerItemFailures(t *testing.T) {
	t.Parallel()
	port := memory.New(nil)
	c := newTestCoordinator(t, port, &stubProvider{}, nil)

	wantErr := errors.New("platform rejected request")
	port.FailNextSubmit(wantErr)

	out, ok := c.Rebuild(context.Background())
	if !ok {
		t.Fatal("rebuild dropped")
	}
	if out.Failed != 1 {
		t.Fatalf("Failed = %d, want 1", out.Failed)
	}
	if out.Scheduled == 0 {
		t.Fatal("one rejected submit must not abort the plan")
	}
	if !errors.Is(out.Err, wantErr) {
		t.Fatalf("err = %v, want %v", out.Err, wantErr)
	}
	if len(pendingIDs(t, port)) != out.Scheduled {
		t.Fatal("pending count disagrees with scheduled count")
	}
}

func TestCancelAllLeavesForeignRequests(t *testing.T) {
	t.Parallel()
	port := memory.New(nil)
	c := newTestCoordinator(t, port, &stubProvider{}, nil)

	foreign := notify.Request{
		ID:        "otherapp.reminder.1",
		TriggerAt: time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC),
		Payload:   notify.Payload{Title: "not ours"},
	}
	if err := port.Submit(context.Background(), foreign); err != nil {
		t.Fatal(err)
	}

	if _, ok := c.Rebuild(context.Background()); !ok {
		t.Fatal("rebuild dropped")
	}
	if err := c.CancelAll(context.Background()); err != nil {
		t.Fatal(err)
	}

	ids := pendingIDs(t, port)
	if len(ids) != 1 || ids[0] != foreign.ID {
		t.Fatalf("foreign request must survive CancelAll, pending: %v", ids)
	}
	if n, err := c.PendingCount(context.Background()); err != nil || n != 0 {
		t.Fatalf("PendingCount = %d, %v; want 0", n, err)
	}
}

func TestUpcomingSortedAndNamespaced(t *testing.T) {
	t.Parallel()
	port := memory.New(nil)
	c := newTestCoordinator(t, port, &stubProvider{}, nil)

	foreign := notify.Request{
		ID:        "aaa.first-by-name",
		TriggerAt: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}
	if err := port.Submit(context.Background(), foreign); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Rebuild(context.Background()); !ok {
		t.Fatal("rebuild dropped")
	}

	up, err := c.Upcoming(context.Background(), 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(up) != 3 {
		t.Fatalf("got %d upcoming, want 3", len(up))
	}
	for i, p := range up {
		if !strings.HasPrefix(p.ID, plan.Namespace) {
			t.Fatalf("foreign request leaked into Upcoming: %q", p.ID)
		}
		if i > 0 && up[i].TriggerAt.Before(up[i-1].TriggerAt) {
			t.Fatal("Upcoming not sorted by trigger")
		}
	}
}
