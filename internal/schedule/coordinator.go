// Package schedule owns the rebuild cycle: resolve the timeline, build
// the reminder plan, and replace the delivery port's pending requests
// with it.
package schedule

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"shiftwatch/internal/config"
	"shiftwatch/internal/eventbus"
	"shiftwatch/internal/notify"
	"shiftwatch/internal/plan"
	"shiftwatch/internal/storage"
	"shiftwatch/internal/timeline"
	logx "shiftwatch/pkg/logx"
)

// ErrNotAuthorized means the delivery port refused submissions; the
// rebuild cancels whatever is pending and stops there.
var ErrNotAuthorized = errors.New("delivery not authorized")

const defaultDebounce = 500 * time.Millisecond

// Options wires one Coordinator. Provider, Port and Settings are
// required; everything else degrades to a sane default.
type Options struct {
	Provider timeline.Provider
	Port     notify.Port
	Settings *config.SettingsStore
	Store    storage.Store // nil disables the audit trail
	Bus      eventbus.Bus  // nil disables outcome events
	Log      logx.Logger

	SystemID      string
	Location      *time.Location
	LookaheadDays int
	Debounce      time.Duration
	RatePerSec    int

	// Now overrides the clock (tests). Nil means time.Now.
	Now func() time.Time
}

// Outcome summarizes one completed rebuild.
type Outcome struct {
	At           time.Time
	Scheduled    int
	Failed       int
	FirstTrigger time.Time
	LastTrigger  time.Time
	Err          error
	Took         time.Duration
}

// Coordinator serializes rebuilds: at most one runs at a time, and a
// rebuild requested while one is running is dropped, not queued. The
// running rebuild already sees the current settings file, so the
// dropped request would have produced the same plan.
type Coordinator struct {
	opts    Options
	loc     *time.Location
	limiter *rate.Limiter
	log     logx.Logger

	mu        sync.Mutex
	running   bool
	debounce  *time.Timer
	overrides plan.Overrides
}

func New(opts Options) *Coordinator {
	if opts.Log.IsZero() {
		opts.Log = logx.Nop()
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	if opts.LookaheadDays <= 0 {
		opts.LookaheadDays = 14
	}
	if opts.Debounce <= 0 {
		opts.Debounce = defaultDebounce
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	lim := rate.NewLimiter(rate.Inf, 1)
	if opts.RatePerSec > 0 {
		lim = rate.NewLimiter(rate.Limit(opts.RatePerSec), opts.RatePerSec)
	}

	return &Coordinator{
		opts:    opts,
		loc:     loc,
		limiter: lim,
		log:     opts.Log,
	}
}

// SetOverrides replaces the manual day overrides used by subsequent
// rebuilds. It does not trigger one.
func (c *Coordinator) SetOverrides(ov plan.Overrides) {
	c.mu.Lock()
	c.overrides = ov
	c.mu.Unlock()
}

// Rebuild runs one full cycle. It returns ok=false when another rebuild
// is already in flight; the overlapping request is dropped.
func (c *Coordinator) Rebuild(ctx context.Context) (Outcome, bool) {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		c.log.Debug("rebuild dropped, another in flight")
		return Outcome{}, false
	}
	c.running = true
	ov := c.overrides
	c.mu.Unlock()

	out := c.rebuild(ctx, ov)

	c.mu.Lock()
	c.running = false
	c.mu.Unlock()

	c.record(ctx, out)
	return out, true
}

// RebuildDebounced arms (or re-arms) a timer; the rebuild runs once the
// quiet period elapses with no further requests. Bursts of settings or
// timeline edits collapse into a single rebuild.
func (c *Coordinator) RebuildDebounced() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.debounce != nil {
		c.debounce.Stop()
	}
	c.debounce = time.AfterFunc(c.opts.Debounce, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		c.Rebuild(ctx)
	})
}

// Stop cancels a pending debounced rebuild. An in-flight rebuild is not
// interrupted.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if c.debounce != nil {
		c.debounce.Stop()
		c.debounce = nil
	}
	c.mu.Unlock()
}

// CancelAll removes every pending request this app owns, leaving
// requests from other sources untouched.
func (c *Coordinator) CancelAll(ctx context.Context) error {
	ids, err := c.ownedPending(ctx)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	return c.opts.Port.Cancel(ctx, ids)
}

// PendingCount reports how many of the port's pending requests carry
// this app's namespace.
func (c *Coordinator) PendingCount(ctx context.Context) (int, error) {
	ids, err := c.ownedPending(ctx)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// Upcoming returns up to limit of this app's pending requests, soonest
// first.
func (c *Coordinator) Upcoming(ctx context.Context, limit int) ([]notify.Pending, error) {
	all, err := c.opts.Port.Pending(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]notify.Pending, 0, limit)
	for _, p := range all {
		if !strings.HasPrefix(p.ID, plan.Namespace) {
			continue
		}
		out = append(out, p)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (c *Coordinator) ownedPending(ctx context.Context) ([]string, error) {
	all, err := c.opts.Port.Pending(ctx)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, p := range all {
		if strings.HasPrefix(p.ID, plan.Namespace) {
			ids = append(ids, p.ID)
		}
	}
	return ids, nil
}

// Preview computes the plan a rebuild would submit right now, without
// touching the delivery port.
func (c *Coordinator) Preview(ctx context.Context) ([]plan.Planned, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := c.opts.Now()
	days, err := c.TimelineDays(now, c.opts.LookaheadDays+1)
	if err != nil {
		return nil, err
	}
	set, err := c.opts.Settings.Load()
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	ov := c.overrides
	c.mu.Unlock()
	return plan.Build(plan.Input{
		Days:          days,
		Overrides:     ov,
		Now:           now,
		SubmitAt:      now,
		Location:      c.loc,
		LookaheadDays: c.opts.LookaheadDays,
	}, set), nil
}

// TimelineDays resolves days consecutive timeline entries starting at
// from into plan days with exact instants.
func (c *Coordinator) TimelineDays(from time.Time, days int) ([]plan.Day, error) {
	entries, err := c.opts.Provider.Generate(c.opts.SystemID, from.In(c.loc), days)
	if err != nil {
		return nil, err
	}
	out := make([]plan.Day, 0, len(entries))
	for _, e := range entries {
		d := plan.Day{Date: e.Date, Phase: e.Phase, Work: e.Work}
		if e.Work {
			times, ok := c.opts.Provider.ExactTimes(e.Date, e.Phase)
			if !ok {
				d.Work = false
			} else {
				d.Start, d.End = times.Start, times.End
			}
		}
		out = append(out, d)
	}
	return out, nil
}

func (c *Coordinator) rebuild(ctx context.Context, ov plan.Overrides) Outcome {
	started := c.opts.Now()
	out := Outcome{At: started}

	status, err := c.opts.Port.AuthorizationStatus(ctx)
	if err != nil {
		out.Err = err
		out.Took = c.opts.Now().Sub(started)
		return out
	}
	if !status.Allows() {
		// Stale pending requests from a previous authorized run must not
		// linger once the user revokes permission.
		if err := c.CancelAll(ctx); err != nil {
			c.log.Warn("cancel on revoked authorization failed", logx.Err(err))
		}
		c.log.Info("rebuild skipped", logx.String("authorization", status.String()))
		out.Err = ErrNotAuthorized
		out.Took = c.opts.Now().Sub(started)
		return out
	}

	if err := c.CancelAll(ctx); err != nil {
		out.Err = err
		out.Took = c.opts.Now().Sub(started)
		return out
	}

	// One extra day so a shift starting late on the horizon's last day
	// still gets its exact instants.
	days, err := c.TimelineDays(started, c.opts.LookaheadDays+1)
	if err != nil {
		out.Err = err
		out.Took = c.opts.Now().Sub(started)
		return out
	}

	set, err := c.opts.Settings.Load()
	if err != nil {
		out.Err = err
		out.Took = c.opts.Now().Sub(started)
		return out
	}

	planned := plan.Build(plan.Input{
		Days:          days,
		Overrides:     ov,
		Now:           started,
		SubmitAt:      started,
		Location:      c.loc,
		LookaheadDays: c.opts.LookaheadDays,
	}, set)

	var lastErr error
	for _, p := range planned {
		if err := c.limiter.Wait(ctx); err != nil {
			lastErr = err
			out.Failed++
			break
		}
		req := notify.Request{
			ID:        p.ID,
			TriggerAt: p.TriggerAt,
			Payload: notify.Payload{
				Title: p.Payload.Title,
				Body:  p.Payload.Body,
				Kind:  string(p.Kind),
			},
		}
		if err := c.opts.Port.Submit(ctx, req); err != nil {
			// One rejected submission must not abort the rest of the plan.
			c.log.Warn("submit failed", logx.String("id", p.ID), logx.Err(err))
			out.Failed++
			lastErr = err
			continue
		}
		out.Scheduled++
		if out.FirstTrigger.IsZero() || p.TriggerAt.Before(out.FirstTrigger) {
			out.FirstTrigger = p.TriggerAt
		}
		if p.TriggerAt.After(out.LastTrigger) {
			out.LastTrigger = p.TriggerAt
		}
	}
	out.Err = lastErr
	out.Took = c.opts.Now().Sub(started)
	return out
}

func (c *Coordinator) record(ctx context.Context, out Outcome) {
	fields := []logx.Field{
		logx.Int("scheduled", out.Scheduled),
		logx.Int("failed", out.Failed),
		logx.Duration("took", out.Took),
	}
	if !out.FirstTrigger.IsZero() {
		fields = append(fields, logx.Time("first", out.FirstTrigger), logx.Time("last", out.LastTrigger))
	}
	switch {
	case out.Err != nil:
		c.log.Warn("rebuild finished with errors", append(fields, logx.Err(out.Err))...)
	default:
		c.log.Info("rebuild finished", fields...)
	}

	if c.opts.Store != nil {
		rec := storage.OutcomeRecord{
			At:             out.At,
			ScheduledCount: out.Scheduled,
			FailedCount:    out.Failed,
			FirstTrigger:   out.FirstTrigger,
			LastTrigger:    out.LastTrigger,
			TookMS:         out.Took.Milliseconds(),
		}
		if out.Err != nil {
			rec.Error = out.Err.Error()
		}
		if err := c.opts.Store.AppendOutcome(ctx, rec); err != nil {
			c.log.Warn("outcome not persisted", logx.Err(err))
		}
	}
	if c.opts.Bus != nil {
		c.opts.Bus.Publish(eventbus.Event{Type: eventbus.TypeScheduleOutcome, Data: out})
	}
}
