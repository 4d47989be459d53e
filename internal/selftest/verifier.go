// Package selftest verifies the delivery pipeline end to end: submit
// one short-fuse test reminder, then wait for its delivery confirmation
// on the event bus. No confirmation within the window means something
// between the scheduler and the platform is broken, which is exactly
// what users cannot diagnose themselves.
package selftest

import (
	"context"
	"sync"
	"time"

	"shiftwatch/internal/eventbus"
	"shiftwatch/internal/notify"
	"shiftwatch/internal/plan"
	logx "shiftwatch/pkg/logx"
)

type State string

const (
	StateIdle     State = "idle"
	StatePending  State = "pending"
	StateVerified State = "verified"
	StateFailed   State = "failed"
	StateTimedOut State = "timed-out"
)

const (
	defaultDelay   = 3 * time.Second
	defaultTimeout = 10 * time.Second
)

// Options configure a Verifier. Zero durations use the defaults.
type Options struct {
	Port notify.Port
	Bus  eventbus.Bus
	Log  logx.Logger
	// Delay is how far in the future the test reminder triggers.
	Delay time.Duration
	// Timeout bounds the wait for a confirmation, measured from the
	// trigger instant.
	Timeout time.Duration
}

// Verifier runs one test at a time. Starting a new test supersedes the
// previous one: its timer, subscription and pending request are all
// discarded, and late confirmations for it are ignored via a sequence
// counter.
type Verifier struct {
	port    notify.Port
	bus     eventbus.Bus
	log     logx.Logger
	delay   time.Duration
	timeout time.Duration

	mu     sync.Mutex
	seq    uint64
	state  State
	reason string
	timer  *time.Timer
	unsub  func()
}

func New(opts Options) *Verifier {
	if opts.Log.IsZero() {
		opts.Log = logx.Nop()
	}
	if opts.Delay <= 0 {
		opts.Delay = defaultDelay
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	return &Verifier{
		port:    opts.Port,
		bus:     opts.Bus,
		log:     opts.Log,
		delay:   opts.Delay,
		timeout: opts.Timeout,
		state:   StateIdle,
	}
}

// State returns the current state and, for failures, the reason.
func (v *Verifier) State() (State, string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state, v.reason
}

// SendTest submits the test reminder and starts waiting for its
// confirmation. A test already in flight is superseded.
func (v *Verifier) SendTest(ctx context.Context) error {
	id := plan.FixedID(plan.KindSelfTest)

	v.mu.Lock()
	v.seq++
	seq := v.seq
	v.cleanupLocked()
	v.state = StatePending
	v.reason = ""
	v.mu.Unlock()

	// Drop a superseded test's pending request before submitting; the
	// fixed ID would otherwise be replaced anyway, but not every port
	// guarantees replacement semantics.
	if err := v.port.Cancel(ctx, []string{id}); err != nil {
		v.log.Debug("selftest precancel failed", logx.Err(err))
	}

	req := notify.Request{
		ID:        id,
		TriggerAt: time.Now().Add(v.delay),
		Payload: notify.Payload{
			Title: "Test notification",
			Body:  "If you can read this, delivery works.",
			Kind:  string(plan.KindSelfTest),
		},
	}
	if err := v.port.Submit(ctx, req); err != nil {
		v.mu.Lock()
		if v.seq == seq {
			v.state = StateFailed
			v.reason = err.Error()
		}
		v.mu.Unlock()
		return err
	}

	ch, unsub := v.bus.Subscribe(16)
	v.mu.Lock()
	if v.seq != seq {
		// Superseded between submit and subscribe.
		v.mu.Unlock()
		unsub()
		return nil
	}
	v.unsub = unsub
	v.timer = time.AfterFunc(v.delay+v.timeout, func() { v.expire(seq) })
	v.mu.Unlock()

	go v.watch(seq, id, ch)
	v.log.Info("selftest submitted", logx.String("id", id), logx.Time("trigger", req.TriggerAt))
	return nil
}

// Reset cancels any in-flight test and returns to idle.
func (v *Verifier) Reset(ctx context.Context) {
	id := plan.FixedID(plan.KindSelfTest)
	v.mu.Lock()
	v.seq++
	v.cleanupLocked()
	v.state = StateIdle
	v.reason = ""
	v.mu.Unlock()
	if err := v.port.Cancel(ctx, []string{id}); err != nil {
		v.log.Debug("selftest cancel failed", logx.Err(err))
	}
}

// watch consumes bus events until the test resolves or the channel
// closes. Either confirmation topic counts: a foreground presentation
// proves delivery just as well as a user tap.
func (v *Verifier) watch(seq uint64, id string, ch <-chan eventbus.Event) {
	for ev := range ch {
		if ev.Type != eventbus.TypeForegroundDelivery && ev.Type != eventbus.TypeUserInteraction {
			continue
		}
		data, ok := ev.Data.(eventbus.DeliveryData)
		if !ok || data.ID != id {
			continue
		}
		v.confirm(seq, ev.Type)
		return
	}
}

func (v *Verifier) confirm(seq uint64, via string) {
	v.mu.Lock()
	if v.seq != seq || v.state != StatePending {
		v.mu.Unlock()
		return
	}
	v.state = StateVerified
	v.cleanupLocked()
	v.mu.Unlock()
	v.log.Info("selftest verified", logx.String("via", via))
}

func (v *Verifier) expire(seq uint64) {
	v.mu.Lock()
	if v.seq != seq || v.state != StatePending {
		v.mu.Unlock()
		return
	}
	v.state = StateTimedOut
	v.cleanupLocked()
	v.mu.Unlock()
	v.log.Warn("selftest timed out")
}

// cleanupLocked releases the timer and subscription of the current
// attempt. Callers hold v.mu.
func (v *Verifier) cleanupLocked() {
	if v.timer != nil {
		v.timer.Stop()
		v.timer = nil
	}
	if v.unsub != nil {
		v.unsub()
		v.unsub = nil
	}
}
