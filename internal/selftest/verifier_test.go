package selftest

import (
	"context"
	"errors"
	"testing"
	"time"

	"shiftwatch/internal/eventbus"
	"shiftwatch/internal/notify/memory"
	"shiftwatch/internal/plan"
	logx "shiftwatch/pkg/logx"
)

func newTestVerifier(t *testing.T, timeout time.Duration) (*Verifier, *memory.Port) {
	t.Helper()
	bus := eventbus.New()
	port := memory.New(bus)
	v := New(Options{
		Port:    port,
		Bus:     bus,
		Log:     logx.Nop(),
		Delay:   time.Millisecond,
		Timeout: timeout,
	})
	return v, port
}

func waitState(t *testing.T, v *Verifier, want State) string {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		state, reason := v.State()
		if state == want {
			return reason
		}
		select {
		case <-deadline:
			t.Fatalf("state stuck at %q, want %q", state, want)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestVerifiedOnForegroundDelivery(t *testing.T) {
	t.Parallel()
	v, port := newTestVerifier(t, 2*time.Second)

	if err := v.SendTest(context.Background()); err != nil {
		t.Fatal(err)
	}
	if state, _ := v.State(); state != StatePending {
		t.Fatalf("state after SendTest = %q", state)
	}

	port.Fire(plan.FixedID(plan.KindSelfTest))
	waitState(t, v, StateVerified)
}

func TestVerifiedOnUserInteraction(t *testing.T) {
	t.Parallel()
	v, port := newTestVerifier(t, 2*time.Second)

	if err := v.SendTest(context.Background()); err != nil {
		t.Fatal(err)
	}
	port.Interact(plan.FixedID(plan.KindSelfTest))
	waitState(t, v, StateVerified)
}

func TestTimesOutWithoutConfirmation(t *testing.T) {
	t.Parallel()
	v, _ := newTestVerifier(t, 20*time.Millisecond)

	if err := v.SendTest(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitState(t, v, StateTimedOut)
}

func TestFailsWhenSubmitRejected(t *testing.T) {
	t.Parallel()
	v, port := newTestVerifier(t, time.Second)

	wantErr := errors.New("no permission")
	port.FailNextSubmit(wantErr)
	if err := v.SendTest(context.Background()); !errors.Is(err, wantErr) {
		t.Fatalf("SendTest err = %v, want %v", err, wantErr)
	}
	state, reason := v.State()
	if state != StateFailed {
		t.Fatalf("state = %q, want failed", state)
	}
	if reason != wantErr.Error() {
		t.Fatalf("reason = %q", reason)
	}
}

func TestResendSupersedesPreviousAttempt(t *testing.T) {
	t.Parallel()
	v, port := newTestVerifier(t, 2*time.Second)

	if err := v.SendTest(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := v.SendTest(context.Background()); err != nil {
		t.Fatal(err)
	}
	// Only the second attempt's request may be pending.
	pending, err := port.Pending(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending = %d, want 1", len(pending))
	}

	port.Fire(plan.FixedID(plan.KindSelfTest))
	waitState(t, v, StateVerified)
}

func TestResetReturnsToIdle(t *testing.T) {
	t.Parallel()
	v, port := newTestVerifier(t, 2*time.Second)

	if err := v.SendTest(context.Background()); err != nil {
		t.Fatal(err)
	}
	v.Reset(context.Background())

	state, reason := v.State()
	if state != StateIdle || reason != "" {
		t.Fatalf("state = %q/%q after Reset", state, reason)
	}
	pending, err := port.Pending(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Fatalf("reset left %d pending requests", len(pending))
	}

	// A late confirmation for the cancelled attempt must be ignored.
	port.Fire(plan.FixedID(plan.KindSelfTest))
	time.Sleep(50 * time.Millisecond)
	if state, _ := v.State(); state != StateIdle {
		t.Fatalf("late confirmation flipped state to %q", state)
	}
}
