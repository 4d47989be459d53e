// Package upcoming resolves "the next shift that starts after a given
// moment" from a list of candidate events.
//
// Resolve is a pure function: no I/O, no clocks, no mutable state.
// Identical inputs always produce identical outputs, and a shared
// test-vector table (testdata/vectors.json) pins the behavior so other
// implementations of the same logic can verify against it.
package upcoming

import "time"

// DayLabel categorizes an event's start day relative to the reference
// day, in a fixed timezone.
type DayLabel string

const (
	LabelToday    DayLabel = "today"
	LabelTomorrow DayLabel = "tomorrow"
	LabelLater    DayLabel = "later"
)

// Event is an immutable timeline entry. Identity is the ID; End may be
// zero when the provider has no end instant for the entry.
type Event struct {
	ID    string
	Start time.Time
	End   time.Time
}

// Config parameterizes one resolution call. It is created fresh per
// call and never persisted.
type Config struct {
	// Location is the timezone day labels are computed in. Nil means UTC.
	Location *time.Location
	// LookaheadDays bounds the search window: events starting later than
	// ref + LookaheadDays*24h are ignored. The boundary itself is
	// included.
	LookaheadDays int
	// LeadTime is subtracted from the selected event's start to compute
	// the trigger instant.
	LeadTime time.Duration
	// Skip, when non-nil, excludes events it returns true for (manual
	// overrides, excluded days).
	Skip func(Event) bool
}

// Resolved is the output of a successful resolution.
type Resolved struct {
	Event     Event
	TriggerAt time.Time
	Label     DayLabel
	End       time.Time
}

// Resolve returns the next event whose start instant is strictly after
// ref, or ok=false when nothing qualifies. No-match is an expected,
// frequent outcome (all upcoming days may be off-days), not an error.
//
// Selection considers START instants only. An event that began before
// ref but is still running is not upcoming; this rule is what keeps
// overnight shifts (start today, end tomorrow) labeled by the day they
// begin. Do not reintroduce end-instant or calendar-date matching here.
func Resolve(ref time.Time, events []Event, cfg Config) (Resolved, bool) {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}

	horizon := time.Time{}
	if cfg.LookaheadDays > 0 {
		horizon = ref.Add(time.Duration(cfg.LookaheadDays) * 24 * time.Hour)
	}

	var (
		best  Event
		found bool
	)
	for _, ev := range events {
		if !ev.Start.After(ref) {
			continue
		}
		if !horizon.IsZero() && ev.Start.After(horizon) {
			continue
		}
		if cfg.Skip != nil && cfg.Skip(ev) {
			continue
		}
		if !found || ev.Start.Before(best.Start) {
			best, found = ev, true
			continue
		}
		// Providers should never emit duplicate start instants; when they
		// do anyway, the lowest ID wins so the result stays deterministic.
		if ev.Start.Equal(best.Start) && ev.ID < best.ID {
			best = ev
		}
	}
	if !found {
		return Resolved{}, false
	}

	return Resolved{
		Event:     best,
		TriggerAt: best.Start.Add(-cfg.LeadTime),
		Label:     labelFor(ref, best.Start, loc),
		End:       best.End,
	}, true
}

// labelFor compares the calendar day of start against the calendar day
// of ref, both in loc.
func labelFor(ref, start time.Time, loc *time.Location) DayLabel {
	refDay := dayOf(ref, loc)
	startDay := dayOf(start, loc)
	switch {
	case startDay.Equal(refDay):
		return LabelToday
	case startDay.Equal(refDay.AddDate(0, 0, 1)):
		return LabelTomorrow
	default:
		return LabelLater
	}
}

// dayOf returns the calendar-day start of t in loc.
func dayOf(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
