// Package timeline defines the shift-timeline port consumed by the
// scheduling core, plus a rotation-based provider for fixed and
// rotating shift systems.
package timeline

import "time"

// Entry is one calendar day of a generated timeline.
type Entry struct {
	// Date is midnight of the civil day in the provider's timezone.
	Date  time.Time
	Phase string
	Work  bool
}

// Times are the exact start/end instants of a phase on a given day.
// End may be on the following civil day (cross-midnight phases).
type Times struct {
	Start time.Time
	End   time.Time
}

// Provider generates shift timelines. Implementations must return
// entries ordered by date and must never emit two entries with the same
// date, so downstream consumers can rely on unique start instants.
type Provider interface {
	// Generate returns days consecutive entries starting at from
	// (truncated to a civil day) for the given shift system.
	Generate(systemID string, from time.Time, days int) ([]Entry, error)

	// ExactTimes resolves the start/end instants of phase on date.
	// ok=false means the phase has no working hours (off days).
	ExactTimes(date time.Time, phase string) (Times, bool)
}
