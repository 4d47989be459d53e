package plan

import (
	"fmt"
	"time"
)

// Namespace prefixes every instruction ID this app submits, so that
// cancel-all and counting can never touch unrelated requests the
// platform may hold.
const Namespace = "shiftwatch."

// MaxPlanned keeps one rebuild under the platform's total pending
// ceiling of 64 requests.
const MaxPlanned = 63

// StaleDelay is how long after a rebuild the stale-app reminder fires
// if no further rebuild happens.
const StaleDelay = 48 * time.Hour

type Kind string

const (
	KindEntry       Kind = "entry"
	KindEntrySecond Kind = "entry2"
	KindEntryExact  Kind = "entry-exact"
	KindPresence    Kind = "presence"
	KindFollowup    Kind = "followup"
	KindExitWarn    Kind = "exit-warn"
	KindExitExact   Kind = "exit-exact"
	KindPreDay      Kind = "pre-day"
	KindStale       Kind = "stale"
	KindSelfTest    Kind = "selftest"
)

// ID derives the deterministic instruction ID for a kind and its
// anchoring instant (typically the shift start or end epoch). Rebuilds
// over the same logical alert must produce the same ID, which is what
// makes cancel-then-resubmit idempotent.
func ID(kind Kind, anchor time.Time) string {
	return fmt.Sprintf("%s%s.%d", Namespace, kind, anchor.Unix())
}

// FixedID is for the singleton instructions (stale-app, self-test) that
// have no timeline anchor: the kind alone identifies the logical alert.
func FixedID(kind Kind) string {
	return Namespace + string(kind)
}

type Payload struct {
	Title string
	Body  string
}

// Planned is one concrete reminder instruction ready for submission.
type Planned struct {
	ID        string
	TriggerAt time.Time
	Kind      Kind
	Payload   Payload
}

// Day is one resolved timeline entry: civil date plus exact instants.
// End may be on the following civil day for cross-midnight shifts.
type Day struct {
	Date  time.Time
	Phase string
	Work  bool
	Start time.Time
	End   time.Time
}

// Override replaces the computed phase of one civil day. Off forces a
// free day; a non-zero Start/End pair replaces the shift instants.
type Override struct {
	Off   bool
	Phase string
	Start time.Time
	End   time.Time
}

// Overrides maps civil dates ("2006-01-02") to manual overrides.
// Overrides always take precedence over the computed phase.
type Overrides map[string]Override

// DateKey renders t's civil date in loc as an Overrides key.
func DateKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}
