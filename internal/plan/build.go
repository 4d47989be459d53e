// Package plan turns a resolved shift timeline plus the versioned
// notification settings into a bounded, deterministic list of reminder
// instructions.
package plan

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"shiftwatch/internal/config"
	"shiftwatch/internal/upcoming"
)

// Input carries everything one build needs. Build is pure: it never
// reads clocks or touches I/O, so the same Input and settings always
// produce the same plan.
type Input struct {
	Days      []Day
	Overrides Overrides
	// Now gates which trigger instants are still eligible.
	Now time.Time
	// SubmitAt anchors the stale-app reminder (usually same as Now; kept
	// separate so tests can pin it).
	SubmitAt time.Time
	// Location is the timezone for day labels, quiet hours and per-day
	// caps. Nil means UTC.
	Location *time.Location
	// LookaheadDays bounds the pre-day resolution window.
	LookaheadDays int
}

// Build emits at most MaxPlanned instructions, earliest days first.
// Candidates whose trigger instant is already past are silently
// skipped; that is expected, not an error.
func Build(in Input, set config.Settings) []Planned {
	loc := in.Location
	if loc == nil {
		loc = time.UTC
	}
	b := &builder{
		now:    in.Now,
		loc:    loc,
		quiet:  set.Global.QuietHours,
		perMax: set.Global.MaxPerDay,
		perDay: map[string]int{},
		seen:   map[string]bool{},
	}

	days := applyOverrides(in.Days, in.Overrides, loc)

	// The singletons go first so a crowded timeline can never starve
	// them out of the budget.
	b.addFixed(KindStale, in.SubmitAt.Add(StaleDelay), Payload{
		Title: "Roster check",
		Body:  "Reminders have not refreshed in two days. Open the app to keep them current.",
	})
	b.buildPreDay(days, in, set)

	for i := range days {
		d := &days[i]
		if !d.Work || d.Start.IsZero() {
			continue
		}
		// Days whose shift has fully ended contribute nothing.
		if !d.End.After(in.Now) {
			continue
		}
		b.buildEntry(d, set.Entry)
		b.buildPresence(d, set.Presence)
		b.buildExit(d, set.Exit)
		if b.full() {
			break
		}
	}

	out := b.planned
	sort.SliceStable(out, func(i, j int) bool { return out[i].TriggerAt.Before(out[j].TriggerAt) })
	return out
}

type builder struct {
	now     time.Time
	loc     *time.Location
	quiet   config.QuietHours
	perMax  int
	perDay  map[string]int
	seen    map[string]bool
	planned []Planned
}

func (b *builder) full() bool { return len(b.planned) >= MaxPlanned }

// add appends one instruction unless it is past, duplicate, quiet-hour
// suppressed, over the per-day cap, or over the total budget.
func (b *builder) add(kind Kind, anchor, trigger time.Time, p Payload) {
	b.place(ID(kind, anchor), kind, trigger, p, true)
}

// addFixed is add for the singleton kinds, which are exempt from quiet
// hours and the per-day cap.
func (b *builder) addFixed(kind Kind, trigger time.Time, p Payload) {
	b.place(FixedID(kind), kind, trigger, p, false)
}

func (b *builder) place(id string, kind Kind, trigger time.Time, p Payload, capped bool) {
	if b.full() {
		return
	}
	if !trigger.After(b.now) {
		return
	}
	if b.seen[id] {
		return
	}
	if capped {
		dayKey := trigger.In(b.loc).Format("2006-01-02")
		if b.quiet.Enabled && inQuietWindow(trigger.In(b.loc), b.quiet) {
			return
		}
		if b.perMax > 0 && b.perDay[dayKey] >= b.perMax {
			return
		}
		b.perDay[dayKey]++
	}
	b.seen[id] = true
	b.planned = append(b.planned, Planned{ID: id, TriggerAt: trigger, Kind: kind, Payload: p})
}

func (b *builder) buildEntry(d *Day, set config.EntrySettings) {
	if !set.Enabled {
		return
	}
	clock := d.Start.In(b.loc).Format("15:04")
	b.add(KindEntry, d.Start, d.Start.Add(-time.Duration(set.OffsetMinutes)*time.Minute), Payload{
		Title: "Shift soon",
		Body:  d.Phase + " shift starts at " + clock,
	})
	if set.SecondEnabled && set.SecondOffsetMinutes != set.OffsetMinutes {
		b.add(KindEntrySecond, d.Start, d.Start.Add(-time.Duration(set.SecondOffsetMinutes)*time.Minute), Payload{
			Title: "Shift soon",
			Body:  d.Phase + " shift starts at " + clock,
		})
	}
	if set.AtExactTime && set.OffsetMinutes > 0 {
		b.add(KindEntryExact, d.Start, d.Start, Payload{
			Title: "Shift starting",
			Body:  d.Phase + " shift starts now",
		})
	}
}

func (b *builder) buildPresence(d *Day, set config.PresenceSettings) {
	if !set.Enabled {
		return
	}
	primary := d.Start.Add(time.Duration(set.OffsetMinutes) * time.Minute)
	// Presence pings only make sense while the shift is running.
	if primary.After(b.now) && primary.Before(d.End) {
		b.add(KindPresence, d.Start, primary, Payload{
			Title: "On shift",
			Body:  "Check in for the " + d.Phase + " shift",
		})
		if set.FollowupEnabled {
			followup := primary.Add(time.Duration(set.FollowupDelayMinutes) * time.Minute)
			if followup.Before(d.End) {
				b.add(KindFollowup, d.Start, followup, Payload{
					Title: "On shift",
					Body:  "Follow-up check-in for the " + d.Phase + " shift",
				})
			}
		}
	}
}

func (b *builder) buildExit(d *Day, set config.ExitSettings) {
	if !set.Enabled {
		return
	}
	clock := d.End.In(b.loc).Format("15:04")
	if set.AdvanceMinutes > 0 {
		b.add(KindExitWarn, d.End, d.End.Add(-time.Duration(set.AdvanceMinutes)*time.Minute), Payload{
			Title: "Shift ending",
			Body:  d.Phase + " shift ends at " + clock,
		})
	}
	if set.AtExactTime {
		b.add(KindExitExact, d.End, d.End, Payload{
			Title: "Shift over",
			Body:  d.Phase + " shift ended",
		})
	}
}

// buildPreDay computes the single pre-day reminder through the upcoming
// resolver so overnight shifts are attributed to the day they START.
// Matching timeline dates against "tomorrow" here is exactly the defect
// this core exists to prevent; route every change through the resolver.
func (b *builder) buildPreDay(days []Day, in Input, set config.Settings) {
	if !set.Global.PreDayEnabled {
		return
	}
	events := make([]upcoming.Event, 0, len(days))
	for _, d := range days {
		if !d.Work || d.Start.IsZero() {
			continue
		}
		events = append(events, upcoming.Event{
			ID:    DateKey(d.Date, b.loc),
			Start: d.Start,
			End:   d.End,
		})
	}

	res, ok := upcoming.Resolve(in.Now, events, upcoming.Config{
		Location:      b.loc,
		LookaheadDays: in.LookaheadDays,
		LeadTime:      time.Duration(set.Global.PreDayHours) * time.Hour,
	})
	if !ok {
		return
	}
	b.addFixed(KindPreDay, res.TriggerAt, Payload{
		Title: "Shift " + string(res.Label),
		Body:  "Next shift starts " + res.Event.Start.In(b.loc).Format("Mon 15:04"),
	})
}

func applyOverrides(days []Day, ov Overrides, loc *time.Location) []Day {
	if len(ov) == 0 {
		return days
	}
	out := make([]Day, len(days))
	copy(out, days)
	for i := range out {
		o, ok := ov[DateKey(out[i].Date, loc)]
		if !ok {
			continue
		}
		if o.Off {
			out[i].Work = false
			continue
		}
		out[i].Work = true
		if o.Phase != "" {
			out[i].Phase = o.Phase
		}
		if !o.Start.IsZero() {
			out[i].Start = o.Start
			out[i].End = o.End
		}
	}
	return out
}

// inQuietWindow reports whether local time t falls inside the window.
// End at or before Start wraps past midnight.
func inQuietWindow(t time.Time, q config.QuietHours) bool {
	sh, sm, ok1 := splitClock(q.Start)
	eh, em, ok2 := splitClock(q.End)
	if !ok1 || !ok2 {
		return false
	}
	minutes := t.Hour()*60 + t.Minute()
	start := sh*60 + sm
	end := eh*60 + em
	if start == end {
		return false
	}
	if start < end {
		return minutes >= start && minutes < end
	}
	return minutes >= start || minutes < end
}

func splitClock(s string) (h, m int, ok bool) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, 0, false
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, 0, false
	}
	return h, m, true
}
