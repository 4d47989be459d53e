package plan

import (
	"strings"
	"testing"
	"time"

	"shiftwatch/internal/config"
)

func baseSettings() config.Settings {
	s := config.DefaultSettings()
	s.Global.QuietHours.Enabled = false
	s.Global.PreDayEnabled = false
	s.Global.MaxPerDay = 0
	return s
}

func workDay(date time.Time, startHour, hours int) Day {
	start := time.Date(date.Year(), date.Month(), date.Day(), startHour, 0, 0, 0, date.Location())
	return Day{
		Date:  date,
		Phase: "day",
		Work:  true,
		Start: start,
		End:   start.Add(time.Duration(hours) * time.Hour),
	}
}

func kinds(ps []Planned) map[Kind]int {
	m := map[Kind]int{}
	for _, p := range ps {
		m[p.Kind]++
	}
	return m
}

func TestBuildDeterministic(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	in := Input{
		Days: []Day{
			workDay(now, 14, 8),
			workDay(now.AddDate(0, 0, 1), 14, 8),
		},
		Now:           now,
		SubmitAt:      now,
		Location:      time.UTC,
		LookaheadDays: 7,
	}
	set := baseSettings()
	set.Global.PreDayEnabled = true

	a := Build(in, set)
	b := Build(in, set)
	if len(a) == 0 {
		t.Fatal("expected a non-empty plan")
	}
	if len(a) != len(b) {
		t.Fatalf("plan sizes differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].ID != b[i].ID || !a[i].TriggerAt.Equal(b[i].TriggerAt) {
			t.Fatalf("plan diverges at %d: %+v vs %+v", i, a[i], b[i])
		}
	}
	for _, p := range a {
		if !strings.HasPrefix(p.ID, Namespace) {
			t.Fatalf("ID %q lacks namespace prefix", p.ID)
		}
	}
}

func TestBuildSortedByTrigger(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 2, 1, 0, 0, 0, time.UTC)
	in := Input{
		Days: []Day{
			workDay(now.AddDate(0, 0, 2), 9, 8),
			workDay(now, 9, 8),
			workDay(now.AddDate(0, 0, 1), 9, 8),
		},
		Now:      now,
		SubmitAt: now,
		Location: time.UTC,
	}
	out := Build(in, baseSettings())
	for i := 1; i < len(out); i++ {
		if out[i].TriggerAt.Before(out[i-1].TriggerAt) {
			t.Fatalf("plan not sorted at %d: %v after %v", i, out[i].TriggerAt, out[i-1].TriggerAt)
		}
	}
}

func TestBuildEntryVariants(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	day := workDay(now, 14, 8)
	in := Input{Days: []Day{day}, Now: now, SubmitAt: now, Location: time.UTC}

	tests := []struct {
		name   string
		mutate func(*config.Settings)
		want   map[Kind]int
	}{
		{
			name:   "primary only",
			mutate: func(s *config.Settings) {},
			want:   map[Kind]int{KindEntry: 1, KindStale: 1},
		},
		{
			name: "secondary at a different offset",
			mutate: func(s *config.Settings) {
				s.Entry.SecondEnabled = true
				s.Entry.SecondOffsetMinutes = 15
			},
			want: map[Kind]int{KindEntry: 1, KindEntrySecond: 1, KindStale: 1},
		},
		{
			name: "secondary collapses onto primary offset",
			mutate: func(s *config.Settings) {
				s.Entry.SecondEnabled = true
				s.Entry.SecondOffsetMinutes = 60
			},
			want: map[Kind]int{KindEntry: 1, KindStale: 1},
		},
		{
			name: "exact-time extra",
			mutate: func(s *config.Settings) {
				s.Entry.AtExactTime = true
			},
			want: map[Kind]int{KindEntry: 1, KindEntryExact: 1, KindStale: 1},
		},
		{
			name: "exact-time alone when offset is zero",
			mutate: func(s *config.Settings) {
				s.Entry.OffsetMinutes = 0
				s.Entry.AtExactTime = true
			},
			want: map[Kind]int{KindEntry: 1, KindStale: 1},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			set := baseSettings()
			tc.mutate(&set)
			got := kinds(Build(in, set))
			if len(got) != len(tc.want) {
				t.Fatalf("kinds = %v, want %v", got, tc.want)
			}
			for k, n := range tc.want {
				if got[k] != n {
					t.Fatalf("kind %s = %d, want %d (all: %v)", k, got[k], n, got)
				}
			}
		})
	}
}

func TestBuildSkipsPastTriggers(t *testing.T) {
	t.Parallel()

	// 60-minute entry offset puts the trigger at 13:00; now is 13:30.
	now := time.Date(2026, 3, 2, 13, 30, 0, 0, time.UTC)
	day := workDay(now, 14, 8)
	in := Input{Days: []Day{day}, Now: now, SubmitAt: now, Location: time.UTC}

	got := kinds(Build(in, baseSettings()))
	if got[KindEntry] != 0 {
		t.Fatalf("past entry trigger must be skipped, got %v", got)
	}
	if got[KindStale] != 1 {
		t.Fatalf("stale reminder missing: %v", got)
	}
}

func TestBuildPresenceAndExit(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	day := workDay(now, 14, 8) // 14:00–22:00
	in := Input{Days: []Day{day}, Now: now, SubmitAt: now, Location: time.UTC}

	set := baseSettings()
	set.Presence.Enabled = true
	set.Presence.OffsetMinutes = 30
	set.Presence.FollowupEnabled = true
	set.Presence.FollowupDelayMinutes = 60
	set.Exit.Enabled = true
	set.Exit.AdvanceMinutes = 15
	set.Exit.AtExactTime = true

	out := Build(in, set)
	got := kinds(out)
	for _, k := range []Kind{KindPresence, KindFollowup, KindExitWarn, KindExitExact} {
		if got[k] != 1 {
			t.Fatalf("kind %s = %d, want 1 (all: %v)", k, got[k], got)
		}
	}
	for _, p := range out {
		switch p.Kind {
		case KindPresence:
			if want := day.Start.Add(30 * time.Minute); !p.TriggerAt.Equal(want) {
				t.Fatalf("presence at %v, want %v", p.TriggerAt, want)
			}
		case KindExitWarn:
			if want := day.End.Add(-15 * time.Minute); !p.TriggerAt.Equal(want) {
				t.Fatalf("exit warning at %v, want %v", p.TriggerAt, want)
			}
		}
	}
}

func TestBuildFollowupClampedToShiftEnd(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	day := workDay(now, 14, 1) // one-hour shift
	in := Input{Days: []Day{day}, Now: now, SubmitAt: now, Location: time.UTC}

	set := baseSettings()
	set.Entry.Enabled = false
	set.Presence.Enabled = true
	set.Presence.OffsetMinutes = 30
	set.Presence.FollowupEnabled = true
	set.Presence.FollowupDelayMinutes = 45 // would land past shift end

	got := kinds(Build(in, set))
	if got[KindPresence] != 1 || got[KindFollowup] != 0 {
		t.Fatalf("followup past shift end must be dropped: %v", got)
	}
}

func TestBuildQuietHours(t *testing.T) {
	t.Parallel()

	loc, err := time.LoadLocation("Europe/Istanbul")
	if err != nil {
		t.Fatal(err)
	}
	now := time.Date(2026, 3, 2, 20, 0, 0, 0, loc)
	// Overnight shift starting 00:30: the 60-minute entry trigger at
	// 23:30 falls inside the 23:00–06:00 quiet window.
	start := time.Date(2026, 3, 3, 0, 30, 0, 0, loc)
	day := Day{Date: start, Phase: "night", Work: true, Start: start, End: start.Add(8 * time.Hour)}
	in := Input{Days: []Day{day}, Now: now, SubmitAt: now, Location: loc, LookaheadDays: 7}

	set := baseSettings()
	set.Global.QuietHours = config.QuietHours{Enabled: true, Start: "23:00", End: "06:00"}
	set.Global.PreDayEnabled = true
	set.Global.PreDayHours = 2 // pre-day trigger 22:30, also near quiet

	got := kinds(Build(in, set))
	if got[KindEntry] != 0 {
		t.Fatalf("quiet-hours entry must be suppressed: %v", got)
	}
	// The singletons are exempt from quiet hours.
	if got[KindStale] != 1 {
		t.Fatalf("stale reminder must survive quiet hours: %v", got)
	}
	if got[KindPreDay] != 1 {
		t.Fatalf("pre-day reminder must survive quiet hours: %v", got)
	}
}

func TestBuildPerDayCap(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 2, 1, 0, 0, 0, time.UTC)
	day := workDay(now, 14, 8)
	in := Input{Days: []Day{day}, Now: now, SubmitAt: now, Location: time.UTC}

	set := baseSettings()
	set.Entry.SecondEnabled = true
	set.Entry.SecondOffsetMinutes = 30
	set.Entry.AtExactTime = true
	set.Presence.Enabled = true
	set.Presence.OffsetMinutes = 30
	set.Exit.Enabled = true
	set.Exit.AdvanceMinutes = 15
	set.Global.MaxPerDay = 2

	out := Build(in, set)
	perDay := 0
	for _, p := range out {
		if p.Kind != KindStale && p.Kind != KindPreDay {
			perDay++
		}
	}
	if perDay != 2 {
		t.Fatalf("per-day cap 2 produced %d shift reminders: %v", perDay, kinds(out))
	}
}

func TestBuildTotalBudget(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 1, 0, 0, 0, time.UTC)
	days := make([]Day, 60)
	for i := range days {
		days[i] = workDay(now.AddDate(0, 0, i), 14, 8)
	}
	in := Input{Days: days, Now: now, SubmitAt: now, Location: time.UTC, LookaheadDays: 60}

	set := baseSettings()
	set.Entry.SecondEnabled = true
	set.Entry.SecondOffsetMinutes = 30
	set.Entry.AtExactTime = true
	set.Exit.Enabled = true
	set.Exit.AdvanceMinutes = 15
	set.Exit.AtExactTime = true
	set.Global.PreDayEnabled = true

	out := Build(in, set)
	if len(out) > MaxPlanned {
		t.Fatalf("plan size %d exceeds budget %d", len(out), MaxPlanned)
	}
	if len(out) != MaxPlanned {
		t.Fatalf("dense timeline should fill the budget, got %d", len(out))
	}
	got := kinds(out)
	if got[KindStale] != 1 || got[KindPreDay] != 1 {
		t.Fatalf("singletons must survive a full budget: %v", got)
	}
}

func TestBuildOverrides(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 2, 1, 0, 0, 0, time.UTC)
	d1 := workDay(now, 14, 8)
	d2 := workDay(now.AddDate(0, 0, 1), 14, 8)
	off := Day{Date: now.AddDate(0, 0, 2), Work: false}

	newStart := time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)
	in := Input{
		Days: []Day{d1, d2, off},
		Overrides: Overrides{
			DateKey(d2.Date, time.UTC):  {Off: true},
			DateKey(off.Date, time.UTC): {Phase: "early", Start: newStart, End: newStart.Add(8 * time.Hour)},
		},
		Now:      now,
		SubmitAt: now,
		Location: time.UTC,
	}

	out := Build(in, baseSettings())
	var entries []Planned
	for _, p := range out {
		if p.Kind == KindEntry {
			entries = append(entries, p)
		}
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entry reminders after overrides, got %d", len(entries))
	}
	if want := ID(KindEntry, d1.Start); entries[0].ID != want {
		t.Fatalf("first entry %q, want %q", entries[0].ID, want)
	}
	if want := ID(KindEntry, newStart); entries[1].ID != want {
		t.Fatalf("second entry %q, want %q (override must supply the shift)", entries[1].ID, want)
	}
	if !strings.Contains(entries[1].Payload.Body, "early") {
		t.Fatalf("override phase missing from payload: %q", entries[1].Payload.Body)
	}
}

func TestBuildPreDayUsesStartDay(t *testing.T) {
	t.Parallel()

	loc, err := time.LoadLocation("Europe/Istanbul")
	if err != nil {
		t.Fatal(err)
	}
	// Overnight shift starting 23:30 today; a naive date match would
	// attribute it to tomorrow.
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, loc)
	start := time.Date(2026, 3, 2, 23, 30, 0, 0, loc)
	day := Day{Date: start, Phase: "night", Work: true, Start: start, End: start.Add(8 * time.Hour)}
	in := Input{Days: []Day{day}, Now: now, SubmitAt: now, Location: loc, LookaheadDays: 7}

	set := baseSettings()
	set.Entry.Enabled = false
	set.Global.PreDayEnabled = true
	set.Global.PreDayHours = 12

	out := Build(in, set)
	var pre *Planned
	for i := range out {
		if out[i].Kind == KindPreDay {
			pre = &out[i]
		}
	}
	if pre == nil {
		t.Fatalf("missing pre-day reminder: %v", kinds(out))
	}
	if want := start.Add(-12 * time.Hour); !pre.TriggerAt.Equal(want) {
		t.Fatalf("pre-day trigger %v, want %v", pre.TriggerAt, want)
	}
	if !strings.Contains(pre.Payload.Title, "today") {
		t.Fatalf("overnight shift starting today labeled %q", pre.Payload.Title)
	}
}

func TestBuildEndedShiftContributesNothing(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 2, 23, 0, 0, 0, time.UTC)
	day := workDay(now, 9, 8) // ended 17:00
	in := Input{Days: []Day{day}, Now: now, SubmitAt: now, Location: time.UTC}

	set := baseSettings()
	set.Exit.Enabled = true
	set.Exit.AtExactTime = true

	got := kinds(Build(in, set))
	if got[KindEntry] != 0 || got[KindExitExact] != 0 {
		t.Fatalf("finished shift must emit nothing: %v", got)
	}
}
