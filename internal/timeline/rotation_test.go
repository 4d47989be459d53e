package timeline

import (
	"testing"
	"time"
)

func testRotation(t *testing.T) *Rotation {
	t.Helper()
	r, err := NewRotation(RotationConfig{
		SystemID: "continental",
		Timezone: "Europe/Berlin",
		Anchor:   "2026-01-05", // a Monday
		Pattern:  []string{"morning", "morning", "night", "night", "-", "-"},
		Phases: map[string]PhaseClock{
			"morning": {Start: "06:00", End: "14:00"},
			"night":   {Start: "22:00", End: "06:00"},
		},
	})
	if err != nil {
		t.Fatalf("NewRotation: %v", err)
	}
	return r
}

func TestGeneratePatternCycle(t *testing.T) {
	t.Parallel()
	r := testRotation(t)
	from := time.Date(2026, 1, 5, 15, 30, 0, 0, r.Location())

	entries, err := r.Generate("continental", from, 8)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(entries) != 8 {
		t.Fatalf("expected 8 entries, got %d", len(entries))
	}

	wantPhases := []string{"morning", "morning", "night", "night", "off", "off", "morning", "morning"}
	for i, e := range entries {
		if e.Phase != wantPhases[i] {
			t.Fatalf("day %d phase = %q, want %q", i, e.Phase, wantPhases[i])
		}
		if e.Work != (wantPhases[i] != OffPhase) {
			t.Fatalf("day %d work flag mismatch", i)
		}
		wantDate := time.Date(2026, 1, 5+i, 0, 0, 0, 0, r.Location())
		if !e.Date.Equal(wantDate) {
			t.Fatalf("day %d date = %s, want %s", i, e.Date, wantDate)
		}
	}
}

func TestGenerateBeforeAnchor(t *testing.T) {
	t.Parallel()
	r := testRotation(t)
	// Two days before the anchor: pattern must wrap backwards, not panic.
	from := time.Date(2026, 1, 3, 0, 0, 0, 0, r.Location())
	entries, err := r.Generate("", from, 2)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if entries[0].Phase != "off" || entries[1].Phase != "off" {
		t.Fatalf("expected off/off before anchor, got %q/%q", entries[0].Phase, entries[1].Phase)
	}
}

func TestExactTimesCrossMidnight(t *testing.T) {
	t.Parallel()
	r := testRotation(t)
	date := time.Date(2026, 1, 7, 0, 0, 0, 0, r.Location())

	tm, ok := r.ExactTimes(date, "night")
	if !ok {
		t.Fatal("expected times for night phase")
	}
	if tm.Start.Day() != 7 || tm.Start.Hour() != 22 {
		t.Fatalf("unexpected start: %s", tm.Start)
	}
	if tm.End.Day() != 8 || tm.End.Hour() != 6 {
		t.Fatalf("expected end on the next day, got %s", tm.End)
	}
	if !tm.End.After(tm.Start) {
		t.Fatal("end must be after start")
	}
}

func TestExactTimesOffDay(t *testing.T) {
	t.Parallel()
	r := testRotation(t)
	if _, ok := r.ExactTimes(time.Now(), OffPhase); ok {
		t.Fatal("off phase must have no working hours")
	}
}

func TestUnknownSystemRejected(t *testing.T) {
	t.Parallel()
	r := testRotation(t)
	if _, err := r.Generate("somebody-elses-roster", time.Now(), 3); err == nil {
		t.Fatal("expected error for unknown system id")
	}
}

func TestNewRotationValidation(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		cfg  RotationConfig
	}{
		{name: "empty pattern", cfg: RotationConfig{Anchor: "2026-01-05"}},
		{name: "bad anchor", cfg: RotationConfig{Anchor: "05.01.2026", Pattern: []string{"-"}}},
		{name: "bad timezone", cfg: RotationConfig{Anchor: "2026-01-05", Timezone: "Mars/Olympus", Pattern: []string{"-"}}},
		{name: "phase without clock", cfg: RotationConfig{Anchor: "2026-01-05", Pattern: []string{"morning"}}},
		{name: "bad clock", cfg: RotationConfig{
			Anchor:  "2026-01-05",
			Pattern: []string{"m"},
			Phases:  map[string]PhaseClock{"m": {Start: "25:00", End: "14:00"}},
		}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := NewRotation(tt.cfg); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
