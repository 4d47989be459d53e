package timeline

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// OffPhase marks non-working days in a rotation pattern.
const OffPhase = "off"

// PhaseClock holds the wall-clock bounds of a phase, e.g. "22:00" to
// "06:00". An end at or before the start means the phase crosses
// midnight and ends on the next civil day.
type PhaseClock struct {
	Start string
	End   string
}

// RotationConfig describes a repeating shift system.
//
// Pattern lists one phase name per day, cycling from Anchor. "-" and
// "off" both mean an off day. Example continental quick rotation:
//
//	pattern: [morning, morning, evening, evening, night, night, "-", "-"]
type RotationConfig struct {
	SystemID string
	Timezone string
	// Anchor is the civil date ("2006-01-02") pattern index zero falls on.
	Anchor  string
	Pattern []string
	Phases  map[string]PhaseClock
}

// Rotation is a deterministic Provider over a RotationConfig.
type Rotation struct {
	systemID string
	loc      *time.Location
	anchor   time.Time // noon-anchored to stay DST-safe in day arithmetic
	pattern  []string
	phases   map[string]PhaseClock
}

var ErrUnknownSystem = errors.New("unknown shift system")

func NewRotation(cfg RotationConfig) (*Rotation, error) {
	if len(cfg.Pattern) == 0 {
		return nil, errors.New("rotation pattern is empty")
	}
	loc := time.UTC
	if tz := strings.TrimSpace(cfg.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("rotation timezone: %w", err)
		}
		loc = l
	}
	anchorDate, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(cfg.Anchor), loc)
	if err != nil {
		return nil, fmt.Errorf("rotation anchor: %w", err)
	}

	pattern := make([]string, len(cfg.Pattern))
	for i, p := range cfg.Pattern {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" || p == "-" {
			p = OffPhase
		}
		pattern[i] = p
	}
	phases := map[string]PhaseClock{}
	for name, clk := range cfg.Phases {
		name = strings.ToLower(strings.TrimSpace(name))
		if _, _, err := parseClock(clk.Start); err != nil {
			return nil, fmt.Errorf("phase %q start: %w", name, err)
		}
		if _, _, err := parseClock(clk.End); err != nil {
			return nil, fmt.Errorf("phase %q end: %w", name, err)
		}
		phases[name] = clk
	}
	for _, p := range pattern {
		if p == OffPhase {
			continue
		}
		if _, ok := phases[p]; !ok {
			return nil, fmt.Errorf("pattern phase %q has no clock", p)
		}
	}

	return &Rotation{
		systemID: strings.TrimSpace(cfg.SystemID),
		loc:      loc,
		anchor:   noonOf(anchorDate, loc),
		pattern:  pattern,
		phases:   phases,
	}, nil
}

func (r *Rotation) Location() *time.Location { return r.loc }

func (r *Rotation) Generate(systemID string, from time.Time, days int) ([]Entry, error) {
	if systemID != "" && r.systemID != "" && systemID != r.systemID {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSystem, systemID)
	}
	if days <= 0 {
		return nil, nil
	}

	out := make([]Entry, 0, days)
	y, m, d := from.In(r.loc).Date()
	for i := 0; i < days; i++ {
		date := time.Date(y, m, d+i, 0, 0, 0, 0, r.loc)
		phase := r.phaseFor(date)
		out = append(out, Entry{
			Date:  date,
			Phase: phase,
			Work:  phase != OffPhase,
		})
	}
	return out, nil
}

func (r *Rotation) ExactTimes(date time.Time, phase string) (Times, bool) {
	clk, ok := r.phases[strings.ToLower(strings.TrimSpace(phase))]
	if !ok {
		return Times{}, false
	}
	y, m, d := date.In(r.loc).Date()
	sh, sm, _ := parseClock(clk.Start)
	eh, em, _ := parseClock(clk.End)

	start := time.Date(y, m, d, sh, sm, 0, 0, r.loc)
	end := time.Date(y, m, d, eh, em, 0, 0, r.loc)
	if !end.After(start) {
		// Cross-midnight phase: ends on the next civil day.
		end = time.Date(y, m, d+1, eh, em, 0, 0, r.loc)
	}
	return Times{Start: start, End: end}, true
}

func (r *Rotation) phaseFor(date time.Time) string {
	n := len(r.pattern)
	days := daysBetween(r.anchor, noonOf(date, r.loc))
	idx := ((days % n) + n) % n
	return r.pattern[idx]
}

// daysBetween counts civil days from a to b; both must be noon-anchored
// so DST shifts of an hour cannot skew the division.
func daysBetween(a, b time.Time) int {
	return int(b.Sub(a).Round(24*time.Hour) / (24 * time.Hour))
}

func noonOf(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 12, 0, 0, 0, loc)
}

func parseClock(s string) (hour, minute int, err error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}
