package config

// Notification settings are versioned and persisted separately from the
// daemon config: they are user data, mutated by UI collaborators and
// only ever read by the scheduling core.
//
// Version history:
//
//	0 (implicit): flat booleans/integers from the first release
//	1: grouped sections, no presence follow-up and no quiet hours
//	2: current shape
//
// Upgrades are one-directional. A file written by a newer version is
// rejected, never downgraded.

const SettingsVersion = 2

type Settings struct {
	Version  int              `json:"version" yaml:"version"`
	Entry    EntrySettings    `json:"entry" yaml:"entry"`
	Presence PresenceSettings `json:"presence" yaml:"presence"`
	Exit     ExitSettings     `json:"exit" yaml:"exit"`
	Global   GlobalSettings   `json:"global" yaml:"global"`
}

// EntrySettings controls reminders before a shift starts.
type EntrySettings struct {
	Enabled             bool `json:"enabled" yaml:"enabled"`
	OffsetMinutes       int  `json:"offset_minutes" yaml:"offset_minutes"`
	SecondEnabled       bool `json:"second_enabled" yaml:"second_enabled"`
	SecondOffsetMinutes int  `json:"second_offset_minutes" yaml:"second_offset_minutes"`
	// AtExactTime adds one more reminder at the start instant itself
	// when OffsetMinutes is non-zero.
	AtExactTime bool `json:"at_exact_time" yaml:"at_exact_time"`
}

// PresenceSettings controls reminders after a shift has begun.
type PresenceSettings struct {
	Enabled              bool `json:"enabled" yaml:"enabled"`
	OffsetMinutes        int  `json:"offset_minutes" yaml:"offset_minutes"`
	FollowupEnabled      bool `json:"followup_enabled" yaml:"followup_enabled"`
	FollowupDelayMinutes int  `json:"followup_delay_minutes" yaml:"followup_delay_minutes"`
}

// ExitSettings controls end-of-shift reminders.
type ExitSettings struct {
	Enabled        bool `json:"enabled" yaml:"enabled"`
	AdvanceMinutes int  `json:"advance_minutes" yaml:"advance_minutes"`
	AtExactTime    bool `json:"at_exact_time" yaml:"at_exact_time"`
}

type GlobalSettings struct {
	MaxPerDay     int        `json:"max_per_day" yaml:"max_per_day"`
	QuietHours    QuietHours `json:"quiet_hours" yaml:"quiet_hours"`
	PreDayEnabled bool       `json:"pre_day_enabled" yaml:"pre_day_enabled"`
	PreDayHours   int        `json:"pre_day_hours" yaml:"pre_day_hours"`
}

// QuietHours suppresses shift reminders whose trigger falls inside the
// window. Start/End are "HH:MM"; End <= Start wraps past midnight.
type QuietHours struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Start   string `json:"start" yaml:"start"`
	End     string `json:"end" yaml:"end"`
}

// DefaultSettings mirror what the first-run UI would persist.
func DefaultSettings() Settings {
	return Settings{
		Version: SettingsVersion,
		Entry: EntrySettings{
			Enabled:       true,
			OffsetMinutes: 60,
		},
		Presence: PresenceSettings{
			Enabled:       false,
			OffsetMinutes: 15,
		},
		Exit: ExitSettings{
			Enabled:        false,
			AdvanceMinutes: 15,
		},
		Global: GlobalSettings{
			MaxPerDay:     6,
			PreDayEnabled: true,
			PreDayHours:   12,
			QuietHours:    QuietHours{Start: "23:00", End: "06:00"},
		},
	}
}

// legacySettings is the pre-versioned flat shape. It is a read-only
// migration source and is never written back.
type legacySettings struct {
	RemindersOn   bool `json:"reminders_on" yaml:"reminders_on"`
	MinutesBefore int  `json:"minutes_before" yaml:"minutes_before"`
	RemindAtStart bool `json:"remind_at_start" yaml:"remind_at_start"`
	EndWarning    bool `json:"end_warning" yaml:"end_warning"`
	EndMinutes    int  `json:"end_minutes" yaml:"end_minutes"`
	DayBefore     bool `json:"day_before" yaml:"day_before"`
	DailyLimit    int  `json:"daily_limit" yaml:"daily_limit"`
}

// settingsV1 is version 1: grouped sections, but no presence follow-up
// and no quiet hours yet.
type settingsV1 struct {
	Version int `json:"version" yaml:"version"`
	Entry   struct {
		Enabled       bool `json:"enabled" yaml:"enabled"`
		OffsetMinutes int  `json:"offset_minutes" yaml:"offset_minutes"`
		AtExactTime   bool `json:"at_exact_time" yaml:"at_exact_time"`
	} `json:"entry" yaml:"entry"`
	Exit struct {
		Enabled        bool `json:"enabled" yaml:"enabled"`
		AdvanceMinutes int  `json:"advance_minutes" yaml:"advance_minutes"`
	} `json:"exit" yaml:"exit"`
	Global struct {
		MaxPerDay     int  `json:"max_per_day" yaml:"max_per_day"`
		PreDayEnabled bool `json:"pre_day_enabled" yaml:"pre_day_enabled"`
		PreDayHours   int  `json:"pre_day_hours" yaml:"pre_day_hours"`
	} `json:"global" yaml:"global"`
}

func upgradeLegacy(l legacySettings) Settings {
	s := DefaultSettings()
	s.Entry.Enabled = l.RemindersOn
	if l.MinutesBefore > 0 {
		s.Entry.OffsetMinutes = l.MinutesBefore
	}
	s.Entry.AtExactTime = l.RemindAtStart
	s.Exit.Enabled = l.EndWarning
	if l.EndMinutes > 0 {
		s.Exit.AdvanceMinutes = l.EndMinutes
	}
	s.Global.PreDayEnabled = l.DayBefore
	if l.DailyLimit > 0 {
		s.Global.MaxPerDay = l.DailyLimit
	}
	return s
}

func upgradeV1(v1 settingsV1) Settings {
	s := DefaultSettings()
	s.Entry.Enabled = v1.Entry.Enabled
	if v1.Entry.OffsetMinutes > 0 {
		s.Entry.OffsetMinutes = v1.Entry.OffsetMinutes
	}
	s.Entry.AtExactTime = v1.Entry.AtExactTime
	s.Exit.Enabled = v1.Exit.Enabled
	if v1.Exit.AdvanceMinutes > 0 {
		s.Exit.AdvanceMinutes = v1.Exit.AdvanceMinutes
	}
	if v1.Global.MaxPerDay > 0 {
		s.Global.MaxPerDay = v1.Global.MaxPerDay
	}
	s.Global.PreDayEnabled = v1.Global.PreDayEnabled
	if v1.Global.PreDayHours > 0 {
		s.Global.PreDayHours = v1.Global.PreDayHours
	}
	return s
}

// normalize clamps obviously broken values instead of failing the load;
// a misconfigured settings file should degrade, not crash reminders.
func (s *Settings) normalize() {
	if s.Entry.OffsetMinutes < 0 {
		s.Entry.OffsetMinutes = 0
	}
	if s.Entry.SecondOffsetMinutes < 0 {
		s.Entry.SecondOffsetMinutes = 0
	}
	if s.Presence.OffsetMinutes < 0 {
		s.Presence.OffsetMinutes = 0
	}
	if s.Presence.FollowupDelayMinutes < 0 {
		s.Presence.FollowupDelayMinutes = 0
	}
	if s.Exit.AdvanceMinutes < 0 {
		s.Exit.AdvanceMinutes = 0
	}
	if s.Global.MaxPerDay < 0 {
		s.Global.MaxPerDay = 0
	}
	if s.Global.PreDayHours <= 0 {
		s.Global.PreDayHours = 12
	}
}
