package config

// Config is the daemon configuration (JSON or YAML, strict keys).
//
// Notification settings live in a separate versioned file (see
// Settings / Store); this struct only wires the process together.
type Config struct {
	Logging  LoggingConfig  `json:"logging"`
	Storage  *StorageConfig `json:"storage,omitempty"`
	Delivery DeliveryConfig `json:"delivery"`
	Shift    ShiftConfig    `json:"shift"`
	Schedule ScheduleConfig `json:"schedule"`

	// SettingsPath points at the versioned notification settings file.
	SettingsPath string `json:"settings_path"`
	// LegacySettingsPath, when set, is consulted once for migration of
	// pre-versioned flat settings. The legacy file is never modified.
	LegacySettingsPath string `json:"legacy_settings_path,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig controls the optional audit persistence layer.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./shiftwatch_store" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// DeliveryConfig selects the reminder delivery backend.
//
// Driver values: "local" (default; timer-based, logs to the console),
// "telegram" (timed sends to a chat with an acknowledge button).
type DeliveryConfig struct {
	Driver   string            `json:"driver"`
	Telegram *TelegramDelivery `json:"telegram,omitempty"`
}

type TelegramDelivery struct {
	Token  string `json:"token"`
	ChatID int64  `json:"chat_id"`
	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

// ShiftConfig describes the rotation the timeline is generated from.
type ShiftConfig struct {
	System  string                `json:"system"`
	Anchor  string                `json:"anchor"` // "2006-01-02"
	Pattern []string              `json:"pattern"`
	Phases  map[string]PhaseHours `json:"phases"`
}

type PhaseHours struct {
	Start string `json:"start"` // "06:00"
	End   string `json:"end"`   // "14:00"; end <= start crosses midnight
}

// ScheduleConfig controls the scheduling coordinator.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type ScheduleConfig struct {
	Timezone      string `json:"timezone"`
	LookaheadDays int    `json:"lookahead_days"`
	// Debounce is the quiet period RebuildDebounced waits for.
	Debounce string `json:"debounce,omitempty"`
	// RatePerSec throttles delivery-port submissions during a rebuild.
	RatePerSec int `json:"rate_per_sec,omitempty"`
	// RefreshCron re-runs a full rebuild on a schedule (default nightly).
	RefreshCron string `json:"refresh_cron,omitempty"`
}
