package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free JSON Lines backend
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// OutcomeRecord is one rebuild attempt's audit entry.
// Keep it compact and schema-stable.
type OutcomeRecord struct {
	At             time.Time `json:"at"`
	ScheduledCount int       `json:"scheduled"`
	FailedCount    int       `json:"failed"`
	FirstTrigger   time.Time `json:"first_trigger,omitempty"`
	LastTrigger    time.Time `json:"last_trigger,omitempty"`
	Error          string    `json:"error,omitempty"`
	TookMS         int64     `json:"took_ms"`
}
