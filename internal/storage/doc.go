package storage

// Package storage persists the scheduling audit trail: one record per
// rebuild attempt, so operators can see when reminders were last
// refreshed and why a refresh failed.
//
// Backends:
//   - File (JSON Lines, dependency-free) — the default
//   - SQLite (build with -tags sqlite)
