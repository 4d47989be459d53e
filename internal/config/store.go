package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	yaml "go.yaml.in/yaml/v3"

	logx "shiftwatch/pkg/logx"
)

// ErrSettingsTooNew is returned when the settings file was written by a
// newer release. Downgrading is never attempted.
var ErrSettingsTooNew = errors.New("settings file version is newer than this build")

// SettingsStore loads and persists the versioned notification settings.
//
// Migration contract:
//   - legacy flat settings are read exactly once, guarded by a
//     persisted marker file, and are never modified or deleted;
//   - older versioned shapes are upgraded in one direction only and the
//     upgraded shape is written back under the current version.
type SettingsStore struct {
	mu         sync.Mutex
	path       string
	legacyPath string
	log        logx.Logger
}

func NewSettingsStore(path, legacyPath string, log logx.Logger) *SettingsStore {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &SettingsStore{path: path, legacyPath: legacyPath, log: log}
}

// Load returns the current settings, creating defaults or running the
// one-time legacy migration as needed.
func (s *SettingsStore) Load() (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.path)
	switch {
	case err == nil:
		return s.loadVersioned(b)
	case os.IsNotExist(err):
		return s.firstLoad()
	default:
		return Settings{}, err
	}
}

// Save persists the settings atomically under the current version.
func (s *SettingsStore) Save(set Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(set)
}

func (s *SettingsStore) loadVersioned(b []byte) (Settings, error) {
	var probe struct {
		Version int `yaml:"version"`
	}
	if err := yaml.Unmarshal(b, &probe); err != nil {
		return Settings{}, fmt.Errorf("settings parse: %w", err)
	}

	switch {
	case probe.Version > SettingsVersion:
		return Settings{}, fmt.Errorf("%w: %d > %d", ErrSettingsTooNew, probe.Version, SettingsVersion)

	case probe.Version == SettingsVersion:
		var set Settings
		if err := yaml.Unmarshal(b, &set); err != nil {
			return Settings{}, fmt.Errorf("settings parse: %w", err)
		}
		set.normalize()
		return set, nil

	case probe.Version == 1:
		var v1 settingsV1
		if err := yaml.Unmarshal(b, &v1); err != nil {
			return Settings{}, fmt.Errorf("settings v1 parse: %w", err)
		}
		set := upgradeV1(v1)
		set.normalize()
		if err := s.saveLocked(set); err != nil {
			return Settings{}, err
		}
		s.log.Info("settings upgraded", logx.Int("from", 1), logx.Int("to", SettingsVersion))
		return set, nil

	default:
		return Settings{}, fmt.Errorf("settings file has no usable version (%d)", probe.Version)
	}
}

func (s *SettingsStore) firstLoad() (Settings, error) {
	if s.legacyPath != "" && !s.migrated() {
		if b, err := os.ReadFile(s.legacyPath); err == nil {
			var legacy legacySettings
			if err := yaml.Unmarshal(b, &legacy); err != nil {
				return Settings{}, fmt.Errorf("legacy settings parse: %w", err)
			}
			set := upgradeLegacy(legacy)
			set.normalize()
			if err := s.saveLocked(set); err != nil {
				return Settings{}, err
			}
			if err := s.writeMarker(); err != nil {
				return Settings{}, err
			}
			// The legacy file stays untouched.
			s.log.Info("legacy settings migrated", logx.String("from", s.legacyPath), logx.String("to", s.path))
			return set, nil
		}
	}

	set := DefaultSettings()
	if err := s.saveLocked(set); err != nil {
		return Settings{}, err
	}
	return set, nil
}

func (s *SettingsStore) saveLocked(set Settings) error {
	set.Version = SettingsVersion
	b, err := yaml.Marshal(set)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *SettingsStore) markerPath() string { return s.path + ".migrated" }

func (s *SettingsStore) migrated() bool {
	_, err := os.Stat(s.markerPath())
	return err == nil
}

func (s *SettingsStore) writeMarker() error {
	return os.WriteFile(s.markerPath(), []byte(time.Now().UTC().Format(time.RFC3339)+"\n"), 0o644)
}
