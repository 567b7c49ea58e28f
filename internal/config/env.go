package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Slot backends for the persisted active session.
const (
	SlotPreferences = "preferences"
	SlotFile        = "file"
)

// MinTickInterval is the shortest countdown refresh period accepted.
const MinTickInterval = time.Second

// Runtime holds process settings read from the environment.
type Runtime struct {
	DataDir      string        `env:"CATCAFE_DATA_DIR"`
	SlotBackend  string        `env:"CATCAFE_SLOT_BACKEND"  envDefault:"preferences"`
	TickInterval time.Duration `env:"CATCAFE_TICK_INTERVAL" envDefault:"1s"`
	AwayLimit    time.Duration `env:"CATCAFE_AWAY_LIMIT"    envDefault:"5s"`
	IdleAfter    time.Duration `env:"CATCAFE_IDLE_AFTER"    envDefault:"2m"`
	History      bool          `env:"CATCAFE_HISTORY"       envDefault:"true"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// LoadRuntime parses and validates the runtime configuration. An empty data
// directory falls back to defaultDataDir.
func LoadRuntime(defaultDataDir string) (Runtime, error) {
	var cfg Runtime
	if err := ParseEnv(&cfg); err != nil {
		return Runtime{}, err
	}
	cfg.SlotBackend = strings.ToLower(strings.TrimSpace(cfg.SlotBackend))
	switch cfg.SlotBackend {
	case SlotPreferences, SlotFile:
	default:
		return Runtime{}, fmt.Errorf("unknown slot backend %q", cfg.SlotBackend)
	}
	if cfg.TickInterval < MinTickInterval {
		return Runtime{}, fmt.Errorf("tick interval must be at least %v", MinTickInterval)
	}
	if cfg.AwayLimit < 0 {
		return Runtime{}, fmt.Errorf("away limit must not be negative")
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = defaultDataDir
	}
	cfg.DataDir = filepath.Clean(cfg.DataDir)
	return cfg, nil
}

// SlotPath is the file used by the file slot backend.
func (cfg Runtime) SlotPath() string {
	return filepath.Join(cfg.DataDir, "active_timer.yaml")
}

// HistoryPath is the SQLite database holding finished sessions.
func (cfg Runtime) HistoryPath() string {
	return filepath.Join(cfg.DataDir, "history.db")
}
