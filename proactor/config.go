package proactor

import (
	"os"
	"time"

	"github.com/pelletier/go-toml"
	"github.com/rs/zerolog"
)

// defaultTimeout is the proactor's default poll timeout, matching the
// source header's DEFAULT_MAX_TIMEOUT_MS.
const defaultTimeout = 250 * time.Millisecond

// Config holds the tunables used at Proactor construction, mirroring
// facade.Config/facade.DefaultConfig() in the source repository.
type Config struct {
	// Timeout is the poll timeout passed to the underlying PollSet.
	Timeout time.Duration
	// MaxBackoff caps the adaptive idle-sleep schedule; defaults to Timeout.
	MaxBackoff time.Duration
	// Logger receives structured diagnostics from the poll and completion
	// loops. The zero value (zerolog.Logger{}) is a working no-op logger.
	Logger zerolog.Logger
	// WorkerEnabled mirrors the source header's `worker` constructor
	// argument: when true (the default), New/NewWithTimeout spawn the
	// poll/dispatch loop on its own goroutine immediately, equivalent to
	// calling Start() right after construction. When false, the embedder
	// must call Start() (or drive Poll() itself) explicitly.
	WorkerEnabled bool
}

// DefaultConfig returns the proactor's default tunables.
func DefaultConfig() Config {
	return Config{
		Timeout:       defaultTimeout,
		MaxBackoff:    defaultTimeout,
		Logger:        zerolog.Nop(),
		WorkerEnabled: true,
	}
}

// tomlConfig mirrors Config's file-overridable fields.
type tomlConfig struct {
	TimeoutMS     int64 `toml:"timeout_ms"`
	MaxBackoffMS  int64 `toml:"max_backoff_ms"`
	WorkerEnabled *bool `toml:"worker_enabled"`
}

// LoadConfigTOML overlays cfg with values found in the TOML file at path,
// for embedders that want file-driven tuning of Timeout/MaxBackoff without
// a recompile.
func LoadConfigTOML(path string, cfg Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	var tc tomlConfig
	if err := toml.Unmarshal(data, &tc); err != nil {
		return cfg, err
	}
	if tc.TimeoutMS > 0 {
		cfg.Timeout = time.Duration(tc.TimeoutMS) * time.Millisecond
	}
	if tc.MaxBackoffMS > 0 {
		cfg.MaxBackoff = time.Duration(tc.MaxBackoffMS) * time.Millisecond
	}
	if tc.WorkerEnabled != nil {
		cfg.WorkerEnabled = *tc.WorkerEnabled
	}
	return cfg, nil
}
