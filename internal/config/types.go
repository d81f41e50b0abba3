package config

import "time"

// Config represents the complete affinity configuration.
type Config struct {
	Service ServiceConfig `yaml:"service"`
	Owner   OwnerConfig   `yaml:"owner"`
	API     APIConfig     `yaml:"api,omitempty"`
	Journal JournalConfig `yaml:"journal,omitempty"`
	Demo    DemoConfig    `yaml:"demo,omitempty"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Owner kinds.
const (
	OwnerLoop = "loop" // plain owner goroutine (ownerloop)
	OwnerTUI  = "tui"  // Bubble Tea event loop
)

// OwnerConfig selects and tunes the owner host.
type OwnerConfig struct {
	Kind         string `yaml:"kind"`
	Name         string `yaml:"name"`
	LockOSThread bool   `yaml:"lock_os_thread"`
	// DesignMode runs every dispatch in place, as in a preview context with
	// no real owner.
	DesignMode bool `yaml:"design_mode"`
	// PublishDispatches emits an event per dispatch, not just lifecycle events.
	PublishDispatches bool `yaml:"publish_dispatches"`
	EventBuffer       int  `yaml:"event_buffer"`
}

// APIConfig defines HTTP API server settings.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	// Token is an optional bearer token for /ping and /failures, usually
	// supplied as ${VAR}.
	Token string `yaml:"token,omitempty"`
}

// JournalConfig defines the SQLite failure journal.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// DemoConfig drives the background producers used by `affinity start`.
type DemoConfig struct {
	Producers int           `yaml:"producers"`
	Interval  time.Duration `yaml:"interval"`
	// FailEvery makes every Nth update fail, exercising the failure path.
	// Zero disables it.
	FailEvery int `yaml:"fail_every"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "affinity",
			LogLevel:  "info",
			LogFormat: "json",
		},
		Owner: OwnerConfig{
			Kind:         OwnerLoop,
			Name:         "main",
			LockOSThread: true,
			EventBuffer:  256,
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8080",
		},
		Journal: JournalConfig{
			Enabled: false,
			Path:    "./data/journal.db",
		},
		Demo: DemoConfig{
			Producers: 2,
			Interval:  time.Second,
		},
	}
}
