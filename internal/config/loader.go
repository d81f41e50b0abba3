package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads, verifies and parses configuration from a file. A directory is
// accepted and resolved to its config.yaml. When a .checksums manifest sits
// next to the file, the file must match its recorded BLAKE3 hash.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
		if _, err := os.Stat(absPath); err != nil {
			return nil, fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
		}
	}

	if err := verifyConfigHash(absPath); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}
	return cfg, nil
}

// Parse decodes YAML on top of Defaults, expands ${VAR} references, and validates.
func Parse(data []byte) (*Config, error) {
	cfg := Defaults()
	if err := yaml.Unmarshal([]byte(interpolateEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	applyConfigDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyConfigDefaults fills values that YAML explicitly zeroed.
func applyConfigDefaults(cfg *Config) {
	defaults := Defaults()

	if cfg.Service.Name == "" {
		cfg.Service.Name = defaults.Service.Name
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = defaults.Service.LogLevel
	}
	if cfg.Service.LogFormat == "" {
		cfg.Service.LogFormat = defaults.Service.LogFormat
	}
	if cfg.Owner.Kind == "" {
		cfg.Owner.Kind = defaults.Owner.Kind
	}
	if cfg.Owner.Name == "" {
		cfg.Owner.Name = defaults.Owner.Name
	}
	if cfg.Owner.EventBuffer <= 0 {
		cfg.Owner.EventBuffer = defaults.Owner.EventBuffer
	}
	if cfg.API.Listen == "" {
		cfg.API.Listen = defaults.API.Listen
	}
	if cfg.Journal.Path == "" {
		cfg.Journal.Path = defaults.Journal.Path
	}
	if cfg.Demo.Interval <= 0 {
		cfg.Demo.Interval = defaults.Demo.Interval
	}
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is (not expanded).
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	switch strings.ToLower(cfg.Service.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("service.log_level: unknown level %q", cfg.Service.LogLevel)
	}
	switch cfg.Service.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("service.log_format: must be json or text, got %q", cfg.Service.LogFormat)
	}

	switch cfg.Owner.Kind {
	case OwnerLoop, OwnerTUI:
	default:
		return fmt.Errorf("owner.kind: must be %q or %q, got %q", OwnerLoop, OwnerTUI, cfg.Owner.Kind)
	}

	if cfg.API.Enabled {
		if m := envVarPattern.FindStringSubmatch(cfg.API.Listen); m != nil {
			return fmt.Errorf("api.listen: environment variable %s is not set", m[1])
		}
		if m := envVarPattern.FindStringSubmatch(cfg.API.Token); m != nil {
			return fmt.Errorf("api.token: environment variable %s is not set", m[1])
		}
	}
	if cfg.Journal.Enabled {
		if m := envVarPattern.FindStringSubmatch(cfg.Journal.Path); m != nil {
			return fmt.Errorf("journal.path: environment variable %s is not set", m[1])
		}
	}
	if cfg.Demo.Producers < 0 {
		return fmt.Errorf("demo.producers: must be >= 0, got %d", cfg.Demo.Producers)
	}
	if cfg.Demo.FailEvery < 0 {
		return fmt.Errorf("demo.fail_every: must be >= 0, got %d", cfg.Demo.FailEvery)
	}
	return nil
}
