package cattools

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Store drivers understood by StoreConfig.
const (
	DriverFile     = "file"
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// StoreConfig locates the provenance store.
type StoreConfig struct {
	Driver string `yaml:"driver"`
	// Path is the directory of a file store or the database file of a
	// sqlite store.
	Path string `yaml:"path,omitempty"`
	// DSN is the connection string of a postgres store.
	DSN string `yaml:"dsn,omitempty"`
}

// LoggingConfig selects the log format and level.
type LoggingConfig struct {
	// Format is "text" (the default) or "json".
	Format string `yaml:"format,omitempty"`
	Level  string `yaml:"level,omitempty"`
}

// MatchConfig holds defaults for energy match queries.
type MatchConfig struct {
	NodeType  string  `yaml:"node_type,omitempty"`
	Tolerance float64 `yaml:"tolerance,omitempty"`
}

// Config is the YAML configuration of the cattools command and of
// extractors built from it.
type Config struct {
	Store         StoreConfig          `yaml:"store"`
	Logging       LoggingConfig        `yaml:"logging"`
	Magnetization MagnetizationOptions `yaml:"magnetization"`
	Match         MatchConfig          `yaml:"match"`
	// Engines are registered on top of the built-in dispatch table.
	Engines []Engine `yaml:"engines,omitempty"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Store:         StoreConfig{Driver: DriverFile},
		Logging:       LoggingConfig{Format: "text", Level: "info"},
		Magnetization: DefaultMagnetizationOptions(),
		Match:         MatchConfig{Tolerance: DefaultMatchTolerance},
	}
}

// LoadConfigFile loads a configuration from a YAML file. Unset fields keep
// their defaults.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return LoadConfigString(string(data))
}

// LoadConfigString loads a configuration from a YAML string
func LoadConfigString(data string) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(data), cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks if the configuration is usable
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverFile, DriverMemory:
	case DriverSQLite:
		if c.Store.Path == "" && c.Store.DSN == "" {
			return fmt.Errorf("store: sqlite requires a path")
		}
	case DriverPostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("store: postgres requires a dsn")
		}
	default:
		return fmt.Errorf("store: unknown driver %q", c.Store.Driver)
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging: unknown format %q", c.Logging.Format)
	}
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if c.Magnetization.TargetKind == "" || c.Magnetization.TargetOrbital == "" {
		return fmt.Errorf("magnetization: target kind and orbital required")
	}
	if c.Magnetization.Threshold < 0 {
		return fmt.Errorf("magnetization: negative threshold %v", c.Magnetization.Threshold)
	}
	if c.Match.Tolerance < 0 {
		return fmt.Errorf("match: negative tolerance %v", c.Match.Tolerance)
	}
	for _, engine := range c.Engines {
		if err := engine.Validate(); err != nil {
			return fmt.Errorf("engines: %w", err)
		}
	}
	return nil
}

// Logger returns a logger writing to stderr in the configured format.
func (c *Config) Logger() (*slog.Logger, error) {
	level, err := ParseLevel(c.Logging.Level)
	if err != nil {
		return nil, err
	}
	if c.Logging.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})), nil
	}
	return NewLevelLogger(os.Stderr, level), nil
}

// EngineRegistry returns the built-in dispatch table extended with the
// configured engines.
func (c *Config) EngineRegistry() (*Engines, error) {
	engines := DefaultEngines()
	for _, engine := range c.Engines {
		if err := engines.Register(engine); err != nil {
			return nil, err
		}
	}
	return engines, nil
}
