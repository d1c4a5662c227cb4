// Package config loads engine configuration from TOML files.
//
// Configuration is optional everywhere: the zero value validates into
// usable defaults, and every field can also be set by CLI flags, which
// take precedence over the file.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Defaults applied by ValidateAndSetDefaults.
const (
	DefaultBudget    = 256 << 20 // transient pool ceiling, bytes
	DefaultAlignment = 256
	DefaultServeAddr = "localhost:8551"
	DefaultLogLevel  = "info"
)

// Config is the engine's file configuration.
type Config struct {
	Memory MemoryConfig `toml:"memory"`
	Log    LogConfig    `toml:"log"`
	Serve  ServeConfig  `toml:"serve"`

	// validated tracks whether ValidateAndSetDefaults has been called.
	validated bool
}

// MemoryConfig bounds the transient memory pool.
type MemoryConfig struct {
	// Budget caps the summed capacity of transient blocks, in bytes.
	Budget uint64 `toml:"budget"`
	// MinAlignment is the placement alignment in bytes; must be a power
	// of two.
	MinAlignment uint64 `toml:"min_alignment"`
	// TrimUnused releases pool blocks left idle by each compiled frame
	// instead of retaining them for later growth.
	TrimUnused bool `toml:"trim_unused"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `toml:"level"`
	// JSON switches the logger to JSON output.
	JSON bool `toml:"json"`
}

// ServeConfig controls the plan inspection server.
type ServeConfig struct {
	Addr string `toml:"addr"`
}

// Load reads a config file. A missing path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := cfg.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ValidateAndSetDefaults checks field values and fills in defaults. It is
// idempotent.
func (c *Config) ValidateAndSetDefaults() error {
	if c.validated {
		return nil
	}

	if c.Memory.Budget == 0 {
		c.Memory.Budget = DefaultBudget
	}
	if c.Memory.MinAlignment == 0 {
		c.Memory.MinAlignment = DefaultAlignment
	}
	if c.Memory.MinAlignment&(c.Memory.MinAlignment-1) != 0 {
		return fmt.Errorf("memory.min_alignment must be a power of two, got %d", c.Memory.MinAlignment)
	}

	switch c.Log.Level {
	case "":
		c.Log.Level = DefaultLogLevel
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}

	if c.Serve.Addr == "" {
		c.Serve.Addr = DefaultServeAddr
	}

	c.validated = true
	return nil
}
