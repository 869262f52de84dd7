package config

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/BurntSushi/toml"
)

// LoaderOptions controls how configuration is loaded.
type LoaderOptions struct {
	// ConfigPath is the path to a TOML config file (optional).
	// If provided but file is missing or invalid, loading fails.
	ConfigPath string

	// FlagOverrides are CLI flag values that override config file values.
	FlagOverrides FlagOverrides

	// Logger is used for warning messages (e.g., undecoded keys).
	// If nil, slog.Default() is used.
	Logger *slog.Logger
}

// FlagOverrides holds CLI flag values that override config file values.
type FlagOverrides struct {
	ListenAddr   *string
	LoggingLevel *string
	StoreDriver  *string
	DataDir      *string
	JWTSecret    *string
}

// fileConfig mirrors Config but with pointer sections to detect presence.
type fileConfig struct {
	ListenAddr string `toml:"listen_addr"`

	Logging *LoggingConfig `toml:"logging"`
	Auth    *AuthConfig    `toml:"auth"`
	Store   *StoreConfig   `toml:"store"`
	Cache   *cacheConfig   `toml:"cache"`
	Events  *EventsConfig  `toml:"events"`
}

// cacheConfig holds cache settings from TOML.
type cacheConfig struct {
	Driver  string         `toml:"driver"`
	Drivers map[string]any `toml:"drivers"`
}

// Load loads configuration with the following precedence:
//  1. Start from defaults
//  2. Overlay TOML config file values
//  3. Overlay CLI flags
//  4. Validate enum fields
//
// If ConfigPath is provided but the file is missing, unreadable, or invalid
// TOML, Load returns an error (fail fast). Unknown/undecoded TOML keys
// produce a warning but do not fail the load. The JWT secret may also come
// from the SHAREMEAL_JWT_SECRET environment variable, which sits between
// the file and the flag in precedence.
func Load(opts LoaderOptions) (*Config, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cfg := DefaultConfig()

	if opts.ConfigPath != "" {
		data, err := os.ReadFile(opts.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", opts.ConfigPath, err)
		}
		var fc fileConfig
		md, err := toml.Decode(string(data), &fc)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", opts.ConfigPath, err)
		}

		// Warn about undecoded keys (do not fail)
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			logger.Warn("config file contains undecoded keys", "path", opts.ConfigPath, "keys", keys)
		}

		overlayFileConfig(cfg, &fc)
	}

	if secret := os.Getenv("SHAREMEAL_JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}

	overlayFlags(cfg, opts.FlagOverrides)

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// overlayFileConfig applies TOML file values onto cfg.
func overlayFileConfig(cfg *Config, fc *fileConfig) {
	if fc.ListenAddr != "" {
		cfg.ListenAddr = fc.ListenAddr
	}

	if fc.Logging != nil && fc.Logging.Level != "" {
		cfg.Logging.Level = fc.Logging.Level
	}

	if fc.Auth != nil {
		if fc.Auth.JWTSecret != "" {
			cfg.Auth.JWTSecret = fc.Auth.JWTSecret
		}
		if fc.Auth.TokenTTLHours != 0 {
			cfg.Auth.TokenTTLHours = fc.Auth.TokenTTLHours
		}
		if fc.Auth.BcryptCost != 0 {
			cfg.Auth.BcryptCost = fc.Auth.BcryptCost
		}
	}

	if fc.Store != nil {
		if fc.Store.Driver != "" {
			cfg.Store.Driver = fc.Store.Driver
		}
		if fc.Store.DataDir != "" {
			cfg.Store.DataDir = fc.Store.DataDir
		}
	}

	if fc.Cache != nil {
		if fc.Cache.Driver != "" {
			cfg.Cache.Driver = fc.Cache.Driver
		}
		if len(fc.Cache.Drivers) > 0 {
			cfg.Cache.Drivers = fc.Cache.Drivers
		}
	}

	if fc.Events != nil && fc.Events.BufferSize != 0 {
		cfg.Events.BufferSize = fc.Events.BufferSize
	}
}

// overlayFlags applies CLI flag values onto cfg.
func overlayFlags(cfg *Config, f FlagOverrides) {
	if f.ListenAddr != nil && *f.ListenAddr != "" {
		cfg.ListenAddr = *f.ListenAddr
	}
	if f.LoggingLevel != nil && *f.LoggingLevel != "" {
		cfg.Logging.Level = *f.LoggingLevel
	}
	if f.StoreDriver != nil && *f.StoreDriver != "" {
		cfg.Store.Driver = *f.StoreDriver
	}
	if f.DataDir != nil && *f.DataDir != "" {
		cfg.Store.DataDir = *f.DataDir
	}
	if f.JWTSecret != nil && *f.JWTSecret != "" {
		cfg.Auth.JWTSecret = *f.JWTSecret
	}
}

// validate checks enum-like config fields and returns an error for invalid values.
func validate(cfg *Config) error {
	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return fmt.Errorf("invalid logging.level %q: must be one of debug, info, warn, error", cfg.Logging.Level)
	}

	switch cfg.Store.Driver {
	case "sqlite", "memory":
		// valid
	default:
		return fmt.Errorf("invalid store.driver %q: must be one of sqlite, memory", cfg.Store.Driver)
	}

	switch cfg.Cache.Driver {
	case "", "memory":
		// valid (empty defaults to memory)
	default:
		return fmt.Errorf("invalid cache.driver %q: only 'memory' is supported in this release", cfg.Cache.Driver)
	}

	if cfg.Store.Driver == "sqlite" && cfg.Store.DataDir == "" {
		return fmt.Errorf("store.data_dir must be set when store.driver is sqlite")
	}

	if cfg.Auth.TokenTTLHours <= 0 {
		return fmt.Errorf("auth.token_ttl_hours must be positive")
	}

	return nil
}
