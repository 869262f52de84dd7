// Package config provides configuration loading and validation.
package config

// Config holds the server configuration.
type Config struct {
	// ListenAddr is the address to listen on.
	// Example: ":8080"
	ListenAddr string `json:"listen_addr" toml:"listen_addr"`

	Logging LoggingConfig `json:"logging" toml:"logging"`
	Auth    AuthConfig    `json:"auth"`
	Store   StoreConfig   `json:"store"`
	Cache   CacheConfig   `json:"cache"`
	Events  EventsConfig  `json:"events"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is one of: debug, info, warn, error
	Level string `json:"level" toml:"level"`
}

// AuthConfig holds token and password hashing settings.
type AuthConfig struct {
	// JWTSecret signs HS256 access tokens. Must be set in production.
	JWTSecret string `json:"jwt_secret" toml:"jwt_secret"`

	// TokenTTLHours is the access token lifetime.
	TokenTTLHours int `json:"token_ttl_hours" toml:"token_ttl_hours"`

	// BcryptCost is the bcrypt cost factor for password hashing.
	BcryptCost int `json:"bcrypt_cost" toml:"bcrypt_cost"`
}

// StoreConfig holds persistence settings.
type StoreConfig struct {
	// Driver is one of: sqlite, memory
	Driver string `json:"driver" toml:"driver"`

	// DataDir is the directory for data files (sqlite db)
	DataDir string `json:"data_dir" toml:"data_dir"`
}

// CacheConfig holds cache settings.
type CacheConfig struct {
	// Driver selects the cache backend (memory).
	Driver string `json:"driver" toml:"driver"`

	// Drivers carries driver-specific config from [cache.drivers.<driver>].
	Drivers map[string]any `json:"drivers" toml:"drivers"`
}

// EventsConfig holds event emitter settings.
type EventsConfig struct {
	// BufferSize is the emitter queue length. When the queue is full,
	// events are dropped with a warning rather than blocking a request.
	BufferSize int `json:"buffer_size" toml:"buffer_size"`
}

// DefaultConfig returns a Config with sensible defaults for local development.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr: ":8080",
		Logging: LoggingConfig{
			Level: "info",
		},
		Auth: AuthConfig{
			JWTSecret:     "",
			TokenTTLHours: 168, // 7 days
			BcryptCost:    12,
		},
		Store: StoreConfig{
			Driver:  "sqlite",
			DataDir: ".sharemeal",
		},
		Cache: CacheConfig{
			Driver: "memory",
		},
		Events: EventsConfig{
			BufferSize: 256,
		},
	}
}

// Redacted returns a copy safe for logging: secrets are masked.
func (c *Config) Redacted() *Config {
	cp := *c
	if cp.Auth.JWTSecret != "" {
		cp.Auth.JWTSecret = "[REDACTED]"
	}
	return &cp
}
