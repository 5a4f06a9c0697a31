// Package config loads and exposes application configuration (TOML).
package config

import (
	"os"

	"github.com/BurntSushi/toml"
)

// Default configuration values used when a field is missing in TOML.
const (
	DefaultConfigPath            = "config.toml"
	DefaultHTTPAddr              = ":8080"
	DefaultOwnerSessionTTL       = "24h"
	DefaultCounterpartSessionTTL = "72h"
	DefaultPGHost                = "127.0.0.1"
	DefaultPGPort                = 5432
	DefaultPGUser                = "postgres"
	DefaultPGDatabase            = "stp"
	DefaultPGSSLMode             = "disable"
	DefaultStorageDriver         = "postgres"
	DefaultStorageTimeout        = "5s"
	DefaultTokenTTL              = "24h"
	DefaultRetentionGrace        = "168h"
	DefaultSweepSchedule         = "@every 1h"
	DefaultPublicHost            = "localhost:8080"
	DefaultSendBuffer            = 128
	DefaultTypingWindow          = "3s"
	DefaultOperationTimeout      = "5s"
	DefaultRateLimitRPS          = 5
	DefaultRateLimitBurst        = 10
)

// Config is the root application configuration loaded from TOML.
type Config struct {
	Log       LogConfig       `toml:"log"`
	Server    ServerConfig    `toml:"server"`
	Auth      AuthConfig      `toml:"auth"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Storage   StorageConfig   `toml:"storage"`
	Tokens    TokensConfig    `toml:"tokens"`
	Links     LinksConfig     `toml:"links"`
	Realtime  RealtimeConfig  `toml:"realtime"`
	RateLimit RateLimitConfig `toml:"ratelimit"`
}

// LogConfig holds logging level, format and an optional JSON file sink.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	File   string `toml:"file"`
}

// ServerConfig holds the HTTP server listen address.
type ServerConfig struct {
	Addr string `toml:"addr"`
}

// AuthConfig holds the JWT secret and the session lifetimes per role.
type AuthConfig struct {
	JWTSecret             string `toml:"jwt_secret"`
	OwnerSessionTTL       string `toml:"owner_session_ttl"`
	CounterpartSessionTTL string `toml:"counterpart_session_ttl"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

// StorageConfig selects the storage backend ("postgres" or "memory").
type StorageConfig struct {
	Driver  string `toml:"driver"`
	Timeout string `toml:"timeout"`
}

// TokensConfig controls access token lifetime and the retention sweep.
type TokensConfig struct {
	TTL            string `toml:"ttl"`
	RetentionGrace string `toml:"retention_grace"`
	SweepSchedule  string `toml:"sweep_schedule"`
	StorageTimeout string `toml:"storage_timeout"`
}

// LinksConfig holds the public host used in contact links.
type LinksConfig struct {
	Host string `toml:"host"`
}

// RealtimeConfig tunes the websocket router.
type RealtimeConfig struct {
	SendBuffer       int    `toml:"send_buffer"`
	TypingWindow     string `toml:"typing_window"`
	OperationTimeout string `toml:"operation_timeout"`
}

// RateLimitConfig bounds requests per client IP on the public validate endpoint.
type RateLimitConfig struct {
	RPS   float64 `toml:"rps"`
	Burst int     `toml:"burst"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Auth: AuthConfig{
			OwnerSessionTTL:       DefaultOwnerSessionTTL,
			CounterpartSessionTTL: DefaultCounterpartSessionTTL,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		Storage: StorageConfig{
			Driver:  DefaultStorageDriver,
			Timeout: DefaultStorageTimeout,
		},
		Tokens: TokensConfig{
			TTL:            DefaultTokenTTL,
			RetentionGrace: DefaultRetentionGrace,
			SweepSchedule:  DefaultSweepSchedule,
			StorageTimeout: DefaultStorageTimeout,
		},
		Links: LinksConfig{
			Host: DefaultPublicHost,
		},
		Realtime: RealtimeConfig{
			SendBuffer:       DefaultSendBuffer,
			TypingWindow:     DefaultTypingWindow,
			OperationTimeout: DefaultOperationTimeout,
		},
		RateLimit: RateLimitConfig{
			RPS:   DefaultRateLimitRPS,
			Burst: DefaultRateLimitBurst,
		},
	}
}

// Load reads and parses the TOML config file at path and applies default values for missing fields.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}
