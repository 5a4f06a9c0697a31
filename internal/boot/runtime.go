// Package boot provides runtime configuration parsed from the loaded config.
package boot

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dmirchev92/stp/internal/config"
)

// RuntimeConfig holds parsed runtime settings (JWT, server address, timeouts, link host).
// Values may be overridden by environment variables (HTTP_ADDR, JWT_SECRET, PUBLIC_HOST).
type RuntimeConfig struct {
	JwtSecret             string
	OwnerSessionTTL       time.Duration
	CounterpartSessionTTL time.Duration
	ServerAddr            string
	PublicHost            string

	StorageDriver  string
	StorageTimeout time.Duration

	TokenTTL            time.Duration
	TokenStorageTimeout time.Duration
	RetentionGrace      time.Duration
	SweepSchedule       string

	SendBuffer       int
	TypingWindow     time.Duration
	OperationTimeout time.Duration

	RateLimitRPS   float64
	RateLimitBurst int
}

// ProvideRuntimeConfig builds RuntimeConfig from the given config and applies env overrides.
func ProvideRuntimeConfig(cfg config.Config) (*RuntimeConfig, error) {
	ret := &RuntimeConfig{
		JwtSecret:      cfg.Auth.JWTSecret,
		ServerAddr:     cfg.Server.Addr,
		PublicHost:     cfg.Links.Host,
		StorageDriver:  strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)),
		SweepSchedule:  cfg.Tokens.SweepSchedule,
		SendBuffer:     cfg.Realtime.SendBuffer,
		RateLimitRPS:   cfg.RateLimit.RPS,
		RateLimitBurst: cfg.RateLimit.Burst,
	}

	if value := os.Getenv("HTTP_ADDR"); value != "" {
		ret.ServerAddr = value
	}
	if value := os.Getenv("JWT_SECRET"); value != "" {
		ret.JwtSecret = value
	}
	if value := os.Getenv("PUBLIC_HOST"); value != "" {
		ret.PublicHost = value
	}

	if strings.TrimSpace(ret.JwtSecret) == "" {
		return nil, errors.New("jwt secret is required")
	}
	switch ret.StorageDriver {
	case "postgres", "memory":
	default:
		return nil, fmt.Errorf("unknown storage driver: %q (use: postgres, memory)", cfg.Storage.Driver)
	}

	durations := []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"auth.owner_session_ttl", cfg.Auth.OwnerSessionTTL, &ret.OwnerSessionTTL},
		{"auth.counterpart_session_ttl", cfg.Auth.CounterpartSessionTTL, &ret.CounterpartSessionTTL},
		{"storage.timeout", cfg.Storage.Timeout, &ret.StorageTimeout},
		{"tokens.ttl", cfg.Tokens.TTL, &ret.TokenTTL},
		{"tokens.storage_timeout", cfg.Tokens.StorageTimeout, &ret.TokenStorageTimeout},
		{"tokens.retention_grace", cfg.Tokens.RetentionGrace, &ret.RetentionGrace},
		{"realtime.typing_window", cfg.Realtime.TypingWindow, &ret.TypingWindow},
		{"realtime.operation_timeout", cfg.Realtime.OperationTimeout, &ret.OperationTimeout},
	}
	for _, d := range durations {
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.name, err)
		}
		if parsed <= 0 {
			return nil, fmt.Errorf("invalid %s: must be positive", d.name)
		}
		*d.dst = parsed
	}

	if ret.SendBuffer <= 0 {
		ret.SendBuffer = config.DefaultSendBuffer
	}
	return ret, nil
}
