package boot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmirchev92/stp/internal/config"
)

func TestProvideRuntimeConfigDefaults(t *testing.T) {
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("PUBLIC_HOST", "")

	cfg := config.Default()
	cfg.Auth.JWTSecret = "secret"

	rc, err := ProvideRuntimeConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, rc.TokenTTL)
	assert.Equal(t, 168*time.Hour, rc.RetentionGrace)
	assert.Equal(t, 5*time.Second, rc.TokenStorageTimeout)
	assert.Equal(t, "postgres", rc.StorageDriver)
	assert.Equal(t, config.DefaultHTTPAddr, rc.ServerAddr)
}

func TestProvideRuntimeConfigEnvOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":7000")
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("PUBLIC_HOST", "chat.example.com")

	rc, err := ProvideRuntimeConfig(config.Default())
	require.NoError(t, err)
	assert.Equal(t, ":7000", rc.ServerAddr)
	assert.Equal(t, "from-env", rc.JwtSecret)
	assert.Equal(t, "chat.example.com", rc.PublicHost)
}

func TestProvideRuntimeConfigErrors(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"missing secret", func(c *config.Config) { c.Auth.JWTSecret = "" }},
		{"bad driver", func(c *config.Config) { c.Storage.Driver = "sqlite" }},
		{"bad ttl", func(c *config.Config) { c.Tokens.TTL = "soon" }},
		{"zero window", func(c *config.Config) { c.Realtime.TypingWindow = "0s" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Auth.JWTSecret = "secret"
			tt.mutate(&cfg)
			_, err := ProvideRuntimeConfig(cfg)
			assert.Error(t, err)
		})
	}
}
