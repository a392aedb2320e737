package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Empty(t, cfg.AuthTokens)
	assert.Empty(t, cfg.JWTSecret)
	assert.Equal(t, StoreMemory, cfg.StoreBackend)
	assert.Empty(t, cfg.StorePath)
	assert.Equal(t, 10*time.Second, cfg.AuthTimeout)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("SYNC_LISTEN_ADDR", ":9090")
	t.Setenv("SYNC_AUTH_TOKENS", "alice:secret1")
	t.Setenv("SYNC_JWT_SECRET", "jwt-secret")
	t.Setenv("SYNC_STORE_BACKEND", "sqlite")
	t.Setenv("SYNC_STORE_PATH", "/var/lib/sync/changes.db")
	t.Setenv("SYNC_AUTH_TIMEOUT", "30s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, "alice:secret1", cfg.AuthTokens)
	assert.Equal(t, "jwt-secret", cfg.JWTSecret)
	assert.Equal(t, StoreSQLite, cfg.StoreBackend)
	assert.Equal(t, "/var/lib/sync/changes.db", cfg.StorePath)
	assert.Equal(t, 30*time.Second, cfg.AuthTimeout)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "unknown store backend", key: "SYNC_STORE_BACKEND", value: "postgres"},
		{name: "sqlite backend without store path", key: "SYNC_STORE_BACKEND", value: "sqlite"},
		{name: "malformed auth timeout", key: "SYNC_AUTH_TIMEOUT", value: "soon"},
		{name: "negative auth timeout", key: "SYNC_AUTH_TIMEOUT", value: "-5s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}
