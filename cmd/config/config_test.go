package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SERVER_PORT", "")
	t.Setenv("STORE", "memory")
	t.Setenv("SLOT_TIMEZONE", "UTC")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Equal(t, DriverPgx, cfg.DBDriver)
	assert.Equal(t, 2*time.Minute, cfg.PresenceTTL)
	assert.Equal(t, time.UTC, cfg.Location)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Equal(t, 256, cfg.WSSendBuffer)
	assert.False(t, cfg.TrustProxy)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("CORS_ORIGINS", "http://a.test, http://b.test")
	t.Setenv("PRESENCE_TTL", "30s")
	t.Setenv("SLOT_TIMEZONE", "Africa/Accra")
	t.Setenv("TRUST_PROXY", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, DriverPq, cfg.DBDriver)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORSOrigins)
	assert.Equal(t, 30*time.Second, cfg.PresenceTTL)
	assert.Equal(t, "Africa/Accra", cfg.Location.String())
	assert.True(t, cfg.TrustProxy)
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name, key, value string
	}{
		{"unknown zone", "SLOT_TIMEZONE", "Mars/Olympus"},
		{"unknown driver", "DB_DRIVER", "mysql"},
		{"unknown store", "STORE", "mongo"},
		{"zero buffer", "WS_SEND_BUFFER", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestRequireDatabase(t *testing.T) {
	cfg := &Config{}
	assert.Error(t, cfg.RequireDatabase())
	cfg.DatabaseURL = "postgres://localhost/telecare"
	assert.NoError(t, cfg.RequireDatabase())
}
