package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_RequiresPostgresDSN(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "POSTGRES_DSN")
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "postgres://test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, cfg.HotInterval)
	assert.Equal(t, time.Hour, cfg.ColdInterval)
	assert.Equal(t, 50, cfg.BufferMax)
	assert.Equal(t, 2*time.Second, cfg.FlushInterval)
	assert.Equal(t, 20, cfg.InFlightCap)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.NotEmpty(t, cfg.DataAPIURL)
	assert.NotEmpty(t, cfg.WSURL)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "postgres://test")
	t.Setenv("HOT_INTERVAL_MS", "500")
	t.Setenv("BUFFER_MAX_SIZE", "10")
	t.Setenv("DATA_API_URL", "http://localhost:8080")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 500*time.Millisecond, cfg.HotInterval)
	assert.Equal(t, 10, cfg.BufferMax)
	assert.Equal(t, "http://localhost:8080", cfg.DataAPIURL)
}

func TestRequireControlPlane(t *testing.T) {
	cfg := &Config{}
	assert.Error(t, cfg.RequireControlPlane())

	cfg.ControlBaseURL = "http://control"
	assert.Error(t, cfg.RequireControlPlane())

	cfg.ControlSecret = "sekret"
	assert.NoError(t, cfg.RequireControlPlane())
}
