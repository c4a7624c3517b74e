// Package config handles loading and validating configuration from
// environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"polycopy/internal/upstream"
)

// Config holds all configuration for the pipeline workers.
type Config struct {
	// Store
	PostgresDSN string

	// Upstream venue
	DataAPIURL  string
	GammaAPIURL string
	WSURL       string

	// Control plane (streamer only)
	ControlBaseURL string
	ControlSecret  string

	// Polling
	HotInterval  time.Duration
	ColdInterval time.Duration

	// Stream
	BufferMax     int
	FlushInterval time.Duration
	InFlightCap   int

	// Observability
	HTTPAddr string
}

// Load reads configuration from environment variables with fallback to an
// optional .env file. Priority: environment > .env > defaults.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		PostgresDSN: os.Getenv("POSTGRES_DSN"),

		DataAPIURL:  getEnv("DATA_API_URL", upstream.DefaultDataBase),
		GammaAPIURL: getEnv("GAMMA_API_URL", upstream.DefaultGammaBase),
		WSURL:       getEnv("WS_URL", upstream.DefaultWSEndpoint),

		ControlBaseURL: os.Getenv("CONTROL_BASE_URL"),
		ControlSecret:  os.Getenv("CONTROL_SECRET"),

		HotInterval:  time.Duration(getEnvInt("HOT_INTERVAL_MS", 2000)) * time.Millisecond,
		ColdInterval: time.Duration(getEnvInt("COLD_INTERVAL_MINUTES", 60)) * time.Minute,

		BufferMax:     getEnvInt("BUFFER_MAX_SIZE", 50),
		FlushInterval: time.Duration(getEnvInt("BUFFER_FLUSH_INTERVAL_MS", 2000)) * time.Millisecond,
		InFlightCap:   getEnvInt("MAX_IN_FLIGHT_SYNC_CALLS", 20),

		HTTPAddr: getEnv("HTTP_ADDR", ":9090"),
	}

	if cfg.PostgresDSN == "" {
		return nil, fmt.Errorf("POSTGRES_DSN is required")
	}
	return cfg, nil
}

// RequireControlPlane validates the streamer-only settings.
func (c *Config) RequireControlPlane() error {
	if c.ControlBaseURL == "" {
		return fmt.Errorf("CONTROL_BASE_URL is required")
	}
	if c.ControlSecret == "" {
		return fmt.Errorf("CONTROL_SECRET is required")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
