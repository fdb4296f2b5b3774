// Package config resolves process configuration from the environment, with
// an optional YAML file for alert-threshold overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every knob the process recognises.
type Config struct {
	DatabaseURL string
	RedisURL    string // optional; empty disables the cross-pod event bridge

	Port          string
	AllowedOrigin string
	Environment   string

	JWTSecret        string
	JWTRefreshSecret string
	AccessTokenTTL   time.Duration
	RefreshTokenTTL  time.Duration

	// ThresholdsFile optionally points at a YAML policy overriding the
	// built-in alert thresholds.
	ThresholdsFile string

	AttendanceStart time.Duration // offset from midnight, e.g. 9h
	AttendanceEnd   time.Duration // offset from midnight, e.g. 17h
	StandardHours   float64

	VitalsRetentionDays int
	AlertsRetentionDays int

	WSPingInterval time.Duration
	WSIdleTimeout  time.Duration
}

// Load reads .env if present, then the environment. Missing required keys
// return an error rather than a partially-usable config.
func Load() (*Config, error) {
	// .env is a developer convenience; absence is not an error.
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		RedisURL:            os.Getenv("REDIS_URL"),
		Port:                envOr("PORT", "8080"),
		AllowedOrigin:       envOr("ALLOWED_ORIGIN", "*"),
		Environment:         envOr("ENVIRONMENT", "development"),
		JWTSecret:           os.Getenv("JWT_SECRET"),
		JWTRefreshSecret:    os.Getenv("JWT_REFRESH_SECRET"),
		AccessTokenTTL:      envDuration("JWT_ACCESS_TTL", 24*time.Hour),
		RefreshTokenTTL:     envDuration("JWT_REFRESH_TTL", 7*24*time.Hour),
		ThresholdsFile:      os.Getenv("THRESHOLDS_FILE"),
		AttendanceStart:     envDuration("ATTENDANCE_START", 9*time.Hour),
		AttendanceEnd:       envDuration("ATTENDANCE_END", 17*time.Hour),
		StandardHours:       envFloat("ATTENDANCE_STANDARD_HOURS", 8),
		VitalsRetentionDays: envInt("VITALS_RETENTION_DAYS", 30),
		AlertsRetentionDays: envInt("ALERTS_RETENTION_DAYS", 90),
		WSPingInterval:      envDuration("WS_PING_INTERVAL", 30*time.Second),
		WSIdleTimeout:       envDuration("WS_IDLE_TIMEOUT", 60*time.Second),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL must be set")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET must be set")
	}
	if cfg.JWTRefreshSecret == "" {
		cfg.JWTRefreshSecret = cfg.JWTSecret
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
