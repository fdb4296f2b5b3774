package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/sitewatch_test")
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 24*time.Hour, cfg.AccessTokenTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.RefreshTokenTTL)
	assert.Equal(t, 9*time.Hour, cfg.AttendanceStart)
	assert.Equal(t, 30, cfg.VitalsRetentionDays)
	assert.Equal(t, 90, cfg.AlertsRetentionDays)
	assert.Equal(t, 30*time.Second, cfg.WSPingInterval)
	// Refresh secret falls back to the access secret when unset.
	assert.Equal(t, "test-secret", cfg.JWTRefreshSecret)
}

func TestLoad_MissingDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "test-secret")

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/sitewatch_test")
	t.Setenv("JWT_SECRET", "s1")
	t.Setenv("JWT_REFRESH_SECRET", "s2")
	t.Setenv("JWT_ACCESS_TTL", "1h")
	t.Setenv("ATTENDANCE_STANDARD_HOURS", "7.5")
	t.Setenv("VITALS_RETENTION_DAYS", "14")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "s2", cfg.JWTRefreshSecret)
	assert.Equal(t, time.Hour, cfg.AccessTokenTTL)
	assert.Equal(t, 7.5, cfg.StandardHours)
	assert.Equal(t, 14, cfg.VitalsRetentionDays)
}

func TestLoad_MalformedNumbersFallBack(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/sitewatch_test")
	t.Setenv("JWT_SECRET", "s1")
	t.Setenv("VITALS_RETENTION_DAYS", "not-a-number")
	t.Setenv("JWT_ACCESS_TTL", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.VitalsRetentionDays)
	assert.Equal(t, 24*time.Hour, cfg.AccessTokenTTL)
}
