package attendance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRoundHours(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want float64
	}{
		{8*time.Hour + 30*time.Minute, 8.5},
		{8 * time.Hour, 8.0},
		{7 * time.Minute, 0.1},
		{2 * time.Minute, 0.0},
		{23*time.Hour + 59*time.Minute, 24.0},
		{-time.Hour, 0.0}, // clock skew must not produce negative hours
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RoundHours(tt.d), "duration %v", tt.d)
	}
}

func TestDateOf_UsesConfiguredZone(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	m := NewMachine(ny)

	// 02:00 UTC on March 5 is still March 4 in New York.
	ts := time.Date(2025, 3, 5, 2, 0, 0, 0, time.UTC)
	assert.Equal(t, "2025-03-04", m.DateOf(ts))

	utc := NewMachine(time.UTC)
	assert.Equal(t, "2025-03-05", utc.DateOf(ts))
}

func TestNewMachine_NilZoneDefaultsToLocal(t *testing.T) {
	m := NewMachine(nil)
	assert.NotNil(t, m.loc)
}
