package alerts

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitewatch/backend/internal/database"
)

func intp(v int) *int           { return &v }
func floatp(v float64) *float64 { return &v }

func reading(mutate func(*database.Vital)) *database.Vital {
	v := &database.Vital{
		DeviceID:  1,
		Timestamp: time.Date(2025, 3, 4, 9, 0, 0, 0, time.UTC),
	}
	if mutate != nil {
		mutate(v)
	}
	return v
}

func TestEvaluate_NormalReadingProducesNothing(t *testing.T) {
	v := reading(func(v *database.Vital) {
		v.HeartRate = intp(78)
		v.SpO2 = intp(98)
		v.Temperature = floatp(36.8)
	})
	assert.Empty(t, Evaluate(v, DefaultPolicy()))
}

func TestEvaluate_MissingFieldsSkipRules(t *testing.T) {
	assert.Empty(t, Evaluate(reading(nil), DefaultPolicy()))
}

func TestEvaluate_FallIsCritical(t *testing.T) {
	got := Evaluate(reading(func(v *database.Vital) { v.FallDetected = true }), DefaultPolicy())
	require.Len(t, got, 1)
	assert.Equal(t, database.AlertFall, got[0].Type)
	assert.Equal(t, database.SeverityCritical, got[0].Severity)
}

func TestEvaluate_ThresholdTable(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*database.Vital)
		wantType string
		wantSev  string
		wantVal  float64
		wantThr  float64
	}{
		{"low heart rate", func(v *database.Vital) { v.HeartRate = intp(55) }, database.AlertHeartRate, database.SeverityMedium, 55, 60},
		{"high heart rate", func(v *database.Vital) { v.HeartRate = intp(120) }, database.AlertHeartRate, database.SeverityHigh, 120, 100},
		{"low spo2", func(v *database.Vital) { v.SpO2 = intp(91) }, database.AlertSpO2, database.SeverityHigh, 91, 95},
		{"low temperature", func(v *database.Vital) { v.Temperature = floatp(35.2) }, database.AlertTemperature, database.SeverityMedium, 35.2, 36.0},
		{"high temperature", func(v *database.Vital) { v.Temperature = floatp(38.4) }, database.AlertTemperature, database.SeverityMedium, 38.4, 37.5},
		{"co high", func(v *database.Vital) { v.CO = floatp(50) }, database.AlertCO, database.SeverityHigh, 50, 35},
		{"co critical", func(v *database.Vital) { v.CO = floatp(250) }, database.AlertCO, database.SeverityCritical, 250, 200},
		{"h2s high", func(v *database.Vital) { v.H2S = floatp(12) }, database.AlertH2S, database.SeverityHigh, 12, 10},
		{"h2s critical", func(v *database.Vital) { v.H2S = floatp(80) }, database.AlertH2S, database.SeverityCritical, 80, 50},
		{"ch4 high", func(v *database.Vital) { v.CH4 = floatp(15) }, database.AlertCH4, database.SeverityHigh, 15, 10},
		{"ch4 critical", func(v *database.Vital) { v.CH4 = floatp(30) }, database.AlertCH4, database.SeverityCritical, 30, 25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(reading(tt.mutate), DefaultPolicy())
			require.Len(t, got, 1)
			a := got[0]
			assert.Equal(t, tt.wantType, a.Type)
			assert.Equal(t, tt.wantSev, a.Severity)
			require.NotNil(t, a.Value)
			require.NotNil(t, a.Threshold)
			assert.InDelta(t, tt.wantVal, *a.Value, 0.01)
			assert.InDelta(t, tt.wantThr, *a.Threshold, 0.01)
			assert.NotEmpty(t, a.Message)
		})
	}
}

func TestEvaluate_BoundaryValuesDoNotFire(t *testing.T) {
	v := reading(func(v *database.Vital) {
		v.HeartRate = intp(60)
		v.SpO2 = intp(95)
		v.Temperature = floatp(36.0)
		v.CO = floatp(35)
		v.H2S = floatp(10)
		v.CH4 = floatp(10)
	})
	assert.Empty(t, Evaluate(v, DefaultPolicy()))
}

func TestEvaluate_MultipleMetricsFireTogether(t *testing.T) {
	v := reading(func(v *database.Vital) {
		v.FallDetected = true
		v.HeartRate = intp(130)
		v.CO = floatp(300)
	})
	got := Evaluate(v, DefaultPolicy())
	require.Len(t, got, 3)

	types := map[string]string{}
	for _, a := range got {
		types[a.Type] = a.Severity
	}
	assert.Equal(t, database.SeverityCritical, types[database.AlertFall])
	assert.Equal(t, database.SeverityHigh, types[database.AlertHeartRate])
	assert.Equal(t, database.SeverityCritical, types[database.AlertCO])
}

func TestEvaluate_OneAlertPerType(t *testing.T) {
	// 250 ppm crosses both the high and critical CO bounds; only the
	// critical band may fire.
	got := Evaluate(reading(func(v *database.Vital) { v.CO = floatp(250) }), DefaultPolicy())
	require.Len(t, got, 1)
	assert.Equal(t, database.SeverityCritical, got[0].Severity)
}

func TestLoadPolicy_Overrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "thresholds.yaml")
	require.NoError(t, os.WriteFile(path, []byte("heart_rate_max: 110\nco_high: 25\n"), 0o644))

	p, err := LoadPolicy(path)
	require.NoError(t, err)
	assert.Equal(t, 110.0, p.HeartRateMax)
	assert.Equal(t, 25.0, p.COHigh)
	// Untouched fields keep their defaults.
	assert.Equal(t, 60.0, p.HeartRateMin)
	assert.Equal(t, 200.0, p.COCritical)
}

func TestLoadPolicy_EmptyPathUsesDefaults(t *testing.T) {
	p, err := LoadPolicy("")
	require.NoError(t, err)
	assert.Equal(t, DefaultPolicy(), p)
}
