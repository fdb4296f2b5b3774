// Package alerts derives threshold alerts from readings and manages the
// alert lifecycle (acknowledge, resolve, query, aggregate).
package alerts

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/sitewatch/backend/internal/database"
)

// Policy holds the configurable threshold bounds and severity bands. The
// zero value is unusable; start from DefaultPolicy and override.
type Policy struct {
	HeartRateMin         float64 `yaml:"heart_rate_min"`
	HeartRateMinSeverity string  `yaml:"heart_rate_min_severity"`
	HeartRateMax         float64 `yaml:"heart_rate_max"`
	HeartRateMaxSeverity string  `yaml:"heart_rate_max_severity"`

	SpO2Min         float64 `yaml:"spo2_min"`
	SpO2MinSeverity string  `yaml:"spo2_min_severity"`

	TemperatureMin         float64 `yaml:"temperature_min"`
	TemperatureMinSeverity string  `yaml:"temperature_min_severity"`
	TemperatureMax         float64 `yaml:"temperature_max"`
	TemperatureMaxSeverity string  `yaml:"temperature_max_severity"`

	COHigh      float64 `yaml:"co_high"`
	COCritical  float64 `yaml:"co_critical"`
	H2SHigh     float64 `yaml:"h2s_high"`
	H2SCritical float64 `yaml:"h2s_critical"`
	CH4High     float64 `yaml:"ch4_high"`
	CH4Critical float64 `yaml:"ch4_critical"`
}

// DefaultPolicy returns the built-in bounds.
func DefaultPolicy() Policy {
	return Policy{
		HeartRateMin: 60, HeartRateMinSeverity: database.SeverityMedium,
		HeartRateMax: 100, HeartRateMaxSeverity: database.SeverityHigh,
		SpO2Min: 95, SpO2MinSeverity: database.SeverityHigh,
		TemperatureMin: 36.0, TemperatureMinSeverity: database.SeverityMedium,
		TemperatureMax: 37.5, TemperatureMaxSeverity: database.SeverityMedium,
		COHigh: 35, COCritical: 200,
		H2SHigh: 10, H2SCritical: 50,
		CH4High: 10, CH4Critical: 25,
	}
}

// LoadPolicy reads YAML overrides on top of the defaults. An empty path
// returns the defaults unchanged.
func LoadPolicy(path string) (Policy, error) {
	p := DefaultPolicy()
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read threshold policy: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("parse threshold policy: %w", err)
	}
	return p, nil
}

// op is a threshold comparator.
type op int

const (
	opBelow op = iota
	opAbove
)

// rule is one row of the evaluation table: metric accessor, comparator,
// bound, severity and message template.
type rule struct {
	alertType string
	metric    func(*database.Vital) (float64, bool)
	op        op
	bound     float64
	severity  string
	message   string // fmt template receiving (value, bound)
}

// rules materialises the policy into the ordered evaluation table. For gas
// metrics the critical band precedes the high band so the most severe
// matching rule wins.
func rules(p Policy) []rule {
	hr := func(v *database.Vital) (float64, bool) {
		if v.HeartRate == nil {
			return 0, false
		}
		return float64(*v.HeartRate), true
	}
	spo2 := func(v *database.Vital) (float64, bool) {
		if v.SpO2 == nil {
			return 0, false
		}
		return float64(*v.SpO2), true
	}
	fptr := func(get func(*database.Vital) *float64) func(*database.Vital) (float64, bool) {
		return func(v *database.Vital) (float64, bool) {
			if p := get(v); p != nil {
				return *p, true
			}
			return 0, false
		}
	}
	temp := fptr(func(v *database.Vital) *float64 { return v.Temperature })
	co := fptr(func(v *database.Vital) *float64 { return v.CO })
	h2s := fptr(func(v *database.Vital) *float64 { return v.H2S })
	ch4 := fptr(func(v *database.Vital) *float64 { return v.CH4 })

	return []rule{
		{database.AlertHeartRate, hr, opBelow, p.HeartRateMin, p.HeartRateMinSeverity, "Heart rate %.0f bpm below safe minimum %.0f"},
		{database.AlertHeartRate, hr, opAbove, p.HeartRateMax, p.HeartRateMaxSeverity, "Heart rate %.0f bpm above safe maximum %.0f"},
		{database.AlertSpO2, spo2, opBelow, p.SpO2Min, p.SpO2MinSeverity, "SpO2 %.0f%% below safe minimum %.0f%%"},
		{database.AlertTemperature, temp, opBelow, p.TemperatureMin, p.TemperatureMinSeverity, "Body temperature %.1f°C below %.1f°C"},
		{database.AlertTemperature, temp, opAbove, p.TemperatureMax, p.TemperatureMaxSeverity, "Body temperature %.1f°C above %.1f°C"},
		{database.AlertCO, co, opAbove, p.COCritical, database.SeverityCritical, "CO concentration %.1f ppm above critical limit %.1f ppm"},
		{database.AlertCO, co, opAbove, p.COHigh, database.SeverityHigh, "CO concentration %.1f ppm above limit %.1f ppm"},
		{database.AlertH2S, h2s, opAbove, p.H2SCritical, database.SeverityCritical, "H2S concentration %.1f ppm above critical limit %.1f ppm"},
		{database.AlertH2S, h2s, opAbove, p.H2SHigh, database.SeverityHigh, "H2S concentration %.1f ppm above limit %.1f ppm"},
		{database.AlertCH4, ch4, opAbove, p.CH4Critical, database.SeverityCritical, "CH4 concentration %.1f %%LEL above critical limit %.1f %%LEL"},
		{database.AlertCH4, ch4, opAbove, p.CH4High, database.SeverityHigh, "CH4 concentration %.1f %%LEL above limit %.1f %%LEL"},
	}
}

// Evaluate derives alert candidates from one reading. Pure and
// deterministic: no persistence concerns, missing fields skip their rules,
// and at most one alert is produced per alert type.
func Evaluate(v *database.Vital, p Policy) []database.Alert {
	var out []database.Alert

	if v.FallDetected {
		out = append(out, database.Alert{
			DeviceID:  v.DeviceID,
			Type:      database.AlertFall,
			Severity:  database.SeverityCritical,
			Message:   "Fall detected",
			Timestamp: v.Timestamp,
		})
	}

	fired := map[string]bool{}
	for _, r := range rules(p) {
		if fired[r.alertType] {
			continue
		}
		value, ok := r.metric(v)
		if !ok {
			continue
		}
		hit := (r.op == opBelow && value < r.bound) || (r.op == opAbove && value > r.bound)
		if !hit {
			continue
		}
		fired[r.alertType] = true
		val, bound := value, r.bound
		out = append(out, database.Alert{
			DeviceID:  v.DeviceID,
			Type:      r.alertType,
			Severity:  r.severity,
			Message:   fmt.Sprintf(r.message, value, r.bound),
			Value:     &val,
			Threshold: &bound,
			Timestamp: v.Timestamp,
		})
	}
	return out
}
