// Package ingest implements the device reading path: validate, persist,
// derive alerts, advance attendance, then broadcast. Everything between
// validation and broadcast happens in one transaction so a failure leaves
// no partial telemetry behind.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/sitewatch/backend/internal/alerts"
	"github.com/sitewatch/backend/internal/attendance"
	"github.com/sitewatch/backend/internal/database"
	"github.com/sitewatch/backend/internal/errs"
	"github.com/sitewatch/backend/internal/fabric"
	"github.com/sitewatch/backend/internal/monitoring"
)

// clockSkewTolerance bounds how far in the future a device timestamp may
// claim to be before the reading is rejected.
const clockSkewTolerance = 5 * time.Minute

// Payload is the wire shape a wearable POSTs. Optional metrics stay nil;
// unknown keys are rejected so firmware typos surface immediately.
type Payload struct {
	DeviceSerial string   `json:"device_serial"`
	HeartRate    *int     `json:"heart_rate"`
	SpO2         *int     `json:"spo2"`
	Temperature  *float64 `json:"temperature"`
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
	GPSAccuracy  *float64 `json:"gps_accuracy"`
	FallDetected bool     `json:"fall_detected"`
	CO           *float64 `json:"co"`
	H2S          *float64 `json:"h2s"`
	CH4          *float64 `json:"ch4"`
	BatteryLevel *int     `json:"battery_level"`
	Timestamp    *string  `json:"timestamp"`
}

// Decode parses a reading payload strictly.
func Decode(r io.Reader) (*Payload, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	var p Payload
	if err := dec.Decode(&p); err != nil {
		return nil, errs.Invalid("body", "malformed JSON: "+err.Error())
	}
	return &p, nil
}

// Result is what one accepted reading produced.
type Result struct {
	Vital      *database.Vital         `json:"vital"`
	Alerts     []database.Alert        `json:"alerts"`
	Attendance *database.AttendanceDay `json:"attendance,omitempty"`
}

// Publisher receives the post-commit fan-out. The event bus satisfies it.
type Publisher interface {
	VitalUpdate(userID int64, v *database.Vital)
	AlertCreated(a *database.Alert)
	AttendanceUpdate(day *database.AttendanceDay)
	LocationUpdate(p fabric.LocationPoint)
}

// Pipeline is the ingestion orchestrator.
type Pipeline struct {
	store   *database.Store
	policy  alerts.Policy
	machine *attendance.Machine
	pub     Publisher
	logger  *slog.Logger
}

// NewPipeline wires the critical path. A nil publisher disables broadcast
// (tests, batch import).
func NewPipeline(store *database.Store, policy alerts.Policy, machine *attendance.Machine, pub Publisher) *Pipeline {
	return &Pipeline{
		store:   store,
		policy:  policy,
		machine: machine,
		pub:     pub,
		logger:  slog.Default().With("component", "ingest"),
	}
}

// Ingest runs one reading through the whole path. On success the reading,
// any derived alerts, and the attendance change are already committed and
// broadcast.
func (p *Pipeline) Ingest(ctx context.Context, payload *Payload) (*Result, error) {
	if err := payload.validate(); err != nil {
		monitoring.ReadingsRejected.WithLabelValues("validation").Inc()
		return nil, err
	}

	device, err := p.store.FindActiveDeviceBySerial(ctx, payload.DeviceSerial)
	if err != nil {
		monitoring.ReadingsRejected.WithLabelValues("unknown_device").Inc()
		return nil, err
	}

	ts := time.Now().UTC()
	if payload.Timestamp != nil {
		ts, _ = time.Parse(time.RFC3339, *payload.Timestamp) // validated above
		ts = ts.UTC()
	}

	reading := &database.Vital{
		DeviceID:     device.ID,
		Timestamp:    ts,
		HeartRate:    payload.HeartRate,
		SpO2:         payload.SpO2,
		Temperature:  payload.Temperature,
		Latitude:     payload.Latitude,
		Longitude:    payload.Longitude,
		GPSAccuracy:  payload.GPSAccuracy,
		FallDetected: payload.FallDetected,
		CO:           payload.CO,
		H2S:          payload.H2S,
		CH4:          payload.CH4,
	}

	var (
		stored  *database.Vital
		derived []database.Alert
		day     *database.AttendanceDay
		changed bool
	)
	err = p.store.WithTx(ctx, func(tx *database.Tx) error {
		stored, err = tx.InsertVital(ctx, reading)
		if err != nil {
			return err
		}

		pending := alerts.Evaluate(stored, p.policy)
		for i := range pending {
			pending[i].UserID = device.UserID
		}
		if len(pending) > 0 {
			derived, err = tx.InsertAlerts(ctx, pending)
			if err != nil {
				return err
			}
		}

		if err := tx.TouchDevice(ctx, device.ID, ts, payload.BatteryLevel); err != nil {
			return err
		}

		day, changed, err = p.machine.Apply(ctx, tx, device.UserID, ts)
		return err
	})
	if err != nil {
		monitoring.ReadingsRejected.WithLabelValues("storage").Inc()
		return nil, err
	}

	monitoring.ReadingsIngested.Inc()
	for i := range derived {
		monitoring.AlertsCreated.WithLabelValues(derived[i].Severity).Inc()
	}
	if len(derived) > 0 {
		p.logger.Info("reading derived alerts",
			"device", device.DeviceSerial, "user", device.UserID, "count", len(derived))
	}

	p.broadcast(device.UserID, stored, derived, day, changed)

	return &Result{Vital: stored, Alerts: derived, Attendance: day}, nil
}

// broadcast fans the committed state out. Ordering matters for clients:
// the reading first, then its alerts, then bookkeeping.
func (p *Pipeline) broadcast(userID int64, v *database.Vital, derived []database.Alert, day *database.AttendanceDay, changed bool) {
	if p.pub == nil {
		return
	}
	p.pub.VitalUpdate(userID, v)
	for i := range derived {
		p.pub.AlertCreated(&derived[i])
	}
	if changed && day != nil {
		p.pub.AttendanceUpdate(day)
	}
	if v.Latitude != nil && v.Longitude != nil {
		p.pub.LocationUpdate(fabric.LocationPoint{
			UserID:      userID,
			Latitude:    *v.Latitude,
			Longitude:   *v.Longitude,
			GPSAccuracy: v.GPSAccuracy,
			Timestamp:   v.Timestamp.Format(time.RFC3339),
		})
	}
}

func (p *Payload) validate() error {
	fields := map[string]string{}

	if strings.TrimSpace(p.DeviceSerial) == "" {
		fields["device_serial"] = "is required"
	}
	if p.HeartRate != nil && (*p.HeartRate < 30 || *p.HeartRate > 200) {
		fields["heart_rate"] = "must be between 30 and 200 bpm"
	}
	if p.SpO2 != nil && (*p.SpO2 < 0 || *p.SpO2 > 100) {
		fields["spo2"] = "must be between 0 and 100 percent"
	}
	if p.Temperature != nil && (*p.Temperature < 30 || *p.Temperature > 45) {
		fields["temperature"] = "must be between 30 and 45 celsius"
	}
	if p.Latitude != nil && (*p.Latitude < -90 || *p.Latitude > 90) {
		fields["latitude"] = "must be between -90 and 90"
	}
	if p.Longitude != nil && (*p.Longitude < -180 || *p.Longitude > 180) {
		fields["longitude"] = "must be between -180 and 180"
	}
	if (p.Latitude == nil) != (p.Longitude == nil) {
		fields["location"] = "latitude and longitude must be supplied together"
	}
	if p.GPSAccuracy != nil && *p.GPSAccuracy < 0 {
		fields["gps_accuracy"] = "must not be negative"
	}
	for name, v := range map[string]*float64{"co": p.CO, "h2s": p.H2S, "ch4": p.CH4} {
		if v != nil && *v < 0 {
			fields[name] = "must not be negative"
		}
	}
	if p.BatteryLevel != nil && (*p.BatteryLevel < 0 || *p.BatteryLevel > 100) {
		fields["battery_level"] = "must be between 0 and 100"
	}
	if p.Timestamp != nil {
		ts, err := time.Parse(time.RFC3339, *p.Timestamp)
		if err != nil {
			fields["timestamp"] = "must be RFC 3339"
		} else if ts.After(time.Now().Add(clockSkewTolerance)) {
			fields["timestamp"] = fmt.Sprintf("is more than %s in the future", clockSkewTolerance)
		}
	}

	if len(fields) > 0 {
		return &errs.ValidationError{Fields: fields}
	}
	return nil
}
