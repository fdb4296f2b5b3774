package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/sitewatch/backend/internal/errs"
)

func requireRowAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return mapError(err)
	}
	if n == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// CreateDevice registers a wearable for a user.
func (s *Store) CreateDevice(ctx context.Context, serial string, userID int64) (*Device, error) {
	var d Device
	err := s.db.GetContext(ctx, &d, `
		INSERT INTO devices (device_serial, user_id)
		VALUES ($1, $2)
		RETURNING id, device_serial, user_id, battery_level, last_seen, is_active, created_at`,
		serial, userID)
	if err != nil {
		return nil, mapError(err)
	}
	return &d, nil
}

// FindActiveDeviceBySerial resolves the ingest path's serial lookup.
// Inactive devices are invisible here: readings for them are rejected.
func (s *Store) FindActiveDeviceBySerial(ctx context.Context, serial string) (*Device, error) {
	var d Device
	err := s.db.GetContext(ctx, &d, `
		SELECT id, device_serial, user_id, battery_level, last_seen, is_active, created_at
		FROM devices WHERE device_serial = $1 AND is_active`, serial)
	if err != nil {
		return nil, mapError(err)
	}
	return &d, nil
}

// FindDeviceByUser returns the user's active device, or NotFound.
func (s *Store) FindDeviceByUser(ctx context.Context, userID int64) (*Device, error) {
	var d Device
	err := s.db.GetContext(ctx, &d, `
		SELECT id, device_serial, user_id, battery_level, last_seen, is_active, created_at
		FROM devices WHERE user_id = $1 AND is_active
		ORDER BY created_at DESC LIMIT 1`, userID)
	if err != nil {
		return nil, mapError(err)
	}
	return &d, nil
}

// ListDevices returns all devices with owner names for the dashboard.
func (s *Store) ListDevices(ctx context.Context) ([]Device, error) {
	var devices []Device
	err := s.db.SelectContext(ctx, &devices, `
		SELECT id, device_serial, user_id, battery_level, last_seen, is_active, created_at
		FROM devices ORDER BY id`)
	if err != nil {
		return nil, mapError(err)
	}
	return devices, nil
}

// TouchDevice refreshes last_seen and, when supplied, the battery level.
// Runs inside the ingestion transaction.
func (t *Tx) TouchDevice(ctx context.Context, deviceID int64, seenAt time.Time, battery *int) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE devices SET last_seen = $2, battery_level = COALESCE($3, battery_level)
		WHERE id = $1`, deviceID, seenAt, battery)
	return mapError(err)
}

// SilentDevices returns active devices whose last contact predates cutoff,
// for the offline-alert sweep. Devices that never reported are skipped.
func (s *Store) SilentDevices(ctx context.Context, cutoff time.Time) ([]Device, error) {
	var devices []Device
	err := s.db.SelectContext(ctx, &devices, `
		SELECT id, device_serial, user_id, battery_level, last_seen, is_active, created_at
		FROM devices
		WHERE is_active AND last_seen IS NOT NULL AND last_seen < $1`, cutoff)
	if err != nil {
		return nil, mapError(err)
	}
	return devices, nil
}
