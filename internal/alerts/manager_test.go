package alerts

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitewatch/backend/internal/auth"
	"github.com/sitewatch/backend/internal/database"
	"github.com/sitewatch/backend/internal/errs"
)

type capturedEvents struct {
	acknowledged []*database.Alert
	resolved     []*database.Alert
}

func (c *capturedEvents) AlertAcknowledged(a *database.Alert) {
	c.acknowledged = append(c.acknowledged, a)
}

func (c *capturedEvents) AlertResolved(a *database.Alert) {
	c.resolved = append(c.resolved, a)
}

func newMockManager(t *testing.T) (*Manager, sqlmock.Sqlmock, *capturedEvents) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	events := &capturedEvents{}
	return NewManager(database.NewFromDB(db), events), mock, events
}

var alertColumns = []string{
	"id", "device_id", "user_id", "type", "severity", "message", "value", "threshold",
	"acknowledged", "acknowledged_by", "acknowledged_at", "resolved", "resolved_at", "timestamp",
}

func alertRow(id, userID int64, acknowledged, resolved bool) *sqlmock.Rows {
	var ackBy any
	var ackAt any
	if acknowledged {
		ackBy = int64(1)
		ackAt = time.Now()
	}
	return sqlmock.NewRows(alertColumns).AddRow(
		id, 1, userID, database.AlertHeartRate, database.SeverityHigh,
		"Heart rate above threshold", 140.0, 100.0,
		acknowledged, ackBy, ackAt, resolved, nil, time.Now())
}

func supervisor() auth.Identity {
	return auth.Identity{UserID: 1, Email: "boss@example.com", Role: database.RoleSupervisor}
}

func employee(id int64) auth.Identity {
	return auth.Identity{UserID: id, Email: "worker@example.com", Role: database.RoleEmployee}
}

func TestAcknowledge_TransitionsAndBroadcasts(t *testing.T) {
	m, mock, events := newMockManager(t)
	mock.ExpectQuery("FROM alerts WHERE id").WillReturnRows(alertRow(5, 7, false, false))
	mock.ExpectExec("UPDATE alerts SET acknowledged").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("FROM alerts WHERE id").WillReturnRows(alertRow(5, 7, true, false))

	a, err := m.Acknowledge(context.Background(), employee(7), 5)
	require.NoError(t, err)
	assert.True(t, a.Acknowledged)
	require.Len(t, events.acknowledged, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAcknowledge_AlreadyAcknowledgedIsNoOp(t *testing.T) {
	m, mock, events := newMockManager(t)
	mock.ExpectQuery("FROM alerts WHERE id").WillReturnRows(alertRow(5, 7, true, false))

	a, err := m.Acknowledge(context.Background(), supervisor(), 5)
	require.NoError(t, err)
	assert.True(t, a.Acknowledged)
	assert.Empty(t, events.acknowledged, "no event on a repeat acknowledgement")
	assert.NoError(t, mock.ExpectationsWereMet(), "no UPDATE issued")
}

func TestAcknowledge_ForeignOwnerForbidden(t *testing.T) {
	m, mock, events := newMockManager(t)
	mock.ExpectQuery("FROM alerts WHERE id").WillReturnRows(alertRow(5, 99, false, false))

	_, err := m.Acknowledge(context.Background(), employee(7), 5)
	assert.ErrorIs(t, err, errs.ErrForbidden)
	assert.Empty(t, events.acknowledged)
}

func TestBulkAcknowledge_MissingIDAbortsAll(t *testing.T) {
	m, mock, _ := newMockManager(t)
	mock.ExpectBegin()
	// Only two of the three requested rows exist.
	rows := alertRow(1, 7, false, false).AddRow(
		2, 1, 7, database.AlertSpO2, database.SeverityHigh,
		"SpO2 below threshold", 90.0, 95.0,
		false, nil, nil, false, nil, time.Now())
	mock.ExpectQuery("FROM alerts WHERE id = ANY").WillReturnRows(rows)
	mock.ExpectRollback()

	_, err := m.BulkAcknowledge(context.Background(), supervisor(), []int64{1, 2, 3})
	assert.ErrorIs(t, err, errs.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkAcknowledge_ForeignOwnerAbortsAll(t *testing.T) {
	m, mock, _ := newMockManager(t)
	mock.ExpectBegin()
	rows := alertRow(1, 7, false, false).AddRow(
		2, 1, 99, database.AlertSpO2, database.SeverityHigh,
		"SpO2 below threshold", 90.0, 95.0,
		false, nil, nil, false, nil, time.Now())
	mock.ExpectQuery("FROM alerts WHERE id = ANY").WillReturnRows(rows)
	mock.ExpectRollback()

	_, err := m.BulkAcknowledge(context.Background(), employee(7), []int64{1, 2})
	assert.ErrorIs(t, err, errs.ErrForbidden)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkAcknowledge_ReturnsUpdatedRows(t *testing.T) {
	m, mock, events := newMockManager(t)
	mock.ExpectBegin()
	// Row 1 is new, row 2 was acknowledged earlier.
	before := alertRow(1, 7, false, false).AddRow(
		2, 1, 7, database.AlertSpO2, database.SeverityHigh,
		"SpO2 below threshold", 90.0, 95.0,
		true, int64(1), time.Now(), false, nil, time.Now())
	mock.ExpectQuery("FROM alerts WHERE id = ANY").WillReturnRows(before)
	mock.ExpectExec("UPDATE alerts SET acknowledged").WillReturnResult(sqlmock.NewResult(0, 1))
	after := alertRow(1, 7, true, false).AddRow(
		2, 1, 7, database.AlertSpO2, database.SeverityHigh,
		"SpO2 below threshold", 90.0, 95.0,
		true, int64(1), time.Now(), false, nil, time.Now())
	mock.ExpectQuery("FROM alerts WHERE id = ANY").WillReturnRows(after)
	mock.ExpectCommit()

	acked, err := m.BulkAcknowledge(context.Background(), supervisor(), []int64{1, 2})
	require.NoError(t, err)
	require.Len(t, acked, 2)
	for _, a := range acked {
		assert.True(t, a.Acknowledged, "returned rows reflect the update")
		assert.NotNil(t, a.AcknowledgedBy)
	}
	require.Len(t, events.acknowledged, 1, "only the newly transitioned row is broadcast")
	assert.Equal(t, int64(1), events.acknowledged[0].ID)
	assert.True(t, events.acknowledged[0].Acknowledged)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkAcknowledge_EmptySetRejected(t *testing.T) {
	m, _, _ := newMockManager(t)
	_, err := m.BulkAcknowledge(context.Background(), supervisor(), nil)
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestResolve_EmployeeForbiddenWithoutStorageHit(t *testing.T) {
	m, mock, _ := newMockManager(t)

	_, err := m.Resolve(context.Background(), employee(7), 5)
	assert.ErrorIs(t, err, errs.ErrForbidden)
	assert.NoError(t, mock.ExpectationsWereMet(), "rejected before any query")
}

func TestResolve_ReachableFromNew(t *testing.T) {
	m, mock, events := newMockManager(t)
	mock.ExpectQuery("FROM alerts WHERE id").WillReturnRows(alertRow(5, 7, false, false))
	mock.ExpectExec("UPDATE alerts SET resolved").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("FROM alerts WHERE id").WillReturnRows(alertRow(5, 7, false, true))

	a, err := m.Resolve(context.Background(), supervisor(), 5)
	require.NoError(t, err)
	assert.True(t, a.Resolved)
	require.Len(t, events.resolved, 1)
}

func TestGet_OwnerMayRead(t *testing.T) {
	m, mock, _ := newMockManager(t)
	mock.ExpectQuery("FROM alerts WHERE id").WillReturnRows(alertRow(5, 7, false, false))

	a, err := m.Get(context.Background(), employee(7), 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), a.ID)
}

func TestList_EmployeeScopePinned(t *testing.T) {
	m, mock, _ := newMockManager(t)
	mock.ExpectQuery("FROM alerts").
		WithArgs(int64(7), 50, 0).
		WillReturnRows(sqlmock.NewRows(alertColumns))

	other := int64(99)
	_, err := m.List(context.Background(), employee(7), database.AlertFilter{UserID: &other, Limit: 50})
	assert.ErrorIs(t, err, errs.ErrForbidden)

	_, err = m.List(context.Background(), employee(7), database.AlertFilter{Limit: 50})
	assert.NoError(t, err)
}
