package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitewatch/backend/internal/alerts"
	"github.com/sitewatch/backend/internal/attendance"
	"github.com/sitewatch/backend/internal/auth"
	"github.com/sitewatch/backend/internal/config"
	"github.com/sitewatch/backend/internal/database"
	"github.com/sitewatch/backend/internal/fabric"
	"github.com/sitewatch/backend/internal/ingest"
)

type harness struct {
	api    *API
	router http.Handler
	mock   sqlmock.Sqlmock
	tokens *auth.TokenIssuer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	// The bearer middleware's user lookup interleaves with the handler's
	// own queries, so ordering is not asserted here.
	mock.MatchExpectationsInOrder(false)

	store := database.NewFromDB(db)
	tokens := auth.NewTokenIssuer("test-access", "test-refresh", time.Hour, 24*time.Hour)
	authSvc := auth.NewService(store, tokens)
	bus := fabric.NewBus()
	alertMgr := alerts.NewManager(store, bus)
	machine := attendance.NewMachine(time.UTC)
	pipeline := ingest.NewPipeline(store, alerts.DefaultPolicy(), machine, bus)
	socket := fabric.NewSocketServer(bus, authSvc, alertMgr, fabric.SocketOptions{})

	cfg := &config.Config{
		AttendanceStart:     9 * time.Hour,
		AttendanceEnd:       17 * time.Hour,
		StandardHours:       8,
		VitalsRetentionDays: 30,
		AlertsRetentionDays: 90,
	}
	api := New(cfg, store, authSvc, alertMgr, machine, pipeline, bus, socket)
	return &harness{api: api, router: api.Router(), mock: mock, tokens: tokens}
}

// expectUserLookup satisfies the middleware's user-existence check.
func (h *harness) expectUserLookup(t *testing.T, id int64, role string) {
	t.Helper()
	rows := sqlmock.NewRows([]string{
		"id", "email", "password_hash", "name", "role", "department", "created_at", "updated_at",
	}).AddRow(id, fmt.Sprintf("u%d@example.com", id), "x", "Test User", role, nil, time.Now(), nil)
	h.mock.ExpectQuery("FROM users WHERE id").WillReturnRows(rows)
}

func (h *harness) request(t *testing.T, method, path, body string, as *auth.Identity) *httptest.ResponseRecorder {
	t.Helper()
	var rdr *strings.Reader
	if body == "" {
		rdr = strings.NewReader("")
	} else {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	if as != nil {
		pair, err := h.tokens.Issue(*as)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
		h.expectUserLookup(t, as.UserID, as.Role)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func employeeID(id int64) *auth.Identity {
	return &auth.Identity{UserID: id, Email: "worker@example.com", Role: database.RoleEmployee}
}

func supervisorID(id int64) *auth.Identity {
	return &auth.Identity{UserID: id, Email: "boss@example.com", Role: database.RoleSupervisor}
}

func TestRegister_ValidationDetails(t *testing.T) {
	h := newHarness(t)

	rec := h.request(t, http.MethodPost, "/auth/register",
		`{"email":"not-an-email","password":"Str0ng!pw","name":"A","role":"employee"}`, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body.Details, "email")
}

func TestLogin_UnknownEmailIs401(t *testing.T) {
	h := newHarness(t)
	h.mock.ExpectQuery("FROM users WHERE email").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	rec := h.request(t, http.MethodPost, "/auth/login",
		`{"email":"ghost@example.com","password":"whatever"}`, nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotContains(t, rec.Body.String(), "not found") // no account enumeration
}

func TestProtectedRoute_RequiresBearer(t *testing.T) {
	h := newHarness(t)
	rec := h.request(t, http.MethodGet, "/vitals/latest", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestVitalsLatest_EmployeeCannotWidenScope(t *testing.T) {
	h := newHarness(t)
	rec := h.request(t, http.MethodGet, "/vitals/latest?user_id=99", "", employeeID(7))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestVitalsLatest_EmployeePinnedToSelf(t *testing.T) {
	h := newHarness(t)
	h.mock.ExpectQuery("SELECT DISTINCT ON").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	rec := h.request(t, http.MethodGet, "/vitals/latest", "", employeeID(7))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestResolveAlert_EmployeeForbidden(t *testing.T) {
	h := newHarness(t)
	rec := h.request(t, http.MethodPut, "/alerts/5/resolve", "", employeeID(7))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAcknowledgeAlert_ForeignOwnerForbidden(t *testing.T) {
	h := newHarness(t)

	alertRows := sqlmock.NewRows([]string{
		"id", "device_id", "user_id", "type", "severity", "message", "value", "threshold",
		"acknowledged", "acknowledged_by", "acknowledged_at", "resolved", "resolved_at", "timestamp",
	}).AddRow(5, 1, 99, database.AlertFall, database.SeverityCritical, "Fall detected",
		nil, nil, false, nil, nil, false, nil, time.Now())
	h.mock.ExpectQuery("FROM alerts WHERE id").WillReturnRows(alertRows)

	rec := h.request(t, http.MethodPut, "/alerts/5/acknowledge", "", employeeID(7))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestIngest_MalformedPayloadIs400(t *testing.T) {
	h := newHarness(t)
	rec := h.request(t, http.MethodPost, "/data", `{"device_serial":"SW-1","heart_rate":999}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body.Details, "heart_rate")
}

func TestIngest_UnknownDeviceIs404(t *testing.T) {
	h := newHarness(t)
	h.mock.ExpectQuery("FROM devices WHERE device_serial").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	rec := h.request(t, http.MethodPost, "/data", `{"device_serial":"SW-404"}`, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMarkAbsent_SupervisorOnly(t *testing.T) {
	h := newHarness(t)

	rec := h.request(t, http.MethodPost, "/attendance/mark-absent/2025-03-04", "", employeeID(7))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	h2 := newHarness(t)
	h2.mock.ExpectExec("INSERT INTO attendance").
		WillReturnResult(sqlmock.NewResult(0, 2))
	rec = h2.request(t, http.MethodPost, "/attendance/mark-absent/2025-03-04", "", supervisorID(1))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"marked_absent":2`)
}

func TestMarkAbsent_BadDateIs400(t *testing.T) {
	h := newHarness(t)
	rec := h.request(t, http.MethodPost, "/attendance/mark-absent/not-a-date", "", supervisorID(1))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestValidateToken_EchoesIdentity(t *testing.T) {
	h := newHarness(t)
	rec := h.request(t, http.MethodGet, "/auth/validate-token", "", supervisorID(3))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["valid"])
	assert.Equal(t, float64(3), body["user_id"])
	assert.Equal(t, database.RoleSupervisor, body["role"])
}

func TestHealth_DegradedWhenStoreDown(t *testing.T) {
	h := newHarness(t)
	h.mock.ExpectPing().WillReturnError(fmt.Errorf("connection refused"))

	rec := h.request(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "degraded")
}

func TestGeofence_RejectsDegeneratePolygon(t *testing.T) {
	h := newHarness(t)
	rec := h.request(t, http.MethodPost, "/location/geofence",
		`{"polygon":[{"lat":0,"lng":0},{"lat":1,"lng":1}]}`, supervisorID(1))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
