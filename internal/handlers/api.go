package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/sitewatch/backend/internal/alerts"
	"github.com/sitewatch/backend/internal/attendance"
	"github.com/sitewatch/backend/internal/auth"
	"github.com/sitewatch/backend/internal/config"
	"github.com/sitewatch/backend/internal/database"
	"github.com/sitewatch/backend/internal/fabric"
	"github.com/sitewatch/backend/internal/ingest"
	"github.com/sitewatch/backend/internal/middleware"
	"github.com/sitewatch/backend/internal/monitoring"
)

// API aggregates the core components behind the route table.
type API struct {
	cfg      *config.Config
	store    *database.Store
	auth     *auth.Service
	alerts   *alerts.Manager
	machine  *attendance.Machine
	pipeline *ingest.Pipeline
	bus      *fabric.Bus
	socket   *fabric.SocketServer
}

// New wires the facade.
func New(
	cfg *config.Config,
	store *database.Store,
	authSvc *auth.Service,
	alertMgr *alerts.Manager,
	machine *attendance.Machine,
	pipeline *ingest.Pipeline,
	bus *fabric.Bus,
	socket *fabric.SocketServer,
) *API {
	return &API{
		cfg:      cfg,
		store:    store,
		auth:     authSvc,
		alerts:   alertMgr,
		machine:  machine,
		pipeline: pipeline,
		bus:      bus,
		socket:   socket,
	}
}

// Router assembles the full route table. Rate limits apply only at
// ingress (credentials and device ingest); authenticated reads are not
// throttled.
func (a *API) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.Instrument)
	r.Use(middleware.CORS(a.cfg.AllowedOrigin))

	limiter := middleware.NewRateLimiter(middleware.RateLimitConfig{})

	// Public surface.
	r.Handle("/auth/register", limiter.Middleware(http.HandlerFunc(a.register))).Methods(http.MethodPost, http.MethodOptions)
	r.Handle("/auth/login", limiter.Middleware(http.HandlerFunc(a.login))).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/auth/refresh", a.refresh).Methods(http.MethodPost, http.MethodOptions)
	r.Handle("/data", limiter.Middleware(http.HandlerFunc(a.ingestReading))).Methods(http.MethodPost, http.MethodOptions)

	r.HandleFunc("/health", a.health).Methods(http.MethodGet)
	r.Handle("/metrics", monitoring.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/ws", a.socket.Handle).Methods(http.MethodGet)

	// Bearer surface.
	api := r.NewRoute().Subrouter()
	api.Use(a.auth.Middleware)

	api.HandleFunc("/auth/me", a.me).Methods(http.MethodGet)
	api.HandleFunc("/auth/validate-token", a.validateToken).Methods(http.MethodGet)
	api.HandleFunc("/auth/change-password", a.changePassword).Methods(http.MethodPost)
	api.HandleFunc("/auth/logout", a.logout).Methods(http.MethodPost)

	api.HandleFunc("/data/devices", a.listDevices).Methods(http.MethodGet)
	api.HandleFunc("/data/employees", a.listEmployees).Methods(http.MethodGet)

	api.HandleFunc("/vitals/latest", a.latestVitals).Methods(http.MethodGet)
	api.HandleFunc("/vitals/history", a.vitalHistory).Methods(http.MethodGet)
	api.HandleFunc("/vitals/device/{id:[0-9]+}", a.vitalsByDevice).Methods(http.MethodGet)
	api.HandleFunc("/vitals/abnormal", a.abnormalVitals).Methods(http.MethodGet)
	api.HandleFunc("/vitals/stats", a.vitalStats).Methods(http.MethodGet)
	api.HandleFunc("/vitals/trends", a.vitalTrends).Methods(http.MethodGet)
	api.HandleFunc("/vitals/trends/{id:[0-9]+}", a.vitalTrends).Methods(http.MethodGet)
	api.HandleFunc("/vitals/locations", a.currentLocations).Methods(http.MethodGet)
	api.HandleFunc("/vitals/summary", a.vitalSummary).Methods(http.MethodGet)
	api.HandleFunc("/vitals/cleanup", auth.RequireSupervisor(a.cleanupVitals)).Methods(http.MethodDelete)
	api.HandleFunc("/vitals/clear-all", auth.RequireSupervisor(a.clearVitals)).Methods(http.MethodDelete)

	api.HandleFunc("/alerts", a.listAlerts).Methods(http.MethodGet)
	api.HandleFunc("/alerts/unacknowledged", a.unacknowledgedAlerts).Methods(http.MethodGet)
	api.HandleFunc("/alerts/critical", a.criticalAlerts).Methods(http.MethodGet)
	api.HandleFunc("/alerts/stats", a.alertStats).Methods(http.MethodGet)
	api.HandleFunc("/alerts/trends", a.alertTrends).Methods(http.MethodGet)
	api.HandleFunc("/alerts/hourly/{date}", a.alertsHourly).Methods(http.MethodGet)
	api.HandleFunc("/alerts/user/{id:[0-9]+}", a.alertsByUser).Methods(http.MethodGet)
	api.HandleFunc("/alerts/acknowledge", a.bulkAcknowledge).Methods(http.MethodPost)
	api.HandleFunc("/alerts/cleanup", auth.RequireSupervisor(a.cleanupAlerts)).Methods(http.MethodDelete)
	api.HandleFunc("/alerts/clear-all", auth.RequireSupervisor(a.clearAlerts)).Methods(http.MethodDelete)
	api.HandleFunc("/alerts/{id:[0-9]+}", a.getAlert).Methods(http.MethodGet)
	api.HandleFunc("/alerts/{id:[0-9]+}/acknowledge", a.acknowledgeAlert).Methods(http.MethodPut)
	api.HandleFunc("/alerts/{id:[0-9]+}/resolve", auth.RequireSupervisor(a.resolveAlert)).Methods(http.MethodPut)

	api.HandleFunc("/location/current", a.currentLocations).Methods(http.MethodGet)
	api.HandleFunc("/location/history", a.locationHistory).Methods(http.MethodGet)
	api.HandleFunc("/location/history/{id:[0-9]+}", a.locationHistory).Methods(http.MethodGet)
	api.HandleFunc("/location/track/{id:[0-9]+}", a.locationTrack).Methods(http.MethodGet)
	api.HandleFunc("/location/zone/{id:[0-9]+}", a.locationZone).Methods(http.MethodGet)
	api.HandleFunc("/location/summary", a.locationSummary).Methods(http.MethodGet)
	api.HandleFunc("/location/heatmap", auth.RequireSupervisor(a.locationHeatmap)).Methods(http.MethodGet)
	api.HandleFunc("/location/geofence", auth.RequireSupervisor(a.geofenceCheck)).Methods(http.MethodPost)

	api.HandleFunc("/attendance/today", a.attendanceToday).Methods(http.MethodGet)
	api.HandleFunc("/attendance/history", a.attendanceHistory).Methods(http.MethodGet)
	api.HandleFunc("/attendance/history/{id:[0-9]+}", a.attendanceHistory).Methods(http.MethodGet)
	api.HandleFunc("/attendance/date/{date}", a.attendanceByDate).Methods(http.MethodGet)
	api.HandleFunc("/attendance/summary", auth.RequireSupervisor(a.attendanceSummary)).Methods(http.MethodGet)
	api.HandleFunc("/attendance/stats", auth.RequireSupervisor(a.attendanceStats)).Methods(http.MethodGet)
	api.HandleFunc("/attendance/late-arrivals/{date}", auth.RequireSupervisor(a.lateArrivals)).Methods(http.MethodGet)
	api.HandleFunc("/attendance/early-departures/{date}", auth.RequireSupervisor(a.earlyDepartures)).Methods(http.MethodGet)
	api.HandleFunc("/attendance/overtime/{date}", auth.RequireSupervisor(a.overtime)).Methods(http.MethodGet)
	api.HandleFunc("/attendance/trends", auth.RequireSupervisor(a.attendanceTrends)).Methods(http.MethodGet)
	api.HandleFunc("/attendance/user/{id:[0-9]+}/calendar", a.attendanceCalendar).Methods(http.MethodGet)
	api.HandleFunc("/attendance/export", auth.RequireSupervisor(a.attendanceExport)).Methods(http.MethodGet)
	api.HandleFunc("/attendance/mark-absent/{date}", auth.RequireSupervisor(a.markAbsent)).Methods(http.MethodPost)
	api.HandleFunc("/attendance/{id:[0-9]+}/{date}/status", auth.RequireSupervisor(a.overrideAttendance)).Methods(http.MethodPut)

	api.HandleFunc("/compliance", a.listCompliance).Methods(http.MethodGet)
	api.HandleFunc("/compliance", auth.RequireSupervisor(a.createCompliance)).Methods(http.MethodPost)
	api.HandleFunc("/compliance/unreviewed", auth.RequireSupervisor(a.unreviewedCompliance)).Methods(http.MethodGet)
	api.HandleFunc("/compliance/high-risk", auth.RequireSupervisor(a.highRiskCompliance)).Methods(http.MethodGet)
	api.HandleFunc("/compliance/stats", auth.RequireSupervisor(a.complianceStats)).Methods(http.MethodGet)
	api.HandleFunc("/compliance/trends", auth.RequireSupervisor(a.complianceTrends)).Methods(http.MethodGet)
	api.HandleFunc("/compliance/{id:[0-9]+}", a.getCompliance).Methods(http.MethodGet)
	api.HandleFunc("/compliance/{id:[0-9]+}/review", auth.RequireSupervisor(a.reviewCompliance)).Methods(http.MethodPost)
	api.HandleFunc("/compliance/{id:[0-9]+}/assign", auth.RequireSupervisor(a.assignCompliance)).Methods(http.MethodPost)

	return r
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := a.store.Ping(r.Context()); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":      status,
		"connections": a.bus.ConnectionCount(),
		"time":        time.Now().UTC().Format(time.RFC3339),
	})
}

// identity pulls the authenticated actor out of the context; the bearer
// middleware guarantees presence on protected routes.
func identity(r *http.Request) auth.Identity {
	id, _ := auth.IdentityFromContext(r.Context())
	return id
}

// scope resolves the actor's read scope against an optional ?user_id.
func scope(r *http.Request) (*int64, error) {
	return auth.ScopeUser(identity(r), queryUserID(r))
}
