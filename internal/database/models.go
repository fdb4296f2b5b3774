package database

import "time"

// Role values carried on users and token claims.
const (
	RoleEmployee   = "employee"
	RoleSupervisor = "supervisor"
)

// DateLayout is the wire and storage form of attendance dates.
const DateLayout = "2006-01-02"

// User is an account that owns devices, readings, alerts and attendance.
type User struct {
	ID           int64      `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	Name         string     `db:"name" json:"name"`
	Role         string     `db:"role" json:"role"`
	Department   *string    `db:"department" json:"department,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}

// Device is a wearable unit tied to exactly one owning user.
type Device struct {
	ID           int64      `db:"id" json:"id"`
	DeviceSerial string     `db:"device_serial" json:"device_serial"`
	UserID       int64      `db:"user_id" json:"user_id"`
	BatteryLevel *int       `db:"battery_level" json:"battery_level,omitempty"`
	LastSeen     *time.Time `db:"last_seen" json:"last_seen,omitempty"`
	IsActive     bool       `db:"is_active" json:"is_active"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

// Vital is one immutable device sample.
type Vital struct {
	ID           int64     `db:"id" json:"id"`
	DeviceID     int64     `db:"device_id" json:"device_id"`
	Timestamp    time.Time `db:"timestamp" json:"timestamp"`
	HeartRate    *int      `db:"heart_rate" json:"heart_rate,omitempty"`
	SpO2         *int      `db:"spo2" json:"spo2,omitempty"`
	Temperature  *float64  `db:"temperature" json:"temperature,omitempty"`
	Latitude     *float64  `db:"latitude" json:"latitude,omitempty"`
	Longitude    *float64  `db:"longitude" json:"longitude,omitempty"`
	GPSAccuracy  *float64  `db:"gps_accuracy" json:"gps_accuracy,omitempty"`
	FallDetected bool      `db:"fall_detected" json:"fall_detected"`
	CO           *float64  `db:"co" json:"co,omitempty"`
	H2S          *float64  `db:"h2s" json:"h2s,omitempty"`
	CH4          *float64  `db:"ch4" json:"ch4,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// VitalWithUser joins a reading with its owner for role-scoped listings.
type VitalWithUser struct {
	Vital
	UserID   int64  `db:"user_id" json:"user_id"`
	UserName string `db:"user_name" json:"user_name"`
}

// Alert types derived by the threshold evaluator plus the offline sweep.
const (
	AlertFall        = "fall"
	AlertHeartRate   = "heart_rate"
	AlertSpO2        = "spo2"
	AlertTemperature = "temperature"
	AlertCO          = "co"
	AlertH2S         = "h2s"
	AlertCH4         = "ch4"
	AlertOffline     = "offline"
)

// Alert severities, ordered low → critical.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Alert is a derived record stating a metric crossed a policy bound.
type Alert struct {
	ID             int64      `db:"id" json:"id"`
	DeviceID       int64      `db:"device_id" json:"device_id"`
	UserID         int64      `db:"user_id" json:"user_id"`
	Type           string     `db:"type" json:"type"`
	Severity       string     `db:"severity" json:"severity"`
	Message        string     `db:"message" json:"message"`
	Value          *float64   `db:"value" json:"value,omitempty"`
	Threshold      *float64   `db:"threshold" json:"threshold,omitempty"`
	Acknowledged   bool       `db:"acknowledged" json:"acknowledged"`
	AcknowledgedBy *int64     `db:"acknowledged_by" json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time `db:"acknowledged_at" json:"acknowledged_at,omitempty"`
	Resolved       bool       `db:"resolved" json:"resolved"`
	ResolvedAt     *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
	Timestamp      time.Time  `db:"timestamp" json:"timestamp"`
}

// AlertFilter narrows List queries. Zero values mean "any".
type AlertFilter struct {
	UserID       *int64
	DeviceID     *int64
	Type         string
	Severity     string
	Acknowledged *bool
	Resolved     *bool
	Since        *time.Time
	Until        *time.Time
	Limit        int
	Offset       int
}

// AlertStats aggregates counts for the dashboard.
type AlertStats struct {
	Total          int64            `json:"total"`
	Unacknowledged int64            `json:"unacknowledged"`
	Critical       int64            `json:"critical"`
	BySeverity     map[string]int64 `json:"by_severity"`
	ByType         map[string]int64 `json:"by_type"`
}

// AlertBucket is one aggregation bucket for trends and hourly views.
type AlertBucket struct {
	Bucket time.Time `db:"bucket" json:"bucket"`
	Count  int64     `db:"count" json:"count"`
}

// Attendance statuses.
const (
	StatusPresent = "present"
	StatusAbsent  = "absent"
	StatusPartial = "partial"
)

// AttendanceDay captures presence bounds for one (user, date).
type AttendanceDay struct {
	ID           int64      `db:"id" json:"id"`
	UserID       int64      `db:"user_id" json:"user_id"`
	Date         string     `db:"date" json:"date"`
	CheckInTime  *time.Time `db:"check_in_time" json:"check_in_time,omitempty"`
	CheckOutTime *time.Time `db:"check_out_time" json:"check_out_time,omitempty"`
	TotalHours   *float64   `db:"total_hours" json:"total_hours,omitempty"`
	Status       string     `db:"status" json:"status"`
}

// AttendanceWithUser joins attendance with the owning user for listings.
type AttendanceWithUser struct {
	AttendanceDay
	UserName   string  `db:"user_name" json:"user_name"`
	Department *string `db:"department" json:"department,omitempty"`
}

// AttendanceSummary aggregates one date across users.
type AttendanceSummary struct {
	Date         string  `json:"date"`
	Present      int64   `json:"present"`
	Absent       int64   `json:"absent"`
	Partial      int64   `json:"partial"`
	TotalHours   float64 `json:"total_hours"`
	AverageHours float64 `json:"average_hours"`
}

// ComplianceRecord is a narrative safety-compliance entry.
type ComplianceRecord struct {
	ID          int64      `db:"id" json:"id"`
	UserID      int64      `db:"user_id" json:"user_id"`
	Category    string     `db:"category" json:"category"`
	RiskLevel   string     `db:"risk_level" json:"risk_level"`
	Description string     `db:"description" json:"description"`
	Reviewed    bool       `db:"reviewed" json:"reviewed"`
	ReviewedBy  *int64     `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedAt  *time.Time `db:"reviewed_at" json:"reviewed_at,omitempty"`
	AssignedTo  *int64     `db:"assigned_to" json:"assigned_to,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}
