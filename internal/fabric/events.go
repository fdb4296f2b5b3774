// Package fabric implements the realtime fan-out layer: the room registry,
// the WebSocket facade, and the optional Redis bridge for multi-pod
// deployments.
package fabric

import (
	"encoding/json"
	"log/slog"
	"time"
)

// Outbound event types.
const (
	EventConnectionEstablished = "connection_established"
	EventVitalUpdate           = "vital_update"
	EventNewAlert              = "new_alert"
	EventCriticalAlert         = "critical_alert"
	EventAlertAcknowledged     = "alert_acknowledged"
	EventAlertResolved         = "alert_resolved"
	EventAttendanceUpdate      = "attendance_update"
	EventLocationUpdate        = "location_update"
	EventLocationSharing       = "location_sharing_changed"
	EventEmployeeDisconnected  = "employee_disconnected"
	EventSystemMessage         = "system_message"
	EventHeartbeatAck          = "heartbeat_ack"
	EventSubscribed            = "subscribed"
	EventUnsubscribed          = "unsubscribed"
	EventRoomJoined            = "room_joined"
	EventRoomLeft              = "room_left"
	EventError                 = "error"
)

// Event is the outbound frame envelope. The timestamp is always assigned
// server-side so clients never see device clock skew on the envelope.
type Event struct {
	Type      string `json:"type"`
	Data      any    `json:"data,omitempty"`
	Timestamp string `json:"timestamp"`
}

// NewEvent stamps an envelope with the current server time.
func NewEvent(typ string, data any) *Event {
	return &Event{
		Type:      typ,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// Encode marshals the envelope; a marshal failure yields a nil frame which
// the bus skips.
func (e *Event) Encode() []byte {
	b, err := json.Marshal(e)
	if err != nil {
		slog.Warn("[Fabric] event marshal failed", "type", e.Type, "error", err)
		return nil
	}
	return b
}

// LocationPoint is the payload of a location_update event.
type LocationPoint struct {
	UserID      int64    `json:"user_id"`
	Latitude    float64  `json:"latitude"`
	Longitude   float64  `json:"longitude"`
	GPSAccuracy *float64 `json:"gps_accuracy,omitempty"`
	Timestamp   string   `json:"timestamp"`
}

// Presence is the payload of an employee_disconnected event.
type Presence struct {
	UserID int64  `json:"user_id"`
	Email  string `json:"email"`
}
