package fabric

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/sitewatch/backend/internal/auth"
	"github.com/sitewatch/backend/internal/database"
	"github.com/sitewatch/backend/internal/errs"
	"github.com/sitewatch/backend/internal/monitoring"
)

// Fixed room names. Per-user rooms are derived with UserRoom/VitalsRoom/
// LocationRoom.
const (
	RoomSupervisors = "supervisors"
	RoomEmployees   = "employees"
)

// sendBuffer bounds the per-connection outbound queue. When it fills, the
// oldest frame is evicted so a slow client sees fresh telemetry, not a
// replay of a stale backlog.
const sendBuffer = 256

// joinableRoom is the grammar for client-requested rooms. Anything outside
// it (including the fixed role rooms) cannot be joined explicitly.
var joinableRoom = regexp.MustCompile(`^(alerts|vitals|location)_([0-9]+)$`)

// UserRoom is the per-user private room; every connection of the user is a
// member for its whole lifetime.
func UserRoom(userID int64) string { return fmt.Sprintf("user_%d", userID) }

// VitalsRoom carries one user's vital_update stream.
func VitalsRoom(userID int64) string { return fmt.Sprintf("vitals_%d", userID) }

// LocationRoom carries one user's location_update stream.
func LocationRoom(userID int64) string { return fmt.Sprintf("location_%d", userID) }

// Connection is one attached WebSocket client. Writes go through a bounded
// queue owned by the connection's write pump.
type Connection struct {
	ID       string
	Identity auth.Identity

	send    chan []byte
	done    chan struct{}
	once    sync.Once
	dropped atomic.Int64
}

func newConnection(id auth.Identity) *Connection {
	return &Connection{
		ID:       uuid.New().String(),
		Identity: id,
		send:     make(chan []byte, sendBuffer),
		done:     make(chan struct{}),
	}
}

// enqueue places a frame on the outbound queue. A full queue evicts the
// oldest frame first; only if the queue is still full is the new frame
// dropped.
func (c *Connection) enqueue(frame []byte) {
	if frame == nil {
		return
	}
	select {
	case c.send <- frame:
		return
	default:
	}
	select {
	case <-c.send:
		c.dropped.Add(1)
		monitoring.SocketDrops.Inc()
	default:
	}
	select {
	case c.send <- frame:
	default:
		c.dropped.Add(1)
		monitoring.SocketDrops.Inc()
	}
}

// Dropped reports how many frames this connection has lost to backpressure.
func (c *Connection) Dropped() int64 { return c.dropped.Load() }

// Bridge distributes frames to peer processes. The Redis bridge implements
// it; a nil bridge keeps fan-out in-process.
type Bridge interface {
	Publish(rooms []string, frame []byte) error
}

// Bus is the room registry and fan-out core. It satisfies the alert
// lifecycle Publisher and is the single place ingestion and the socket
// layer hand events to.
type Bus struct {
	mu         sync.RWMutex
	conns      map[string]*Connection
	rooms      map[string]map[*Connection]struct{}
	membership map[*Connection]map[string]struct{}

	// Location-sharing opt-out per user. Absent means enabled.
	sharing map[int64]bool

	bridge Bridge
	logger *slog.Logger
}

// NewBus builds an empty registry.
func NewBus() *Bus {
	return &Bus{
		conns:      make(map[string]*Connection),
		rooms:      make(map[string]map[*Connection]struct{}),
		membership: make(map[*Connection]map[string]struct{}),
		sharing:    make(map[int64]bool),
		logger:     slog.Default().With("component", "fabric"),
	}
}

// SetBridge injects the cross-process bridge. Must be called before traffic.
func (b *Bus) SetBridge(br Bridge) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bridge = br
}

// Attach registers a connection and applies its automatic memberships:
// the user's private room plus the role room.
func (b *Bus) Attach(id auth.Identity) *Connection {
	c := newConnection(id)

	b.mu.Lock()
	b.conns[c.ID] = c
	b.membership[c] = make(map[string]struct{})
	b.joinLocked(c, UserRoom(id.UserID))
	if id.IsSupervisor() {
		b.joinLocked(c, RoomSupervisors)
	} else {
		b.joinLocked(c, RoomEmployees)
	}
	b.mu.Unlock()

	monitoring.SocketConnections.Inc()
	b.logger.Info("connection attached", "conn", c.ID, "user", id.UserID, "role", id.Role)
	return c
}

// Detach removes the connection from every room. When the last connection
// of an employee leaves, supervisors are told the employee went offline.
func (b *Bus) Detach(c *Connection) {
	b.mu.Lock()
	if _, ok := b.conns[c.ID]; !ok {
		b.mu.Unlock()
		return
	}
	delete(b.conns, c.ID)
	for room := range b.membership[c] {
		b.leaveLocked(c, room)
	}
	delete(b.membership, c)

	lastOfUser := true
	for _, other := range b.conns {
		if other.Identity.UserID == c.Identity.UserID {
			lastOfUser = false
			break
		}
	}
	b.mu.Unlock()

	monitoring.SocketConnections.Dec()
	b.logger.Info("connection detached", "conn", c.ID, "user", c.Identity.UserID, "dropped", c.Dropped())

	if lastOfUser && !c.Identity.IsSupervisor() {
		b.Broadcast(NewEvent(EventEmployeeDisconnected, Presence{
			UserID: c.Identity.UserID,
			Email:  c.Identity.Email,
		}), RoomSupervisors)
	}
}

// Join adds the connection to a client-requested room after checking the
// room grammar and the actor's scope: employees may only join rooms keyed
// to their own user id, supervisors may join any valid room.
func (b *Bus) Join(c *Connection, room string) error {
	m := joinableRoom.FindStringSubmatch(room)
	if m == nil {
		return errs.Invalid("room", "unknown room name")
	}
	if !c.Identity.IsSupervisor() {
		owner, err := strconv.ParseInt(m[2], 10, 64)
		if err != nil || owner != c.Identity.UserID {
			return errs.ErrForbidden
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.conns[c.ID]; !ok {
		return errs.ErrNotFound
	}
	b.joinLocked(c, room)
	return nil
}

// Leave removes the connection from a room it joined. Automatic memberships
// cannot be left.
func (b *Bus) Leave(c *Connection, room string) error {
	if joinableRoom.FindStringSubmatch(room) == nil {
		return errs.Invalid("room", "unknown room name")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.leaveLocked(c, room)
	return nil
}

func (b *Bus) joinLocked(c *Connection, room string) {
	set, ok := b.rooms[room]
	if !ok {
		set = make(map[*Connection]struct{})
		b.rooms[room] = set
	}
	set[c] = struct{}{}
	if b.membership[c] != nil {
		b.membership[c][room] = struct{}{}
	}
}

func (b *Bus) leaveLocked(c *Connection, room string) {
	if set, ok := b.rooms[room]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(b.rooms, room)
		}
	}
	if b.membership[c] != nil {
		delete(b.membership[c], room)
	}
}

// Rooms lists the connection's current memberships.
func (b *Bus) Rooms(c *Connection) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.membership[c]))
	for room := range b.membership[c] {
		out = append(out, room)
	}
	return out
}

// Broadcast fans an event out to every member of the rooms, once per
// connection, then hands the frame to the bridge for peer processes.
func (b *Bus) Broadcast(e *Event, rooms ...string) {
	frame := e.Encode()
	if frame == nil {
		return
	}
	b.deliverLocal(rooms, frame)

	b.mu.RLock()
	br := b.bridge
	b.mu.RUnlock()
	if br != nil {
		if err := br.Publish(rooms, frame); err != nil {
			b.logger.Warn("bridge publish failed", "error", err)
		}
	}
}

// deliverLocal enqueues a frame on every in-process member of the rooms.
// A connection in several of the rooms receives the frame once.
func (b *Bus) deliverLocal(rooms []string, frame []byte) {
	b.mu.RLock()
	seen := make(map[*Connection]struct{})
	for _, room := range rooms {
		for c := range b.rooms[room] {
			seen[c] = struct{}{}
		}
	}
	b.mu.RUnlock()

	for c := range seen {
		c.enqueue(frame)
	}
}

// SendTo queues an event on a single connection, bypassing rooms.
func (b *Bus) SendTo(c *Connection, e *Event) {
	c.enqueue(e.Encode())
}

// ============================================================================
// DOMAIN FAN-OUT
// ============================================================================

// VitalUpdate publishes a persisted reading to the owner, the per-user
// vitals stream, and the supervisor dashboard.
func (b *Bus) VitalUpdate(userID int64, v *database.Vital) {
	b.Broadcast(NewEvent(EventVitalUpdate, v),
		UserRoom(userID), VitalsRoom(userID), RoomSupervisors)
}

// AlertCreated publishes a freshly derived alert. Critical alerts get an
// extra critical_alert frame so dashboards can escalate without inspecting
// severity client-side.
func (b *Bus) AlertCreated(a *database.Alert) {
	rooms := []string{UserRoom(a.UserID), RoomSupervisors}
	b.Broadcast(NewEvent(EventNewAlert, a), rooms...)
	if a.Severity == database.SeverityCritical {
		b.Broadcast(NewEvent(EventCriticalAlert, map[string]any{
			"alert":              a,
			"requires_immediate": true,
		}), rooms...)
	}
}

// AlertAcknowledged publishes the acknowledged state transition.
func (b *Bus) AlertAcknowledged(a *database.Alert) {
	b.Broadcast(NewEvent(EventAlertAcknowledged, a), UserRoom(a.UserID), RoomSupervisors)
}

// AlertResolved publishes the resolved state transition.
func (b *Bus) AlertResolved(a *database.Alert) {
	b.Broadcast(NewEvent(EventAlertResolved, a), UserRoom(a.UserID), RoomSupervisors)
}

// AttendanceUpdate publishes a changed day record.
func (b *Bus) AttendanceUpdate(day *database.AttendanceDay) {
	b.Broadcast(NewEvent(EventAttendanceUpdate, day), UserRoom(day.UserID), RoomSupervisors)
}

// LocationUpdate publishes a position fix. When the user has switched
// location sharing off, the fix reaches only the user's own connections.
func (b *Bus) LocationUpdate(p LocationPoint) {
	rooms := []string{UserRoom(p.UserID)}
	if b.LocationSharingEnabled(p.UserID) {
		rooms = append(rooms, LocationRoom(p.UserID), RoomSupervisors)
	}
	b.Broadcast(NewEvent(EventLocationUpdate, p), rooms...)
}

// SystemMessage publishes an operator notice. With no rooms given it
// reaches everyone.
func (b *Bus) SystemMessage(msg string, rooms ...string) {
	if len(rooms) == 0 {
		rooms = []string{RoomSupervisors, RoomEmployees}
	}
	b.Broadcast(NewEvent(EventSystemMessage, map[string]string{"message": msg}), rooms...)
}

// SetLocationSharing records the user's sharing preference and tells the
// supervisor dashboard about the change.
func (b *Bus) SetLocationSharing(userID int64, enabled bool) {
	b.mu.Lock()
	b.sharing[userID] = enabled
	b.mu.Unlock()
	b.Broadcast(NewEvent(EventLocationSharing, map[string]any{
		"user_id": userID,
		"enabled": enabled,
	}), RoomSupervisors, UserRoom(userID))
}

// LocationSharingEnabled reports the user's preference; sharing defaults on.
func (b *Bus) LocationSharingEnabled(userID int64) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	enabled, ok := b.sharing[userID]
	return !ok || enabled
}

// ConnectionCount reports the number of attached connections.
func (b *Bus) ConnectionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.conns)
}
