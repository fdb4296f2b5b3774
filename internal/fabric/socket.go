package fabric

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sitewatch/backend/internal/alerts"
	"github.com/sitewatch/backend/internal/auth"
	"github.com/sitewatch/backend/internal/errs"
)

const (
	writeWait  = 10 * time.Second
	maxMsgSize = 4096 // inbound commands are small; telemetry never arrives here
)

// SocketOptions carries the deployment knobs for the WebSocket facade.
type SocketOptions struct {
	PingInterval  time.Duration // must be shorter than IdleTimeout
	IdleTimeout   time.Duration
	AllowedOrigin string // exact origin accepted in production; empty allows all
	Environment   string
}

// SocketServer upgrades HTTP requests, authenticates the handshake, and
// runs the read/write pumps for each connection. All writes to a
// connection go through its write pump; the read pump is the only reader.
type SocketServer struct {
	bus      *Bus
	auth     *auth.Service
	alerts   *alerts.Manager
	upgrader websocket.Upgrader
	ping     time.Duration
	idle     time.Duration
	logger   *slog.Logger
}

// NewSocketServer wires the facade. In production with an allowed origin
// configured, cross-origin upgrades from anywhere else are refused.
func NewSocketServer(bus *Bus, authSvc *auth.Service, alerts *alerts.Manager, opts SocketOptions) *SocketServer {
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.IdleTimeout <= opts.PingInterval {
		opts.IdleTimeout = 2 * opts.PingInterval
	}

	checkOrigin := func(r *http.Request) bool { return true }
	if opts.Environment == "production" && opts.AllowedOrigin != "" {
		allowed := opts.AllowedOrigin
		checkOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == allowed {
				return true
			}
			slog.Warn("[Socket] rejected origin", "origin", origin)
			return false
		}
	} else if opts.Environment == "production" {
		slog.Warn("[Socket] no allowed origin configured in production, accepting all origins")
	}

	return &SocketServer{
		bus:    bus,
		auth:   authSvc,
		alerts: alerts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
		ping:   opts.PingInterval,
		idle:   opts.IdleTimeout,
		logger: slog.Default().With("component", "socket"),
	}
}

// Handle is the upgrade endpoint. The access token rides in the `token`
// query parameter (browsers cannot set headers on WebSocket upgrades) or a
// standard bearer header. A bad token closes the socket with a policy
// violation before any frame flows.
func (s *SocketServer) Handle(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = auth.BearerToken(r)
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrade failed", "error", err)
		return
	}

	identity, err := s.auth.Authenticate(r.Context(), token)
	if err != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unauthorized"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}

	c := s.bus.Attach(*identity)
	s.bus.SendTo(c, NewEvent(EventConnectionEstablished, map[string]any{
		"connection_id": c.ID,
		"user_id":       identity.UserID,
		"role":          identity.Role,
		"rooms":         s.bus.Rooms(c),
	}))

	go s.writePump(c, conn)
	go s.readPump(c, conn)
}

func (s *SocketServer) close(c *Connection, conn *websocket.Conn) {
	c.once.Do(func() {
		close(c.done)
		s.bus.Detach(c)
		conn.Close()
	})
}

// writePump owns every write on the underlying connection: queued frames,
// pings, and the close frame.
func (s *SocketServer) writePump(c *Connection, conn *websocket.Conn) {
	ticker := time.NewTicker(s.ping)
	defer func() {
		ticker.Stop()
		s.close(c, conn)
	}()

	for {
		select {
		case frame, ok := <-c.send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
			// Drain whatever queued up while we were writing.
			n := len(c.send)
			for i := 0; i < n; i++ {
				if err := conn.WriteMessage(websocket.TextMessage, <-c.send); err != nil {
					return
				}
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}

// readPump owns every read and dispatches inbound commands.
func (s *SocketServer) readPump(c *Connection, conn *websocket.Conn) {
	defer s.close(c, conn)

	conn.SetReadLimit(maxMsgSize)
	conn.SetReadDeadline(time.Now().Add(s.idle))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.idle))
		return nil
	})

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("read failed", "conn", c.ID, "error", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(s.idle))

		var cmd command
		if err := json.Unmarshal(payload, &cmd); err != nil {
			s.sendError(c, "malformed command")
			continue
		}
		s.dispatch(c, cmd)
	}
}

// command is the inbound frame shape; unused fields stay zero.
type command struct {
	Type    string `json:"type"`
	UserID  int64  `json:"user_id,omitempty"`
	Room    string `json:"room,omitempty"`
	AlertID int64  `json:"alert_id,omitempty"`
	Enabled *bool  `json:"enabled,omitempty"`
}

func (s *SocketServer) dispatch(c *Connection, cmd command) {
	switch cmd.Type {
	case "heartbeat":
		s.bus.SendTo(c, NewEvent(EventHeartbeatAck, nil))

	case "subscribe_vitals":
		target := cmd.UserID
		if target == 0 {
			target = c.Identity.UserID
		}
		room := VitalsRoom(target)
		if err := s.bus.Join(c, room); err != nil {
			s.sendError(c, reason(err))
			return
		}
		s.bus.SendTo(c, NewEvent(EventSubscribed, map[string]string{"room": room}))

	case "unsubscribe_vitals":
		target := cmd.UserID
		if target == 0 {
			target = c.Identity.UserID
		}
		room := VitalsRoom(target)
		if err := s.bus.Leave(c, room); err != nil {
			s.sendError(c, reason(err))
			return
		}
		s.bus.SendTo(c, NewEvent(EventUnsubscribed, map[string]string{"room": room}))

	case "join_room":
		if err := s.bus.Join(c, cmd.Room); err != nil {
			s.sendError(c, reason(err))
			return
		}
		s.bus.SendTo(c, NewEvent(EventRoomJoined, map[string]string{"room": cmd.Room}))

	case "leave_room":
		if err := s.bus.Leave(c, cmd.Room); err != nil {
			s.sendError(c, reason(err))
			return
		}
		s.bus.SendTo(c, NewEvent(EventRoomLeft, map[string]string{"room": cmd.Room}))

	case "acknowledge_alert":
		if cmd.AlertID == 0 {
			s.sendError(c, "alert_id is required")
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := s.alerts.Acknowledge(ctx, c.Identity, cmd.AlertID); err != nil {
			s.sendError(c, reason(err))
			return
		}
		// The lifecycle manager broadcasts alert_acknowledged on success.

	case "toggle_location_sharing":
		// Employees control their own visibility; supervisors observe it.
		if c.Identity.IsSupervisor() {
			s.sendError(c, "Access denied")
			return
		}
		enabled := !s.bus.LocationSharingEnabled(c.Identity.UserID)
		if cmd.Enabled != nil {
			enabled = *cmd.Enabled
		}
		s.bus.SetLocationSharing(c.Identity.UserID, enabled)

	default:
		s.sendError(c, "unknown command type")
	}
}

func (s *SocketServer) sendError(c *Connection, msg string) {
	s.bus.SendTo(c, NewEvent(EventError, map[string]string{"message": msg}))
}

// reason maps internal errors to client-safe text.
func reason(err error) string {
	switch {
	case errors.Is(err, errs.ErrForbidden):
		return "Access denied"
	case errors.Is(err, errs.ErrNotFound):
		return "not found"
	case errors.Is(err, errs.ErrUnauthenticated):
		return "unauthorized"
	default:
		var v *errs.ValidationError
		if errors.As(err, &v) {
			return v.Error()
		}
		return "internal error"
	}
}
