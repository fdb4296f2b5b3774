package fabric

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitewatch/backend/internal/auth"
	"github.com/sitewatch/backend/internal/database"
	"github.com/sitewatch/backend/internal/errs"
)

func employee(id int64) auth.Identity {
	return auth.Identity{UserID: id, Email: "worker@example.com", Role: database.RoleEmployee}
}

func supervisor(id int64) auth.Identity {
	return auth.Identity{UserID: id, Email: "boss@example.com", Role: database.RoleSupervisor}
}

// nextFrame pops one queued frame, or fails the test if none is waiting.
// Delivery is synchronous so no polling is needed.
func nextFrame(t *testing.T, c *Connection) Event {
	t.Helper()
	select {
	case raw := <-c.send:
		var e Event
		require.NoError(t, json.Unmarshal(raw, &e))
		return e
	default:
		t.Fatal("no frame queued")
		return Event{}
	}
}

func drain(c *Connection) {
	for {
		select {
		case <-c.send:
		default:
			return
		}
	}
}

func TestAttach_AutomaticMemberships(t *testing.T) {
	b := NewBus()

	emp := b.Attach(employee(7))
	assert.ElementsMatch(t, []string{"user_7", RoomEmployees}, b.Rooms(emp))

	sup := b.Attach(supervisor(1))
	assert.ElementsMatch(t, []string{"user_1", RoomSupervisors}, b.Rooms(sup))
}

func TestJoin_RoomGrammar(t *testing.T) {
	b := NewBus()
	sup := b.Attach(supervisor(1))

	for _, room := range []string{"vitals_7", "alerts_7", "location_7"} {
		assert.NoError(t, b.Join(sup, room), room)
	}
	for _, room := range []string{"supervisors", "vitals_", "vitals_abc", "secrets_7", ""} {
		err := b.Join(sup, room)
		assert.ErrorIs(t, err, errs.ErrValidation, room)
	}
}

func TestJoin_EmployeeScopedToSelf(t *testing.T) {
	b := NewBus()
	emp := b.Attach(employee(7))

	require.NoError(t, b.Join(emp, "vitals_7"))
	assert.ErrorIs(t, b.Join(emp, "vitals_8"), errs.ErrForbidden)
	assert.ErrorIs(t, b.Join(emp, "location_8"), errs.ErrForbidden)
}

func TestBroadcast_OncePerConnectionAcrossRooms(t *testing.T) {
	b := NewBus()
	sup := b.Attach(supervisor(1))
	require.NoError(t, b.Join(sup, "vitals_7"))
	drain(sup)

	// The supervisor is in both target rooms; the frame must arrive once.
	b.VitalUpdate(7, &database.Vital{ID: 1, DeviceID: 2})

	e := nextFrame(t, sup)
	assert.Equal(t, EventVitalUpdate, e.Type)
	assert.NotEmpty(t, e.Timestamp)
	select {
	case <-sup.send:
		t.Fatal("duplicate delivery")
	default:
	}
}

func TestAlertCreated_CriticalGetsEscalationFrame(t *testing.T) {
	b := NewBus()
	sup := b.Attach(supervisor(1))
	drain(sup)

	b.AlertCreated(&database.Alert{ID: 1, UserID: 7, Severity: database.SeverityHigh})
	assert.Equal(t, EventNewAlert, nextFrame(t, sup).Type)

	b.AlertCreated(&database.Alert{ID: 2, UserID: 7, Severity: database.SeverityCritical})
	assert.Equal(t, EventNewAlert, nextFrame(t, sup).Type)
	assert.Equal(t, EventCriticalAlert, nextFrame(t, sup).Type)
}

func TestLocationSharing_OptOutHidesFromSupervisors(t *testing.T) {
	b := NewBus()
	sup := b.Attach(supervisor(1))
	emp := b.Attach(employee(7))
	drain(sup)
	drain(emp)

	point := LocationPoint{UserID: 7, Latitude: 51.5, Longitude: -0.12}

	b.LocationUpdate(point)
	assert.Equal(t, EventLocationUpdate, nextFrame(t, sup).Type)
	assert.Equal(t, EventLocationUpdate, nextFrame(t, emp).Type)

	b.SetLocationSharing(7, false)
	drain(sup)
	drain(emp)

	b.LocationUpdate(point)
	// The employee still sees their own position; supervisors do not.
	assert.Equal(t, EventLocationUpdate, nextFrame(t, emp).Type)
	select {
	case <-sup.send:
		t.Fatal("opted-out location leaked to supervisors")
	default:
	}
}

func TestDetach_LastEmployeeConnectionNotifiesSupervisors(t *testing.T) {
	b := NewBus()
	sup := b.Attach(supervisor(1))
	first := b.Attach(employee(7))
	second := b.Attach(employee(7))
	drain(sup)

	b.Detach(first)
	select {
	case <-sup.send:
		t.Fatal("notified while a connection remains")
	default:
	}

	b.Detach(second)
	e := nextFrame(t, sup)
	assert.Equal(t, EventEmployeeDisconnected, e.Type)

	data, _ := json.Marshal(e.Data)
	var p Presence
	require.NoError(t, json.Unmarshal(data, &p))
	assert.Equal(t, int64(7), p.UserID)
}

func TestEnqueue_FullQueueEvictsOldest(t *testing.T) {
	c := newConnection(employee(7))
	for i := 0; i < sendBuffer; i++ {
		c.enqueue([]byte{byte(i)})
	}
	require.Len(t, c.send, sendBuffer)

	c.enqueue([]byte("fresh"))
	assert.Equal(t, int64(1), c.Dropped())
	require.Len(t, c.send, sendBuffer)

	// Oldest frame is gone; the newest survives at the tail.
	assert.Equal(t, []byte{1}, <-c.send)
	var last []byte
	for len(c.send) > 0 {
		last = <-c.send
	}
	assert.Equal(t, []byte("fresh"), last)
}

func TestLeave_AutomaticMembershipCannotBeLeft(t *testing.T) {
	b := NewBus()
	emp := b.Attach(employee(7))
	assert.ErrorIs(t, b.Leave(emp, RoomEmployees), errs.ErrValidation)
	assert.Contains(t, b.Rooms(emp), RoomEmployees)
}
