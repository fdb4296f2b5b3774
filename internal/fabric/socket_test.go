package fabric

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSocketServer(b *Bus) *SocketServer {
	return NewSocketServer(b, nil, nil, SocketOptions{})
}

// errorMessage decodes the `message` field of an error frame.
func errorMessage(t *testing.T, e Event) string {
	t.Helper()
	require.Equal(t, EventError, e.Type)
	raw, err := json.Marshal(e.Data)
	require.NoError(t, err)
	var data struct {
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(raw, &data))
	return data.Message
}

func TestDispatch_SubscribeVitalsForeignUserDenied(t *testing.T) {
	b := NewBus()
	s := newTestSocketServer(b)
	emp := b.Attach(employee(7))
	drain(emp)

	s.dispatch(emp, command{Type: "subscribe_vitals", UserID: 8})

	msg := errorMessage(t, nextFrame(t, emp))
	assert.Contains(t, msg, "Access denied")
	assert.NotContains(t, b.Rooms(emp), "vitals_8")
}

func TestDispatch_SubscribeVitalsDefaultsToSelf(t *testing.T) {
	b := NewBus()
	s := newTestSocketServer(b)
	emp := b.Attach(employee(7))
	drain(emp)

	s.dispatch(emp, command{Type: "subscribe_vitals"})

	e := nextFrame(t, emp)
	assert.Equal(t, EventSubscribed, e.Type)
	assert.Contains(t, b.Rooms(emp), "vitals_7")
}

func TestDispatch_ToggleLocationSharingSupervisorDenied(t *testing.T) {
	b := NewBus()
	s := newTestSocketServer(b)
	sup := b.Attach(supervisor(1))
	drain(sup)

	s.dispatch(sup, command{Type: "toggle_location_sharing"})

	msg := errorMessage(t, nextFrame(t, sup))
	assert.Contains(t, msg, "Access denied")
	assert.True(t, b.LocationSharingEnabled(1), "preference untouched")
}

func TestDispatch_ToggleLocationSharingFlipsAndSets(t *testing.T) {
	b := NewBus()
	s := newTestSocketServer(b)
	emp := b.Attach(employee(7))
	drain(emp)

	s.dispatch(emp, command{Type: "toggle_location_sharing"})
	assert.False(t, b.LocationSharingEnabled(7), "first toggle flips the default on → off")

	enabled := true
	s.dispatch(emp, command{Type: "toggle_location_sharing", Enabled: &enabled})
	assert.True(t, b.LocationSharingEnabled(7), "explicit value wins over the flip")
}

func TestDispatch_UnknownCommandRejected(t *testing.T) {
	b := NewBus()
	s := newTestSocketServer(b)
	emp := b.Attach(employee(7))
	drain(emp)

	s.dispatch(emp, command{Type: "self_destruct"})
	assert.Equal(t, "unknown command type", errorMessage(t, nextFrame(t, emp)))
}
