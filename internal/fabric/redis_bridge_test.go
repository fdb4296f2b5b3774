package fabric

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitewatch/backend/internal/database"
)

func bridgedBus(t *testing.T, addr string) (*Bus, *RedisBridge) {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })

	bus := NewBus()
	bridge := NewRedisBridge(client, "", bus)
	t.Cleanup(func() { bridge.Close() })
	return bus, bridge
}

func TestRedisBridge_CrossPodDelivery(t *testing.T) {
	mr := miniredis.RunT(t)

	busA, _ := bridgedBus(t, mr.Addr())
	busB, _ := bridgedBus(t, mr.Addr())

	sup := busB.Attach(supervisor(1))
	drain(sup)

	busA.AlertCreated(&database.Alert{ID: 9, UserID: 7, Severity: database.SeverityHigh})

	require.Eventually(t, func() bool {
		return len(sup.send) > 0
	}, 2*time.Second, 10*time.Millisecond, "frame never crossed the bridge")

	var e Event
	require.NoError(t, json.Unmarshal(<-sup.send, &e))
	assert.Equal(t, EventNewAlert, e.Type)
}

func TestRedisBridge_SkipsOwnPublications(t *testing.T) {
	mr := miniredis.RunT(t)

	bus, _ := bridgedBus(t, mr.Addr())
	sup := bus.Attach(supervisor(1))
	drain(sup)

	bus.SystemMessage("maintenance at noon")

	// Local delivery happens exactly once; the echoed envelope from Redis
	// must be discarded by the origin check.
	require.Eventually(t, func() bool {
		return len(sup.send) >= 1
	}, 2*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Len(t, sup.send, 1)
}
