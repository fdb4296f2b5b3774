package alerts

import (
	"context"
	"log"
	"time"

	"github.com/sitewatch/backend/internal/auth"
	"github.com/sitewatch/backend/internal/database"
	"github.com/sitewatch/backend/internal/errs"
)

// Publisher receives lifecycle events for fan-out. The event bus satisfies
// it; a nil publisher disables broadcasting (tests).
type Publisher interface {
	AlertAcknowledged(a *database.Alert)
	AlertResolved(a *database.Alert)
}

// Manager owns the alert lifecycle: new → acknowledged → resolved, with
// resolved reachable directly from new by a supervisor.
type Manager struct {
	store  *database.Store
	pub    Publisher
	logger *log.Logger
}

// NewManager wires the lifecycle manager.
func NewManager(store *database.Store, pub Publisher) *Manager {
	return &Manager{
		store:  store,
		pub:    pub,
		logger: log.New(log.Writer(), "[Alerts] ", log.LstdFlags),
	}
}

// Get returns one alert if the actor may read it.
func (m *Manager) Get(ctx context.Context, actor auth.Identity, id int64) (*database.Alert, error) {
	a, err := m.store.FindAlertByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := auth.Allow(auth.ActionRead, actor, a.UserID); err != nil {
		return nil, err
	}
	return a, nil
}

// List applies the actor's scope to the filter and queries.
func (m *Manager) List(ctx context.Context, actor auth.Identity, f database.AlertFilter) ([]database.Alert, error) {
	scope, err := auth.ScopeUser(actor, f.UserID)
	if err != nil {
		return nil, err
	}
	f.UserID = scope
	return m.store.ListAlerts(ctx, f)
}

// Acknowledge transitions one alert to acknowledged. Acknowledging an
// already-acknowledged alert is a no-op: the original actor and time are
// preserved and no event is re-broadcast.
func (m *Manager) Acknowledge(ctx context.Context, actor auth.Identity, id int64) (*database.Alert, error) {
	a, err := m.store.FindAlertByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := auth.Allow(auth.ActionAcknowledge, actor, a.UserID); err != nil {
		return nil, err
	}
	if a.Acknowledged {
		return a, nil
	}

	if err := m.store.AcknowledgeAlert(ctx, id, actor.UserID, time.Now().UTC()); err != nil {
		return nil, err
	}
	a, err = m.store.FindAlertByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.pub != nil {
		m.pub.AlertAcknowledged(a)
	}
	return a, nil
}

// BulkAcknowledge transitions every id atomically: the rows are locked,
// ownership is re-checked per id, and a single statement applies the
// update. One unauthorised or missing id aborts the whole set.
func (m *Manager) BulkAcknowledge(ctx context.Context, actor auth.Identity, ids []int64) ([]database.Alert, error) {
	if len(ids) == 0 {
		return nil, errs.Invalid("alert_ids", "must not be empty")
	}

	var acked []database.Alert
	wasAcked := make(map[int64]bool, len(ids))
	err := m.store.WithTx(ctx, func(tx *database.Tx) error {
		locked, err := tx.LockAlerts(ctx, ids)
		if err != nil {
			return err
		}
		if len(locked) != len(ids) {
			return errs.ErrNotFound
		}
		for _, a := range locked {
			if err := auth.Allow(auth.ActionAcknowledge, actor, a.UserID); err != nil {
				return err
			}
			wasAcked[a.ID] = a.Acknowledged
		}
		if _, err := tx.BulkAcknowledge(ctx, ids, actor.UserID, time.Now().UTC()); err != nil {
			return err
		}
		// Re-read so callers and broadcasts see the acknowledged rows, not
		// the pre-update snapshot.
		acked, err = tx.LockAlerts(ctx, ids)
		return err
	})
	if err != nil {
		return nil, err
	}

	if m.pub != nil {
		for i := range acked {
			if !wasAcked[acked[i].ID] { // newly transitioned rows only
				m.pub.AlertAcknowledged(&acked[i])
			}
		}
	}
	m.logger.Printf("bulk acknowledged %d alerts by user %d", len(acked), actor.UserID)
	return acked, nil
}

// Resolve marks an alert resolved. Supervisor only; reachable from both
// new and acknowledged.
func (m *Manager) Resolve(ctx context.Context, actor auth.Identity, id int64) (*database.Alert, error) {
	if err := auth.Allow(auth.ActionResolve, actor, 0); err != nil {
		return nil, err
	}
	a, err := m.store.FindAlertByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !a.Resolved {
		if err := m.store.ResolveAlert(ctx, id, time.Now().UTC()); err != nil {
			return nil, err
		}
		a, err = m.store.FindAlertByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if m.pub != nil {
			m.pub.AlertResolved(a)
		}
	}
	return a, nil
}

// Stats assembles the dashboard counters within the actor's scope.
func (m *Manager) Stats(ctx context.Context, actor auth.Identity, requested *int64) (*database.AlertStats, error) {
	scope, err := auth.ScopeUser(actor, requested)
	if err != nil {
		return nil, err
	}
	return m.store.AlertStats(ctx, scope)
}

// Trends returns daily buckets within the actor's scope.
func (m *Manager) Trends(ctx context.Context, actor auth.Identity, requested *int64, since time.Time) ([]database.AlertBucket, error) {
	scope, err := auth.ScopeUser(actor, requested)
	if err != nil {
		return nil, err
	}
	return m.store.AlertTrends(ctx, scope, since)
}

// Hourly returns hour buckets for one calendar day within scope.
func (m *Manager) Hourly(ctx context.Context, actor auth.Identity, requested *int64, dayStart time.Time) ([]database.AlertBucket, error) {
	scope, err := auth.ScopeUser(actor, requested)
	if err != nil {
		return nil, err
	}
	return m.store.AlertsHourly(ctx, scope, dayStart)
}

// Cleanup deletes resolved alerts older than retentionDays. Supervisor only.
func (m *Manager) Cleanup(ctx context.Context, actor auth.Identity, retentionDays int) (int64, error) {
	if err := auth.Allow(auth.ActionAdminister, actor, 0); err != nil {
		return 0, err
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	return m.store.CleanupAlerts(ctx, cutoff)
}

// Clear removes all alerts. Supervisor-only test hook.
func (m *Manager) Clear(ctx context.Context, actor auth.Identity) (int64, error) {
	if err := auth.Allow(auth.ActionAdminister, actor, 0); err != nil {
		return 0, err
	}
	return m.store.ClearAlerts(ctx)
}
