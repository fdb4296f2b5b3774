package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sitewatch/backend/internal/database"
	"github.com/sitewatch/backend/internal/monitoring"
)

// Sweeper runs the periodic device-silence check. A device that stops
// reporting gets one open offline alert; the alert is not re-raised while
// it stays unresolved.
type Sweeper struct {
	store  *database.Store
	pub    Publisher
	logger *slog.Logger
}

// NewSweeper wires the offline sweep.
func NewSweeper(store *database.Store, pub Publisher) *Sweeper {
	return &Sweeper{
		store:  store,
		pub:    pub,
		logger: slog.Default().With("component", "offline-sweep"),
	}
}

// OfflineSweep raises alerts for active devices silent longer than the
// threshold. Returns how many new alerts were created.
func (s *Sweeper) OfflineSweep(ctx context.Context, silence time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-silence)
	devices, err := s.store.SilentDevices(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	unresolved := false
	created := 0
	for _, d := range devices {
		open, err := s.store.ListAlerts(ctx, database.AlertFilter{
			DeviceID: &d.ID,
			Type:     database.AlertOffline,
			Resolved: &unresolved,
			Limit:    1,
		})
		if err != nil {
			return created, err
		}
		if len(open) > 0 {
			continue
		}

		a, err := s.store.InsertAlert(ctx, database.Alert{
			DeviceID:  d.ID,
			UserID:    d.UserID,
			Type:      database.AlertOffline,
			Severity:  database.SeverityMedium,
			Message:   fmt.Sprintf("Device %s has not reported for over %s", d.DeviceSerial, silence),
			Timestamp: time.Now().UTC(),
		})
		if err != nil {
			return created, err
		}
		created++
		monitoring.AlertsCreated.WithLabelValues(a.Severity).Inc()
		if s.pub != nil {
			s.pub.AlertCreated(a)
		}
	}

	if created > 0 {
		s.logger.Info("offline sweep raised alerts", "count", created)
	}
	return created, nil
}
