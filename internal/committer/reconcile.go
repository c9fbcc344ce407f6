package committer

import (
	"context"
	"time"

	"github.com/tphakala/fieldlog/internal/datastore"
	"github.com/tphakala/fieldlog/internal/errors"
	"github.com/tphakala/fieldlog/internal/logger"
	"github.com/tphakala/fieldlog/internal/observability/metrics"
	"github.com/tphakala/fieldlog/internal/observation"
)

// ReconcileStats summarizes one sweep.
type ReconcileStats struct {
	Pending         int   `json:"pending"`
	Finalized       int   `json:"finalized"`
	DraftsCleared   int   `json:"drafts_cleared"`
	Skipped         int   `json:"skipped"` // finalized concurrently by someone else
	Failed          int   `json:"failed"`
	SightingsPurged int64 `json:"sightings_purged"`
}

// Reconcile completes two-phase commits left in committing state for longer
// than grace. For each entry the user's draft is cleared if it still holds
// the capture the entry was made from, and the entry becomes map-visible.
// A draft that was already cleared or replaced by a new capture is left
// alone. Expired active sightings are purged at the end of the sweep.
func (c *Committer) Reconcile(ctx context.Context, grace time.Duration) (ReconcileStats, error) {
	var stats ReconcileStats
	start := time.Now()
	now := c.now().UTC()

	pending, err := observation.CallWithTimeout(ctx, c.timeout, func(ctx context.Context) ([]observation.LogEntry, error) {
		return c.repo.PendingEntries(ctx, now.Add(-grace))
	})
	if err != nil {
		c.metrics.RecordOperation(metrics.OpReconcile, metrics.StatusError)
		return stats, errors.New(err).
			Component("committer").
			Category(errors.CategoryCommit).
			Context("operation", "pending_entries").
			Build()
	}
	stats.Pending = len(pending)

	for _, entry := range pending {
		if ctx.Err() != nil {
			break
		}
		cleared, err := c.reconcileEntry(ctx, entry)
		switch {
		case errors.Is(err, datastore.ErrEntryNotPending):
			stats.Skipped++
		case err != nil:
			stats.Failed++
			c.log.Error("reconcile failed",
				logger.String("entry_id", entry.ID),
				logger.String("user_id", entry.UserID),
				logger.Error(err))
		default:
			stats.Finalized++
			if cleared {
				stats.DraftsCleared++
			}
			entry.Status = observation.StatusMapVisible
			entry.DraftToken = ""
			c.notify(ctx, entry)
		}
	}

	purged, err := observation.CallWithTimeout(ctx, c.timeout, func(ctx context.Context) (int64, error) {
		return c.repo.PurgeExpiredSightings(ctx, now)
	})
	if err != nil {
		c.log.Warn("purging expired sightings failed", logger.Error(err))
	}
	stats.SightingsPurged = purged

	c.metrics.RecordDuration(metrics.OpReconcile, time.Since(start).Seconds())
	c.metrics.RecordOperation(metrics.OpReconcile, metrics.StatusSuccess)
	if rec, ok := c.metrics.(interface{ RecordReconciled(int, int) }); ok {
		rec.RecordReconciled(stats.DraftsCleared, stats.Finalized-stats.DraftsCleared)
	}

	if stats.Pending > 0 || stats.SightingsPurged > 0 {
		c.log.Info("reconcile sweep finished",
			logger.Int("pending", stats.Pending),
			logger.Int("finalized", stats.Finalized),
			logger.Int("drafts_cleared", stats.DraftsCleared),
			logger.Int("skipped", stats.Skipped),
			logger.Int("failed", stats.Failed),
			logger.Int64("sightings_purged", stats.SightingsPurged))
	}
	return stats, ctx.Err()
}

func (c *Committer) reconcileEntry(ctx context.Context, entry observation.LogEntry) (bool, error) {
	unlock := c.locks.Lock(entry.UserID)
	defer unlock()

	// The sighting decays relative to the original confirmation.
	sighting := observation.NewActiveSighting(entry, entry.CreatedAt, c.decay)
	return observation.CallSettled(ctx, c.timeout, func(ctx context.Context) (bool, error) {
		return c.repo.ReconcileEntry(ctx, entry, sighting)
	})
}

// RunReconciler sweeps every interval until ctx is cancelled.
func (c *Committer) RunReconciler(ctx context.Context, interval, grace time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.Reconcile(ctx, grace); err != nil && ctx.Err() == nil {
				c.log.Warn("reconcile sweep failed", logger.Error(err))
			}
		}
	}
}
