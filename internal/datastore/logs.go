package datastore

import (
	"context"
	"time"

	"github.com/tphakala/fieldlog/internal/datastore/entities"
	"github.com/tphakala/fieldlog/internal/datastore/mapper"
	"github.com/tphakala/fieldlog/internal/errors"
	"github.com/tphakala/fieldlog/internal/observation"
	"gorm.io/gorm"
)

// CommitEntry promotes a draft atomically. The guarded draft delete runs
// first so a lost race writes nothing.
func (ds *DataStore) CommitEntry(ctx context.Context, entry observation.LogEntry, sighting observation.ActiveSighting, fingerprint string) error {
	db, err := ds.db(ctx)
	if err != nil {
		return err
	}

	start := time.Now()
	err = db.Transaction(func(tx *gorm.DB) error {
		res := tx.Where("user_id = ? AND fingerprint = ?", entry.UserID, fingerprint).Delete(&entities.DraftEntity{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrDraftChanged
		}
		if err := tx.Create(mapper.LogEntryToEntity(&entry)).Error; err != nil {
			return err
		}
		return tx.Create(mapper.SightingToEntity(&sighting)).Error
	})
	if errors.Is(err, ErrDraftChanged) {
		return conflictError(err, "commit_entry", "user_id", entry.UserID, "entry_id", entry.ID)
	}
	if err != nil {
		return dbError(err, "commit_entry", errors.PriorityHigh,
			"user_id", entry.UserID,
			"entry_id", entry.ID,
			"duration_ms", time.Since(start).Milliseconds())
	}
	return nil
}

// InsertPendingEntry writes the first phase of a two-phase commit.
func (ds *DataStore) InsertPendingEntry(ctx context.Context, entry observation.LogEntry) error {
	db, err := ds.db(ctx)
	if err != nil {
		return err
	}
	if entry.DraftToken == "" {
		return validationError("pending entry requires a draft token", "draft_token", entry.ID)
	}

	entry.Status = observation.StatusCommitting
	if err := db.Create(mapper.LogEntryToEntity(&entry)).Error; err != nil {
		return dbError(err, "insert_pending_entry", errors.PriorityHigh, "user_id", entry.UserID, "entry_id", entry.ID)
	}
	return nil
}

// FinalizeEntry completes the last phase of a two-phase commit.
func (ds *DataStore) FinalizeEntry(ctx context.Context, entryID string, sighting observation.ActiveSighting) error {
	db, err := ds.db(ctx)
	if err != nil {
		return err
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		return finalize(tx, entryID, sighting)
	})
	if errors.Is(err, ErrEntryNotPending) {
		return conflictError(err, "finalize_entry", "entry_id", entryID)
	}
	if err != nil {
		return dbError(err, "finalize_entry", errors.PriorityHigh, "entry_id", entryID)
	}
	return nil
}

// ReconcileEntry clears a draft still carrying the entry's token, then
// finalizes the entry, in one transaction.
func (ds *DataStore) ReconcileEntry(ctx context.Context, entry observation.LogEntry, sighting observation.ActiveSighting) (bool, error) {
	db, err := ds.db(ctx)
	if err != nil {
		return false, err
	}

	cleared := false
	err = db.Transaction(func(tx *gorm.DB) error {
		res := tx.Where("user_id = ? AND fingerprint = ?", entry.UserID, entry.DraftToken).Delete(&entities.DraftEntity{})
		if res.Error != nil {
			return res.Error
		}
		cleared = res.RowsAffected > 0
		return finalize(tx, entry.ID, sighting)
	})
	if errors.Is(err, ErrEntryNotPending) {
		return false, conflictError(err, "reconcile_entry", "entry_id", entry.ID)
	}
	if err != nil {
		return false, dbError(err, "reconcile_entry", errors.PriorityHigh, "entry_id", entry.ID)
	}
	return cleared, nil
}

func finalize(tx *gorm.DB, entryID string, sighting observation.ActiveSighting) error {
	res := tx.Model(&entities.LogEntryEntity{}).
		Where("id = ? AND status = ?", entryID, string(observation.StatusCommitting)).
		Updates(map[string]any{
			"status":      string(observation.StatusMapVisible),
			"draft_token": "",
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrEntryNotPending
	}
	return tx.Create(mapper.SightingToEntity(&sighting)).Error
}

// PendingEntries lists committing entries older than olderThan, oldest first.
func (ds *DataStore) PendingEntries(ctx context.Context, olderThan time.Time) ([]observation.LogEntry, error) {
	db, err := ds.db(ctx)
	if err != nil {
		return nil, err
	}

	var rows []entities.LogEntryEntity
	if err := db.Where("status = ? AND created_at < ?", string(observation.StatusCommitting), olderThan.UTC()).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, dbError(err, "pending_entries", errors.PriorityMedium)
	}
	return toLogEntries(rows), nil
}

// ListEntries returns final entries; committing ones are never listed.
func (ds *DataStore) ListEntries(ctx context.Context, userID string, category observation.Category) ([]observation.LogEntry, error) {
	db, err := ds.db(ctx)
	if err != nil {
		return nil, err
	}

	var rows []entities.LogEntryEntity
	if err := db.Where("user_id = ? AND category = ? AND status <> ?", userID, string(category), string(observation.StatusCommitting)).
		Order("timestamp DESC").
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, dbError(err, "list_entries", errors.PriorityMedium, "user_id", userID, "category", string(category))
	}
	return toLogEntries(rows), nil
}

// CountEntries counts entries in every state, committing included.
func (ds *DataStore) CountEntries(ctx context.Context, userID string, category observation.Category) (int64, error) {
	db, err := ds.db(ctx)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := db.Model(&entities.LogEntryEntity{}).
		Where("user_id = ? AND category = ?", userID, string(category)).
		Count(&n).Error; err != nil {
		return 0, dbError(err, "count_entries", errors.PriorityLow, "user_id", userID)
	}
	return n, nil
}

// ActiveSightings lists sightings whose decay time is still ahead of now.
func (ds *DataStore) ActiveSightings(ctx context.Context, now time.Time) ([]observation.ActiveSighting, error) {
	db, err := ds.db(ctx)
	if err != nil {
		return nil, err
	}

	var rows []entities.ActiveSightingEntity
	if err := db.Where("decay_at > ?", now.UTC()).Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, dbError(err, "active_sightings", errors.PriorityMedium)
	}

	sightings := make([]observation.ActiveSighting, 0, len(rows))
	for i := range rows {
		sightings = append(sightings, mapper.EntityToSighting(&rows[i]))
	}
	return sightings, nil
}

// PurgeExpiredSightings deletes decayed sightings.
func (ds *DataStore) PurgeExpiredSightings(ctx context.Context, now time.Time) (int64, error) {
	db, err := ds.db(ctx)
	if err != nil {
		return 0, err
	}
	res := db.Where("decay_at <= ?", now.UTC()).Delete(&entities.ActiveSightingEntity{})
	if res.Error != nil {
		return 0, dbError(res.Error, "purge_expired_sightings", errors.PriorityLow)
	}
	return res.RowsAffected, nil
}

func toLogEntries(rows []entities.LogEntryEntity) []observation.LogEntry {
	out := make([]observation.LogEntry, 0, len(rows))
	for i := range rows {
		out = append(out, mapper.EntityToLogEntry(&rows[i]))
	}
	return out
}
