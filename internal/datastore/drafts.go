package datastore

import (
	"context"

	"github.com/tphakala/fieldlog/internal/datastore/entities"
	"github.com/tphakala/fieldlog/internal/datastore/mapper"
	"github.com/tphakala/fieldlog/internal/errors"
	"github.com/tphakala/fieldlog/internal/observation"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SaveDraft upserts the user's draft row, overwriting every column.
func (ds *DataStore) SaveDraft(ctx context.Context, userID string, draft observation.Draft) error {
	db, err := ds.db(ctx)
	if err != nil {
		return err
	}
	if userID == "" {
		return validationError("user id must not be empty", "user_id", userID)
	}

	e := mapper.DraftToEntity(userID, draft.Normalize())
	if err := db.Clauses(clause.OnConflict{UpdateAll: true}).Create(e).Error; err != nil {
		return dbError(err, "save_draft", errors.PriorityHigh, "user_id", userID)
	}
	return nil
}

// GetDraft reads the user's draft row.
func (ds *DataStore) GetDraft(ctx context.Context, userID string) (observation.Draft, bool, error) {
	db, err := ds.db(ctx)
	if err != nil {
		return observation.Draft{}, false, err
	}

	var e entities.DraftEntity
	err = db.Where("user_id = ?", userID).Take(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return observation.Draft{}, false, nil
	}
	if err != nil {
		return observation.Draft{}, false, dbError(err, "get_draft", errors.PriorityMedium, "user_id", userID)
	}
	return mapper.EntityToDraft(&e), true, nil
}

// DeleteDraft removes the user's draft row if present.
func (ds *DataStore) DeleteDraft(ctx context.Context, userID string) error {
	db, err := ds.db(ctx)
	if err != nil {
		return err
	}
	if err := db.Where("user_id = ?", userID).Delete(&entities.DraftEntity{}).Error; err != nil {
		return dbError(err, "delete_draft", errors.PriorityHigh, "user_id", userID)
	}
	return nil
}

// DeleteDraftIfMatches removes the draft row only while its fingerprint matches.
func (ds *DataStore) DeleteDraftIfMatches(ctx context.Context, userID, fingerprint string) (bool, error) {
	db, err := ds.db(ctx)
	if err != nil {
		return false, err
	}
	res := db.Where("user_id = ? AND fingerprint = ?", userID, fingerprint).Delete(&entities.DraftEntity{})
	if res.Error != nil {
		return false, dbError(res.Error, "delete_draft_if_matches", errors.PriorityHigh, "user_id", userID)
	}
	return res.RowsAffected > 0, nil
}

// CountDrafts counts occupied draft slots.
func (ds *DataStore) CountDrafts(ctx context.Context) (int64, error) {
	db, err := ds.db(ctx)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := db.Model(&entities.DraftEntity{}).Count(&n).Error; err != nil {
		return 0, dbError(err, "count_drafts", errors.PriorityLow)
	}
	return n, nil
}
