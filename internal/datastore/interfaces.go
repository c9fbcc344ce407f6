// Package datastore persists drafts, the species catalog and the permanent
// observation log on SQLite or MySQL through GORM.
//
// The hierarchical document paths drafts/{userId}, catalog/{category} and
// logs/{userId}/{category}/{entryId} map onto the drafts, species_records
// and log_entries tables.
package datastore

import (
	"context"
	"time"

	"github.com/tphakala/fieldlog/internal/conf"
	"github.com/tphakala/fieldlog/internal/errors"
	"github.com/tphakala/fieldlog/internal/logger"
	"github.com/tphakala/fieldlog/internal/observation"
	"gorm.io/gorm"
)

// Interface abstracts the underlying database implementation.
type Interface interface {
	Open() error
	Close() error
	Ping(ctx context.Context) error

	DraftRepository
	CatalogRepository
	LogRepository
}

// DraftRepository provides access to the per-user draft slot.
type DraftRepository interface {
	// SaveDraft replaces the user's draft in full; no field is merged.
	SaveDraft(ctx context.Context, userID string, draft observation.Draft) error

	// GetDraft returns the user's draft. found is false when the slot is empty.
	GetDraft(ctx context.Context, userID string) (draft observation.Draft, found bool, err error)

	// DeleteDraft empties the slot. Deleting an empty slot is not an error.
	DeleteDraft(ctx context.Context, userID string) error

	// DeleteDraftIfMatches empties the slot only while it still holds the
	// capture identified by fingerprint, and reports whether it did.
	DeleteDraftIfMatches(ctx context.Context, userID, fingerprint string) (bool, error)

	// CountDrafts returns the number of occupied draft slots.
	CountDrafts(ctx context.Context) (int64, error)
}

// CatalogRepository provides read access to the species catalog.
type CatalogRepository interface {
	// GetCatalog returns every species of category in insertion order.
	// An empty category yields an empty slice.
	GetCatalog(ctx context.Context, category observation.Category) ([]observation.SpeciesRecord, error)

	// FindSpecies looks a species up by scientific name within category.
	// Returns observation.ErrSpeciesNotFound if absent.
	FindSpecies(ctx context.Context, category observation.Category, scientificName string) (observation.SpeciesRecord, error)

	// SeedCatalog inserts records not yet present, appending them to the
	// end of their category, and refreshes names and image URLs of existing
	// ones. Returns the number of new records.
	SeedCatalog(ctx context.Context, records []observation.SpeciesRecord) (int, error)
}

// LogRepository provides access to log entries and active sightings.
type LogRepository interface {
	// CommitEntry inserts entry and sighting and deletes the user's draft in
	// one transaction. The draft must still match fingerprint, otherwise
	// ErrDraftChanged is returned and nothing is written.
	CommitEntry(ctx context.Context, entry observation.LogEntry, sighting observation.ActiveSighting, fingerprint string) error

	// InsertPendingEntry writes entry in committing state. The entry's
	// DraftToken must be set.
	InsertPendingEntry(ctx context.Context, entry observation.LogEntry) error

	// FinalizeEntry flips a committing entry to map-visible and inserts its
	// sighting. Returns ErrEntryNotPending if the entry is not committing.
	FinalizeEntry(ctx context.Context, entryID string, sighting observation.ActiveSighting) error

	// ReconcileEntry completes an interrupted two-phase commit: it deletes
	// the draft if it still carries the entry's token and finalizes the entry.
	ReconcileEntry(ctx context.Context, entry observation.LogEntry, sighting observation.ActiveSighting) (draftCleared bool, err error)

	// PendingEntries returns committing entries created before olderThan.
	PendingEntries(ctx context.Context, olderThan time.Time) ([]observation.LogEntry, error)

	// ListEntries returns a user's final entries in category, newest first.
	ListEntries(ctx context.Context, userID string, category observation.Category) ([]observation.LogEntry, error)

	// CountEntries counts a user's entries in category in any state.
	CountEntries(ctx context.Context, userID string, category observation.Category) (int64, error)

	// ActiveSightings returns sightings that have not decayed at now.
	ActiveSightings(ctx context.Context, now time.Time) ([]observation.ActiveSighting, error)

	// PurgeExpiredSightings removes sightings that decayed at or before now.
	PurgeExpiredSightings(ctx context.Context, now time.Time) (int64, error)
}

// DataStore implements Interface on top of a GORM database.
type DataStore struct {
	DB            *gorm.DB // GORM database instance
	Logger        logger.Logger
	SlowThreshold time.Duration
}

// New creates the store selected by settings.Datastore.Type. Open must be
// called before use.
func New(settings *conf.Settings, log logger.Logger) (Interface, error) {
	if log == nil {
		log = logger.Global().Module("datastore")
	}
	base := DataStore{Logger: log, SlowThreshold: settings.Datastore.SlowQuery}

	switch settings.Datastore.Type {
	case conf.DatastoreSQLite:
		return &SQLiteStore{DataStore: base, Path: settings.Datastore.SQLite.Path}, nil
	case conf.DatastoreMySQL:
		return &MySQLStore{DataStore: base, Settings: settings.Datastore.MySQL}, nil
	default:
		return nil, validationError("unsupported datastore type", "datastore.type", settings.Datastore.Type)
	}
}

func (ds *DataStore) db(ctx context.Context) (*gorm.DB, error) {
	if ds.DB == nil {
		return nil, errors.New(ErrNotOpen).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return ds.DB.WithContext(ctx), nil
}

// Ping checks that the database answers.
func (ds *DataStore) Ping(ctx context.Context) error {
	db, err := ds.db(ctx)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return dbError(err, "ping", errors.PriorityHigh)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return dbError(err, "ping", errors.PriorityHigh)
	}
	return nil
}

// Close closes the underlying connection pool.
func (ds *DataStore) Close() error {
	if ds.DB == nil {
		return nil
	}
	sqlDB, err := ds.DB.DB()
	if err != nil {
		return dbError(err, "close", errors.PriorityMedium)
	}
	if err := sqlDB.Close(); err != nil {
		return dbError(err, "close", errors.PriorityMedium)
	}
	ds.DB = nil
	return nil
}
