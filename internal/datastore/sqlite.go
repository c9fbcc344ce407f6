package datastore

import (
	"os"
	"path/filepath"

	"github.com/tphakala/fieldlog/internal/errors"
	"github.com/tphakala/fieldlog/internal/logger"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// SQLiteStore implements Interface for SQLite
type SQLiteStore struct {
	DataStore
	Path string
}

// NewSQLiteStore returns an unopened store for the database file at path.
func NewSQLiteStore(path string, log logger.Logger) *SQLiteStore {
	if log == nil {
		log = logger.Global().Module("datastore")
	}
	return &SQLiteStore{DataStore: DataStore{Logger: log}, Path: path}
}

// Open sets up the SQLite database connection and migrates the schema.
func (store *SQLiteStore) Open() error {
	if store.Path == "" {
		return validationError("sqlite path must not be empty", "datastore.sqlite.path", store.Path)
	}

	absPath, err := filepath.Abs(store.Path)
	if err != nil {
		return dbError(err, "resolve_sqlite_path", errors.PriorityHigh, "path", store.Path)
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryFileIO).
			Context("operation", "create_database_directory").
			Context("path", absPath).
			Build()
	}

	dsn := absPath + "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.NewGormLoggerAdapter(store.Logger, store.SlowThreshold),
	})
	if err != nil {
		store.Logger.Error("failed to open SQLite database", logger.String("path", absPath), logger.Error(err))
		return dbError(err, "open_sqlite", errors.PriorityCritical, "path", absPath)
	}

	// SQLite allows a single writer at a time.
	sqlDB, err := db.DB()
	if err != nil {
		return dbError(err, "open_sqlite", errors.PriorityCritical, "path", absPath)
	}
	sqlDB.SetMaxOpenConns(1)

	store.DB = db
	return performAutoMigration(db, store.Logger, "SQLite", absPath)
}
