package datastore

import (
	"strings"
	"time"

	"github.com/tphakala/fieldlog/internal/datastore/entities"
	"github.com/tphakala/fieldlog/internal/errors"
	"github.com/tphakala/fieldlog/internal/logger"
	"gorm.io/gorm"
)

// performAutoMigration creates or updates every table the pipeline uses.
func performAutoMigration(db *gorm.DB, log logger.Logger, dbType, connectionInfo string) error {
	migrationStart := time.Now()
	migrationLogger := log.With(logger.String("db_type", dbType))

	migrationLogger.Debug("starting database migration", logger.String("target", connectionInfo))

	models := []any{
		&entities.DraftEntity{},
		&entities.SpeciesEntity{},
		&entities.LogEntryEntity{},
		&entities.ActiveSightingEntity{},
	}
	for _, model := range models {
		if err := db.AutoMigrate(model); err != nil {
			return errors.New(err).
				Component("datastore").
				Category(errors.CategoryDatabase).
				Priority(errors.PriorityCritical).
				Context("operation", "auto_migrate").
				Context("db_type", dbType).
				Context("model", modelName(model)).
				Build()
		}
	}

	migrationLogger.Debug("database migration completed",
		logger.Duration("total_duration", time.Since(migrationStart)),
		logger.Int("tables_migrated", len(models)))
	return nil
}

func modelName(model any) string {
	if t, ok := model.(interface{ TableName() string }); ok {
		return t.TableName()
	}
	return "unknown"
}

// redactSensitiveInfo hides the password of a MySQL DSN of the form
// user:pass@tcp(host:port)/db.
func redactSensitiveInfo(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	if at < 0 {
		return dsn
	}
	creds := dsn[:at]
	colon := strings.Index(creds, ":")
	if colon < 0 {
		return dsn
	}
	return creds[:colon] + ":***" + dsn[at:]
}
