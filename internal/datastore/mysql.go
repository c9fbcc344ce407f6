package datastore

import (
	"fmt"

	"github.com/tphakala/fieldlog/internal/conf"
	"github.com/tphakala/fieldlog/internal/errors"
	"github.com/tphakala/fieldlog/internal/logger"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// MySQLStore implements Interface for MySQL
type MySQLStore struct {
	DataStore
	Settings conf.MySQLSettings
}

func validateMySQLConfig(s conf.MySQLSettings) error {
	if s.Host == "" {
		return validationError("mysql host must not be empty", "datastore.mysql.host", s.Host)
	}
	if s.Database == "" {
		return validationError("mysql database must not be empty", "datastore.mysql.database", s.Database)
	}
	return nil
}

// dsn renders the go-sql-driver DSN; times are parsed in UTC.
func (store *MySQLStore) dsn() string {
	port := store.Settings.Port
	if port == "" {
		port = "3306"
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		store.Settings.Username, store.Settings.Password,
		store.Settings.Host, port,
		store.Settings.Database)
}

// Open sets up the MySQL database connection and migrates the schema.
func (store *MySQLStore) Open() error {
	if err := validateMySQLConfig(store.Settings); err != nil {
		return err
	}

	db, err := gorm.Open(mysql.Open(store.dsn()), &gorm.Config{
		Logger: logger.NewGormLoggerAdapter(store.Logger, store.SlowThreshold),
	})
	if err != nil {
		store.Logger.Error("failed to open MySQL database",
			logger.String("host", store.Settings.Host),
			logger.String("port", store.Settings.Port),
			logger.String("database", store.Settings.Database),
			logger.Error(err))
		return dbError(err, "open_mysql", errors.PriorityCritical,
			"host", store.Settings.Host,
			"database", store.Settings.Database)
	}

	store.DB = db
	return performAutoMigration(db, store.Logger, "MySQL", redactSensitiveInfo(store.dsn()))
}
