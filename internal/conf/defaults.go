package conf

import (
	"time"

	"github.com/spf13/viper"
	"github.com/tphakala/fieldlog/internal/logger"
)

// setDefaultConfig registers a default for every setting so that a partial
// config.yaml, or none at all, still yields a runnable service.
func setDefaultConfig() {
	viper.SetDefault("debug", false)
	viper.SetDefault("main.name", "fieldlog")

	// Logging
	viper.SetDefault("logging.default_level", logger.DefaultLogLevel)
	viper.SetDefault("logging.timezone", "Local")
	viper.SetDefault("logging.console.enabled", logger.DefaultConsoleEnabled)
	viper.SetDefault("logging.console.level", logger.DefaultLogLevel)
	viper.SetDefault("logging.file_output.enabled", false)
	viper.SetDefault("logging.file_output.path", logger.DefaultLogPath)
	viper.SetDefault("logging.file_output.level", logger.DefaultLogLevel)

	// Datastore
	viper.SetDefault("datastore.type", DatastoreSQLite)
	viper.SetDefault("datastore.sqlite.path", "fieldlog.db")
	viper.SetDefault("datastore.mysql.host", "localhost")
	viper.SetDefault("datastore.mysql.port", "3306")
	viper.SetDefault("datastore.mysql.username", "fieldlog")
	viper.SetDefault("datastore.mysql.password", "")
	viper.SetDefault("datastore.mysql.database", "fieldlog")
	viper.SetDefault("datastore.slow_query", 200*time.Millisecond)

	// Photos
	viper.SetDefault("photos.driver", PhotoDriverFS)
	viper.SetDefault("photos.path", "photos")
	viper.SetDefault("photos.max_size_bytes", 20<<20)
	viper.SetDefault("photos.s3.bucket", "")
	viper.SetDefault("photos.s3.region", "us-east-1")
	viper.SetDefault("photos.s3.endpoint", "")
	viper.SetDefault("photos.s3.pathstyle", false)
	viper.SetDefault("photos.s3.accesskeyid", "")
	viper.SetDefault("photos.s3.secretaccesskey", "")

	// Capture and lookups
	viper.SetDefault("capture.timeout", 30*time.Second)
	viper.SetDefault("capture.location_timeout", 10*time.Second)
	viper.SetDefault("catalog.cache_ttl", 5*time.Minute)
	viper.SetDefault("catalog.fetch_timeout", 10*time.Second)

	// Pipeline
	viper.SetDefault("pipeline.commit_mode", CommitModeTransaction)
	viper.SetDefault("pipeline.store_timeout", 10*time.Second)
	viper.SetDefault("pipeline.session_ttl", 30*time.Minute)
	viper.SetDefault("pipeline.reconcile_interval", time.Minute)
	viper.SetDefault("pipeline.reconcile_grace", 2*time.Minute)

	viper.SetDefault("sightings.decay", time.Hour)

	// MQTT
	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("mqtt.topic", "fieldlog/sightings")
	viper.SetDefault("mqtt.username", "")
	viper.SetDefault("mqtt.password", "")
	viper.SetDefault("mqtt.retain", false)

	viper.SetDefault("push.enabled", false)
	viper.SetDefault("push.urls", []string{})
	viper.SetDefault("push.timeout", 10*time.Second)

	// Web server
	viper.SetDefault("webserver.listen", ":8080")
	viper.SetDefault("webserver.identity_header", "X-User-ID")
	viper.SetDefault("webserver.debug", false)

	viper.SetDefault("sentry.enabled", false)
	viper.SetDefault("sentry.dsn", "")
	viper.SetDefault("metrics.enabled", true)
}
