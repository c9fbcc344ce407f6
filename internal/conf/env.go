package conf

import (
	"fmt"

	"github.com/spf13/viper"
)

// envBinding maps a config key to its environment variable.
type envBinding struct {
	ConfigKey string
	EnvVar    string
}

// envBindings lists the settings that can be overridden from the environment.
// Secrets are included so they can stay out of config.yaml.
var envBindings = []envBinding{
	{"debug", "FIELDLOG_DEBUG"},
	{"logging.default_level", "FIELDLOG_LOG_LEVEL"},
	{"datastore.type", "FIELDLOG_DATASTORE_TYPE"},
	{"datastore.sqlite.path", "FIELDLOG_SQLITE_PATH"},
	{"datastore.mysql.host", "FIELDLOG_MYSQL_HOST"},
	{"datastore.mysql.port", "FIELDLOG_MYSQL_PORT"},
	{"datastore.mysql.username", "FIELDLOG_MYSQL_USERNAME"},
	{"datastore.mysql.password", "FIELDLOG_MYSQL_PASSWORD"},
	{"datastore.mysql.database", "FIELDLOG_MYSQL_DATABASE"},
	{"photos.driver", "FIELDLOG_PHOTOS_DRIVER"},
	{"photos.path", "FIELDLOG_PHOTOS_PATH"},
	{"photos.s3.bucket", "FIELDLOG_S3_BUCKET"},
	{"photos.s3.region", "FIELDLOG_S3_REGION"},
	{"photos.s3.endpoint", "FIELDLOG_S3_ENDPOINT"},
	{"photos.s3.accesskeyid", "FIELDLOG_S3_ACCESS_KEY_ID"},
	{"photos.s3.secretaccesskey", "FIELDLOG_S3_SECRET_ACCESS_KEY"},
	{"pipeline.commit_mode", "FIELDLOG_COMMIT_MODE"},
	{"mqtt.enabled", "FIELDLOG_MQTT_ENABLED"},
	{"mqtt.broker", "FIELDLOG_MQTT_BROKER"},
	{"mqtt.username", "FIELDLOG_MQTT_USERNAME"},
	{"mqtt.password", "FIELDLOG_MQTT_PASSWORD"},
	{"push.enabled", "FIELDLOG_PUSH_ENABLED"},
	{"webserver.listen", "FIELDLOG_LISTEN"},
	{"sentry.enabled", "FIELDLOG_SENTRY_ENABLED"},
	{"sentry.dsn", "FIELDLOG_SENTRY_DSN"},
}

// bindEnvVars registers every env binding with viper.
func bindEnvVars() error {
	for _, b := range envBindings {
		if err := viper.BindEnv(b.ConfigKey, b.EnvVar); err != nil {
			return fmt.Errorf("failed to bind %s to %s: %w", b.EnvVar, b.ConfigKey, err)
		}
	}
	return nil
}
