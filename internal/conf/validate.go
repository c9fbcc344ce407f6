package conf

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"
)

// ValidationError collects every problem found in the settings.
type ValidationError struct {
	Errors []string
}

func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings checks the loaded settings and reports all problems at once.
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	validateDatastoreSettings(&settings.Datastore, &ve)
	validatePhotoSettings(&settings.Photos, &ve)
	validateTimeouts(settings, &ve)
	validatePipelineSettings(&settings.Pipeline, &ve)
	validateMQTTSettings(&settings.MQTT, &ve)
	validatePushSettings(&settings.Push, &ve)
	validateWebServerSettings(&settings.WebServer, &ve)

	if settings.Sentry.Enabled && settings.Sentry.DSN == "" {
		ve.Errors = append(ve.Errors, "sentry.dsn is required when sentry is enabled")
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateDatastoreSettings(s *DatastoreSettings, ve *ValidationError) {
	switch s.Type {
	case DatastoreSQLite:
		if s.SQLite.Path == "" {
			ve.Errors = append(ve.Errors, "datastore.sqlite.path must not be empty")
		}
	case DatastoreMySQL:
		if s.MySQL.Host == "" || s.MySQL.Database == "" || s.MySQL.Username == "" {
			ve.Errors = append(ve.Errors, "datastore.mysql requires host, database and username")
		}
	default:
		ve.Errors = append(ve.Errors, fmt.Sprintf("datastore.type %q is not supported, use sqlite or mysql", s.Type))
	}
}

func validatePhotoSettings(s *PhotoSettings, ve *ValidationError) {
	switch s.Driver {
	case PhotoDriverFS:
		if s.Path == "" {
			ve.Errors = append(ve.Errors, "photos.path must not be empty for the fs driver")
		}
	case PhotoDriverS3:
		if s.S3.Bucket == "" {
			ve.Errors = append(ve.Errors, "photos.s3.bucket is required for the s3 driver")
		}
		if s.S3.Endpoint != "" {
			if _, err := url.ParseRequestURI(s.S3.Endpoint); err != nil {
				ve.Errors = append(ve.Errors, fmt.Sprintf("photos.s3.endpoint is not a valid URL: %v", err))
			}
		}
	case PhotoDriverMemory:
	default:
		ve.Errors = append(ve.Errors, fmt.Sprintf("photos.driver %q is not supported, use fs, s3 or memory", s.Driver))
	}

	if s.MaxSizeBytes <= 0 {
		ve.Errors = append(ve.Errors, "photos.max_size_bytes must be positive")
	}
}

// validateTimeouts rejects non-positive bounds; every external call must be bounded.
func validateTimeouts(settings *Settings, ve *ValidationError) {
	bounds := []struct {
		key   string
		value time.Duration
	}{
		{"capture.timeout", settings.Capture.Timeout},
		{"capture.location_timeout", settings.Capture.LocationTimeout},
		{"catalog.fetch_timeout", settings.Catalog.FetchTimeout},
		{"pipeline.store_timeout", settings.Pipeline.StoreTimeout},
		{"pipeline.session_ttl", settings.Pipeline.SessionTTL},
		{"sightings.decay", settings.Sightings.Decay},
	}
	for _, b := range bounds {
		if b.value <= 0 {
			ve.Errors = append(ve.Errors, fmt.Sprintf("%s must be positive, got %s", b.key, b.value))
		}
	}

	if settings.Catalog.CacheTTL < 0 {
		ve.Errors = append(ve.Errors, "catalog.cache_ttl must not be negative")
	}
}

func validatePipelineSettings(s *PipelineSettings, ve *ValidationError) {
	switch s.CommitMode {
	case CommitModeTransaction, CommitModeTwoPhase:
	default:
		ve.Errors = append(ve.Errors, fmt.Sprintf("pipeline.commit_mode %q is not supported, use transaction or two-phase", s.CommitMode))
	}

	if s.ReconcileInterval < 0 {
		ve.Errors = append(ve.Errors, "pipeline.reconcile_interval must not be negative")
	}
	if s.ReconcileGrace < 0 {
		ve.Errors = append(ve.Errors, "pipeline.reconcile_grace must not be negative")
	}
}

// mqttSchemes are the broker URL schemes the paho client can dial.
var mqttSchemes = []string{"tcp", "ssl", "tls", "mqtt", "mqtts", "ws", "wss"}

func validateMQTTSettings(s *MQTTSettings, ve *ValidationError) {
	if !s.Enabled {
		return
	}

	if s.Broker == "" {
		ve.Errors = append(ve.Errors, "mqtt.broker is required when mqtt is enabled")
	} else if u, err := url.Parse(s.Broker); err != nil || u.Host == "" || !slices.Contains(mqttSchemes, u.Scheme) {
		ve.Errors = append(ve.Errors, fmt.Sprintf("mqtt.broker %q must include a scheme such as tcp:// and a host", s.Broker))
	}

	if strings.TrimSpace(s.Topic) == "" {
		ve.Errors = append(ve.Errors, "mqtt.topic must not be empty")
	}
}

func validatePushSettings(s *PushSettings, ve *ValidationError) {
	if !s.Enabled {
		return
	}
	if len(s.URLs) == 0 {
		ve.Errors = append(ve.Errors, "push.urls needs at least one service URL when push is enabled")
	}
	if s.Timeout <= 0 {
		ve.Errors = append(ve.Errors, fmt.Sprintf("push.timeout must be positive, got %s", s.Timeout))
	}
}

func validateWebServerSettings(s *WebServerSettings, ve *ValidationError) {
	if s.Listen == "" {
		ve.Errors = append(ve.Errors, "webserver.listen must not be empty")
	}
	if strings.TrimSpace(s.IdentityHeader) == "" {
		ve.Errors = append(ve.Errors, "webserver.identity_header must not be empty")
	}
}
