// Package conf loads fieldlog settings from config.yaml, environment
// variables and command line flags.
package conf

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/spf13/viper"
	"github.com/tphakala/fieldlog/internal/errors"
	"github.com/tphakala/fieldlog/internal/logger"
)

//go:embed config.yaml
var configFiles embed.FS

// Commit modes for promoting a draft into a log entry.
const (
	CommitModeTransaction = "transaction"
	CommitModeTwoPhase    = "two-phase"
)

// Datastore drivers.
const (
	DatastoreSQLite = "sqlite"
	DatastoreMySQL  = "mysql"
)

// Photo storage drivers.
const (
	PhotoDriverFS     = "fs"
	PhotoDriverS3     = "s3"
	PhotoDriverMemory = "memory"
)

// Settings contains all configuration options for fieldlog.
type Settings struct {
	Debug bool `mapstructure:"debug" yaml:"debug"`

	Main struct {
		Name string `mapstructure:"name" yaml:"name"` // instance name, used as MQTT client id
	} `mapstructure:"main" yaml:"main"`

	Logging   logger.LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Datastore DatastoreSettings    `mapstructure:"datastore" yaml:"datastore"`
	Photos    PhotoSettings        `mapstructure:"photos" yaml:"photos"`
	Capture   CaptureSettings      `mapstructure:"capture" yaml:"capture"`
	Catalog   CatalogSettings      `mapstructure:"catalog" yaml:"catalog"`
	Pipeline  PipelineSettings     `mapstructure:"pipeline" yaml:"pipeline"`
	Sightings SightingSettings     `mapstructure:"sightings" yaml:"sightings"`
	MQTT      MQTTSettings         `mapstructure:"mqtt" yaml:"mqtt"`
	Push      PushSettings         `mapstructure:"push" yaml:"push"`
	WebServer WebServerSettings    `mapstructure:"webserver" yaml:"webserver"`
	Sentry    SentrySettings       `mapstructure:"sentry" yaml:"sentry"`
	Metrics   MetricsSettings      `mapstructure:"metrics" yaml:"metrics"`

	Version   string `mapstructure:"-" yaml:"-"` // set at build time
	BuildDate string `mapstructure:"-" yaml:"-"`
}

// DatastoreSettings selects and configures the document store.
type DatastoreSettings struct {
	Type   string         `mapstructure:"type" yaml:"type"` // sqlite or mysql
	SQLite SQLiteSettings `mapstructure:"sqlite" yaml:"sqlite"`
	MySQL  MySQLSettings  `mapstructure:"mysql" yaml:"mysql"`
	// SlowQuery is the threshold above which queries are logged as slow.
	SlowQuery time.Duration `mapstructure:"slow_query" yaml:"slow_query"`
}

// SQLiteSettings contains settings for the SQLite database.
type SQLiteSettings struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// MySQLSettings contains settings for the MySQL database.
type MySQLSettings struct {
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
	Database string `mapstructure:"database" yaml:"database"`
	Host     string `mapstructure:"host" yaml:"host"`
	Port     string `mapstructure:"port" yaml:"port"`
}

// PhotoSettings configures where captured images are kept.
type PhotoSettings struct {
	Driver       string     `mapstructure:"driver" yaml:"driver"` // fs, s3 or memory
	Path         string     `mapstructure:"path" yaml:"path"`     // root directory for the fs driver
	MaxSizeBytes int64      `mapstructure:"max_size_bytes" yaml:"max_size_bytes"`
	S3           S3Settings `mapstructure:"s3" yaml:"s3"`
}

// S3Settings configures the S3 or MinIO photo bucket.
type S3Settings struct {
	Bucket          string `mapstructure:"bucket" yaml:"bucket"`
	Region          string `mapstructure:"region" yaml:"region"`
	Endpoint        string `mapstructure:"endpoint" yaml:"endpoint"` // MinIO or other compatible endpoint
	PathStyle       bool   `mapstructure:"pathstyle" yaml:"pathstyle"`
	AccessKeyID     string `mapstructure:"accesskeyid" yaml:"accesskeyid"`
	SecretAccessKey string `mapstructure:"secretaccesskey" yaml:"secretaccesskey"`
}

// CaptureSettings bounds calls into the capture adapter and geolocation.
type CaptureSettings struct {
	Timeout         time.Duration `mapstructure:"timeout" yaml:"timeout"`
	LocationTimeout time.Duration `mapstructure:"location_timeout" yaml:"location_timeout"`
}

// CatalogSettings configures species catalog lookups.
type CatalogSettings struct {
	CacheTTL     time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"` // 0 disables caching
	FetchTimeout time.Duration `mapstructure:"fetch_timeout" yaml:"fetch_timeout"`
}

// PipelineSettings configures confirmation and session handling.
type PipelineSettings struct {
	CommitMode        string        `mapstructure:"commit_mode" yaml:"commit_mode"`
	StoreTimeout      time.Duration `mapstructure:"store_timeout" yaml:"store_timeout"`
	SessionTTL        time.Duration `mapstructure:"session_ttl" yaml:"session_ttl"`
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval" yaml:"reconcile_interval"` // 0 disables the background sweep
	ReconcileGrace    time.Duration `mapstructure:"reconcile_grace" yaml:"reconcile_grace"`
}

// SightingSettings configures active map sightings.
type SightingSettings struct {
	Decay time.Duration `mapstructure:"decay" yaml:"decay"`
}

// MQTTSettings configures the sighting publisher.
type MQTTSettings struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Broker   string `mapstructure:"broker" yaml:"broker"`
	Topic    string `mapstructure:"topic" yaml:"topic"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
	Retain   bool   `mapstructure:"retain" yaml:"retain"`
}

// PushSettings configures push notifications for new sightings. URLs use
// shoutrrr service syntax, e.g. telegram://token@telegram?chats=@channel.
type PushSettings struct {
	Enabled bool          `mapstructure:"enabled" yaml:"enabled"`
	URLs    []string      `mapstructure:"urls" yaml:"urls"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// WebServerSettings configures the HTTP API.
type WebServerSettings struct {
	Listen         string `mapstructure:"listen" yaml:"listen"`
	IdentityHeader string `mapstructure:"identity_header" yaml:"identity_header"`
	Debug          bool   `mapstructure:"debug" yaml:"debug"`
}

// SentrySettings configures error telemetry.
type SentrySettings struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	DSN     string `mapstructure:"dsn" yaml:"dsn"`
}

// MetricsSettings toggles the Prometheus endpoint.
type MetricsSettings struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables. An explicit
// configFile wins over the default search paths.
func Load(configFile string) (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	if err := initViper(configFile); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("operation", "unmarshal_settings").
			Build()
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper sets defaults, binds the environment and reads the config file.
// A missing config file is created from the embedded default.
func initViper(configFile string) error {
	setDefaultConfig()

	if err := bindEnvVars(); err != nil {
		return err
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
		return nil
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return createDefaultConfig(configPaths[0])
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig writes the embedded config.yaml into dir and reads it.
func createDefaultConfig(dir string) error {
	configPath := filepath.Join(dir, "config.yaml")

	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		return fmt.Errorf("error reading embedded config: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	logger.Global().Module("conf").Info("created default config file", logger.String("path", configPath))
	return viper.ReadInConfig()
}

// DefaultConfigYAML returns the embedded default configuration.
func DefaultConfigYAML() ([]byte, error) {
	return fs.ReadFile(configFiles, "config.yaml")
}

// GetSettings returns the settings from the last successful Load.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// GetDefaultConfigPaths returns the directories searched for config.yaml. When
// one of them already holds a config file, only that directory is returned.
func GetDefaultConfigPaths() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategorySystem).
			Context("operation", "get-home-directory").
			Build()
	}

	var configPaths []string
	if runtime.GOOS == "windows" {
		configPaths = []string{filepath.Join(homeDir, "AppData", "Roaming", "fieldlog")}
	} else {
		configPaths = []string{
			filepath.Join(homeDir, ".config", "fieldlog"),
			"/etc/fieldlog",
		}
	}

	for _, path := range configPaths {
		if _, err := os.Stat(filepath.Join(path, "config.yaml")); err == nil {
			return []string{path}, nil
		}
	}

	return configPaths, nil
}
