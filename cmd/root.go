// Package cmd defines the fieldlog command line.
package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tphakala/fieldlog/cmd/catalog"
	"github.com/tphakala/fieldlog/cmd/reconcile"
	"github.com/tphakala/fieldlog/cmd/serve"
	"github.com/tphakala/fieldlog/internal/conf"
	"github.com/tphakala/fieldlog/internal/logger"
	"github.com/tphakala/fieldlog/internal/telemetry"
)

// BuildInfo is stamped into settings after they are loaded.
type BuildInfo struct {
	Version   string
	BuildDate string
}

// RootCommand creates and returns the root command. settings is filled in
// by the persistent pre-run before any subcommand runs.
func RootCommand(settings *conf.Settings, build BuildInfo) *cobra.Command {
	var configFile string
	var central *logger.CentralLogger

	rootCmd := &cobra.Command{
		Use:           "fieldlog",
		Short:         "Wildlife field observation log",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config.yaml")
	if err := setupFlags(rootCmd); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(
		serve.Command(settings),
		reconcile.Command(settings),
		catalog.Command(settings),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		loaded, err := conf.Load(configFile)
		if err != nil {
			return err
		}
		*settings = *loaded
		settings.Version = build.Version
		settings.BuildDate = build.BuildDate

		central, err = logger.NewCentralLogger(&settings.Logging)
		if err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}
		logger.SetGlobal(central)

		return telemetry.InitSentry(settings)
	}

	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		telemetry.Shutdown(2 * time.Second)
		if central != nil {
			_ = central.Close()
		}
	}

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface.
func setupFlags(rootCmd *cobra.Command) error {
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug output")
	rootCmd.PersistentFlags().String("datastore", conf.DatastoreSQLite, "Datastore type (sqlite or mysql)")
	rootCmd.PersistentFlags().String("sqlite-path", "fieldlog.db", "Path of the SQLite database")
	rootCmd.PersistentFlags().String("commit-mode", conf.CommitModeTransaction, "Commit mode (transaction or two-phase)")

	for flag, key := range map[string]string{
		"debug":       "debug",
		"datastore":   "datastore.type",
		"sqlite-path": "datastore.sqlite.path",
		"commit-mode": "pipeline.commit_mode",
	} {
		if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", flag, err)
		}
	}
	return nil
}
