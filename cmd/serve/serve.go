// Package serve provides the serve command.
package serve

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tphakala/fieldlog/internal/app"
	"github.com/tphakala/fieldlog/internal/conf"
)

// Command creates the serve command.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long:  "Serve the observation pipeline over HTTP and run the two-phase reconciliation sweep in the background.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, settings)
		},
	}

	if err := setupFlags(cmd); err != nil {
		panic(err)
	}
	return cmd
}

func run(ctx context.Context, settings *conf.Settings) error {
	a, err := app.New(ctx, settings)
	if err != nil {
		return err
	}
	defer a.Close()

	return a.Serve(ctx)
}

// setupFlags configures flags specific to the serve command.
func setupFlags(cmd *cobra.Command) error {
	cmd.Flags().String("listen", ":8080", "Listen address of the HTTP API")
	cmd.Flags().Bool("metrics", true, "Expose Prometheus metrics on /metrics")
	cmd.Flags().Bool("mqtt", false, "Publish confirmed sightings to the MQTT broker")

	for flag, key := range map[string]string{
		"listen":  "webserver.listen",
		"metrics": "metrics.enabled",
		"mqtt":    "mqtt.enabled",
	} {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", flag, err)
		}
	}
	return nil
}
