// Package reconcile provides the reconcile command.
package reconcile

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/tphakala/fieldlog/internal/app"
	"github.com/tphakala/fieldlog/internal/conf"
)

// Command creates the reconcile command.
func Command(settings *conf.Settings) *cobra.Command {
	var grace time.Duration

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Complete interrupted two-phase commits",
		Long:  "Finalize log entries left in committing state, clear the drafts they were made from and purge decayed sightings.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), settings, effectiveGrace(cmd, settings, grace), cmd.OutOrStdout())
		},
	}

	cmd.Flags().DurationVar(&grace, "grace", 0, "Only touch entries older than this (default pipeline.reconcile_grace)")
	return cmd
}

// effectiveGrace prefers an explicit --grace over the configured grace.
// Settings are loaded after flags are defined, so the flag default cannot
// carry the configured value.
func effectiveGrace(cmd *cobra.Command, settings *conf.Settings, flag time.Duration) time.Duration {
	if cmd.Flags().Changed("grace") {
		return flag
	}
	return settings.Pipeline.ReconcileGrace
}

func run(ctx context.Context, settings *conf.Settings, grace time.Duration, out io.Writer) error {
	a, err := app.New(ctx, settings)
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.Committer.Reconcile(ctx, grace)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "pending: %d, finalized: %d, drafts cleared: %d, skipped: %d, failed: %d, sightings purged: %d\n",
		stats.Pending, stats.Finalized, stats.DraftsCleared, stats.Skipped, stats.Failed, stats.SightingsPurged)
	if stats.Failed > 0 {
		return fmt.Errorf("%d entries could not be reconciled", stats.Failed)
	}
	return nil
}
