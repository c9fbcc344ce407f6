// Package catalog provides the catalog list and seed commands.
package catalog

import (
	"context"
	_ "embed"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/tphakala/fieldlog/internal/conf"
	"github.com/tphakala/fieldlog/internal/datastore"
	"github.com/tphakala/fieldlog/internal/observation"
	"gopkg.in/yaml.v3"
)

//go:embed seed.yaml
var defaultSeed []byte

// seedFile is the YAML layout of a catalog fixture.
type seedFile struct {
	Species []observation.SpeciesRecord `yaml:"species"`
}

// Command creates the catalog command and its subcommands.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect and seed the species catalog",
	}
	cmd.AddCommand(listCommand(settings), seedCommand(settings))
	return cmd
}

func listCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "list [category]",
		Short: "List catalog species",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			categories := observation.Categories
			if len(args) == 1 {
				c, err := observation.ParseCategory(args[0])
				if err != nil {
					return err
				}
				categories = []observation.Category{c}
			}
			return withStore(settings, func(ds datastore.Interface) error {
				return list(cmd.Context(), ds, categories, cmd.OutOrStdout())
			})
		},
	}
}

func seedCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "seed [file.yaml]",
		Short: "Load species into the catalog",
		Long:  "Insert species from a YAML fixture. Existing species keep their position and get their names and image URLs refreshed. Without a file a small development fixture is loaded.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data := defaultSeed
			if len(args) == 1 {
				var err error
				if data, err = os.ReadFile(args[0]); err != nil {
					return fmt.Errorf("error reading seed file: %w", err)
				}
			}
			records, err := parseSeed(data)
			if err != nil {
				return err
			}
			return withStore(settings, func(ds datastore.Interface) error {
				added, err := ds.SeedCatalog(cmd.Context(), records)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "seeded %d species (%d new)\n", len(records), added)
				return nil
			})
		},
	}
}

// parseSeed decodes a fixture and checks every record.
func parseSeed(data []byte) ([]observation.SpeciesRecord, error) {
	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("error parsing seed file: %w", err)
	}
	for i, rec := range seed.Species {
		if !rec.Category.Valid() {
			c, err := observation.ParseCategory(string(rec.Category))
			if err != nil {
				return nil, fmt.Errorf("species %d (%s): %w", i, rec.ScientificName, err)
			}
			seed.Species[i].Category = c
		}
		if rec.ScientificName == "" || rec.CommonName == "" {
			return nil, fmt.Errorf("species %d: common_name and scientific_name are required", i)
		}
	}
	return seed.Species, nil
}

func list(ctx context.Context, ds datastore.Interface, categories []observation.Category, out io.Writer) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CATEGORY\tCOMMON NAME\tSCIENTIFIC NAME")
	for _, c := range categories {
		records, err := ds.GetCatalog(ctx, c)
		if err != nil {
			return err
		}
		for _, rec := range records {
			fmt.Fprintf(w, "%s\t%s\t%s\n", rec.Category, rec.CommonName, rec.ScientificName)
		}
	}
	return w.Flush()
}

func withStore(settings *conf.Settings, fn func(datastore.Interface) error) error {
	ds, err := datastore.New(settings, nil)
	if err != nil {
		return err
	}
	if err := ds.Open(); err != nil {
		return err
	}
	defer ds.Close()
	return fn(ds)
}
