package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/pkmeta/metaspot/core"
	"github.com/pkmeta/metaspot/internal/contract"
	"github.com/pkmeta/metaspot/internal/outwriter"
)

// executeSweep clusters the matches under every parameter combination and prints the outcome.
func executeSweep(ctx context.Context, c *contract.Config) error {
	start := time.Now()
	deps, closeDeps, err := openDeps(ctx, c, false)
	if err != nil {
		return err
	}
	defer closeDeps()

	results, err := core.ExecuteSweep(ctx, c, deps)
	if err != nil {
		return err
	}
	return outwriter.NewOutWriter().WriteSweep(results, c, time.Since(start))
}

// sweepCmd compares projection and DBSCAN parameters.
var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Compare t-SNE and DBSCAN parameters on the same matches.",
	Long: `Load the matches once, project them once for every --perplexity and
cluster each projection for every combination of --epsilon and --min-samples.
All three flags accept comma-separated lists.

The sweep never writes to the report sink. Use it to pick parameters
before a run.

Examples:
  metaspot sweep --epsilon 2,3,4 --min-samples 5,10,20

  # Compare neighborhood sizes of the projection
  metaspot sweep --perplexity 10,20,40 --epsilon 3 --min-samples 10

  # Save the grid as CSV
  metaspot sweep --epsilon 1.5,3 --min-samples 10 --output csv --output-file sweep.csv`,
	PreRunE: sharedSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		if err := executeSweep(rootCtx, cfg); err != nil {
			contract.LogFatal("Cannot run parameter sweep", err)
		}
	},
}
