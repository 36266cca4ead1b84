package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/pkmeta/metaspot/core"
	"github.com/pkmeta/metaspot/internal/contract"
	"github.com/pkmeta/metaspot/internal/datastore"
	"github.com/pkmeta/metaspot/internal/outwriter"
)

// dataSourceError classifies err as a DataSourceError unless a stage already gave it a kind.
func dataSourceError(err error, format string, args ...any) error {
	if contract.ErrorKind(err) != "" {
		return err
	}
	return contract.DataSourceError(err, format, args...)
}

// openDeps loads the reference data and opens the match source, plus the report sink
// when withSink is set. The returned func closes whatever was opened.
func openDeps(ctx context.Context, c *contract.Config, withSink bool) (core.Deps, func(), error) {
	ref, err := loadReference(c)
	if err != nil {
		return core.Deps{}, nil, err
	}

	source, err := datastore.OpenMatchSource(ctx, c)
	if err != nil {
		return core.Deps{}, nil, dataSourceError(err, "cannot open %s match source", c.SourceBackend)
	}
	deps := core.Deps{
		Source:    source,
		Reference: ref,
		Cache:     cacheManager,
		Logger:    logger,
	}
	closer := func() { _ = source.Close() }
	if !withSink {
		return deps, closer, nil
	}

	sink, err := datastore.OpenReportSink(ctx, c)
	if err != nil {
		closer()
		return core.Deps{}, nil, dataSourceError(err, "cannot open %s report sink", c.SinkBackend)
	}
	if sink != nil {
		deps.Sink = sink
		closer = func() {
			_ = source.Close()
			_ = sink.Close()
		}
	}
	return deps, closer, nil
}

// executeRun runs the pipeline once and prints the report.
func executeRun(ctx context.Context, c *contract.Config) error {
	start := time.Now()
	deps, closeDeps, err := openDeps(ctx, c, true)
	if err != nil {
		return err
	}
	defer closeDeps()

	report, err := core.RunMetaAnalysis(ctx, c, deps)
	if err != nil {
		return err
	}
	return outwriter.NewOutWriter().WriteReport(report, c, time.Since(start))
}

// runCmd runs the meta analysis pipeline.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Cluster recent matches and report the archetypes of the meta.",
	Long: `Run the full meta analysis pipeline once.

Steps:
- Fetch the matches played since --since from the match source
- Build per-category and per-entity features for every team
- Project the feature table onto 2-D with t-SNE
- Cluster the projection with DBSCAN
- Summarize every cluster with a defined category signature as an archetype
- Replace the --report-name collection in the report sink

A failing step aborts the run before anything is written to the sink.

Examples:
  # Analyze the last two weeks from the default SQLite match store
  metaspot run --since "14 days"

  # Read matches from MongoDB and keep the report out of any database
  metaspot run --source-backend mongodb --source-connect mongodb://localhost:27017 --sink-backend none

  # Export the archetypes to Excel
  metaspot run --output xlsx --output-file meta.xlsx`,
	PreRunE: sharedSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		if err := executeRun(rootCtx, cfg); err != nil {
			contract.LogFatal("Cannot run meta analysis", err)
		}
	},
}
