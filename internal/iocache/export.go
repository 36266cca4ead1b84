package iocache

import (
	"errors"
	"fmt"
	"io"

	"github.com/pkmeta/metaspot/internal/contract"
	"github.com/pkmeta/metaspot/internal/parquet"
)

// ExecuteRunsExport writes the run history of store to two Parquet files prefixed by outputFile.
func ExecuteRunsExport(w io.Writer, store contract.RunStore, outputFile string) error {
	if outputFile == "" {
		return errors.New("--output-file is required for export command")
	}
	if store == nil {
		return errors.New("run tracking is not configured")
	}

	status, err := store.GetStatus()
	if err != nil {
		return fmt.Errorf("failed to get run status: %w", err)
	}
	if status.TotalRuns == 0 {
		return errors.New("no run data found to export")
	}

	_, _ = fmt.Fprintf(w, "Exporting data from %s backend...\n", status.Backend)
	_, _ = fmt.Fprintf(w, "Total runs: %d\n", status.TotalRuns)
	_, _ = fmt.Fprintf(w, "Total archetype records: %d\n", status.TableSizes[runClustersTable])

	runs, err := store.GetAllRuns()
	if err != nil {
		return fmt.Errorf("failed to retrieve runs: %w", err)
	}
	clusters, err := store.GetAllClusters()
	if err != nil {
		return fmt.Errorf("failed to retrieve run clusters: %w", err)
	}

	runsFile := outputFile + ".runs.parquet"
	if err := parquet.WriteRunsParquet(parquet.ConvertRunRecords(runs), runsFile); err != nil {
		return fmt.Errorf("failed to write runs: %w", err)
	}
	_, _ = fmt.Fprintf(w, "Exported %d runs to: %s\n", len(runs), runsFile)

	clustersFile := outputFile + ".clusters.parquet"
	if err := parquet.WriteRunClustersParquet(parquet.ConvertClusterRecords(clusters), clustersFile); err != nil {
		return fmt.Errorf("failed to write run clusters: %w", err)
	}
	_, _ = fmt.Fprintf(w, "Exported %d archetype records to: %s\n", len(clusters), clustersFile)

	return nil
}
