package core

import (
	"fmt"
	"time"

	"github.com/pkmeta/metaspot/internal/contract"
	"github.com/pkmeta/metaspot/schema"
)

// beginRun registers a run with the run store and returns its id, or 0 when untracked.
func beginRun(store contract.RunStore, cfg *contract.Config, start time.Time) int64 {
	if store == nil {
		return 0
	}
	runID, err := store.BeginRun(start, cfg.Params())
	if err != nil {
		contract.LogWarn("Run tracking initialization failed", err)
		return 0
	}
	return runID
}

// endRun finalizes a tracked run with the summary of its result.
func endRun(store contract.RunStore, runID int64, end time.Time, result *schema.MetaReport, runErr error) {
	if store == nil || runID <= 0 {
		return
	}
	summary := schema.RunSummary{}
	if result != nil {
		summary = schema.RunSummary{
			ReportID:      result.ReportID,
			TotalMatches:  result.TotalMatches,
			TotalClusters: result.Clusters,
			Reported:      len(result.Entries),
			Skipped:       len(result.Skipped),
			NoisePoints:   result.NoisePoints,
		}
	}
	if runErr != nil {
		summary.Error = fmt.Sprintf("%s: %v", contract.ErrorKind(runErr), runErr)
	}
	if err := store.EndRun(runID, end, summary); err != nil {
		contract.LogWarn("Failed to finalize run tracking", err)
	}
}
