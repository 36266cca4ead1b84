package schema

import "time"

// RunSummary is what a finished pipeline run reports back to the run store.
type RunSummary struct {
	ReportID      string
	TotalMatches  int
	TotalClusters int
	Reported      int
	Skipped       int
	NoisePoints   int
	Error         string
}

// RunRecord represents a row from the metaspot_runs table.
type RunRecord struct {
	RunID         int64
	ReportID      *string
	StartTime     time.Time
	EndTime       *time.Time
	RunDurationMs *int32
	TotalMatches  int32
	TotalClusters int32
	Reported      int32
	Skipped       int32
	NoisePoints   int32
	ConfigParams  *string
	Error         *string
}

// ClusterRecord represents a row from the metaspot_run_clusters table.
type ClusterRecord struct {
	RunID     int64
	ClusterID int32
	Count     int32
	Ratio     float64
	Winrate   float64
	MeanRank  float64
	Signature string
}
