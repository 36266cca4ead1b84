// Package parquet exports run history and meta reports to Parquet files
// using github.com/parquet-go/parquet-go.
package parquet

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/pkmeta/metaspot/schema"
)

// Run represents a single tracked pipeline run.
// This struct maps to the metaspot_runs database table.
type Run struct {
	RunID int64 `parquet:"run_id,snappy"`

	// ReportID is the id stamped on every archetype of the run (nullable for failed runs)
	ReportID *string `parquet:"report_id,optional,snappy"`

	StartTime time.Time  `parquet:"start_time,snappy"`
	EndTime   *time.Time `parquet:"end_time,optional,snappy"`

	// RunDurationMs is the duration of the run in milliseconds (nullable)
	RunDurationMs *int32 `parquet:"run_duration_ms,optional,snappy"`

	TotalMatches  int32 `parquet:"total_matches,snappy"`
	TotalClusters int32 `parquet:"total_clusters,snappy"`
	Reported      int32 `parquet:"reported,snappy"`
	Skipped       int32 `parquet:"skipped,snappy"`
	NoisePoints   int32 `parquet:"noise_points,snappy"`

	// ConfigParams contains the JSON-encoded configuration parameters (nullable)
	ConfigParams *string `parquet:"config_params,optional,snappy"`

	// ErrorMessage is set when the run aborted
	ErrorMessage *string `parquet:"error_message,optional,snappy"`
}

// RunCluster represents one reported archetype of a tracked run.
// This struct maps to the metaspot_run_clusters database table.
type RunCluster struct {
	RunID     int64   `parquet:"run_id,snappy"`
	ClusterID int32   `parquet:"cluster_id,snappy"`
	Count     int32   `parquet:"match_count,snappy"`
	Ratio     float64 `parquet:"ratio,snappy"`
	Winrate   float64 `parquet:"winrate,snappy"`
	MeanRank  float64 `parquet:"mean_rank,snappy"`

	// Signature lists the representative categories of the archetype
	Signature string `parquet:"signature,snappy"`
}

// ReportEntry is the flat form of one archetype in a meta report.
type ReportEntry struct {
	ReportID  string  `parquet:"report_id,snappy"`
	ClusterID int32   `parquet:"cluster_id,snappy"`
	Count     int32   `parquet:"count,snappy"`
	Ratio     float64 `parquet:"ratio,snappy"`
	Winrate   float64 `parquet:"winrate,snappy"`
	MeanRank  float64 `parquet:"mean_rank,snappy"`

	// Categories and Entities are JSON objects of name to value
	Categories string `parquet:"types,snappy"`
	Entities   string `parquet:"pokemons,snappy"`
	Teams      int32  `parquet:"teams,snappy"`
}

// SweepRow is one combination of a parameter sweep.
type SweepRow struct {
	Perplexity  float64 `parquet:"perplexity,snappy"`
	Epsilon     float64 `parquet:"epsilon,snappy"`
	MinSamples  int32   `parquet:"min_samples,snappy"`
	Clusters    int32   `parquet:"clusters,snappy"`
	Reported    int32   `parquet:"reported,snappy"`
	NoisePoints int32   `parquet:"noise_points,snappy"`
	NoiseRatio  float64 `parquet:"noise_ratio,snappy"`
}

// WriteRunsParquet writes run rows to a Parquet file.
func WriteRunsParquet(data []Run, outputPath string) error {
	return writeFile(data, outputPath)
}

// WriteRunClustersParquet writes run cluster rows to a Parquet file.
func WriteRunClustersParquet(data []RunCluster, outputPath string) error {
	return writeFile(data, outputPath)
}

// WriteReport writes the flat archetype rows of a report to w.
func WriteReport(w io.Writer, entries []schema.MetaReportEntry) error {
	rows, err := ConvertReportEntries(entries)
	if err != nil {
		return err
	}
	return write(w, rows)
}

// WriteSweep writes sweep rows to w.
func WriteSweep(w io.Writer, results []schema.SweepResult) error {
	return write(w, ConvertSweepResults(results))
}

func writeFile[T any](data []T, outputPath string) error {
	// Create the output file
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := write(file, data); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

func write[T any](w io.Writer, data []T) error {
	// The schema is derived from the struct tags of T
	writer := parquet.NewGenericWriter[T](w)
	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to write data to parquet file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize parquet file: %w", err)
	}
	return nil
}

// ConvertRunRecords converts run records from the store to Parquet rows.
func ConvertRunRecords(records []schema.RunRecord) []Run {
	result := make([]Run, len(records))
	for i, r := range records {
		result[i] = Run{
			RunID:         r.RunID,
			ReportID:      r.ReportID,
			StartTime:     r.StartTime,
			EndTime:       r.EndTime,
			RunDurationMs: r.RunDurationMs,
			TotalMatches:  r.TotalMatches,
			TotalClusters: r.TotalClusters,
			Reported:      r.Reported,
			Skipped:       r.Skipped,
			NoisePoints:   r.NoisePoints,
			ConfigParams:  r.ConfigParams,
			ErrorMessage:  r.Error,
		}
	}
	return result
}

// ConvertClusterRecords converts cluster records from the store to Parquet rows.
func ConvertClusterRecords(records []schema.ClusterRecord) []RunCluster {
	result := make([]RunCluster, len(records))
	for i, r := range records {
		result[i] = RunCluster(r)
	}
	return result
}

// ConvertReportEntries flattens archetypes, encoding their maps as JSON.
func ConvertReportEntries(entries []schema.MetaReportEntry) ([]ReportEntry, error) {
	result := make([]ReportEntry, len(entries))
	for i, e := range entries {
		categories, err := json.Marshal(e.Categories)
		if err != nil {
			return nil, fmt.Errorf("failed to encode categories of cluster %d: %w", e.ClusterID, err)
		}
		entities, err := json.Marshal(e.Entities)
		if err != nil {
			return nil, fmt.Errorf("failed to encode entities of cluster %d: %w", e.ClusterID, err)
		}
		result[i] = ReportEntry{
			ReportID:   e.ReportID,
			ClusterID:  int32(e.ClusterID),
			Count:      int32(e.Count),
			Ratio:      e.Ratio,
			Winrate:    e.Winrate,
			MeanRank:   e.MeanRank,
			Categories: string(categories),
			Entities:   string(entities),
			Teams:      int32(len(e.Teams)),
		}
	}
	return result, nil
}

// ConvertSweepResults converts sweep results to Parquet rows.
func ConvertSweepResults(results []schema.SweepResult) []SweepRow {
	rows := make([]SweepRow, len(results))
	for i, r := range results {
		rows[i] = SweepRow{
			Perplexity:  r.Perplexity,
			Epsilon:     r.Epsilon,
			MinSamples:  int32(r.MinSamples),
			Clusters:    int32(r.Clusters),
			Reported:    int32(r.Reported),
			NoisePoints: int32(r.NoisePoints),
			NoiseRatio:  r.NoiseRatio,
		}
	}
	return rows
}
