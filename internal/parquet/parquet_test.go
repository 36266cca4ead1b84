package parquet

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkmeta/metaspot/schema"
)

func TestStructTags(t *testing.T) {
	tests := []struct {
		name    string
		model   any
		columns []string
	}{
		{"run", new(Run), []string{"run_id", "report_id", "start_time", "end_time", "run_duration_ms", "total_matches", "total_clusters", "reported", "skipped", "noise_points", "config_params", "error_message"}},
		{"run cluster", new(RunCluster), []string{"run_id", "cluster_id", "match_count", "ratio", "winrate", "mean_rank", "signature"}},
		{"report entry", new(ReportEntry), []string{"report_id", "cluster_id", "count", "ratio", "winrate", "mean_rank", "types", "pokemons", "teams"}},
		{"sweep", new(SweepRow), []string{"perplexity", "epsilon", "min_samples", "clusters", "reported", "noise_points", "noise_ratio"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := parquet.SchemaOf(tt.model)
			require.NotNil(t, s)
			for _, col := range tt.columns {
				_, ok := s.Lookup(col)
				assert.True(t, ok, "column %s should exist", col)
			}
		})
	}
}

func TestWriteRunsParquet(t *testing.T) {
	outputPath := filepath.Join(t.TempDir(), "runs.parquet")

	end := time.Date(2024, 5, 1, 12, 0, 30, 0, time.UTC)
	duration := int32(30000)
	reportID := "2c1f7d0e-2b44-4bd4-9c1d-ef2e0d6ab3b1"
	params := `{"epsilon":3,"min_samples":10}`
	failure := "DataSourceError: connection refused"
	data := []Run{
		{RunID: 1, ReportID: &reportID, StartTime: end.Add(-30 * time.Second), EndTime: &end, RunDurationMs: &duration, TotalMatches: 400, TotalClusters: 5, Reported: 4, Skipped: 1, NoisePoints: 12, ConfigParams: &params},
		{RunID: 2, StartTime: end, ErrorMessage: &failure},
	}

	require.NoError(t, WriteRunsParquet(data, outputPath))

	file, err := os.Open(outputPath)
	require.NoError(t, err)
	defer file.Close()

	reader := parquet.NewGenericReader[Run](file)
	defer reader.Close()

	got := make([]Run, reader.NumRows())
	n, err := reader.Read(got)
	if err != nil && err != io.EOF {
		require.NoError(t, err)
	}
	require.Equal(t, len(data), n)

	assert.Equal(t, int64(1), got[0].RunID)
	require.NotNil(t, got[0].ReportID)
	assert.Equal(t, reportID, *got[0].ReportID)
	require.NotNil(t, got[0].EndTime)
	assert.WithinDuration(t, end, *got[0].EndTime, time.Nanosecond)
	assert.Equal(t, int32(4), got[0].Reported)

	assert.Nil(t, got[1].ReportID)
	assert.Nil(t, got[1].EndTime)
	assert.Nil(t, got[1].RunDurationMs)
	require.NotNil(t, got[1].ErrorMessage)
	assert.Equal(t, failure, *got[1].ErrorMessage)
}

func TestWriteRunClustersParquet(t *testing.T) {
	outputPath := filepath.Join(t.TempDir(), "clusters.parquet")
	records := []schema.ClusterRecord{
		{RunID: 1, ClusterID: 0, Count: 40, Ratio: 25, Winrate: 10, MeanRank: 2.5, Signature: "fire+grass"},
		{RunID: 1, ClusterID: 2, Count: 20, Ratio: 12.5, Winrate: 2.5, MeanRank: 4, Signature: "water"},
	}

	require.NoError(t, WriteRunClustersParquet(ConvertClusterRecords(records), outputPath))

	rows, err := parquet.ReadFile[RunCluster](outputPath)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "fire+grass", rows[0].Signature)
	assert.Equal(t, int32(2), rows[1].ClusterID)
	assert.Equal(t, 12.5, rows[1].Ratio)
}

func TestWriteReport(t *testing.T) {
	entries := []schema.MetaReportEntry{
		{
			ReportID:   "r1",
			ClusterID:  0,
			Count:      16,
			Ratio:      80,
			Winrate:    20,
			MeanRank:   3.25,
			Categories: map[string]float64{"fire": 2},
			Entities:   map[string]float64{"A": 1, "B": 1},
			Teams:      make([]schema.TeamDetail, 16),
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, entries))

	rows, err := parquet.Read[ReportEntry](bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "r1", rows[0].ReportID)
	assert.Equal(t, int32(16), rows[0].Teams)

	var categories map[string]float64
	require.NoError(t, json.Unmarshal([]byte(rows[0].Categories), &categories))
	assert.Equal(t, map[string]float64{"fire": 2}, categories)
}

func TestWriteSweep(t *testing.T) {
	results := []schema.SweepResult{
		{Perplexity: 20, Epsilon: 3, MinSamples: 10, Clusters: 4, Reported: 3, NoisePoints: 5, NoiseRatio: 5},
		{Perplexity: 30, Epsilon: 3.5, MinSamples: 15, Clusters: 2, Reported: 2, NoisePoints: 9, NoiseRatio: 9},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteSweep(&buf, results))

	rows, err := parquet.Read[SweepRow](bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	assert.Equal(t, ConvertSweepResults(results), rows)
}

func TestConvertRunRecords(t *testing.T) {
	msg := "ConfigurationError: bad epsilon"
	records := []schema.RunRecord{{RunID: 7, TotalMatches: 10, Error: &msg}}

	rows := ConvertRunRecords(records)

	require.Len(t, rows, 1)
	assert.Equal(t, int64(7), rows[0].RunID)
	assert.Equal(t, int32(10), rows[0].TotalMatches)
	assert.Equal(t, &msg, rows[0].ErrorMessage)
}
