package outwriter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/pkmeta/metaspot/internal/contract"
	"github.com/pkmeta/metaspot/schema"
)

func sampleReport() *schema.MetaReport {
	return &schema.MetaReport{
		ReportID:     "r-1",
		Name:         "meta",
		GeneratedAt:  time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		TotalMatches: 20,
		Clusters:     3,
		NoisePoints:  1,
		Entries: []schema.MetaReportEntry{
			{
				ReportID:   "r-1",
				ClusterID:  0,
				Count:      4,
				Ratio:      20,
				Winrate:    5,
				MeanRank:   2.5,
				Categories: map[string]float64{"ranger": 2},
				Entities:   map[string]float64{"Ashe": 1, "Vayne": 1},
				Teams: []schema.TeamDetail{
					{ClusterID: 0, Rank: 1, X: 1.5, Y: -2, Entities: map[string]float64{"Ashe": 1, "Vayne": 1}},
				},
			},
			{
				ReportID:   "r-1",
				ClusterID:  1,
				Count:      15,
				Ratio:      75,
				Winrate:    10,
				MeanRank:   4.5,
				Categories: map[string]float64{"knight": 4, "guardian": 2},
				Entities:   map[string]float64{"Leona": 1},
				Synergies:  map[string]int{"knight": 4, "guardian": 2},
			},
		},
		Skipped: []schema.SkippedCluster{{ClusterID: 2, Size: 3}},
	}
}

func TestWriteJSONReport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeJSONReport(&buf, sampleReport()))

	var result map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &result))

	assert.Equal(t, "r-1", result["report_id"])
	assert.Equal(t, float64(20), result["total_matches"])
	entries, ok := result["entries"].([]any)
	require.True(t, ok)
	require.Len(t, entries, 2)

	top := entries[0].(map[string]any)
	assert.Equal(t, float64(1), top["rank"])
	assert.Equal(t, float64(1), top["cluster_id"])
	assert.Equal(t, contract.DominantValue, top["label"])
	assert.Equal(t, map[string]any{"knight": float64(4), "guardian": float64(2)}, top["types"])
}

func TestWriteCSVReport(t *testing.T) {
	fmtFloat, intFmt := createFormatters(2)
	var buf bytes.Buffer
	require.NoError(t, writeCSVReport(&buf, sampleReport(), fmtFloat, intFmt))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, "rank", records[0][0])
	assert.Equal(t, []string{
		"1", "1", "15", "75.00", "10.00", "4.50", contract.DominantValue,
		"knight=4.00|guardian=2.00", "Leona=1.00", "guardian=2|knight=4", "r-1",
	}, records[1])
	assert.Equal(t, "Ashe=1.00|Vayne=1.00", records[2][8])
	assert.Equal(t, "", records[2][9])
}

func TestWriteReportTable(t *testing.T) {
	cfg := &contract.Config{Width: 120, CacheBackend: schema.SQLiteBackend}
	fmtFloat, intFmt := createFormatters(1)

	var buf bytes.Buffer
	require.NoError(t, writeReportTable(&buf, sampleReport(), cfg, fmtFloat, intFmt, 2*time.Second))

	out := buf.String()
	assert.Contains(t, out, "knight=4 guardian=2")
	assert.Contains(t, out, "75.0")
	assert.Contains(t, out, contract.DominantValue)
	assert.Contains(t, out, "Showing 2 archetypes from 20 matches (clusters: 3, skipped: 1, noise: 1)")
	assert.Contains(t, out, "Report meta (r-1) completed in 2s. Cache backend: sqlite")
	assert.Less(t, strings.Index(out, "knight"), strings.Index(out, "ranger"), "larger archetypes come first")
}

func TestWriteXLSXReport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeXLSXReport(&buf, sampleReport()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	assert.Equal(t, []string{archetypeSheet, teamSheet}, f.GetSheetList())

	rows, err := f.GetRows(archetypeSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Rank", rows[0][0])
	assert.Equal(t, []string{"1", "1", "15", "75", "10", "4.5", contract.DominantValue}, rows[1][:7])

	teams, err := f.GetRows(teamSheet)
	require.NoError(t, err)
	require.Len(t, teams, 2)
	assert.Equal(t, []string{"0", "1", "1.5", "-2", "Ashe=1 Vayne=1"}, teams[1])
}

func TestWriteReportResults_Files(t *testing.T) {
	tests := []struct {
		output schema.OutputMode
		check  func(t *testing.T, data []byte)
	}{
		{schema.JSONOut, func(t *testing.T, data []byte) { assert.True(t, json.Valid(data)) }},
		{schema.CSVOut, func(t *testing.T, data []byte) { assert.True(t, strings.HasPrefix(string(data), "rank,cluster_id")) }},
		{schema.XLSXOut, func(t *testing.T, data []byte) { assert.True(t, bytes.HasPrefix(data, []byte("PK"))) }},
		{schema.ParquetOut, func(t *testing.T, data []byte) { assert.True(t, bytes.HasPrefix(data, []byte("PAR1"))) }},
		{schema.TextOut, func(t *testing.T, data []byte) { assert.Contains(t, string(data), "Showing 2 archetypes") }},
	}

	for _, tt := range tests {
		t.Run(string(tt.output), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "report."+string(tt.output))
			cfg := &contract.Config{Output: tt.output, OutputFile: path, Precision: 2, Width: 100}

			require.NoError(t, NewOutWriter().WriteReport(sampleReport(), cfg, time.Second))

			data, err := os.ReadFile(path)
			require.NoError(t, err)
			tt.check(t, data)
		})
	}
}

func TestRankEntries(t *testing.T) {
	entries := []schema.MetaReportEntry{
		{ClusterID: 0, Ratio: 10},
		{ClusterID: 1, Ratio: 30},
		{ClusterID: 2, Ratio: 10},
	}
	ranked := rankEntries(entries)

	ids := make([]int, len(ranked))
	for i, e := range ranked {
		ids[i] = e.ClusterID
	}
	assert.Equal(t, []int{1, 0, 2}, ids)
	assert.Equal(t, 0, entries[0].ClusterID, "input is not reordered")
}
