package datastore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkmeta/metaspot/internal/contract"
	"github.com/pkmeta/metaspot/schema"
)

var base = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

func roster(names ...string) []schema.EntityOccurrence {
	out := make([]schema.EntityOccurrence, len(names))
	for i, n := range names {
		out[i] = schema.EntityOccurrence{Name: n}
	}
	return out
}

func sampleMatches() []schema.MatchRecord {
	return []schema.MatchRecord{
		{Time: base.Add(3 * time.Hour), Rank: 2, Entities: roster("A", "B")},
		{Time: base.Add(1 * time.Hour), Rank: 1, Entities: roster("A", "A", "C")},
		{Time: base.Add(-1 * time.Hour), Rank: 5, Entities: roster("D")},
		{Time: base.Add(2 * time.Hour), Rank: 8, Entities: nil},
	}
}

type matchStore interface {
	contract.MatchSource
	MatchWriter
}

func TestMatchStores(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	sqlStore, err := NewSQLMatchStore(schema.SQLiteBackend, filepath.Join(dir, "matches.db"), "ranked_matches")
	require.NoError(t, err)

	stores := map[string]matchStore{
		"sqlite": sqlStore,
		"file":   NewFileMatchStore(filepath.Join(dir, "matches.jsonl")),
	}

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			defer func() { _ = store.Close() }()
			require.NoError(t, store.WriteMatches(ctx, sampleMatches()))

			got, err := store.FetchMatches(ctx, base, 10)
			require.NoError(t, err)
			require.Len(t, got, 3)

			// Oldest first, strictly after the cutoff
			assert.True(t, got[0].Time.Equal(base.Add(time.Hour)))
			assert.Equal(t, 1, got[0].Rank)
			assert.Equal(t, []string{"A", "A", "C"}, got[0].EntityNames())
			assert.True(t, got[1].Time.Equal(base.Add(2*time.Hour)))
			assert.Empty(t, got[1].Entities)
			assert.Equal(t, 2, got[2].Rank)

			limited, err := store.FetchMatches(ctx, base, 2)
			require.NoError(t, err)
			assert.Len(t, limited, 2)

			none, err := store.FetchMatches(ctx, base.Add(24*time.Hour), 10)
			require.NoError(t, err)
			assert.Empty(t, none)

			_, err = store.FetchMatches(ctx, base, 0)
			assert.ErrorIs(t, err, contract.ErrConfiguration)
			_, err = store.FetchMatches(ctx, base, contract.MaxMatchWindow+1)
			assert.ErrorIs(t, err, contract.ErrConfiguration)
		})
	}
}

func TestFileMatchStore_Errors(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	_, err := NewFileMatchStore(filepath.Join(dir, "missing.jsonl")).FetchMatches(ctx, base, 10)
	assert.ErrorIs(t, err, contract.ErrDataSource)

	bad := filepath.Join(dir, "bad.jsonl")
	require.NoError(t, os.WriteFile(bad, []byte("{\"time\": 1, \"rank\": 1}\nnot json\n"), 0o644))
	_, err = NewFileMatchStore(bad).FetchMatches(ctx, time.UnixMilli(0), 10)
	require.ErrorIs(t, err, contract.ErrDataSource)
	assert.Contains(t, err.Error(), "bad.jsonl:2")
}

func TestFileMatchStore_ReadsExternalDocuments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "matches.jsonl")
	line := `{"time": 1714521600000, "rank": 3, "pokemons": [{"name": "A", "items": ["X"]}, {"name": "B"}], "elo": 1200}` + "\n"
	require.NoError(t, os.WriteFile(path, []byte("\n"+line), 0o644))

	got, err := NewFileMatchStore(path).FetchMatches(context.Background(), base.Add(-time.Hour), 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Time.Equal(base))
	assert.Equal(t, 3, got[0].Rank)
	assert.Equal(t, []string{"A", "B"}, got[0].EntityNames())
}

func TestSQLMatchStore_BadTable(t *testing.T) {
	_, err := NewSQLMatchStore(schema.SQLiteBackend, filepath.Join(t.TempDir(), "m.db"), "matches; drop")
	assert.ErrorIs(t, err, contract.ErrConfiguration)
}

func TestSQLReportSink(t *testing.T) {
	ctx := context.Background()
	sink, err := NewSQLReportSink(schema.SQLiteBackend, filepath.Join(t.TempDir(), "reports.db"))
	require.NoError(t, err)
	defer func() { _ = sink.Close() }()

	first := []schema.MetaReportEntry{
		{ReportID: "r1", ClusterID: 1, Count: 4, Ratio: 20, Categories: map[string]float64{"fire": 2}, Entities: map[string]float64{"A": 1}},
		{ReportID: "r1", ClusterID: 0, Count: 16, Ratio: 80, Categories: map[string]float64{"water": 2}, Entities: map[string]float64{"C": 1},
			Teams: []schema.TeamDetail{{ClusterID: 0, Rank: 1, X: 1.5, Y: -2, Entities: map[string]float64{"C": 1}}}},
	}
	require.NoError(t, sink.ReplaceReport(ctx, "meta", first))
	require.NoError(t, sink.ReplaceReport(ctx, "other", first[:1]))

	got, err := sink.ReadReport(ctx, "meta")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 0, got[0].ClusterID)
	assert.Equal(t, first[1], got[0])

	second := []schema.MetaReportEntry{{ReportID: "r2", ClusterID: 0, Count: 20, Ratio: 100}}
	require.NoError(t, sink.ReplaceReport(ctx, "meta", second))
	got, err = sink.ReadReport(ctx, "meta")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "r2", got[0].ReportID)

	// Other report names are untouched
	other, err := sink.ReadReport(ctx, "other")
	require.NoError(t, err)
	assert.Len(t, other, 1)

	// Empty replacement clears the report
	require.NoError(t, sink.ReplaceReport(ctx, "meta", nil))
	got, err = sink.ReadReport(ctx, "meta")
	require.NoError(t, err)
	assert.Empty(t, got)

	assert.ErrorIs(t, sink.ReplaceReport(ctx, "", second), contract.ErrConfiguration)
}

func TestSQLReportSink_DuplicateClusterRollsBack(t *testing.T) {
	ctx := context.Background()
	sink, err := NewSQLReportSink(schema.SQLiteBackend, filepath.Join(t.TempDir(), "reports.db"))
	require.NoError(t, err)
	defer func() { _ = sink.Close() }()

	prior := []schema.MetaReportEntry{{ReportID: "r1", ClusterID: 0, Count: 3}}
	require.NoError(t, sink.ReplaceReport(ctx, "meta", prior))

	dup := []schema.MetaReportEntry{{ReportID: "r2", ClusterID: 5}, {ReportID: "r2", ClusterID: 5}}
	err = sink.ReplaceReport(ctx, "meta", dup)
	require.ErrorIs(t, err, contract.ErrDataSource)

	got, err := sink.ReadReport(ctx, "meta")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "r1", got[0].ReportID)
}

func TestOpenFactories(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	cfg := &contract.Config{SourceBackend: schema.FileBackend, SourceConnect: filepath.Join(dir, "m.jsonl"), SinkBackend: schema.NoneBackend}
	src, err := OpenMatchSource(ctx, cfg)
	require.NoError(t, err)
	assert.IsType(t, &FileMatchStore{}, src)

	sink, err := OpenReportSink(ctx, cfg)
	require.NoError(t, err)
	assert.Nil(t, sink)

	cfg = &contract.Config{
		SourceBackend: schema.SQLiteBackend,
		SourceConnect: filepath.Join(dir, "m.db"),
		SourceTable:   "ranked_matches",
		SinkBackend:   schema.SQLiteBackend,
		SinkConnect:   filepath.Join(dir, "m.db"),
	}
	w, err := OpenMatchWriter(ctx, cfg)
	require.NoError(t, err)
	assert.IsType(t, &SQLMatchStore{}, w)
	require.NoError(t, w.Close())

	sink, err = OpenReportSink(ctx, cfg)
	require.NoError(t, err)
	assert.IsType(t, &SQLReportSink{}, sink)
	require.NoError(t, sink.Close())

	_, err = OpenMatchSource(ctx, &contract.Config{SourceBackend: schema.NoneBackend})
	assert.ErrorIs(t, err, contract.ErrConfiguration)
	_, err = OpenReportSink(ctx, &contract.Config{SinkBackend: schema.FileBackend})
	assert.ErrorIs(t, err, contract.ErrConfiguration)
}

func TestTransactionsUnsupported(t *testing.T) {
	assert.False(t, transactionsUnsupported(os.ErrNotExist))
}
