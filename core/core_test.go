package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/pkmeta/metaspot/internal/contract"
	"github.com/pkmeta/metaspot/internal/iocache"
	"github.com/pkmeta/metaspot/internal/reference"
	"github.com/pkmeta/metaspot/schema"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeSource serves a fixed batch of matches.
type fakeSource struct {
	matches []schema.MatchRecord
	err     error
	since   time.Time
	limit   int
	calls   int
}

func (s *fakeSource) FetchMatches(_ context.Context, since time.Time, limit int) ([]schema.MatchRecord, error) {
	s.calls++
	s.since, s.limit = since, limit
	if s.err != nil {
		return nil, s.err
	}
	return s.matches, nil
}

func (s *fakeSource) Close() error { return nil }

// fakeSink records every replacement.
type fakeSink struct {
	err     error
	calls   int
	name    string
	entries []schema.MetaReportEntry
}

func (s *fakeSink) ReplaceReport(_ context.Context, name string, entries []schema.MetaReportEntry) error {
	s.calls++
	if s.err != nil {
		return s.err
	}
	s.name, s.entries = name, entries
	return nil
}

func (s *fakeSink) Close() error { return nil }

// lineProjector places each row on the x axis at sum(value * (column+1) * 10),
// so identical category rows land on the same point and distinct rows are far apart.
type lineProjector struct {
	fingerprint  string
	drop         int
	err          error
	calls        int
	perplexities []float64
}

func (p *lineProjector) Project(_ context.Context, x [][]float64) ([]schema.Point, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	points := make([]schema.Point, 0, len(x))
	for _, row := range x {
		pos := 0.0
		for j, v := range row {
			pos += v * float64(j+1) * 10
		}
		points = append(points, schema.Point{X: pos})
	}
	return points[:len(points)-p.drop], nil
}

func (p *lineProjector) Fingerprint() string { return p.fingerprint }

// WithPerplexity records the requested perplexity and keeps projecting on the same line.
func (p *lineProjector) WithPerplexity(perplexity float64) Projector {
	p.perplexities = append(p.perplexities, perplexity)
	return p
}

func testReference(t *testing.T) *reference.Data {
	t.Helper()
	ref, err := reference.FromMapping(map[string][]string{
		"x": {"A", "B"},
		"y": {"C", "D"},
		"z": {"E"},
	}, nil)
	require.NoError(t, err)
	return ref
}

func team(at time.Time, rank int, names ...string) schema.MatchRecord {
	m := schema.MatchRecord{Time: at, Rank: rank}
	for _, n := range names {
		m.Entities = append(m.Entities, schema.EntityOccurrence{Name: n})
	}
	return m
}

// scenarioMatches builds 4 x-teams, 16 y-teams and optionally 3 single-entity z-teams.
func scenarioMatches(withUndefined bool) []schema.MatchRecord {
	at := testNow.Add(-time.Hour)
	var matches []schema.MatchRecord
	for i := range 4 {
		matches = append(matches, team(at, i+1, "A", "B"))
	}
	for i := range 16 {
		matches = append(matches, team(at, i%8+1, "C", "D"))
	}
	if withUndefined {
		for i := range 3 {
			matches = append(matches, team(at, i+1, "E"))
		}
	}
	return matches
}

func testConfig() *contract.Config {
	return &contract.Config{
		Since:           testNow.Add(-15 * 24 * time.Hour),
		Limit:           contract.MaxMatchWindow,
		Perplexity:      contract.DefaultPerplexity,
		MaxIter:         contract.DefaultMaxIter,
		Epsilon:         3,
		MinSamples:      3,
		Method:          "barnes_hut",
		ReportName:      "meta",
		SweepEpsilons:   []float64{3},
		SweepMinSamples: []int{3},
	}
}

func testDeps(t *testing.T, source *fakeSource, sink *fakeSink, projector Projector) Deps {
	return Deps{
		Source:    source,
		Sink:      sink,
		Reference: testReference(t),
		Projector: projector,
		Now:       func() time.Time { return testNow },
		NewID:     func() string { return "report-1" },
	}
}

func TestRunMetaAnalysis_TwoArchetypes(t *testing.T) {
	source := &fakeSource{matches: scenarioMatches(false)}
	sink := &fakeSink{}
	cfg := testConfig()

	result, err := RunMetaAnalysis(context.Background(), cfg, testDeps(t, source, sink, &lineProjector{}))
	require.NoError(t, err)

	assert.Equal(t, cfg.Since, source.since)
	assert.Equal(t, cfg.Limit, source.limit)

	assert.Equal(t, "report-1", result.ReportID)
	assert.Equal(t, "meta", result.Name)
	assert.Equal(t, 20, result.TotalMatches)
	assert.Equal(t, 2, result.Clusters)
	assert.Equal(t, 0, result.NoisePoints)
	assert.Empty(t, result.Skipped)
	require.Len(t, result.Entries, 2)

	first := result.Entries[0]
	assert.Equal(t, 0, first.ClusterID)
	assert.Equal(t, 4, first.Count)
	assert.Equal(t, 20.0, first.Ratio)
	assert.Equal(t, 5.0, first.Winrate)
	assert.Equal(t, 2.5, first.MeanRank)
	assert.Equal(t, map[string]float64{"x": 2}, first.Categories)
	assert.Equal(t, map[string]float64{"A": 1, "B": 1}, first.Entities)
	assert.Len(t, first.Teams, 4)
	assert.Equal(t, "report-1", first.ReportID)

	second := result.Entries[1]
	assert.Equal(t, 1, second.ClusterID)
	assert.Equal(t, 16, second.Count)
	assert.Equal(t, 80.0, second.Ratio)
	assert.Equal(t, 10.0, second.Winrate)
	assert.Equal(t, 4.5, second.MeanRank)
	assert.Equal(t, map[string]float64{"y": 2}, second.Categories)

	assert.Equal(t, 1, sink.calls)
	assert.Equal(t, "meta", sink.name)
	assert.Equal(t, result.Entries, sink.entries)
}

func TestRunMetaAnalysis_SkipsUndefinedCluster(t *testing.T) {
	observed, logs := observer.New(zapcore.InfoLevel)
	source := &fakeSource{matches: scenarioMatches(true)}
	sink := &fakeSink{}
	deps := testDeps(t, source, sink, &lineProjector{})
	deps.Logger = zap.New(observed)

	result, err := RunMetaAnalysis(context.Background(), testConfig(), deps)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Clusters)
	assert.Len(t, result.Entries, 2)
	assert.Equal(t, []schema.SkippedCluster{{ClusterID: 2, Size: 3}}, result.Skipped)
	assert.Equal(t, 1, logs.FilterMessage("skip undefined cluster 2 with size 3").Len())
	assert.Equal(t, 1, logs.FilterMessage("meta analysis complete").Len())

	// Ratios still use every match as the denominator.
	assert.InDelta(t, 100*4/23.0, result.Entries[0].Ratio, 1e-5)
}

func TestRunMetaAnalysis_Errors(t *testing.T) {
	ref := testReference(t)
	tests := []struct {
		name      string
		deps      Deps
		wantKind  contract.Kind
		wantFetch bool
	}{
		{
			name:     "missing source",
			deps:     Deps{Reference: ref},
			wantKind: contract.ConfigurationKind,
		},
		{
			name:     "missing reference",
			deps:     Deps{Source: &fakeSource{}},
			wantKind: contract.ConfigurationKind,
		},
		{
			name:      "source failure",
			deps:      Deps{Source: &fakeSource{err: errors.New("connection refused")}, Reference: ref, Projector: &lineProjector{}},
			wantKind:  contract.DataSourceKind,
			wantFetch: true,
		},
		{
			name:      "misaligned projection",
			deps:      Deps{Source: &fakeSource{matches: scenarioMatches(false)}, Reference: ref, Projector: &lineProjector{drop: 1}},
			wantKind:  contract.AlignmentKind,
			wantFetch: true,
		},
		{
			name:      "too few matches for the perplexity",
			deps:      Deps{Source: &fakeSource{matches: scenarioMatches(false)[:5]}, Reference: ref},
			wantKind:  contract.InsufficientDataKind,
			wantFetch: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &fakeSink{}
			tt.deps.Sink = sink

			result, err := RunMetaAnalysis(context.Background(), testConfig(), tt.deps)
			require.Error(t, err)
			assert.Nil(t, result)
			assert.Equal(t, tt.wantKind, contract.ErrorKind(err))
			assert.Zero(t, sink.calls, "sink must not be touched on failure")
			if src, ok := tt.deps.Source.(*fakeSource); ok {
				assert.Equal(t, tt.wantFetch, src.calls > 0)
			}
		})
	}
}

func TestRunMetaAnalysis_SinkFailure(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind contract.Kind
	}{
		{"plain error is wrapped", errors.New("write conflict"), contract.DataSourceKind},
		{"pipeline error is kept", contract.ConfigurationError("empty report name"), contract.ConfigurationKind},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &fakeSink{err: tt.err}
			_, err := RunMetaAnalysis(context.Background(), testConfig(),
				testDeps(t, &fakeSource{matches: scenarioMatches(false)}, sink, &lineProjector{}))
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, contract.ErrorKind(err))
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestRunMetaAnalysis_WithoutSink(t *testing.T) {
	deps := testDeps(t, &fakeSource{matches: scenarioMatches(false)}, nil, &lineProjector{})
	deps.Sink = nil

	result, err := RunMetaAnalysis(context.Background(), testConfig(), deps)
	require.NoError(t, err)
	assert.Len(t, result.Entries, 2)
}

func TestRunMetaAnalysis_NoMatchesIsInsufficient(t *testing.T) {
	deps := testDeps(t, &fakeSource{}, &fakeSink{}, nil)
	deps.Projector = nil

	_, err := RunMetaAnalysis(context.Background(), testConfig(), deps)
	assert.ErrorIs(t, err, contract.ErrInsufficientData)
}

func TestRunMetaAnalysis_TracksRun(t *testing.T) {
	runs := &iocache.MockRunStore{}
	runs.On("BeginRun", testNow, mock.Anything).Return(int64(7), nil)
	runs.On("RecordClusters", int64(7), mock.MatchedBy(func(entries []schema.MetaReportEntry) bool {
		return len(entries) == 2
	})).Return(nil)
	runs.On("EndRun", int64(7), testNow, schema.RunSummary{
		ReportID:      "report-1",
		TotalMatches:  23,
		TotalClusters: 3,
		Reported:      2,
		Skipped:       1,
	}).Return(nil)

	mgr := &iocache.MockCacheManager{}
	mgr.On("GetProjectionStore").Return(nil)
	mgr.On("GetRunStore").Return(runs)

	deps := testDeps(t, &fakeSource{matches: scenarioMatches(true)}, &fakeSink{}, &lineProjector{})
	deps.Cache = mgr

	_, err := RunMetaAnalysis(context.Background(), testConfig(), deps)
	require.NoError(t, err)
	runs.AssertExpectations(t)
	mgr.AssertExpectations(t)
}

func TestRunMetaAnalysis_TracksFailedRun(t *testing.T) {
	runs := &iocache.MockRunStore{}
	runs.On("BeginRun", testNow, mock.Anything).Return(int64(3), nil)
	runs.On("EndRun", int64(3), testNow, mock.MatchedBy(func(s schema.RunSummary) bool {
		return s.ReportID == "" && strings.HasPrefix(s.Error, string(contract.DataSourceKind)+": ")
	})).Return(nil)

	mgr := &iocache.MockCacheManager{}
	mgr.On("GetProjectionStore").Return(nil)
	mgr.On("GetRunStore").Return(runs)

	deps := testDeps(t, &fakeSource{err: errors.New("timeout")}, &fakeSink{}, &lineProjector{})
	deps.Cache = mgr

	_, err := RunMetaAnalysis(context.Background(), testConfig(), deps)
	require.Error(t, err)
	runs.AssertExpectations(t)
	runs.AssertNotCalled(t, "RecordClusters", mock.Anything, mock.Anything)
}

func TestRunMetaAnalysis_RunStoreFailureDoesNotAbort(t *testing.T) {
	runs := &iocache.MockRunStore{}
	runs.On("BeginRun", mock.Anything, mock.Anything).Return(int64(0), errors.New("disk full"))

	mgr := &iocache.MockCacheManager{}
	mgr.On("GetProjectionStore").Return(nil)
	mgr.On("GetRunStore").Return(runs)

	deps := testDeps(t, &fakeSource{matches: scenarioMatches(false)}, &fakeSink{}, &lineProjector{})
	deps.Cache = mgr

	result, err := RunMetaAnalysis(context.Background(), testConfig(), deps)
	require.NoError(t, err)
	assert.Len(t, result.Entries, 2)
	runs.AssertNotCalled(t, "EndRun", mock.Anything, mock.Anything, mock.Anything)
	runs.AssertNotCalled(t, "RecordClusters", mock.Anything, mock.Anything)
}

func TestNewTSNEProjector(t *testing.T) {
	cfg := testConfig()
	cfg.Perplexity = 12
	cfg.MaxIter = 500
	cfg.Seed = 42
	cfg.Method = "exact"

	p := NewTSNEProjector(cfg)
	assert.Equal(t, 12.0, p.Options.Perplexity)
	assert.Equal(t, 500, p.Options.MaxIter)
	assert.Equal(t, int64(42), p.Options.Seed)
	assert.EqualValues(t, "exact", p.Options.Method)

	other := NewTSNEProjector(cfg)
	assert.Equal(t, p.Fingerprint(), other.Fingerprint())
	other.Options.Seed = 43
	assert.NotEqual(t, p.Fingerprint(), other.Fingerprint())
}

func TestTSNEProjector_WithPerplexity(t *testing.T) {
	cfg := testConfig()
	cfg.Seed = 42
	p := NewTSNEProjector(cfg)

	tuned, ok := p.WithPerplexity(7).(*TSNEProjector)
	require.True(t, ok)
	assert.Equal(t, 7.0, tuned.Options.Perplexity)
	assert.Equal(t, int64(42), tuned.Options.Seed)
	assert.Equal(t, contract.DefaultPerplexity, p.Options.Perplexity, "the original is unchanged")
	assert.NotEqual(t, p.Fingerprint(), tuned.Fingerprint())
}

// tsneScenarioConfig runs the real projector with a small neighborhood on twenty matches.
func tsneScenarioConfig() *contract.Config {
	cfg := testConfig()
	cfg.Perplexity = 5
	cfg.Seed = 1
	cfg.Epsilon = 1.0
	cfg.MinSamples = 3
	return cfg
}

func TestRunMetaAnalysis_TSNEProjection(t *testing.T) {
	cfg := tsneScenarioConfig()
	sink := &fakeSink{}
	deps := testDeps(t, &fakeSource{matches: scenarioMatches(false)}, sink, nil)
	deps.Projector = NewTSNEProjector(cfg)

	result, err := RunMetaAnalysis(context.Background(), cfg, deps)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Clusters)
	assert.Equal(t, 0, result.NoisePoints)
	require.Len(t, result.Entries, 2)

	byCategory := map[string]schema.MetaReportEntry{}
	for _, e := range result.Entries {
		require.Len(t, e.Categories, 1)
		for name := range e.Categories {
			byCategory[name] = e
		}
	}
	x, y := byCategory["x"], byCategory["y"]
	assert.Equal(t, 4, x.Count)
	assert.Equal(t, 20.0, x.Ratio)
	assert.Equal(t, 5.0, x.Winrate)
	assert.Equal(t, map[string]float64{"A": 1, "B": 1}, x.Entities)
	assert.Equal(t, 16, y.Count)
	assert.Equal(t, 80.0, y.Ratio)
	assert.Equal(t, 10.0, y.Winrate)

	// Team rows keep the projected coordinates of their own match.
	for _, e := range result.Entries {
		for _, team := range e.Teams {
			assert.Equal(t, e.ClusterID, team.ClusterID)
		}
	}
	assert.Equal(t, result.Entries, sink.entries)
}

// soloScenarioMatches builds 2 teams of A and B and 18 teams holding a single y entity.
func soloScenarioMatches() []schema.MatchRecord {
	at := testNow.Add(-time.Hour)
	matches := []schema.MatchRecord{team(at, 1, "A", "B"), team(at, 2, "A", "B")}
	for i := range 18 {
		matches = append(matches, team(at, i%8+1, "C"))
	}
	return matches
}

func TestRunMetaAnalysis_SoloTeamsAreSkipped(t *testing.T) {
	observed, logs := observer.New(zapcore.InfoLevel)
	cfg := tsneScenarioConfig()
	sink := &fakeSink{}
	deps := testDeps(t, &fakeSource{matches: soloScenarioMatches()}, sink, nil)
	deps.Projector = NewTSNEProjector(cfg)
	deps.Logger = zap.New(observed)

	result, err := RunMetaAnalysis(context.Background(), cfg, deps)
	require.NoError(t, err)

	// One y category per team never passes the median > 1 rule, and the two x teams
	// are too few for min samples 3.
	assert.Empty(t, result.Entries)
	assert.Equal(t, []schema.SkippedCluster{{ClusterID: 0, Size: 17}}, result.Skipped)
	assert.Equal(t, 3, result.NoisePoints)
	assert.Equal(t, 1, logs.FilterMessage("skip undefined cluster 0 with size 17").Len())

	assert.Equal(t, 1, sink.calls, "an empty report still replaces the previous one")
	assert.Empty(t, sink.entries)
}
