package core

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pkmeta/metaspot/core/features"
	"github.com/pkmeta/metaspot/internal/iocache"
	"github.com/pkmeta/metaspot/schema"
)

func cachedDeps(t *testing.T, store *iocache.MockCacheStore, projector *lineProjector) Deps {
	mgr := &iocache.MockCacheManager{}
	mgr.On("GetProjectionStore").Return(store)
	mgr.On("GetRunStore").Return(nil)

	deps := testDeps(t, &fakeSource{matches: scenarioMatches(false)}, &fakeSink{}, projector)
	deps.Cache = mgr
	return deps
}

func encodedPoints(t *testing.T, n int, x float64) []byte {
	t.Helper()
	points := make([]schema.Point, n)
	for i := range points {
		points[i] = schema.Point{X: x}
	}
	data, err := json.Marshal(points)
	require.NoError(t, err)
	return data
}

func TestCachedProjection_Hit(t *testing.T) {
	store := &iocache.MockCacheStore{}
	// Every match on one spot: a single archetype proves the stored points were used.
	store.On("Get", mock.Anything).Return(encodedPoints(t, 20, 5), currentCacheVersion, testNow.Unix(), nil)

	projector := &lineProjector{fingerprint: "line"}
	result, err := RunMetaAnalysis(context.Background(), testConfig(), cachedDeps(t, store, projector))
	require.NoError(t, err)

	assert.Zero(t, projector.calls)
	assert.Equal(t, 1, result.Clusters)
	store.AssertExpectations(t)
	store.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCachedProjection_Miss(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		version int
		ts      int64
		err     error
	}{
		{"not found", nil, 0, 0, errors.New("not found")},
		{"old version", encodedPoints(t, 20, 5), currentCacheVersion + 1, testNow.Unix(), nil},
		{"stale", encodedPoints(t, 20, 5), currentCacheVersion, testNow.Add(-cacheTTL - time.Hour).Unix(), nil},
		{"wrong length", encodedPoints(t, 19, 5), currentCacheVersion, testNow.Unix(), nil},
		{"corrupt", []byte("{"), currentCacheVersion, testNow.Unix(), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &iocache.MockCacheStore{}
			store.On("Get", mock.Anything).Return(tt.data, tt.version, tt.ts, tt.err)
			store.On("Set", mock.Anything, mock.Anything, currentCacheVersion, testNow.Unix()).Return(nil)

			projector := &lineProjector{fingerprint: "line"}
			result, err := RunMetaAnalysis(context.Background(), testConfig(), cachedDeps(t, store, projector))
			require.NoError(t, err)

			assert.Equal(t, 1, projector.calls)
			assert.Equal(t, 2, result.Clusters)
			store.AssertExpectations(t)
		})
	}
}

func TestCachedProjection_WriteFailureIsIgnored(t *testing.T) {
	store := &iocache.MockCacheStore{}
	store.On("Get", mock.Anything).Return(nil, 0, int64(0), errors.New("not found"))
	store.On("Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("read only"))

	result, err := RunMetaAnalysis(context.Background(), testConfig(), cachedDeps(t, store, &lineProjector{fingerprint: "line"}))
	require.NoError(t, err)
	assert.Len(t, result.Entries, 2)
}

func TestCachedProjection_EmptyFingerprintBypassesStore(t *testing.T) {
	store := &iocache.MockCacheStore{}
	projector := &lineProjector{}

	_, err := RunMetaAnalysis(context.Background(), testConfig(), cachedDeps(t, store, projector))
	require.NoError(t, err)

	assert.Equal(t, 1, projector.calls)
	store.AssertNotCalled(t, "Get", mock.Anything)
}

func TestGenerateCacheKey(t *testing.T) {
	s, err := features.NewSchema([]string{"x", "y"}, []string{"A"})
	require.NoError(t, err)
	other, err := features.NewSchema([]string{"x", "z"}, []string{"A"})
	require.NoError(t, err)

	base := [][]float64{{1, 0}, {0, 2}}
	key := generateCacheKey("line", s, base)

	assert.Len(t, key, 64)
	assert.Equal(t, key, generateCacheKey("line", s, [][]float64{{1, 0}, {0, 2}}))
	assert.NotEqual(t, key, generateCacheKey("other", s, base))
	assert.NotEqual(t, key, generateCacheKey("line", other, base))
	assert.NotEqual(t, key, generateCacheKey("line", s, [][]float64{{0, 2}, {1, 0}}))
	assert.NotEqual(t, key, generateCacheKey("line", s, [][]float64{{1, 0, 0, 2}}))
}
