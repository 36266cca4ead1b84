package core

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/pkmeta/metaspot/core/features"
	"github.com/pkmeta/metaspot/internal/contract"
	"github.com/pkmeta/metaspot/schema"
)

// currentCacheVersion defines the version of the cache schema
const currentCacheVersion = 1

// cacheTTL bounds how long a stored projection is served.
const cacheTTL = 7 * 24 * time.Hour

// cachedProjection projects the category matrix, reusing a stored result for identical input.
func cachedProjection(ctx context.Context, d *Deps, table *features.Table) ([]schema.Point, error) {
	matrix := table.CategoryMatrix()
	fingerprint := d.Projector.Fingerprint()

	var store contract.CacheStore
	if d.Cache != nil {
		store = d.Cache.GetProjectionStore()
	}
	if store == nil || fingerprint == "" {
		// Fallback to direct computation
		return d.Projector.Project(ctx, matrix)
	}

	key := generateCacheKey(fingerprint, table.Schema, matrix)

	// Check for cache hit
	if points := checkCacheHit(store, key, len(matrix), d.Now()); points != nil {
		logStage(ctx, d.Logger, "projection cache hit")
		return points, nil
	}

	// Cache miss: compute and store
	return computeAndStore(ctx, d, store, key, matrix)
}

// checkCacheHit attempts to retrieve and validate a cached projection
func checkCacheHit(store contract.CacheStore, key string, rows int, now time.Time) []schema.Point {
	data, version, ts, err := store.Get(key)
	if err != nil {
		return nil // Cache miss
	}

	// Validate version and staleness
	if version != currentCacheVersion {
		return nil
	}
	if now.Sub(time.Unix(ts, 0)) > cacheTTL {
		return nil
	}
	var points []schema.Point
	if err := json.Unmarshal(data, &points); err != nil || len(points) != rows {
		return nil
	}
	return points
}

// computeAndStore runs the projector and stores its output
func computeAndStore(ctx context.Context, d *Deps, store contract.CacheStore, key string, matrix [][]float64) ([]schema.Point, error) {
	points, err := d.Projector.Project(ctx, matrix)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(points); err == nil {
		if err := store.Set(key, data, currentCacheVersion, d.Now().Unix()); err != nil {
			contract.LogWarn("Projection cache write failed", err)
		}
	}
	return points, nil
}

// generateCacheKey hashes the projector fingerprint, the column layout and every matrix value.
func generateCacheKey(fingerprint string, s *features.Schema, matrix [][]float64) string {
	h := sha256.New()
	_, _ = fmt.Fprintf(h, "v%d:%s:%d:", currentCacheVersion, fingerprint, s.Version)
	for _, c := range s.Categories {
		_, _ = fmt.Fprintf(h, "%s,", c)
	}
	var buf [8]byte
	for _, row := range matrix {
		for _, v := range row {
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
			_, _ = h.Write(buf[:])
		}
		_, _ = h.Write([]byte{'\n'})
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}
