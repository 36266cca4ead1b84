// Package contract provides interfaces and shared utilities for internal architecture.
package contract

import (
	"context"
	"time"

	"github.com/pkmeta/metaspot/schema"
)

// MaxMatchWindow caps how many matches a single run may pull from the match source.
const MaxMatchWindow = 10000

// MatchSource supplies ranked matches recorded after a cutoff.
// Implementations are opened per run and must be closed by the caller.
type MatchSource interface {
	// FetchMatches returns at most limit matches with a timestamp strictly after since.
	FetchMatches(ctx context.Context, since time.Time, limit int) ([]schema.MatchRecord, error)

	// Close releases the underlying connection.
	Close() error
}

// ReportSink receives the finished meta report.
// ReplaceReport must be all-or-nothing: the prior report set is either fully replaced or left untouched.
type ReportSink interface {
	ReplaceReport(ctx context.Context, name string, entries []schema.MetaReportEntry) error
	Close() error
}

// CacheManager defines the interface for managing cache stores.
// This allows the cache layer to be mocked for testing.
type CacheManager interface {
	GetProjectionStore() CacheStore
	GetRunStore() RunStore
}

// CacheStore defines the interface for cache data storage.
// This allows mocking the store for testing.
type CacheStore interface {
	Get(key string) ([]byte, int, int64, error)
	Set(key string, value []byte, version int, timestamp int64) error
	GetStatus() (schema.CacheStatus, error)
	Close() error
}

// RunStore defines the interface for tracking pipeline runs and their archetypes.
type RunStore interface {
	// BeginRun creates a new run and returns its unique ID
	BeginRun(startTime time.Time, configParams map[string]any) (int64, error)

	// EndRun updates the run with completion data
	EndRun(runID int64, endTime time.Time, summary schema.RunSummary) error

	// RecordClusters stores the per-archetype statistics of a run
	RecordClusters(runID int64, entries []schema.MetaReportEntry) error

	// GetStatus returns status information about the run store
	GetStatus() (schema.RunStatus, error)

	// GetAllRuns returns every tracked run ordered by id
	GetAllRuns() ([]schema.RunRecord, error)

	// GetAllClusters returns every tracked archetype ordered by run and cluster id
	GetAllClusters() ([]schema.ClusterRecord, error)

	// Close closes the underlying connection
	Close() error
}
