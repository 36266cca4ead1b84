package core

import "context"

// Context keys for run options
type contextKey string

const (
	suppressProgressKey contextKey = "suppressProgress"
	runIDKey            contextKey = "runID"
)

// withSuppressProgress silences per-stage progress logs, e.g. for each combination of a sweep.
func withSuppressProgress(ctx context.Context) context.Context {
	return context.WithValue(ctx, suppressProgressKey, true)
}

// shouldSuppressProgress returns whether stage progress should be hidden
func shouldSuppressProgress(ctx context.Context) bool {
	val := ctx.Value(suppressProgressKey)
	if val == nil {
		return false // default: show progress
	}
	suppress, ok := val.(bool)
	return ok && suppress
}

// withRunID stores the tracked run id
func withRunID(ctx context.Context, runID int64) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// runIDFromContext returns the tracked run id, or 0 when the run is not tracked
func runIDFromContext(ctx context.Context) int64 {
	val := ctx.Value(runIDKey)
	if val == nil {
		return 0
	}
	id, ok := val.(int64)
	if !ok {
		return 0
	}
	return id
}
