package core

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestContextConcurrentAccess tests that context values can be safely accessed concurrently.
func TestContextConcurrentAccess(t *testing.T) {
	ctx := withRunID(withSuppressProgress(context.Background()), 12345)

	const numGoroutines = 50
	var wg sync.WaitGroup
	for i := range numGoroutines {
		wg.Go(func() {
			assert.True(t, shouldSuppressProgress(ctx), "Goroutine %d: progress should be suppressed", i)
			assert.Equal(t, int64(12345), runIDFromContext(ctx), "Goroutine %d: run id should be 12345", i)
		})
	}
	wg.Wait()
}

// TestContextDefaults tests the values read from a bare context.
func TestContextDefaults(t *testing.T) {
	ctx := context.Background()
	assert.False(t, shouldSuppressProgress(ctx))
	assert.Zero(t, runIDFromContext(ctx))

	// Foreign values under the same key name are ignored.
	ctx = context.WithValue(ctx, runIDKey, "7")
	assert.Zero(t, runIDFromContext(ctx))
}

// TestContextIsolation tests that derived contexts do not leak into each other.
func TestContextIsolation(t *testing.T) {
	base := context.Background()
	ctx1 := withRunID(base, 1)
	ctx2 := withRunID(base, 2)
	ctx3 := withSuppressProgress(base)

	assert.Equal(t, int64(1), runIDFromContext(ctx1))
	assert.Equal(t, int64(2), runIDFromContext(ctx2))
	assert.Zero(t, runIDFromContext(ctx3))
	assert.False(t, shouldSuppressProgress(ctx1))
	assert.True(t, shouldSuppressProgress(ctx3))
}
