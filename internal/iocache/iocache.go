// Package iocache persists projections and run history in SQL databases.
package iocache

import (
	"sync"

	"github.com/pkmeta/metaspot/internal/contract"
)

// CacheStoreManager manages the projection cache and the run store.
type CacheStoreManager struct {
	sync.RWMutex // Protects the store pointers during initialization
	projection   contract.CacheStore
	runs         contract.RunStore
}

var _ contract.CacheManager = &CacheStoreManager{} // Compile-time check

// NewCacheStoreManager wraps already opened stores. Either may be nil.
func NewCacheStoreManager(projection contract.CacheStore, runs contract.RunStore) *CacheStoreManager {
	return &CacheStoreManager{projection: projection, runs: runs}
}

// GetProjectionStore returns the projection CacheStore.
func (mgr *CacheStoreManager) GetProjectionStore() contract.CacheStore {
	mgr.RLock()
	defer mgr.RUnlock()
	return mgr.projection
}

// GetRunStore returns the RunStore.
func (mgr *CacheStoreManager) GetRunStore() contract.RunStore {
	mgr.RLock()
	defer mgr.RUnlock()
	return mgr.runs
}
