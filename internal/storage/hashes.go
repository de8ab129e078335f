package storage

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

const hashKeyPrefix = "manifest-hash:"

// HashHistory records the manifest hash of the last successful install per
// project. Reads go through a small LRU in front of the store.
type HashHistory struct {
	store Store
	cache *lru.Cache[string, string]
}

// NewHashHistory wraps store with an LRU of the given size.
func NewHashHistory(store Store, cacheSize int) *HashHistory {
	if cacheSize <= 0 {
		cacheSize = 128
	}
	cache, _ := lru.New[string, string](cacheSize)
	return &HashHistory{store: store, cache: cache}
}

// Get returns the stored hash for projectID.
func (h *HashHistory) Get(ctx context.Context, projectID string) (string, bool, error) {
	if v, ok := h.cache.Get(projectID); ok {
		return v, true, nil
	}
	v, ok, err := h.store.Get(ctx, hashKeyPrefix+projectID)
	if err != nil || !ok {
		return "", false, err
	}
	h.cache.Add(projectID, v)
	return v, true, nil
}

// Put stores hash for projectID.
func (h *HashHistory) Put(ctx context.Context, projectID, hash string) error {
	if err := h.store.Set(ctx, hashKeyPrefix+projectID, hash); err != nil {
		return err
	}
	h.cache.Add(projectID, hash)
	return nil
}

// Forget drops the stored hash so the next setup reinstalls.
func (h *HashHistory) Forget(ctx context.Context, projectID string) error {
	h.cache.Remove(projectID)
	return h.store.Delete(ctx, hashKeyPrefix+projectID)
}
