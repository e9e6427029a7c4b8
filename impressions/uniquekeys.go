package impressions

import "sync"

// UniqueKeysTracker accumulates the distinct keys evaluated per feature
// since the last drain. Used by the None strategy.
type UniqueKeysTracker struct {
	mu    sync.Mutex
	cache map[string]map[string]struct{}
}

// NewUniqueKeysTracker returns an empty tracker.
func NewUniqueKeysTracker() *UniqueKeysTracker {
	return &UniqueKeysTracker{cache: make(map[string]map[string]struct{})}
}

// Track inserts key into the set of the given feature.
func (t *UniqueKeysTracker) Track(feature, key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	keys, ok := t.cache[feature]
	if !ok {
		keys = make(map[string]struct{})
		t.cache[feature] = keys
	}
	keys[key] = struct{}{}
}

// PopAll atomically snapshots and clears the tracked keys.
func (t *UniqueKeysTracker) PopAll() map[string]map[string]struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	data := t.cache
	t.cache = make(map[string]map[string]struct{})
	return data
}
