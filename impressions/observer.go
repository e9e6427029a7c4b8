package impressions

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"flagclient/models"
)

// DefaultObserverSize bounds the observer cache in production use.
const DefaultObserverSize = 500

// Observer remembers when each evaluation outcome was last seen so repeated
// impressions can carry their previous time. Bounded, strict LRU.
type Observer struct {
	mu    sync.Mutex
	cache *lru.Cache[uint64, int64]
}

// NewObserver builds an observer holding up to size fingerprints.
func NewObserver(size int) (*Observer, error) {
	cache, err := lru.New[uint64, int64](size)
	if err != nil {
		return nil, err
	}
	return &Observer{cache: cache}, nil
}

// TestAndSet returns a copy of the impression annotated with the time of its
// most recent previous sighting, then records the new time. The single mutex
// is enough: the operation is O(1).
func (o *Observer) TestAndSet(imp models.Impression) models.Impression {
	fingerprint := Fingerprint(imp)

	o.mu.Lock()
	defer o.mu.Unlock()
	previous, seen := o.cache.Get(fingerprint)
	o.cache.Add(fingerprint, imp.Time)
	if seen {
		imp.PreviousTime = previous
	}
	return imp
}
