package impressions

import (
	"sync"

	"flagclient/models"
	"flagclient/util"
)

// CounterKey addresses one feature within one hour bucket.
type CounterKey struct {
	Feature   string
	Timeframe int64
}

// CountPerFeature is one drained counter entry.
type CountPerFeature struct {
	Feature   string
	Timeframe int64
	Count     int64
}

// Counter accumulates per-feature impression counts in hour buckets. Safe
// for concurrent Track and PopAll.
type Counter struct {
	mu   sync.Mutex
	data map[CounterKey]int64
}

// NewCounter returns an empty counter.
func NewCounter() *Counter {
	return &Counter{data: make(map[CounterKey]int64)}
}

// Track increments the bucket of every given impression.
func (c *Counter) Track(imps []models.Impression) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, imp := range imps {
		key := CounterKey{Feature: imp.FeatureName, Timeframe: util.TruncateToHour(imp.Time)}
		c.data[key]++
	}
}

// PopAll atomically snapshots and clears the accumulated counts.
func (c *Counter) PopAll() []CountPerFeature {
	c.mu.Lock()
	data := c.data
	c.data = make(map[CounterKey]int64)
	c.mu.Unlock()

	out := make([]CountPerFeature, 0, len(data))
	for key, count := range data {
		out = append(out, CountPerFeature{Feature: key.Feature, Timeframe: key.Timeframe, Count: count})
	}
	return out
}
