package impressions

import (
	"sync"

	"flagclient/models"
	"flagclient/telemetry"
)

// Queue buffers strategy output until the external uploader drains it.
// Bounded: when full, the oldest impressions are dropped and counted.
type Queue struct {
	mu      sync.Mutex
	items   []models.Impression
	maxSize int
}

// NewQueue returns a queue holding up to maxSize impressions.
func NewQueue(maxSize int) *Queue {
	return &Queue{maxSize: maxSize}
}

// Push appends impressions, evicting from the front on overflow.
func (q *Queue) Push(imps []models.Impression) {
	if len(imps) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, imps...)
	if overflow := len(q.items) - q.maxSize; overflow > 0 {
		q.items = q.items[overflow:]
		telemetry.RecordImpressions(telemetry.ImpressionDropped, overflow)
	}
}

// PopAll atomically snapshots and clears the queue.
func (q *Queue) PopAll() []models.Impression {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

// Len returns the current queue depth.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
