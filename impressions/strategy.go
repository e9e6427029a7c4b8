package impressions

import (
	"flagclient/models"
	"flagclient/util"
)

// WithAttributes pairs an impression with the evaluation attributes the
// listener wants to see.
type WithAttributes struct {
	Impression models.Impression
	Attributes map[string]interface{}
}

// Strategy decides what happens to a batch of raw impressions. The first
// return value carries the observer-annotated pairs for the listener; the
// second is the list to enqueue for upload.
type Strategy interface {
	ProcessImpressions(imps []WithAttributes) ([]WithAttributes, []models.Impression)
}

// DebugStrategy ships every impression, annotated with its previous time.
type DebugStrategy struct {
	observer *Observer
}

// NewDebugStrategy builds a Debug strategy with its own observer.
func NewDebugStrategy(observerSize int) (*DebugStrategy, error) {
	observer, err := NewObserver(observerSize)
	if err != nil {
		return nil, err
	}
	return &DebugStrategy{observer: observer}, nil
}

// ProcessImpressions implements Strategy.
func (s *DebugStrategy) ProcessImpressions(imps []WithAttributes) ([]WithAttributes, []models.Impression) {
	annotated := annotate(s.observer, imps)
	forPush := make([]models.Impression, 0, len(annotated))
	for _, pair := range annotated {
		forPush = append(forPush, pair.Impression)
	}
	return annotated, forPush
}

// OptimizedStrategy ships an evaluation outcome at most once per hour
// bucket; everything else is only counted.
type OptimizedStrategy struct {
	observer *Observer
	counter  *Counter
}

// NewOptimizedStrategy builds an Optimized strategy around the given
// counter (the counter is drained externally, so callers own it).
func NewOptimizedStrategy(counter *Counter, observerSize int) (*OptimizedStrategy, error) {
	observer, err := NewObserver(observerSize)
	if err != nil {
		return nil, err
	}
	return &OptimizedStrategy{observer: observer, counter: counter}, nil
}

// ProcessImpressions implements Strategy.
func (s *OptimizedStrategy) ProcessImpressions(imps []WithAttributes) ([]WithAttributes, []models.Impression) {
	annotated := annotate(s.observer, imps)
	all := make([]models.Impression, 0, len(annotated))
	forPush := make([]models.Impression, 0, len(annotated))
	for _, pair := range annotated {
		all = append(all, pair.Impression)
		if shouldShip(pair.Impression) {
			forPush = append(forPush, pair.Impression)
		}
	}
	s.counter.Track(all)
	return annotated, forPush
}

// shouldShip reports whether the impression's previous sighting falls in a
// strictly earlier hour bucket (or never happened). This is the only
// deduplication criterion.
func shouldShip(imp models.Impression) bool {
	return imp.PreviousTime == 0 ||
		util.TruncateToHour(imp.PreviousTime) < util.TruncateToHour(imp.Time)
}

// NoneStrategy never ships; it feeds the counter and the unique-keys
// tracker instead. The observer still runs so listeners see previous times.
type NoneStrategy struct {
	observer   *Observer
	counter    *Counter
	uniqueKeys *UniqueKeysTracker
}

// NewNoneStrategy builds a None strategy around externally-drained
// aggregates.
func NewNoneStrategy(counter *Counter, uniqueKeys *UniqueKeysTracker, observerSize int) (*NoneStrategy, error) {
	observer, err := NewObserver(observerSize)
	if err != nil {
		return nil, err
	}
	return &NoneStrategy{observer: observer, counter: counter, uniqueKeys: uniqueKeys}, nil
}

// ProcessImpressions implements Strategy.
func (s *NoneStrategy) ProcessImpressions(imps []WithAttributes) ([]WithAttributes, []models.Impression) {
	annotated := annotate(s.observer, imps)
	all := make([]models.Impression, 0, len(annotated))
	for _, pair := range annotated {
		all = append(all, pair.Impression)
		s.uniqueKeys.Track(pair.Impression.FeatureName, pair.Impression.KeyName)
	}
	s.counter.Track(all)
	return annotated, nil
}

func annotate(observer *Observer, imps []WithAttributes) []WithAttributes {
	out := make([]WithAttributes, 0, len(imps))
	for _, pair := range imps {
		out = append(out, WithAttributes{
			Impression: observer.TestAndSet(pair.Impression),
			Attributes: pair.Attributes,
		})
	}
	return out
}
