// Package sync keeps the local split replica converged with the backend,
// either over HTTP (Synchronizer) or from a file on disk (LocalSynchronizer).
package sync

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"flagclient/api"
	"flagclient/backoff"
	"flagclient/models"
	"flagclient/storage"
	"flagclient/util"
)

const (
	onDemandFetchBackoffBase       = 10 * time.Second
	onDemandFetchBackoffMaxWait    = 30 * time.Second
	onDemandFetchBackoffMaxRetries = 10
)

// SplitFetcher is the slice of the backend API the synchronizer consumes.
type SplitFetcher interface {
	FetchSplits(ctx context.Context, changeNumber int64, opts api.FetchOptions) (*models.SplitChanges, error)
}

// Synchronizer drives fetch-until-converged split synchronization against a
// remote fetcher. Concurrent SynchronizeSplits calls are serialized.
type Synchronizer struct {
	api     SplitFetcher
	storage storage.SplitStorage
	backoff *backoff.Backoff
	logger  *logrus.Logger
	mu      sync.Mutex

	// sleep is swapped in tests to observe backoff delays without waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewSynchronizer builds a remote-mode synchronizer.
func NewSynchronizer(fetcher SplitFetcher, splitStorage storage.SplitStorage, logger *logrus.Logger) *Synchronizer {
	return &Synchronizer{
		api:     fetcher,
		storage: splitStorage,
		backoff: backoff.New(onDemandFetchBackoffBase, onDemandFetchBackoffMaxWait),
		logger:  logger,
		sleep:   util.Sleep,
	}
}

// fetchUntil hits the endpoint and updates storage until since == till.
// Returns the last seen change number and the segment names referenced by
// every split applied along the way. Fetch errors surface as-is; retries
// happen one level up.
func (s *Synchronizer) fetchUntil(ctx context.Context, opts api.FetchOptions, till *int64) (int64, map[string]struct{}, error) {
	segments := make(map[string]struct{})
	for {
		changeNumber, err := s.storage.ChangeNumber(ctx)
		if err != nil {
			s.logger.Errorf("could not read change number from storage: %v", err)
			changeNumber = -1
		}
		if till != nil && *till < changeNumber {
			// the passed till is behind the local replica, nothing to do
			return changeNumber, segments, nil
		}

		changes, err := s.api.FetchSplits(ctx, changeNumber, opts)
		if err != nil {
			s.logger.Errorf("exception raised while fetching splits: %v", err)
			return changeNumber, segments, err
		}

		for _, split := range changes.Splits {
			if split.Status == models.StatusActive {
				if err := s.storage.Put(ctx, split); err != nil {
					return changeNumber, segments, err
				}
				for _, segment := range split.SegmentNames() {
					segments[segment] = struct{}{}
				}
			} else {
				if err := s.storage.Remove(ctx, split.Name); err != nil {
					return changeNumber, segments, err
				}
			}
		}
		if err := s.storage.SetChangeNumber(ctx, changes.Till); err != nil {
			return changeNumber, segments, err
		}
		if changes.Till == changes.Since {
			return changes.Till, segments, nil
		}
	}
}

// attemptSplitSync runs fetchUntil under a bounded backoff-retry loop.
// Returns whether the target till was reached, how many attempts remain,
// the last change number and the accumulated segment names.
func (s *Synchronizer) attemptSplitSync(ctx context.Context, opts api.FetchOptions, till *int64) (bool, int, int64, map[string]struct{}, error) {
	s.backoff.Reset()
	finalSegments := make(map[string]struct{})
	remainingAttempts := onDemandFetchBackoffMaxRetries
	for {
		remainingAttempts--
		changeNumber, segments, err := s.fetchUntil(ctx, opts, till)
		mergeSegments(finalSegments, segments)
		if err != nil {
			return false, remainingAttempts, changeNumber, finalSegments, err
		}
		if till == nil || *till <= changeNumber {
			return true, remainingAttempts, changeNumber, finalSegments, nil
		}
		if remainingAttempts <= 0 {
			return false, remainingAttempts, changeNumber, finalSegments, nil
		}
		if err := s.sleep(ctx, s.backoff.Next()); err != nil {
			return false, remainingAttempts, changeNumber, finalSegments, err
		}
	}
}

// SynchronizeSplits converges the local replica, escalating to a CDN-bypass
// pass when the first pass cannot reach the requested till. Returns the
// segment names referenced by the applied splits.
func (s *Synchronizer) SynchronizeSplits(ctx context.Context, till *int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	finalSegments := make(map[string]struct{})
	opts := api.FetchOptions{CacheControlNoCache: true}

	success, remaining, changeNumber, segments, err := s.attemptSplitSync(ctx, opts, till)
	mergeSegments(finalSegments, segments)
	if err != nil {
		return nil, err
	}
	attempts := onDemandFetchBackoffMaxRetries - remaining
	if success {
		s.logger.Debugf("refresh completed in %d attempts", attempts)
		return segmentList(finalSegments), nil
	}

	withCDNBypass := api.FetchOptions{CacheControlNoCache: true, Till: &changeNumber}
	success, remaining, _, segments, err = s.attemptSplitSync(ctx, withCDNBypass, till)
	mergeSegments(finalSegments, segments)
	if err != nil {
		return nil, err
	}
	attempts = onDemandFetchBackoffMaxRetries - remaining
	if success {
		s.logger.Debugf("refresh completed bypassing the CDN in %d attempts", attempts)
	} else {
		s.logger.Debugf("no changes fetched after %d attempts with CDN bypassed", attempts)
	}
	return segmentList(finalSegments), nil
}

// LocalKill flips a stored split to killed without waiting for the backend.
func (s *Synchronizer) LocalKill(ctx context.Context, splitName, defaultTreatment string, changeNumber int64) error {
	return s.storage.KillLocally(ctx, splitName, defaultTreatment, changeNumber)
}

func mergeSegments(dst, src map[string]struct{}) {
	for segment := range src {
		dst[segment] = struct{}{}
	}
}

func segmentList(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for segment := range set {
		out = append(out, segment)
	}
	return out
}
