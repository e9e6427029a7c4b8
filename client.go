// Package flagclient is the composition root of the feature-flag SDK core:
// it wires configuration, storage, the split synchronizer and the
// impressions pipeline, and drives the periodic synchronization worker.
package flagclient

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"flagclient/api"
	"flagclient/config"
	"flagclient/impressions"
	"flagclient/logging"
	"flagclient/models"
	"flagclient/storage"
	splitsync "flagclient/sync"
)

// splitSynchronizer is implemented by both the remote and the local-file
// synchronizers.
type splitSynchronizer interface {
	SynchronizeSplits(ctx context.Context, till *int64) ([]string, error)
}

// Client is a ready-to-run SDK core instance.
type Client struct {
	cfg    *config.Config
	logger *logrus.Logger

	storage      storage.SplitStorage
	synchronizer splitSynchronizer
	auth         *api.AuthAPI
	watcher      *splitsync.Watcher

	manager    *impressions.Manager
	queue      *impressions.Queue
	counter    *impressions.Counter
	uniqueKeys *impressions.UniqueKeysTracker

	updates chan int64
}

// New builds a Client with an in-memory split storage.
func New(cfg *config.Config, listener impressions.Listener, logger *logrus.Logger) (*Client, error) {
	return NewWithStorage(cfg, listener, storage.NewInMemorySplitStorage(), logger)
}

// NewWithStorage builds a Client on top of a caller-provided storage (for
// example a redis-backed one shared between instances).
func NewWithStorage(cfg *config.Config, listener impressions.Listener, splitStorage storage.SplitStorage, logger *logrus.Logger) (*Client, error) {
	if logger == nil {
		logger = logging.New()
	}
	client := &Client{
		cfg:        cfg,
		logger:     logger,
		storage:    splitStorage,
		counter:    impressions.NewCounter(),
		uniqueKeys: impressions.NewUniqueKeysTracker(),
		queue:      impressions.NewQueue(cfg.ImpressionsQueueSize),
		updates:    make(chan int64, 16),
	}

	strategy, err := buildStrategy(cfg, client.counter, client.uniqueKeys)
	if err != nil {
		return nil, err
	}
	client.manager = impressions.NewManager(listener, strategy)

	if cfg.LocalhostFile != "" {
		local := splitsync.NewLocalSynchronizer(cfg.LocalhostFile, splitStorage, localhostMode(cfg.LocalhostFile), logger)
		client.synchronizer = local
		if cfg.WatchFile {
			client.watcher = splitsync.NewWatcher(local, logger)
		}
		return client, nil
	}

	if cfg.APIKey == "" {
		return nil, fmt.Errorf("an api key is required outside localhost mode")
	}
	metadata := api.Metadata{
		SDKVersion:  config.SDKVersion,
		MachineName: cfg.MachineName,
		InstanceID:  cfg.InstanceID,
	}
	client.synchronizer = splitsync.NewSynchronizer(
		api.NewSplitAPI(cfg.SDKURL, cfg.APIKey, metadata, logger),
		splitStorage,
		logger,
	)
	client.auth = api.NewAuthAPI(cfg.AuthURL, cfg.APIKey, metadata, logger)
	return client, nil
}

func buildStrategy(cfg *config.Config, counter *impressions.Counter, uniqueKeys *impressions.UniqueKeysTracker) (impressions.Strategy, error) {
	switch cfg.ImpressionsMode {
	case config.ImpressionsModeDebug:
		return impressions.NewDebugStrategy(cfg.ObserverSize)
	case config.ImpressionsModeNone:
		return impressions.NewNoneStrategy(counter, uniqueKeys, cfg.ObserverSize)
	default:
		return impressions.NewOptimizedStrategy(counter, cfg.ObserverSize)
	}
}

// localhostMode picks the file format from the extension.
func localhostMode(filename string) splitsync.LocalhostMode {
	lower := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(lower, ".json"):
		return splitsync.LocalhostJSON
	case strings.HasSuffix(lower, ".yaml"), strings.HasSuffix(lower, ".yml"):
		return splitsync.LocalhostYAML
	default:
		return splitsync.LocalhostLegacy
	}
}

// Run drives the periodic split synchronization plus the streaming update
// hints until the context is cancelled. Always returns the context error.
func (c *Client) Run(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)

	refresh := c.cfg.FeaturesRefreshRate
	if refresh <= 0 {
		refresh = 30 * time.Second
	}

	group.Go(func() error {
		ticker := time.NewTicker(refresh)
		defer ticker.Stop()

		c.syncOnce(ctx, nil)
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				c.syncOnce(ctx, nil)
			case till := <-c.updates:
				c.syncOnce(ctx, &till)
			}
		}
	})

	if c.watcher != nil {
		group.Go(func() error {
			if err := c.watcher.Watch(ctx); err != nil && ctx.Err() == nil {
				c.logger.Errorf("split file watcher stopped: %v", err)
			}
			return nil
		})
	}

	return group.Wait()
}

// syncOnce runs one synchronize pass; failures are logged and left to the
// next cycle.
func (c *Client) syncOnce(ctx context.Context, till *int64) {
	if _, err := c.synchronizer.SynchronizeSplits(ctx, till); err != nil {
		if ctx.Err() == nil {
			c.logger.Errorf("split synchronization failed: %v", err)
		}
	}
}

// SynchronizeNow runs a synchronize pass inline.
func (c *Client) SynchronizeNow(ctx context.Context, till *int64) error {
	_, err := c.synchronizer.SynchronizeSplits(ctx, till)
	return err
}

// NotifyUpdate feeds a till hint from the streaming channel, triggering an
// extra synchronize cycle. Never blocks; when the hint buffer is full the
// periodic sync will catch up anyway.
func (c *Client) NotifyUpdate(till int64) {
	select {
	case c.updates <- till:
	default:
	}
}

// Authenticate performs the streaming auth handshake. Fails in localhost
// mode where there is no backend.
func (c *Client) Authenticate(ctx context.Context) (*models.Token, error) {
	if c.auth == nil {
		return nil, fmt.Errorf("authentication is not available in localhost mode")
	}
	return c.auth.Authenticate(ctx)
}

// ProcessImpressions runs the configured strategy over the given pairs,
// enqueues whatever it shipped and returns that same list.
func (c *Client) ProcessImpressions(pairs []impressions.WithAttributes) []models.Impression {
	forPush := c.manager.ProcessImpressions(pairs)
	c.queue.Push(forPush)
	return forPush
}

// PopImpressions drains the upload queue (for the impressions uploader).
func (c *Client) PopImpressions() []models.Impression {
	return c.queue.PopAll()
}

// PopCounts drains the per-feature hour-bucket counts.
func (c *Client) PopCounts() []impressions.CountPerFeature {
	return c.counter.PopAll()
}

// PopUniqueKeys drains the unique-keys tracker.
func (c *Client) PopUniqueKeys() map[string]map[string]struct{} {
	return c.uniqueKeys.PopAll()
}

// LocalKill flips a stored split to killed with the given default
// treatment. The storage change number only moves forward.
func (c *Client) LocalKill(ctx context.Context, splitName, defaultTreatment string, changeNumber int64) error {
	return c.storage.KillLocally(ctx, splitName, defaultTreatment, changeNumber)
}

// Storage exposes the split replica for the evaluator.
func (c *Client) Storage() storage.SplitStorage {
	return c.storage
}
