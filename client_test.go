package flagclient

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flagclient/config"
	"flagclient/impressions"
	"flagclient/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func localhostConfig(t *testing.T, filename, content string) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), filename)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return &config.Config{
		LocalhostFile:        path,
		FeaturesRefreshRate:  50 * time.Millisecond,
		ImpressionsMode:      config.ImpressionsModeOptimized,
		ImpressionsQueueSize: 100,
		ObserverSize:         50,
		InstanceID:           "test-instance",
		MachineName:          "test-machine",
	}
}

func TestClientRunSyncsLocalFile(t *testing.T) {
	cfg := localhostConfig(t, "splits.txt", "feat1 on\nfeat2 off\n")
	client, err := New(cfg, nil, testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- client.Run(ctx) }()

	require.Eventually(t, func() bool {
		names, err := client.Storage().SplitNames(context.Background())
		return err == nil && len(names) == 2
	}, 3*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}

func TestClientNotifyUpdateTriggersSync(t *testing.T) {
	cfg := localhostConfig(t, "splits.txt", "feat1 on\n")
	cfg.FeaturesRefreshRate = time.Hour // only the hint can trigger a sync
	client, err := New(cfg, nil, testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = client.Run(ctx) }()

	// the startup pass loads the file once
	require.Eventually(t, func() bool {
		names, err := client.Storage().SplitNames(context.Background())
		return err == nil && len(names) == 1
	}, 3*time.Second, 10*time.Millisecond)

	// grow the file; only a hint will pick it up before the hour is over
	require.NoError(t, os.WriteFile(cfg.LocalhostFile, []byte("feat1 on\nfeat2 off\n"), 0o644))
	client.NotifyUpdate(999)

	require.Eventually(t, func() bool {
		names, err := client.Storage().SplitNames(context.Background())
		return err == nil && len(names) == 2
	}, 3*time.Second, 10*time.Millisecond)
}

func TestClientImpressionsFlow(t *testing.T) {
	cfg := localhostConfig(t, "splits.txt", "feat1 on\n")
	client, err := New(cfg, nil, testLogger())
	require.NoError(t, err)

	now := int64(1_650_000_600_000) // mid hour bucket
	first := models.Impression{
		KeyName: "user1", FeatureName: "feat1", Treatment: "on",
		Label: "default rule", ChangeNumber: 123, Time: now,
	}
	repeat := first
	repeat.Time = now + 1

	shipped := client.ProcessImpressions([]impressions.WithAttributes{{Impression: first}})
	require.Len(t, shipped, 1)

	shipped = client.ProcessImpressions([]impressions.WithAttributes{{Impression: repeat}})
	assert.Empty(t, shipped, "optimized mode drops same-bucket repeats")

	queued := client.PopImpressions()
	require.Len(t, queued, 1)
	assert.Equal(t, "user1", queued[0].KeyName)
	assert.Empty(t, client.PopImpressions())

	counts := client.PopCounts()
	require.Len(t, counts, 1)
	assert.Equal(t, int64(2), counts[0].Count, "both impressions are counted")
}

func TestClientLocalKill(t *testing.T) {
	cfg := localhostConfig(t, "splits.txt", "feat1 on\n")
	client, err := New(cfg, nil, testLogger())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, client.SynchronizeNow(ctx, nil))
	require.NoError(t, client.LocalKill(ctx, "feat1", "off", 500))

	split, err := client.Storage().Get(ctx, "feat1")
	require.NoError(t, err)
	require.NotNil(t, split)
	assert.True(t, split.Killed)
	assert.Equal(t, "off", split.DefaultTreatment)
}

func TestClientRemoteModeRequiresAPIKey(t *testing.T) {
	cfg := &config.Config{
		FeaturesRefreshRate:  time.Minute,
		ImpressionsMode:      config.ImpressionsModeOptimized,
		ImpressionsQueueSize: 100,
		ObserverSize:         50,
	}
	_, err := New(cfg, nil, testLogger())
	require.Error(t, err)
}

func TestClientModeSelection(t *testing.T) {
	for _, tc := range []struct {
		mode string
		// repeats within the same hour bucket ship in debug mode only
		repeatShips bool
	}{
		{config.ImpressionsModeDebug, true},
		{config.ImpressionsModeOptimized, false},
		{config.ImpressionsModeNone, false},
	} {
		t.Run(tc.mode, func(t *testing.T) {
			cfg := localhostConfig(t, "splits.txt", "feat1 on\n")
			cfg.ImpressionsMode = tc.mode
			client, err := New(cfg, nil, testLogger())
			require.NoError(t, err)

			now := int64(1_650_000_600_000) // mid hour bucket
			base := models.Impression{
				KeyName: "u", FeatureName: "f", Treatment: "on",
				Label: "l", ChangeNumber: 1, Time: now,
			}
			repeat := base
			repeat.Time = now + 1

			client.ProcessImpressions([]impressions.WithAttributes{{Impression: base}})
			shipped := client.ProcessImpressions([]impressions.WithAttributes{{Impression: repeat}})
			assert.Equal(t, tc.repeatShips, len(shipped) == 1)
		})
	}
}
