package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flagclient/models"
)

func testSplit(name string) models.Split {
	return models.Split{
		Name:             name,
		TrafficTypeName:  "user",
		Status:           models.StatusActive,
		DefaultTreatment: "off",
		ChangeNumber:     10,
		Algo:             2,
	}
}

func TestInMemoryBasicOperations(t *testing.T) {
	ctx := context.Background()
	store := NewInMemorySplitStorage()

	cn, err := store.ChangeNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), cn, "fresh storage reports -1")

	require.NoError(t, store.Put(ctx, testSplit("a")))
	require.NoError(t, store.Put(ctx, testSplit("b")))
	require.NoError(t, store.SetChangeNumber(ctx, 100))

	names, err := store.SplitNames(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, names)

	all, err := store.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	split, err := store.Get(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, split)
	assert.Equal(t, "a", split.Name)

	missing, err := store.Get(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, store.Remove(ctx, "a"))
	split, err = store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, split)
}

func TestInMemoryKillLocally(t *testing.T) {
	ctx := context.Background()
	store := NewInMemorySplitStorage()
	require.NoError(t, store.Put(ctx, testSplit("feature")))
	require.NoError(t, store.SetChangeNumber(ctx, 100))

	require.NoError(t, store.KillLocally(ctx, "feature", "maintenance", 200))

	split, err := store.Get(ctx, "feature")
	require.NoError(t, err)
	require.NotNil(t, split)
	assert.True(t, split.Killed)
	assert.Equal(t, "maintenance", split.DefaultTreatment)
	assert.Equal(t, int64(200), split.ChangeNumber)

	cn, err := store.ChangeNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(200), cn)

	// a kill with an older change number updates the split but not the
	// storage change number
	require.NoError(t, store.KillLocally(ctx, "feature", "off", 150))
	cn, err = store.ChangeNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(200), cn)

	// killing an unknown split is a no-op
	require.NoError(t, store.KillLocally(ctx, "ghost", "off", 999))
	cn, err = store.ChangeNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(200), cn)
}

func TestInMemoryGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := NewInMemorySplitStorage()
	require.NoError(t, store.Put(ctx, testSplit("a")))

	split, err := store.Get(ctx, "a")
	require.NoError(t, err)
	split.DefaultTreatment = "mutated"

	again, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "off", again.DefaultTreatment, "callers must not mutate stored splits")
}

func TestInMemoryConcurrentReadersAndWriter(t *testing.T) {
	ctx := context.Background()
	store := NewInMemorySplitStorage()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			_ = store.Put(ctx, testSplit(fmt.Sprintf("split%d", i%10)))
			_ = store.SetChangeNumber(ctx, int64(i))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			_, _ = store.Get(ctx, fmt.Sprintf("split%d", i%10))
			_, _ = store.SplitNames(ctx)
			_, _ = store.ChangeNumber(ctx)
		}
	}()
	wg.Wait()

	cn, err := store.ChangeNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(499), cn)
}
