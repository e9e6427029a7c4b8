package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-redis/redis/v8"

	"flagclient/models"
)

const (
	redisSplitKeyPrefix = "flagclient.split."
	redisTillKey        = "flagclient.splits.till"
)

// RedisSplitStorage keeps the split replica in a shared redis cache so
// multiple SDK instances behind the same cache see one snapshot.
type RedisSplitStorage struct {
	client *redis.Client
}

// NewRedisSplitStorage wraps an already-connected redis client.
func NewRedisSplitStorage(client *redis.Client) *RedisSplitStorage {
	return &RedisSplitStorage{client: client}
}

func splitKey(name string) string {
	return redisSplitKeyPrefix + name
}

// ChangeNumber implements SplitStorage.
func (s *RedisSplitStorage) ChangeNumber(ctx context.Context) (int64, error) {
	val, err := s.client.Get(ctx, redisTillKey).Int64()
	if err == redis.Nil {
		return -1, nil
	}
	if err != nil {
		return -1, fmt.Errorf("reading change number: %w", err)
	}
	return val, nil
}

// SetChangeNumber implements SplitStorage.
func (s *RedisSplitStorage) SetChangeNumber(ctx context.Context, changeNumber int64) error {
	if err := s.client.Set(ctx, redisTillKey, changeNumber, 0).Err(); err != nil {
		return fmt.Errorf("writing change number: %w", err)
	}
	return nil
}

// Put implements SplitStorage.
func (s *RedisSplitStorage) Put(ctx context.Context, split models.Split) error {
	raw, err := json.Marshal(split)
	if err != nil {
		return fmt.Errorf("encoding split %s: %w", split.Name, err)
	}
	if err := s.client.Set(ctx, splitKey(split.Name), raw, 0).Err(); err != nil {
		return fmt.Errorf("writing split %s: %w", split.Name, err)
	}
	return nil
}

// Remove implements SplitStorage.
func (s *RedisSplitStorage) Remove(ctx context.Context, name string) error {
	if err := s.client.Del(ctx, splitKey(name)).Err(); err != nil {
		return fmt.Errorf("removing split %s: %w", name, err)
	}
	return nil
}

// Get implements SplitStorage. Returns nil when the split is absent.
func (s *RedisSplitStorage) Get(ctx context.Context, name string) (*models.Split, error) {
	raw, err := s.client.Get(ctx, splitKey(name)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading split %s: %w", name, err)
	}
	var split models.Split
	if err := json.Unmarshal(raw, &split); err != nil {
		return nil, fmt.Errorf("decoding split %s: %w", name, err)
	}
	return &split, nil
}

// All implements SplitStorage.
func (s *RedisSplitStorage) All(ctx context.Context) ([]models.Split, error) {
	names, err := s.SplitNames(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.Split, 0, len(names))
	for _, name := range names {
		split, err := s.Get(ctx, name)
		if err != nil {
			return nil, err
		}
		if split != nil {
			out = append(out, *split)
		}
	}
	return out, nil
}

// SplitNames implements SplitStorage.
func (s *RedisSplitStorage) SplitNames(ctx context.Context) ([]string, error) {
	var names []string
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, redisSplitKeyPrefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("scanning split keys: %w", err)
		}
		for _, key := range keys {
			names = append(names, strings.TrimPrefix(key, redisSplitKeyPrefix))
		}
		cursor = next
		if cursor == 0 {
			return names, nil
		}
	}
}

// KillLocally implements SplitStorage.
func (s *RedisSplitStorage) KillLocally(ctx context.Context, name, defaultTreatment string, changeNumber int64) error {
	split, err := s.Get(ctx, name)
	if err != nil {
		return err
	}
	if split == nil {
		return nil
	}
	split.Killed = true
	split.DefaultTreatment = defaultTreatment
	split.ChangeNumber = changeNumber
	if err := s.Put(ctx, *split); err != nil {
		return err
	}
	current, err := s.ChangeNumber(ctx)
	if err != nil {
		return err
	}
	if changeNumber > current {
		return s.SetChangeNumber(ctx, changeNumber)
	}
	return nil
}
