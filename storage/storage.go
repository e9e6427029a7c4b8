// Package storage defines the split storage contract consumed by the
// synchronizer (writer) and the evaluators (readers), plus the in-memory and
// redis-backed implementations.
package storage

import (
	"context"

	"flagclient/models"
)

// SplitStorage is the local replica of server-side split definitions.
// Readers may observe a partially updated snapshot while a synchronize pass
// is in flight; the change number is advanced only after all mutations of a
// fetch response were applied.
type SplitStorage interface {
	// ChangeNumber returns the last applied change number, -1 if never set.
	ChangeNumber(ctx context.Context) (int64, error)
	SetChangeNumber(ctx context.Context, changeNumber int64) error
	Put(ctx context.Context, split models.Split) error
	Remove(ctx context.Context, name string) error
	Get(ctx context.Context, name string) (*models.Split, error)
	All(ctx context.Context) ([]models.Split, error)
	SplitNames(ctx context.Context) ([]string, error)
	// KillLocally flips the split to killed with the given default treatment.
	// The storage change number moves forward only if changeNumber exceeds it.
	KillLocally(ctx context.Context, name, defaultTreatment string, changeNumber int64) error
}
