package asset

import (
	"context"

	"github.com/google/uuid"
)

// Store is the durable mapping from asset identifier to asset record.
//
// Update applies the provided mutator as a single atomic read-modify-write:
// implementations must guarantee that no other update for the same asset is
// interleaved between the read and the write. The status tracker relies on
// this to avoid lost updates under concurrent pollers. If the mutator
// returns an error the record is left untouched and the error is returned
// verbatim.
type Store interface {
	Create(ctx context.Context, params CreateParams) (*VideoAsset, error)
	Get(ctx context.Context, id uuid.UUID) (*VideoAsset, error)
	Update(ctx context.Context, id uuid.UUID, mutate func(*VideoAsset) error) (*VideoAsset, error)
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context) ([]*VideoAsset, error)
}
