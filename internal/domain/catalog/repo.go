package catalog

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/emsops/emsops/pkg/pagination"
)

type Repository interface {
	Create(ctx context.Context, it *Item) error
	GetByID(ctx context.Context, id uuid.UUID) (*Item, error)
	Update(ctx context.Context, it *Item) error
	SoftDelete(ctx context.Context, id uuid.UUID, actor uuid.UUID, now time.Time) error
	List(ctx context.Context, kind Kind, f Filter, p pagination.Params) ([]*Item, int, error)
	// ActiveIDs returns the subset of ids that are live, active items of kind.
	ActiveIDs(ctx context.Context, kind Kind, ids []uuid.UUID) ([]uuid.UUID, error)
}
