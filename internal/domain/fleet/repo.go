package fleet

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/emsops/emsops/pkg/pagination"
)

type AmbulanceRepository interface {
	Create(ctx context.Context, a *Ambulance) error
	GetByID(ctx context.Context, id uuid.UUID) (*Ambulance, error)
	Update(ctx context.Context, a *Ambulance) error
	SoftDelete(ctx context.Context, id uuid.UUID, actor uuid.UUID, now time.Time) error
	List(ctx context.Context, active *bool, p pagination.Params) ([]*Ambulance, int, error)
}

type InventoryRepository interface {
	// Create inserts the inventory header and all of its items.
	Create(ctx context.Context, inv *Inventory) error
	GetByID(ctx context.Context, id uuid.UUID) (*Inventory, error)
	Exists(ctx context.Context, ambulanceID uuid.UUID, date time.Time, shiftID uuid.UUID) (bool, error)
	List(ctx context.Context, f InventoryFilter, p pagination.Params) ([]*Inventory, int, error)
	SoftDelete(ctx context.Context, id uuid.UUID, actor uuid.UUID, now time.Time) error
}
