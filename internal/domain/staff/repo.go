package staff

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/emsops/emsops/pkg/pagination"
)

type Repository interface {
	Create(ctx context.Context, s *Staff) error
	GetByID(ctx context.Context, id uuid.UUID) (*Staff, error)
	GetByUsername(ctx context.Context, username string) (*Staff, error)
	Update(ctx context.Context, s *Staff) error
	UpdatePassword(ctx context.Context, id uuid.UUID, hash string, actor uuid.UUID, now time.Time) error
	SoftDelete(ctx context.Context, id uuid.UUID, actor uuid.UUID, now time.Time) error
	List(ctx context.Context, f Filter, p pagination.Params) ([]*Staff, int, error)
	Count(ctx context.Context) (int, error)
}
