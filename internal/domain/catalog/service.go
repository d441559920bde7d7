package catalog

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/emsops/emsops/internal/platform/apperr"
	"github.com/emsops/emsops/internal/platform/auth"
	"github.com/emsops/emsops/internal/platform/cache"
	"github.com/emsops/emsops/internal/platform/telemetry"
	"github.com/emsops/emsops/pkg/pagination"
)

const DefaultCacheTTL = 10 * time.Minute

type Service struct {
	repo   Repository
	cache  cache.Cache
	ttl    time.Duration
	logger zerolog.Logger
	now    func() time.Time
}

// NewService wires the catalog service. Only positive existence lookups are
// cached; writes evict the item's key.
func NewService(repo Repository, c cache.Cache, ttl time.Duration, logger zerolog.Logger) *Service {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Service{
		repo:   repo,
		cache:  c,
		ttl:    ttl,
		logger: logger.With().Str("component", "catalog").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func cacheKey(kind Kind, id uuid.UUID) string {
	return "catalog:" + string(kind) + ":" + id.String()
}

func (s *Service) Create(ctx context.Context, kind Kind, req CreateRequest) (*Item, error) {
	actor, err := auth.ActorFromContext(ctx)
	if err != nil {
		return nil, err
	}
	it := &Item{
		ID:          uuid.New(),
		Kind:        kind,
		Code:        req.Code,
		Name:        req.Name,
		Description: req.Description,
		Active:      true,
	}
	it.StampCreate(actor, s.now())
	if err := s.repo.Create(ctx, it); err != nil {
		return nil, err
	}
	return it, nil
}

// Get returns the item only when it belongs to kind.
func (s *Service) Get(ctx context.Context, kind Kind, id uuid.UUID) (*Item, error) {
	it, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if it.Kind != kind {
		return nil, apperr.NotFound(string(kind), "", id.String())
	}
	return it, nil
}

func (s *Service) Update(ctx context.Context, kind Kind, id uuid.UUID, p Patch) (*Item, error) {
	actor, err := auth.ActorFromContext(ctx)
	if err != nil {
		return nil, err
	}
	it, err := s.Get(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	p.Apply(it)
	it.StampUpdate(actor, s.now())
	if err := s.repo.Update(ctx, it); err != nil {
		return nil, err
	}
	s.evict(ctx, kind, id)
	return it, nil
}

func (s *Service) Deactivate(ctx context.Context, kind Kind, id uuid.UUID) (*Item, error) {
	inactive := false
	return s.Update(ctx, kind, id, Patch{Active: &inactive})
}

func (s *Service) Delete(ctx context.Context, kind Kind, id uuid.UUID) error {
	actor, err := auth.ActorFromContext(ctx)
	if err != nil {
		return err
	}
	if _, err := s.Get(ctx, kind, id); err != nil {
		return err
	}
	if err := s.repo.SoftDelete(ctx, id, actor, s.now()); err != nil {
		return err
	}
	s.evict(ctx, kind, id)
	return nil
}

func (s *Service) List(ctx context.Context, kind Kind, f Filter, p pagination.Params) ([]*Item, int, error) {
	return s.repo.List(ctx, kind, f, p)
}

// Exists reports whether id is a live, active item of kind.
func (s *Service) Exists(ctx context.Context, kind Kind, id uuid.UUID) (bool, error) {
	missing, err := s.missing(ctx, kind, []uuid.UUID{id})
	if err != nil {
		return false, err
	}
	return len(missing) == 0, nil
}

// ExistAll returns a NotFound error naming the first id that is not a live,
// active item of kind.
func (s *Service) ExistAll(ctx context.Context, kind Kind, ids []uuid.UUID) error {
	missing, err := s.missing(ctx, kind, ids)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return apperr.NotFound(string(kind), "", missing[0].String())
	}
	return nil
}

func (s *Service) missing(ctx context.Context, kind Kind, ids []uuid.UUID) ([]uuid.UUID, error) {
	ctx, span := telemetry.StartSpan(ctx, "catalog.lookup")
	defer span.End()

	var unresolved []uuid.UUID
	seen := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if s.cached(ctx, kind, id) {
			continue
		}
		unresolved = append(unresolved, id)
	}
	if len(unresolved) == 0 {
		return nil, nil
	}

	found, err := s.repo.ActiveIDs(ctx, kind, unresolved)
	if err != nil {
		return nil, apperr.Internal(err, "look up %s ids", kind)
	}
	present := make(map[uuid.UUID]struct{}, len(found))
	for _, id := range found {
		present[id] = struct{}{}
		if err := s.cache.Set(ctx, cacheKey(kind, id), []byte{1}, s.ttl); err != nil {
			s.logger.Warn().Err(err).Msg("catalog cache set failed")
		}
	}

	var missing []uuid.UUID
	for _, id := range unresolved {
		if _, ok := present[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

func (s *Service) cached(ctx context.Context, kind Kind, id uuid.UUID) bool {
	_, ok, err := s.cache.Get(ctx, cacheKey(kind, id))
	if err != nil {
		s.logger.Warn().Err(err).Msg("catalog cache get failed")
		return false
	}
	return ok
}

func (s *Service) evict(ctx context.Context, kind Kind, id uuid.UUID) {
	if err := s.cache.Delete(ctx, cacheKey(kind, id)); err != nil {
		s.logger.Warn().Err(err).Str("item_id", id.String()).Msg("catalog cache evict failed")
	}
}
