package fleet

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/emsops/emsops/internal/domain/catalog"
	"github.com/emsops/emsops/internal/platform/apperr"
	"github.com/emsops/emsops/internal/platform/auth"
	"github.com/emsops/emsops/internal/platform/cache"
	"github.com/emsops/emsops/internal/platform/db"
	"github.com/emsops/emsops/internal/platform/events"
	"github.com/emsops/emsops/pkg/pagination"
)

// StaffDirectory resolves staff references.
type StaffDirectory interface {
	IsActive(ctx context.Context, id uuid.UUID) (bool, error)
}

// CatalogLookup resolves catalog references.
type CatalogLookup interface {
	Exists(ctx context.Context, kind catalog.Kind, id uuid.UUID) (bool, error)
}

type Service struct {
	ambulances  AmbulanceRepository
	inventories InventoryRepository
	staff       StaffDirectory
	catalogs    CatalogLookup
	tx          db.TxManager
	cache       cache.Cache
	cacheTTL    time.Duration
	publisher   events.Publisher
	logger      zerolog.Logger
	now         func() time.Time
}

func NewService(
	ambulances AmbulanceRepository,
	inventories InventoryRepository,
	staff StaffDirectory,
	catalogs CatalogLookup,
	tx db.TxManager,
	c cache.Cache,
	cacheTTL time.Duration,
	publisher events.Publisher,
	logger zerolog.Logger,
) *Service {
	return &Service{
		ambulances:  ambulances,
		inventories: inventories,
		staff:       staff,
		catalogs:    catalogs,
		tx:          tx,
		cache:       c,
		cacheTTL:    cacheTTL,
		publisher:   publisher,
		logger:      logger.With().Str("component", "fleet").Logger(),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func duplicateInventory(ambulanceID uuid.UUID, date time.Time) error {
	return apperr.Conflict("an inventory for ambulance %s on %s and this shift already exists",
		ambulanceID, date.Format(DateLayout))
}

func ambulanceKey(id uuid.UUID) string { return "ambulance:" + id.String() }

// -- Ambulances --

func (s *Service) CreateAmbulance(ctx context.Context, req AmbulanceCreateRequest) (*Ambulance, error) {
	actor, err := auth.ActorFromContext(ctx)
	if err != nil {
		return nil, err
	}
	a := &Ambulance{ID: uuid.New(), Code: req.Code, Plate: req.Plate, Model: req.Model, Active: true}
	a.StampCreate(actor, s.now())
	if err := s.ambulances.Create(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) GetAmbulance(ctx context.Context, id uuid.UUID) (*Ambulance, error) {
	return s.ambulances.GetByID(ctx, id)
}

func (s *Service) UpdateAmbulance(ctx context.Context, id uuid.UUID, p AmbulancePatch) (*Ambulance, error) {
	actor, err := auth.ActorFromContext(ctx)
	if err != nil {
		return nil, err
	}
	a, err := s.ambulances.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Apply(a)
	a.StampUpdate(actor, s.now())
	if err := s.ambulances.Update(ctx, a); err != nil {
		return nil, err
	}
	s.evictAmbulance(ctx, id)
	return a, nil
}

func (s *Service) DeleteAmbulance(ctx context.Context, id uuid.UUID) error {
	actor, err := auth.ActorFromContext(ctx)
	if err != nil {
		return err
	}
	if err := s.ambulances.SoftDelete(ctx, id, actor, s.now()); err != nil {
		return err
	}
	s.evictAmbulance(ctx, id)
	return nil
}

func (s *Service) ListAmbulances(ctx context.Context, active *bool, p pagination.Params) ([]*Ambulance, int, error) {
	return s.ambulances.List(ctx, active, p)
}

// AmbulanceExists reports whether id is a live, active ambulance. Positive
// answers are cached.
func (s *Service) AmbulanceExists(ctx context.Context, id uuid.UUID) (bool, error) {
	if _, ok, err := s.cache.Get(ctx, ambulanceKey(id)); err == nil && ok {
		return true, nil
	} else if err != nil {
		s.logger.Warn().Err(err).Msg("ambulance cache get failed")
	}

	a, err := s.ambulances.GetByID(ctx, id)
	if apperr.Is(err, apperr.KindNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !a.Active {
		return false, nil
	}
	if err := s.cache.Set(ctx, ambulanceKey(id), []byte{1}, s.cacheTTL); err != nil {
		s.logger.Warn().Err(err).Msg("ambulance cache set failed")
	}
	return true, nil
}

func (s *Service) evictAmbulance(ctx context.Context, id uuid.UUID) {
	if err := s.cache.Delete(ctx, ambulanceKey(id)); err != nil {
		s.logger.Warn().Err(err).Str("ambulance_id", id.String()).Msg("ambulance cache evict failed")
	}
}

// -- Inventories --

// RecordInventory stores an inventory and its items in one transaction. The
// responsible staff member defaults to the caller.
func (s *Service) RecordInventory(ctx context.Context, req InventoryCreateRequest) (*Inventory, error) {
	actor, err := auth.ActorFromContext(ctx)
	if err != nil {
		return nil, err
	}
	date, err := time.Parse(DateLayout, req.InventoryDate)
	if err != nil {
		return nil, apperr.ValidationField("inventory_date", "inventory_date must be a date in format YYYY-MM-DD")
	}
	responsible := req.ResponsibleStaffID
	if responsible == uuid.Nil {
		responsible = actor
	}

	now := s.now()
	inv := &Inventory{
		ID:                 uuid.New(),
		AmbulanceID:        req.AmbulanceID,
		InventoryDate:      date,
		ShiftID:            req.ShiftID,
		ResponsibleStaffID: responsible,
		Notes:              req.Notes,
	}
	inv.StampCreate(actor, now)
	for _, it := range req.Items {
		inv.Items = append(inv.Items, InventoryItem{
			ID:          uuid.New(),
			InventoryID: inv.ID,
			Name:        it.Name,
			Category:    it.Category,
			ExpectedQty: it.ExpectedQty,
			ActualQty:   it.ActualQty,
			Notes:       it.Notes,
		})
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.checkInventoryRefs(ctx, inv); err != nil {
			return err
		}
		exists, err := s.inventories.Exists(ctx, inv.AmbulanceID, inv.InventoryDate, inv.ShiftID)
		if err != nil {
			return err
		}
		if exists {
			return duplicateInventory(inv.AmbulanceID, inv.InventoryDate)
		}
		return s.inventories.Create(ctx, inv)
	})
	if err != nil {
		s.logger.Warn().Err(err).
			Str("ambulance_id", inv.AmbulanceID.String()).
			Str("actor_id", actor.String()).
			Str("error_kind", string(apperr.KindOf(err))).
			Msg("inventory rejected")
		return nil, err
	}

	shortages := inv.Shortages()
	evt := events.New(events.InventoryRecorded, inv.ID, actor, InventoryRecordedPayload{
		AmbulanceID:   inv.AmbulanceID,
		InventoryDate: inv.InventoryDate.Format(DateLayout),
		ShiftID:       inv.ShiftID,
		ItemCount:     len(inv.Items),
		ShortageCount: len(shortages),
	})
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.logger.Error().Err(err).Str("inventory_id", inv.ID.String()).Msg("publish inventory.recorded failed")
	}

	s.logger.Info().
		Str("inventory_id", inv.ID.String()).
		Int("items", len(inv.Items)).
		Int("shortages", len(shortages)).
		Msg("inventory recorded")
	return inv, nil
}

func (s *Service) checkInventoryRefs(ctx context.Context, inv *Inventory) error {
	ok, err := s.AmbulanceExists(ctx, inv.AmbulanceID)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.NotFound("ambulance", "ambulance_id", inv.AmbulanceID.String())
	}
	if ok, err = s.catalogs.Exists(ctx, catalog.KindShift, inv.ShiftID); err != nil {
		return err
	} else if !ok {
		return apperr.NotFound("shift", "shift_id", inv.ShiftID.String())
	}
	if ok, err = s.staff.IsActive(ctx, inv.ResponsibleStaffID); err != nil {
		return err
	} else if !ok {
		return apperr.NotFound("staff", "responsible_staff_id", inv.ResponsibleStaffID.String())
	}
	return nil
}

func (s *Service) GetInventory(ctx context.Context, id uuid.UUID) (*Inventory, error) {
	return s.inventories.GetByID(ctx, id)
}

func (s *Service) Shortages(ctx context.Context, id uuid.UUID) ([]Shortage, error) {
	inv, err := s.inventories.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return inv.Shortages(), nil
}

func (s *Service) ListInventories(ctx context.Context, f InventoryFilter, p pagination.Params) ([]*Inventory, int, error) {
	return s.inventories.List(ctx, f, p)
}

func (s *Service) DeleteInventory(ctx context.Context, id uuid.UUID) error {
	actor, err := auth.ActorFromContext(ctx)
	if err != nil {
		return err
	}
	return s.inventories.SoftDelete(ctx, id, actor, s.now())
}
