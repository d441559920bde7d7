package fleet

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/emsops/emsops/internal/domain/catalog"
	"github.com/emsops/emsops/internal/platform/apperr"
	"github.com/emsops/emsops/internal/platform/auth"
	"github.com/emsops/emsops/internal/platform/cache"
	"github.com/emsops/emsops/internal/platform/events"
	"github.com/emsops/emsops/pkg/pagination"
)

// -- Mock Repositories --

type mockAmbulanceRepo struct {
	ambulances map[uuid.UUID]*Ambulance
	gets       int
}

func newMockAmbulanceRepo() *mockAmbulanceRepo {
	return &mockAmbulanceRepo{ambulances: make(map[uuid.UUID]*Ambulance)}
}

func (m *mockAmbulanceRepo) Create(_ context.Context, a *Ambulance) error {
	for _, existing := range m.ambulances {
		if !existing.IsDeleted && (existing.Code == a.Code || existing.Plate == a.Plate) {
			return apperr.Conflict("ambulance already exists")
		}
	}
	cp := *a
	m.ambulances[a.ID] = &cp
	return nil
}

func (m *mockAmbulanceRepo) GetByID(_ context.Context, id uuid.UUID) (*Ambulance, error) {
	m.gets++
	a, ok := m.ambulances[id]
	if !ok || a.IsDeleted {
		return nil, apperr.NotFound("ambulance", "", id.String())
	}
	cp := *a
	return &cp, nil
}

func (m *mockAmbulanceRepo) Update(_ context.Context, a *Ambulance) error {
	cp := *a
	m.ambulances[a.ID] = &cp
	return nil
}

func (m *mockAmbulanceRepo) SoftDelete(_ context.Context, id uuid.UUID, actor uuid.UUID, now time.Time) error {
	a, ok := m.ambulances[id]
	if !ok || a.IsDeleted {
		return apperr.NotFound("ambulance", "", id.String())
	}
	a.StampDelete(actor, now)
	return nil
}

func (m *mockAmbulanceRepo) List(_ context.Context, active *bool, _ pagination.Params) ([]*Ambulance, int, error) {
	var result []*Ambulance
	for _, a := range m.ambulances {
		if a.IsDeleted || (active != nil && a.Active != *active) {
			continue
		}
		result = append(result, a)
	}
	return result, len(result), nil
}

type mockInventoryRepo struct {
	inventories map[uuid.UUID]*Inventory
	failCreate  error
}

func newMockInventoryRepo() *mockInventoryRepo {
	return &mockInventoryRepo{inventories: make(map[uuid.UUID]*Inventory)}
}

func (m *mockInventoryRepo) Create(_ context.Context, inv *Inventory) error {
	if m.failCreate != nil {
		return m.failCreate
	}
	cp := *inv
	m.inventories[inv.ID] = &cp
	return nil
}

func (m *mockInventoryRepo) GetByID(_ context.Context, id uuid.UUID) (*Inventory, error) {
	inv, ok := m.inventories[id]
	if !ok || inv.IsDeleted {
		return nil, apperr.NotFound("inventory", "", id.String())
	}
	return inv, nil
}

func (m *mockInventoryRepo) Exists(_ context.Context, ambulanceID uuid.UUID, date time.Time, shiftID uuid.UUID) (bool, error) {
	for _, inv := range m.inventories {
		if !inv.IsDeleted && inv.AmbulanceID == ambulanceID && inv.InventoryDate.Equal(date) && inv.ShiftID == shiftID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockInventoryRepo) List(_ context.Context, f InventoryFilter, _ pagination.Params) ([]*Inventory, int, error) {
	var result []*Inventory
	for _, inv := range m.inventories {
		if inv.IsDeleted || (f.AmbulanceID != nil && inv.AmbulanceID != *f.AmbulanceID) {
			continue
		}
		result = append(result, inv)
	}
	return result, len(result), nil
}

func (m *mockInventoryRepo) SoftDelete(_ context.Context, id uuid.UUID, actor uuid.UUID, now time.Time) error {
	inv, ok := m.inventories[id]
	if !ok || inv.IsDeleted {
		return apperr.NotFound("inventory", "", id.String())
	}
	inv.StampDelete(actor, now)
	return nil
}

type staffSet map[uuid.UUID]bool

func (s staffSet) IsActive(_ context.Context, id uuid.UUID) (bool, error) { return s[id], nil }

type shiftSet map[uuid.UUID]bool

func (s shiftSet) Exists(_ context.Context, kind catalog.Kind, id uuid.UUID) (bool, error) {
	return kind == catalog.KindShift && s[id], nil
}

type passthroughTx struct{ calls int }

func (p *passthroughTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	p.calls++
	return fn(ctx)
}

type fixture struct {
	svc         *Service
	ambulances  *mockAmbulanceRepo
	inventories *mockInventoryRepo
	recorder    *events.Recorder
	tx          *passthroughTx
	actor       uuid.UUID
	shift       uuid.UUID
	ctx         context.Context
}

func newFixture() *fixture {
	f := &fixture{
		ambulances:  newMockAmbulanceRepo(),
		inventories: newMockInventoryRepo(),
		recorder:    &events.Recorder{},
		tx:          &passthroughTx{},
		actor:       uuid.New(),
		shift:       uuid.New(),
	}
	f.ctx = auth.WithActor(context.Background(), f.actor, auth.RoleCrew)
	f.svc = NewService(
		f.ambulances, f.inventories,
		staffSet{f.actor: true},
		shiftSet{f.shift: true},
		f.tx, cache.NewMemory(), time.Minute, f.recorder, zerolog.Nop(),
	)
	return f
}

func (f *fixture) ambulance(t *testing.T) *Ambulance {
	t.Helper()
	a, err := f.svc.CreateAmbulance(f.ctx, AmbulanceCreateRequest{Code: "AMB-" + uuid.NewString()[:4], Plate: uuid.NewString()[:6]})
	if err != nil {
		t.Fatalf("create ambulance: %v", err)
	}
	return a
}

func (f *fixture) inventoryRequest(ambulanceID uuid.UUID) InventoryCreateRequest {
	return InventoryCreateRequest{
		AmbulanceID:   ambulanceID,
		InventoryDate: "2026-03-14",
		ShiftID:       f.shift,
		Items: []InventoryItemReq{
			{Name: "Oxygen cylinder", ExpectedQty: 2, ActualQty: 2},
			{Name: "Cervical collar", ExpectedQty: 4, ActualQty: 1},
			{Name: "Saline 500ml", ExpectedQty: 6, ActualQty: 5},
		},
	}
}

// -- Tests --

func TestService_RecordInventory(t *testing.T) {
	f := newFixture()
	a := f.ambulance(t)

	inv, err := f.svc.RecordInventory(f.ctx, f.inventoryRequest(a.ID))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inv.ResponsibleStaffID != f.actor {
		t.Errorf("expected responsible staff to default to actor")
	}
	if len(inv.Items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(inv.Items))
	}
	for _, it := range inv.Items {
		if it.InventoryID != inv.ID {
			t.Errorf("item %s not linked to inventory", it.Name)
		}
	}
	if f.tx.calls != 1 {
		t.Errorf("expected one transaction, got %d", f.tx.calls)
	}

	evts := f.recorder.Events()
	if len(evts) != 1 || evts[0].Type != events.InventoryRecorded {
		t.Fatalf("expected inventory.recorded event, got %v", f.recorder.Types())
	}
	payload := evts[0].Payload.(InventoryRecordedPayload)
	if payload.ShortageCount != 2 || payload.InventoryDate != "2026-03-14" {
		t.Errorf("unexpected payload %+v", payload)
	}
}

func TestService_RecordInventory_Duplicate(t *testing.T) {
	f := newFixture()
	a := f.ambulance(t)

	if _, err := f.svc.RecordInventory(f.ctx, f.inventoryRequest(a.ID)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := f.svc.RecordInventory(f.ctx, f.inventoryRequest(a.ID))
	if apperr.KindOf(err) != apperr.KindConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
	if len(f.recorder.Events()) != 1 {
		t.Errorf("expected no event for rejected inventory")
	}

	// another date is a different inventory
	req := f.inventoryRequest(a.ID)
	req.InventoryDate = "2026-03-15"
	if _, err := f.svc.RecordInventory(f.ctx, req); err != nil {
		t.Fatalf("expected different date to be accepted, got %v", err)
	}
}

func TestService_RecordInventory_UnknownReferences(t *testing.T) {
	f := newFixture()
	a := f.ambulance(t)

	tests := []struct {
		name   string
		mutate func(*InventoryCreateRequest)
		field  string
	}{
		{"ambulance", func(r *InventoryCreateRequest) { r.AmbulanceID = uuid.New() }, "ambulance_id"},
		{"shift", func(r *InventoryCreateRequest) { r.ShiftID = uuid.New() }, "shift_id"},
		{"staff", func(r *InventoryCreateRequest) { r.ResponsibleStaffID = uuid.New() }, "responsible_staff_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := f.inventoryRequest(a.ID)
			tt.mutate(&req)
			_, err := f.svc.RecordInventory(f.ctx, req)
			ae, ok := apperr.As(err)
			if !ok || ae.Kind != apperr.KindNotFound {
				t.Fatalf("expected not found, got %v", err)
			}
			if ae.Field != tt.field {
				t.Errorf("expected field %s, got %s", tt.field, ae.Field)
			}
		})
	}
	if len(f.inventories.inventories) != 0 {
		t.Errorf("expected nothing stored")
	}
}

func TestService_RecordInventory_BadDate(t *testing.T) {
	f := newFixture()
	a := f.ambulance(t)
	req := f.inventoryRequest(a.ID)
	req.InventoryDate = "14/03/2026"

	_, err := f.svc.RecordInventory(f.ctx, req)
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestService_RecordInventory_RepositoryFailure(t *testing.T) {
	f := newFixture()
	a := f.ambulance(t)
	f.inventories.failCreate = errors.New("connection reset")

	_, err := f.svc.RecordInventory(f.ctx, f.inventoryRequest(a.ID))
	if err == nil {
		t.Fatal("expected error")
	}
	if len(f.recorder.Events()) != 0 {
		t.Error("expected no event when the transaction fails")
	}
}

func TestService_Shortages(t *testing.T) {
	f := newFixture()
	a := f.ambulance(t)
	inv, _ := f.svc.RecordInventory(f.ctx, f.inventoryRequest(a.ID))

	shortages, err := f.svc.Shortages(f.ctx, inv.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(shortages) != 2 {
		t.Fatalf("expected 2 shortages, got %d", len(shortages))
	}
	missing := map[string]int{}
	for _, s := range shortages {
		missing[s.Name] = s.Missing
	}
	if missing["Cervical collar"] != 3 || missing["Saline 500ml"] != 1 {
		t.Errorf("unexpected shortages %v", missing)
	}
}

func TestInventory_Shortages_NoneIsEmptySlice(t *testing.T) {
	inv := &Inventory{Items: []InventoryItem{{Name: "Gloves", ExpectedQty: 10, ActualQty: 12}}}
	got := inv.Shortages()
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %v", got)
	}
}

func TestService_AmbulanceExists_CachedAndEvicted(t *testing.T) {
	f := newFixture()
	a := f.ambulance(t)

	for i := 0; i < 3; i++ {
		if ok, err := f.svc.AmbulanceExists(f.ctx, a.ID); err != nil || !ok {
			t.Fatalf("expected ambulance to exist, got %v %v", ok, err)
		}
	}
	if f.ambulances.gets != 1 {
		t.Errorf("expected one repository read, got %d", f.ambulances.gets)
	}

	inactive := false
	if _, err := f.svc.UpdateAmbulance(f.ctx, a.ID, AmbulancePatch{Active: &inactive}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if ok, _ := f.svc.AmbulanceExists(f.ctx, a.ID); ok {
		t.Fatal("expected inactive ambulance to be rejected after eviction")
	}
	if ok, _ := f.svc.AmbulanceExists(f.ctx, uuid.New()); ok {
		t.Fatal("expected unknown ambulance to be missing")
	}
}

func TestService_CreateAmbulance_Duplicate(t *testing.T) {
	f := newFixture()
	if _, err := f.svc.CreateAmbulance(f.ctx, AmbulanceCreateRequest{Code: "AMB-01", Plate: "XYZ123"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := f.svc.CreateAmbulance(f.ctx, AmbulanceCreateRequest{Code: "AMB-01", Plate: "ABC999"})
	if apperr.KindOf(err) != apperr.KindConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
}
