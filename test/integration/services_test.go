//go:build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/emsops/emsops/internal/domain/catalog"
	"github.com/emsops/emsops/internal/domain/fleet"
	"github.com/emsops/emsops/internal/domain/staff"
	"github.com/emsops/emsops/internal/domain/transport"
	"github.com/emsops/emsops/internal/platform/apperr"
	"github.com/emsops/emsops/internal/platform/auth"
	"github.com/emsops/emsops/internal/platform/cache"
	"github.com/emsops/emsops/internal/platform/db"
	"github.com/emsops/emsops/internal/platform/events"
)

var testSigningKey = []byte("integration-signing-key-0123456789abcdef")

// stack wires every service against the shared containers the way the
// server binary does.
type stack struct {
	staff     *staff.Service
	catalog   *catalog.Service
	fleet     *fleet.Service
	transport *transport.Service
	recorder  *events.Recorder
	cache     *cache.Redis
	admin     uuid.UUID
	ctx       context.Context
}

func newStack(t *testing.T) *stack {
	t.Helper()
	truncateAll(t)
	ctx := context.Background()
	logger := zerolog.Nop()

	rc, err := cache.NewRedis(ctx, globalEnv.RedisURL, "emsops-it:"+uuid.NewString()+":", logger)
	if err != nil {
		t.Fatalf("connect redis: %v", err)
	}
	t.Cleanup(func() { _ = rc.Close() })

	pool := globalEnv.Pool
	tx := db.NewTxManager(pool, logger)
	rec := &events.Recorder{}

	s := &stack{recorder: rec, cache: rc}
	s.staff = staff.NewService(staff.NewRepoPG(pool), auth.NewTokenIssuer("emsops", "emsops-api", testSigningKey, time.Hour), logger)
	s.catalog = catalog.NewService(catalog.NewRepoPG(pool), rc, time.Minute, logger)
	s.fleet = fleet.NewService(fleet.NewAmbulanceRepoPG(pool), fleet.NewInventoryRepoPG(pool),
		s.staff, s.catalog, tx, rc, time.Minute, rec, logger)
	s.transport = transport.NewService(transport.NewRepositoriesPG(pool), s.staff, s.catalog, s.fleet,
		tx, rec, nil, logger)

	admin, created, err := s.staff.EnsureAdmin(ctx, staff.CreateRequest{
		FirstName: "Ada", LastName: "Admin", DocumentNumber: "A-1",
		Username: "admin", Password: "correct-horse",
	})
	if err != nil || !created {
		t.Fatalf("EnsureAdmin: created=%v err=%v", created, err)
	}
	s.admin = admin.ID
	s.ctx = auth.WithActor(ctx, admin.ID, auth.RoleAdmin)
	return s
}

func (s *stack) staffMember(t *testing.T, username string, typ staff.Type) *staff.Staff {
	t.Helper()
	st, err := s.staff.Create(s.ctx, staff.CreateRequest{
		FirstName: "Crew", LastName: username, DocumentNumber: "D-" + username,
		StaffType: typ, Role: staff.RoleCrew, Username: username, Password: "password-123",
	})
	if err != nil {
		t.Fatalf("create staff %s: %v", username, err)
	}
	return st
}

func (s *stack) catalogItem(t *testing.T, kind catalog.Kind, code string) uuid.UUID {
	t.Helper()
	it, err := s.catalog.Create(s.ctx, kind, catalog.CreateRequest{Code: code, Name: code})
	if err != nil {
		t.Fatalf("create %s %s: %v", kind, code, err)
	}
	return it.ID
}

func TestStaff_LoginAndDuplicateUsername(t *testing.T) {
	s := newStack(t)
	s.staffMember(t, "medic1", staff.TypeParamedic)

	resp, err := s.staff.Login(context.Background(), staff.LoginRequest{Username: "medic1", Password: "password-123"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if resp.AccessToken == "" || resp.Staff == nil || resp.Staff.Username != "medic1" {
		t.Fatalf("unexpected login response %+v", resp)
	}

	if _, err := s.staff.Login(context.Background(), staff.LoginRequest{Username: "medic1", Password: "wrong-pass"}); apperr.KindOf(err) != apperr.KindForbidden {
		t.Errorf("expected forbidden for a bad password, got %v", err)
	}

	_, err = s.staff.Create(s.ctx, staff.CreateRequest{
		FirstName: "Other", LastName: "Medic", DocumentNumber: "D-2",
		StaffType: staff.TypeParamedic, Role: staff.RoleCrew, Username: "medic1", Password: "password-123",
	})
	if apperr.KindOf(err) != apperr.KindConflict {
		t.Errorf("expected conflict on duplicate username, got %v", err)
	}

	if _, created, err := s.staff.EnsureAdmin(context.Background(), staff.CreateRequest{
		FirstName: "Second", LastName: "Admin", DocumentNumber: "A-2", Username: "admin2", Password: "password-123",
	}); err != nil || created {
		t.Errorf("EnsureAdmin must be a no-op once staff exist: created=%v err=%v", created, err)
	}
}

func TestCatalog_ExistsUsesRedisAndDetectsDeletes(t *testing.T) {
	s := newStack(t)
	id := s.catalogItem(t, catalog.KindDiagnosis, "R55")

	ok, err := s.catalog.Exists(s.ctx, catalog.KindDiagnosis, id)
	if err != nil || !ok {
		t.Fatalf("expected diagnosis to exist: ok=%v err=%v", ok, err)
	}
	if ok, _ := s.catalog.Exists(s.ctx, catalog.KindShift, id); ok {
		t.Errorf("a diagnosis must not resolve as a shift")
	}

	if err := s.catalog.Delete(s.ctx, catalog.KindDiagnosis, id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if ok, _ := s.catalog.Exists(s.ctx, catalog.KindDiagnosis, id); ok {
		t.Errorf("deleted item still resolves through the cache")
	}

	if _, err := s.catalog.Create(s.ctx, catalog.KindShift, catalog.CreateRequest{Code: "AM", Name: "Morning"}); err != nil {
		t.Fatalf("create shift: %v", err)
	}
	if _, err := s.catalog.Create(s.ctx, catalog.KindShift, catalog.CreateRequest{Code: "AM", Name: "Again"}); apperr.KindOf(err) != apperr.KindConflict {
		t.Errorf("expected conflict on duplicate code, got %v", err)
	}
}

func TestFleet_InventoryOncePerShift(t *testing.T) {
	s := newStack(t)
	shift := s.catalogItem(t, catalog.KindShift, "PM")
	amb, err := s.fleet.CreateAmbulance(s.ctx, fleet.AmbulanceCreateRequest{Code: "AMB-1", Plate: "ABC123"})
	if err != nil {
		t.Fatalf("CreateAmbulance: %v", err)
	}

	req := fleet.InventoryCreateRequest{
		AmbulanceID:   amb.ID,
		InventoryDate: "2026-03-14",
		ShiftID:       shift,
		Items: []fleet.InventoryItemReq{
			{Name: "Gauze", ExpectedQty: 10, ActualQty: 4},
			{Name: "Oxygen", ExpectedQty: 2, ActualQty: 2},
		},
	}
	inv, err := s.fleet.RecordInventory(s.ctx, req)
	if err != nil {
		t.Fatalf("RecordInventory: %v", err)
	}
	if inv.ResponsibleStaffID != s.admin {
		t.Errorf("responsible staff should default to the caller")
	}

	shortages, err := s.fleet.Shortages(s.ctx, inv.ID)
	if err != nil {
		t.Fatalf("Shortages: %v", err)
	}
	if len(shortages) != 1 {
		t.Errorf("expected one shortage, got %+v", shortages)
	}

	if _, err := s.fleet.RecordInventory(s.ctx, req); apperr.KindOf(err) != apperr.KindConflict {
		t.Errorf("expected conflict for a second inventory in the same shift, got %v", err)
	}
	if got := s.recorder.Types(); len(got) != 1 || got[0] != events.InventoryRecorded {
		t.Errorf("expected a single inventory.recorded event, got %v", got)
	}

	if _, err := s.fleet.CreateAmbulance(s.ctx, fleet.AmbulanceCreateRequest{Code: "AMB-2", Plate: "ABC123"}); apperr.KindOf(err) != apperr.KindConflict {
		t.Errorf("expected conflict on duplicate plate, got %v", err)
	}
}
