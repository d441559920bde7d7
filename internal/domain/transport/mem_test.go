package transport

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/emsops/emsops/internal/domain/catalog"
	"github.com/emsops/emsops/internal/domain/staff"
	"github.com/emsops/emsops/internal/platform/apperr"
	"github.com/emsops/emsops/pkg/pagination"
)

// -- In-memory stores --

type snapshotter interface {
	snapshot() (restore func())
}

type memStore[T any, P record[T]] struct {
	rows map[uuid.UUID]T
}

func newMemStore[T any, P record[T]]() *memStore[T, P] {
	return &memStore[T, P]{rows: make(map[uuid.UUID]T)}
}

func (m *memStore[T, P]) Create(_ context.Context, e *T) error {
	id := P(e).row().ID
	if _, ok := m.rows[id]; ok {
		return apperr.Conflict("duplicate id %s", id)
	}
	m.rows[id] = *e
	return nil
}

func (m *memStore[T, P]) Get(_ context.Context, id uuid.UUID) (*T, error) {
	v, ok := m.rows[id]
	if !ok || P(&v).row().IsDeleted {
		return nil, apperr.NotFound("record", "", id.String())
	}
	return &v, nil
}

func (m *memStore[T, P]) Update(_ context.Context, e *T) error {
	id := P(e).row().ID
	v, ok := m.rows[id]
	if !ok || P(&v).row().IsDeleted {
		return apperr.NotFound("record", "", id.String())
	}
	m.rows[id] = *e
	return nil
}

func (m *memStore[T, P]) SoftDelete(_ context.Context, actor uuid.UUID, now time.Time, ids ...uuid.UUID) error {
	for _, id := range ids {
		v, ok := m.rows[id]
		if !ok || P(&v).row().IsDeleted {
			continue
		}
		P(&v).row().StampDelete(actor, now)
		m.rows[id] = v
	}
	return nil
}

func (m *memStore[T, P]) snapshot() func() {
	cp := make(map[uuid.UUID]T, len(m.rows))
	for k, v := range m.rows {
		cp[k] = v
	}
	return func() { m.rows = cp }
}

// live returns the rows that are not soft-deleted.
func (m *memStore[T, P]) live() []T {
	var out []T
	for _, v := range m.rows {
		if !P(&v).row().IsDeleted {
			out = append(out, v)
		}
	}
	return out
}

// failingStore wraps a store whose writes fail with err.
type failingStore[T any] struct {
	Store[T]
	err error
}

func (f *failingStore[T]) Create(context.Context, *T) error { return f.err }
func (f *failingStore[T]) Update(context.Context, *T) error { return f.err }

type memReports struct {
	*memStore[Report, *Report]
	patients *memStore[PatientInfo, *PatientInfo]
}

func (m *memReports) matches(r *Report, f Filter) bool {
	switch {
	case r.IsDeleted:
		return false
	case f.Status != nil && r.Status != *f.Status:
		return false
	case f.AmbulanceID != nil && (r.AmbulanceID == nil || *r.AmbulanceID != *f.AmbulanceID):
		return false
	case f.ResponsibleStaffID != nil && r.ResponsibleStaffID != *f.ResponsibleStaffID:
		return false
	}
	return true
}

func (m *memReports) List(_ context.Context, f Filter, _ pagination.Params) ([]*Report, int, error) {
	var out []*Report
	for _, r := range m.rows {
		r := r
		if m.matches(&r, f) {
			out = append(out, &r)
		}
	}
	return out, len(out), nil
}

func (m *memReports) ExportRows(_ context.Context, f Filter, limit int) ([]ExportRow, error) {
	var out []ExportRow
	for _, r := range m.rows {
		if !m.matches(&r, f) || len(out) == limit {
			continue
		}
		row := ExportRow{Report: r}
		if r.PatientInfoID != nil {
			if p, ok := m.patients.rows[*r.PatientInfoID]; ok {
				row.PatientName, row.PatientDocument = p.FullName, p.DocumentNumber
			}
		}
		out = append(out, row)
	}
	return out, nil
}

type memSelections struct {
	sets map[Selection]map[uuid.UUID][]uuid.UUID
}

func newMemSelections() *memSelections {
	return &memSelections{sets: map[Selection]map[uuid.UUID][]uuid.UUID{
		SkinConditions:      {},
		HemodynamicStatuses: {},
	}}
}

func (m *memSelections) Replace(_ context.Context, sel Selection, ctID uuid.UUID, ids []uuid.UUID) error {
	m.sets[sel][ctID] = append([]uuid.UUID(nil), ids...)
	return nil
}

func (m *memSelections) List(_ context.Context, sel Selection, ctID uuid.UUID) ([]uuid.UUID, error) {
	out := []uuid.UUID{}
	return append(out, m.sets[sel][ctID]...), nil
}

func (m *memSelections) snapshot() func() {
	cp := map[Selection]map[uuid.UUID][]uuid.UUID{}
	for sel, byCT := range m.sets {
		cp[sel] = map[uuid.UUID][]uuid.UUID{}
		for k, v := range byCT {
			cp[sel][k] = v
		}
	}
	return func() { m.sets = cp }
}

// memTx restores every store when the unit of work fails.
type memTx struct {
	stores []snapshotter
}

func (m *memTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	restores := make([]func(), 0, len(m.stores))
	for _, s := range m.stores {
		restores = append(restores, s.snapshot())
	}
	if err := fn(ctx); err != nil {
		for _, restore := range restores {
			restore()
		}
		return err
	}
	return nil
}

// -- Lookups --

type fakeStaff map[uuid.UUID]staff.Type

func (f fakeStaff) IsActive(_ context.Context, id uuid.UUID) (bool, error) {
	_, ok := f[id]
	return ok, nil
}

func (f fakeStaff) IsActiveOfType(_ context.Context, id uuid.UUID, t staff.Type) (bool, error) {
	got, ok := f[id]
	return ok && got == t, nil
}

type fakeCatalogs map[catalog.Kind]map[uuid.UUID]bool

func (f fakeCatalogs) add(kind catalog.Kind) uuid.UUID {
	id := uuid.New()
	if f[kind] == nil {
		f[kind] = map[uuid.UUID]bool{}
	}
	f[kind][id] = true
	return id
}

func (f fakeCatalogs) Exists(_ context.Context, kind catalog.Kind, id uuid.UUID) (bool, error) {
	return f[kind][id], nil
}

func (f fakeCatalogs) ExistAll(_ context.Context, kind catalog.Kind, ids []uuid.UUID) error {
	for _, id := range ids {
		if !f[kind][id] {
			return apperr.NotFound(string(kind), "", id.String())
		}
	}
	return nil
}

type fakeFleet map[uuid.UUID]bool

func (f fakeFleet) AmbulanceExists(_ context.Context, id uuid.UUID) (bool, error) {
	return f[id], nil
}
