package fleet

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/emsops/emsops/internal/platform/apperr"
	"github.com/emsops/emsops/internal/platform/db"
	"github.com/emsops/emsops/internal/platform/telemetry"
	"github.com/emsops/emsops/pkg/pagination"
)

const (
	ambulanceTable     = "ambulance"
	inventoryTable     = "inventory"
	inventoryItemTable = "inventory_item"
)

var (
	ambulanceCols     = append([]string{"id", "code", "plate", "model", "active"}, db.AuditCols...)
	inventoryCols     = append([]string{"id", "ambulance_id", "inventory_date", "shift_id", "responsible_staff_id", "notes"}, db.AuditCols...)
	inventoryItemCols = []string{"id", "inventory_id", "name", "category", "expected_qty", "actual_qty", "notes"}
)

// -- Ambulance --

type ambulanceRepoPG struct{ pool *pgxpool.Pool }

func NewAmbulanceRepoPG(pool *pgxpool.Pool) AmbulanceRepository { return &ambulanceRepoPG{pool: pool} }

func (r *ambulanceRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

func scanAmbulance(row pgx.Row) (*Ambulance, error) {
	var a Ambulance
	targets := append([]interface{}{&a.ID, &a.Code, &a.Plate, &a.Model, &a.Active}, a.Audit.ScanTargets()...)
	if err := row.Scan(targets...); err != nil {
		return nil, err
	}
	return &a, nil
}

func ambulanceConflict(a *Ambulance) error {
	return apperr.Conflict("ambulance with code %q or plate %q already exists", a.Code, a.Plate)
}

func (r *ambulanceRepoPG) Create(ctx context.Context, a *Ambulance) error {
	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto(ambulanceTable).Cols(ambulanceCols...)
	ib.Values(append([]interface{}{a.ID, a.Code, strings.ToUpper(a.Plate), a.Model, a.Active}, a.Audit.InsertValues()...)...)

	query, args := ib.Build()
	if _, err := r.conn(ctx).Exec(ctx, query, args...); err != nil {
		if db.IsUniqueViolation(err) {
			return ambulanceConflict(a)
		}
		return fmt.Errorf("insert ambulance: %w", err)
	}
	return nil
}

func (r *ambulanceRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Ambulance, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(ambulanceCols...).From(ambulanceTable).Where(sb.Equal("id", id), sb.Equal("is_deleted", false))

	query, args := sb.Build()
	a, err := scanAmbulance(r.conn(ctx).QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("ambulance", "", id.String())
	}
	if err != nil {
		return nil, fmt.Errorf("select ambulance: %w", err)
	}
	return a, nil
}

func (r *ambulanceRepoPG) Update(ctx context.Context, a *Ambulance) error {
	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update(ambulanceTable).Set(append([]string{
		ub.Assign("code", a.Code),
		ub.Assign("plate", strings.ToUpper(a.Plate)),
		ub.Assign("model", a.Model),
		ub.Assign("active", a.Active),
	}, a.Audit.UpdateAssignments(ub)...)...).
		Where(ub.Equal("id", a.ID), ub.Equal("is_deleted", false))

	query, args := ub.Build()
	tag, err := r.conn(ctx).Exec(ctx, query, args...)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return ambulanceConflict(a)
		}
		return fmt.Errorf("update ambulance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("ambulance", "", a.ID.String())
	}
	return nil
}

func (r *ambulanceRepoPG) SoftDelete(ctx context.Context, id uuid.UUID, actor uuid.UUID, now time.Time) error {
	query, args := db.SoftDelete(ambulanceTable, actor, now, func(ub *sqlbuilder.UpdateBuilder) string {
		return ub.Equal("id", id)
	})
	tag, err := r.conn(ctx).Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("soft delete ambulance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("ambulance", "", id.String())
	}
	return nil
}

func (r *ambulanceRepoPG) List(ctx context.Context, active *bool, p pagination.Params) ([]*Ambulance, int, error) {
	where := func(sb *sqlbuilder.SelectBuilder) {
		sb.Where(sb.Equal("is_deleted", false))
		if active != nil {
			sb.Where(sb.Equal("active", *active))
		}
	}

	cb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	cb.Select("COUNT(*)").From(ambulanceTable)
	where(cb)
	countQuery, countArgs := cb.Build()
	var total int
	if err := r.conn(ctx).QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count ambulances: %w", err)
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(ambulanceCols...).From(ambulanceTable)
	where(sb)
	sb.OrderBy("code").Asc()
	p.Apply(sb)

	query, args := sb.Build()
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list ambulances: %w", err)
	}
	defer rows.Close()

	var items []*Ambulance
	for rows.Next() {
		a, err := scanAmbulance(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan ambulance: %w", err)
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

// -- Inventory --

type inventoryRepoPG struct{ pool *pgxpool.Pool }

func NewInventoryRepoPG(pool *pgxpool.Pool) InventoryRepository { return &inventoryRepoPG{pool: pool} }

func (r *inventoryRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

func scanInventory(row pgx.Row) (*Inventory, error) {
	var inv Inventory
	targets := append([]interface{}{
		&inv.ID, &inv.AmbulanceID, &inv.InventoryDate, &inv.ShiftID, &inv.ResponsibleStaffID, &inv.Notes,
	}, inv.Audit.ScanTargets()...)
	if err := row.Scan(targets...); err != nil {
		return nil, err
	}
	return &inv, nil
}

// Create must run inside a transaction; the header and items are separate
// statements.
func (r *inventoryRepoPG) Create(ctx context.Context, inv *Inventory) error {
	ctx, span := telemetry.StartSpan(ctx, "fleet.repo.CreateInventory")
	defer span.End()

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto(inventoryTable).Cols(inventoryCols...)
	ib.Values(append([]interface{}{
		inv.ID, inv.AmbulanceID, inv.InventoryDate, inv.ShiftID, inv.ResponsibleStaffID, inv.Notes,
	}, inv.Audit.InsertValues()...)...)

	query, args := ib.Build()
	if _, err := r.conn(ctx).Exec(ctx, query, args...); err != nil {
		if db.IsUniqueViolation(err) {
			return duplicateInventory(inv.AmbulanceID, inv.InventoryDate)
		}
		if db.IsForeignKeyViolation(err) {
			return apperr.NotFound("inventory reference", "", inv.ID.String())
		}
		return fmt.Errorf("insert inventory: %w", err)
	}
	if len(inv.Items) == 0 {
		return nil
	}

	items := sqlbuilder.PostgreSQL.NewInsertBuilder()
	items.InsertInto(inventoryItemTable).Cols(inventoryItemCols...)
	for _, it := range inv.Items {
		items.Values(it.ID, inv.ID, it.Name, it.Category, it.ExpectedQty, it.ActualQty, it.Notes)
	}
	query, args = items.Build()
	if _, err := r.conn(ctx).Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert inventory items: %w", err)
	}
	return nil
}

func (r *inventoryRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Inventory, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(inventoryCols...).From(inventoryTable).Where(sb.Equal("id", id), sb.Equal("is_deleted", false))

	query, args := sb.Build()
	inv, err := scanInventory(r.conn(ctx).QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("inventory", "", id.String())
	}
	if err != nil {
		return nil, fmt.Errorf("select inventory: %w", err)
	}
	if err := r.loadItems(ctx, []*Inventory{inv}); err != nil {
		return nil, err
	}
	return inv, nil
}

func (r *inventoryRepoPG) loadItems(ctx context.Context, invs []*Inventory) error {
	if len(invs) == 0 {
		return nil
	}
	byID := make(map[uuid.UUID]*Inventory, len(invs))
	ids := make([]interface{}, 0, len(invs))
	for _, inv := range invs {
		inv.Items = []InventoryItem{}
		byID[inv.ID] = inv
		ids = append(ids, inv.ID)
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(inventoryItemCols...).From(inventoryItemTable).Where(sb.In("inventory_id", ids...))
	sb.OrderBy("name").Asc()

	query, args := sb.Build()
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("select inventory items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it InventoryItem
		if err := rows.Scan(&it.ID, &it.InventoryID, &it.Name, &it.Category, &it.ExpectedQty, &it.ActualQty, &it.Notes); err != nil {
			return fmt.Errorf("scan inventory item: %w", err)
		}
		if inv, ok := byID[it.InventoryID]; ok {
			inv.Items = append(inv.Items, it)
		}
	}
	return rows.Err()
}

func (r *inventoryRepoPG) Exists(ctx context.Context, ambulanceID uuid.UUID, date time.Time, shiftID uuid.UUID) (bool, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("1").From(inventoryTable).Where(
		sb.Equal("ambulance_id", ambulanceID),
		sb.Equal("inventory_date", date),
		sb.Equal("shift_id", shiftID),
		sb.Equal("is_deleted", false),
	).Limit(1)

	query, args := sb.Build()
	var one int
	err := r.conn(ctx).QueryRow(ctx, query, args...).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check inventory exists: %w", err)
	}
	return true, nil
}

func applyInventoryFilter(sb *sqlbuilder.SelectBuilder, f InventoryFilter) {
	sb.Where(sb.Equal("is_deleted", false))
	if f.AmbulanceID != nil {
		sb.Where(sb.Equal("ambulance_id", *f.AmbulanceID))
	}
	if f.ShiftID != nil {
		sb.Where(sb.Equal("shift_id", *f.ShiftID))
	}
	if f.From != nil {
		sb.Where(sb.GreaterEqualThan("inventory_date", *f.From))
	}
	if f.To != nil {
		sb.Where(sb.LessEqualThan("inventory_date", *f.To))
	}
}

func (r *inventoryRepoPG) List(ctx context.Context, f InventoryFilter, p pagination.Params) ([]*Inventory, int, error) {
	cb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	cb.Select("COUNT(*)").From(inventoryTable)
	applyInventoryFilter(cb, f)
	countQuery, countArgs := cb.Build()
	var total int
	if err := r.conn(ctx).QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count inventories: %w", err)
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(inventoryCols...).From(inventoryTable)
	applyInventoryFilter(sb, f)
	sb.OrderBy("inventory_date").Desc()
	p.Apply(sb)

	query, args := sb.Build()
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list inventories: %w", err)
	}
	var invs []*Inventory
	for rows.Next() {
		inv, err := scanInventory(rows)
		if err != nil {
			rows.Close()
			return nil, 0, fmt.Errorf("scan inventory: %w", err)
		}
		invs = append(invs, inv)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	if err := r.loadItems(ctx, invs); err != nil {
		return nil, 0, err
	}
	return invs, total, nil
}

func (r *inventoryRepoPG) SoftDelete(ctx context.Context, id uuid.UUID, actor uuid.UUID, now time.Time) error {
	query, args := db.SoftDelete(inventoryTable, actor, now, func(ub *sqlbuilder.UpdateBuilder) string {
		return ub.Equal("id", id)
	})
	tag, err := r.conn(ctx).Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("soft delete inventory: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("inventory", "", id.String())
	}
	return nil
}
