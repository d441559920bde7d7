package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/emsops/emsops/internal/platform/apperr"
	"github.com/emsops/emsops/internal/platform/db"
	"github.com/emsops/emsops/pkg/pagination"
)

const itemTable = "catalog_item"

var itemCols = append([]string{"id", "kind", "code", "name", "description", "active"}, db.AuditCols...)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

func scanItem(row pgx.Row) (*Item, error) {
	var it Item
	targets := append([]interface{}{&it.ID, &it.Kind, &it.Code, &it.Name, &it.Description, &it.Active}, it.Audit.ScanTargets()...)
	if err := row.Scan(targets...); err != nil {
		return nil, err
	}
	return &it, nil
}

func (r *repoPG) Create(ctx context.Context, it *Item) error {
	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto(itemTable).Cols(itemCols...)
	ib.Values(append([]interface{}{it.ID, it.Kind, it.Code, it.Name, it.Description, it.Active}, it.Audit.InsertValues()...)...)

	query, args := ib.Build()
	if _, err := r.conn(ctx).Exec(ctx, query, args...); err != nil {
		if db.IsUniqueViolation(err) {
			return apperr.Conflict("%s with code %q already exists", it.Kind, it.Code).WithField("code")
		}
		return fmt.Errorf("insert catalog item: %w", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Item, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(itemCols...).From(itemTable).Where(sb.Equal("id", id), sb.Equal("is_deleted", false))

	query, args := sb.Build()
	it, err := scanItem(r.conn(ctx).QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("catalog item", "", id.String())
	}
	if err != nil {
		return nil, fmt.Errorf("select catalog item: %w", err)
	}
	return it, nil
}

func (r *repoPG) Update(ctx context.Context, it *Item) error {
	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update(itemTable).Set(append([]string{
		ub.Assign("code", it.Code),
		ub.Assign("name", it.Name),
		ub.Assign("description", it.Description),
		ub.Assign("active", it.Active),
	}, it.Audit.UpdateAssignments(ub)...)...).
		Where(ub.Equal("id", it.ID), ub.Equal("is_deleted", false))

	query, args := ub.Build()
	tag, err := r.conn(ctx).Exec(ctx, query, args...)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return apperr.Conflict("%s with code %q already exists", it.Kind, it.Code).WithField("code")
		}
		return fmt.Errorf("update catalog item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("catalog item", "", it.ID.String())
	}
	return nil
}

func (r *repoPG) SoftDelete(ctx context.Context, id uuid.UUID, actor uuid.UUID, now time.Time) error {
	query, args := db.SoftDelete(itemTable, actor, now, func(ub *sqlbuilder.UpdateBuilder) string {
		return ub.Equal("id", id)
	})
	tag, err := r.conn(ctx).Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("soft delete catalog item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("catalog item", "", id.String())
	}
	return nil
}

func applyFilter(sb *sqlbuilder.SelectBuilder, kind Kind, f Filter) {
	sb.Where(sb.Equal("kind", kind), sb.Equal("is_deleted", false))
	if f.Active != nil {
		sb.Where(sb.Equal("active", *f.Active))
	}
	if f.Query != "" {
		pattern := "%" + f.Query + "%"
		sb.Where(sb.Or(sb.ILike("code", pattern), sb.ILike("name", pattern)))
	}
}

func (r *repoPG) List(ctx context.Context, kind Kind, f Filter, p pagination.Params) ([]*Item, int, error) {
	cb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	cb.Select("COUNT(*)").From(itemTable)
	applyFilter(cb, kind, f)
	countQuery, countArgs := cb.Build()

	var total int
	if err := r.conn(ctx).QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count catalog items: %w", err)
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(itemCols...).From(itemTable)
	applyFilter(sb, kind, f)
	sb.OrderBy("code").Asc()
	p.Apply(sb)

	query, args := sb.Build()
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list catalog items: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan catalog item: %w", err)
		}
		items = append(items, it)
	}
	return items, total, rows.Err()
}

func (r *repoPG) ActiveIDs(ctx context.Context, kind Kind, ids []uuid.UUID) ([]uuid.UUID, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	vals := make([]interface{}, len(ids))
	for i, id := range ids {
		vals[i] = id
	}
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id").From(itemTable).Where(
		sb.In("id", vals...),
		sb.Equal("kind", kind),
		sb.Equal("active", true),
		sb.Equal("is_deleted", false),
	)

	query, args := sb.Build()
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select catalog ids: %w", err)
	}
	defer rows.Close()

	var found []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan catalog id: %w", err)
		}
		found = append(found, id)
	}
	return found, rows.Err()
}
