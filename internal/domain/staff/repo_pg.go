package staff

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

const staffTable = "staff"

var staffCols = append([]string{
	"id", "first_name", "last_name", "document_number", "staff_type", "role",
	"username", "password_hash", "active", "phone", "email",
}, db.AuditCols...)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

func scanStaff(row pgx.Row) (*Staff, error) {
	var s Staff
	targets := append([]interface{}{
		&s.ID, &s.FirstName, &s.LastName, &s.DocumentNumber, &s.StaffType, &s.Role,
		&s.Username, &s.PasswordHash, &s.Active, &s.Phone, &s.Email,
	}, s.Audit.ScanTargets()...)
	if err := row.Scan(targets...); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *repoPG) Create(ctx context.Context, s *Staff) error {
	ctx, span := telemetry.StartSpan(ctx, "staff.repo.Create")
	defer span.End()

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto(staffTable).Cols(staffCols...)
	ib.Values(append([]interface{}{
		s.ID, s.FirstName, s.LastName, s.DocumentNumber, s.StaffType, s.Role,
		strings.ToLower(s.Username), s.PasswordHash, s.Active, s.Phone, s.Email,
	}, s.Audit.InsertValues()...)...)

	query, args := ib.Build()
	if _, err := r.conn(ctx).Exec(ctx, query, args...); err != nil {
		if db.IsUniqueViolation(err) {
			return apperr.Conflict("username %q is already taken", s.Username).WithField("username")
		}
		return fmt.Errorf("insert staff: %w", err)
	}
	return nil
}

func (r *repoPG) getBy(ctx context.Context, col string, val interface{}) (*Staff, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(staffCols...).From(staffTable).
		Where(sb.Equal(col, val), sb.Equal("is_deleted", false))

	query, args := sb.Build()
	s, err := scanStaff(r.conn(ctx).QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("staff", "", fmt.Sprint(val))
	}
	if err != nil {
		return nil, fmt.Errorf("select staff by %s: %w", col, err)
	}
	return s, nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Staff, error) {
	return r.getBy(ctx, "id", id)
}

func (r *repoPG) GetByUsername(ctx context.Context, username string) (*Staff, error) {
	return r.getBy(ctx, "username", strings.ToLower(username))
}

func (r *repoPG) Update(ctx context.Context, s *Staff) error {
	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update(staffTable).Set(append([]string{
		ub.Assign("first_name", s.FirstName),
		ub.Assign("last_name", s.LastName),
		ub.Assign("document_number", s.DocumentNumber),
		ub.Assign("staff_type", s.StaffType),
		ub.Assign("role", s.Role),
		ub.Assign("active", s.Active),
		ub.Assign("phone", s.Phone),
		ub.Assign("email", s.Email),
	}, s.Audit.UpdateAssignments(ub)...)...).
		Where(ub.Equal("id", s.ID), ub.Equal("is_deleted", false))

	query, args := ub.Build()
	tag, err := r.conn(ctx).Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update staff: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("staff", "", s.ID.String())
	}
	return nil
}

func (r *repoPG) UpdatePassword(ctx context.Context, id uuid.UUID, hash string, actor uuid.UUID, now time.Time) error {
	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update(staffTable).Set(
		ub.Assign("password_hash", hash),
		ub.Assign("updated_at", now),
		ub.Assign("updated_by", actor),
	).Where(ub.Equal("id", id), ub.Equal("is_deleted", false))

	query, args := ub.Build()
	tag, err := r.conn(ctx).Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update staff password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("staff", "", id.String())
	}
	return nil
}

func (r *repoPG) SoftDelete(ctx context.Context, id uuid.UUID, actor uuid.UUID, now time.Time) error {
	query, args := db.SoftDelete(staffTable, actor, now, func(ub *sqlbuilder.UpdateBuilder) string {
		return ub.Equal("id", id)
	})
	tag, err := r.conn(ctx).Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("soft delete staff: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("staff", "", id.String())
	}
	return nil
}

func applyFilter(sb *sqlbuilder.SelectBuilder, f Filter) {
	sb.Where(sb.Equal("is_deleted", false))
	if f.StaffType != nil {
		sb.Where(sb.Equal("staff_type", *f.StaffType))
	}
	if f.Active != nil {
		sb.Where(sb.Equal("active", *f.Active))
	}
	if f.Name != "" {
		pattern := "%" + f.Name + "%"
		sb.Where(sb.Or(
			sb.ILike("first_name", pattern),
			sb.ILike("last_name", pattern),
			sb.ILike("username", pattern),
		))
	}
}

func (r *repoPG) List(ctx context.Context, f Filter, p pagination.Params) ([]*Staff, int, error) {
	ctx, span := telemetry.StartSpan(ctx, "staff.repo.List")
	defer span.End()

	cb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	cb.Select("COUNT(*)").From(staffTable)
	applyFilter(cb, f)
	countQuery, countArgs := cb.Build()

	var total int
	if err := r.conn(ctx).QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count staff: %w", err)
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(staffCols...).From(staffTable)
	applyFilter(sb, f)
	sb.OrderBy("last_name", "first_name").Asc()
	p.Apply(sb)

	query, args := sb.Build()
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list staff: %w", err)
	}
	defer rows.Close()

	var items []*Staff
	for rows.Next() {
		s, err := scanStaff(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan staff: %w", err)
		}
		items = append(items, s)
	}
	return items, total, rows.Err()
}

func (r *repoPG) Count(ctx context.Context) (int, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("COUNT(*)").From(staffTable).Where(sb.Equal("is_deleted", false))
	query, args := sb.Build()

	var n int
	if err := r.conn(ctx).QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count staff: %w", err)
	}
	return n, nil
}
