package db

import (
	"time"

	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"
)

// Audit is embedded in every persisted entity.
type Audit struct {
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	CreatedBy uuid.UUID  `json:"created_by"`
	UpdatedBy uuid.UUID  `json:"updated_by"`
	IsDeleted bool       `json:"-"`
	DeletedAt *time.Time `json:"-"`
	DeletedBy *uuid.UUID `json:"-"`
}

// AuditCols is the column list matching Audit.ScanTargets.
var AuditCols = []string{"created_at", "updated_at", "created_by", "updated_by", "is_deleted", "deleted_at", "deleted_by"}

func (a *Audit) StampCreate(actor uuid.UUID, now time.Time) {
	a.CreatedAt, a.UpdatedAt = now, now
	a.CreatedBy, a.UpdatedBy = actor, actor
}

func (a *Audit) StampUpdate(actor uuid.UUID, now time.Time) {
	a.UpdatedAt = now
	a.UpdatedBy = actor
}

func (a *Audit) StampDelete(actor uuid.UUID, now time.Time) {
	a.StampUpdate(actor, now)
	a.IsDeleted = true
	a.DeletedAt = &now
	a.DeletedBy = &actor
}

// ScanTargets returns pointers in AuditCols order.
func (a *Audit) ScanTargets() []interface{} {
	return []interface{}{&a.CreatedAt, &a.UpdatedAt, &a.CreatedBy, &a.UpdatedBy, &a.IsDeleted, &a.DeletedAt, &a.DeletedBy}
}

// InsertValues returns values in AuditCols order.
func (a *Audit) InsertValues() []interface{} {
	return []interface{}{a.CreatedAt, a.UpdatedAt, a.CreatedBy, a.UpdatedBy, a.IsDeleted, a.DeletedAt, a.DeletedBy}
}

// UpdateAssignments sets the update stamp on an UPDATE builder.
func (a *Audit) UpdateAssignments(ub *sqlbuilder.UpdateBuilder) []string {
	return []string{ub.Assign("updated_at", a.UpdatedAt), ub.Assign("updated_by", a.UpdatedBy)}
}

// SoftDelete builds an UPDATE that soft-deletes live rows of table matching where.
func SoftDelete(table string, actor uuid.UUID, now time.Time, where func(ub *sqlbuilder.UpdateBuilder) string) (string, []interface{}) {
	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update(table).Set(
		ub.Assign("is_deleted", true),
		ub.Assign("deleted_at", now),
		ub.Assign("deleted_by", actor),
		ub.Assign("updated_at", now),
		ub.Assign("updated_by", actor),
	).Where(where(ub), ub.Equal("is_deleted", false))
	return ub.Build()
}
