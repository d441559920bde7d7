package transport

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/emsops/emsops/pkg/pagination"
)

// record is satisfied by pointers to every type that embeds Row.
type record[T any] interface {
	*T
	row() *Row
}

// Store persists one kind of section or nested record.
type Store[T any] interface {
	Create(ctx context.Context, e *T) error
	// Get returns live rows only.
	Get(ctx context.Context, id uuid.UUID) (*T, error)
	Update(ctx context.Context, e *T) error
	SoftDelete(ctx context.Context, actor uuid.UUID, now time.Time, ids ...uuid.UUID) error
}

type ReportRepository interface {
	Store[Report]
	List(ctx context.Context, f Filter, p pagination.Params) ([]*Report, int, error)
	// ExportRows returns up to limit reports matching f joined with the
	// patient's name and document.
	ExportRows(ctx context.Context, f Filter, limit int) ([]ExportRow, error)
}

// Selection names a care transfer many-to-many association.
type Selection string

const (
	SkinConditions      Selection = "care_transfer_skin_condition"
	HemodynamicStatuses Selection = "care_transfer_hemodynamic_status"
)

type SelectionRepository interface {
	// Replace makes ids the complete set for the care transfer.
	Replace(ctx context.Context, sel Selection, careTransferID uuid.UUID, ids []uuid.UUID) error
	List(ctx context.Context, sel Selection, careTransferID uuid.UUID) ([]uuid.UUID, error)
}

// Repositories groups every store the aggregate is written through.
type Repositories struct {
	Reports           ReportRepository
	Patients          Store[PatientInfo]
	Consents          Store[InformedConsent]
	CareTransfers     Store[CareTransfer]
	Surveys           Store[SatisfactionSurvey]
	Companions        Store[Companion]
	Exams             Store[PhysicalExam]
	Treatments        Store[Treatment]
	Results           Store[TransferResult]
	Complications     Store[Complications]
	ReceivingEntities Store[ReceivingEntity]
	Selections        SelectionRepository
}
