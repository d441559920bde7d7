package transport

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
	"github.com/emsops/emsops/internal/platform/telemetry"
	"github.com/emsops/emsops/pkg/pagination"
)

// table maps a record type to its table. cols excludes id and the audit
// columns; values and fields follow cols order.
type table[T any] struct {
	name   string
	entity string
	cols   []string
	values func(e *T) []interface{}
	fields func(e *T) []interface{}
}

func (t table[T]) selectCols() []string {
	cols := append([]string{"id"}, t.cols...)
	return append(cols, db.AuditCols...)
}

type pgStore[T any, P record[T]] struct {
	pool *pgxpool.Pool
	t    table[T]
}

func newStore[T any, P record[T]](pool *pgxpool.Pool, t table[T]) *pgStore[T, P] {
	return &pgStore[T, P]{pool: pool, t: t}
}

func (s *pgStore[T, P]) conn(ctx context.Context) db.Querier { return db.Conn(ctx, s.pool) }

func (s *pgStore[T, P]) scan(row pgx.Row) (*T, error) {
	e := new(T)
	r := P(e).row()
	targets := append([]interface{}{&r.ID}, s.t.fields(e)...)
	targets = append(targets, r.Audit.ScanTargets()...)
	if err := row.Scan(targets...); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *pgStore[T, P]) Create(ctx context.Context, e *T) error {
	r := P(e).row()
	vals := append([]interface{}{r.ID}, s.t.values(e)...)
	vals = append(vals, r.Audit.InsertValues()...)

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto(s.t.name).Cols(s.t.selectCols()...).Values(vals...)

	query, args := ib.Build()
	if _, err := s.conn(ctx).Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert %s: %w", s.t.name, err)
	}
	return nil
}

func (s *pgStore[T, P]) Get(ctx context.Context, id uuid.UUID) (*T, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(s.t.selectCols()...).From(s.t.name).Where(sb.Equal("id", id), sb.Equal("is_deleted", false))

	query, args := sb.Build()
	e, err := s.scan(s.conn(ctx).QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound(s.t.entity, "", id.String())
	}
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", s.t.name, err)
	}
	return e, nil
}

func (s *pgStore[T, P]) Update(ctx context.Context, e *T) error {
	r := P(e).row()
	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	vals := s.t.values(e)
	assignments := make([]string, 0, len(s.t.cols)+2)
	for i, col := range s.t.cols {
		assignments = append(assignments, ub.Assign(col, vals[i]))
	}
	assignments = append(assignments, r.Audit.UpdateAssignments(ub)...)
	ub.Update(s.t.name).Set(assignments...).Where(ub.Equal("id", r.ID), ub.Equal("is_deleted", false))

	query, args := ub.Build()
	tag, err := s.conn(ctx).Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", s.t.name, err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(s.t.entity, "", r.ID.String())
	}
	return nil
}

func (s *pgStore[T, P]) SoftDelete(ctx context.Context, actor uuid.UUID, now time.Time, ids ...uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	vals := make([]interface{}, len(ids))
	for i, id := range ids {
		vals[i] = id
	}
	query, args := db.SoftDelete(s.t.name, actor, now, func(ub *sqlbuilder.UpdateBuilder) string {
		return ub.In("id", vals...)
	})
	if _, err := s.conn(ctx).Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("soft delete %s: %w", s.t.name, err)
	}
	return nil
}

// -- Tables --

var reportTable = table[Report]{
	name:   "transport_report",
	entity: "transport report",
	cols: []string{
		"responsible_staff_id", "ambulance_id", "driver_id", "shift_id", "service_date",
		"patient_info_id", "informed_consent_id", "care_transfer_id", "satisfaction_survey_id",
		"status", "completion_percentage", "completed_at",
	},
	values: func(e *Report) []interface{} {
		return []interface{}{
			e.ResponsibleStaffID, e.AmbulanceID, e.DriverID, e.ShiftID, e.ServiceDate,
			e.PatientInfoID, e.InformedConsentID, e.CareTransferID, e.SatisfactionSurveyID,
			e.Status, e.CompletionPercentage, e.CompletedAt,
		}
	},
	fields: func(e *Report) []interface{} {
		return []interface{}{
			&e.ResponsibleStaffID, &e.AmbulanceID, &e.DriverID, &e.ShiftID, &e.ServiceDate,
			&e.PatientInfoID, &e.InformedConsentID, &e.CareTransferID, &e.SatisfactionSurveyID,
			&e.Status, &e.CompletionPercentage, &e.CompletedAt,
		}
	},
}

var patientTable = table[PatientInfo]{
	name:   "patient_info",
	entity: "patient info",
	cols:   []string{"full_name", "document_type", "document_number", "birth_date", "sex", "phone", "address", "health_insurer"},
	values: func(e *PatientInfo) []interface{} {
		return []interface{}{e.FullName, e.DocumentType, e.DocumentNumber, e.BirthDate, e.Sex, e.Phone, e.Address, e.HealthInsurer}
	},
	fields: func(e *PatientInfo) []interface{} {
		return []interface{}{&e.FullName, &e.DocumentType, &e.DocumentNumber, &e.BirthDate, &e.Sex, &e.Phone, &e.Address, &e.HealthInsurer}
	},
}

var consentTable = table[InformedConsent]{
	name:   "informed_consent",
	entity: "informed consent",
	cols:   []string{"guardian_name", "guardian_document", "relationship", "accepts_transport", "accepts_procedures", "signed_at", "notes"},
	values: func(e *InformedConsent) []interface{} {
		return []interface{}{e.GuardianName, e.GuardianDocument, e.Relationship, e.AcceptsTransport, e.AcceptsProcedures, e.SignedAt, e.Notes}
	},
	fields: func(e *InformedConsent) []interface{} {
		return []interface{}{&e.GuardianName, &e.GuardianDocument, &e.Relationship, &e.AcceptsTransport, &e.AcceptsProcedures, &e.SignedAt, &e.Notes}
	},
}

var careTransferTable = table[CareTransfer]{
	name:   "care_transfer",
	entity: "care transfer",
	cols: []string{
		"origin_address", "destination_address", "reason",
		"dispatched_at", "arrived_at", "departed_at", "delivered_at",
		"diagnosis_1_id", "diagnosis_2_id",
		"companion_id", "initial_exam_id", "final_exam_id", "treatment_id",
		"result_id", "complications_id", "receiving_entity_id",
	},
	values: func(e *CareTransfer) []interface{} {
		return []interface{}{
			e.OriginAddress, e.DestinationAddress, e.Reason,
			e.DispatchedAt, e.ArrivedAt, e.DepartedAt, e.DeliveredAt,
			e.Diagnosis1ID, e.Diagnosis2ID,
			e.CompanionID, e.InitialExamID, e.FinalExamID, e.TreatmentID,
			e.ResultID, e.ComplicationsID, e.ReceivingEntityID,
		}
	},
	fields: func(e *CareTransfer) []interface{} {
		return []interface{}{
			&e.OriginAddress, &e.DestinationAddress, &e.Reason,
			&e.DispatchedAt, &e.ArrivedAt, &e.DepartedAt, &e.DeliveredAt,
			&e.Diagnosis1ID, &e.Diagnosis2ID,
			&e.CompanionID, &e.InitialExamID, &e.FinalExamID, &e.TreatmentID,
			&e.ResultID, &e.ComplicationsID, &e.ReceivingEntityID,
		}
	},
}

var surveyTable = table[SatisfactionSurvey]{
	name:   "satisfaction_survey",
	entity: "satisfaction survey",
	cols:   []string{"punctuality_rating", "attention_rating", "overall_rating", "would_recommend", "comments"},
	values: func(e *SatisfactionSurvey) []interface{} {
		return []interface{}{e.PunctualityRating, e.AttentionRating, e.OverallRating, e.WouldRecommend, e.Comments}
	},
	fields: func(e *SatisfactionSurvey) []interface{} {
		return []interface{}{&e.PunctualityRating, &e.AttentionRating, &e.OverallRating, &e.WouldRecommend, &e.Comments}
	},
}

var companionTable = table[Companion]{
	name:   "companion",
	entity: "companion",
	cols:   []string{"full_name", "document_number", "relationship", "phone"},
	values: func(e *Companion) []interface{} {
		return []interface{}{e.FullName, e.DocumentNumber, e.Relationship, e.Phone}
	},
	fields: func(e *Companion) []interface{} {
		return []interface{}{&e.FullName, &e.DocumentNumber, &e.Relationship, &e.Phone}
	},
}

var examTable = table[PhysicalExam]{
	name:   "physical_exam",
	entity: "physical exam",
	cols: []string{
		"heart_rate", "respiratory_rate", "systolic_bp", "diastolic_bp",
		"temperature", "oxygen_saturation", "glasgow_score", "glucose", "notes",
	},
	values: func(e *PhysicalExam) []interface{} {
		return []interface{}{
			e.HeartRate, e.RespiratoryRate, e.SystolicBP, e.DiastolicBP,
			e.Temperature, e.OxygenSaturation, e.GlasgowScore, e.Glucose, e.Notes,
		}
	},
	fields: func(e *PhysicalExam) []interface{} {
		return []interface{}{
			&e.HeartRate, &e.RespiratoryRate, &e.SystolicBP, &e.DiastolicBP,
			&e.Temperature, &e.OxygenSaturation, &e.GlasgowScore, &e.Glucose, &e.Notes,
		}
	},
}

var treatmentTable = table[Treatment]{
	name:   "treatment",
	entity: "treatment",
	cols:   []string{"oxygen_therapy", "oxygen_liters", "iv_access", "immobilization", "medications", "procedures"},
	values: func(e *Treatment) []interface{} {
		return []interface{}{e.OxygenTherapy, e.OxygenLiters, e.IVAccess, e.Immobilization, e.Medications, e.Procedures}
	},
	fields: func(e *Treatment) []interface{} {
		return []interface{}{&e.OxygenTherapy, &e.OxygenLiters, &e.IVAccess, &e.Immobilization, &e.Medications, &e.Procedures}
	},
}

var resultTable = table[TransferResult]{
	name:   "transfer_result",
	entity: "transfer result",
	cols:   []string{"outcome", "notes"},
	values: func(e *TransferResult) []interface{} { return []interface{}{e.Outcome, e.Notes} },
	fields: func(e *TransferResult) []interface{} { return []interface{}{&e.Outcome, &e.Notes} },
}

var complicationsTable = table[Complications]{
	name:   "complications",
	entity: "complications",
	cols:   []string{"occurred", "description"},
	values: func(e *Complications) []interface{} { return []interface{}{e.Occurred, e.Description} },
	fields: func(e *Complications) []interface{} { return []interface{}{&e.Occurred, &e.Description} },
}

var receivingEntityTable = table[ReceivingEntity]{
	name:   "receiving_entity",
	entity: "receiving entity",
	cols:   []string{"institution_id", "receiving_physician", "receiving_department", "received_at"},
	values: func(e *ReceivingEntity) []interface{} {
		return []interface{}{e.InstitutionID, e.ReceivingPhysician, e.ReceivingDepartment, e.ReceivedAt}
	},
	fields: func(e *ReceivingEntity) []interface{} {
		return []interface{}{&e.InstitutionID, &e.ReceivingPhysician, &e.ReceivingDepartment, &e.ReceivedAt}
	},
}

// NewRepositoriesPG wires every store of the aggregate to PostgreSQL.
func NewRepositoriesPG(pool *pgxpool.Pool) Repositories {
	return Repositories{
		Reports:           &reportRepoPG{pgStore: newStore[Report](pool, reportTable)},
		Patients:          newStore[PatientInfo](pool, patientTable),
		Consents:          newStore[InformedConsent](pool, consentTable),
		CareTransfers:     newStore[CareTransfer](pool, careTransferTable),
		Surveys:           newStore[SatisfactionSurvey](pool, surveyTable),
		Companions:        newStore[Companion](pool, companionTable),
		Exams:             newStore[PhysicalExam](pool, examTable),
		Treatments:        newStore[Treatment](pool, treatmentTable),
		Results:           newStore[TransferResult](pool, resultTable),
		Complications:     newStore[Complications](pool, complicationsTable),
		ReceivingEntities: newStore[ReceivingEntity](pool, receivingEntityTable),
		Selections:        &selectionRepoPG{pool: pool},
	}
}

// -- Reports --

type reportRepoPG struct {
	*pgStore[Report, *Report]
}

func applyFilter(sb *sqlbuilder.SelectBuilder, prefix string, f Filter) {
	col := func(c string) string { return prefix + c }
	sb.Where(sb.Equal(col("is_deleted"), false))
	if f.Status != nil {
		sb.Where(sb.Equal(col("status"), *f.Status))
	}
	if f.AmbulanceID != nil {
		sb.Where(sb.Equal(col("ambulance_id"), *f.AmbulanceID))
	}
	if f.ResponsibleStaffID != nil {
		sb.Where(sb.Equal(col("responsible_staff_id"), *f.ResponsibleStaffID))
	}
	if f.From != nil {
		sb.Where(sb.GreaterEqualThan(col("service_date"), *f.From))
	}
	if f.To != nil {
		sb.Where(sb.LessEqualThan(col("service_date"), *f.To))
	}
}

func (r *reportRepoPG) List(ctx context.Context, f Filter, p pagination.Params) ([]*Report, int, error) {
	ctx, span := telemetry.StartSpan(ctx, "transport.repo.List")
	defer span.End()

	cb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	cb.Select("COUNT(*)").From(reportTable.name)
	applyFilter(cb, "", f)
	countQuery, countArgs := cb.Build()
	var total int
	if err := r.conn(ctx).QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count transport reports: %w", err)
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(reportTable.selectCols()...).From(reportTable.name)
	applyFilter(sb, "", f)
	sb.OrderBy("updated_at").Desc()
	p.Apply(sb)

	query, args := sb.Build()
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list transport reports: %w", err)
	}
	defer rows.Close()

	var items []*Report
	for rows.Next() {
		rep, err := r.scan(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan transport report: %w", err)
		}
		items = append(items, rep)
	}
	return items, total, rows.Err()
}

func (r *reportRepoPG) ExportRows(ctx context.Context, f Filter, limit int) ([]ExportRow, error) {
	cols := make([]string, 0, len(reportTable.selectCols())+2)
	for _, c := range reportTable.selectCols() {
		cols = append(cols, "r."+c)
	}
	cols = append(cols, "p.full_name", "p.document_number")

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(cols...).
		From(sb.As(reportTable.name, "r")).
		JoinWithOption(sqlbuilder.LeftJoin, sb.As(patientTable.name, "p"), "p.id = r.patient_info_id")
	applyFilter(sb, "r.", f)
	sb.OrderBy("r.service_date", "r.created_at").Asc()
	sb.Limit(limit)

	query, args := sb.Build()
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("export transport reports: %w", err)
	}
	defer rows.Close()

	var out []ExportRow
	for rows.Next() {
		var row ExportRow
		targets := append([]interface{}{&row.ID}, reportTable.fields(&row.Report)...)
		targets = append(targets, row.Audit.ScanTargets()...)
		targets = append(targets, &row.PatientName, &row.PatientDocument)
		if err := rows.Scan(targets...); err != nil {
			return nil, fmt.Errorf("scan export row: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// -- Selections --

type selectionRepoPG struct{ pool *pgxpool.Pool }

func (r *selectionRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

func (r *selectionRepoPG) Replace(ctx context.Context, sel Selection, careTransferID uuid.UUID, ids []uuid.UUID) error {
	del := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	del.DeleteFrom(string(sel)).Where(del.Equal("care_transfer_id", careTransferID))
	query, args := del.Build()
	if _, err := r.conn(ctx).Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("clear %s: %w", sel, err)
	}
	if len(ids) == 0 {
		return nil
	}

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto(string(sel)).Cols("care_transfer_id", "catalog_item_id")
	for _, id := range ids {
		ib.Values(careTransferID, id)
	}
	query, args = ib.Build()
	if _, err := r.conn(ctx).Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert %s: %w", sel, err)
	}
	return nil
}

func (r *selectionRepoPG) List(ctx context.Context, sel Selection, careTransferID uuid.UUID) ([]uuid.UUID, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("catalog_item_id").From(string(sel)).Where(sb.Equal("care_transfer_id", careTransferID))

	query, args := sb.Build()
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", sel, err)
	}
	defer rows.Close()

	ids := []uuid.UUID{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan %s: %w", sel, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
