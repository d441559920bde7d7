package transport

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/emsops/emsops/internal/domain/catalog"
	"github.com/emsops/emsops/internal/domain/staff"
	"github.com/emsops/emsops/internal/platform/apperr"
	"github.com/emsops/emsops/internal/platform/db"
	"github.com/emsops/emsops/internal/platform/events"
	"github.com/emsops/emsops/internal/platform/telemetry"
	"github.com/emsops/emsops/pkg/pagination"
)

// StaffDirectory resolves staff references.
type StaffDirectory interface {
	IsActive(ctx context.Context, id uuid.UUID) (bool, error)
	IsActiveOfType(ctx context.Context, id uuid.UUID, t staff.Type) (bool, error)
}

// CatalogLookup resolves catalog references.
type CatalogLookup interface {
	Exists(ctx context.Context, kind catalog.Kind, id uuid.UUID) (bool, error)
	ExistAll(ctx context.Context, kind catalog.Kind, ids []uuid.UUID) error
}

// FleetLookup resolves ambulance references.
type FleetLookup interface {
	AmbulanceExists(ctx context.Context, id uuid.UUID) (bool, error)
}

// SavedPayload is carried by transport_report.saved and .completed events.
type SavedPayload struct {
	Status               Status   `json:"status"`
	CompletionPercentage int      `json:"completion_percentage"`
	SectionsTouched      []string `json:"sections_touched"`
	Created              bool     `json:"created"`
}

type Service struct {
	repos     Repositories
	staff     StaffDirectory
	catalogs  CatalogLookup
	fleet     FleetLookup
	tx        db.TxManager
	publisher events.Publisher
	metrics   *Metrics
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(
	repos Repositories,
	staff StaffDirectory,
	catalogs CatalogLookup,
	fleet FleetLookup,
	tx db.TxManager,
	publisher events.Publisher,
	metrics *Metrics,
	logger zerolog.Logger,
) *Service {
	return &Service{
		repos:     repos,
		staff:     staff,
		catalogs:  catalogs,
		fleet:     fleet,
		tx:        tx,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger.With().Str("component", "transport").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// link creates the record behind *slot when it is nil, or loads and mutates
// the linked one in place, then points *slot at it.
func link[T any, P record[T]](ctx context.Context, store Store[T], slot **uuid.UUID, actor uuid.UUID, now time.Time, apply func(*T)) error {
	if *slot != nil {
		e, err := store.Get(ctx, **slot)
		if err != nil {
			return err
		}
		apply(e)
		P(e).row().StampUpdate(actor, now)
		return store.Update(ctx, e)
	}

	e := new(T)
	r := P(e).row()
	r.ID = uuid.New()
	r.StampCreate(actor, now)
	apply(e)
	if err := store.Create(ctx, e); err != nil {
		return err
	}
	id := r.ID
	*slot = &id
	return nil
}

// Save creates a report when req.ReportID is nil and updates it otherwise.
// Every write of the call happens in one transaction; completion and status
// are re-derived before it commits.
func (s *Service) Save(ctx context.Context, actor uuid.UUID, req SaveRequest) (*SaveResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "transport.Save")
	defer span.End()

	op := "update"
	if req.ReportID == nil {
		op = "create"
	}
	sections := touched(req)

	var (
		rep      *Report
		previous Status
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		now := s.now()
		var err error
		if req.ReportID == nil {
			rep, err = s.createRoot(ctx, actor, now, req)
		} else {
			rep, err = s.loadRoot(ctx, *req.ReportID, req.HeaderPatch)
		}
		if err != nil {
			return err
		}
		previous = rep.Status

		if err := s.saveSections(ctx, rep, actor, now, req); err != nil {
			return err
		}

		pct, complete := Evaluate(rep.Presence())
		rep.CompletionPercentage = pct
		rep.Status = StatusFor(complete)
		switch {
		case complete && rep.CompletedAt == nil:
			rep.CompletedAt = &now
		case !complete:
			rep.CompletedAt = nil
		}
		rep.StampUpdate(actor, now)
		return s.repos.Reports.Update(ctx, rep)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		s.metrics.save(op, err)
		evt := s.logger.Warn()
		if apperr.KindOf(err) == apperr.KindInternal {
			evt = s.logger.Error()
		}
		if req.ReportID != nil {
			evt = evt.Str("report_id", req.ReportID.String())
		}
		evt.Err(err).
			Str("actor_id", actor.String()).
			Strs("sections", sections).
			Str("error_kind", string(apperr.KindOf(err))).
			Msg("transport report save failed")
		return nil, apperr.Ensure(err, "save transport report")
	}

	res := &SaveResult{
		ReportID:             rep.ID,
		Status:               rep.Status,
		CompletionPercentage: rep.CompletionPercentage,
		SectionsTouched:      sections,
		Created:              req.ReportID == nil,
	}
	span.SetAttributes(
		attribute.String("report.id", rep.ID.String()),
		attribute.Int("report.completion", rep.CompletionPercentage),
	)
	s.metrics.save(op, nil)
	s.metrics.observeCompletion(rep.CompletionPercentage)
	s.publishSaved(ctx, actor, res, previous)

	s.logger.Info().
		Str("report_id", rep.ID.String()).
		Str("actor_id", actor.String()).
		Str("status", string(rep.Status)).
		Int("completion", rep.CompletionPercentage).
		Strs("sections", sections).
		Msg("transport report saved")
	return res, nil
}

func touched(req SaveRequest) []string {
	out := []string{}
	if !req.Patient.empty() {
		out = append(out, SectionPatient)
	}
	if !req.InformedConsent.empty() {
		out = append(out, SectionInformedConsent)
	}
	if !req.CareTransfer.empty() {
		out = append(out, SectionCareTransfer)
	}
	if !req.SatisfactionSurvey.empty() {
		out = append(out, SectionSatisfactionSurvey)
	}
	return out
}

// createRoot persists a new DRAFT report with its header. Sections are
// linked afterwards.
func (s *Service) createRoot(ctx context.Context, actor uuid.UUID, now time.Time, req SaveRequest) (*Report, error) {
	if !req.Patient.identified() {
		return nil, apperr.ValidationField("patient", "patient full_name or document_number is required to create a transport report")
	}
	rep := &Report{ResponsibleStaffID: actor, Status: StatusDraft}
	rep.ID = uuid.New()
	rep.StampCreate(actor, now)
	req.HeaderPatch.Apply(rep)

	check := req.HeaderPatch
	check.ResponsibleStaffID = &rep.ResponsibleStaffID
	if err := s.checkHeader(ctx, check); err != nil {
		return nil, err
	}
	if err := s.repos.Reports.Create(ctx, rep); err != nil {
		return nil, err
	}
	return rep, nil
}

func (s *Service) loadRoot(ctx context.Context, id uuid.UUID, h HeaderPatch) (*Report, error) {
	rep, err := s.repos.Reports.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkHeader(ctx, h); err != nil {
		return nil, err
	}
	h.Apply(rep)
	return rep, nil
}

// checkHeader resolves every reference the header patch supplies.
func (s *Service) checkHeader(ctx context.Context, h HeaderPatch) error {
	if h.ResponsibleStaffID != nil {
		ok, err := s.staff.IsActive(ctx, *h.ResponsibleStaffID)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.NotFound("staff", "responsible_staff_id", h.ResponsibleStaffID.String())
		}
	}
	if h.AmbulanceID != nil {
		ok, err := s.fleet.AmbulanceExists(ctx, *h.AmbulanceID)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.NotFound("ambulance", "ambulance_id", h.AmbulanceID.String())
		}
	}
	if h.DriverID != nil {
		ok, err := s.staff.IsActiveOfType(ctx, *h.DriverID, staff.TypeDriver)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.NotFound("driver", "driver_id", h.DriverID.String())
		}
	}
	if h.ShiftID != nil {
		return s.checkCatalog(ctx, catalog.KindShift, *h.ShiftID, "shift_id")
	}
	return nil
}

func (s *Service) checkCatalog(ctx context.Context, kind catalog.Kind, id uuid.UUID, field string) error {
	ok, err := s.catalogs.Exists(ctx, kind, id)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.NotFound(string(kind), field, id.String())
	}
	return nil
}

// saveSections writes the supplied sections in a fixed order.
func (s *Service) saveSections(ctx context.Context, rep *Report, actor uuid.UUID, now time.Time, req SaveRequest) error {
	if p := req.Patient; !p.empty() {
		if err := link(ctx, s.repos.Patients, &rep.PatientInfoID, actor, now, p.Apply); err != nil {
			return err
		}
	}
	if p := req.InformedConsent; !p.empty() {
		if err := link(ctx, s.repos.Consents, &rep.InformedConsentID, actor, now, p.Apply); err != nil {
			return err
		}
	}
	if p := req.CareTransfer; !p.empty() {
		if err := s.saveCareTransfer(ctx, rep, actor, now, p); err != nil {
			return err
		}
	}
	if p := req.SatisfactionSurvey; !p.empty() {
		if err := link(ctx, s.repos.Surveys, &rep.SatisfactionSurveyID, actor, now, p.Apply); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) saveCareTransfer(ctx context.Context, rep *Report, actor uuid.UUID, now time.Time, p *CareTransferPatch) error {
	if p.Diagnosis1ID != nil {
		if err := s.checkCatalog(ctx, catalog.KindDiagnosis, *p.Diagnosis1ID, "care_transfer.diagnosis_1_id"); err != nil {
			return err
		}
	}
	if p.Diagnosis2ID != nil {
		if err := s.checkCatalog(ctx, catalog.KindDiagnosis, *p.Diagnosis2ID, "care_transfer.diagnosis_2_id"); err != nil {
			return err
		}
	}
	if re := p.ReceivingEntity; re != nil && re.InstitutionID != nil {
		if err := s.checkCatalog(ctx, catalog.KindReceivingInstitution, *re.InstitutionID,
			"care_transfer.receiving_entity.institution_id"); err != nil {
			return err
		}
	}

	ct := &CareTransfer{}
	if rep.CareTransferID != nil {
		var err error
		if ct, err = s.repos.CareTransfers.Get(ctx, *rep.CareTransferID); err != nil {
			return err
		}
	}
	p.Apply(ct)

	// Nested rows are written before the care transfer row that references them.
	if !p.Companion.empty() {
		if err := link(ctx, s.repos.Companions, &ct.CompanionID, actor, now, p.Companion.Apply); err != nil {
			return err
		}
	}
	if !p.InitialExam.empty() {
		if err := link(ctx, s.repos.Exams, &ct.InitialExamID, actor, now, p.InitialExam.Apply); err != nil {
			return err
		}
	}
	if !p.FinalExam.empty() {
		if err := link(ctx, s.repos.Exams, &ct.FinalExamID, actor, now, p.FinalExam.Apply); err != nil {
			return err
		}
	}
	if !p.Treatment.empty() {
		if err := link(ctx, s.repos.Treatments, &ct.TreatmentID, actor, now, p.Treatment.Apply); err != nil {
			return err
		}
	}
	if !p.Result.empty() {
		if err := link(ctx, s.repos.Results, &ct.ResultID, actor, now, p.Result.Apply); err != nil {
			return err
		}
	}
	if !p.Complications.empty() {
		if err := link(ctx, s.repos.Complications, &ct.ComplicationsID, actor, now, p.Complications.Apply); err != nil {
			return err
		}
	}
	if !p.ReceivingEntity.empty() {
		if err := link(ctx, s.repos.ReceivingEntities, &ct.ReceivingEntityID, actor, now, p.ReceivingEntity.Apply); err != nil {
			return err
		}
	}

	if rep.CareTransferID == nil {
		ct.ID = uuid.New()
		ct.StampCreate(actor, now)
		if err := s.repos.CareTransfers.Create(ctx, ct); err != nil {
			return err
		}
		rep.CareTransferID = &ct.ID
	} else {
		ct.StampUpdate(actor, now)
		if err := s.repos.CareTransfers.Update(ctx, ct); err != nil {
			return err
		}
	}

	if err := s.replaceSelection(ctx, SkinConditions, catalog.KindSkinCondition,
		ct.ID, p.SkinConditions, "care_transfer.skin_conditions"); err != nil {
		return err
	}
	return s.replaceSelection(ctx, HemodynamicStatuses, catalog.KindHemodynamicStatus,
		ct.ID, p.HemodynamicStatuses, "care_transfer.hemodynamic_statuses")
}

func (s *Service) replaceSelection(ctx context.Context, sel Selection, kind catalog.Kind, ctID uuid.UUID, in IDSelection, field string) error {
	if !in.Set {
		return nil
	}
	ids := in.unique()
	if err := s.catalogs.ExistAll(ctx, kind, ids); err != nil {
		if ae, ok := apperr.As(err); ok {
			return ae.WithField(field)
		}
		return err
	}
	return s.repos.Selections.Replace(ctx, sel, ctID, ids)
}

func (s *Service) publishSaved(ctx context.Context, actor uuid.UUID, res *SaveResult, previous Status) {
	payload := SavedPayload{
		Status:               res.Status,
		CompletionPercentage: res.CompletionPercentage,
		SectionsTouched:      res.SectionsTouched,
		Created:              res.Created,
	}
	evts := []events.Event{events.New(events.TransportReportSaved, res.ReportID, actor, payload)}
	if res.Status == StatusCompleted && previous != StatusCompleted {
		evts = append(evts, events.New(events.TransportReportCompleted, res.ReportID, actor, payload))
	}
	if err := s.publisher.Publish(ctx, evts...); err != nil {
		s.logger.Error().Err(err).Str("report_id", res.ReportID.String()).Msg("publish transport report events failed")
	}
}

// -- Read side --

// Get returns the report with every linked section, nested record and
// selection loaded.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*ReportDetail, error) {
	ctx, span := telemetry.StartSpan(ctx, "transport.Get")
	defer span.End()

	rep, err := s.repos.Reports.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	d := &ReportDetail{Report: rep}
	if d.Patient, err = load(ctx, s.repos.Patients, rep.PatientInfoID); err != nil {
		return nil, err
	}
	if d.InformedConsent, err = load(ctx, s.repos.Consents, rep.InformedConsentID); err != nil {
		return nil, err
	}
	if d.SatisfactionSurvey, err = load(ctx, s.repos.Surveys, rep.SatisfactionSurveyID); err != nil {
		return nil, err
	}
	if d.CareTransfer, err = s.loadCareTransfer(ctx, rep.CareTransferID); err != nil {
		return nil, err
	}
	return d, nil
}

func load[T any](ctx context.Context, store Store[T], id *uuid.UUID) (*T, error) {
	if id == nil {
		return nil, nil
	}
	return store.Get(ctx, *id)
}

func (s *Service) loadCareTransfer(ctx context.Context, id *uuid.UUID) (*CareTransferDetail, error) {
	ct, err := load(ctx, s.repos.CareTransfers, id)
	if err != nil || ct == nil {
		return nil, err
	}
	d := &CareTransferDetail{CareTransfer: ct}
	if d.Companion, err = load(ctx, s.repos.Companions, ct.CompanionID); err != nil {
		return nil, err
	}
	if d.InitialExam, err = load(ctx, s.repos.Exams, ct.InitialExamID); err != nil {
		return nil, err
	}
	if d.FinalExam, err = load(ctx, s.repos.Exams, ct.FinalExamID); err != nil {
		return nil, err
	}
	if d.Treatment, err = load(ctx, s.repos.Treatments, ct.TreatmentID); err != nil {
		return nil, err
	}
	if d.Result, err = load(ctx, s.repos.Results, ct.ResultID); err != nil {
		return nil, err
	}
	if d.Complications, err = load(ctx, s.repos.Complications, ct.ComplicationsID); err != nil {
		return nil, err
	}
	if d.ReceivingEntity, err = load(ctx, s.repos.ReceivingEntities, ct.ReceivingEntityID); err != nil {
		return nil, err
	}
	if d.SkinConditions, err = s.repos.Selections.List(ctx, SkinConditions, ct.ID); err != nil {
		return nil, err
	}
	if d.HemodynamicStatuses, err = s.repos.Selections.List(ctx, HemodynamicStatuses, ct.ID); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) List(ctx context.Context, f Filter, p pagination.Params) ([]*Report, int, error) {
	return s.repos.Reports.List(ctx, f, p)
}

// SoftDelete marks the report, its sections and their nested records deleted
// in one transaction.
func (s *Service) SoftDelete(ctx context.Context, actor, id uuid.UUID) error {
	ctx, span := telemetry.StartSpan(ctx, "transport.SoftDelete")
	defer span.End()

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		now := s.now()
		rep, err := s.repos.Reports.Get(ctx, id)
		if err != nil {
			return err
		}
		if rep.CareTransferID != nil {
			ct, err := s.repos.CareTransfers.Get(ctx, *rep.CareTransferID)
			if err != nil {
				return err
			}
			if err := s.deleteNested(ctx, actor, now, ct); err != nil {
				return err
			}
			if err := s.repos.CareTransfers.SoftDelete(ctx, actor, now, ct.ID); err != nil {
				return err
			}
		}
		for _, del := range []struct {
			id    *uuid.UUID
			purge func(context.Context, uuid.UUID, time.Time, ...uuid.UUID) error
		}{
			{rep.PatientInfoID, s.repos.Patients.SoftDelete},
			{rep.InformedConsentID, s.repos.Consents.SoftDelete},
			{rep.SatisfactionSurveyID, s.repos.Surveys.SoftDelete},
		} {
			if del.id == nil {
				continue
			}
			if err := del.purge(ctx, actor, now, *del.id); err != nil {
				return err
			}
		}
		return s.repos.Reports.SoftDelete(ctx, actor, now, rep.ID)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		s.metrics.save("delete", err)
		s.logger.Warn().Err(err).
			Str("report_id", id.String()).
			Str("actor_id", actor.String()).
			Str("error_kind", string(apperr.KindOf(err))).
			Msg("transport report delete failed")
		return apperr.Ensure(err, "delete transport report")
	}
	s.metrics.save("delete", nil)

	if err := s.publisher.Publish(ctx, events.New(events.TransportReportDeleted, id, actor, nil)); err != nil {
		s.logger.Error().Err(err).Str("report_id", id.String()).Msg("publish transport_report.deleted failed")
	}
	s.logger.Info().Str("report_id", id.String()).Str("actor_id", actor.String()).Msg("transport report deleted")
	return nil
}

func (s *Service) deleteNested(ctx context.Context, actor uuid.UUID, now time.Time, ct *CareTransfer) error {
	for name, id := range ct.nestedIDs() {
		var err error
		switch name {
		case "companion":
			err = s.repos.Companions.SoftDelete(ctx, actor, now, id)
		case "initial_exam", "final_exam":
			err = s.repos.Exams.SoftDelete(ctx, actor, now, id)
		case "treatment":
			err = s.repos.Treatments.SoftDelete(ctx, actor, now, id)
		case "result":
			err = s.repos.Results.SoftDelete(ctx, actor, now, id)
		case "complications":
			err = s.repos.Complications.SoftDelete(ctx, actor, now, id)
		case "receiving_entity":
			err = s.repos.ReceivingEntities.SoftDelete(ctx, actor, now, id)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
