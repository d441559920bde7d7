//go:build integration

package integration

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/emsops/emsops/internal/domain/catalog"
	"github.com/emsops/emsops/internal/domain/fleet"
	"github.com/emsops/emsops/internal/domain/staff"
	"github.com/emsops/emsops/internal/domain/transport"
	"github.com/emsops/emsops/internal/platform/apperr"
	"github.com/emsops/emsops/internal/platform/events"
	"github.com/emsops/emsops/pkg/pagination"
)

type refs struct {
	medic, driver          uuid.UUID
	ambulance, shift       uuid.UUID
	diagnosis, institution uuid.UUID
	skinA, skinB, hemo     uuid.UUID
}

func seedRefs(t *testing.T, s *stack) refs {
	t.Helper()
	amb, err := s.fleet.CreateAmbulance(s.ctx, fleet.AmbulanceCreateRequest{Code: "AMB-7", Plate: "XYZ789"})
	if err != nil {
		t.Fatalf("CreateAmbulance: %v", err)
	}
	return refs{
		medic:       s.staffMember(t, "medic", staff.TypeParamedic).ID,
		driver:      s.staffMember(t, "driver", staff.TypeDriver).ID,
		ambulance:   amb.ID,
		shift:       s.catalogItem(t, catalog.KindShift, "NIGHT"),
		diagnosis:   s.catalogItem(t, catalog.KindDiagnosis, "S06"),
		institution: s.catalogItem(t, catalog.KindReceivingInstitution, "HOSP-1"),
		skinA:       s.catalogItem(t, catalog.KindSkinCondition, "PALE"),
		skinB:       s.catalogItem(t, catalog.KindSkinCondition, "CYANOTIC"),
		hemo:        s.catalogItem(t, catalog.KindHemodynamicStatus, "STABLE"),
	}
}

func strp(v string) *string { return &v }
func intp(v int) *int       { return &v }

func TestTransport_DraftToCompletedLifecycle(t *testing.T) {
	s := newStack(t)
	r := seedRefs(t, s)
	day := transport.Date{Time: time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)}

	res, err := s.transport.Save(s.ctx, r.medic, transport.SaveRequest{
		HeaderPatch: transport.HeaderPatch{
			AmbulanceID: &r.ambulance, DriverID: &r.driver, ShiftID: &r.shift, ServiceDate: &day,
		},
		Patient: &transport.PatientPatch{FullName: strp("Juan Perez"), DocumentNumber: strp("123")},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !res.Created || res.Status != transport.StatusDraft || res.CompletionPercentage != 25 {
		t.Fatalf("unexpected create result %+v", res)
	}

	res, err = s.transport.Save(s.ctx, r.medic, transport.SaveRequest{
		ReportID:        &res.ReportID,
		InformedConsent: &transport.InformedConsentPatch{GuardianName: strp("Maria")},
		CareTransfer: &transport.CareTransferPatch{
			Reason:          strp("fall from height"),
			Diagnosis1ID:    &r.diagnosis,
			Companion:       &transport.CompanionPatch{FullName: strp("Rosa")},
			InitialExam:     &transport.PhysicalExamPatch{HeartRate: intp(88)},
			ReceivingEntity: &transport.ReceivingEntityPatch{InstitutionID: &r.institution},
			SkinConditions:  transport.Select(r.skinA, r.skinB, r.skinA),
		},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if res.Status != transport.StatusDraft || res.CompletionPercentage != 75 {
		t.Fatalf("expected DRAFT at 75, got %+v", res)
	}

	res, err = s.transport.Save(s.ctx, r.medic, transport.SaveRequest{
		ReportID:           &res.ReportID,
		SatisfactionSurvey: &transport.SatisfactionSurveyPatch{OverallRating: intp(5)},
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if res.Status != transport.StatusCompleted || res.CompletionPercentage != 100 {
		t.Fatalf("expected COMPLETED at 100, got %+v", res)
	}

	detail, err := s.transport.Get(s.ctx, res.ReportID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if detail.CompletedAt == nil || detail.ResponsibleStaffID != r.medic {
		t.Errorf("unexpected header %+v", detail.Report)
	}
	ct := detail.CareTransfer
	if ct == nil || ct.Companion == nil || ct.InitialExam == nil || ct.ReceivingEntity == nil {
		t.Fatalf("care transfer not hydrated: %+v", ct)
	}
	if *ct.InitialExam.HeartRate != 88 {
		t.Errorf("expected heart rate 88, got %v", *ct.InitialExam.HeartRate)
	}
	if len(ct.SkinConditions) != 2 {
		t.Errorf("expected de-duplicated skin conditions, got %v", ct.SkinConditions)
	}

	// a second care transfer save mutates the existing rows
	_, err = s.transport.Save(s.ctx, r.medic, transport.SaveRequest{
		ReportID: &res.ReportID,
		CareTransfer: &transport.CareTransferPatch{
			InitialExam:    &transport.PhysicalExamPatch{HeartRate: intp(92)},
			SkinConditions: transport.Select(),
		},
	})
	if err != nil {
		t.Fatalf("re-save: %v", err)
	}
	again, err := s.transport.Get(s.ctx, res.ReportID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if again.CareTransfer.ID != ct.ID || again.CareTransfer.InitialExam.ID != ct.InitialExam.ID {
		t.Errorf("nested rows were replaced instead of mutated")
	}
	if *again.CareTransfer.InitialExam.HeartRate != 92 || len(again.CareTransfer.SkinConditions) != 0 {
		t.Errorf("unexpected care transfer after re-save: %+v", again.CareTransfer)
	}

	want := []string{events.TransportReportSaved, events.TransportReportSaved, events.TransportReportSaved,
		events.TransportReportCompleted, events.TransportReportSaved}
	got := s.recorder.Types()
	if len(got) != len(want) {
		t.Fatalf("expected events %v, got %v", want, got)
	}
}

func TestTransport_FailedSaveRollsBack(t *testing.T) {
	s := newStack(t)
	r := seedRefs(t, s)

	res, err := s.transport.Save(s.ctx, r.medic, transport.SaveRequest{
		Patient: &transport.PatientPatch{FullName: strp("Juan")},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	unknown := uuid.New()
	_, err = s.transport.Save(s.ctx, r.medic, transport.SaveRequest{
		ReportID:        &res.ReportID,
		Patient:         &transport.PatientPatch{FullName: strp("Changed")},
		InformedConsent: &transport.InformedConsentPatch{Notes: strp("signed")},
		CareTransfer: &transport.CareTransferPatch{
			Companion:           &transport.CompanionPatch{FullName: strp("Rosa")},
			HemodynamicStatuses: transport.Select(r.hemo, unknown),
		},
	})
	if apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("expected not_found, got %v", err)
	}

	detail, err := s.transport.Get(s.ctx, res.ReportID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if *detail.Patient.FullName != "Juan" {
		t.Errorf("patient change survived a failed save: %q", *detail.Patient.FullName)
	}
	if detail.InformedConsent != nil || detail.CareTransfer != nil || detail.CompletionPercentage != 25 {
		t.Errorf("partial writes survived a failed save: %+v", detail.Report)
	}

	var orphans int
	err = globalEnv.Pool.QueryRow(s.ctx, `SELECT count(*) FROM companion`).Scan(&orphans)
	if err != nil {
		t.Fatalf("count companions: %v", err)
	}
	if orphans != 0 {
		t.Errorf("expected no companion rows, got %d", orphans)
	}
}

func TestTransport_HeaderReferencesAreChecked(t *testing.T) {
	s := newStack(t)
	r := seedRefs(t, s)

	_, err := s.transport.Save(s.ctx, r.medic, transport.SaveRequest{
		HeaderPatch: transport.HeaderPatch{DriverID: &r.medic},
		Patient:     &transport.PatientPatch{FullName: strp("Juan")},
	})
	if ae, ok := apperr.As(err); !ok || ae.Field != "driver_id" {
		t.Fatalf("expected driver_id rejection, got %v", err)
	}

	list, total, err := s.transport.List(s.ctx, transport.Filter{}, pagination.New(10, 0))
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 0 || len(list) != 0 {
		t.Errorf("rejected create left a report behind: %d", total)
	}
}

func TestTransport_ListExportAndDelete(t *testing.T) {
	s := newStack(t)
	r := seedRefs(t, s)

	var ids []uuid.UUID
	for _, name := range []string{"Juan Perez", "Ana Gomez"} {
		res, err := s.transport.Save(s.ctx, r.medic, transport.SaveRequest{
			HeaderPatch: transport.HeaderPatch{AmbulanceID: &r.ambulance},
			Patient:     &transport.PatientPatch{FullName: strp(name)},
		})
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		ids = append(ids, res.ReportID)
	}

	draft := transport.StatusDraft
	list, total, err := s.transport.List(s.ctx, transport.Filter{Status: &draft, AmbulanceID: &r.ambulance}, pagination.New(1, 0))
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 2 || len(list) != 1 {
		t.Errorf("expected total 2 with a page of 1, got %d/%d", total, len(list))
	}

	data, err := s.transport.Export(s.ctx, transport.Filter{})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	book, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer book.Close()
	rows, err := book.GetRows("Transport Reports")
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header plus two rows, got %d", len(rows))
	}

	if err := s.transport.SoftDelete(s.ctx, s.admin, ids[0]); err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}
	if _, err := s.transport.Get(s.ctx, ids[0]); apperr.KindOf(err) != apperr.KindNotFound {
		t.Errorf("deleted report still readable: %v", err)
	}
	var livePatients int
	if err := globalEnv.Pool.QueryRow(s.ctx, `SELECT count(*) FROM patient_info WHERE NOT is_deleted`).Scan(&livePatients); err != nil {
		t.Fatalf("count patients: %v", err)
	}
	if livePatients != 1 {
		t.Errorf("expected patient rows to cascade, %d live", livePatients)
	}

	_, total, err = s.transport.List(s.ctx, transport.Filter{}, pagination.New(10, 0))
	if err != nil || total != 1 {
		t.Errorf("expected one live report, got %d (%v)", total, err)
	}
}
