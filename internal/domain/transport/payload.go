package transport

import (
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

const DateLayout = "2006-01-02"

// Date is a calendar date carried as "YYYY-MM-DD" on the wire.
type Date struct{ time.Time }

func (d *Date) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Format(DateLayout))
}

func (d *Date) ptr() *time.Time {
	t := d.Time
	return &t
}

// IDSelection is a many-to-many selection in a save payload. An absent or null
// key leaves the association untouched, [] clears it and a populated list
// replaces it.
type IDSelection struct {
	Set bool
	IDs []uuid.UUID
}

func (s *IDSelection) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var ids []uuid.UUID
	if err := json.Unmarshal(b, &ids); err != nil {
		return err
	}
	s.Set = true
	s.IDs = ids
	return nil
}

func (s IDSelection) MarshalJSON() ([]byte, error) {
	if !s.Set {
		return []byte("null"), nil
	}
	return json.Marshal(s.unique())
}

// Select returns a selection that replaces the association with ids.
func Select(ids ...uuid.UUID) IDSelection {
	return IDSelection{Set: true, IDs: ids}
}

// unique drops duplicate ids, keeping first-seen order.
func (s IDSelection) unique() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(s.IDs))
	seen := make(map[uuid.UUID]struct{}, len(s.IDs))
	for _, id := range s.IDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// SaveRequest creates a report when ReportID is nil and updates it otherwise.
// Only the sections and keys present in the payload are touched.
type SaveRequest struct {
	ReportID *uuid.UUID `json:"report_id"`
	HeaderPatch
	Patient            *PatientPatch            `json:"patient"`
	InformedConsent    *InformedConsentPatch    `json:"informed_consent"`
	CareTransfer       *CareTransferPatch       `json:"care_transfer"`
	SatisfactionSurvey *SatisfactionSurveyPatch `json:"satisfaction_survey"`
}

type HeaderPatch struct {
	ResponsibleStaffID *uuid.UUID `json:"responsible_staff_id"`
	AmbulanceID        *uuid.UUID `json:"ambulance_id"`
	DriverID           *uuid.UUID `json:"driver_id"`
	ShiftID            *uuid.UUID `json:"shift_id"`
	ServiceDate        *Date      `json:"service_date"`
}

func (p *HeaderPatch) Apply(r *Report) {
	if p.ResponsibleStaffID != nil {
		r.ResponsibleStaffID = *p.ResponsibleStaffID
	}
	if p.AmbulanceID != nil {
		r.AmbulanceID = p.AmbulanceID
	}
	if p.DriverID != nil {
		r.DriverID = p.DriverID
	}
	if p.ShiftID != nil {
		r.ShiftID = p.ShiftID
	}
	if p.ServiceDate != nil {
		r.ServiceDate = p.ServiceDate.ptr()
	}
}

type PatientPatch struct {
	FullName       *string `json:"full_name" validate:"omitempty,max=200"`
	DocumentType   *string `json:"document_type" validate:"omitempty,max=20"`
	DocumentNumber *string `json:"document_number" validate:"omitempty,max=30"`
	BirthDate      *Date   `json:"birth_date"`
	Sex            *string `json:"sex" validate:"omitempty,oneof=female male other unknown"`
	Phone          *string `json:"phone" validate:"omitempty,max=30"`
	Address        *string `json:"address" validate:"omitempty,max=250"`
	HealthInsurer  *string `json:"health_insurer" validate:"omitempty,max=150"`
}

// identified reports whether the patch names the patient.
func (p *PatientPatch) identified() bool {
	return p != nil && (!blank(p.FullName) || !blank(p.DocumentNumber))
}

func blank(s *string) bool { return s == nil || strings.TrimSpace(*s) == "" }

func (p *PatientPatch) empty() bool { return p == nil || *p == PatientPatch{} }

func (p *PatientPatch) Apply(e *PatientInfo) {
	if p.FullName != nil {
		e.FullName = p.FullName
	}
	if p.DocumentType != nil {
		e.DocumentType = p.DocumentType
	}
	if p.DocumentNumber != nil {
		e.DocumentNumber = p.DocumentNumber
	}
	if p.BirthDate != nil {
		e.BirthDate = p.BirthDate.ptr()
	}
	if p.Sex != nil {
		e.Sex = p.Sex
	}
	if p.Phone != nil {
		e.Phone = p.Phone
	}
	if p.Address != nil {
		e.Address = p.Address
	}
	if p.HealthInsurer != nil {
		e.HealthInsurer = p.HealthInsurer
	}
}

type InformedConsentPatch struct {
	GuardianName      *string    `json:"guardian_name" validate:"omitempty,max=200"`
	GuardianDocument  *string    `json:"guardian_document" validate:"omitempty,max=30"`
	Relationship      *string    `json:"relationship" validate:"omitempty,max=60"`
	AcceptsTransport  *bool      `json:"accepts_transport"`
	AcceptsProcedures *bool      `json:"accepts_procedures"`
	SignedAt          *time.Time `json:"signed_at"`
	Notes             *string    `json:"notes"`
}

func (p *InformedConsentPatch) empty() bool { return p == nil || *p == InformedConsentPatch{} }

func (p *InformedConsentPatch) Apply(e *InformedConsent) {
	if p.GuardianName != nil {
		e.GuardianName = p.GuardianName
	}
	if p.GuardianDocument != nil {
		e.GuardianDocument = p.GuardianDocument
	}
	if p.Relationship != nil {
		e.Relationship = p.Relationship
	}
	if p.AcceptsTransport != nil {
		e.AcceptsTransport = p.AcceptsTransport
	}
	if p.AcceptsProcedures != nil {
		e.AcceptsProcedures = p.AcceptsProcedures
	}
	if p.SignedAt != nil {
		e.SignedAt = p.SignedAt
	}
	if p.Notes != nil {
		e.Notes = p.Notes
	}
}

// CareTransferPatch carries the care transfer fields plus its nested records,
// diagnosis references and many-to-many selections.
type CareTransferPatch struct {
	OriginAddress       *string               `json:"origin_address" validate:"omitempty,max=250"`
	DestinationAddress  *string               `json:"destination_address" validate:"omitempty,max=250"`
	Reason              *string               `json:"reason"`
	DispatchedAt        *time.Time            `json:"dispatched_at"`
	ArrivedAt           *time.Time            `json:"arrived_at"`
	DepartedAt          *time.Time            `json:"departed_at"`
	DeliveredAt         *time.Time            `json:"delivered_at"`
	Diagnosis1ID        *uuid.UUID            `json:"diagnosis_1_id"`
	Diagnosis2ID        *uuid.UUID            `json:"diagnosis_2_id"`
	Companion           *CompanionPatch       `json:"companion"`
	InitialExam         *PhysicalExamPatch    `json:"initial_exam"`
	FinalExam           *PhysicalExamPatch    `json:"final_exam"`
	Treatment           *TreatmentPatch       `json:"treatment"`
	Result              *TransferResultPatch  `json:"result"`
	Complications       *ComplicationsPatch   `json:"complications"`
	ReceivingEntity     *ReceivingEntityPatch `json:"receiving_entity"`
	SkinConditions      IDSelection           `json:"skin_conditions"`
	HemodynamicStatuses IDSelection           `json:"hemodynamic_statuses"`
}

// empty reports whether the patch carries no field, nested record or
// selection. An empty patch is treated as an absent section.
func (p *CareTransferPatch) empty() bool {
	if p == nil {
		return true
	}
	scalars := p.OriginAddress == nil && p.DestinationAddress == nil && p.Reason == nil &&
		p.DispatchedAt == nil && p.ArrivedAt == nil && p.DepartedAt == nil && p.DeliveredAt == nil &&
		p.Diagnosis1ID == nil && p.Diagnosis2ID == nil
	nested := p.Companion.empty() && p.InitialExam.empty() && p.FinalExam.empty() &&
		p.Treatment.empty() && p.Result.empty() && p.Complications.empty() && p.ReceivingEntity.empty()
	return scalars && nested && !p.SkinConditions.Set && !p.HemodynamicStatuses.Set
}

// Apply copies the scalar fields and diagnosis references. Nested records and
// selections are handled by the service.
func (p *CareTransferPatch) Apply(e *CareTransfer) {
	if p.OriginAddress != nil {
		e.OriginAddress = p.OriginAddress
	}
	if p.DestinationAddress != nil {
		e.DestinationAddress = p.DestinationAddress
	}
	if p.Reason != nil {
		e.Reason = p.Reason
	}
	if p.DispatchedAt != nil {
		e.DispatchedAt = p.DispatchedAt
	}
	if p.ArrivedAt != nil {
		e.ArrivedAt = p.ArrivedAt
	}
	if p.DepartedAt != nil {
		e.DepartedAt = p.DepartedAt
	}
	if p.DeliveredAt != nil {
		e.DeliveredAt = p.DeliveredAt
	}
	if p.Diagnosis1ID != nil {
		e.Diagnosis1ID = p.Diagnosis1ID
	}
	if p.Diagnosis2ID != nil {
		e.Diagnosis2ID = p.Diagnosis2ID
	}
}

type CompanionPatch struct {
	FullName       *string `json:"full_name" validate:"omitempty,max=200"`
	DocumentNumber *string `json:"document_number" validate:"omitempty,max=30"`
	Relationship   *string `json:"relationship" validate:"omitempty,max=60"`
	Phone          *string `json:"phone" validate:"omitempty,max=30"`
}

func (p *CompanionPatch) empty() bool { return p == nil || *p == CompanionPatch{} }

func (p *CompanionPatch) Apply(e *Companion) {
	if p.FullName != nil {
		e.FullName = p.FullName
	}
	if p.DocumentNumber != nil {
		e.DocumentNumber = p.DocumentNumber
	}
	if p.Relationship != nil {
		e.Relationship = p.Relationship
	}
	if p.Phone != nil {
		e.Phone = p.Phone
	}
}

type PhysicalExamPatch struct {
	HeartRate        *int     `json:"heart_rate" validate:"omitempty,gte=0,lte=300"`
	RespiratoryRate  *int     `json:"respiratory_rate" validate:"omitempty,gte=0,lte=80"`
	SystolicBP       *int     `json:"systolic_bp" validate:"omitempty,gte=0,lte=300"`
	DiastolicBP      *int     `json:"diastolic_bp" validate:"omitempty,gte=0,lte=200"`
	Temperature      *float64 `json:"temperature" validate:"omitempty,gte=25,lte=45"`
	OxygenSaturation *int     `json:"oxygen_saturation" validate:"omitempty,gte=0,lte=100"`
	GlasgowScore     *int     `json:"glasgow_score" validate:"omitempty,gte=3,lte=15"`
	Glucose          *int     `json:"glucose" validate:"omitempty,gte=0,lte=1500"`
	Notes            *string  `json:"notes"`
}

func (p *PhysicalExamPatch) empty() bool { return p == nil || *p == PhysicalExamPatch{} }

func (p *PhysicalExamPatch) Apply(e *PhysicalExam) {
	if p.HeartRate != nil {
		e.HeartRate = p.HeartRate
	}
	if p.RespiratoryRate != nil {
		e.RespiratoryRate = p.RespiratoryRate
	}
	if p.SystolicBP != nil {
		e.SystolicBP = p.SystolicBP
	}
	if p.DiastolicBP != nil {
		e.DiastolicBP = p.DiastolicBP
	}
	if p.Temperature != nil {
		e.Temperature = p.Temperature
	}
	if p.OxygenSaturation != nil {
		e.OxygenSaturation = p.OxygenSaturation
	}
	if p.GlasgowScore != nil {
		e.GlasgowScore = p.GlasgowScore
	}
	if p.Glucose != nil {
		e.Glucose = p.Glucose
	}
	if p.Notes != nil {
		e.Notes = p.Notes
	}
}

type TreatmentPatch struct {
	OxygenTherapy  *bool    `json:"oxygen_therapy"`
	OxygenLiters   *float64 `json:"oxygen_liters" validate:"omitempty,gte=0,lte=60"`
	IVAccess       *bool    `json:"iv_access"`
	Immobilization *bool    `json:"immobilization"`
	Medications    *string  `json:"medications"`
	Procedures     *string  `json:"procedures"`
}

func (p *TreatmentPatch) empty() bool { return p == nil || *p == TreatmentPatch{} }

func (p *TreatmentPatch) Apply(e *Treatment) {
	if p.OxygenTherapy != nil {
		e.OxygenTherapy = p.OxygenTherapy
	}
	if p.OxygenLiters != nil {
		e.OxygenLiters = p.OxygenLiters
	}
	if p.IVAccess != nil {
		e.IVAccess = p.IVAccess
	}
	if p.Immobilization != nil {
		e.Immobilization = p.Immobilization
	}
	if p.Medications != nil {
		e.Medications = p.Medications
	}
	if p.Procedures != nil {
		e.Procedures = p.Procedures
	}
}

type TransferResultPatch struct {
	Outcome *string `json:"outcome" validate:"omitempty,oneof=delivered refused deceased cancelled other"`
	Notes   *string `json:"notes"`
}

func (p *TransferResultPatch) empty() bool { return p == nil || *p == TransferResultPatch{} }

func (p *TransferResultPatch) Apply(e *TransferResult) {
	if p.Outcome != nil {
		e.Outcome = p.Outcome
	}
	if p.Notes != nil {
		e.Notes = p.Notes
	}
}

type ComplicationsPatch struct {
	Occurred    *bool   `json:"occurred"`
	Description *string `json:"description"`
}

func (p *ComplicationsPatch) empty() bool { return p == nil || *p == ComplicationsPatch{} }

func (p *ComplicationsPatch) Apply(e *Complications) {
	if p.Occurred != nil {
		e.Occurred = p.Occurred
	}
	if p.Description != nil {
		e.Description = p.Description
	}
}

type ReceivingEntityPatch struct {
	InstitutionID       *uuid.UUID `json:"institution_id"`
	ReceivingPhysician  *string    `json:"receiving_physician" validate:"omitempty,max=200"`
	ReceivingDepartment *string    `json:"receiving_department" validate:"omitempty,max=100"`
	ReceivedAt          *time.Time `json:"received_at"`
}

func (p *ReceivingEntityPatch) empty() bool { return p == nil || *p == ReceivingEntityPatch{} }

func (p *ReceivingEntityPatch) Apply(e *ReceivingEntity) {
	if p.InstitutionID != nil {
		e.InstitutionID = p.InstitutionID
	}
	if p.ReceivingPhysician != nil {
		e.ReceivingPhysician = p.ReceivingPhysician
	}
	if p.ReceivingDepartment != nil {
		e.ReceivingDepartment = p.ReceivingDepartment
	}
	if p.ReceivedAt != nil {
		e.ReceivedAt = p.ReceivedAt
	}
}

type SatisfactionSurveyPatch struct {
	PunctualityRating *int    `json:"punctuality_rating" validate:"omitempty,gte=1,lte=5"`
	AttentionRating   *int    `json:"attention_rating" validate:"omitempty,gte=1,lte=5"`
	OverallRating     *int    `json:"overall_rating" validate:"omitempty,gte=1,lte=5"`
	WouldRecommend    *bool   `json:"would_recommend"`
	Comments          *string `json:"comments"`
}

func (p *SatisfactionSurveyPatch) empty() bool { return p == nil || *p == SatisfactionSurveyPatch{} }

func (p *SatisfactionSurveyPatch) Apply(e *SatisfactionSurvey) {
	if p.PunctualityRating != nil {
		e.PunctualityRating = p.PunctualityRating
	}
	if p.AttentionRating != nil {
		e.AttentionRating = p.AttentionRating
	}
	if p.OverallRating != nil {
		e.OverallRating = p.OverallRating
	}
	if p.WouldRecommend != nil {
		e.WouldRecommend = p.WouldRecommend
	}
	if p.Comments != nil {
		e.Comments = p.Comments
	}
}
