package transport

import (
	"time"

	"github.com/google/uuid"

	"github.com/emsops/emsops/internal/platform/db"
)

type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusCompleted Status = "COMPLETED"
)

// Section names reported back in SaveResult.SectionsTouched.
const (
	SectionPatient            = "patient"
	SectionInformedConsent    = "informed_consent"
	SectionCareTransfer       = "care_transfer"
	SectionSatisfactionSurvey = "satisfaction_survey"
)

// Row is the identity and audit block shared by every persisted record of the
// report aggregate.
type Row struct {
	ID uuid.UUID `json:"id"`
	db.Audit
}

func (r *Row) row() *Row { return r }

// Report is the aggregate root. Each section is its own row, linked 0..1.
type Report struct {
	Row
	ResponsibleStaffID   uuid.UUID  `json:"responsible_staff_id"`
	AmbulanceID          *uuid.UUID `json:"ambulance_id,omitempty"`
	DriverID             *uuid.UUID `json:"driver_id,omitempty"`
	ShiftID              *uuid.UUID `json:"shift_id,omitempty"`
	ServiceDate          *time.Time `json:"service_date,omitempty"`
	PatientInfoID        *uuid.UUID `json:"patient_info_id,omitempty"`
	InformedConsentID    *uuid.UUID `json:"informed_consent_id,omitempty"`
	CareTransferID       *uuid.UUID `json:"care_transfer_id,omitempty"`
	SatisfactionSurveyID *uuid.UUID `json:"satisfaction_survey_id,omitempty"`
	Status               Status     `json:"status"`
	CompletionPercentage int        `json:"completion_percentage"`
	CompletedAt          *time.Time `json:"completed_at,omitempty"`
}

// Presence reports which sections the report currently links.
func (r *Report) Presence() Presence {
	return Presence{
		Patient:            r.PatientInfoID != nil,
		InformedConsent:    r.InformedConsentID != nil,
		CareTransfer:       r.CareTransferID != nil,
		SatisfactionSurvey: r.SatisfactionSurveyID != nil,
	}
}

type PatientInfo struct {
	Row
	FullName       *string    `json:"full_name,omitempty"`
	DocumentType   *string    `json:"document_type,omitempty"`
	DocumentNumber *string    `json:"document_number,omitempty"`
	BirthDate      *time.Time `json:"birth_date,omitempty"`
	Sex            *string    `json:"sex,omitempty"`
	Phone          *string    `json:"phone,omitempty"`
	Address        *string    `json:"address,omitempty"`
	HealthInsurer  *string    `json:"health_insurer,omitempty"`
}

type InformedConsent struct {
	Row
	GuardianName      *string    `json:"guardian_name,omitempty"`
	GuardianDocument  *string    `json:"guardian_document,omitempty"`
	Relationship      *string    `json:"relationship,omitempty"`
	AcceptsTransport  *bool      `json:"accepts_transport,omitempty"`
	AcceptsProcedures *bool      `json:"accepts_procedures,omitempty"`
	SignedAt          *time.Time `json:"signed_at,omitempty"`
	Notes             *string    `json:"notes,omitempty"`
}

type CareTransfer struct {
	Row
	OriginAddress      *string    `json:"origin_address,omitempty"`
	DestinationAddress *string    `json:"destination_address,omitempty"`
	Reason             *string    `json:"reason,omitempty"`
	DispatchedAt       *time.Time `json:"dispatched_at,omitempty"`
	ArrivedAt          *time.Time `json:"arrived_at,omitempty"`
	DepartedAt         *time.Time `json:"departed_at,omitempty"`
	DeliveredAt        *time.Time `json:"delivered_at,omitempty"`
	Diagnosis1ID       *uuid.UUID `json:"diagnosis_1_id,omitempty"`
	Diagnosis2ID       *uuid.UUID `json:"diagnosis_2_id,omitempty"`
	CompanionID        *uuid.UUID `json:"companion_id,omitempty"`
	InitialExamID      *uuid.UUID `json:"initial_exam_id,omitempty"`
	FinalExamID        *uuid.UUID `json:"final_exam_id,omitempty"`
	TreatmentID        *uuid.UUID `json:"treatment_id,omitempty"`
	ResultID           *uuid.UUID `json:"result_id,omitempty"`
	ComplicationsID    *uuid.UUID `json:"complications_id,omitempty"`
	ReceivingEntityID  *uuid.UUID `json:"receiving_entity_id,omitempty"`
}

// nestedIDs returns the ids of every linked nested record.
func (ct *CareTransfer) nestedIDs() map[string]uuid.UUID {
	out := map[string]uuid.UUID{}
	for name, id := range map[string]*uuid.UUID{
		"companion":        ct.CompanionID,
		"initial_exam":     ct.InitialExamID,
		"final_exam":       ct.FinalExamID,
		"treatment":        ct.TreatmentID,
		"result":           ct.ResultID,
		"complications":    ct.ComplicationsID,
		"receiving_entity": ct.ReceivingEntityID,
	} {
		if id != nil {
			out[name] = *id
		}
	}
	return out
}

type Companion struct {
	Row
	FullName       *string `json:"full_name,omitempty"`
	DocumentNumber *string `json:"document_number,omitempty"`
	Relationship   *string `json:"relationship,omitempty"`
	Phone          *string `json:"phone,omitempty"`
}

// PhysicalExam is a vital-signs snapshot; a care transfer holds an initial and
// a final one.
type PhysicalExam struct {
	Row
	HeartRate        *int     `json:"heart_rate,omitempty"`
	RespiratoryRate  *int     `json:"respiratory_rate,omitempty"`
	SystolicBP       *int     `json:"systolic_bp,omitempty"`
	DiastolicBP      *int     `json:"diastolic_bp,omitempty"`
	Temperature      *float64 `json:"temperature,omitempty"`
	OxygenSaturation *int     `json:"oxygen_saturation,omitempty"`
	GlasgowScore     *int     `json:"glasgow_score,omitempty"`
	Glucose          *int     `json:"glucose,omitempty"`
	Notes            *string  `json:"notes,omitempty"`
}

type Treatment struct {
	Row
	OxygenTherapy  *bool    `json:"oxygen_therapy,omitempty"`
	OxygenLiters   *float64 `json:"oxygen_liters,omitempty"`
	IVAccess       *bool    `json:"iv_access,omitempty"`
	Immobilization *bool    `json:"immobilization,omitempty"`
	Medications    *string  `json:"medications,omitempty"`
	Procedures     *string  `json:"procedures,omitempty"`
}

type TransferResult struct {
	Row
	Outcome *string `json:"outcome,omitempty"`
	Notes   *string `json:"notes,omitempty"`
}

type Complications struct {
	Row
	Occurred    *bool   `json:"occurred,omitempty"`
	Description *string `json:"description,omitempty"`
}

type ReceivingEntity struct {
	Row
	InstitutionID       *uuid.UUID `json:"institution_id,omitempty"`
	ReceivingPhysician  *string    `json:"receiving_physician,omitempty"`
	ReceivingDepartment *string    `json:"receiving_department,omitempty"`
	ReceivedAt          *time.Time `json:"received_at,omitempty"`
}

type SatisfactionSurvey struct {
	Row
	PunctualityRating *int    `json:"punctuality_rating,omitempty"`
	AttentionRating   *int    `json:"attention_rating,omitempty"`
	OverallRating     *int    `json:"overall_rating,omitempty"`
	WouldRecommend    *bool   `json:"would_recommend,omitempty"`
	Comments          *string `json:"comments,omitempty"`
}

// -- Read model --

// ReportDetail is the fully hydrated aggregate returned by Get.
type ReportDetail struct {
	*Report
	Patient            *PatientInfo        `json:"patient,omitempty"`
	InformedConsent    *InformedConsent    `json:"informed_consent,omitempty"`
	CareTransfer       *CareTransferDetail `json:"care_transfer,omitempty"`
	SatisfactionSurvey *SatisfactionSurvey `json:"satisfaction_survey,omitempty"`
}

type CareTransferDetail struct {
	*CareTransfer
	Companion           *Companion       `json:"companion,omitempty"`
	InitialExam         *PhysicalExam    `json:"initial_exam,omitempty"`
	FinalExam           *PhysicalExam    `json:"final_exam,omitempty"`
	Treatment           *Treatment       `json:"treatment,omitempty"`
	Result              *TransferResult  `json:"result,omitempty"`
	Complications       *Complications   `json:"complications,omitempty"`
	ReceivingEntity     *ReceivingEntity `json:"receiving_entity,omitempty"`
	SkinConditions      []uuid.UUID      `json:"skin_conditions"`
	HemodynamicStatuses []uuid.UUID      `json:"hemodynamic_statuses"`
}

type SaveResult struct {
	ReportID             uuid.UUID `json:"report_id"`
	Status               Status    `json:"status"`
	CompletionPercentage int       `json:"completion_percentage"`
	SectionsTouched      []string  `json:"sections_touched"`
	Created              bool      `json:"created"`
}

type Filter struct {
	Status             *Status
	AmbulanceID        *uuid.UUID
	ResponsibleStaffID *uuid.UUID
	From               *time.Time
	To                 *time.Time
}

// ExportRow is one line of the spreadsheet export.
type ExportRow struct {
	Report
	PatientName     *string
	PatientDocument *string
}
