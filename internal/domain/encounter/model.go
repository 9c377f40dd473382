package encounter

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Yousefxll/HospitalOS2-sub009/internal/domain/identity"
)

type Status string

const (
	StatusRegistered  Status = "REGISTERED"
	StatusTriaged     Status = "TRIAGED"
	StatusInTreatment Status = "IN_TREATMENT"
	StatusDecision    Status = "DECISION"
	StatusDischarged  Status = "DISCHARGED"
	StatusAdmitted    Status = "ADMITTED"
	StatusTransferred Status = "TRANSFERRED"
)

// transitions is the only definition of lifecycle legality. Terminal states
// have no entry.
var transitions = map[Status][]Status{
	StatusRegistered:  {StatusTriaged, StatusDecision},
	StatusTriaged:     {StatusInTreatment, StatusDecision},
	StatusInTreatment: {StatusDecision},
	StatusDecision:    {StatusDischarged, StatusAdmitted, StatusTransferred},
}

var terminal = map[Status]bool{
	StatusDischarged:  true,
	StatusAdmitted:    true,
	StatusTransferred: true,
}

func ParseStatus(s string) (Status, bool) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := transitions[st]; ok || terminal[st] {
		return st, true
	}
	return "", false
}

func (s Status) IsTerminal() bool { return terminal[s] }

func (s Status) Next() []Status { return transitions[s] }

func CanTransition(from, to Status) bool {
	for _, n := range transitions[from] {
		if n == to {
			return true
		}
	}
	return false
}

// Plan returns the ordered steps that move an encounter from from to target.
// A direct edge yields one step. A terminal target that is not directly
// reachable is reached through DECISION when from can enter DECISION and
// DECISION can reach target. ok is false when no plan exists.
func Plan(from, target Status) (steps []Status, ok bool) {
	if CanTransition(from, target) {
		return []Status{target}, true
	}
	if target.IsTerminal() && CanTransition(from, StatusDecision) && CanTransition(StatusDecision, target) {
		return []Status{StatusDecision, target}, true
	}
	return nil, false
}

type ArrivalMethod string

const (
	ArrivalWalkIn    ArrivalMethod = "WALKIN"
	ArrivalAmbulance ArrivalMethod = "AMBULANCE"
	ArrivalTransfer  ArrivalMethod = "TRANSFER"
)

// NormalizeArrivalMethod maps s onto the enum, defaulting to WALKIN.
// defaulted reports whether a non-empty value was replaced.
func NormalizeArrivalMethod(s string) (m ArrivalMethod, defaulted bool) {
	switch v := ArrivalMethod(strings.ToUpper(strings.TrimSpace(s))); v {
	case ArrivalWalkIn, ArrivalAmbulance, ArrivalTransfer:
		return v, false
	default:
		return ArrivalWalkIn, strings.TrimSpace(s) != ""
	}
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentInsurance PaymentStatus = "INSURANCE"
	PaymentCash      PaymentStatus = "CASH"
)

// NormalizePaymentStatus maps s onto the enum, defaulting to PENDING.
func NormalizePaymentStatus(s string) (p PaymentStatus, defaulted bool) {
	switch v := PaymentStatus(strings.ToUpper(strings.TrimSpace(s))); v {
	case PaymentPending, PaymentInsurance, PaymentCash:
		return v, false
	default:
		return PaymentPending, strings.TrimSpace(s) != ""
	}
}

const TypeER = "ER"

type Encounter struct {
	ID              uuid.UUID     `json:"id"`
	TenantID        string        `json:"tenant_id"`
	PatientID       uuid.UUID     `json:"patient_id"`
	Type            string        `json:"type"`
	Status          Status        `json:"status"`
	ArrivalMethod   ArrivalMethod `json:"arrival_method"`
	PaymentStatus   PaymentStatus `json:"payment_status"`
	TriageLevel     *int          `json:"triage_level"`
	ChiefComplaint  *string       `json:"chief_complaint"`
	StartedAt       time.Time     `json:"started_at"`
	ClosedAt        *time.Time    `json:"closed_at"`
	CreatedByUserID string        `json:"created_by_user_id"`
	IdempotencyKey  *string       `json:"-"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

func (e *Encounter) IsClosed() bool {
	return e.ClosedAt != nil || e.Status.IsTerminal()
}

func (e *Encounter) clone() *Encounter {
	cp := *e
	return &cp
}

type StatusHistory struct {
	ID          uuid.UUID `json:"id"`
	TenantID    string    `json:"tenant_id"`
	EncounterID uuid.UUID `json:"encounter_id"`
	FromStatus  Status    `json:"from_status"`
	ToStatus    Status    `json:"to_status"`
	ChangedBy   string    `json:"changed_by"`
	ChangedAt   time.Time `json:"changed_at"`
}

// Note is the single free-text document of an encounter.
type Note struct {
	ID              uuid.UUID `json:"id"`
	TenantID        string    `json:"tenant_id"`
	EncounterID     uuid.UUID `json:"encounter_id"`
	Content         string    `json:"content"`
	CreatedByUserID string    `json:"created_by_user_id"`
	UpdatedByUserID string    `json:"updated_by_user_id"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type Vitals struct {
	Systolic        *int     `json:"systolic,omitempty" validate:"omitempty,min=0,max=400"`
	Diastolic       *int     `json:"diastolic,omitempty" validate:"omitempty,min=0,max=300"`
	HeartRate       *int     `json:"heart_rate,omitempty" validate:"omitempty,min=0,max=400"`
	RespiratoryRate *int     `json:"respiratory_rate,omitempty" validate:"omitempty,min=0,max=120"`
	Temperature     *float64 `json:"temperature,omitempty" validate:"omitempty,min=20,max=50"`
	SpO2            *int     `json:"spo2,omitempty" validate:"omitempty,min=0,max=100"`
}

type TriageAssessment struct {
	ID             uuid.UUID `json:"id"`
	TenantID       string    `json:"tenant_id"`
	EncounterID    uuid.UUID `json:"encounter_id"`
	NurseUserID    string    `json:"nurse_user_id"`
	TriageLevel    int       `json:"triage_level"`
	ChiefComplaint *string   `json:"chief_complaint"`
	PainScore      *int      `json:"pain_score"`
	Vitals         Vitals    `json:"vitals"`
	Critical       bool      `json:"critical"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type KnownRegistration struct {
	PatientID      *uuid.UUID `json:"patient_id"`
	MRN            string     `json:"mrn"`
	ArrivalMethod  string     `json:"arrival_method"`
	PaymentStatus  string     `json:"payment_status"`
	IdempotencyKey string     `json:"-"`
}

type UnknownRegistration struct {
	FullName       string `json:"full_name"`
	Gender         string `json:"gender"`
	ApproxAge      *int   `json:"approx_age"`
	ArrivalMethod  string `json:"arrival_method"`
	PaymentStatus  string `json:"payment_status"`
	IdempotencyKey string `json:"-"`
}

// Registration is the result of registering an encounter. Replayed is set
// when an earlier registration with the same idempotency key was returned.
type Registration struct {
	Patient   *identity.Patient `json:"patient"`
	Encounter *Encounter        `json:"encounter"`
	Replayed  bool              `json:"replayed,omitempty"`
}

type TriageInput struct {
	TriageLevel    int     `json:"triage_level" validate:"required,min=1,max=5"`
	ChiefComplaint *string `json:"chief_complaint" validate:"omitempty,max=2000"`
	PainScore      *int    `json:"pain_score" validate:"omitempty,min=0,max=10"`
	Vitals         Vitals  `json:"vitals"`
	Critical       bool    `json:"critical"`
}

type TriageResult struct {
	Triage    *TriageAssessment `json:"triage"`
	Encounter *Encounter        `json:"encounter"`
}
