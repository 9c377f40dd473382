package board

import (
	"time"

	"github.com/google/uuid"

	"github.com/Yousefxll/HospitalOS2-sub009/internal/domain/assignment"
	"github.com/Yousefxll/HospitalOS2-sub009/internal/domain/encounter"
	"github.com/Yousefxll/HospitalOS2-sub009/internal/domain/identity"
)

// Row is one open encounter on the department tracking board.
type Row struct {
	EncounterID    uuid.UUID               `json:"encounter_id"`
	PatientID      uuid.UUID               `json:"patient_id"`
	PatientName    string                  `json:"patient_name"`
	MRN            string                  `json:"mrn"`
	Status         encounter.Status        `json:"status"`
	TriageLevel    *int                    `json:"triage_level"`
	ChiefComplaint *string                 `json:"chief_complaint"`
	WaitingMinutes int                     `json:"waiting_minutes"`
	BedZone        *string                 `json:"bed_zone"`
	BedLabel       *string                 `json:"bed_label"`
	DoctorID       *string                 `json:"doctor_id"`
	NurseID        *string                 `json:"nurse_id"`
	PaymentStatus  encounter.PaymentStatus `json:"payment_status"`
	ArrivalMethod  encounter.ArrivalMethod `json:"arrival_method"`
	Critical       bool                    `json:"critical"`
	StartedAt      time.Time               `json:"started_at"`
}

// EncounterView is the full read model of one encounter.
type EncounterView struct {
	Encounter *encounter.Encounter          `json:"encounter"`
	Patient   *identity.Patient             `json:"patient"`
	Triage    *encounter.TriageAssessment   `json:"triage"`
	Note      *encounter.Note               `json:"note"`
	Bed       *assignment.Bed               `json:"bed"`
	BedAssign *assignment.BedAssignment     `json:"bed_assignment"`
	Staff     []*assignment.StaffAssignment `json:"staff"`
}
