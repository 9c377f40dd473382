package board

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/Yousefxll/HospitalOS2-sub009/internal/domain/assignment"
	"github.com/Yousefxll/HospitalOS2-sub009/internal/domain/encounter"
	"github.com/Yousefxll/HospitalOS2-sub009/internal/domain/identity"
	"github.com/Yousefxll/HospitalOS2-sub009/internal/platform/auth"
)

// Service composes read models from the owning services. It never writes.
type Service struct {
	patients    *identity.Service
	encounters  *encounter.Service
	assignments *assignment.Service
	now         func() time.Time
}

func NewService(patients *identity.Service, encounters *encounter.Service, assignments *assignment.Service) *Service {
	return &Service{
		patients:    patients,
		encounters:  encounters,
		assignments: assignments,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Board lists the tenant's open encounters, most acute first. Untriaged
// encounters follow all triaged ones; ties go to the longest waiting.
func (s *Service) Board(ctx context.Context, caller auth.Caller) ([]Row, error) {
	open, triage, err := s.encounters.OpenEncounters(ctx, caller)
	if err != nil {
		return nil, err
	}
	encIDs := make([]uuid.UUID, len(open))
	patientIDs := make([]uuid.UUID, len(open))
	for i, e := range open {
		encIDs[i] = e.ID
		patientIDs[i] = e.PatientID
	}

	patients, err := s.patients.GetMany(ctx, caller, patientIDs)
	if err != nil {
		return nil, err
	}
	occupancy, err := s.assignments.ListBedsWithOccupancy(ctx, caller)
	if err != nil {
		return nil, err
	}
	bedByEnc := make(map[uuid.UUID]*assignment.Bed, len(occupancy))
	for _, o := range occupancy {
		if o.ActiveEncounterID != nil {
			bedByEnc[*o.ActiveEncounterID] = o.Bed
		}
	}
	staff, err := s.assignments.ActiveStaff(ctx, caller, encIDs)
	if err != nil {
		return nil, err
	}
	doctors := make(map[uuid.UUID]string)
	nurses := make(map[uuid.UUID]string)
	for _, a := range staff {
		switch a.Role {
		case assignment.RolePrimaryDoctor:
			doctors[a.EncounterID] = a.UserID
		case assignment.RolePrimaryNurse:
			nurses[a.EncounterID] = a.UserID
		}
	}

	now := s.now()
	rows := make([]Row, 0, len(open))
	for _, e := range open {
		row := Row{
			EncounterID:    e.ID,
			PatientID:      e.PatientID,
			Status:         e.Status,
			TriageLevel:    e.TriageLevel,
			ChiefComplaint: e.ChiefComplaint,
			WaitingMinutes: int(now.Sub(e.StartedAt).Minutes()),
			PaymentStatus:  e.PaymentStatus,
			ArrivalMethod:  e.ArrivalMethod,
			StartedAt:      e.StartedAt,
		}
		if row.WaitingMinutes < 0 {
			row.WaitingMinutes = 0
		}
		if p, ok := patients[e.PatientID]; ok {
			row.PatientName = p.FullName
			row.MRN = p.DisplayMRN()
		}
		if t, ok := triage[e.ID]; ok {
			row.Critical = t.Critical
		}
		if b, ok := bedByEnc[e.ID]; ok {
			zone, label := b.Zone, b.Label
			row.BedZone, row.BedLabel = &zone, &label
		}
		if id, ok := doctors[e.ID]; ok {
			row.DoctorID = &id
		}
		if id, ok := nurses[e.ID]; ok {
			row.NurseID = &id
		}
		rows = append(rows, row)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i].TriageLevel, rows[j].TriageLevel
		switch {
		case a != nil && b != nil && *a != *b:
			return *a < *b
		case a != nil && b == nil:
			return true
		case a == nil && b != nil:
			return false
		}
		return rows[i].StartedAt.Before(rows[j].StartedAt)
	})
	return rows, nil
}

// EncounterView assembles one encounter with its patient, triage, note, bed
// and active staff.
func (s *Service) EncounterView(ctx context.Context, caller auth.Caller, id uuid.UUID) (*EncounterView, error) {
	e, err := s.encounters.GetEncounter(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	v := &EncounterView{Encounter: e}

	if v.Patient, err = s.patients.GetPatient(ctx, caller, e.PatientID); err != nil {
		return nil, err
	}
	if v.Triage, err = s.encounters.GetTriage(ctx, caller, id); err != nil {
		return nil, err
	}
	if v.Note, err = s.encounters.GetNote(ctx, caller, id); err != nil {
		return nil, err
	}
	if v.BedAssign, v.Bed, err = s.assignments.ActiveBed(ctx, caller, id); err != nil {
		return nil, err
	}
	if v.Staff, err = s.assignments.ActiveStaff(ctx, caller, []uuid.UUID{id}); err != nil {
		return nil, err
	}
	if v.Staff == nil {
		v.Staff = []*assignment.StaffAssignment{}
	}
	return v, nil
}
