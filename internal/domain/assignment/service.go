package assignment

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Yousefxll/HospitalOS2-sub009/internal/domain/audit"
	"github.com/Yousefxll/HospitalOS2-sub009/internal/domain/encounter"
	"github.com/Yousefxll/HospitalOS2-sub009/internal/platform/apperror"
	"github.com/Yousefxll/HospitalOS2-sub009/internal/platform/auth"
	"github.com/Yousefxll/HospitalOS2-sub009/internal/platform/db"
	"github.com/Yousefxll/HospitalOS2-sub009/internal/platform/metrics"
)

// Encounters is the part of the encounter service assignments depend on.
type Encounters interface {
	LockOpen(ctx context.Context, caller auth.Caller, id uuid.UUID) (*encounter.Encounter, error)
	PatientNames(ctx context.Context, caller auth.Caller, encounterIDs []uuid.UUID) (map[uuid.UUID]string, error)
}

// Service is the only writer of bed and staff assignment rows. Every
// mutation follows find active, close, insert inside one unit of work with
// the encounter row locked first and the bed row second.
type Service struct {
	beds       BedRepository
	staff      StaffRepository
	encounters Encounters
	tx         db.TxRunner
	audit      *audit.Recorder
	logger     zerolog.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
}

func NewService(beds BedRepository, staff StaffRepository, encounters Encounters, tx db.TxRunner, rec *audit.Recorder, logger zerolog.Logger) *Service {
	return &Service{
		beds:       beds,
		staff:      staff,
		encounters: encounters,
		tx:         tx,
		audit:      rec,
		logger:     logger.With().Str("component", "assignment").Logger(),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// concurrencyError maps a lost race on an active-row unique index to a
// retryable error.
func (s *Service) concurrencyError(err error, kind string) error {
	if db.IsUniqueViolation(err) {
		s.metrics.ObserveAssignment(kind, "race")
		s.logger.Warn().Err(err).Str("constraint", db.ConstraintName(err)).Msg("concurrent assignment detected")
		return apperror.Transient(err, "%s assignment changed concurrently, retry", kind)
	}
	return apperror.Wrap(err, "assign %s", kind)
}

func (s *Service) CreateBed(ctx context.Context, caller auth.Caller, zone, label string) (*Bed, error) {
	if err := caller.Validate(); err != nil {
		return nil, err
	}
	zone, label = strings.TrimSpace(zone), strings.TrimSpace(label)
	if zone == "" || label == "" {
		return nil, apperror.Validation("zone and label are required")
	}
	b := &Bed{
		ID:        uuid.New(),
		TenantID:  caller.TenantID,
		Zone:      zone,
		Label:     label,
		CreatedAt: s.now(),
	}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		return s.beds.CreateBed(ctx, b)
	})
	if db.IsUniqueViolation(err) {
		return nil, apperror.Conflict("bed %s/%s already exists", zone, label)
	}
	if err != nil {
		return nil, apperror.Wrap(err, "create bed")
	}
	return b, s.audit.Record(ctx, audit.Change(caller, audit.EntityBed, b.ID, audit.ActionCreate, nil, b))
}

// AssignBed moves an encounter into a bed. The bed's current occupant, if
// any, is displaced and the encounter vacates its previous bed. Assigning
// the bed an encounter already holds returns that row unchanged.
func (s *Service) AssignBed(ctx context.Context, caller auth.Caller, encounterID, bedID uuid.UUID) (*BedAssignment, error) {
	if err := caller.Validate(); err != nil {
		return nil, err
	}
	if encounterID == uuid.Nil {
		return nil, apperror.Validation("encounter_id is required")
	}
	if bedID == uuid.Nil {
		return nil, apperror.Validation("bed_id is required")
	}

	var (
		result *BedAssignment
		closed []*BedAssignment
		noop   bool
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.encounters.LockOpen(ctx, caller, encounterID); err != nil {
			return err
		}
		if _, err := s.beds.GetBedForUpdate(ctx, caller.TenantID, bedID); err != nil {
			if db.IsNotFound(err) {
				return apperror.NotFound("bed not found")
			}
			return err
		}

		current, err := s.beds.ActiveByEncounter(ctx, caller.TenantID, encounterID)
		if err != nil && !db.IsNotFound(err) {
			return err
		}
		if current != nil && current.BedID == bedID {
			result, noop = current, true
			return nil
		}

		now := s.now()
		occupant, err := s.beds.ActiveByBed(ctx, caller.TenantID, bedID)
		if err != nil && !db.IsNotFound(err) {
			return err
		}
		for _, prior := range []*BedAssignment{occupant, current} {
			if prior == nil {
				continue
			}
			if err := s.beds.Close(ctx, caller.TenantID, prior.ID, now); err != nil {
				return err
			}
			closed = append(closed, prior)
		}

		result = &BedAssignment{
			ID:               uuid.New(),
			TenantID:         caller.TenantID,
			EncounterID:      encounterID,
			BedID:            bedID,
			AssignedAt:       now,
			AssignedByUserID: caller.UserID,
		}
		return s.beds.Insert(ctx, result)
	})
	if err != nil {
		return nil, s.concurrencyError(err, "bed")
	}
	if noop {
		s.metrics.ObserveAssignment("bed", "unchanged")
		return result, nil
	}

	s.metrics.ObserveAssignment("bed", "assigned")
	var entries []audit.Entry
	for _, prior := range closed {
		entry := audit.Change(caller, audit.EntityBedAssignment, result.ID, audit.ActionAssign, prior, result)
		entry.RelatedID = &prior.ID
		entries = append(entries, entry)
	}
	if len(entries) == 0 {
		entries = append(entries, audit.Change(caller, audit.EntityBedAssignment, result.ID, audit.ActionAssign, nil, result))
	}
	return result, s.audit.Record(ctx, entries...)
}

// UnassignBed closes the active assignment of a bed or of an encounter.
func (s *Service) UnassignBed(ctx context.Context, caller auth.Caller, target UnassignTarget) (*BedAssignment, error) {
	if err := caller.Validate(); err != nil {
		return nil, err
	}
	hasBed := target.BedID != nil && *target.BedID != uuid.Nil
	hasEnc := target.EncounterID != nil && *target.EncounterID != uuid.Nil
	if hasBed == hasEnc {
		return nil, apperror.Validation("exactly one of bed_id or encounter_id is required")
	}

	var before, after *BedAssignment
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var (
			active *BedAssignment
			err    error
		)
		if hasBed {
			if _, err := s.beds.GetBedForUpdate(ctx, caller.TenantID, *target.BedID); err != nil {
				if db.IsNotFound(err) {
					return apperror.NotFound("bed not found")
				}
				return err
			}
			active, err = s.beds.ActiveByBed(ctx, caller.TenantID, *target.BedID)
		} else {
			active, err = s.beds.ActiveByEncounter(ctx, caller.TenantID, *target.EncounterID)
		}
		if db.IsNotFound(err) {
			return apperror.NotFound("no active bed assignment")
		}
		if err != nil {
			return err
		}

		now := s.now()
		if err := s.beds.Close(ctx, caller.TenantID, active.ID, now); err != nil {
			return err
		}
		before = active
		closed := *active
		closed.UnassignedAt = &now
		after = &closed
		return nil
	})
	if err != nil {
		return nil, apperror.Wrap(err, "unassign bed")
	}
	s.metrics.ObserveAssignment("bed", "unassigned")
	return after, s.audit.Record(ctx, audit.Change(caller, audit.EntityBedAssignment, after.ID, audit.ActionUpdate, before, after))
}

// ListBedsWithOccupancy returns every bed of the tenant ordered by zone and
// label, joined with its active assignment and the occupying patient's name.
func (s *Service) ListBedsWithOccupancy(ctx context.Context, caller auth.Caller) ([]BedOccupancy, error) {
	if err := caller.Validate(); err != nil {
		return nil, err
	}
	beds, err := s.beds.ListBeds(ctx, caller.TenantID)
	if err != nil {
		return nil, apperror.Wrap(err, "list beds")
	}
	active, err := s.beds.ListActive(ctx, caller.TenantID)
	if err != nil {
		return nil, apperror.Wrap(err, "list bed assignments")
	}

	byBed := make(map[uuid.UUID]*BedAssignment, len(active))
	encIDs := make([]uuid.UUID, 0, len(active))
	for _, a := range active {
		byBed[a.BedID] = a
		encIDs = append(encIDs, a.EncounterID)
	}
	names, err := s.encounters.PatientNames(ctx, caller, encIDs)
	if err != nil {
		return nil, err
	}

	out := make([]BedOccupancy, 0, len(beds))
	for _, b := range beds {
		occ := BedOccupancy{Bed: b}
		if a, ok := byBed[b.ID]; ok {
			encID := a.EncounterID
			occ.Assignment = a
			occ.ActiveEncounterID = &encID
			if name, ok := names[encID]; ok {
				occ.PatientName = &name
			}
		}
		out = append(out, occ)
	}
	return out, nil
}

// ActiveBed returns the encounter's active assignment and its bed, or nils
// when the encounter has no bed.
func (s *Service) ActiveBed(ctx context.Context, caller auth.Caller, encounterID uuid.UUID) (*BedAssignment, *Bed, error) {
	a, err := s.beds.ActiveByEncounter(ctx, caller.TenantID, encounterID)
	if db.IsNotFound(err) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, apperror.Wrap(err, "get active bed")
	}
	b, err := s.beds.GetBed(ctx, caller.TenantID, a.BedID)
	if err != nil {
		return nil, nil, apperror.Wrap(err, "get bed")
	}
	return a, b, nil
}

// AssignStaff makes targetUserID the active holder of role on the encounter,
// closing the previous holder.
func (s *Service) AssignStaff(ctx context.Context, caller auth.Caller, encounterID uuid.UUID, targetUserID, role string) (*StaffAssignment, error) {
	if err := caller.Validate(); err != nil {
		return nil, err
	}
	if encounterID == uuid.Nil {
		return nil, apperror.Validation("encounter_id is required")
	}
	targetUserID = strings.TrimSpace(targetUserID)
	if targetUserID == "" {
		return nil, apperror.Validation("user_id is required")
	}
	r, ok := ParseStaffRole(role)
	if !ok {
		return nil, apperror.Validation("unknown role %q", role)
	}

	var (
		result *StaffAssignment
		prior  *StaffAssignment
		noop   bool
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.encounters.LockOpen(ctx, caller, encounterID); err != nil {
			return err
		}
		current, err := s.staff.ActiveByRole(ctx, caller.TenantID, encounterID, r)
		if err != nil && !db.IsNotFound(err) {
			return err
		}
		if current != nil && current.UserID == targetUserID {
			result, noop = current, true
			return nil
		}

		now := s.now()
		if current != nil {
			if err := s.staff.Close(ctx, caller.TenantID, current.ID, now); err != nil {
				return err
			}
			prior = current
		}
		result = &StaffAssignment{
			ID:               uuid.New(),
			TenantID:         caller.TenantID,
			EncounterID:      encounterID,
			UserID:           targetUserID,
			Role:             r,
			AssignedAt:       now,
			AssignedByUserID: caller.UserID,
		}
		return s.staff.Insert(ctx, result)
	})
	if err != nil {
		return nil, s.concurrencyError(err, "staff")
	}
	if noop {
		s.metrics.ObserveAssignment("staff", "unchanged")
		return result, nil
	}
	s.metrics.ObserveAssignment("staff", "assigned")
	entry := audit.Change(caller, audit.EntityStaffAssignment, result.ID, audit.ActionAssign, prior, result)
	if prior != nil {
		entry.RelatedID = &prior.ID
	}
	return result, s.audit.Record(ctx, entry)
}

// ReleaseEncounter closes the encounter's active bed and staff assignments at
// at. It joins the caller's unit of work, which already holds the encounter
// lock, and returns one UPDATE entry per closed row.
func (s *Service) ReleaseEncounter(ctx context.Context, caller auth.Caller, encounterID uuid.UUID, at time.Time) ([]audit.Entry, error) {
	var entries []audit.Entry

	bed, err := s.beds.ActiveByEncounter(ctx, caller.TenantID, encounterID)
	switch {
	case db.IsNotFound(err):
	case err != nil:
		return nil, err
	default:
		if err := s.beds.Close(ctx, caller.TenantID, bed.ID, at); err != nil {
			return nil, err
		}
		closed := *bed
		closed.UnassignedAt = &at
		entries = append(entries, audit.Change(caller, audit.EntityBedAssignment, bed.ID, audit.ActionUpdate, bed, &closed))
	}

	staff, err := s.staff.ListActive(ctx, caller.TenantID, []uuid.UUID{encounterID})
	if err != nil {
		return nil, err
	}
	for _, a := range staff {
		if err := s.staff.Close(ctx, caller.TenantID, a.ID, at); err != nil {
			return nil, err
		}
		closed := *a
		closed.UnassignedAt = &at
		entries = append(entries, audit.Change(caller, audit.EntityStaffAssignment, a.ID, audit.ActionUpdate, a, &closed))
	}
	return entries, nil
}

// ActiveStaff returns the active staff assignments of the given encounters.
func (s *Service) ActiveStaff(ctx context.Context, caller auth.Caller, encounterIDs []uuid.UUID) ([]*StaffAssignment, error) {
	out, err := s.staff.ListActive(ctx, caller.TenantID, encounterIDs)
	if err != nil {
		return nil, apperror.Wrap(err, "list staff assignments")
	}
	return out, nil
}
