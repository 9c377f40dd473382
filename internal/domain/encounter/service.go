package encounter

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Yousefxll/HospitalOS2-sub009/internal/domain/audit"
	"github.com/Yousefxll/HospitalOS2-sub009/internal/domain/identity"
	"github.com/Yousefxll/HospitalOS2-sub009/internal/platform/apperror"
	"github.com/Yousefxll/HospitalOS2-sub009/internal/platform/auth"
	"github.com/Yousefxll/HospitalOS2-sub009/internal/platform/db"
	"github.com/Yousefxll/HospitalOS2-sub009/internal/platform/metrics"
)

// PatientResolver is the part of the identity service registration needs.
type PatientResolver interface {
	FindKnownPatient(ctx context.Context, caller auth.Caller, lookup identity.Lookup) (*identity.Patient, error)
	RegisterUnknownPatient(ctx context.Context, caller auth.Caller, in identity.UnknownPatientInput) (*identity.Patient, error)
	GetMany(ctx context.Context, caller auth.Caller, ids []uuid.UUID) (map[uuid.UUID]*identity.Patient, error)
}

// ResourceReleaser frees what an encounter holds when it closes. It runs in
// the closing unit with the encounter row locked and returns the audit
// entries of the rows it closed.
type ResourceReleaser interface {
	ReleaseEncounter(ctx context.Context, caller auth.Caller, encounterID uuid.UUID, at time.Time) ([]audit.Entry, error)
}

type Service struct {
	repo     Repository
	patients PatientResolver
	releaser ResourceReleaser
	tx       db.TxRunner
	audit    *audit.Recorder
	logger   zerolog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewService(repo Repository, patients PatientResolver, tx db.TxRunner, rec *audit.Recorder, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		patients: patients,
		tx:       tx,
		audit:    rec,
		logger:   logger.With().Str("component", "encounter").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

func (s *Service) SetReleaser(r ResourceReleaser) {
	s.releaser = r
}

func (s *Service) newEncounter(caller auth.Caller, patientID uuid.UUID, arrival, payment, key string) *Encounter {
	am, amDefaulted := NormalizeArrivalMethod(arrival)
	ps, psDefaulted := NormalizePaymentStatus(payment)
	if amDefaulted || psDefaulted {
		s.logger.Debug().
			Str("arrival_method", arrival).
			Str("payment_status", payment).
			Msg("registration values normalised to defaults")
	}
	now := s.now()
	e := &Encounter{
		ID:              uuid.New(),
		TenantID:        caller.TenantID,
		PatientID:       patientID,
		Type:            TypeER,
		Status:          StatusRegistered,
		ArrivalMethod:   am,
		PaymentStatus:   ps,
		StartedAt:       now,
		CreatedByUserID: caller.UserID,
		UpdatedAt:       now,
	}
	if key = strings.TrimSpace(key); key != "" {
		e.IdempotencyKey = &key
	}
	return e
}

// replay returns the registration stored under key, or nil if there is none.
// A stored registration whose patient fails matches was made by a different
// request and yields a conflict.
func (s *Service) replay(ctx context.Context, caller auth.Caller, key string, matches func(*identity.Patient) bool) (*Registration, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, nil
	}
	e, err := s.repo.GetByIdempotencyKey(ctx, caller.TenantID, key)
	if db.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, apperror.Wrap(err, "look up idempotency key")
	}
	p, err := s.patients.FindKnownPatient(ctx, caller, identity.Lookup{PatientID: &e.PatientID})
	if err != nil {
		return nil, err
	}
	if !matches(p) {
		s.metrics.ObserveIdempotency("mismatch")
		return nil, apperror.Conflict("idempotency key was already used for a different registration")
	}
	s.metrics.ObserveIdempotency("durable_replay")
	return &Registration{Patient: p, Encounter: e, Replayed: true}, nil
}

// register runs create inside one unit and resolves a lost idempotency race
// by returning the winner's registration.
func (s *Service) register(ctx context.Context, caller auth.Caller, key string, matches func(*identity.Patient) bool, create func(ctx context.Context) (*Registration, error)) (*Registration, error) {
	if prior, err := s.replay(ctx, caller, key, matches); prior != nil || err != nil {
		return prior, err
	}

	var reg *Registration
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		reg, err = create(ctx)
		return err
	})
	if db.IsUniqueViolation(err) && strings.TrimSpace(key) != "" {
		if prior, rerr := s.replay(ctx, caller, key, matches); prior != nil || rerr != nil {
			return prior, rerr
		}
	}
	if err != nil {
		return nil, apperror.Wrap(err, "register encounter")
	}
	return reg, nil
}

// RegisterKnownEncounter opens an ER encounter for an existing patient.
func (s *Service) RegisterKnownEncounter(ctx context.Context, caller auth.Caller, in KnownRegistration) (*Registration, error) {
	if err := caller.Validate(); err != nil {
		return nil, err
	}
	if in.PatientID == nil && strings.TrimSpace(in.MRN) == "" {
		return nil, apperror.Validation("patient_id or mrn is required")
	}

	mrn := strings.TrimSpace(in.MRN)
	samePatient := func(p *identity.Patient) bool {
		if in.PatientID != nil {
			return *in.PatientID == p.ID
		}
		return p.MRN != nil && *p.MRN == mrn
	}

	reg, err := s.register(ctx, caller, in.IdempotencyKey, samePatient, func(ctx context.Context) (*Registration, error) {
		p, err := s.patients.FindKnownPatient(ctx, caller, identity.Lookup{PatientID: in.PatientID, MRN: in.MRN})
		if err != nil {
			return nil, err
		}
		e := s.newEncounter(caller, p.ID, in.ArrivalMethod, in.PaymentStatus, in.IdempotencyKey)
		if err := s.repo.Create(ctx, e); err != nil {
			return nil, err
		}
		return &Registration{Patient: p, Encounter: e}, nil
	})
	if err != nil || reg.Replayed {
		return reg, err
	}

	s.metrics.ObserveRegistration("known")
	return reg, s.audit.Record(ctx,
		audit.Change(caller, audit.EntityEncounter, reg.Encounter.ID, audit.ActionCreate, nil, reg.Encounter))
}

// RegisterUnknownEncounter provisions a placeholder patient and opens an ER
// encounter for it. Missing demographics never cause a rejection.
func (s *Service) RegisterUnknownEncounter(ctx context.Context, caller auth.Caller, in UnknownRegistration) (*Registration, error) {
	if err := caller.Validate(); err != nil {
		return nil, err
	}

	placeholder := func(p *identity.Patient) bool { return p.IsUnknown }

	reg, err := s.register(ctx, caller, in.IdempotencyKey, placeholder, func(ctx context.Context) (*Registration, error) {
		p, err := s.patients.RegisterUnknownPatient(ctx, caller, identity.UnknownPatientInput{
			FullName:  in.FullName,
			Gender:    in.Gender,
			ApproxAge: in.ApproxAge,
		})
		if err != nil {
			return nil, err
		}
		e := s.newEncounter(caller, p.ID, in.ArrivalMethod, in.PaymentStatus, in.IdempotencyKey)
		if err := s.repo.Create(ctx, e); err != nil {
			return nil, err
		}
		return &Registration{Patient: p, Encounter: e}, nil
	})
	if err != nil || reg.Replayed {
		return reg, err
	}

	s.metrics.ObserveRegistration("unknown")
	return reg, s.audit.Record(ctx,
		audit.Change(caller, audit.EntityPatient, reg.Patient.ID, audit.ActionCreate, nil, reg.Patient),
		audit.Change(caller, audit.EntityEncounter, reg.Encounter.ID, audit.ActionCreate, nil, reg.Encounter),
	)
}

func (s *Service) GetEncounter(ctx context.Context, caller auth.Caller, id uuid.UUID) (*Encounter, error) {
	if err := caller.Validate(); err != nil {
		return nil, err
	}
	e, err := s.repo.GetByID(ctx, caller.TenantID, id)
	if db.IsNotFound(err) {
		return nil, apperror.NotFound("encounter not found")
	}
	if err != nil {
		return nil, apperror.Wrap(err, "get encounter")
	}
	return e, nil
}

// LockOpen locks the encounter row for the surrounding unit of work and
// rejects closed encounters. It must be called inside db.TxRunner.WithinTx.
func (s *Service) LockOpen(ctx context.Context, caller auth.Caller, id uuid.UUID) (*Encounter, error) {
	e, err := s.repo.GetForUpdate(ctx, caller.TenantID, id)
	if db.IsNotFound(err) {
		return nil, apperror.NotFound("encounter not found")
	}
	if err != nil {
		return nil, err
	}
	if e.IsClosed() {
		return nil, apperror.Conflict("encounter is closed with status %s", e.Status)
	}
	return e, nil
}

// ApplyDisposition closes the encounter with a terminal status, passing
// through DECISION first when the encounter has not reached it yet.
func (s *Service) ApplyDisposition(ctx context.Context, caller auth.Caller, id uuid.UUID, target string) (*Encounter, error) {
	if err := caller.Validate(); err != nil {
		return nil, err
	}
	st, ok := ParseStatus(target)
	if !ok || !st.IsTerminal() {
		return nil, apperror.Validation("target status %q is not a disposition; use one of DISCHARGED, ADMITTED, TRANSFERRED", target)
	}
	return s.move(ctx, caller, id, st)
}

// Transition applies one non-terminal lifecycle step.
func (s *Service) Transition(ctx context.Context, caller auth.Caller, id uuid.UUID, target string) (*Encounter, error) {
	if err := caller.Validate(); err != nil {
		return nil, err
	}
	st, ok := ParseStatus(target)
	if !ok {
		return nil, apperror.Validation("unknown status %q", target)
	}
	if st.IsTerminal() {
		return nil, apperror.Validation("terminal status %s must be applied as a disposition", st)
	}
	if st == StatusRegistered {
		return nil, apperror.Validation("encounters cannot return to REGISTERED")
	}
	return s.move(ctx, caller, id, st)
}

func (s *Service) move(ctx context.Context, caller auth.Caller, id uuid.UUID, target Status) (*Encounter, error) {
	var (
		e       *Encounter
		entries []audit.Entry
		applied []StatusHistory
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		e, err = s.repo.GetForUpdate(ctx, caller.TenantID, id)
		if db.IsNotFound(err) {
			return apperror.NotFound("encounter not found")
		}
		if err != nil {
			return err
		}

		steps, ok := Plan(e.Status, target)
		if !ok {
			return apperror.Conflict("cannot move encounter from %s to %s", e.Status, target)
		}

		for _, step := range steps {
			entry, h, err := s.step(ctx, caller, e, step)
			if err != nil {
				return err
			}
			entries = append(entries, entry)
			applied = append(applied, *h)
		}

		if target.IsTerminal() && s.releaser != nil {
			released, err := s.releaser.ReleaseEncounter(ctx, caller, e.ID, *e.ClosedAt)
			if err != nil {
				return err
			}
			entries = append(entries, released...)
		}
		return nil
	})
	if err != nil {
		return nil, apperror.Wrap(err, "change encounter status")
	}

	for _, h := range applied {
		s.metrics.ObserveTransition(string(h.FromStatus), string(h.ToStatus))
	}
	return e, s.audit.Record(ctx, entries...)
}

// step writes one transition of e to next and returns its audit entry.
func (s *Service) step(ctx context.Context, caller auth.Caller, e *Encounter, next Status) (audit.Entry, *StatusHistory, error) {
	before := e.clone()
	now := s.now()
	e.Status = next
	e.UpdatedAt = now
	if next.IsTerminal() {
		e.ClosedAt = &now
	}
	if err := s.repo.Update(ctx, e); err != nil {
		return audit.Entry{}, nil, err
	}
	h := &StatusHistory{
		ID:          uuid.New(),
		TenantID:    caller.TenantID,
		EncounterID: e.ID,
		FromStatus:  before.Status,
		ToStatus:    next,
		ChangedBy:   caller.UserID,
		ChangedAt:   now,
	}
	if err := s.repo.AddStatusHistory(ctx, h); err != nil {
		return audit.Entry{}, nil, err
	}
	return audit.Change(caller, audit.EntityEncounter, e.ID, audit.ActionUpdate, before, e.clone()), h, nil
}

// UpsertNote creates the encounter's note or overwrites its content.
func (s *Service) UpsertNote(ctx context.Context, caller auth.Caller, encounterID uuid.UUID, content string) (*Note, error) {
	if err := caller.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(content) == "" {
		return nil, apperror.Validation("content is required")
	}

	var (
		note  *Note
		entry audit.Entry
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.repo.GetForUpdate(ctx, caller.TenantID, encounterID); err != nil {
			if db.IsNotFound(err) {
				return apperror.NotFound("encounter not found")
			}
			return err
		}

		now := s.now()
		prior, err := s.repo.GetNote(ctx, caller.TenantID, encounterID)
		switch {
		case db.IsNotFound(err):
			note = &Note{
				ID:              uuid.New(),
				TenantID:        caller.TenantID,
				EncounterID:     encounterID,
				Content:         content,
				CreatedByUserID: caller.UserID,
				UpdatedByUserID: caller.UserID,
				CreatedAt:       now,
				UpdatedAt:       now,
			}
			entry = audit.Change(caller, audit.EntityNote, note.ID, audit.ActionCreate, nil, note)
			return s.repo.CreateNote(ctx, note)
		case err != nil:
			return err
		}

		updated := *prior
		updated.Content = content
		updated.UpdatedByUserID = caller.UserID
		updated.UpdatedAt = now
		note = &updated
		entry = audit.Change(caller, audit.EntityNote, note.ID, audit.ActionUpdate, prior, note)
		return s.repo.UpdateNote(ctx, note)
	})
	if err != nil {
		return nil, apperror.Wrap(err, "save note")
	}
	return note, s.audit.Record(ctx, entry)
}

func (s *Service) GetNote(ctx context.Context, caller auth.Caller, encounterID uuid.UUID) (*Note, error) {
	n, err := s.repo.GetNote(ctx, caller.TenantID, encounterID)
	if db.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, apperror.Wrap(err, "get note")
	}
	return n, nil
}

// RecordTriage stores the encounter's triage assessment and mirrors level and
// complaint onto the encounter. A REGISTERED encounter becomes TRIAGED.
func (s *Service) RecordTriage(ctx context.Context, caller auth.Caller, encounterID uuid.UUID, in TriageInput) (*TriageResult, error) {
	if err := caller.Validate(); err != nil {
		return nil, err
	}
	if in.TriageLevel < 1 || in.TriageLevel > 5 {
		return nil, apperror.Validation("triage_level must be between 1 and 5")
	}
	if in.PainScore != nil && (*in.PainScore < 0 || *in.PainScore > 10) {
		return nil, apperror.Validation("pain_score must be between 0 and 10")
	}
	var complaint *string
	if in.ChiefComplaint != nil {
		if c := strings.TrimSpace(*in.ChiefComplaint); c != "" {
			complaint = &c
		}
	}

	var (
		res     TriageResult
		entries []audit.Entry
		moved   *StatusHistory
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		e, err := s.LockOpen(ctx, caller, encounterID)
		if err != nil {
			return err
		}

		now := s.now()
		prior, err := s.repo.GetTriage(ctx, caller.TenantID, encounterID)
		if err != nil && !db.IsNotFound(err) {
			return err
		}
		t := &TriageAssessment{
			ID:             uuid.New(),
			TenantID:       caller.TenantID,
			EncounterID:    encounterID,
			NurseUserID:    caller.UserID,
			TriageLevel:    in.TriageLevel,
			ChiefComplaint: complaint,
			PainScore:      in.PainScore,
			Vitals:         in.Vitals,
			Critical:       in.Critical,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if prior == nil {
			if err := s.repo.CreateTriage(ctx, t); err != nil {
				return err
			}
			entries = append(entries, audit.Change(caller, audit.EntityTriage, t.ID, audit.ActionCreate, nil, t))
		} else {
			t.ID, t.CreatedAt = prior.ID, prior.CreatedAt
			if err := s.repo.UpdateTriage(ctx, t); err != nil {
				return err
			}
			entries = append(entries, audit.Change(caller, audit.EntityTriage, t.ID, audit.ActionUpdate, prior, t))
		}
		res.Triage = t

		before := e.clone()
		level := in.TriageLevel
		e.TriageLevel = &level
		if complaint != nil {
			e.ChiefComplaint = complaint
		}
		e.UpdatedAt = now
		if e.Status == StatusRegistered && CanTransition(e.Status, StatusTriaged) {
			e.Status = StatusTriaged
			moved = &StatusHistory{
				ID:          uuid.New(),
				TenantID:    caller.TenantID,
				EncounterID: e.ID,
				FromStatus:  before.Status,
				ToStatus:    StatusTriaged,
				ChangedBy:   caller.UserID,
				ChangedAt:   now,
			}
			if err := s.repo.AddStatusHistory(ctx, moved); err != nil {
				return err
			}
		}
		if err := s.repo.Update(ctx, e); err != nil {
			return err
		}
		entries = append(entries, audit.Change(caller, audit.EntityEncounter, e.ID, audit.ActionUpdate, before, e.clone()))
		res.Encounter = e
		return nil
	})
	if err != nil {
		return nil, apperror.Wrap(err, "record triage")
	}
	if moved != nil {
		s.metrics.ObserveTransition(string(moved.FromStatus), string(moved.ToStatus))
	}
	return &res, s.audit.Record(ctx, entries...)
}

func (s *Service) GetTriage(ctx context.Context, caller auth.Caller, encounterID uuid.UUID) (*TriageAssessment, error) {
	t, err := s.repo.GetTriage(ctx, caller.TenantID, encounterID)
	if db.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, apperror.Wrap(err, "get triage")
	}
	return t, nil
}

// History returns the status transitions of an encounter, oldest first.
func (s *Service) History(ctx context.Context, caller auth.Caller, encounterID uuid.UUID) ([]*StatusHistory, error) {
	if _, err := s.GetEncounter(ctx, caller, encounterID); err != nil {
		return nil, err
	}
	h, err := s.repo.ListStatusHistory(ctx, caller.TenantID, encounterID)
	if err != nil {
		return nil, apperror.Wrap(err, "list status history")
	}
	if h == nil {
		h = []*StatusHistory{}
	}
	return h, nil
}

// OpenEncounters lists the tenant's open encounters with their triage
// assessments keyed by encounter id.
func (s *Service) OpenEncounters(ctx context.Context, caller auth.Caller) ([]*Encounter, map[uuid.UUID]*TriageAssessment, error) {
	if err := caller.Validate(); err != nil {
		return nil, nil, err
	}
	open, err := s.repo.ListOpen(ctx, caller.TenantID)
	if err != nil {
		return nil, nil, apperror.Wrap(err, "list open encounters")
	}
	ids := make([]uuid.UUID, len(open))
	for i, e := range open {
		ids[i] = e.ID
	}
	triage, err := s.repo.ListTriage(ctx, caller.TenantID, ids)
	if err != nil {
		return nil, nil, apperror.Wrap(err, "list triage")
	}
	return open, triage, nil
}

// PatientNames maps each encounter id to its patient's full name. Unknown
// ids are omitted.
func (s *Service) PatientNames(ctx context.Context, caller auth.Caller, encounterIDs []uuid.UUID) (map[uuid.UUID]string, error) {
	encs, err := s.repo.GetMany(ctx, caller.TenantID, encounterIDs)
	if err != nil {
		return nil, apperror.Wrap(err, "load encounters")
	}
	patientIDs := make([]uuid.UUID, 0, len(encs))
	for _, e := range encs {
		patientIDs = append(patientIDs, e.PatientID)
	}
	patients, err := s.patients.GetMany(ctx, caller, patientIDs)
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]string, len(encs))
	for id, e := range encs {
		if p, ok := patients[e.PatientID]; ok {
			out[id] = p.FullName
		}
	}
	return out, nil
}
