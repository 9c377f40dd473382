package identity

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Yousefxll/HospitalOS2-sub009/internal/domain/audit"
	"github.com/Yousefxll/HospitalOS2-sub009/internal/platform/apperror"
	"github.com/Yousefxll/HospitalOS2-sub009/internal/platform/auth"
	"github.com/Yousefxll/HospitalOS2-sub009/internal/platform/db"
	"github.com/Yousefxll/HospitalOS2-sub009/internal/platform/metrics"
)

const DefaultSearchLimit = 10

type Service struct {
	repo        Repository
	tx          db.TxRunner
	audit       *audit.Recorder
	logger      zerolog.Logger
	metrics     *metrics.Metrics
	searchLimit int
	now         func() time.Time
}

func NewService(repo Repository, tx db.TxRunner, rec *audit.Recorder, logger zerolog.Logger) *Service {
	return &Service{
		repo:        repo,
		tx:          tx,
		audit:       rec,
		logger:      logger.With().Str("component", "identity").Logger(),
		searchLimit: DefaultSearchLimit,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

func (s *Service) SetSearchLimit(n int) {
	if n > 0 {
		s.searchLimit = n
	}
}

// FindKnownPatient resolves a patient by id or MRN within the caller's tenant.
func (s *Service) FindKnownPatient(ctx context.Context, caller auth.Caller, lookup Lookup) (*Patient, error) {
	if err := caller.Validate(); err != nil {
		return nil, err
	}
	mrn := strings.TrimSpace(lookup.MRN)
	if lookup.PatientID == nil && mrn == "" {
		return nil, apperror.Validation("patient_id or mrn is required")
	}

	var (
		p   *Patient
		err error
	)
	if lookup.PatientID != nil {
		p, err = s.repo.GetByID(ctx, caller.TenantID, *lookup.PatientID)
	} else {
		p, err = s.repo.GetByMRN(ctx, caller.TenantID, mrn)
	}
	if db.IsNotFound(err) {
		return nil, apperror.NotFound("patient not found")
	}
	if err != nil {
		return nil, apperror.Wrap(err, "find patient")
	}
	return p, nil
}

func (s *Service) GetPatient(ctx context.Context, caller auth.Caller, id uuid.UUID) (*Patient, error) {
	return s.FindKnownPatient(ctx, caller, Lookup{PatientID: &id})
}

// GetMany returns the tenant's patients keyed by id. Ids outside the tenant
// are silently absent.
func (s *Service) GetMany(ctx context.Context, caller auth.Caller, ids []uuid.UUID) (map[uuid.UUID]*Patient, error) {
	if err := caller.Validate(); err != nil {
		return nil, err
	}
	out, err := s.repo.GetMany(ctx, caller.TenantID, ids)
	if err != nil {
		return nil, apperror.Wrap(err, "load patients")
	}
	return out, nil
}

// RegisterUnknownPatient provisions a placeholder patient with a fresh
// temporary MRN. It never rejects missing demographics and writes no audit
// entry; the registering caller audits the creation. When called inside a
// db.TxRunner unit the counter increment and insert join that unit.
func (s *Service) RegisterUnknownPatient(ctx context.Context, caller auth.Caller, in UnknownPatientInput) (*Patient, error) {
	if err := caller.Validate(); err != nil {
		return nil, err
	}
	gender := NormalizeGender(in.Gender)
	if in.Gender != "" && gender == GenderUnknown && !strings.EqualFold(in.Gender, string(GenderUnknown)) {
		s.logger.Debug().Str("gender", in.Gender).Msg("unrecognised gender normalised to UNKNOWN")
	}
	name := strings.TrimSpace(in.FullName)
	if name == "" {
		name = gender.defaultName()
	}
	age := in.ApproxAge
	if age != nil && (*age < 0 || *age > 150) {
		age = nil
	}

	var p *Patient
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		prefix := gender.TempMRNPrefix()
		n, err := s.repo.NextTempMRN(ctx, caller.TenantID, prefix)
		if err != nil {
			return err
		}
		temp := FormatTempMRN(prefix, n)
		p = &Patient{
			ID:        uuid.New(),
			TenantID:  caller.TenantID,
			TempMRN:   &temp,
			IsUnknown: true,
			FullName:  name,
			Gender:    gender,
			ApproxAge: age,
			CreatedAt: s.now(),
		}
		return s.repo.Create(ctx, p)
	})
	if err != nil {
		return nil, apperror.Wrap(err, "register unknown patient")
	}
	s.metrics.ObserveTempMRN(gender.TempMRNPrefix())
	return p, nil
}

// CreateKnownPatient provisions a patient under a hospital MRN.
func (s *Service) CreateKnownPatient(ctx context.Context, caller auth.Caller, in KnownPatientInput) (*Patient, error) {
	if err := caller.Validate(); err != nil {
		return nil, err
	}
	mrn := strings.TrimSpace(in.MRN)
	name := strings.TrimSpace(in.FullName)
	if mrn == "" {
		return nil, apperror.Validation("mrn is required")
	}
	if name == "" {
		return nil, apperror.Validation("full_name is required")
	}
	if in.DOB != nil && in.DOB.After(s.now()) {
		return nil, apperror.Validation("dob must not be in the future")
	}

	p := &Patient{
		ID:        uuid.New(),
		TenantID:  caller.TenantID,
		MRN:       &mrn,
		FullName:  name,
		Gender:    NormalizeGender(in.Gender),
		DOB:       in.DOB,
		CreatedAt: s.now(),
	}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		return s.repo.Create(ctx, p)
	})
	if db.IsUniqueViolation(err) {
		return nil, apperror.Conflict("patient with mrn %q already exists", mrn)
	}
	if err != nil {
		return nil, apperror.Wrap(err, "create patient")
	}

	return p, s.audit.Record(ctx, audit.Change(caller, audit.EntityPatient, p.ID, audit.ActionCreate, nil, p))
}

// SearchPatients matches q against name, MRN and temporary MRN.
func (s *Service) SearchPatients(ctx context.Context, caller auth.Caller, q string) ([]*Patient, error) {
	if err := caller.Validate(); err != nil {
		return nil, err
	}
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, apperror.Validation("search query is required")
	}
	out, err := s.repo.Search(ctx, caller.TenantID, q, s.searchLimit)
	if err != nil {
		return nil, apperror.Wrap(err, "search patients")
	}
	if out == nil {
		out = []*Patient{}
	}
	return out, nil
}
