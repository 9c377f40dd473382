package identity

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Yousefxll/HospitalOS2-sub009/internal/domain/audit"
	"github.com/Yousefxll/HospitalOS2-sub009/internal/platform/apperror"
	"github.com/Yousefxll/HospitalOS2-sub009/internal/platform/auth"
	"github.com/Yousefxll/HospitalOS2-sub009/internal/platform/db"
)

var (
	clerkA = auth.Caller{TenantID: "hospital_a", UserID: "clerk-a", IP: "10.0.0.1"}
	clerkB = auth.Caller{TenantID: "hospital_b", UserID: "clerk-b"}
)

func newTestService() (*Service, audit.Repository) {
	auditRepo := audit.NewMemoryRepo()
	svc := NewService(NewMemoryRepo(), db.NewLocalTxRunner(), audit.NewRecorder(auditRepo, zerolog.Nop()), zerolog.Nop())
	return svc, auditRepo
}

func TestNormalizeGender(t *testing.T) {
	tests := []struct {
		in   string
		want Gender
	}{
		{"MALE", GenderMale},
		{"female", GenderFemale},
		{" m ", GenderMale},
		{"", GenderUnknown},
		{"other", GenderUnknown},
	}
	for _, tt := range tests {
		if got := NormalizeGender(tt.in); got != tt.want {
			t.Errorf("NormalizeGender(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestFormatTempMRN(t *testing.T) {
	if got := FormatTempMRN("M", 42); got != "M-000042" {
		t.Errorf("got %s", got)
	}
	if got := FormatTempMRN("U", 1234567); got != "U-1234567" {
		t.Errorf("got %s", got)
	}
}

func TestRegisterUnknownPatient_Defaults(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	p, err := svc.RegisterUnknownPatient(ctx, clerkA, UnknownPatientInput{Gender: "MALE"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.FullName != "Unknown Male" || !p.IsUnknown || p.MRN != nil {
		t.Errorf("unexpected patient: %+v", p)
	}
	if p.TempMRN == nil || *p.TempMRN != "M-000001" {
		t.Errorf("expected M-000001, got %v", p.TempMRN)
	}

	p, err = svc.RegisterUnknownPatient(ctx, clerkA, UnknownPatientInput{Gender: "banana"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Gender != GenderUnknown || p.FullName != "Unknown Patient" || *p.TempMRN != "U-000001" {
		t.Errorf("unexpected patient: %+v", p)
	}

	p, _ = svc.RegisterUnknownPatient(ctx, clerkA, UnknownPatientInput{Gender: "F", FullName: "  Jane  "})
	if p.FullName != "Jane" || *p.TempMRN != "F-000001" {
		t.Errorf("unexpected patient: %+v", p)
	}
}

func TestRegisterUnknownPatient_WritesNoAudit(t *testing.T) {
	svc, auditRepo := newTestService()
	p, err := svc.RegisterUnknownPatient(context.Background(), clerkA, UnknownPatientInput{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, total, _ := auditRepo.Query(context.Background(), clerkA.TenantID, audit.Query{EntityType: audit.EntityPatient, EntityID: p.ID})
	if total != 0 {
		t.Errorf("expected no audit entries, got %d", total)
	}
}

func TestRegisterUnknownPatient_ConcurrentTempMRNsAreUnique(t *testing.T) {
	svc, _ := newTestService()

	const n = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := make(map[string]bool, n)
	errs := make(chan error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := svc.RegisterUnknownPatient(context.Background(), clerkA, UnknownPatientInput{Gender: "FEMALE"})
			if err != nil {
				errs <- err
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if seen[*p.TempMRN] {
				errs <- fmt.Errorf("duplicate temp mrn %s", *p.TempMRN)
			}
			seen[*p.TempMRN] = true
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
	if len(seen) != n {
		t.Errorf("expected %d distinct temp mrns, got %d", n, len(seen))
	}
}

func TestTempMRNCountersArePerTenant(t *testing.T) {
	svc, _ := newTestService()
	a, _ := svc.RegisterUnknownPatient(context.Background(), clerkA, UnknownPatientInput{Gender: "MALE"})
	b, _ := svc.RegisterUnknownPatient(context.Background(), clerkB, UnknownPatientInput{Gender: "MALE"})
	if *a.TempMRN != "M-000001" || *b.TempMRN != "M-000001" {
		t.Errorf("expected independent counters, got %s and %s", *a.TempMRN, *b.TempMRN)
	}
}

func TestCreateKnownPatient(t *testing.T) {
	svc, auditRepo := newTestService()
	ctx := context.Background()

	p, err := svc.CreateKnownPatient(ctx, clerkA, KnownPatientInput{MRN: "MRN-100", FullName: "Ali Hassan", Gender: "male"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.IsUnknown || p.TempMRN != nil || p.DisplayMRN() != "MRN-100" {
		t.Errorf("unexpected patient: %+v", p)
	}
	entries, _, _ := auditRepo.Query(ctx, clerkA.TenantID, audit.Query{EntityType: audit.EntityPatient, EntityID: p.ID, Limit: 10})
	if len(entries) != 1 || entries[0].Action != audit.ActionCreate || entries[0].Before != nil {
		t.Errorf("expected one CREATE entry, got %+v", entries)
	}

	_, err = svc.CreateKnownPatient(ctx, clerkA, KnownPatientInput{MRN: "MRN-100", FullName: "Someone Else"})
	if !apperror.Is(err, apperror.KindConflict) {
		t.Errorf("expected conflict, got %v", err)
	}

	// Same MRN in another tenant is a different patient.
	if _, err := svc.CreateKnownPatient(ctx, clerkB, KnownPatientInput{MRN: "MRN-100", FullName: "Other"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	future := time.Now().Add(48 * time.Hour)
	if _, err := svc.CreateKnownPatient(ctx, clerkA, KnownPatientInput{MRN: "X", FullName: "Y", DOB: &future}); !apperror.Is(err, apperror.KindValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestFindKnownPatient(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	created, _ := svc.CreateKnownPatient(ctx, clerkA, KnownPatientInput{MRN: "MRN-7", FullName: "Sara"})

	if _, err := svc.FindKnownPatient(ctx, clerkA, Lookup{}); !apperror.Is(err, apperror.KindValidation) {
		t.Errorf("expected validation error, got %v", err)
	}

	p, err := svc.FindKnownPatient(ctx, clerkA, Lookup{MRN: "MRN-7"})
	if err != nil || p.ID != created.ID {
		t.Fatalf("lookup by mrn: %v %+v", err, p)
	}
	p, err = svc.FindKnownPatient(ctx, clerkA, Lookup{PatientID: &created.ID})
	if err != nil || p.ID != created.ID {
		t.Fatalf("lookup by id: %v %+v", err, p)
	}

	if _, err := svc.FindKnownPatient(ctx, clerkB, Lookup{PatientID: &created.ID}); !apperror.Is(err, apperror.KindNotFound) {
		t.Errorf("expected not found across tenants, got %v", err)
	}
	missing := uuid.New()
	if _, err := svc.FindKnownPatient(ctx, clerkA, Lookup{PatientID: &missing}); !apperror.Is(err, apperror.KindNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestSearchPatients(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, _ = svc.CreateKnownPatient(ctx, clerkA, KnownPatientInput{MRN: "A-1", FullName: "Zaid Omar"})
	_, _ = svc.CreateKnownPatient(ctx, clerkA, KnownPatientInput{MRN: "A-2", FullName: "Amal Omari"})
	_, _ = svc.CreateKnownPatient(ctx, clerkB, KnownPatientInput{MRN: "B-1", FullName: "Omar Other"})
	unknown, _ := svc.RegisterUnknownPatient(ctx, clerkA, UnknownPatientInput{Gender: "M"})

	results, err := svc.SearchPatients(ctx, clerkA, "omar")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 || results[0].FullName != "Amal Omari" || results[1].FullName != "Zaid Omar" {
		t.Errorf("unexpected results: %+v", results)
	}

	results, _ = svc.SearchPatients(ctx, clerkA, "m-000")
	if len(results) != 1 || results[0].ID != unknown.ID {
		t.Errorf("expected temp mrn match, got %+v", results)
	}

	results, _ = svc.SearchPatients(ctx, clerkA, "nobody")
	if results == nil || len(results) != 0 {
		t.Errorf("expected empty slice, got %v", results)
	}

	if _, err := svc.SearchPatients(ctx, clerkA, "   "); !apperror.Is(err, apperror.KindValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestSearchPatients_Limit(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	for i := 0; i < 15; i++ {
		_, _ = svc.CreateKnownPatient(ctx, clerkA, KnownPatientInput{MRN: fmt.Sprintf("L-%02d", i), FullName: fmt.Sprintf("Layla %02d", i)})
	}
	results, err := svc.SearchPatients(ctx, clerkA, "layla")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != DefaultSearchLimit {
		t.Errorf("expected %d results, got %d", DefaultSearchLimit, len(results))
	}
	if results[0].FullName != "Layla 00" {
		t.Errorf("expected ordering by name, got %s first", results[0].FullName)
	}
}

func TestRejectsCallerWithoutTenant(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.SearchPatients(context.Background(), auth.Caller{UserID: "x"}, "a")
	if !apperror.Is(err, apperror.KindValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}
