package integration

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/Yousefxll/HospitalOS2-sub009/internal/domain/audit"
	"github.com/Yousefxll/HospitalOS2-sub009/internal/domain/encounter"
	"github.com/Yousefxll/HospitalOS2-sub009/internal/domain/identity"
	"github.com/Yousefxll/HospitalOS2-sub009/internal/platform/apperror"
)

func TestTempMRNConcurrentAllocation(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)
	caller := callerIn(uniqueTenantID("mrn"), "clerk-1")

	const n = 40
	var wg sync.WaitGroup
	mrns := make(chan string, n)
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reg, err := s.encounters.RegisterUnknownEncounter(ctx, caller, encounter.UnknownRegistration{Gender: "M"})
			if err != nil {
				errs <- err
				return
			}
			mrns <- *reg.Patient.TempMRN
		}()
	}
	wg.Wait()
	close(mrns)
	close(errs)

	for err := range errs {
		t.Fatalf("registration failed: %v", err)
	}
	seen := make(map[string]bool)
	for m := range mrns {
		if seen[m] {
			t.Fatalf("temp MRN %s issued twice", m)
		}
		seen[m] = true
	}
	if len(seen) != n {
		t.Fatalf("expected %d MRNs, got %d", n, len(seen))
	}
	if !seen[identity.FormatTempMRN("M", 1)] || !seen[identity.FormatTempMRN("M", n)] {
		t.Error("expected a gap-free sequence starting at 1")
	}
}

func TestRegistrationIdempotencyKey(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)
	caller := callerIn(uniqueTenantID("idem"), "clerk-1")
	in := encounter.UnknownRegistration{FullName: "Trauma Bay", Gender: "F", IdempotencyKey: "k-1"}

	first, err := s.encounters.RegisterUnknownEncounter(ctx, caller, in)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	second, err := s.encounters.RegisterUnknownEncounter(ctx, caller, in)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !second.Replayed {
		t.Error("expected the second call to be a replay")
	}
	if first.Encounter.ID != second.Encounter.ID || first.Patient.ID != second.Patient.ID {
		t.Error("replay returned different entities")
	}
}

func TestEncounterLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)
	tenant := uniqueTenantID("life")
	caller := callerIn(tenant, "doc-1")

	known, err := s.patients.CreateKnownPatient(ctx, caller, identity.KnownPatientInput{MRN: "MRN-100", FullName: "Ada Lovelace", Gender: "F"})
	if err != nil {
		t.Fatalf("create patient: %v", err)
	}
	reg, err := s.encounters.RegisterKnownEncounter(ctx, caller, encounter.KnownRegistration{PatientID: &known.ID})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	id := reg.Encounter.ID

	t.Run("Triage", func(t *testing.T) {
		res, err := s.encounters.RecordTriage(ctx, caller, id, encounter.TriageInput{TriageLevel: 2})
		if err != nil {
			t.Fatalf("triage: %v", err)
		}
		if res.Encounter.Status != encounter.StatusTriaged {
			t.Errorf("expected TRIAGED, got %s", res.Encounter.Status)
		}
	})

	t.Run("DispositionPassesThroughDecision", func(t *testing.T) {
		enc, err := s.encounters.ApplyDisposition(ctx, caller, id, "ADMITTED")
		if err != nil {
			t.Fatalf("disposition: %v", err)
		}
		if enc.Status != encounter.StatusAdmitted || enc.ClosedAt == nil {
			t.Fatalf("expected closed ADMITTED encounter, got %s", enc.Status)
		}
		hist, err := s.encounters.History(ctx, caller, id)
		if err != nil {
			t.Fatalf("history: %v", err)
		}
		want := []encounter.Status{encounter.StatusTriaged, encounter.StatusDecision, encounter.StatusAdmitted}
		if len(hist) != len(want) {
			t.Fatalf("expected %d history rows, got %d", len(want), len(hist))
		}
		for i, h := range hist {
			if h.ToStatus != want[i] {
				t.Errorf("history[%d] = %s, want %s", i, h.ToStatus, want[i])
			}
		}
	})

	t.Run("ClosedEncounterRejectsTransition", func(t *testing.T) {
		_, err := s.encounters.Transition(ctx, caller, id, "IN_TREATMENT")
		if !apperror.Is(err, apperror.KindConflict) {
			t.Fatalf("expected conflict, got %v", err)
		}
	})

	t.Run("OtherTenantSeesNothing", func(t *testing.T) {
		other := callerIn(uniqueTenantID("other"), "doc-2")
		_, err := s.encounters.GetEncounter(ctx, other, id)
		if !apperror.Is(err, apperror.KindNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	})

	t.Run("AuditTrail", func(t *testing.T) {
		entries, total, err := s.recorder.Query(ctx, caller, audit.Query{EntityType: audit.EntityEncounter, EntityID: id, Limit: 50})
		if err != nil {
			t.Fatalf("query audit: %v", err)
		}
		// create, triage mirror, TRIAGED->DECISION, DECISION->ADMITTED
		if total != 4 || len(entries) != 4 {
			t.Fatalf("expected 4 encounter audit entries, got %d", total)
		}
		if entries[0].Action != audit.ActionCreate || entries[0].Before != nil {
			t.Error("expected the first entry to be a creation with no before image")
		}
		for i, want := range map[int]encounter.Status{2: encounter.StatusDecision, 3: encounter.StatusAdmitted} {
			var after encounter.Encounter
			if err := json.Unmarshal(entries[i].After, &after); err != nil {
				t.Fatalf("decode entry %d: %v", i, err)
			}
			if after.Status != want {
				t.Errorf("entries[%d] moved to %s, want %s", i, after.Status, want)
			}
		}
		if !entries[3].Timestamp.After(entries[2].Timestamp) {
			t.Error("expected the terminal entry to be recorded after DECISION")
		}
	})
}

func TestRegistrationKeyReuseAcrossKinds(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)
	caller := callerIn(uniqueTenantID("reuse"), "clerk-1")

	known, err := s.patients.CreateKnownPatient(ctx, caller, identity.KnownPatientInput{MRN: "MRN-1", FullName: "Grace Hopper"})
	if err != nil {
		t.Fatalf("create patient: %v", err)
	}
	if _, err := s.encounters.RegisterKnownEncounter(ctx, caller, encounter.KnownRegistration{PatientID: &known.ID, IdempotencyKey: "shared"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	_, err = s.encounters.RegisterUnknownEncounter(ctx, caller, encounter.UnknownRegistration{IdempotencyKey: "shared"})
	if !apperror.Is(err, apperror.KindConflict) {
		t.Fatalf("expected conflict for a key reused by another registration kind, got %v", err)
	}
}
