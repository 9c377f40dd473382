package board

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Yousefxll/HospitalOS2-sub009/internal/domain/assignment"
	"github.com/Yousefxll/HospitalOS2-sub009/internal/domain/audit"
	"github.com/Yousefxll/HospitalOS2-sub009/internal/domain/encounter"
	"github.com/Yousefxll/HospitalOS2-sub009/internal/domain/identity"
	"github.com/Yousefxll/HospitalOS2-sub009/internal/platform/apperror"
	"github.com/Yousefxll/HospitalOS2-sub009/internal/platform/auth"
	"github.com/Yousefxll/HospitalOS2-sub009/internal/platform/db"
)

var (
	docA = auth.Caller{TenantID: "hospital_a", UserID: "doc-a"}
	docB = auth.Caller{TenantID: "hospital_b", UserID: "doc-b"}
)

type stack struct {
	board       *Service
	patients    *identity.Service
	encounters  *encounter.Service
	assignments *assignment.Service
}

func newStack(t *testing.T) *stack {
	t.Helper()
	tx := db.NewLocalTxRunner()
	rec := audit.NewRecorder(audit.NewMemoryRepo(), zerolog.Nop())
	patients := identity.NewService(identity.NewMemoryRepo(), tx, rec, zerolog.Nop())
	encounters := encounter.NewService(encounter.NewMemoryRepo(), patients, tx, rec, zerolog.Nop())
	assignments := assignment.NewService(assignment.NewBedRepoMem(), assignment.NewStaffRepoMem(), encounters, tx, rec, zerolog.Nop())
	encounters.SetReleaser(assignments)
	return &stack{
		board:       NewService(patients, encounters, assignments),
		patients:    patients,
		encounters:  encounters,
		assignments: assignments,
	}
}

func (s *stack) register(t *testing.T, caller auth.Caller, name string) *encounter.Registration {
	t.Helper()
	reg, err := s.encounters.RegisterUnknownEncounter(context.Background(), caller, encounter.UnknownRegistration{FullName: name, Gender: "F"})
	require.NoError(t, err)
	return reg
}

func (s *stack) triage(t *testing.T, id uuid.UUID, level int, critical bool) {
	t.Helper()
	_, err := s.encounters.RecordTriage(context.Background(), docA, id, encounter.TriageInput{TriageLevel: level, Critical: critical})
	require.NoError(t, err)
}

func TestBoard_OrderingAndJoins(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	untriaged := s.register(t, docA, "Untriaged")
	level3 := s.register(t, docA, "Level Three")
	level1 := s.register(t, docA, "Level One")
	discharged := s.register(t, docA, "Gone Home")
	s.register(t, docB, "Other Tenant")

	s.triage(t, level3.Encounter.ID, 3, false)
	s.triage(t, level1.Encounter.ID, 1, true)
	_, err := s.encounters.ApplyDisposition(ctx, docA, discharged.Encounter.ID, "DISCHARGED")
	require.NoError(t, err)

	bed, err := s.assignments.CreateBed(ctx, docA, "Resus", "R2")
	require.NoError(t, err)
	_, err = s.assignments.AssignBed(ctx, docA, level1.Encounter.ID, bed.ID)
	require.NoError(t, err)
	_, err = s.assignments.AssignStaff(ctx, docA, level1.Encounter.ID, "dr-house", "PRIMARY_DOCTOR")
	require.NoError(t, err)
	_, err = s.assignments.AssignStaff(ctx, docA, level1.Encounter.ID, "rn-joy", "PRIMARY_NURSE")
	require.NoError(t, err)
	_, err = s.assignments.AssignStaff(ctx, docA, level1.Encounter.ID, "dr-consult", "CONSULTANT")
	require.NoError(t, err)

	s.board.now = func() time.Time { return time.Now().UTC().Add(45 * time.Minute) }
	rows, err := s.board.Board(ctx, docA)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, level1.Encounter.ID, rows[0].EncounterID)
	assert.Equal(t, level3.Encounter.ID, rows[1].EncounterID)
	assert.Equal(t, untriaged.Encounter.ID, rows[2].EncounterID)

	top := rows[0]
	assert.Equal(t, "Level One", top.PatientName)
	assert.Equal(t, *level1.Patient.TempMRN, top.MRN)
	assert.True(t, top.Critical)
	assert.Equal(t, encounter.StatusTriaged, top.Status)
	require.NotNil(t, top.BedLabel)
	assert.Equal(t, "R2", *top.BedLabel)
	assert.Equal(t, "Resus", *top.BedZone)
	require.NotNil(t, top.DoctorID)
	assert.Equal(t, "dr-house", *top.DoctorID)
	assert.Equal(t, "rn-joy", *top.NurseID)
	assert.GreaterOrEqual(t, top.WaitingMinutes, 44)

	assert.Nil(t, rows[2].TriageLevel)
	assert.Nil(t, rows[2].BedLabel)
	assert.Nil(t, rows[2].DoctorID)
}

func TestBoard_EmptyTenant(t *testing.T) {
	s := newStack(t)
	s.register(t, docA, "Someone")
	rows, err := s.board.Board(context.Background(), docB)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestEncounterView(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	reg := s.register(t, docA, "Viewed")
	s.triage(t, reg.Encounter.ID, 2, false)
	_, err := s.encounters.UpsertNote(ctx, docA, reg.Encounter.ID, "observation")
	require.NoError(t, err)

	v, err := s.board.EncounterView(ctx, docA, reg.Encounter.ID)
	require.NoError(t, err)
	assert.Equal(t, reg.Patient.ID, v.Patient.ID)
	require.NotNil(t, v.Triage)
	assert.Equal(t, 2, v.Triage.TriageLevel)
	require.NotNil(t, v.Note)
	assert.Equal(t, "observation", v.Note.Content)
	assert.Nil(t, v.Bed)
	assert.Empty(t, v.Staff)
}

func TestEncounterView_OtherTenantIsNotFound(t *testing.T) {
	s := newStack(t)
	reg := s.register(t, docA, "Private")

	_, err := s.board.EncounterView(context.Background(), docB, reg.Encounter.ID)
	assert.True(t, apperror.Is(err, apperror.KindNotFound))
}

func TestHandler_GetEncounter(t *testing.T) {
	s := newStack(t)
	reg := s.register(t, docA, "Handler")
	h := NewHandler(s.board)
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(auth.WithCaller(req.Context(), docB))
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(reg.Encounter.ID.String())

	he, ok := h.GetEncounter(c).(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", he)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(auth.WithCaller(req.Context(), docA))
	w := httptest.NewRecorder()
	c = e.NewContext(req, w)
	if err := h.Board(c); err != nil {
		t.Fatalf("board: %v", err)
	}
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}
