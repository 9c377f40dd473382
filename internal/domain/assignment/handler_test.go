package assignment

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/Yousefxll/HospitalOS2-sub009/internal/platform/auth"
	"github.com/Yousefxll/HospitalOS2-sub009/internal/platform/validation"
)

func newContext(e *echo.Echo, method, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req = req.WithContext(auth.WithCaller(req.Context(), chargeA))
	w := httptest.NewRecorder()
	return e.NewContext(req, w), w
}

func TestHandler_BedFlow(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc)
	e := echo.New()
	e.Validator = validation.New()
	enc := f.encounter(t, chargeA, "Handler Patient")

	c, w := newContext(e, http.MethodPost, `{"zone":"Fast Track","label":"F1"}`)
	if err := h.CreateBed(c); err != nil {
		t.Fatalf("create bed: %v", err)
	}
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
	var bed Bed
	_ = json.Unmarshal(w.Body.Bytes(), &bed)

	c, w = newContext(e, http.MethodPost, `{"encounter_id":"`+enc.String()+`","bed_id":"`+bed.ID.String()+`"}`)
	if err := h.AssignBed(c); err != nil {
		t.Fatalf("assign bed: %v", err)
	}
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	c, w = newContext(e, http.MethodGet, "")
	if err := h.ListBeds(c); err != nil {
		t.Fatalf("list beds: %v", err)
	}
	if !strings.Contains(w.Body.String(), `"patient_name":"Handler Patient"`) {
		t.Errorf("expected occupant name, got %s", w.Body.String())
	}

	c, _ = newContext(e, http.MethodPost, `{}`)
	he, ok := h.UnassignBed(c).(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", he)
	}

	c, w = newContext(e, http.MethodPost, `{"bed_id":"`+bed.ID.String()+`"}`)
	if err := h.UnassignBed(c); err != nil {
		t.Fatalf("unassign: %v", err)
	}
	if !strings.Contains(w.Body.String(), `"unassigned_at":"`) {
		t.Errorf("expected closed row, got %s", w.Body.String())
	}
}

func TestHandler_CreateBed_Validation(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc)
	e := echo.New()
	e.Validator = validation.New()

	c, _ := newContext(e, http.MethodPost, `{"zone":"A"}`)
	he, ok := h.CreateBed(c).(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", he)
	}
}

func TestHandler_AssignStaff(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc)
	e := echo.New()
	enc := f.encounter(t, chargeA, "Staff Patient")

	c, w := newContext(e, http.MethodPost, `{"user_id":"dr-7","role":"CONSULTANT"}`)
	c.SetParamNames("id")
	c.SetParamValues(enc.String())
	if err := h.AssignStaff(c); err != nil {
		t.Fatalf("assign staff: %v", err)
	}
	if !strings.Contains(w.Body.String(), `"role":"CONSULTANT"`) {
		t.Errorf("unexpected body: %s", w.Body.String())
	}

	c, _ = newContext(e, http.MethodPost, `{"user_id":"dr-7","role":"SURGEON"}`)
	c.SetParamNames("id")
	c.SetParamValues(enc.String())
	he, ok := h.AssignStaff(c).(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", he)
	}
}
