package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/Yousefxll/HospitalOS2-sub009/internal/platform/auth"
)

func TestHandler_Query(t *testing.T) {
	rec := NewRecorder(NewMemoryRepo(), zerolog.Nop())
	id := uuid.New()
	_ = rec.Record(context.Background(), Change(nurse, EntityBed, id, ActionCreate, nil, bed{Label: "R1"}))

	h := NewHandler(rec)
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/audit?entity_type=bed&entity_id="+id.String(), nil)
	req = req.WithContext(auth.WithCaller(req.Context(), nurse))
	w := httptest.NewRecorder()

	if err := h.Query(e.NewContext(req, w)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body struct {
		Data  []Entry `json:"data"`
		Total int     `json:"total"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Total != 1 || body.Data[0].Action != ActionCreate {
		t.Errorf("unexpected body: %+v", body)
	}
}

func TestHandler_Query_BadEntityID(t *testing.T) {
	h := NewHandler(NewRecorder(NewMemoryRepo(), zerolog.Nop()))
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/audit?entity_type=bed&entity_id=nope", nil)
	req = req.WithContext(auth.WithCaller(req.Context(), nurse))

	err := h.Query(e.NewContext(req, httptest.NewRecorder()))
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}
