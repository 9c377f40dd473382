package identity

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Yousefxll/HospitalOS2-sub009/internal/platform/apperror"
	"github.com/Yousefxll/HospitalOS2-sub009/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/patients")
	g.POST("", h.CreatePatient, auth.RequirePermission(auth.PermPatientsManage))
	g.GET("/search", h.SearchPatients, auth.RequirePermission(auth.PermPatientsSearch))
	g.GET("/lookup", h.LookupPatient, auth.RequirePermission(auth.PermPatientsSearch))
}

func (h *Handler) CreatePatient(c echo.Context) error {
	caller, err := auth.CallerFrom(c)
	if err != nil {
		return err
	}
	var req KnownPatientInput
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if c.Echo().Validator != nil {
		if err := c.Validate(&req); err != nil {
			return apperror.ToHTTP(err)
		}
	}
	p, err := h.svc.CreateKnownPatient(c.Request().Context(), caller, req)
	return apperror.Respond(c, http.StatusCreated, p, err)
}

func (h *Handler) SearchPatients(c echo.Context) error {
	caller, err := auth.CallerFrom(c)
	if err != nil {
		return err
	}
	results, err := h.svc.SearchPatients(c.Request().Context(), caller, c.QueryParam("q"))
	if err != nil {
		return apperror.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": results})
}

func (h *Handler) LookupPatient(c echo.Context) error {
	caller, err := auth.CallerFrom(c)
	if err != nil {
		return err
	}
	lookup := Lookup{MRN: c.QueryParam("mrn")}
	if raw := c.QueryParam("patient_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		lookup.PatientID = &id
	}
	p, err := h.svc.FindKnownPatient(c.Request().Context(), caller, lookup)
	if err != nil {
		return apperror.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}
