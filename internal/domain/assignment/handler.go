package assignment

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
	beds := api.Group("/beds")
	beds.GET("", h.ListBeds, auth.RequirePermission(auth.PermBoardView))
	beds.POST("", h.CreateBed, auth.RequirePermission(auth.PermBedsManage))
	beds.POST("/assign", h.AssignBed, auth.RequirePermission(auth.PermBedsAssign))
	beds.POST("/unassign", h.UnassignBed, auth.RequirePermission(auth.PermBedsAssign))

	api.POST("/encounters/:id/staff", h.AssignStaff, auth.RequirePermission(auth.PermStaffAssign))
}

type createBedRequest struct {
	Zone  string `json:"zone" validate:"required,max=64"`
	Label string `json:"label" validate:"required,max=64"`
}

func (h *Handler) CreateBed(c echo.Context) error {
	caller, err := auth.CallerFrom(c)
	if err != nil {
		return err
	}
	var req createBedRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if c.Echo().Validator != nil {
		if err := c.Validate(&req); err != nil {
			return apperror.ToHTTP(err)
		}
	}
	b, err := h.svc.CreateBed(c.Request().Context(), caller, req.Zone, req.Label)
	return apperror.Respond(c, http.StatusCreated, b, err)
}

func (h *Handler) ListBeds(c echo.Context) error {
	caller, err := auth.CallerFrom(c)
	if err != nil {
		return err
	}
	beds, err := h.svc.ListBedsWithOccupancy(c.Request().Context(), caller)
	if err != nil {
		return apperror.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": beds})
}

type assignBedRequest struct {
	EncounterID uuid.UUID `json:"encounter_id"`
	BedID       uuid.UUID `json:"bed_id"`
}

func (h *Handler) AssignBed(c echo.Context) error {
	caller, err := auth.CallerFrom(c)
	if err != nil {
		return err
	}
	var req assignBedRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	a, err := h.svc.AssignBed(c.Request().Context(), caller, req.EncounterID, req.BedID)
	return apperror.Respond(c, http.StatusOK, a, err)
}

func (h *Handler) UnassignBed(c echo.Context) error {
	caller, err := auth.CallerFrom(c)
	if err != nil {
		return err
	}
	var req UnassignTarget
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	a, err := h.svc.UnassignBed(c.Request().Context(), caller, req)
	return apperror.Respond(c, http.StatusOK, a, err)
}

type assignStaffRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

func (h *Handler) AssignStaff(c echo.Context) error {
	caller, err := auth.CallerFrom(c)
	if err != nil {
		return err
	}
	encounterID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid encounter id")
	}
	var req assignStaffRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	a, err := h.svc.AssignStaff(c.Request().Context(), caller, encounterID, req.UserID, req.Role)
	return apperror.Respond(c, http.StatusOK, a, err)
}
