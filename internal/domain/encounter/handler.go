package encounter

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Yousefxll/HospitalOS2-sub009/internal/platform/apperror"
	"github.com/Yousefxll/HospitalOS2-sub009/internal/platform/auth"
	"github.com/Yousefxll/HospitalOS2-sub009/internal/platform/idempotency"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the lifecycle routes. registration middleware, such
// as response replay, wraps only the create-style routes.
func (h *Handler) RegisterRoutes(api *echo.Group, registration ...echo.MiddlewareFunc) {
	g := api.Group("/encounters")

	create := append([]echo.MiddlewareFunc{auth.RequirePermission(auth.PermRegisterCreate)}, registration...)
	g.POST("/known", h.RegisterKnown, create...)
	g.POST("/unknown", h.RegisterUnknown, create...)

	g.GET("/:id/history", h.History, auth.RequirePermission(auth.PermEncounterView))
	g.POST("/:id/triage", h.RecordTriage, auth.RequirePermission(auth.PermTriageEdit))
	g.POST("/:id/status", h.Transition, auth.RequirePermission(auth.PermEncounterEdit))
	g.POST("/:id/disposition", h.ApplyDisposition, auth.RequirePermission(auth.PermDispositionApply))
	g.PUT("/:id/note", h.UpsertNote, auth.RequirePermission(auth.PermNotesEdit))
}

func registrationStatus(reg *Registration) int {
	if reg != nil && reg.Replayed {
		return http.StatusOK
	}
	return http.StatusCreated
}

func (h *Handler) RegisterKnown(c echo.Context) error {
	caller, err := auth.CallerFrom(c)
	if err != nil {
		return err
	}
	var req KnownRegistration
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	req.IdempotencyKey = c.Request().Header.Get(idempotency.HeaderKey)

	reg, err := h.svc.RegisterKnownEncounter(c.Request().Context(), caller, req)
	return apperror.Respond(c, registrationStatus(reg), reg, err)
}

func (h *Handler) RegisterUnknown(c echo.Context) error {
	caller, err := auth.CallerFrom(c)
	if err != nil {
		return err
	}
	var req UnknownRegistration
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	req.IdempotencyKey = c.Request().Header.Get(idempotency.HeaderKey)

	reg, err := h.svc.RegisterUnknownEncounter(c.Request().Context(), caller, req)
	return apperror.Respond(c, registrationStatus(reg), reg, err)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid encounter id")
	}
	return id, nil
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

func (h *Handler) Transition(c echo.Context) error {
	caller, err := auth.CallerFrom(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	e, err := h.svc.Transition(c.Request().Context(), caller, id, req.Status)
	return apperror.Respond(c, http.StatusOK, e, err)
}

func (h *Handler) ApplyDisposition(c echo.Context) error {
	caller, err := auth.CallerFrom(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	e, err := h.svc.ApplyDisposition(c.Request().Context(), caller, id, req.Status)
	return apperror.Respond(c, http.StatusOK, e, err)
}

type noteRequest struct {
	Content string `json:"content"`
}

func (h *Handler) UpsertNote(c echo.Context) error {
	caller, err := auth.CallerFrom(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req noteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	n, err := h.svc.UpsertNote(c.Request().Context(), caller, id, req.Content)
	return apperror.Respond(c, http.StatusOK, n, err)
}

func (h *Handler) RecordTriage(c echo.Context) error {
	caller, err := auth.CallerFrom(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req TriageInput
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if c.Echo().Validator != nil {
		if err := c.Validate(&req); err != nil {
			return apperror.ToHTTP(err)
		}
	}
	res, err := h.svc.RecordTriage(c.Request().Context(), caller, id, req)
	return apperror.Respond(c, http.StatusOK, res, err)
}

func (h *Handler) History(c echo.Context) error {
	caller, err := auth.CallerFrom(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	hist, err := h.svc.History(c.Request().Context(), caller, id)
	if err != nil {
		return apperror.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": hist})
}
