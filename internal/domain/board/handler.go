package board

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
	api.GET("/board", h.Board, auth.RequirePermission(auth.PermBoardView))
	api.GET("/encounters/:id", h.GetEncounter, auth.RequirePermission(auth.PermEncounterView))
}

func (h *Handler) Board(c echo.Context) error {
	caller, err := auth.CallerFrom(c)
	if err != nil {
		return err
	}
	rows, err := h.svc.Board(c.Request().Context(), caller)
	if err != nil {
		return apperror.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":  rows,
		"total": len(rows),
	})
}

func (h *Handler) GetEncounter(c echo.Context) error {
	caller, err := auth.CallerFrom(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid encounter id")
	}
	v, err := h.svc.EncounterView(c.Request().Context(), caller, id)
	if err != nil {
		return apperror.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, v)
}
