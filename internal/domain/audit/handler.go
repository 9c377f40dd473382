package audit

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Yousefxll/HospitalOS2-sub009/internal/platform/apperror"
	"github.com/Yousefxll/HospitalOS2-sub009/internal/platform/auth"
	"github.com/Yousefxll/HospitalOS2-sub009/pkg/pagination"
)

type Handler struct {
	rec *Recorder
}

func NewHandler(rec *Recorder) *Handler {
	return &Handler{rec: rec}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/audit", h.Query, auth.RequirePermission(auth.PermAuditView))
}

func (h *Handler) Query(c echo.Context) error {
	caller, err := auth.CallerFrom(c)
	if err != nil {
		return err
	}

	q := Query{EntityType: c.QueryParam("entity_type")}
	if raw := c.QueryParam("entity_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid entity_id")
		}
		q.EntityID = id
	}
	if q.From, err = parseTime(c.QueryParam("from")); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid from: use RFC3339")
	}
	if q.To, err = parseTime(c.QueryParam("to")); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid to: use RFC3339")
	}
	pg := pagination.FromContext(c)
	q.Limit, q.Offset = pg.Limit, pg.Offset

	entries, total, err := h.rec.Query(c.Request().Context(), caller, q)
	if err != nil {
		return apperror.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(entries, total, pg.Limit, pg.Offset))
}

func parseTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
