package audit

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/edhub/edhub/internal/platform/auth"
	"github.com/edhub/edhub/pkg/pagination"
)

// Reader lists the access trail of a patient.
type Reader interface {
	ListForPatient(ctx context.Context, patientID uuid.UUID, limit int) ([]*AccessLog, error)
}

type Handler struct {
	store Reader
}

func NewHandler(store Reader) *Handler {
	return &Handler{store: store}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/audit", auth.RequireRole(auth.RoleAdmin))
	g.GET("/patients/:id", h.ListForPatient)
}

func (h *Handler) ListForPatient(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	items, err := h.store.ListForPatient(c.Request().Context(), id, pagination.FromContext(c).Limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}
