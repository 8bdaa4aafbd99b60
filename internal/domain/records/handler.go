package records

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/edhub/edhub/internal/domain/emergency"
	"github.com/edhub/edhub/internal/platform/auth"
	"github.com/edhub/edhub/internal/platform/blobstore"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/medical-documents", auth.RequireRole(auth.RoleAdmin, auth.RoleDoctor, auth.RoleNurse))
	g.POST("", h.Upload)
	g.GET("", h.ListMine)
	g.GET("/:id/download", h.Download)
	g.GET("/:id/preview", h.Preview)
	g.DELETE("/:id", h.Delete)
}

func currentActor(c echo.Context) (Actor, error) {
	ctx := c.Request().Context()
	id, err := uuid.Parse(auth.UserIDFromContext(ctx))
	if err != nil {
		return Actor{}, echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	return Actor{ID: id, Roles: auth.RolesFromContext(ctx)}, nil
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidType),
		errors.Is(err, blobstore.ErrMissingFileName):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, blobstore.ErrInvalidContentType):
		return echo.NewHTTPError(http.StatusUnsupportedMediaType, err.Error())
	case errors.Is(err, blobstore.ErrFileTooLarge):
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, emergency.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "emergency patient not found")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func (h *Handler) Upload(c echo.Context) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	patientID, err := uuid.Parse(c.FormValue("patientId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "patientId must be a valid id")
	}
	file, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	src, err := file.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to open uploaded file")
	}
	defer src.Close()

	doc, err := h.svc.Upload(c.Request().Context(), actor, Upload{
		PatientID:   patientID,
		Type:        c.FormValue("type"),
		FileName:    file.Filename,
		ContentType: file.Header.Get(echo.HeaderContentType),
		Content:     src,
	})
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, doc)
}

func (h *Handler) ListMine(c echo.Context) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	docs, err := h.svc.ListMine(c.Request().Context(), actor)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, docs)
}

func (h *Handler) Download(c echo.Context) error {
	return h.serve(c, "attachment")
}

func (h *Handler) Preview(c echo.Context) error {
	return h.serve(c, "inline")
}

func (h *Handler) serve(c echo.Context, disposition string) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	doc, rc, err := h.svc.Open(c.Request().Context(), actor, id)
	if err != nil {
		return mapError(err)
	}
	defer rc.Close()

	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("%s; filename=%q", disposition, doc.FileName))
	return c.Stream(http.StatusOK, doc.ContentType, rc)
}

func (h *Handler) Delete(c echo.Context) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), actor, id); err != nil {
		return mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
