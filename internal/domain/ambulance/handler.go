package ambulance

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/edhub/edhub/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	staffOnly := auth.RequireRole(auth.RoleAdmin, auth.RoleDoctor, auth.RoleNurse)
	dispatchers := auth.RequireRole(auth.RoleAdmin, auth.RoleNurse)
	admin := auth.RequireRole(auth.RoleAdmin)

	g := api.Group("/ambulances", staffOnly)
	g.GET("", h.List)
	g.GET("/assigned", h.ListAssigned, auth.RequireRole(auth.RoleNurse, auth.RoleDoctor))
	g.GET("/:id", h.Get)
	g.POST("", h.Register, admin)
	g.DELETE("/:id", h.Delete, admin)
	g.PUT("/:id/status", h.SetStatus, dispatchers)
	g.PUT("/:id/location", h.UpdateLocation, dispatchers)
	g.POST("/:id/team", h.AddTeamMember, admin)
	g.DELETE("/:id/team/:userId", h.RemoveTeamMember, admin)

	r := api.Group("/ambulance-requests", staffOnly)
	r.GET("", h.ListRequests)
	r.POST("", h.Dispatch, dispatchers)
	r.GET("/:id", h.GetRequest)
	r.PUT("/:id/status", h.UpdateRequestStatus, dispatchers)
	r.PUT("/:id/location", h.UpdateRequestLocation, dispatchers)
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrInvalid), errors.Is(err, ErrInvalidStatus):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrRequestNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrDuplicate), errors.Is(err, ErrOnMission),
		errors.Is(err, ErrRequestClosed), errors.Is(err, ErrNoAmbulance):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func parseID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

type statusRequest struct {
	Status string `json:"status"`
}

type locationRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

type teamRequest struct {
	UserID string `json:"userId"`
}

func (h *Handler) List(c echo.Context) error {
	items, err := h.svc.List(c.Request().Context(), c.QueryParam("status"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) ListAssigned(c echo.Context) error {
	userID, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	items, err := h.svc.ListAssigned(c.Request().Context(), userID)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	a, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Register(c echo.Context) error {
	var req NewAmbulance
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.Register(c.Request().Context(), req)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) SetStatus(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.SetStatus(c.Request().Context(), id, req.Status)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) UpdateLocation(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req locationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.UpdateLocation(c.Request().Context(), id, req.Latitude, req.Longitude)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) AddTeamMember(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req teamRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid userId")
	}
	a, err := h.svc.AddTeamMember(c.Request().Context(), id, userID)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) RemoveTeamMember(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	userID, err := parseID(c, "userId")
	if err != nil {
		return err
	}
	a, err := h.svc.RemoveTeamMember(c.Request().Context(), id, userID)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ListRequests(c echo.Context) error {
	items, err := h.svc.ListRequests(c.Request().Context())
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) Dispatch(c echo.Context) error {
	var req Call
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	q, err := h.svc.Dispatch(c.Request().Context(), req)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, q)
}

func (h *Handler) GetRequest(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	q, err := h.svc.GetRequest(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, q)
}

func (h *Handler) UpdateRequestStatus(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	q, err := h.svc.UpdateRequestStatus(c.Request().Context(), id, req.Status)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, q)
}

func (h *Handler) UpdateRequestLocation(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req locationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	q, err := h.svc.UpdateRequestLocation(c.Request().Context(), id, req.Latitude, req.Longitude)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, q)
}
