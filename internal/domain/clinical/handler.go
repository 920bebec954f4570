package clinical

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/platform/apperr"
	"github.com/hms/hms/internal/platform/auth"
)

type Handler struct {
	svc    *Service
	logger zerolog.Logger
}

func NewHandler(svc *Service, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/appointments/:id/vitals", h.Get, auth.Require(h.logger, auth.ViewVitals))
	api.POST("/appointments/:id/vitals", h.Create, auth.Require(h.logger, auth.AddVitals))
	api.PATCH("/appointments/:id/vitals", h.Patch, auth.Require(h.logger, auth.ChangeVitals))
}

func request(c echo.Context) (*auth.Actor, uuid.UUID, error) {
	a, ok := auth.ActorFromContext(c.Request().Context())
	if !ok {
		return nil, uuid.Nil, apperr.Unauthorized("authentication required")
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return nil, uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return a, id, nil
}

func (h *Handler) Get(c echo.Context) error {
	a, id, err := request(c)
	if err != nil {
		return err
	}
	v, err := h.svc.Get(c.Request().Context(), a, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) Create(c echo.Context) error {
	a, id, err := request(c)
	if err != nil {
		return err
	}
	var in Input
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	v, err := h.svc.Create(c.Request().Context(), a, id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, v)
}

func (h *Handler) Patch(c echo.Context) error {
	a, id, err := request(c)
	if err != nil {
		return err
	}
	var in Input
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	v, err := h.svc.Patch(c.Request().Context(), a, id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, v)
}
