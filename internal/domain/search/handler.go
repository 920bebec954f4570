package search

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/platform/apperr"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/pkg/pagination"
)

type Handler struct {
	svc    *Service
	limits pagination.Limits
	logger zerolog.Logger
}

func NewHandler(svc *Service, limits pagination.Limits, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, limits: limits, logger: logger}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/search/patients", h.Patients, auth.Require(h.logger, auth.ViewPatient))
	api.GET("/search/appointments", h.Appointments, auth.Require(h.logger, auth.ViewAppointment))
}

func actor(c echo.Context) (*auth.Actor, error) {
	a, ok := auth.ActorFromContext(c.Request().Context())
	if !ok {
		return nil, apperr.Unauthorized("authentication required")
	}
	return a, nil
}

func (h *Handler) Patients(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	items, err := h.svc.Patients(c.Request().Context(), a, c.QueryParams())
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c, h.limits)
	return c.JSON(http.StatusOK, pagination.Body("patients", pagination.Slice(items, pg), len(items), pg))
}

func (h *Handler) Appointments(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	items, err := h.svc.Appointments(c.Request().Context(), a, c.QueryParams())
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c, h.limits)
	return c.JSON(http.StatusOK, pagination.Body("appointments", pagination.Slice(items, pg), len(items), pg))
}
