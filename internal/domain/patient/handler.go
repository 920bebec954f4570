package patient

import (
	"net/http"

	"github.com/google/uuid"
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
	api.GET("/patients", h.List, auth.Require(h.logger, auth.ViewPatient))
	api.GET("/patients/:patient_id", h.Get, auth.Require(h.logger, auth.ViewPatient))
	api.POST("/patients", h.Create, auth.Require(h.logger, auth.AddPatient))
	api.PUT("/patients/:patient_id", h.Update, auth.Require(h.logger, auth.ChangePatient))
}

func actor(c echo.Context) (*auth.Actor, error) {
	a, ok := auth.ActorFromContext(c.Request().Context())
	if !ok {
		return nil, apperr.Unauthorized("authentication required")
	}
	return a, nil
}

func (h *Handler) Create(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	var in Input
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	p, err := h.svc.Create(c.Request().Context(), a, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) Get(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	p, err := h.svc.Get(c.Request().Context(), a, c.Param("patient_id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) List(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	f := ListFilter{AdmissionType: c.QueryParam("admission_type")}
	if v := c.QueryParam("primary_doctor_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return apperr.Field("primary_doctor_id", "invalid id")
		}
		f.PrimaryDoctorID = &id
	}
	pg := pagination.FromContext(c, h.limits)
	patients, total, err := h.svc.List(c.Request().Context(), a, f, pg.Limit(), pg.Offset())
	if err != nil {
		return err
	}
	if patients == nil {
		patients = []*Patient{}
	}
	return c.JSON(http.StatusOK, pagination.Body("patients", patients, total, pg))
}

func (h *Handler) Update(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	var in Input
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	p, err := h.svc.Update(c.Request().Context(), a, c.Param("patient_id"), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}
