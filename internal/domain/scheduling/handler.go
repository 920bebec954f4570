package scheduling

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/platform/apperr"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/ist"
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
	view := auth.Require(h.logger, auth.ViewAppointment)
	change := auth.Require(h.logger, auth.ChangeAppointment)

	api.POST("/appointments", h.Create, auth.Require(h.logger, auth.AddAppointment))
	api.GET("/appointments", h.List, view)
	api.POST("/appointments/cancel", h.Cancel, change)
	api.POST("/appointments/reschedule", h.Reschedule, change)
	api.GET("/appointments/:id", h.Get, view)
	api.PUT("/appointments/:id", h.Update, change)
	api.GET("/appointments/:id/history", h.History, view)
}

func actor(c echo.Context) (*auth.Actor, error) {
	a, ok := auth.ActorFromContext(c.Request().Context())
	if !ok {
		return nil, apperr.Unauthorized("authentication required")
	}
	return a, nil
}

func paramID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func queryUUID(c echo.Context, name string) (*uuid.UUID, error) {
	v := c.QueryParam(name)
	if v == "" {
		return nil, nil
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return nil, apperr.Field(name, "invalid id")
	}
	return &id, nil
}

func (h *Handler) Create(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	var in CreateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	appt, err := h.svc.Create(c.Request().Context(), a, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, appt)
}

func (h *Handler) Get(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	id, err := paramID(c)
	if err != nil {
		return err
	}
	appt, err := h.svc.Get(c.Request().Context(), a, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, appt)
}

func (h *Handler) List(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	f := ListFilter{Status: c.QueryParam("status")}
	if f.PatientID, err = queryUUID(c, "patient_id"); err != nil {
		return err
	}
	if f.DoctorID, err = queryUUID(c, "doctor_id"); err != nil {
		return err
	}
	if v := c.QueryParam("date"); v != "" {
		day, err := ist.ParseDate(v)
		if err != nil {
			return apperr.Field("date", "expected YYYY-MM-DD")
		}
		from, to := ist.DayBounds(day)
		f.From, f.To = &from, &to
	}

	pg := pagination.FromContext(c, h.limits)
	appts, total, err := h.svc.List(c.Request().Context(), a, f, pg.Limit(), pg.Offset())
	if err != nil {
		return err
	}
	if appts == nil {
		appts = []*Appointment{}
	}
	return c.JSON(http.StatusOK, pagination.Body("appointments", appts, total, pg))
}

func (h *Handler) Update(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	id, err := paramID(c)
	if err != nil {
		return err
	}
	var in UpdateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	appt, err := h.svc.Update(c.Request().Context(), a, id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, appt)
}

func (h *Handler) Cancel(c echo.Context) error {
	return h.bulk(c, h.svc.Cancel)
}

func (h *Handler) Reschedule(c echo.Context) error {
	return h.bulk(c, h.svc.Reschedule)
}

func (h *Handler) bulk(c echo.Context, op func(ctx context.Context, a *auth.Actor, in BulkInput) (BulkResult, error)) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	var in BulkInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	res, err := op(c.Request().Context(), a, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) History(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	id, err := paramID(c)
	if err != nil {
		return err
	}
	records, err := h.svc.History(c.Request().Context(), a, id)
	if err != nil {
		return err
	}
	if records == nil {
		records = []*MonitoredAppointment{}
	}
	return c.JSON(http.StatusOK, map[string]any{"history": records})
}
