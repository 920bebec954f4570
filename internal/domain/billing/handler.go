package billing

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
	api.GET("/services", h.ListServices, auth.Require(h.logger, auth.ViewService))
	api.GET("/services/search", h.SearchServices, auth.Require(h.logger, auth.ViewService))
	api.GET("/services/:id", h.GetService, auth.Require(h.logger, auth.ViewService))
	api.POST("/services", h.CreateService, auth.Require(h.logger, auth.AddService))
	api.PUT("/services/:id", h.UpdateService, auth.Require(h.logger, auth.ChangeService))
	api.DELETE("/services/:id", h.DeleteService, auth.Require(h.logger, auth.ChangeService))

	api.GET("/bills", h.ListBills, auth.Require(h.logger, auth.ViewBill))
	api.GET("/bills/:bill_id", h.GetBill, auth.Require(h.logger, auth.ViewBill))
	api.POST("/bills", h.CreateBill, auth.Require(h.logger, auth.AddBill))
	api.PUT("/bills/:bill_id", h.UpdateBill, auth.Require(h.logger, auth.ChangeBill))
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

func (h *Handler) CreateService(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	var in ServiceInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	s, err := h.svc.CreateService(c.Request().Context(), a, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, s)
}

func (h *Handler) GetService(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	s, err := h.svc.GetService(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) UpdateService(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	id, err := paramID(c)
	if err != nil {
		return err
	}
	var in ServiceInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	s, err := h.svc.UpdateService(c.Request().Context(), a, id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) DeleteService(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteService(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListServices(c echo.Context) error {
	return h.listServices(c, ServiceFilter{ActiveOnly: c.QueryParam("active") == "true"})
}

func (h *Handler) SearchServices(c echo.Context) error {
	return h.listServices(c, ServiceFilter{Query: c.QueryParam("q"), ActiveOnly: true})
}

func (h *Handler) listServices(c echo.Context, f ServiceFilter) error {
	pg := pagination.FromContext(c, h.limits)
	items, total, err := h.svc.ListServices(c.Request().Context(), f, pg.Limit(), pg.Offset())
	if err != nil {
		return err
	}
	if items == nil {
		items = []*MedicalService{}
	}
	return c.JSON(http.StatusOK, pagination.Body("services", items, total, pg))
}

func (h *Handler) CreateBill(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	var in BillInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	b, err := h.svc.CreateBill(c.Request().Context(), a, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, b)
}

func (h *Handler) GetBill(c echo.Context) error {
	b, err := h.svc.GetBill(c.Request().Context(), c.Param("bill_id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) UpdateBill(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	var in BillUpdate
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	b, err := h.svc.UpdateBill(c.Request().Context(), a, c.Param("bill_id"), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) ListBills(c echo.Context) error {
	pg := pagination.FromContext(c, h.limits)
	f := BillFilter{PaymentStatus: c.QueryParam("payment_status")}
	if v := c.QueryParam("patient_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return apperr.Field("patient_id", "invalid id")
		}
		f.PatientID = &id
	}
	bills, total, err := h.svc.ListBills(c.Request().Context(), f, pg.Limit(), pg.Offset())
	if err != nil {
		return err
	}
	if bills == nil {
		bills = []*Bill{}
	}
	return c.JSON(http.StatusOK, pagination.Body("bills", bills, total, pg))
}
