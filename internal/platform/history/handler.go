package history

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/platform/apperr"
	"github.com/hms/hms/internal/platform/auth"
)

// Scope reports whether a may see the record identified by id, returning
// the same errors a direct read of that record would.
type Scope func(ctx context.Context, a *auth.Actor, id string) error

// Scopes maps each resource with a history endpoint to its record-level check.
type Scopes map[auth.Resource]Scope

type Handler struct {
	recorder *Recorder
	scopes   Scopes
	logger   zerolog.Logger
}

func NewHandler(recorder *Recorder, scopes Scopes, logger zerolog.Logger) *Handler {
	return &Handler{recorder: recorder, scopes: scopes, logger: logger}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/history/:resource/:id", h.List)
}

// List requires view permission on the resource named in the path and
// access to the record itself.
func (h *Handler) List(c echo.Context) error {
	res, err := auth.ParseResource(c.Param("resource"))
	if err != nil || (res != auth.PatientResource && res != auth.AppointmentResource && res != auth.VitalsResource) {
		return apperr.Field("resource", "must be one of patient, appointment, vitals")
	}
	if err := auth.Check(c, h.logger, auth.Perm(auth.View, res)); err != nil {
		return err
	}
	a, _ := auth.ActorFromContext(c.Request().Context())
	scope, ok := h.scopes[res]
	if !ok {
		return apperr.Permission("history is not available for " + res.String())
	}
	if err := scope(c.Request().Context(), a, c.Param("id")); err != nil {
		return err
	}
	records, err := h.recorder.List(c.Request().Context(), res.String(), c.Param("id"))
	if err != nil {
		return err
	}
	if records == nil {
		records = []*Record{}
	}
	return c.JSON(http.StatusOK, map[string]any{"history": records})
}
