package clinical

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/platform/apperr"
	"github.com/hms/hms/internal/platform/auth"
)

func newServer(f *fixture, a *auth.Actor) *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = apperr.HTTPErrorHandler(zerolog.Nop())
	api := e.Group("/api/v1", func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.SetRequest(c.Request().WithContext(auth.WithActor(c.Request().Context(), a)))
			return next(c)
		}
	})
	NewHandler(f.svc, zerolog.Nop()).RegisterRoutes(api)
	return e
}

func do(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHandler_Lifecycle(t *testing.T) {
	f := newFixture(t)
	e := newServer(f, nurse)
	path := "/api/v1/appointments/" + f.appointment.String() + "/vitals"

	if rec := do(e, http.MethodGet, path, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before recording, got %d", rec.Code)
	}

	rec := do(e, http.MethodPost, path, `{"temperature":102,"height":180,"weight":81,"blood_pressure":"120/80","bmi":99}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var v Vitals
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatal(err)
	}
	assertFloat(t, "bmi", v.BMI, f64(25))
	assertFloat(t, "temperature", v.Temperature, f64(38.89))

	rec = do(e, http.MethodPost, path, `{"weight":80}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 on second record, got %d", rec.Code)
	}
	var body apperr.Body
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if !body.Conflict {
		t.Errorf("expected conflict flag: %+v", body)
	}

	rec = do(e, http.MethodPatch, path, `{"heart_rate":72}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"heart_rate":72`) {
		t.Errorf("patch not applied: %s", rec.Body.String())
	}
}

func TestHandler_Permissions(t *testing.T) {
	f := newFixture(t)
	basic := &auth.Actor{ID: uuid.New(), UserType: auth.Nurse, RoleLevel: auth.Basic}
	e := newServer(f, basic)
	path := "/api/v1/appointments/" + f.appointment.String() + "/vitals"

	if rec := do(e, http.MethodPost, path, `{"weight":70}`); rec.Code != http.StatusForbidden {
		t.Errorf("basic nurse cannot add vitals, got %d", rec.Code)
	}
	if rec := do(e, http.MethodGet, "/api/v1/appointments/not-a-uuid/vitals", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad id, got %d", rec.Code)
	}
	receptionist := &auth.Actor{ID: uuid.New(), UserType: auth.Receptionist, RoleLevel: auth.Senior}
	if rec := do(newServer(f, receptionist), http.MethodGet, path, ""); rec.Code != http.StatusForbidden {
		t.Errorf("receptionists have no vitals permission, got %d", rec.Code)
	}
}
