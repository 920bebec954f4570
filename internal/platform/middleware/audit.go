package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/platform/auth"
)

// AccessEntry describes one request touching patient data.
type AccessEntry struct {
	RequestID string
	ActorID   string
	Username  string
	UserType  string
	Resource  string
	Action    string
	Method    string
	Path      string
	RemoteIP  string
	Status    int
	Timestamp time.Time
}

// Audit logs one "phi_access" line per /api/v1 request after the handler ran.
func Audit(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !strings.HasPrefix(req.URL.Path, "/api/v1/") {
				return next(c)
			}

			err := next(c)

			entry := AccessEntry{
				Timestamp: time.Now().UTC(),
				Method:    req.Method,
				Path:      req.URL.Path,
				RemoteIP:  c.RealIP(),
				Status:    responseStatus(c, err),
				Resource:  resourceFromPath(req.URL.Path),
				Action:    actionFromMethod(req.Method),
			}
			entry.RequestID, _ = c.Get("request_id").(string)
			if a, ok := auth.ActorFromContext(req.Context()); ok {
				entry.ActorID = a.ID.String()
				entry.Username = a.Username
				entry.UserType = a.UserType.String()
			}

			logger.Info().
				Str("type", "phi_access").
				Str("request_id", entry.RequestID).
				Str("actor_id", entry.ActorID).
				Str("username", entry.Username).
				Str("user_type", entry.UserType).
				Str("resource", entry.Resource).
				Str("action", entry.Action).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Str("remote_ip", entry.RemoteIP).
				Int("status", entry.Status).
				Msg("phi_access")

			return err
		}
	}
}

func actionFromMethod(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}

// resourceFromPath returns the first segment after /api/v1/.
func resourceFromPath(path string) string {
	rest := strings.TrimPrefix(path, "/api/v1/")
	seg, _, _ := strings.Cut(rest, "/")
	if seg == "" {
		return "unknown"
	}
	return seg
}
