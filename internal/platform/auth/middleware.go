package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/platform/apperr"
)

// CookieName carries the access token for browser clients.
const CookieName = "access_token"

// tokenFromRequest prefers the Authorization header over the cookie.
func tokenFromRequest(r *http.Request) (string, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
			return "", apperr.Unauthorized("invalid authorization format")
		}
		return strings.TrimSpace(token), nil
	}
	if ck, err := r.Cookie(CookieName); err == nil && ck.Value != "" {
		return ck.Value, nil
	}
	return "", apperr.Unauthorized("missing credentials")
}

// JWTMiddleware authenticates every request and stores the Actor in the
// request context. Revoked token ids are rejected.
func JWTMiddleware(issuer *TokenIssuer, revoked *RevocationList, logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tokenStr, err := tokenFromRequest(c.Request())
			if err != nil {
				return err
			}

			actor, err := issuer.Parse(tokenStr)
			if err != nil {
				logger.Debug().Err(err).Msg("token rejected")
				return apperr.Unauthorized("invalid token")
			}

			if revoked != nil {
				isRevoked, err := revoked.IsRevoked(c.Request().Context(), actor.TokenID)
				if err != nil {
					return err
				}
				if isRevoked {
					return apperr.Unauthorized("token revoked")
				}
			}

			setActor(c, actor)
			return next(c)
		}
	}
}

// DevActor is injected by DevAuthMiddleware for unauthenticated requests.
var DevActor = &Actor{
	ID:          uuid.MustParse("00000000-0000-0000-0000-000000000001"),
	Username:    "dev",
	Name:        "Development User",
	UserType:    Admin,
	RoleLevel:   Senior,
	IsSuperuser: true,
	IsStaff:     true,
}

// DevAuthMiddleware lets requests without credentials through as DevActor.
// Requests that do carry a token are still verified.
func DevAuthMiddleware(issuer *TokenIssuer, revoked *RevocationList, logger zerolog.Logger) echo.MiddlewareFunc {
	strict := JWTMiddleware(issuer, revoked, logger)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		verified := strict(next)
		return func(c echo.Context) error {
			r := c.Request()
			_, cookieErr := r.Cookie(CookieName)
			if r.Header.Get("Authorization") == "" && cookieErr != nil {
				setActor(c, DevActor)
				return next(c)
			}
			return verified(c)
		}
	}
}

func setActor(c echo.Context, a *Actor) {
	c.SetRequest(c.Request().WithContext(WithActor(c.Request().Context(), a)))
	c.Set("actor", a)
}

// TokenCookie builds the cookie holding an access token.
func TokenCookie(token string, expiresAt time.Time, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// ExpiredCookie clears the access token cookie.
func ExpiredCookie(secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}
