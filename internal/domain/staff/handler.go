package staff

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hms/hms/internal/platform/apperr"
	"github.com/hms/hms/internal/platform/auth"
)

type Handler struct {
	svc           *Service
	secureCookies bool
}

func NewHandler(svc *Service, secureCookies bool) *Handler {
	return &Handler{svc: svc, secureCookies: secureCookies}
}

// RegisterRoutes mounts the login endpoints on public and everything else on
// the authenticated api group.
func (h *Handler) RegisterRoutes(public, api *echo.Group) {
	public.POST("/auth/login", h.Login)
	public.POST("/auth/otp", h.RequestOTP)
	public.POST("/auth/otp/verify", h.VerifyOTP)

	api.POST("/auth/logout", h.Logout)
	api.GET("/auth/profile", h.Profile)
	api.POST("/staff", h.CreateStaff)
	api.GET("/doctors", h.ListDoctors)
}

func actor(c echo.Context) (*auth.Actor, error) {
	a, ok := auth.ActorFromContext(c.Request().Context())
	if !ok {
		return nil, apperr.Unauthorized("authentication required")
	}
	return a, nil
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) respondSession(c echo.Context, sess *Session) error {
	c.SetCookie(auth.TokenCookie(sess.Token, sess.ExpiresAt, h.secureCookies))
	return c.JSON(http.StatusOK, sess)
}

func (h *Handler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	sess, err := h.svc.Login(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		return err
	}
	return h.respondSession(c, sess)
}

type otpRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

func (h *Handler) RequestOTP(c echo.Context) error {
	var req otpRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.svc.RequestOTP(c.Request().Context(), req.Email); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "if the address is registered, a code has been sent"})
}

func (h *Handler) VerifyOTP(c echo.Context) error {
	var req otpRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	sess, err := h.svc.VerifyOTP(c.Request().Context(), req.Email, req.Code)
	if err != nil {
		return err
	}
	return h.respondSession(c, sess)
}

func (h *Handler) Logout(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	if err := h.svc.Logout(c.Request().Context(), a); err != nil {
		return err
	}
	c.SetCookie(auth.ExpiredCookie(h.secureCookies))
	return c.JSON(http.StatusOK, map[string]string{"message": "logged out"})
}

func (h *Handler) Profile(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	p, err := h.svc.Profile(c.Request().Context(), a)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) CreateStaff(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	var in CreateStaffInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	u, err := h.svc.CreateStaff(c.Request().Context(), a, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, u)
}

func (h *Handler) ListDoctors(c echo.Context) error {
	doctors, err := h.svc.ListDoctors(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"doctors": doctors})
}
