package httpserver

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/cleanshop/internal/service"
	"github.com/Skotchmaster/cleanshop/internal/transport"
	"github.com/Skotchmaster/cleanshop/pkg/logging"
)

type AuthHTTP struct {
	Svc           *service.AuthService
	SecureCookies bool
}

// reasonStatus maps a soft failure reason onto an HTTP status.
func reasonStatus(reason error) int {
	switch {
	case reason == nil:
		return http.StatusOK
	case errors.Is(reason, service.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(reason, service.ErrUnknownUser),
		errors.Is(reason, service.ErrInvalidCredentials),
		errors.Is(reason, service.ErrTokenNotRecognized),
		errors.Is(reason, service.ErrTokenNotActive):
		return http.StatusUnauthorized
	case errors.Is(reason, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(reason, service.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func internalError(l *slog.Logger, event string, err error) error {
	l.Error(event, "status", 500, "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}

func (h *AuthHTTP) Register(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.register")

	var req transport.RegisterRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("register_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	res, err := h.Svc.Register(ctx, req.Username, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return internalError(l, "register_error", err)
	}

	return c.JSON(reasonStatus(res.Reason), res)
}

func (h *AuthHTTP) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.login")

	var req transport.LoginRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("login_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	res, err := h.Svc.Login(ctx, req.Username, req.Password)
	if err != nil {
		return internalError(l, "login_error", err)
	}
	return h.authResponse(c, res)
}

func (h *AuthHTTP) Refresh(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.refresh")

	var req transport.RefreshRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("refresh_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.RefreshToken == "" {
		if ck, err := c.Cookie(refreshCookie); err == nil {
			// the cookie rides along on any browser request, so only trust it same-origin
			if crossOrigin(c.Request()) {
				l.Warn("refresh_error", "status", 403, "reason", "cross-origin cookie refresh")
				return echo.NewHTTPError(http.StatusForbidden, "invalid origin")
			}
			req.RefreshToken = ck.Value
		}
	}

	res, err := h.Svc.Refresh(ctx, req.RefreshToken)
	if err != nil {
		return internalError(l, "refresh_error", err)
	}
	return h.authResponse(c, res)
}

func (h *AuthHTTP) AddRole(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.add_role")

	var req transport.AddRoleRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("add_role_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	res, err := h.Svc.AddRole(ctx, req.Username, req.Password, req.Role)
	if err != nil {
		return internalError(l, "add_role_error", err)
	}
	return c.JSON(reasonStatus(res.Reason), res)
}

func (h *AuthHTTP) authResponse(c echo.Context, res *transport.AuthResult) error {
	if !res.IsAuthenticated {
		return c.JSON(reasonStatus(res.Reason), res)
	}
	if res.RefreshTokenExpiration != nil {
		c.SetCookie(CreateCookie(refreshCookie, res.RefreshToken, refreshCookiePath, *res.RefreshTokenExpiration, h.SecureCookies))
	}
	return c.JSON(http.StatusOK, res)
}
