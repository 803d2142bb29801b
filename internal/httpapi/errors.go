package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"donorhub/backend/internal/identity/service"
	"donorhub/backend/internal/password"
)

// Error codes that are not tied to a service sentinel.
const (
	codeBadRequest  = "BAD_REQUEST"
	codeForbidden   = "FORBIDDEN"
	codeRateLimited = "RATE_LIMITED"
	codeInternal    = "INTERNAL"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// mapError returns the HTTP status, wire code and client-safe message for err.
func mapError(err error) (int, string, string) {
	var pe *password.PolicyError
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid email or password"
	case errors.Is(err, service.ErrAccountDeactivated):
		return http.StatusForbidden, "ACCOUNT_DEACTIVATED", "account is deactivated"
	case errors.Is(err, service.ErrInvalidToken):
		return http.StatusUnauthorized, "INVALID_TOKEN", "invalid or expired token"
	case errors.Is(err, service.ErrSessionExpired):
		return http.StatusUnauthorized, "SESSION_EXPIRED", "session expired"
	case errors.Is(err, service.ErrUserInactive):
		return http.StatusForbidden, "USER_INACTIVE", "user not found or inactive"
	case errors.Is(err, service.ErrEmailAlreadyRegistered):
		return http.StatusConflict, "EMAIL_TAKEN", "email already registered"
	case errors.Is(err, service.ErrInvalidEmail):
		return http.StatusBadRequest, "INVALID_EMAIL", "invalid email format"
	case errors.As(err, &pe) && errors.Is(err, password.ErrWeakPassword):
		return http.StatusBadRequest, "WEAK_PASSWORD", pe.Reason
	case errors.As(err, &pe) && errors.Is(err, password.ErrPasswordReused):
		return http.StatusBadRequest, "PASSWORD_REUSED", pe.Reason
	case errors.Is(err, password.ErrHistoryUnavailable):
		return http.StatusServiceUnavailable, "PASSWORD_HISTORY_UNAVAILABLE", "password change temporarily unavailable"
	default:
		return http.StatusInternalServerError, codeInternal, "internal error"
	}
}

func abortWithError(c *gin.Context, err error) {
	status, code, msg := mapError(err)
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
	}
	abortWithCode(c, status, code, msg)
}

func abortWithCode(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": errorBody{Code: code, Message: msg}})
}
