package handler

import (
	"errors"
	"net/http"

	"iot-measurement-backend/internal/middleware"
	"iot-measurement-backend/internal/service"
	pkglog "iot-measurement-backend/pkg/log"
	"iot-measurement-backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

const (
	msgInvalidBody        = "Invalid request body"
	msgValidationFailed   = "Validation failed"
	msgInvalidCredentials = "Invalid credentials"
	msgInvalidRefresh     = "Invalid or expired refresh token"
	msgInvalidReset       = "Invalid or expired token"
	msgInternal           = "Internal server error"
)

// respondError maps service errors onto the response envelope. Anything unrecognised is
// logged and answered with an opaque 500.
func respondError(c *gin.Context, logger pkglog.Logger, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		utils.ValidationErrorResponse(c, msgValidationFailed, verr.Fields)
	case errors.Is(err, service.ErrEmailTaken), errors.Is(err, service.ErrUsernameTaken):
		utils.ErrorResponse(c, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrInvalidCredentials):
		utils.ErrorResponse(c, http.StatusUnauthorized, msgInvalidCredentials)
	case errors.Is(err, service.ErrInvalidRefreshToken):
		utils.ErrorResponse(c, http.StatusUnauthorized, msgInvalidRefresh)
	case errors.Is(err, service.ErrInvalidResetToken):
		utils.ErrorResponse(c, http.StatusUnauthorized, msgInvalidReset)
	case errors.Is(err, service.ErrUserNotFound):
		utils.ErrorResponse(c, http.StatusNotFound, "User not found")
	default:
		logger.Error().Err(err).
			Str("request_id", middleware.RequestIDFrom(c)).
			Str("path", c.FullPath()).
			Msg("request failed")
		utils.ErrorResponse(c, http.StatusInternalServerError, msgInternal)
	}
}

func clientMeta(c *gin.Context) service.ClientMeta {
	return service.ClientMeta{
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		RequestID: middleware.RequestIDFrom(c),
	}
}

// currentUser aborts with 401 when AuthMiddleware did not run.
func currentUser(c *gin.Context) (uint, bool) {
	id, ok := middleware.CurrentUserID(c)
	if !ok {
		utils.ErrorResponse(c, http.StatusUnauthorized, "User not authenticated")
		return 0, false
	}
	return id, true
}
