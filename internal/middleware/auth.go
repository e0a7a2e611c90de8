package middleware

import (
	"errors"
	"net/http"
	"strings"

	"iot-measurement-backend/internal/models"
	"iot-measurement-backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

const (
	ContextUserID    = "userID"
	ContextRole      = "role"
	ContextRequestID = "requestID"
)

var errMalformedAuthorization = errors.New("malformed authorization header")

// AccessTokenVerifier checks a signed access token and returns its claims.
type AccessTokenVerifier interface {
	Verify(token string) (*utils.Claims, error)
}

// AuthMiddleware validates JWT access token from Authorization header
func AuthMiddleware(verifier AccessTokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			utils.ErrorResponse(c, http.StatusUnauthorized, "Authorization header required")
			c.Abort()
			return
		}

		claims, err := verifyAccessToken(verifier, authHeader)
		if errors.Is(err, errMalformedAuthorization) {
			utils.ErrorResponse(c, http.StatusUnauthorized, "Invalid authorization format. Use: Bearer <token>")
			c.Abort()
			return
		}
		if err != nil {
			utils.ErrorResponse(c, http.StatusUnauthorized, "Invalid or expired token")
			c.Abort()
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextRole, claims.Role)

		c.Next()
	}
}

// verifyAccessToken parses "Bearer <token>" and verifies the token. No store is consulted.
func verifyAccessToken(verifier AccessTokenVerifier, header string) (*utils.Claims, error) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return nil, errMalformedAuthorization
	}
	return verifier.Verify(strings.TrimSpace(parts[1]))
}

// RequireAdmin checks if the authenticated user has admin role
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, exists := c.Get(ContextRole)
		if !exists {
			utils.ErrorResponse(c, http.StatusUnauthorized, "Authentication required")
			c.Abort()
			return
		}

		if role != models.RoleAdmin {
			utils.ErrorResponse(c, http.StatusForbidden, "Admin access required")
			c.Abort()
			return
		}

		c.Next()
	}
}

// CurrentUserID returns the authenticated user set by AuthMiddleware.
func CurrentUserID(c *gin.Context) (uint, bool) {
	v, ok := c.Get(ContextUserID)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok && id != 0
}

// RequestIDFrom returns the id assigned by RequestID, if any.
func RequestIDFrom(c *gin.Context) string {
	return c.GetString(ContextRequestID)
}
