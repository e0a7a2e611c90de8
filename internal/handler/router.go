package handler

import (
	"net/http"

	"iot-measurement-backend/internal/config"
	"iot-measurement-backend/internal/middleware"
	pkglog "iot-measurement-backend/pkg/log"
	"iot-measurement-backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

type RouterDeps struct {
	Auth      *AuthHandler
	Audit     *AuditHandler
	Verifier  middleware.AccessTokenVerifier
	Limiter   *middleware.RateLimiter
	RateLimit config.RateLimitConfig
	CORS      config.CORSConfig
	Metrics   http.Handler
	Logger    pkglog.Logger
}

// NewRouter builds the gin engine with every route of the service.
func NewRouter(d RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestID(), middleware.RequestLogger(d.Logger), middleware.CORS(d.CORS))

	r.GET("/health", func(c *gin.Context) {
		utils.SuccessResponse(c, gin.H{
			"status":  "healthy",
			"service": "iot-measurement-backend",
		})
	})
	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics))
	}

	requireAuth := middleware.AuthMiddleware(d.Verifier)

	auth := r.Group("/auth")
	{
		auth.POST("/register", d.Auth.Register)
		auth.POST("/login", d.Limiter.Policy("login", d.RateLimit.LoginMax), d.Auth.Login)
		auth.POST("/refresh", d.Limiter.Policy("refresh", d.RateLimit.RefreshMax), d.Auth.Refresh)
		auth.POST("/forgot-password", d.Limiter.Policy("forgot_password", d.RateLimit.ForgotPwdMax), d.Auth.ForgotPassword)
		auth.POST("/reset-password", d.Auth.ResetPassword)

		auth.POST("/logout", requireAuth, d.Auth.Logout)
		auth.GET("/me", requireAuth, d.Auth.Me)
	}

	users := r.Group("/users")
	users.Use(requireAuth)
	{
		users.DELETE("/me", d.Auth.DeleteAccount)
	}

	admin := r.Group("/admin")
	admin.Use(requireAuth, middleware.RequireAdmin())
	{
		admin.GET("/audit-logs", d.Audit.List)
	}

	return r
}
