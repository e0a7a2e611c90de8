package handler

import (
	"errors"
	"io"
	"net/http"
	"time"

	"iot-measurement-backend/internal/service"
	pkglog "iot-measurement-backend/pkg/log"
	"iot-measurement-backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

const (
	refreshCookieName = "refresh_token"
	refreshCookiePath = "/auth"

	msgForgotPassword = "If that email is registered, a reset link has been sent"
)

// CookieOptions controls the HttpOnly refresh-token cookie.
type CookieOptions struct {
	MaxAge time.Duration
	Secure bool
}

type AuthHandler struct {
	authService *service.AuthService
	cookie      CookieOptions
	logger      pkglog.Logger
}

func NewAuthHandler(authService *service.AuthService, cookie CookieOptions, logger pkglog.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		cookie:      cookie,
		logger:      logger,
	}
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// Register handles user registration
func (h *AuthHandler) Register(c *gin.Context) {
	var req service.RegisterInput
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, msgInvalidBody)
		return
	}

	result, err := h.authService.Register(c.Request.Context(), clientMeta(c), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.setRefreshCookie(c, result.RefreshToken)
	utils.CreatedResponse(c, result)
}

// Login handles user authentication
func (h *AuthHandler) Login(c *gin.Context) {
	var req service.LoginInput
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, msgInvalidBody)
		return
	}

	result, err := h.authService.Login(c.Request.Context(), clientMeta(c), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.setRefreshCookie(c, result.RefreshToken)
	utils.SuccessResponse(c, result)
}

// Refresh rotates the refresh token taken from the body or, failing that, the cookie.
func (h *AuthHandler) Refresh(c *gin.Context) {
	raw, ok := h.refreshTokenFromRequest(c)
	if !ok {
		return
	}

	pair, err := h.authService.Refresh(c.Request.Context(), clientMeta(c), raw)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRefreshToken) {
			h.clearRefreshCookie(c)
		}
		respondError(c, h.logger, err)
		return
	}

	h.setRefreshCookie(c, pair.RefreshToken)
	utils.SuccessResponse(c, pair)
}

// Logout revokes the refresh token
func (h *AuthHandler) Logout(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	raw, ok := h.refreshTokenFromRequest(c)
	if !ok {
		return
	}

	if err := h.authService.Logout(c.Request.Context(), clientMeta(c), userID, raw); err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.clearRefreshCookie(c)
	utils.MessageResponse(c, "Logged out successfully")
}

// ForgotPassword answers identically whether or not the email is registered.
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, msgInvalidBody)
		return
	}

	if err := h.authService.ForgotPassword(c.Request.Context(), clientMeta(c), req.Email); err != nil {
		respondError(c, h.logger, err)
		return
	}

	utils.MessageResponse(c, msgForgotPassword)
}

func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, msgInvalidBody)
		return
	}

	if err := h.authService.ResetPassword(c.Request.Context(), clientMeta(c), req.Token, req.Password); err != nil {
		respondError(c, h.logger, err)
		return
	}

	utils.MessageResponse(c, "Password has been reset. Please log in again")
}

// Me returns the authenticated user's profile
func (h *AuthHandler) Me(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	user, err := h.authService.Me(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	utils.SuccessResponse(c, user)
}

// DeleteAccount removes the authenticated user and every session it holds
func (h *AuthHandler) DeleteAccount(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	if err := h.authService.DeleteAccount(c.Request.Context(), clientMeta(c), userID); err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.clearRefreshCookie(c)
	utils.MessageResponse(c, "Account deleted successfully")
}

// refreshTokenFromRequest reads an optional JSON body and falls back to the cookie.
func (h *AuthHandler) refreshTokenFromRequest(c *gin.Context) (string, bool) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		utils.ErrorResponse(c, http.StatusBadRequest, msgInvalidBody)
		return "", false
	}
	if req.RefreshToken == "" {
		if cookie, err := c.Cookie(refreshCookieName); err == nil {
			req.RefreshToken = cookie
		}
	}
	return req.RefreshToken, true
}

func (h *AuthHandler) setRefreshCookie(c *gin.Context, value string) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(refreshCookieName, value, int(h.cookie.MaxAge.Seconds()), refreshCookiePath, "", h.cookie.Secure, true)
}

func (h *AuthHandler) clearRefreshCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(refreshCookieName, "", -1, refreshCookiePath, "", h.cookie.Secure, true)
}
