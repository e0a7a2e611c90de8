package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"iot-measurement-backend/internal/models"
	"iot-measurement-backend/internal/repository"
	pkglog "iot-measurement-backend/pkg/log"
	"iot-measurement-backend/pkg/utils"

	"github.com/go-playground/validator/v10"
)

type AuthDeps struct {
	Users   UserStore
	Refresh RefreshTokenStore
	Resets  ResetTokenStore
	Signer  TokenSigner
	Hasher  PasswordHasher
	Mailer  Mailer
	Audit   AuditSink
	Logger  pkglog.Logger
}

type AuthOptions struct {
	AccessTTL      time.Duration
	RefreshTTL     time.Duration
	ResetTTL       time.Duration
	ResetURLBase   string
	ReuseDetection bool
}

// rotationRaceWindow is how long after a rotation a second presentation of the
// retired secret counts as a concurrent duplicate rather than reuse. The secret
// is rejected either way; only family revocation is skipped.
const rotationRaceWindow = 2 * time.Second

// AuthService owns the session lifecycle: registration, login, refresh-token
// rotation, logout and password reset.
type AuthService struct {
	users    UserStore
	refresh  RefreshTokenStore
	resets   ResetTokenStore
	signer   TokenSigner
	hasher   PasswordHasher
	mailer   Mailer
	audit    AuditSink
	logger   pkglog.Logger
	opts     AuthOptions
	validate *validator.Validate
	now      func() time.Time
}

func NewAuthService(deps AuthDeps, opts AuthOptions) *AuthService {
	return &AuthService{
		users:    deps.Users,
		refresh:  deps.Refresh,
		resets:   deps.Resets,
		signer:   deps.Signer,
		hasher:   deps.Hasher,
		mailer:   deps.Mailer,
		audit:    deps.Audit,
		logger:   deps.Logger,
		opts:     opts,
		validate: newValidator(),
		now:      time.Now,
	}
}

// ClientMeta describes the caller of an operation for audit purposes.
type ClientMeta struct {
	IP        string
	UserAgent string
	RequestID string
}

type UserResponse struct {
	ID            uint       `json:"id"`
	Username      string     `json:"username"`
	Email         string     `json:"email"`
	Role          string     `json:"role"`
	EmailVerified bool       `json:"emailVerified"`
	LastLoginAt   *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

func NewUserResponse(u *models.User) UserResponse {
	return UserResponse{
		ID:            u.ID,
		Username:      u.Username,
		Email:         u.Email,
		Role:          u.Role,
		EmailVerified: u.EmailVerified,
		LastLoginAt:   u.LastLoginAt,
		CreatedAt:     u.CreatedAt,
	}
}

// TokenPair is the only place a raw refresh secret ever leaves the service.
type TokenPair struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

type AuthResult struct {
	User UserResponse `json:"user"`
	TokenPair
}

// Register creates a user with the default role and signs them in.
func (s *AuthService) Register(ctx context.Context, meta ClientMeta, in RegisterInput) (*AuthResult, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = normalizeEmail(in.Email)
	if err := validateStruct(s.validate, in); err != nil {
		return nil, err
	}

	if _, err := s.users.FindByEmail(ctx, in.Email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if _, err := s.users.FindByUsername(ctx, in.Username); err == nil {
		return nil, ErrUsernameTaken
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to check username: %w", err)
	}

	passwordHash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: passwordHash,
		Role:         models.RoleUser,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			// Lost a race with a concurrent registration; report whichever field collided.
			if _, ferr := s.users.FindByEmail(ctx, in.Email); ferr == nil {
				return nil, ErrEmailTaken
			}
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	pair, err := s.issueTokenPair(ctx, meta, user)
	if err != nil {
		return nil, err
	}

	s.record(ctx, meta, &user.ID, models.ActionRegister, models.AuditStatusSuccess, "user", &user.ID,
		fmt.Sprintf("User %s registered", user.Username))

	return &AuthResult{User: NewUserResponse(user), TokenPair: *pair}, nil
}

// Login verifies an email-or-username plus password. Unknown identifiers and wrong
// passwords are indistinguishable to the caller; the audit log keeps the difference.
func (s *AuthService) Login(ctx context.Context, meta ClientMeta, in LoginInput) (*AuthResult, error) {
	in.Identifier = strings.TrimSpace(in.Identifier)
	if err := validateStruct(s.validate, in); err != nil {
		return nil, err
	}

	user, err := s.findByIdentifier(ctx, in.Identifier)
	if errors.Is(err, repository.ErrNotFound) {
		s.hasher.CompareDummy(in.Password)
		s.record(ctx, meta, nil, models.ActionLoginFailed, models.AuditStatusFailure, "", nil, "user_not_found")
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if !s.hasher.Compare(user.PasswordHash, in.Password) {
		s.record(ctx, meta, &user.ID, models.ActionLoginFailed, models.AuditStatusFailure, "user", &user.ID, "wrong_password")
		return nil, ErrInvalidCredentials
	}

	pair, err := s.issueTokenPair(ctx, meta, user)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	if err := s.users.TouchLastLogin(ctx, user.ID, now); err != nil {
		s.log(meta).Warn().Err(err).Uint("user_id", user.ID).Msg("failed to update last login")
	} else {
		user.LastLoginAt = &now
	}

	s.record(ctx, meta, &user.ID, models.ActionLogin, models.AuditStatusSuccess, "user", &user.ID,
		fmt.Sprintf("User %s logged in", user.Username))

	return &AuthResult{User: NewUserResponse(user), TokenPair: *pair}, nil
}

func (s *AuthService) findByIdentifier(ctx context.Context, identifier string) (*models.User, error) {
	if strings.Contains(identifier, "@") {
		return s.users.FindByEmail(ctx, normalizeEmail(identifier))
	}
	return s.users.FindByUsername(ctx, identifier)
}

// Refresh exchanges a refresh secret for a new pair and retires the presented one.
// Expired, revoked and unknown secrets all yield ErrInvalidRefreshToken.
func (s *AuthService) Refresh(ctx context.Context, meta ClientMeta, rawToken string) (*TokenPair, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return nil, fieldError("refreshToken", "refreshToken is required")
	}

	hash := utils.HashToken(rawToken)
	now := s.clock()

	token, err := s.refresh.FindActiveByHash(ctx, hash, now)
	if errors.Is(err, repository.ErrNotFound) {
		s.rejectRefresh(ctx, meta, hash, now)
		return nil, ErrInvalidRefreshToken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up refresh token: %w", err)
	}

	rotated, err := s.refresh.Revoke(ctx, token.ID, models.RevokedRotated, now)
	if err != nil {
		return nil, fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	if !rotated {
		// A concurrent request presenting the same secret rotated it first.
		s.record(ctx, meta, &token.UserID, models.ActionTokenRefresh, models.AuditStatusFailure,
			"refresh_token", &token.ID, "concurrent_rotation")
		return nil, ErrInvalidRefreshToken
	}

	user, err := s.users.FindByID(ctx, token.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInvalidRefreshToken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load token owner: %w", err)
	}

	pair, err := s.issueTokenPair(ctx, meta, user)
	if err != nil {
		return nil, err
	}

	s.record(ctx, meta, &user.ID, models.ActionTokenRefresh, models.AuditStatusSuccess, "refresh_token", &token.ID,
		"refresh token rotated")

	return pair, nil
}

// rejectRefresh audits a refresh attempt with no live token and, when the secret
// belongs to an already-rotated token, revokes every live token of its owner.
func (s *AuthService) rejectRefresh(ctx context.Context, meta ClientMeta, hash string, now time.Time) {
	stored, err := s.refresh.FindByHash(ctx, hash)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.log(meta).Warn().Err(err).Msg("failed to inspect rejected refresh token")
		}
		s.record(ctx, meta, nil, models.ActionTokenRefresh, models.AuditStatusFailure, "", nil, "unknown_token")
		return
	}

	rotated := stored.Revoked && stored.RevokedReason == models.RevokedRotated
	if rotated && stored.RevokedAt != nil && now.Sub(*stored.RevokedAt) < rotationRaceWindow {
		// Duplicate submit racing the rotation that just succeeded.
		s.record(ctx, meta, &stored.UserID, models.ActionTokenRefresh, models.AuditStatusFailure,
			"refresh_token", &stored.ID, "concurrent_rotation")
		return
	}

	reuse := s.opts.ReuseDetection && rotated && now.Before(stored.ExpiresAt)
	if !reuse {
		details := "expired"
		if stored.Revoked {
			details = "revoked:" + stored.RevokedReason
		}
		s.record(ctx, meta, &stored.UserID, models.ActionTokenRefresh, models.AuditStatusFailure,
			"refresh_token", &stored.ID, details)
		return
	}

	n, err := s.refresh.RevokeAllForUser(ctx, stored.UserID, models.RevokedReuseDetected, now)
	if err != nil {
		s.log(meta).Error().Err(err).Uint("user_id", stored.UserID).Msg("failed to revoke token family after reuse")
		s.record(ctx, meta, &stored.UserID, models.ActionRefreshTokenReuse, models.AuditStatusFailure,
			"refresh_token", &stored.ID, "reuse detected; family revocation failed")
		return
	}
	s.log(meta).Warn().Uint("user_id", stored.UserID).Int64("revoked", n).Msg("rotated refresh token reused")
	s.record(ctx, meta, &stored.UserID, models.ActionRefreshTokenReuse, models.AuditStatusFailure,
		"refresh_token", &stored.ID, fmt.Sprintf("reuse detected; revoked %d live tokens", n))
}

// Logout revokes the caller's refresh token. It succeeds whether or not a live session matched.
func (s *AuthService) Logout(ctx context.Context, meta ClientMeta, userID uint, rawToken string) error {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return fieldError("refreshToken", "refreshToken is required")
	}

	revoked, err := s.refresh.RevokeByHashForUser(ctx, utils.HashToken(rawToken), userID, models.RevokedLogout, s.clock())
	if err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}

	details := "session revoked"
	if !revoked {
		details = "no live session matched"
	}
	s.record(ctx, meta, &userID, models.ActionLogout, models.AuditStatusSuccess, "user", &userID, details)
	return nil
}

// ForgotPassword issues a reset token for a registered email. Callers must answer
// the same way whatever happens here, so only lookup failures are returned.
func (s *AuthService) ForgotPassword(ctx context.Context, meta ClientMeta, email string) error {
	in := forgotPasswordInput{Email: normalizeEmail(email)}
	if err := validateStruct(s.validate, in); err != nil {
		return err
	}

	user, err := s.users.FindByEmail(ctx, in.Email)
	if errors.Is(err, repository.ErrNotFound) {
		s.record(ctx, meta, nil, models.ActionPasswordResetRequest, models.AuditStatusFailure, "", nil, "unknown_email")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to look up user: %w", err)
	}

	if err := s.issueResetToken(ctx, user); err != nil {
		s.log(meta).Error().Err(err).Uint("user_id", user.ID).Msg("password reset request failed")
		s.record(ctx, meta, &user.ID, models.ActionPasswordResetRequest, models.AuditStatusFailure, "user", &user.ID,
			err.Error())
		return nil
	}

	s.record(ctx, meta, &user.ID, models.ActionPasswordResetRequest, models.AuditStatusSuccess, "user", &user.ID,
		"reset link sent")
	return nil
}

func (s *AuthService) issueResetToken(ctx context.Context, user *models.User) error {
	now := s.clock()
	if _, err := s.resets.InvalidateAllUnusedForUser(ctx, user.ID, now); err != nil {
		return fmt.Errorf("invalidate previous reset tokens: %w", err)
	}

	raw, err := utils.GenerateSecret()
	if err != nil {
		return err
	}
	token := &models.PasswordResetToken{
		UserID:    user.ID,
		TokenHash: utils.HashToken(raw),
		ExpiresAt: now.Add(s.opts.ResetTTL),
	}
	if err := s.resets.Create(ctx, token); err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}

	link := s.opts.ResetURLBase + "?token=" + url.QueryEscape(raw)
	body := fmt.Sprintf("Hello %s,\n\nUse the following link to reset your password. It expires in %d minutes.\n\n%s\n\n"+
		"If you did not request a password reset you can ignore this email.\n",
		user.Username, int(s.opts.ResetTTL.Minutes()), link)
	if err := s.mailer.Send(ctx, user.Email, "Password Reset", body); err != nil {
		return fmt.Errorf("mail dispatch failed: %w", err)
	}
	return nil
}

// ResetPassword consumes a reset token, replaces the password and revokes every
// refresh token the user holds.
func (s *AuthService) ResetPassword(ctx context.Context, meta ClientMeta, rawToken, newPassword string) error {
	in := resetPasswordInput{Token: strings.TrimSpace(rawToken), Password: newPassword}
	if err := validateStruct(s.validate, in); err != nil {
		return err
	}

	passwordHash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.clock()
	token, err := s.resets.Consume(ctx, utils.HashToken(in.Token), now)
	if errors.Is(err, repository.ErrNotFound) {
		s.record(ctx, meta, nil, models.ActionPasswordReset, models.AuditStatusFailure, "", nil, "invalid_or_expired_token")
		return ErrInvalidResetToken
	}
	if err != nil {
		return fmt.Errorf("failed to consume reset token: %w", err)
	}

	if err := s.users.UpdatePassword(ctx, token.UserID, passwordHash); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidResetToken
		}
		s.record(ctx, meta, &token.UserID, models.ActionPasswordReset, models.AuditStatusFailure,
			"password_reset_token", &token.ID, "token consumed; password update failed")
		return fmt.Errorf("failed to update password: %w", err)
	}

	n, err := s.refresh.RevokeAllForUser(ctx, token.UserID, models.RevokedPasswordReset, now)
	if err != nil {
		s.log(meta).Error().Err(err).Uint("user_id", token.UserID).Msg("password changed but sessions were not revoked")
		s.record(ctx, meta, &token.UserID, models.ActionPasswordReset, models.AuditStatusFailure,
			"password_reset_token", &token.ID, "password changed; session revocation failed")
		return fmt.Errorf("failed to revoke sessions: %w", err)
	}

	s.record(ctx, meta, &token.UserID, models.ActionPasswordReset, models.AuditStatusSuccess,
		"password_reset_token", &token.ID, fmt.Sprintf("password changed; revoked %d sessions", n))
	return nil
}

// Me returns the sanitized profile of an authenticated user.
func (s *AuthService) Me(ctx context.Context, userID uint) (*UserResponse, error) {
	user, err := s.users.FindByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	resp := NewUserResponse(user)
	return &resp, nil
}

// DeleteAccount removes the user and, in the same transaction, every token it owns.
func (s *AuthService) DeleteAccount(ctx context.Context, meta ClientMeta, userID uint) error {
	if err := s.users.DeleteWithTokens(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to delete account: %w", err)
	}
	s.record(ctx, meta, &userID, models.ActionAccountDelete, models.AuditStatusSuccess, "user", &userID, "account deleted")
	return nil
}

// issueTokenPair signs an access token and stores the hash of a fresh refresh secret.
func (s *AuthService) issueTokenPair(ctx context.Context, meta ClientMeta, user *models.User) (*TokenPair, error) {
	accessToken, expiresAt, err := s.signer.Sign(user.ID, user.Role, s.opts.AccessTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	raw, err := utils.GenerateSecret()
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	record := &models.RefreshToken{
		UserID:    user.ID,
		TokenHash: utils.HashToken(raw),
		ExpiresAt: s.clock().Add(s.opts.RefreshTTL),
		IPAddress: truncate(meta.IP, 64),
		UserAgent: truncate(meta.UserAgent, 255),
	}
	if err := s.refresh.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: raw,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *AuthService) record(ctx context.Context, meta ClientMeta, actor *uint, action, status, target string, targetID *uint, details string) {
	s.audit.Record(ctx, &models.AuditLog{
		ActorID:  actor,
		ActorIP:  truncate(meta.IP, 64),
		Action:   action,
		Target:   target,
		TargetID: targetID,
		Status:   status,
		Details:  details,
	})
}

func (s *AuthService) log(meta ClientMeta) *pkglog.Logger {
	l := pkglog.With(s.logger, pkglog.Fields{"request_id": meta.RequestID, "ip": meta.IP})
	return &l
}

func (s *AuthService) clock() time.Time {
	return s.now().UTC()
}

// truncate cuts v to at most n bytes without splitting a UTF-8 sequence.
func truncate(v string, n int) string {
	if len(v) <= n {
		return v
	}
	for n > 0 && !utf8.RuneStart(v[n]) {
		n--
	}
	return v[:n]
}
