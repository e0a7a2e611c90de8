package service

import (
	"context"
	"time"

	"iot-measurement-backend/internal/models"
	"iot-measurement-backend/internal/repository"
	"iot-measurement-backend/pkg/utils"
)

// UserStore is the credential store.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	FindByID(ctx context.Context, id uint) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	UpdatePassword(ctx context.Context, id uint, passwordHash string) error
	TouchLastLogin(ctx context.Context, id uint, at time.Time) error
	DeleteWithTokens(ctx context.Context, id uint) error
}

type RefreshTokenStore interface {
	Create(ctx context.Context, token *models.RefreshToken) error
	FindActiveByHash(ctx context.Context, hash string, now time.Time) (*models.RefreshToken, error)
	FindByHash(ctx context.Context, hash string) (*models.RefreshToken, error)
	Revoke(ctx context.Context, id uint, reason string, now time.Time) (bool, error)
	RevokeByHashForUser(ctx context.Context, hash string, userID uint, reason string, now time.Time) (bool, error)
	RevokeAllForUser(ctx context.Context, userID uint, reason string, now time.Time) (int64, error)
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

type ResetTokenStore interface {
	Create(ctx context.Context, token *models.PasswordResetToken) error
	FindActiveByHash(ctx context.Context, hash string, now time.Time) (*models.PasswordResetToken, error)
	Consume(ctx context.Context, hash string, now time.Time) (*models.PasswordResetToken, error)
	InvalidateAllUnusedForUser(ctx context.Context, userID uint, now time.Time) (int64, error)
	DeleteStale(ctx context.Context, cutoff time.Time) (int64, error)
}

type AuditStore interface {
	CreateAuditLog(ctx context.Context, entry *models.AuditLog) error
	ListAuditLogs(ctx context.Context, f repository.AuditFilter) ([]models.AuditLog, int64, error)
}

// TokenSigner issues access tokens. Verification belongs to the HTTP middleware.
type TokenSigner interface {
	Sign(userID uint, role string, ttl time.Duration) (string, time.Time, error)
}

type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hashedPassword, password string) bool
	CompareDummy(password string) bool
}

//go:generate mockgen -destination=../mocks/mock_mailer.go -package=mocks iot-measurement-backend/internal/service Mailer,AuditPublisher

// Mailer delivers outbound mail.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// AuditPublisher is an optional best-effort fan-out of audit entries.
type AuditPublisher interface {
	Publish(ctx context.Context, entry *models.AuditLog) error
}

// AuditSink records security events. Record never fails from the caller's point of view.
type AuditSink interface {
	Record(ctx context.Context, entry *models.AuditLog)
}

var (
	_ UserStore         = (*repository.UserRepository)(nil)
	_ RefreshTokenStore = (*repository.RefreshTokenRepository)(nil)
	_ ResetTokenStore   = (*repository.PasswordResetRepository)(nil)
	_ AuditStore        = (*repository.AuditRepository)(nil)
	_ TokenSigner       = (*utils.JWTSigner)(nil)
	_ PasswordHasher    = (*utils.BcryptHasher)(nil)
)
