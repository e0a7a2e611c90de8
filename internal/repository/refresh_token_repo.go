package repository

import (
	"context"
	"time"

	"iot-measurement-backend/internal/models"

	"gorm.io/gorm"
)

type RefreshTokenRepository struct {
	db *gorm.DB
}

func NewRefreshTokenRepo(db *gorm.DB) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

// Create stores a new refresh token hash
func (r *RefreshTokenRepository) Create(ctx context.Context, token *models.RefreshToken) error {
	return translate(r.db.WithContext(ctx).Create(token).Error)
}

// FindActiveByHash finds a non-revoked, non-expired refresh token by its hash
func (r *RefreshTokenRepository) FindActiveByHash(ctx context.Context, hash string, now time.Time) (*models.RefreshToken, error) {
	var token models.RefreshToken
	err := r.db.WithContext(ctx).
		Where("token_hash = ? AND revoked = ? AND expires_at > ?", hash, false, now).
		First(&token).Error
	if err != nil {
		return nil, translate(err)
	}
	return &token, nil
}

// FindByHash finds a refresh token by its hash regardless of state
func (r *RefreshTokenRepository) FindByHash(ctx context.Context, hash string) (*models.RefreshToken, error) {
	var token models.RefreshToken
	if err := r.db.WithContext(ctx).Where("token_hash = ?", hash).First(&token).Error; err != nil {
		return nil, translate(err)
	}
	return &token, nil
}

// Revoke flips revoked from false to true. It reports false when another caller got there first.
func (r *RefreshTokenRepository) Revoke(ctx context.Context, id uint, reason string, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("id = ? AND revoked = ?", id, false).
		Updates(revokeColumns(reason, now))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// RevokeByHashForUser revokes the owner's live token matching hash, if any.
func (r *RefreshTokenRepository) RevokeByHashForUser(ctx context.Context, hash string, userID uint, reason string, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("token_hash = ? AND user_id = ? AND revoked = ?", hash, userID, false).
		Updates(revokeColumns(reason, now))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// RevokeAllForUser revokes every outstanding refresh token of a user
func (r *RefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID uint, reason string, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("user_id = ? AND revoked = ?", userID, false).
		Updates(revokeColumns(reason, now))
	return result.RowsAffected, result.Error
}

// DeleteExpired prunes tokens that expired before the cutoff
func (r *RefreshTokenRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("expires_at <= ?", cutoff).
		Delete(&models.RefreshToken{})
	return result.RowsAffected, result.Error
}

func revokeColumns(reason string, now time.Time) map[string]interface{} {
	return map[string]interface{}{
		"revoked":        true,
		"revoked_at":     now,
		"revoked_reason": reason,
	}
}
