package repository

import (
	"context"
	"time"

	"iot-measurement-backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PasswordResetRepository struct {
	db *gorm.DB
}

func NewPasswordResetRepo(db *gorm.DB) *PasswordResetRepository {
	return &PasswordResetRepository{db: db}
}

// Create stores a new reset token hash
func (r *PasswordResetRepository) Create(ctx context.Context, token *models.PasswordResetToken) error {
	return translate(r.db.WithContext(ctx).Create(token).Error)
}

// FindActiveByHash finds an unused, unexpired reset token by its hash
func (r *PasswordResetRepository) FindActiveByHash(ctx context.Context, hash string, now time.Time) (*models.PasswordResetToken, error) {
	var token models.PasswordResetToken
	err := r.db.WithContext(ctx).
		Where("token_hash = ? AND used_at IS NULL AND expires_at > ?", hash, now).
		First(&token).Error
	if err != nil {
		return nil, translate(err)
	}
	return &token, nil
}

// Consume atomically stamps used_at on the usable token matching hash and returns it.
// Only one of several concurrent callers presenting the same hash gets the token back.
func (r *PasswordResetRepository) Consume(ctx context.Context, hash string, now time.Time) (*models.PasswordResetToken, error) {
	var token models.PasswordResetToken
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := forUpdate(tx).
			Where("token_hash = ? AND used_at IS NULL AND expires_at > ?", hash, now).
			First(&token).Error; err != nil {
			return err
		}
		result := tx.Model(&models.PasswordResetToken{}).
			Where("id = ? AND used_at IS NULL", token.ID).
			Update("used_at", now)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		token.UsedAt = &now
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}
	return &token, nil
}

// InvalidateAllUnusedForUser stamps used_at on every outstanding reset token of a user
func (r *PasswordResetRepository) InvalidateAllUnusedForUser(ctx context.Context, userID uint, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.PasswordResetToken{}).
		Where("user_id = ? AND used_at IS NULL", userID).
		Update("used_at", now)
	return result.RowsAffected, result.Error
}

// DeleteStale prunes reset tokens that are used or expired before the cutoff
func (r *PasswordResetRepository) DeleteStale(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("expires_at <= ? OR used_at IS NOT NULL", cutoff).
		Delete(&models.PasswordResetToken{})
	return result.RowsAffected, result.Error
}

// forUpdate adds a row lock; SQLite has no SELECT ... FOR UPDATE and serialises writers anyway.
func forUpdate(db *gorm.DB) *gorm.DB {
	if db.Dialector.Name() == "sqlite" {
		return db
	}
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}
