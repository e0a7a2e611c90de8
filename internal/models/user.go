package models

import "time"

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User represents the users table
type User struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	Username      string     `gorm:"uniqueIndex;not null;size:50" json:"username"`
	Email         string     `gorm:"uniqueIndex;not null;size:255" json:"email"`
	PasswordHash  string     `gorm:"not null;size:255" json:"-"`
	Role          string     `gorm:"size:16;not null;default:'user'" json:"role"`
	EmailVerified bool       `gorm:"not null;default:false" json:"emailVerified"`
	LastLoginAt   *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// TableName specifies the table name for User model
func (User) TableName() string {
	return "users"
}

// Reasons recorded when a refresh token is revoked
const (
	RevokedRotated       = "rotated"
	RevokedLogout        = "logout"
	RevokedPasswordReset = "password_reset"
	RevokedReuseDetected = "reuse_detected"
)

// RefreshToken represents the refresh_tokens table.
// Only the SHA-256 hash of the secret is stored; revoked never goes back to false.
type RefreshToken struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	UserID        uint       `gorm:"not null;index" json:"userId"`
	TokenHash     string     `gorm:"not null;size:64;uniqueIndex" json:"-"`
	ExpiresAt     time.Time  `gorm:"not null;index" json:"expiresAt"`
	Revoked       bool       `gorm:"not null;default:false" json:"revoked"`
	RevokedAt     *time.Time `json:"revokedAt,omitempty"`
	RevokedReason string     `gorm:"size:32" json:"revokedReason,omitempty"`
	IPAddress     string     `gorm:"size:64" json:"ipAddress,omitempty"`
	UserAgent     string     `gorm:"size:255" json:"userAgent,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	User          User       `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName specifies the table name for RefreshToken model
func (RefreshToken) TableName() string {
	return "refresh_tokens"
}
