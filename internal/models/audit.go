package models

import "time"

const (
	AuditStatusSuccess = "success"
	AuditStatusFailure = "failure"
)

// Security event names written to audit_logs.action
const (
	ActionRegister             = "user_register"
	ActionLogin                = "user_login"
	ActionLoginFailed          = "user_login_failed"
	ActionTokenRefresh         = "token_refresh"
	ActionRefreshTokenReuse    = "refresh_token_reuse"
	ActionLogout               = "user_logout"
	ActionPasswordResetRequest = "password_reset_request"
	ActionPasswordReset        = "password_reset"
	ActionAccountDelete        = "account_delete"
)

// AuditLog represents the audit_logs table.
// ActorID and TargetID are weak references: no foreign keys, entries outlive the records they mention.
type AuditLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ActorID   *uint     `gorm:"index:idx_audit_actor_created" json:"actorId"`
	ActorIP   string    `gorm:"size:64" json:"actorIp,omitempty"`
	Action    string    `gorm:"size:100;not null;index:idx_audit_action_created" json:"action"`
	Target    string    `gorm:"size:50" json:"target,omitempty"`
	TargetID  *uint     `json:"targetId,omitempty"`
	Status    string    `gorm:"size:16;not null" json:"status"`
	Details   string    `gorm:"type:text" json:"details,omitempty"`
	CreatedAt time.Time `gorm:"index:idx_audit_actor_created;index:idx_audit_action_created" json:"createdAt"`
}

// TableName specifies the table name for AuditLog model
func (AuditLog) TableName() string {
	return "audit_logs"
}
