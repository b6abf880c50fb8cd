package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// Audit actions recorded by this subsystem
const (
	AuditActionLogin           = "auth.login"
	AuditActionLoginFailed     = "auth.login_failed"
	AuditActionLogout          = "auth.logout"
	AuditActionLogoutAll       = "auth.logout_all"
	AuditActionTokenRefreshed  = "auth.token_refreshed"
	AuditActionPasswordChanged = "auth.password_changed"
	AuditActionPasswordReset   = "auth.password_reset"
	AuditActionResetRequested  = "auth.reset_requested"
	AuditActionDeviceBlocked   = "security.device_blocked"
	AuditActionAlertResolved   = "security.alert_resolved"
)

// AuditEntry is one append-only record of a security-relevant action.
// Entries are never mutated or deleted.
type AuditEntry struct {
	ID         string        `db:"id"`
	AccountID  *string       `db:"account_id"`
	Action     string        `db:"action"`
	EntityType string        `db:"entity_type"`
	EntityID   string        `db:"entity_id"`
	Before     AuditSnapshot `db:"before_state"`
	After      AuditSnapshot `db:"after_state"`
	IPAddress  string        `db:"ip_address"`
	UserAgent  string        `db:"user_agent"`
	CreatedAt  time.Time     `db:"created_at"`
}

// AuditSnapshot holds a before/after state capture as JSONB.
type AuditSnapshot map[string]interface{}

// Scan implements sql.Scanner for JSONB
func (s *AuditSnapshot) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return ErrBadRequest
	}

	var m map[string]interface{}
	if err := json.Unmarshal(bytes, &m); err != nil {
		return err
	}
	*s = AuditSnapshot(m)
	return nil
}

// Value implements driver.Valuer for JSONB
func (s AuditSnapshot) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	return json.Marshal(s)
}
