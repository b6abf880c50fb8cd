package models

import "time"

// Alert types
const (
	AlertTypeSuspiciousLogin = "suspicious_login"
	AlertTypeAccountLocked   = "account_locked"
	AlertTypeDeviceBlocked   = "device_blocked"
)

// Alert severities
const (
	AlertSeverityLow      = "low"
	AlertSeverityMedium   = "medium"
	AlertSeverityHigh     = "high"
	AlertSeverityCritical = "critical"
)

// SecurityAlert is raised when a login crosses the risk threshold, an
// account locks out, or a device is blocked. Resolution is one-way.
type SecurityAlert struct {
	ID              string     `db:"id"`
	AccountID       string     `db:"account_id"`
	Type            string     `db:"alert_type"`
	Severity        string     `db:"severity"`
	Description     string     `db:"description"`
	CreatedAt       time.Time  `db:"created_at"`
	Resolved        bool       `db:"resolved"`
	ResolvedAt      *time.Time `db:"resolved_at"`
	ResolutionNotes *string    `db:"resolution_notes"`
}
