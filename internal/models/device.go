package models

import "time"

// Trust levels for a recognized device
const (
	TrustLevelUnverified = "unverified"
	TrustLevelTrusted    = "trusted"
)

// TrustedDevice is one entry in the per-account device registry.
// The fingerprint is unique per account; a blocked device overrides the
// trust level in all risk computation.
type TrustedDevice struct {
	ID            string     `db:"id"`
	AccountID     string     `db:"account_id"`
	Fingerprint   string     `db:"fingerprint"`
	DeviceName    string     `db:"device_name"`
	OS            string     `db:"os"`
	Browser       string     `db:"browser"`
	FirstSeenAt   time.Time  `db:"first_seen_at"`
	LastSeenAt    time.Time  `db:"last_seen_at"`
	LastIP        string     `db:"last_ip"`
	LoginCount    int        `db:"login_count"`
	TrustLevel    string     `db:"trust_level"`
	RiskScore     int        `db:"risk_score"`
	Blocked       bool       `db:"blocked"`
	BlockedReason *string    `db:"blocked_reason"`
	BlockedAt     *time.Time `db:"blocked_at"`
}
