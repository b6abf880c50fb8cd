package models

import "time"

// Session records an issued access token. Rows are never deleted, only
// marked inactive; the token id (JWT jti) is the lookup key for revocation.
type Session struct {
	ID        string     `db:"id"`
	TokenID   string     `db:"token_id"`
	AccountID string     `db:"account_id"`
	IPAddress string     `db:"ip_address"`
	UserAgent string     `db:"user_agent"`
	IssuedAt  time.Time  `db:"issued_at"`
	ExpiresAt time.Time  `db:"expires_at"`
	Active    bool       `db:"active"`
	RevokedAt *time.Time `db:"revoked_at"`
}
