package models

import (
	"time"
)

// Account is the identity record this subsystem authenticates against.
// The warehouse domain owns the profile fields; gatehouse only mutates the
// lockout counters and the stored refresh token.
type Account struct {
	ID                    string
	Username              string
	Email                 string
	PasswordHash          string
	Role                  string // e.g., "admin", "manager", "employee"
	CompanyID             string
	DepartmentID          string
	Active                bool
	FailedAttempts        int
	LockedUntil           *time.Time
	RefreshTokenHash      *string
	RefreshTokenExpiresAt *time.Time
	LastLoginAt           *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Locked reports whether the account is inside an active lockout window.
func (a *Account) Locked(now time.Time) bool {
	return a.LockedUntil != nil && now.Before(*a.LockedUntil)
}

// RefreshTokenValid reports whether the stored refresh token hash matches
// and has not passed its expiry.
func (a *Account) RefreshTokenValid(hash string, now time.Time) bool {
	if a.RefreshTokenHash == nil || a.RefreshTokenExpiresAt == nil {
		return false
	}
	return *a.RefreshTokenHash == hash && now.Before(*a.RefreshTokenExpiresAt)
}

// AccountSummary is the caller-facing projection returned on login.
type AccountSummary struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	Role         string `json:"role"`
	CompanyID    string `json:"company_id,omitempty"`
	DepartmentID string `json:"department_id,omitempty"`
}

// Summary builds the caller-facing projection.
func (a *Account) Summary() *AccountSummary {
	return &AccountSummary{
		ID:           a.ID,
		Username:     a.Username,
		Email:        a.Email,
		Role:         a.Role,
		CompanyID:    a.CompanyID,
		DepartmentID: a.DepartmentID,
	}
}
