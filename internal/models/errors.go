package models

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Credential and account state errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account is temporarily locked")
	ErrPasswordTooWeak    = errors.New("password does not meet policy")

	// Token errors
	ErrTokenMalformed          = errors.New("token is malformed")
	ErrTokenExpired            = errors.New("token has expired")
	ErrTokenRevoked            = errors.New("token has been revoked")
	ErrRefreshExpiredOrUnknown = errors.New("refresh token expired or unknown")
	ErrResetTokenInvalid       = errors.New("password reset token invalid or expired")

	// Device errors
	ErrDeviceBlocked = errors.New("device is blocked")
)

// AccountLockedError carries the lockout expiry so legitimate users know
// when to retry. Matches ErrAccountLocked under errors.Is.
type AccountLockedError struct {
	Until time.Time
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("account is temporarily locked until %s", e.Until.UTC().Format(time.RFC3339))
}

func (e *AccountLockedError) Is(target error) bool {
	return target == ErrAccountLocked
}
