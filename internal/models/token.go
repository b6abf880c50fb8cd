package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims are the access-token claims: identity plus the warehouse
// scope the token is valid for. The jti (RegisteredClaims.ID) keys the
// session row used for revocation.
type TokenClaims struct {
	AccountID    string `json:"account_id"`
	Username     string `json:"username"`
	Role         string `json:"role"`
	CompanyID    string `json:"company_id,omitempty"`
	DepartmentID string `json:"department_id,omitempty"`
	jwt.RegisteredClaims
}

// TokenPair is an issued access/refresh pair with expiries.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}
