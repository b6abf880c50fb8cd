package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/palletline/gatehouse/internal/models"
)

// TokenManager signs and parses access tokens (HS256). Refresh tokens
// are opaque and handled by the service layer; only their hashes are
// persisted.
type TokenManager struct {
	secret        []byte
	issuer        string
	audience      string
	accessExpiry  time.Duration
	refreshExpiry time.Duration
}

func NewTokenManager(secret, issuer, audience string, accessExpiry, refreshExpiry time.Duration) *TokenManager {
	return &TokenManager{
		secret:        []byte(secret),
		issuer:        issuer,
		audience:      audience,
		accessExpiry:  accessExpiry,
		refreshExpiry: refreshExpiry,
	}
}

func (tm *TokenManager) AccessExpiry() time.Duration  { return tm.accessExpiry }
func (tm *TokenManager) RefreshExpiry() time.Duration { return tm.refreshExpiry }

// MintAccessToken signs a token for the account and returns the token,
// its jti, and its expiry. The jti keys the session row for revocation.
func (tm *TokenManager) MintAccessToken(acct *models.Account, now time.Time) (token, jti string, expiresAt time.Time, err error) {
	jti = uuid.New().String()
	expiresAt = now.Add(tm.accessExpiry)

	claims := &models.TokenClaims{
		AccountID:    acct.ID,
		Username:     acct.Username,
		Role:         acct.Role,
		CompanyID:    acct.CompanyID,
		DepartmentID: acct.DepartmentID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    tm.issuer,
			Audience:  jwt.ClaimStrings{tm.audience},
			Subject:   acct.ID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tm.secret)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}

	return signed, jti, expiresAt, nil
}

// Parse verifies signature, expiry, issuer, and audience. Expired tokens
// map to ErrTokenExpired; anything else wrong maps to ErrTokenMalformed.
func (tm *TokenManager) Parse(tokenString string) (*models.TokenClaims, error) {
	claims := &models.TokenClaims{}

	_, err := jwt.ParseWithClaims(tokenString, claims, tm.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tm.issuer),
		jwt.WithAudience(tm.audience),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, models.ErrTokenExpired
		}
		return nil, models.ErrTokenMalformed
	}

	return claims, nil
}

// ParseLenient verifies the signature but skips claim validation, so an
// expired token can still be matched to its session on logout.
func (tm *TokenManager) ParseLenient(tokenString string) (*models.TokenClaims, error) {
	claims := &models.TokenClaims{}

	_, err := jwt.ParseWithClaims(tokenString, claims, tm.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return nil, models.ErrTokenMalformed
	}

	return claims, nil
}

func (tm *TokenManager) keyFunc(token *jwt.Token) (interface{}, error) {
	return tm.secret, nil
}
