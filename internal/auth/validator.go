package auth

import (
	"context"

	"github.com/palletline/gatehouse/internal/models"
)

// SessionState answers whether the session behind a token id is still
// active. Backed by the session store (cache first, then database).
type SessionState interface {
	IsActive(ctx context.Context, tokenID string) (bool, error)
}

// Validator is the single gate for access tokens: cryptographic checks
// first, then revocation. A revoked session loses even if the token is
// otherwise valid.
type Validator struct {
	tokens   *TokenManager
	sessions SessionState
}

func NewValidator(tokens *TokenManager, sessions SessionState) *Validator {
	return &Validator{tokens: tokens, sessions: sessions}
}

func (v *Validator) Validate(ctx context.Context, tokenString string) (*models.TokenClaims, error) {
	claims, err := v.tokens.Parse(tokenString)
	if err != nil {
		return nil, err
	}

	active, err := v.sessions.IsActive(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if !active {
		return nil, models.ErrTokenRevoked
	}

	return claims, nil
}
