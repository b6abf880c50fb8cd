package auth

import (
	"context"
	"testing"
	"time"

	"github.com/palletline/gatehouse/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-for-unit-tests-only"

func testManager() *TokenManager {
	return NewTokenManager(testSecret, "gatehouse", "palletline", 2*time.Hour, 7*24*time.Hour)
}

func testAccount() *models.Account {
	return &models.Account{
		ID:           "acct-1",
		Username:     "forklift.fred",
		Role:         "employee",
		CompanyID:    "pl-uk",
		DepartmentID: "inbound",
	}
}

func TestMintAndParse(t *testing.T) {
	tm := testManager()
	now := time.Now()

	token, jti, expiresAt, err := tm.MintAccessToken(testAccount(), now)
	require.NoError(t, err)
	assert.NotEmpty(t, jti)
	assert.WithinDuration(t, now.Add(2*time.Hour), expiresAt, time.Second)

	claims, err := tm.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "acct-1", claims.AccountID)
	assert.Equal(t, "forklift.fred", claims.Username)
	assert.Equal(t, "employee", claims.Role)
	assert.Equal(t, jti, claims.ID)
}

func TestParse_ExpiredToken(t *testing.T) {
	tm := testManager()

	token, _, _, err := tm.MintAccessToken(testAccount(), time.Now().Add(-3*time.Hour))
	require.NoError(t, err)

	_, err = tm.Parse(token)
	assert.ErrorIs(t, err, models.ErrTokenExpired)
}

func TestParse_WrongSecret(t *testing.T) {
	tm := testManager()
	other := NewTokenManager("a-completely-different-secret-value", "gatehouse", "palletline", time.Hour, time.Hour)

	token, _, _, err := other.MintAccessToken(testAccount(), time.Now())
	require.NoError(t, err)

	_, err = tm.Parse(token)
	assert.ErrorIs(t, err, models.ErrTokenMalformed)
}

func TestParse_Garbage(t *testing.T) {
	_, err := testManager().Parse("not.a.token")
	assert.ErrorIs(t, err, models.ErrTokenMalformed)
}

func TestParse_WrongIssuer(t *testing.T) {
	tm := testManager()
	other := NewTokenManager(testSecret, "someone-else", "palletline", time.Hour, time.Hour)

	token, _, _, err := other.MintAccessToken(testAccount(), time.Now())
	require.NoError(t, err)

	_, err = tm.Parse(token)
	assert.ErrorIs(t, err, models.ErrTokenMalformed)
}

func TestParseLenient_AcceptsExpired(t *testing.T) {
	tm := testManager()

	token, jti, _, err := tm.MintAccessToken(testAccount(), time.Now().Add(-3*time.Hour))
	require.NoError(t, err)

	claims, err := tm.ParseLenient(token)
	require.NoError(t, err)
	assert.Equal(t, jti, claims.ID)
}

type stubSessionState struct {
	active map[string]bool
}

func (s *stubSessionState) IsActive(ctx context.Context, tokenID string) (bool, error) {
	return s.active[tokenID], nil
}

func TestValidator_RevocationBeatsValidity(t *testing.T) {
	tm := testManager()
	state := &stubSessionState{active: map[string]bool{}}
	v := NewValidator(tm, state)

	token, jti, _, err := tm.MintAccessToken(testAccount(), time.Now())
	require.NoError(t, err)

	// Session active: token accepted.
	state.active[jti] = true
	claims, err := v.Validate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, jti, claims.ID)

	// Session revoked: same token now rejected.
	state.active[jti] = false
	_, err = v.Validate(context.Background(), token)
	assert.ErrorIs(t, err, models.ErrTokenRevoked)
}
