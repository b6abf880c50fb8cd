package integration

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newSuite starts a database container and a wired test server. Skipped
// under -short because it needs a Docker daemon.
func newSuite(t *testing.T) (*TestDB, *TestServer) {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test requires docker")
	}

	db, err := SetupTestDatabase(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Teardown(context.Background()) })

	ts := NewTestServer(db)
	t.Cleanup(ts.Close)
	return db, ts
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

func login(t *testing.T, ts *TestServer, username, password string) (*http.Response, error) {
	t.Helper()
	return ts.Request(http.MethodPost, "/auth/login", map[string]string{
		"username": username,
		"password": password,
	}, nil)
}

func TestLoginIssuesTokens(t *testing.T) {
	_, ts := newSuite(t)
	ctx := context.Background()

	username, email, password := TestAccount("login")
	acct, err := SeedAccount(ctx, ts.Repos, username, email, password, "employee")
	require.NoError(t, err)

	resp, err := login(t, ts, username, password)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body tokenResponse
	require.NoError(t, ParseJSONResponse(resp, &body))
	assert.NotEmpty(t, body.AccessToken)
	assert.NotEmpty(t, body.RefreshToken)

	// Counter reset and login stamp are visible in the store.
	stored, err := ts.Repos.Accounts.GetByID(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.FailedAttempts)
	assert.NotNil(t, stored.LastLoginAt)
}

func TestLoginLockoutAfterRepeatedFailures(t *testing.T) {
	_, ts := newSuite(t)
	ctx := context.Background()

	username, email, password := TestAccount("lockout")
	_, err := SeedAccount(ctx, ts.Repos, username, email, password, "employee")
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		resp, err := login(t, ts, username, "WrongPassword99")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}

	// Fifth failure crosses the threshold.
	resp, err := login(t, ts, username, "WrongPassword99")
	require.NoError(t, err)
	require.Equal(t, http.StatusLocked, resp.StatusCode)

	var locked struct {
		LockedUntil time.Time `json:"locked_until"`
	}
	require.NoError(t, ParseJSONResponse(resp, &locked))
	assert.True(t, locked.LockedUntil.After(time.Now()))

	// The correct password is rejected while the lockout holds.
	resp, err = login(t, ts, username, password)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusLocked, resp.StatusCode)
}

func TestRefreshRotationIsSingleUse(t *testing.T) {
	_, ts := newSuite(t)
	ctx := context.Background()

	username, email, password := TestAccount("refresh")
	_, err := SeedAccount(ctx, ts.Repos, username, email, password, "employee")
	require.NoError(t, err)

	resp, err := login(t, ts, username, password)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var first tokenResponse
	require.NoError(t, ParseJSONResponse(resp, &first))

	resp, err = ts.Request(http.MethodPost, "/auth/refresh", map[string]string{
		"refresh_token": first.RefreshToken,
	}, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var second tokenResponse
	require.NoError(t, ParseJSONResponse(resp, &second))
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	// Replaying the consumed token fails.
	resp, err = ts.Request(http.MethodPost, "/auth/refresh", map[string]string{
		"refresh_token": first.RefreshToken,
	}, nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLogoutRevokesAccessToken(t *testing.T) {
	_, ts := newSuite(t)
	ctx := context.Background()

	username, email, password := TestAccount("logout")
	_, err := SeedAccount(ctx, ts.Repos, username, email, password, "employee")
	require.NoError(t, err)

	resp, err := login(t, ts, username, password)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var tokens tokenResponse
	require.NoError(t, ParseJSONResponse(resp, &tokens))

	// The token works before logout.
	resp, err = ts.RequestWithAuth(http.MethodPost, "/auth/logout-all", tokens.AccessToken, nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Revoked by logout-all; a still-valid signature no longer passes.
	resp, err = ts.RequestWithAuth(http.MethodPost, "/auth/change-password", tokens.AccessToken, map[string]string{
		"current_password": password,
		"new_password":     "Another2024pass",
	})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Logout with the dead token is still a 204.
	resp, err = ts.RequestWithAuth(http.MethodPost, "/auth/logout", tokens.AccessToken, nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestPasswordResetFlow(t *testing.T) {
	_, ts := newSuite(t)
	ctx := context.Background()

	username, email, password := TestAccount("reset")
	_, err := SeedAccount(ctx, ts.Repos, username, email, password, "employee")
	require.NoError(t, err)

	resp, err := ts.Request(http.MethodPost, "/auth/forgot-password", map[string]string{
		"email": email,
	}, nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	// The email goes out in the background.
	require.Eventually(t, func() bool {
		return ts.Email.LastEmail() != nil
	}, 5*time.Second, 10*time.Millisecond)
	sent := ts.Email.LastEmail()
	require.Equal(t, email, sent.To)

	const newPassword = "Freshly2025pass"
	resp, err = ts.Request(http.MethodPost, "/auth/reset-password", map[string]string{
		"token":        sent.Token,
		"new_password": newPassword,
	}, nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	// Token is single use.
	resp, err = ts.Request(http.MethodPost, "/auth/reset-password", map[string]string{
		"token":        sent.Token,
		"new_password": "Yetanother2025pass",
	}, nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Old password out, new password in.
	resp, err = login(t, ts, username, password)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = login(t, ts, username, newPassword)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestForgotPasswordDoesNotRevealAccounts(t *testing.T) {
	_, ts := newSuite(t)

	resp, err := ts.Request(http.MethodPost, "/auth/forgot-password", map[string]string{
		"email": "nobody@example.com",
	}, nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}
