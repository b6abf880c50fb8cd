package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/palletline/gatehouse/internal/auth"
	"github.com/palletline/gatehouse/internal/models"
	"github.com/palletline/gatehouse/internal/risk"
	pkgauth "github.com/palletline/gatehouse/pkg/auth"
	pkglogger "github.com/palletline/gatehouse/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testPassword = "Depot2024pass"
	testUsername = "forklift.fred"
	testEmail    = "fred@palletline.io"
	testAcctID   = "acct-1"
)

var (
	hashOnce     sync.Once
	testPassHash string
)

// bcrypt at cost 12 is slow enough to hash the fixture password once.
func passwordHash() string {
	hashOnce.Do(func() {
		h, err := pkgauth.HashPassword(testPassword)
		if err != nil {
			panic(err)
		}
		testPassHash = h
	})
	return testPassHash
}

func baseAccount() *models.Account {
	return &models.Account{
		ID:           testAcctID,
		Username:     testUsername,
		Email:        testEmail,
		PasswordHash: passwordHash(),
		Role:         "employee",
		CompanyID:    "pl-uk",
		DepartmentID: "inbound",
		Active:       true,
	}
}

type harness struct {
	accounts *mockAccountRepo
	attempts *memAttemptRepo
	resets   *mockResetRepo
	sessions *memSessionRepo
	devices  *mockDeviceRepo
	alerts   *memAlertRepo
	audits   *memAuditRepo
	email    *mockEmailSender
	tokens   *auth.TokenManager
	store    *SessionStore
	svc      *AuthService
}

func newHarness(now func() time.Time) *harness {
	logger := discardLogger()
	secLog := pkglogger.NewSecurityLogger(logger)

	h := &harness{
		accounts: &mockAccountRepo{},
		attempts: newMemAttemptRepo(),
		resets:   &mockResetRepo{},
		sessions: newMemSessionRepo(),
		devices:  &mockDeviceRepo{},
		alerts:   newMemAlertRepo(),
		audits:   newMemAuditRepo(),
		email:    &mockEmailSender{},
	}

	h.tokens = auth.NewTokenManager("unit-test-signing-secret-value", "gatehouse", "palletline", 2*time.Hour, 7*24*time.Hour)
	h.store = NewSessionStore(h.sessions, nil, logger)
	audit := NewAuditService(h.audits, logger)
	alerts := NewAlertService(h.alerts, audit, secLog, logger)
	devices := NewDeviceService(h.devices, alerts, audit, 3, logger)

	h.svc = NewAuthService(AuthServiceConfig{
		Accounts:       h.accounts,
		Attempts:       h.attempts,
		Resets:         h.resets,
		Sessions:       h.store,
		Devices:        devices,
		Alerts:         alerts,
		Audit:          audit,
		Tokens:         h.tokens,
		Timing:         auth.NewTimingDelay(0, 0),
		Email:          h.email,
		Locations:      risk.NetworkZoneResolver{},
		RiskPolicy:     risk.DefaultPolicy(),
		Lockout:        LockoutPolicy{Threshold: 5, Duration: 30 * time.Minute},
		RapidWindow:    time.Minute,
		AlertLevel:     models.RiskLevelHigh,
		ResetExpiry:    30 * time.Minute,
		SecurityLogger: secLog,
		Logger:         logger,
		Now:            now,
	})

	return h
}

// installAccount backs the mock repo with a mutex-guarded account so the
// failure counter and refresh token behave like the SQL implementation,
// including the compare-and-swap on rotation.
func (h *harness) installAccount(acct *models.Account) {
	var mu sync.Mutex

	snapshot := func() *models.Account {
		copied := *acct
		return &copied
	}

	h.accounts.GetByUsernameFunc = func(ctx context.Context, username string) (*models.Account, error) {
		mu.Lock()
		defer mu.Unlock()
		if username != acct.Username {
			return nil, models.ErrNotFound
		}
		return snapshot(), nil
	}
	h.accounts.GetByIDFunc = func(ctx context.Context, id string) (*models.Account, error) {
		mu.Lock()
		defer mu.Unlock()
		if id != acct.ID {
			return nil, models.ErrNotFound
		}
		return snapshot(), nil
	}
	h.accounts.GetByEmailFunc = func(ctx context.Context, email string) (*models.Account, error) {
		mu.Lock()
		defer mu.Unlock()
		if email != acct.Email {
			return nil, models.ErrNotFound
		}
		return snapshot(), nil
	}
	h.accounts.RecordFailedAttemptFunc = func(ctx context.Context, id string, threshold int, lockUntil time.Time) (int, *time.Time, error) {
		mu.Lock()
		defer mu.Unlock()
		acct.FailedAttempts++
		if acct.FailedAttempts >= threshold {
			until := lockUntil
			acct.LockedUntil = &until
		}
		return acct.FailedAttempts, acct.LockedUntil, nil
	}
	h.accounts.ResetFailedAttemptsFunc = func(ctx context.Context, id string, loginAt time.Time) error {
		mu.Lock()
		defer mu.Unlock()
		acct.FailedAttempts = 0
		acct.LockedUntil = nil
		at := loginAt
		acct.LastLoginAt = &at
		return nil
	}
	h.accounts.SetRefreshTokenFunc = func(ctx context.Context, id, tokenHash string, expiresAt time.Time) error {
		mu.Lock()
		defer mu.Unlock()
		acct.RefreshTokenHash = &tokenHash
		exp := expiresAt
		acct.RefreshTokenExpiresAt = &exp
		return nil
	}
	h.accounts.RotateRefreshTokenFunc = func(ctx context.Context, id, oldHash, newHash string, expiresAt time.Time) (bool, error) {
		mu.Lock()
		defer mu.Unlock()
		if acct.RefreshTokenHash == nil || *acct.RefreshTokenHash != oldHash {
			return false, nil
		}
		acct.RefreshTokenHash = &newHash
		exp := expiresAt
		acct.RefreshTokenExpiresAt = &exp
		return true, nil
	}
	h.accounts.GetByRefreshTokenHashFunc = func(ctx context.Context, tokenHash string) (*models.Account, error) {
		mu.Lock()
		defer mu.Unlock()
		if acct.RefreshTokenHash == nil || *acct.RefreshTokenHash != tokenHash {
			return nil, models.ErrNotFound
		}
		return snapshot(), nil
	}
	h.accounts.ClearRefreshTokenFunc = func(ctx context.Context, id string) error {
		mu.Lock()
		defer mu.Unlock()
		acct.RefreshTokenHash = nil
		acct.RefreshTokenExpiresAt = nil
		return nil
	}
	h.accounts.UpdatePasswordFunc = func(ctx context.Context, id, passwordHash string) error {
		mu.Lock()
		defer mu.Unlock()
		acct.PasswordHash = passwordHash
		return nil
	}
}

func loginRequest(password string) LoginRequest {
	return LoginRequest{
		Username:       testUsername,
		Password:       password,
		IPAddress:      "203.0.113.4",
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0) Chrome/120",
		DeviceIDHeader: "device-aaa",
	}
}

func TestLogin_Success(t *testing.T) {
	h := newHarness(nil)
	acct := baseAccount()
	h.installAccount(acct)

	result, err := h.svc.Login(context.Background(), loginRequest(testPassword))
	require.NoError(t, err)

	assert.Equal(t, testAcctID, result.Account.ID)
	assert.NotEmpty(t, result.Tokens.AccessToken)
	assert.NotEmpty(t, result.Tokens.RefreshToken)
	assert.True(t, result.NewDevice)

	claims, err := h.tokens.Parse(result.Tokens.AccessToken)
	require.NoError(t, err)
	active, err := h.store.IsActive(context.Background(), claims.ID)
	require.NoError(t, err)
	assert.True(t, active)

	attempts := h.attempts.all()
	require.Len(t, attempts, 1)
	assert.True(t, attempts[0].Success)
	require.NotNil(t, attempts[0].AccountID)
	assert.Equal(t, testAcctID, *attempts[0].AccountID)
}

func TestLogin_UnknownUsername(t *testing.T) {
	h := newHarness(nil)

	_, err := h.svc.Login(context.Background(), loginRequest(testPassword))
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)

	attempts := h.attempts.all()
	require.Len(t, attempts, 1)
	assert.False(t, attempts[0].Success)
	assert.Nil(t, attempts[0].AccountID)
}

func TestLogin_WrongPassword(t *testing.T) {
	h := newHarness(nil)
	acct := baseAccount()
	h.installAccount(acct)

	_, err := h.svc.Login(context.Background(), loginRequest("wrong-password-1"))
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
	assert.Equal(t, 1, acct.FailedAttempts)
}

func TestLogin_LockoutAfterThreshold(t *testing.T) {
	h := newHarness(nil)
	acct := baseAccount()
	h.installAccount(acct)

	for i := 0; i < 4; i++ {
		_, err := h.svc.Login(context.Background(), loginRequest("wrong-password-1"))
		assert.ErrorIs(t, err, models.ErrInvalidCredentials)
	}

	// Fifth failure crosses the threshold and reports the expiry.
	_, err := h.svc.Login(context.Background(), loginRequest("wrong-password-1"))
	require.ErrorIs(t, err, models.ErrAccountLocked)
	var locked *models.AccountLockedError
	require.ErrorAs(t, err, &locked)
	assert.True(t, locked.Until.After(time.Now()))

	// Lockout raised an alert.
	assert.Len(t, h.alerts.byType(models.AlertTypeAccountLocked), 1)

	// Correct password is rejected while the lockout holds.
	_, err = h.svc.Login(context.Background(), loginRequest(testPassword))
	assert.ErrorIs(t, err, models.ErrAccountLocked)
}

func TestLogin_SuccessResetsCounter(t *testing.T) {
	h := newHarness(nil)
	acct := baseAccount()
	h.installAccount(acct)

	for i := 0; i < 3; i++ {
		_, _ = h.svc.Login(context.Background(), loginRequest("wrong-password-1"))
	}
	assert.Equal(t, 3, acct.FailedAttempts)

	_, err := h.svc.Login(context.Background(), loginRequest(testPassword))
	require.NoError(t, err)
	assert.Equal(t, 0, acct.FailedAttempts)
	assert.Nil(t, acct.LockedUntil)
}

func TestLogin_ConcurrentFailuresCountExactly(t *testing.T) {
	h := newHarness(nil)
	acct := baseAccount()
	h.installAccount(acct)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = h.svc.Login(context.Background(), loginRequest("wrong-password-1"))
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, acct.FailedAttempts)
}

func TestLogin_BlockedDevice(t *testing.T) {
	h := newHarness(nil)
	acct := baseAccount()
	h.installAccount(acct)

	h.devices.GetByFingerprintFunc = func(ctx context.Context, accountID, fingerprint string) (*models.TrustedDevice, error) {
		return &models.TrustedDevice{
			ID:          "dev-1",
			AccountID:   accountID,
			Fingerprint: fingerprint,
			Blocked:     true,
		}, nil
	}

	_, err := h.svc.Login(context.Background(), loginRequest(testPassword))
	assert.ErrorIs(t, err, models.ErrDeviceBlocked)

	attempts := h.attempts.all()
	require.Len(t, attempts, 1)
	assert.False(t, attempts[0].Success)
	require.NotNil(t, attempts[0].FailureReason)
	assert.Equal(t, "device_blocked", *attempts[0].FailureReason)
}

func TestLogin_HighRiskRaisesAlert(t *testing.T) {
	night := time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC)
	h := newHarness(func() time.Time { return night })
	acct := baseAccount()
	h.installAccount(acct)

	// New device, new IP, new location, off hours: scores 70 (high).
	result, err := h.svc.Login(context.Background(), loginRequest(testPassword))
	require.NoError(t, err)

	assert.True(t, result.RiskLevel.Meets(models.RiskLevelHigh))
	alerts := h.alerts.byType(models.AlertTypeSuspiciousLogin)
	require.Len(t, alerts, 1)
	assert.Equal(t, testAcctID, alerts[0].AccountID)
}

func TestRefresh_RotatesAndIsSingleUse(t *testing.T) {
	h := newHarness(nil)
	acct := baseAccount()
	h.installAccount(acct)

	result, err := h.svc.Login(context.Background(), loginRequest(testPassword))
	require.NoError(t, err)
	firstRefresh := result.Tokens.RefreshToken

	rotated, err := h.svc.Refresh(context.Background(), firstRefresh, "203.0.113.4", "ua")
	require.NoError(t, err)
	assert.NotEmpty(t, rotated.Tokens.AccessToken)
	assert.NotEqual(t, firstRefresh, rotated.Tokens.RefreshToken)

	// The presented token was consumed by the rotation.
	_, err = h.svc.Refresh(context.Background(), firstRefresh, "203.0.113.4", "ua")
	assert.ErrorIs(t, err, models.ErrRefreshExpiredOrUnknown)

	// The replacement still works.
	_, err = h.svc.Refresh(context.Background(), rotated.Tokens.RefreshToken, "203.0.113.4", "ua")
	assert.NoError(t, err)
}

func TestRefresh_UnknownToken(t *testing.T) {
	h := newHarness(nil)
	h.installAccount(baseAccount())

	_, err := h.svc.Refresh(context.Background(), "never-issued", "203.0.113.4", "ua")
	assert.ErrorIs(t, err, models.ErrRefreshExpiredOrUnknown)
}

func TestLogout_RevokesAndIsIdempotent(t *testing.T) {
	h := newHarness(nil)
	acct := baseAccount()
	h.installAccount(acct)

	result, err := h.svc.Login(context.Background(), loginRequest(testPassword))
	require.NoError(t, err)

	claims, err := h.tokens.Parse(result.Tokens.AccessToken)
	require.NoError(t, err)

	require.NoError(t, h.svc.Logout(context.Background(), result.Tokens.AccessToken, "203.0.113.4", "ua"))
	active, err := h.store.IsActive(context.Background(), claims.ID)
	require.NoError(t, err)
	assert.False(t, active)

	// Repeat logout and garbage input both succeed quietly.
	assert.NoError(t, h.svc.Logout(context.Background(), result.Tokens.AccessToken, "203.0.113.4", "ua"))
	assert.NoError(t, h.svc.Logout(context.Background(), "not-a-token", "203.0.113.4", "ua"))
}

func TestLogoutAll_RevokesEverySessionAndRefreshToken(t *testing.T) {
	h := newHarness(nil)
	acct := baseAccount()
	h.installAccount(acct)

	first, err := h.svc.Login(context.Background(), loginRequest(testPassword))
	require.NoError(t, err)
	second, err := h.svc.Login(context.Background(), loginRequest(testPassword))
	require.NoError(t, err)

	revoked, err := h.svc.LogoutAll(context.Background(), testAcctID, "203.0.113.4", "ua")
	require.NoError(t, err)
	assert.Equal(t, 2, revoked)

	for _, token := range []string{first.Tokens.AccessToken, second.Tokens.AccessToken} {
		claims, err := h.tokens.Parse(token)
		require.NoError(t, err)
		active, err := h.store.IsActive(context.Background(), claims.ID)
		require.NoError(t, err)
		assert.False(t, active)
	}

	_, err = h.svc.Refresh(context.Background(), second.Tokens.RefreshToken, "203.0.113.4", "ua")
	assert.ErrorIs(t, err, models.ErrRefreshExpiredOrUnknown)
}

func TestChangePassword(t *testing.T) {
	h := newHarness(nil)
	acct := baseAccount()
	h.installAccount(acct)

	result, err := h.svc.Login(context.Background(), loginRequest(testPassword))
	require.NoError(t, err)

	err = h.svc.ChangePassword(context.Background(), testAcctID, "wrong-password-1", "NewDepot2025x", "ip", "ua")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)

	err = h.svc.ChangePassword(context.Background(), testAcctID, testPassword, "short", "ip", "ua")
	assert.ErrorIs(t, err, models.ErrPasswordTooWeak)

	err = h.svc.ChangePassword(context.Background(), testAcctID, testPassword, "NewDepot2025x", "ip", "ua")
	require.NoError(t, err)

	// The old password no longer authenticates, and sessions are gone.
	assert.NoError(t, pkgauth.ComparePassword(acct.PasswordHash, "NewDepot2025x"))
	claims, err := h.tokens.Parse(result.Tokens.AccessToken)
	require.NoError(t, err)
	active, err := h.store.IsActive(context.Background(), claims.ID)
	require.NoError(t, err)
	assert.False(t, active)
}

func TestForgotPassword_DoesNotRevealAccounts(t *testing.T) {
	h := newHarness(nil)
	h.installAccount(baseAccount())

	// Unknown email: same nil result, nothing sent, nothing stored.
	var created int
	h.resets.CreateFunc = func(ctx context.Context, token *models.PasswordResetToken) error {
		created++
		return nil
	}
	require.NoError(t, h.svc.ForgotPassword(context.Background(), "nobody@example.com", "ip", "ua"))
	assert.Zero(t, created)
	assert.Empty(t, h.email.sentTo())

	// Known email: token stored and mail delivered in the background.
	require.NoError(t, h.svc.ForgotPassword(context.Background(), testEmail, "ip", "ua"))
	assert.Equal(t, 1, created)
	require.Eventually(t, func() bool {
		return len(h.email.sentTo()) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestResetPassword(t *testing.T) {
	h := newHarness(nil)
	acct := baseAccount()
	h.installAccount(acct)

	plain, hash, err := pkgauth.GenerateOpaqueToken()
	require.NoError(t, err)

	used := false
	token := &models.PasswordResetToken{
		ID:        "reset-1",
		AccountID: testAcctID,
		TokenHash: hash,
		ExpiresAt: time.Now().Add(30 * time.Minute),
	}
	h.resets.GetByTokenHashFunc = func(ctx context.Context, tokenHash string) (*models.PasswordResetToken, error) {
		if tokenHash != hash {
			return nil, models.ErrNotFound
		}
		copied := *token
		return &copied, nil
	}
	h.resets.MarkUsedFunc = func(ctx context.Context, id string) (bool, error) {
		if used {
			return false, nil
		}
		used = true
		now := time.Now()
		token.UsedAt = &now
		return true, nil
	}

	require.NoError(t, h.svc.ResetPassword(context.Background(), plain, "NewDepot2025x", "ip", "ua"))
	assert.NoError(t, pkgauth.ComparePassword(acct.PasswordHash, "NewDepot2025x"))

	// Second redemption of the same token fails.
	err = h.svc.ResetPassword(context.Background(), plain, "OtherDepot2026y", "ip", "ua")
	assert.ErrorIs(t, err, models.ErrResetTokenInvalid)
}

func TestResetPassword_ExpiredToken(t *testing.T) {
	h := newHarness(nil)
	h.installAccount(baseAccount())

	plain, hash, err := pkgauth.GenerateOpaqueToken()
	require.NoError(t, err)

	h.resets.GetByTokenHashFunc = func(ctx context.Context, tokenHash string) (*models.PasswordResetToken, error) {
		return &models.PasswordResetToken{
			ID:        "reset-1",
			AccountID: testAcctID,
			TokenHash: hash,
			ExpiresAt: time.Now().Add(-time.Minute),
		}, nil
	}

	err = h.svc.ResetPassword(context.Background(), plain, "NewDepot2025x", "ip", "ua")
	assert.ErrorIs(t, err, models.ErrResetTokenInvalid)
}
