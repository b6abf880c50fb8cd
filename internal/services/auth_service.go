package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/palletline/gatehouse/internal/auth"
	"github.com/palletline/gatehouse/internal/models"
	"github.com/palletline/gatehouse/internal/risk"
	pkgauth "github.com/palletline/gatehouse/pkg/auth"
	pkglogger "github.com/palletline/gatehouse/pkg/logger"
)

// LockoutPolicy is the brute-force counter configuration.
type LockoutPolicy struct {
	Threshold int
	Duration  time.Duration
}

// AuthService orchestrates the login pipeline: credentials, lockout,
// risk scoring, device tracking, token issuance, and the audit trail.
type AuthService struct {
	accounts   AccountRepository
	attempts   LoginAttemptRepository
	resets     PasswordResetRepository
	sessions   *SessionStore
	devices    *DeviceService
	alerts     *AlertService
	audit      *AuditService
	tokens     *auth.TokenManager
	timing     *auth.TimingDelay
	email      EmailSender
	locations  risk.LocationResolver
	riskPolicy risk.Policy

	lockout     LockoutPolicy
	rapidWindow time.Duration
	alertLevel  models.RiskLevel
	resetExpiry time.Duration

	secLog *pkglogger.SecurityLogger
	logger *slog.Logger

	now func() time.Time
}

// AuthServiceConfig wires an AuthService. Now defaults to time.Now.
type AuthServiceConfig struct {
	Accounts   AccountRepository
	Attempts   LoginAttemptRepository
	Resets     PasswordResetRepository
	Sessions   *SessionStore
	Devices    *DeviceService
	Alerts     *AlertService
	Audit      *AuditService
	Tokens     *auth.TokenManager
	Timing     *auth.TimingDelay
	Email      EmailSender
	Locations  risk.LocationResolver
	RiskPolicy risk.Policy

	Lockout     LockoutPolicy
	RapidWindow time.Duration
	AlertLevel  models.RiskLevel
	ResetExpiry time.Duration

	SecurityLogger *pkglogger.SecurityLogger
	Logger         *slog.Logger
	Now            func() time.Time
}

func NewAuthService(cfg AuthServiceConfig) *AuthService {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &AuthService{
		accounts:    cfg.Accounts,
		attempts:    cfg.Attempts,
		resets:      cfg.Resets,
		sessions:    cfg.Sessions,
		devices:     cfg.Devices,
		alerts:      cfg.Alerts,
		audit:       cfg.Audit,
		tokens:      cfg.Tokens,
		timing:      cfg.Timing,
		email:       cfg.Email,
		locations:   cfg.Locations,
		riskPolicy:  cfg.RiskPolicy,
		lockout:     cfg.Lockout,
		rapidWindow: cfg.RapidWindow,
		alertLevel:  cfg.AlertLevel,
		resetExpiry: cfg.ResetExpiry,
		secLog:      cfg.SecurityLogger,
		logger:      cfg.Logger,
		now:         now,
	}
}

// LoginRequest carries everything the pipeline needs about the caller.
type LoginRequest struct {
	Username       string
	Password       string
	IPAddress      string
	UserAgent      string
	DeviceIDHeader string
}

// LoginResult is a successful authentication.
type LoginResult struct {
	Account   *models.AccountSummary
	Tokens    *models.TokenPair
	RiskScore int
	RiskLevel models.RiskLevel
	NewDevice bool
}

// Login runs the full pipeline. Unknown username and wrong password are
// indistinguishable to the caller; only an active lockout is reported
// distinctly, and only with its expiry time.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	start := s.now()
	username := strings.TrimSpace(req.Username)
	location := s.locations.Resolve(req.IPAddress)
	fingerprint := Fingerprint(req.DeviceIDHeader, req.UserAgent)

	acct, err := s.accounts.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.recordAttempt(ctx, nil, username, req, location, false, "unknown_username", risk.Assessment{})
			s.logAuth("login", "", req, false, "invalid_credentials", risk.Assessment{})
			s.timing.WaitFrom(start, false)
			return nil, models.ErrInvalidCredentials
		}
		return nil, err
	}

	if acct.Locked(start) {
		s.recordAttempt(ctx, &acct.ID, username, req, location, false, "account_locked", risk.Assessment{})
		s.logAuth("login", acct.ID, req, false, "account_locked", risk.Assessment{})
		s.timing.WaitFrom(start, false)
		return nil, &models.AccountLockedError{Until: *acct.LockedUntil}
	}

	if !acct.Active {
		s.recordAttempt(ctx, &acct.ID, username, req, location, false, "account_inactive", risk.Assessment{})
		s.logAuth("login", acct.ID, req, false, "account_inactive", risk.Assessment{})
		s.timing.WaitFrom(start, false)
		return nil, models.ErrInvalidCredentials
	}

	if err := pkgauth.ComparePassword(acct.PasswordHash, req.Password); err != nil {
		return nil, s.failPassword(ctx, acct, username, req, location, start)
	}

	// Credentials are good. History is read before this attempt is
	// recorded so novelty is judged against the past only.
	hist, err := s.attempts.History(ctx, acct.ID, start, s.rapidWindow)
	if err != nil {
		return nil, err
	}

	device, err := s.devices.Lookup(ctx, acct.ID, fingerprint)
	if err != nil {
		return nil, err
	}

	assessment := s.riskPolicy.Evaluate(risk.Attempt{IP: req.IPAddress, Location: location, At: start}, hist, device)

	if device != nil && device.Blocked {
		s.recordAttempt(ctx, &acct.ID, username, req, location, false, "device_blocked", assessment)
		s.logAuth("login", acct.ID, req, false, "device_blocked", assessment)
		s.timing.WaitFrom(start, false)
		return nil, models.ErrDeviceBlocked
	}

	if err := s.accounts.ResetFailedAttempts(ctx, acct.ID, start); err != nil {
		return nil, err
	}

	observed, isNew, err := s.devices.Observe(ctx, acct.ID, fingerprint, req.UserAgent, req.IPAddress, start)
	if err != nil {
		return nil, err
	}

	s.recordAttempt(ctx, &acct.ID, username, req, location, true, "", assessment)

	if assessment.Level.Meets(s.alertLevel) {
		desc := fmt.Sprintf("login scored %d (%s) from %s", assessment.Score, assessment.Level, location)
		if _, err := s.alerts.Raise(ctx, acct.ID, models.AlertTypeSuspiciousLogin, string(assessment.Level), desc); err != nil {
			s.logger.Error("suspicious login alert failed", "account_id", acct.ID, "error", err)
		}
	}

	pair, err := s.issueTokens(ctx, acct, req, start)
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, &models.AuditEntry{
		AccountID:  &acct.ID,
		Action:     models.AuditActionLogin,
		EntityType: "account",
		EntityID:   acct.ID,
		IPAddress:  req.IPAddress,
		UserAgent:  req.UserAgent,
		After: models.AuditSnapshot{
			"risk_score": assessment.Score,
			"risk_level": string(assessment.Level),
			"device_id":  observed.ID,
			"new_device": isNew,
		},
	})
	s.logAuth("login", acct.ID, req, true, "", assessment)

	return &LoginResult{
		Account:   acct.Summary(),
		Tokens:    pair,
		RiskScore: assessment.Score,
		RiskLevel: assessment.Level,
		NewDevice: isNew,
	}, nil
}

// failPassword applies the atomic failure counter and reports either the
// generic credential error or, when this failure crossed the threshold,
// the lockout with its expiry.
func (s *AuthService) failPassword(ctx context.Context, acct *models.Account, username string, req LoginRequest, location string, start time.Time) error {
	attemptCount, lockedUntil, err := s.accounts.RecordFailedAttempt(ctx, acct.ID, s.lockout.Threshold, start.Add(s.lockout.Duration))
	if err != nil {
		return err
	}

	justLocked := lockedUntil != nil && start.Before(*lockedUntil) && attemptCount >= s.lockout.Threshold

	reason := "bad_password"
	if justLocked {
		reason = "account_locked"
	}
	s.recordAttempt(ctx, &acct.ID, username, req, location, false, reason, risk.Assessment{})
	s.logAuth("login", acct.ID, req, false, reason, risk.Assessment{})

	if justLocked {
		desc := fmt.Sprintf("account locked after %d failed attempts", attemptCount)
		if _, err := s.alerts.Raise(ctx, acct.ID, models.AlertTypeAccountLocked, models.AlertSeverityHigh, desc); err != nil {
			s.logger.Error("lockout alert failed", "account_id", acct.ID, "error", err)
		}
		s.audit.Record(ctx, &models.AuditEntry{
			AccountID:  &acct.ID,
			Action:     models.AuditActionLoginFailed,
			EntityType: "account",
			EntityID:   acct.ID,
			IPAddress:  req.IPAddress,
			UserAgent:  req.UserAgent,
			After:      models.AuditSnapshot{"locked_until": lockedUntil.UTC().Format(time.RFC3339)},
		})
		s.timing.WaitFrom(start, false)
		return &models.AccountLockedError{Until: *lockedUntil}
	}

	s.timing.WaitFrom(start, false)
	return models.ErrInvalidCredentials
}

// issueTokens mints an access token, registers its session, and installs
// a fresh refresh token on the account.
func (s *AuthService) issueTokens(ctx context.Context, acct *models.Account, req LoginRequest, now time.Time) (*models.TokenPair, error) {
	accessToken, jti, accessExpiry, err := s.tokens.MintAccessToken(acct, now)
	if err != nil {
		return nil, err
	}

	session := &models.Session{
		TokenID:   jti,
		AccountID: acct.ID,
		IPAddress: req.IPAddress,
		UserAgent: req.UserAgent,
		IssuedAt:  now,
		ExpiresAt: accessExpiry,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}

	refreshPlain, refreshHash, err := pkgauth.GenerateOpaqueToken()
	if err != nil {
		return nil, err
	}
	refreshExpiry := now.Add(s.tokens.RefreshExpiry())
	if err := s.accounts.SetRefreshToken(ctx, acct.ID, refreshHash, refreshExpiry); err != nil {
		return nil, err
	}

	return &models.TokenPair{
		AccessToken:      accessToken,
		AccessExpiresAt:  accessExpiry,
		RefreshToken:     refreshPlain,
		RefreshExpiresAt: refreshExpiry,
	}, nil
}

// Refresh rotates a refresh token. The compare-and-swap on the stored
// hash makes each token single-use: the loser of a concurrent race gets
// ErrRefreshExpiredOrUnknown.
func (s *AuthService) Refresh(ctx context.Context, refreshToken, ip, userAgent string) (*LoginResult, error) {
	now := s.now()
	oldHash := pkgauth.HashOpaqueToken(refreshToken)

	acct, err := s.accounts.GetByRefreshTokenHash(ctx, oldHash)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrRefreshExpiredOrUnknown
		}
		return nil, err
	}

	if !acct.RefreshTokenValid(oldHash, now) || !acct.Active {
		return nil, models.ErrRefreshExpiredOrUnknown
	}
	if acct.Locked(now) {
		return nil, &models.AccountLockedError{Until: *acct.LockedUntil}
	}

	newPlain, newHash, err := pkgauth.GenerateOpaqueToken()
	if err != nil {
		return nil, err
	}
	refreshExpiry := now.Add(s.tokens.RefreshExpiry())

	rotated, err := s.accounts.RotateRefreshToken(ctx, acct.ID, oldHash, newHash, refreshExpiry)
	if err != nil {
		return nil, err
	}
	if !rotated {
		return nil, models.ErrRefreshExpiredOrUnknown
	}

	accessToken, jti, accessExpiry, err := s.tokens.MintAccessToken(acct, now)
	if err != nil {
		return nil, err
	}

	session := &models.Session{
		TokenID:   jti,
		AccountID: acct.ID,
		IPAddress: ip,
		UserAgent: userAgent,
		IssuedAt:  now,
		ExpiresAt: accessExpiry,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, &models.AuditEntry{
		AccountID:  &acct.ID,
		Action:     models.AuditActionTokenRefreshed,
		EntityType: "account",
		EntityID:   acct.ID,
		IPAddress:  ip,
		UserAgent:  userAgent,
	})

	return &LoginResult{
		Account: acct.Summary(),
		Tokens: &models.TokenPair{
			AccessToken:      accessToken,
			AccessExpiresAt:  accessExpiry,
			RefreshToken:     newPlain,
			RefreshExpiresAt: refreshExpiry,
		},
	}, nil
}

// Logout revokes the session behind an access token. Idempotent: an
// already revoked, expired, or unparseable token is not an error, since
// the caller's goal (token unusable) is already met.
func (s *AuthService) Logout(ctx context.Context, accessToken, ip, userAgent string) error {
	claims, err := s.tokens.ParseLenient(accessToken)
	if err != nil {
		return nil
	}

	if err := s.sessions.MarkInactive(ctx, claims.ID); err != nil {
		return err
	}

	s.audit.Record(ctx, &models.AuditEntry{
		AccountID:  &claims.AccountID,
		Action:     models.AuditActionLogout,
		EntityType: "session",
		EntityID:   claims.ID,
		IPAddress:  ip,
		UserAgent:  userAgent,
	})

	return nil
}

// LogoutAll revokes every session and the stored refresh token.
func (s *AuthService) LogoutAll(ctx context.Context, accountID, ip, userAgent string) (int, error) {
	revoked, err := s.sessions.InvalidateAll(ctx, accountID)
	if err != nil {
		return 0, err
	}

	if err := s.accounts.ClearRefreshToken(ctx, accountID); err != nil {
		return revoked, err
	}

	s.audit.Record(ctx, &models.AuditEntry{
		AccountID:  &accountID,
		Action:     models.AuditActionLogoutAll,
		EntityType: "account",
		EntityID:   accountID,
		IPAddress:  ip,
		UserAgent:  userAgent,
		After:      models.AuditSnapshot{"sessions_revoked": revoked},
	})

	return revoked, nil
}

// ChangePassword verifies the current password, installs the new one,
// and revokes every existing session.
func (s *AuthService) ChangePassword(ctx context.Context, accountID, currentPassword, newPassword, ip, userAgent string) error {
	acct, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return err
	}

	if err := pkgauth.ComparePassword(acct.PasswordHash, currentPassword); err != nil {
		return models.ErrInvalidCredentials
	}

	if err := pkgauth.ValidatePassword(newPassword); err != nil {
		return fmt.Errorf("%w: %s", models.ErrPasswordTooWeak, err.Error())
	}

	hash, err := pkgauth.HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.accounts.UpdatePassword(ctx, accountID, hash); err != nil {
		return err
	}

	if _, err := s.LogoutAll(ctx, accountID, ip, userAgent); err != nil {
		s.logger.Error("session revocation after password change failed", "account_id", accountID, "error", err)
	}

	s.audit.Record(ctx, &models.AuditEntry{
		AccountID:  &accountID,
		Action:     models.AuditActionPasswordChanged,
		EntityType: "account",
		EntityID:   accountID,
		IPAddress:  ip,
		UserAgent:  userAgent,
	})

	return nil
}

// ForgotPassword issues a reset token and mails it. Always succeeds from
// the caller's perspective so the endpoint cannot be used to probe which
// emails have accounts.
func (s *AuthService) ForgotPassword(ctx context.Context, email, ip, userAgent string) error {
	now := s.now()

	acct, err := s.accounts.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			s.logger.Error("reset request lookup failed", "error", err)
		}
		return nil
	}

	if err := s.resets.InvalidateUnused(ctx, acct.ID); err != nil {
		s.logger.Error("invalidating prior reset tokens failed", "account_id", acct.ID, "error", err)
		return nil
	}

	plain, hash, err := pkgauth.GenerateOpaqueToken()
	if err != nil {
		s.logger.Error("reset token generation failed", "error", err)
		return nil
	}

	token := &models.PasswordResetToken{
		AccountID: acct.ID,
		TokenHash: hash,
		ExpiresAt: now.Add(s.resetExpiry),
	}
	if err := s.resets.Create(ctx, token); err != nil {
		s.logger.Error("reset token persist failed", "account_id", acct.ID, "error", err)
		return nil
	}

	s.audit.Record(ctx, &models.AuditEntry{
		AccountID:  &acct.ID,
		Action:     models.AuditActionResetRequested,
		EntityType: "account",
		EntityID:   acct.ID,
		IPAddress:  ip,
		UserAgent:  userAgent,
	})

	// Delivery runs in the background; the HTTP response must not leak
	// delivery latency either.
	go func(email, plain string, expiresAt time.Time) {
		sendCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := s.email.SendPasswordResetEmail(sendCtx, email, plain, expiresAt); err != nil {
			s.logger.Error("reset email delivery failed", "error", err)
		}
	}(acct.Email, plain, token.ExpiresAt)

	return nil
}

// ResetPassword redeems a reset token. Single use: the UPDATE that marks
// it used only matches unused rows, so concurrent redemptions cannot
// both win.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword, ip, userAgent string) error {
	now := s.now()

	reset, err := s.resets.GetByTokenHash(ctx, pkgauth.HashOpaqueToken(token))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrResetTokenInvalid
		}
		return err
	}

	if !reset.Usable(now) {
		return models.ErrResetTokenInvalid
	}

	if err := pkgauth.ValidatePassword(newPassword); err != nil {
		return fmt.Errorf("%w: %s", models.ErrPasswordTooWeak, err.Error())
	}

	used, err := s.resets.MarkUsed(ctx, reset.ID)
	if err != nil {
		return err
	}
	if !used {
		return models.ErrResetTokenInvalid
	}

	hash, err := pkgauth.HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.accounts.UpdatePassword(ctx, reset.AccountID, hash); err != nil {
		return err
	}

	if _, err := s.LogoutAll(ctx, reset.AccountID, ip, userAgent); err != nil {
		s.logger.Error("session revocation after password reset failed", "account_id", reset.AccountID, "error", err)
	}

	s.audit.Record(ctx, &models.AuditEntry{
		AccountID:  &reset.AccountID,
		Action:     models.AuditActionPasswordReset,
		EntityType: "account",
		EntityID:   reset.AccountID,
		IPAddress:  ip,
		UserAgent:  userAgent,
	})

	return nil
}

// recordAttempt persists the attempt row. Best effort, same rationale as
// the audit log.
func (s *AuthService) recordAttempt(ctx context.Context, accountID *string, username string, req LoginRequest, location string, success bool, failureReason string, assessment risk.Assessment) {
	attempt := &models.LoginAttempt{
		AccountID:   accountID,
		Username:    username,
		AttemptTime: s.now(),
		IPAddress:   req.IPAddress,
		UserAgent:   req.UserAgent,
		Location:    location,
		Success:     success,
		Flags:       assessment.Flags,
		RiskScore:   assessment.Score,
		RiskLevel:   assessment.Level,
	}
	if attempt.RiskLevel == "" {
		attempt.RiskLevel = models.RiskLevelLow
	}
	if failureReason != "" {
		attempt.FailureReason = &failureReason
	}

	if err := s.attempts.Record(ctx, attempt); err != nil {
		s.logger.Error("login attempt record failed", "error", err)
	}
}

func (s *AuthService) logAuth(eventType, accountID string, req LoginRequest, success bool, failureReason string, assessment risk.Assessment) {
	event := pkglogger.SecurityEvent{
		EventType:     eventType,
		AccountID:     accountID,
		IPAddress:     req.IPAddress,
		UserAgent:     req.UserAgent,
		Success:       success,
		FailureReason: failureReason,
	}
	if assessment.Level != "" {
		event.RiskScore = assessment.Score
		event.RiskLevel = string(assessment.Level)
	}
	s.secLog.LogAuthEvent(event)
}

// ListLoginAttempts exposes the attempt history for the admin surface.
func (s *AuthService) ListLoginAttempts(ctx context.Context, accountID string, limit int) ([]*models.LoginAttempt, error) {
	return s.attempts.ListByAccount(ctx, accountID, limit)
}
