package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/palletline/gatehouse/internal/models"
)

// Func-field mocks: each method delegates to its field when set and
// otherwise returns a zero value or ErrNotFound.

type mockAccountRepo struct {
	GetByIDFunc               func(ctx context.Context, id string) (*models.Account, error)
	GetByUsernameFunc         func(ctx context.Context, username string) (*models.Account, error)
	GetByEmailFunc            func(ctx context.Context, email string) (*models.Account, error)
	CreateFunc                func(ctx context.Context, acct *models.Account) error
	RecordFailedAttemptFunc   func(ctx context.Context, id string, threshold int, lockUntil time.Time) (int, *time.Time, error)
	ResetFailedAttemptsFunc   func(ctx context.Context, id string, loginAt time.Time) error
	UpdatePasswordFunc        func(ctx context.Context, id, passwordHash string) error
	SetRefreshTokenFunc       func(ctx context.Context, id, tokenHash string, expiresAt time.Time) error
	RotateRefreshTokenFunc    func(ctx context.Context, id, oldHash, newHash string, expiresAt time.Time) (bool, error)
	GetByRefreshTokenHashFunc func(ctx context.Context, tokenHash string) (*models.Account, error)
	ClearRefreshTokenFunc     func(ctx context.Context, id string) error
}

func (m *mockAccountRepo) GetByID(ctx context.Context, id string) (*models.Account, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *mockAccountRepo) GetByUsername(ctx context.Context, username string) (*models.Account, error) {
	if m.GetByUsernameFunc != nil {
		return m.GetByUsernameFunc(ctx, username)
	}
	return nil, models.ErrNotFound
}

func (m *mockAccountRepo) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *mockAccountRepo) Create(ctx context.Context, acct *models.Account) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, acct)
	}
	return nil
}

func (m *mockAccountRepo) RecordFailedAttempt(ctx context.Context, id string, threshold int, lockUntil time.Time) (int, *time.Time, error) {
	if m.RecordFailedAttemptFunc != nil {
		return m.RecordFailedAttemptFunc(ctx, id, threshold, lockUntil)
	}
	return 1, nil, nil
}

func (m *mockAccountRepo) ResetFailedAttempts(ctx context.Context, id string, loginAt time.Time) error {
	if m.ResetFailedAttemptsFunc != nil {
		return m.ResetFailedAttemptsFunc(ctx, id, loginAt)
	}
	return nil
}

func (m *mockAccountRepo) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	if m.UpdatePasswordFunc != nil {
		return m.UpdatePasswordFunc(ctx, id, passwordHash)
	}
	return nil
}

func (m *mockAccountRepo) SetRefreshToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error {
	if m.SetRefreshTokenFunc != nil {
		return m.SetRefreshTokenFunc(ctx, id, tokenHash, expiresAt)
	}
	return nil
}

func (m *mockAccountRepo) RotateRefreshToken(ctx context.Context, id, oldHash, newHash string, expiresAt time.Time) (bool, error) {
	if m.RotateRefreshTokenFunc != nil {
		return m.RotateRefreshTokenFunc(ctx, id, oldHash, newHash, expiresAt)
	}
	return true, nil
}

func (m *mockAccountRepo) GetByRefreshTokenHash(ctx context.Context, tokenHash string) (*models.Account, error) {
	if m.GetByRefreshTokenHashFunc != nil {
		return m.GetByRefreshTokenHashFunc(ctx, tokenHash)
	}
	return nil, models.ErrNotFound
}

func (m *mockAccountRepo) ClearRefreshToken(ctx context.Context, id string) error {
	if m.ClearRefreshTokenFunc != nil {
		return m.ClearRefreshTokenFunc(ctx, id)
	}
	return nil
}

// memSessionRepo is a thread-safe in-memory session store. Sessions are
// flipped inactive, never deleted, mirroring the real repository.
type memSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{sessions: make(map[string]*models.Session)}
}

func (m *memSessionRepo) Create(ctx context.Context, session *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	session.Active = true
	m.sessions[session.TokenID] = session
	return nil
}

func (m *memSessionRepo) GetByTokenID(ctx context.Context, tokenID string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[tokenID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return s, nil
}

func (m *memSessionRepo) IsActive(ctx context.Context, tokenID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[tokenID]
	if !ok {
		return false, nil
	}
	return s.Active && time.Now().Before(s.ExpiresAt), nil
}

func (m *memSessionRepo) MarkInactive(ctx context.Context, tokenID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[tokenID]; ok && s.Active {
		now := time.Now()
		s.Active = false
		s.RevokedAt = &now
	}
	return nil
}

func (m *memSessionRepo) InvalidateAll(ctx context.Context, accountID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	revoked := make([]string, 0)
	for _, s := range m.sessions {
		if s.AccountID == accountID && s.Active {
			s.Active = false
			s.RevokedAt = &now
			revoked = append(revoked, s.TokenID)
		}
	}
	return revoked, nil
}

func (m *memSessionRepo) ListByAccount(ctx context.Context, accountID string, limit int) ([]*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Session, 0)
	for _, s := range m.sessions {
		if s.AccountID == accountID {
			out = append(out, s)
		}
	}
	return out, nil
}

type mockDeviceRepo struct {
	GetByIDFunc          func(ctx context.Context, id string) (*models.TrustedDevice, error)
	GetByFingerprintFunc func(ctx context.Context, accountID, fingerprint string) (*models.TrustedDevice, error)
	CreateFunc           func(ctx context.Context, device *models.TrustedDevice) error
	RecordLoginFunc      func(ctx context.Context, id, ip string, seenAt time.Time) (*models.TrustedDevice, error)
	SetTrustLevelFunc    func(ctx context.Context, id, trustLevel string) error
	BlockFunc            func(ctx context.Context, id, reason string) (*models.TrustedDevice, error)
	ListByAccountFunc    func(ctx context.Context, accountID string) ([]*models.TrustedDevice, error)
}

func (m *mockDeviceRepo) GetByID(ctx context.Context, id string) (*models.TrustedDevice, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *mockDeviceRepo) GetByFingerprint(ctx context.Context, accountID, fingerprint string) (*models.TrustedDevice, error) {
	if m.GetByFingerprintFunc != nil {
		return m.GetByFingerprintFunc(ctx, accountID, fingerprint)
	}
	return nil, models.ErrNotFound
}

func (m *mockDeviceRepo) Create(ctx context.Context, device *models.TrustedDevice) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, device)
	}
	if device.ID == "" {
		device.ID = uuid.New().String()
	}
	return nil
}

func (m *mockDeviceRepo) RecordLogin(ctx context.Context, id, ip string, seenAt time.Time) (*models.TrustedDevice, error) {
	if m.RecordLoginFunc != nil {
		return m.RecordLoginFunc(ctx, id, ip, seenAt)
	}
	return nil, models.ErrNotFound
}

func (m *mockDeviceRepo) SetTrustLevel(ctx context.Context, id, trustLevel string) error {
	if m.SetTrustLevelFunc != nil {
		return m.SetTrustLevelFunc(ctx, id, trustLevel)
	}
	return nil
}

func (m *mockDeviceRepo) Block(ctx context.Context, id, reason string) (*models.TrustedDevice, error) {
	if m.BlockFunc != nil {
		return m.BlockFunc(ctx, id, reason)
	}
	return nil, models.ErrNotFound
}

func (m *mockDeviceRepo) ListByAccount(ctx context.Context, accountID string) ([]*models.TrustedDevice, error) {
	if m.ListByAccountFunc != nil {
		return m.ListByAccountFunc(ctx, accountID)
	}
	return nil, nil
}

// memAttemptRepo records attempts in memory and serves History from the
// recorded rows, preserving the history-before-record ordering contract.
type memAttemptRepo struct {
	mu       sync.Mutex
	attempts []*models.LoginAttempt
}

func newMemAttemptRepo() *memAttemptRepo {
	return &memAttemptRepo{}
}

func (m *memAttemptRepo) Record(ctx context.Context, attempt *models.LoginAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if attempt.ID == "" {
		attempt.ID = uuid.New().String()
	}
	m.attempts = append(m.attempts, attempt)
	return nil
}

func (m *memAttemptRepo) History(ctx context.Context, accountID string, now time.Time, rapidWindow time.Duration) (models.LoginHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	hist := models.LoginHistory{}
	seenIPs := map[string]bool{}
	seenLocations := map[string]bool{}
	seenHours := map[int]bool{}

	for _, a := range m.attempts {
		if a.AccountID == nil || *a.AccountID != accountID {
			continue
		}
		if a.AttemptTime.After(now.Add(-rapidWindow)) {
			hist.RecentAttempts++
		}
		if !a.Success {
			continue
		}
		hist.SuccessCount++
		if !seenIPs[a.IPAddress] {
			seenIPs[a.IPAddress] = true
			hist.KnownIPs = append(hist.KnownIPs, a.IPAddress)
		}
		if a.Location != "" && !seenLocations[a.Location] {
			seenLocations[a.Location] = true
			hist.KnownLocations = append(hist.KnownLocations, a.Location)
		}
		hour := a.AttemptTime.UTC().Hour()
		if !seenHours[hour] {
			seenHours[hour] = true
			hist.ActiveHours = append(hist.ActiveHours, hour)
		}
	}

	return hist, nil
}

func (m *memAttemptRepo) ListByAccount(ctx context.Context, accountID string, limit int) ([]*models.LoginAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.LoginAttempt, 0)
	for _, a := range m.attempts {
		if a.AccountID != nil && *a.AccountID == accountID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memAttemptRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func (m *memAttemptRepo) all() []*models.LoginAttempt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.LoginAttempt(nil), m.attempts...)
}

// memAlertRepo collects raised alerts.
type memAlertRepo struct {
	mu     sync.Mutex
	alerts []*models.SecurityAlert
}

func newMemAlertRepo() *memAlertRepo {
	return &memAlertRepo{}
}

func (m *memAlertRepo) Create(ctx context.Context, alert *models.SecurityAlert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}
	alert.CreatedAt = time.Now()
	m.alerts = append(m.alerts, alert)
	return nil
}

func (m *memAlertRepo) GetByID(ctx context.Context, id string) (*models.SecurityAlert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.alerts {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, models.ErrNotFound
}

func (m *memAlertRepo) Resolve(ctx context.Context, id, notes string) (*models.SecurityAlert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.alerts {
		if a.ID == id {
			if !a.Resolved {
				now := time.Now()
				a.Resolved = true
				a.ResolvedAt = &now
				a.ResolutionNotes = &notes
			}
			return a, nil
		}
	}
	return nil, models.ErrNotFound
}

func (m *memAlertRepo) List(ctx context.Context, accountID string, onlyOpen bool, limit int) ([]*models.SecurityAlert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.SecurityAlert, 0)
	for _, a := range m.alerts {
		if accountID != "" && a.AccountID != accountID {
			continue
		}
		if onlyOpen && a.Resolved {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (m *memAlertRepo) CountOpenForAccount(ctx context.Context, accountID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, a := range m.alerts {
		if a.AccountID == accountID && !a.Resolved {
			count++
		}
	}
	return count, nil
}

func (m *memAlertRepo) byType(alertType string) []*models.SecurityAlert {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.SecurityAlert, 0)
	for _, a := range m.alerts {
		if a.Type == alertType {
			out = append(out, a)
		}
	}
	return out
}

// memAuditRepo collects audit entries.
type memAuditRepo struct {
	mu      sync.Mutex
	entries []*models.AuditEntry
}

func newMemAuditRepo() *memAuditRepo {
	return &memAuditRepo{}
}

func (m *memAuditRepo) Create(ctx context.Context, entry *models.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	entry.CreatedAt = time.Now()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *memAuditRepo) ListByAccount(ctx context.Context, accountID string, limit int) ([]*models.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.AuditEntry, 0)
	for _, e := range m.entries {
		if e.AccountID != nil && *e.AccountID == accountID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memAuditRepo) byAction(action string) []*models.AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.AuditEntry, 0)
	for _, e := range m.entries {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

type mockResetRepo struct {
	CreateFunc           func(ctx context.Context, token *models.PasswordResetToken) error
	GetByTokenHashFunc   func(ctx context.Context, tokenHash string) (*models.PasswordResetToken, error)
	MarkUsedFunc         func(ctx context.Context, id string) (bool, error)
	InvalidateUnusedFunc func(ctx context.Context, accountID string) error
	DeleteExpiredFunc    func(ctx context.Context, now time.Time) (int64, error)
}

func (m *mockResetRepo) Create(ctx context.Context, token *models.PasswordResetToken) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, token)
	}
	return nil
}

func (m *mockResetRepo) GetByTokenHash(ctx context.Context, tokenHash string) (*models.PasswordResetToken, error) {
	if m.GetByTokenHashFunc != nil {
		return m.GetByTokenHashFunc(ctx, tokenHash)
	}
	return nil, models.ErrNotFound
}

func (m *mockResetRepo) MarkUsed(ctx context.Context, id string) (bool, error) {
	if m.MarkUsedFunc != nil {
		return m.MarkUsedFunc(ctx, id)
	}
	return true, nil
}

func (m *mockResetRepo) InvalidateUnused(ctx context.Context, accountID string) error {
	if m.InvalidateUnusedFunc != nil {
		return m.InvalidateUnusedFunc(ctx, accountID)
	}
	return nil
}

func (m *mockResetRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	if m.DeleteExpiredFunc != nil {
		return m.DeleteExpiredFunc(ctx, now)
	}
	return 0, nil
}

// mockEmailSender records deliveries.
type mockEmailSender struct {
	mu    sync.Mutex
	sent  []string
	token string
}

func (m *mockEmailSender) SendPasswordResetEmail(ctx context.Context, email, token string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, email)
	m.token = token
	return nil
}

func (m *mockEmailSender) sentTo() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.sent...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
