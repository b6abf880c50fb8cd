package services

import (
	"context"
	"time"

	"github.com/palletline/gatehouse/internal/models"
)

// Repository interfaces are declared where they are consumed so the
// service layer can be tested against in-memory fakes.

type AccountRepository interface {
	GetByID(ctx context.Context, id string) (*models.Account, error)
	GetByUsername(ctx context.Context, username string) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	Create(ctx context.Context, acct *models.Account) error
	RecordFailedAttempt(ctx context.Context, id string, threshold int, lockUntil time.Time) (int, *time.Time, error)
	ResetFailedAttempts(ctx context.Context, id string, loginAt time.Time) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	SetRefreshToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error
	RotateRefreshToken(ctx context.Context, id, oldHash, newHash string, expiresAt time.Time) (bool, error)
	GetByRefreshTokenHash(ctx context.Context, tokenHash string) (*models.Account, error)
	ClearRefreshToken(ctx context.Context, id string) error
}

type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	GetByTokenID(ctx context.Context, tokenID string) (*models.Session, error)
	IsActive(ctx context.Context, tokenID string) (bool, error)
	MarkInactive(ctx context.Context, tokenID string) error
	InvalidateAll(ctx context.Context, accountID string) ([]string, error)
	ListByAccount(ctx context.Context, accountID string, limit int) ([]*models.Session, error)
}

type DeviceRepository interface {
	GetByID(ctx context.Context, id string) (*models.TrustedDevice, error)
	GetByFingerprint(ctx context.Context, accountID, fingerprint string) (*models.TrustedDevice, error)
	Create(ctx context.Context, device *models.TrustedDevice) error
	RecordLogin(ctx context.Context, id, ip string, seenAt time.Time) (*models.TrustedDevice, error)
	SetTrustLevel(ctx context.Context, id, trustLevel string) error
	Block(ctx context.Context, id, reason string) (*models.TrustedDevice, error)
	ListByAccount(ctx context.Context, accountID string) ([]*models.TrustedDevice, error)
}

type LoginAttemptRepository interface {
	Record(ctx context.Context, attempt *models.LoginAttempt) error
	History(ctx context.Context, accountID string, now time.Time, rapidWindow time.Duration) (models.LoginHistory, error)
	ListByAccount(ctx context.Context, accountID string, limit int) ([]*models.LoginAttempt, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type SecurityAlertRepository interface {
	Create(ctx context.Context, alert *models.SecurityAlert) error
	GetByID(ctx context.Context, id string) (*models.SecurityAlert, error)
	Resolve(ctx context.Context, id, notes string) (*models.SecurityAlert, error)
	List(ctx context.Context, accountID string, onlyOpen bool, limit int) ([]*models.SecurityAlert, error)
	CountOpenForAccount(ctx context.Context, accountID string) (int, error)
}

type AuditEntryRepository interface {
	Create(ctx context.Context, entry *models.AuditEntry) error
	ListByAccount(ctx context.Context, accountID string, limit int) ([]*models.AuditEntry, error)
}

type PasswordResetRepository interface {
	Create(ctx context.Context, token *models.PasswordResetToken) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*models.PasswordResetToken, error)
	MarkUsed(ctx context.Context, id string) (bool, error)
	InvalidateUnused(ctx context.Context, accountID string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
