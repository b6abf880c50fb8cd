package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/palletline/gatehouse/internal/database"
	"github.com/palletline/gatehouse/internal/models"
)

type DeviceRepository struct {
	pool *pgxpool.Pool
}

func NewDeviceRepository(db *database.DB) *DeviceRepository {
	return &DeviceRepository{pool: db.Pool}
}

const deviceColumns = `id, account_id, fingerprint, device_name, os, browser,
		first_seen_at, last_seen_at, last_ip, login_count, trust_level,
		risk_score, blocked, blocked_reason, blocked_at`

func scanDeviceRow(scanner rowScanner) (*models.TrustedDevice, error) {
	var d models.TrustedDevice

	err := scanner.Scan(
		&d.ID, &d.AccountID, &d.Fingerprint, &d.DeviceName, &d.OS, &d.Browser,
		&d.FirstSeenAt, &d.LastSeenAt, &d.LastIP, &d.LoginCount, &d.TrustLevel,
		&d.RiskScore, &d.Blocked, &d.BlockedReason, &d.BlockedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &d, nil
}

func (r *DeviceRepository) GetByID(ctx context.Context, id string) (*models.TrustedDevice, error) {
	query := `SELECT ` + deviceColumns + ` FROM trusted_devices WHERE id = $1`
	return scanDeviceRow(r.pool.QueryRow(ctx, query, id))
}

func (r *DeviceRepository) GetByFingerprint(ctx context.Context, accountID, fingerprint string) (*models.TrustedDevice, error) {
	query := `SELECT ` + deviceColumns + ` FROM trusted_devices WHERE account_id = $1 AND fingerprint = $2`
	return scanDeviceRow(r.pool.QueryRow(ctx, query, accountID, fingerprint))
}

func (r *DeviceRepository) Create(ctx context.Context, device *models.TrustedDevice) error {
	if device.ID == "" {
		device.ID = uuid.New().String()
	}

	query := `
		INSERT INTO trusted_devices (id, account_id, fingerprint, device_name, os, browser,
			first_seen_at, last_seen_at, last_ip, login_count, trust_level, risk_score)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.pool.Exec(ctx, query,
		device.ID, device.AccountID, device.Fingerprint,
		device.DeviceName, device.OS, device.Browser,
		device.FirstSeenAt, device.LastSeenAt, device.LastIP,
		device.LoginCount, device.TrustLevel, device.RiskScore,
	)
	if err != nil {
		return database.MapPostgresError(err)
	}

	return nil
}

// RecordLogin bumps the login counter and refreshes last-seen metadata.
func (r *DeviceRepository) RecordLogin(ctx context.Context, id, ip string, seenAt time.Time) (*models.TrustedDevice, error) {
	query := `
		UPDATE trusted_devices
		SET login_count = login_count + 1, last_seen_at = $2, last_ip = $3
		WHERE id = $1
		RETURNING ` + deviceColumns

	return scanDeviceRow(r.pool.QueryRow(ctx, query, id, seenAt, ip))
}

func (r *DeviceRepository) SetTrustLevel(ctx context.Context, id, trustLevel string) error {
	query := `UPDATE trusted_devices SET trust_level = $2 WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, id, trustLevel)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// Block marks the device blocked. Blocking an already blocked device
// keeps the original blocked_at and reason.
func (r *DeviceRepository) Block(ctx context.Context, id, reason string) (*models.TrustedDevice, error) {
	query := `
		UPDATE trusted_devices
		SET blocked = true,
		    blocked_reason = COALESCE(blocked_reason, $2),
		    blocked_at = COALESCE(blocked_at, now())
		WHERE id = $1
		RETURNING ` + deviceColumns

	return scanDeviceRow(r.pool.QueryRow(ctx, query, id, reason))
}

func (r *DeviceRepository) ListByAccount(ctx context.Context, accountID string) ([]*models.TrustedDevice, error) {
	query := `SELECT ` + deviceColumns + ` FROM trusted_devices WHERE account_id = $1 ORDER BY last_seen_at DESC`

	rows, err := r.pool.Query(ctx, query, accountID)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	devices := make([]*models.TrustedDevice, 0)
	for rows.Next() {
		device, err := scanDeviceRow(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, device)
	}
	if err := rows.Err(); err != nil {
		return nil, database.MapPostgresError(err)
	}

	return devices, nil
}
