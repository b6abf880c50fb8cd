package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/palletline/gatehouse/internal/database"
	"github.com/palletline/gatehouse/internal/models"
)

type LoginAttemptRepository struct {
	pool *pgxpool.Pool
}

func NewLoginAttemptRepository(db *database.DB) *LoginAttemptRepository {
	return &LoginAttemptRepository{pool: db.Pool}
}

func (r *LoginAttemptRepository) Record(ctx context.Context, attempt *models.LoginAttempt) error {
	if attempt.ID == "" {
		attempt.ID = uuid.New().String()
	}

	query := `
		INSERT INTO login_attempts (id, account_id, username, attempt_time, ip_address, user_agent,
			location, success, failure_reason,
			new_device, new_ip, new_location, off_hours, rapid_repeat,
			risk_score, risk_level)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	_, err := r.pool.Exec(ctx, query,
		attempt.ID, attempt.AccountID, attempt.Username, attempt.AttemptTime,
		attempt.IPAddress, attempt.UserAgent, attempt.Location,
		attempt.Success, attempt.FailureReason,
		attempt.Flags.NewDevice, attempt.Flags.NewIP, attempt.Flags.NewLocation,
		attempt.Flags.OffHours, attempt.Flags.RapidRepeat,
		attempt.RiskScore, attempt.RiskLevel,
	)
	if err != nil {
		return database.MapPostgresError(err)
	}

	return nil
}

// History aggregates the account's prior attempts for risk evaluation.
// Call it before recording the current attempt, or the attempt will be
// judged against itself.
func (r *LoginAttemptRepository) History(ctx context.Context, accountID string, now time.Time, rapidWindow time.Duration) (models.LoginHistory, error) {
	var hist models.LoginHistory

	query := `
		SELECT
			COALESCE(array_agg(DISTINCT ip_address) FILTER (WHERE success), '{}'),
			COALESCE(array_agg(DISTINCT location) FILTER (WHERE success AND location <> ''), '{}'),
			COALESCE(array_agg(DISTINCT extract(hour FROM attempt_time AT TIME ZONE 'UTC')::int) FILTER (WHERE success), '{}'),
			count(*) FILTER (WHERE success),
			count(*) FILTER (WHERE attempt_time > $2)
		FROM login_attempts
		WHERE account_id = $1
	`

	err := r.pool.QueryRow(ctx, query, accountID, now.Add(-rapidWindow)).Scan(
		&hist.KnownIPs, &hist.KnownLocations, &hist.ActiveHours,
		&hist.SuccessCount, &hist.RecentAttempts,
	)
	if err != nil {
		return models.LoginHistory{}, database.MapPostgresError(err)
	}

	return hist, nil
}

func (r *LoginAttemptRepository) ListByAccount(ctx context.Context, accountID string, limit int) ([]*models.LoginAttempt, error) {
	query := `
		SELECT id, account_id, username, attempt_time, ip_address, user_agent, location,
			success, failure_reason,
			new_device, new_ip, new_location, off_hours, rapid_repeat,
			risk_score, risk_level
		FROM login_attempts
		WHERE account_id = $1
		ORDER BY attempt_time DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, accountID, limit)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	attempts := make([]*models.LoginAttempt, 0)
	for rows.Next() {
		var a models.LoginAttempt
		err := rows.Scan(
			&a.ID, &a.AccountID, &a.Username, &a.AttemptTime,
			&a.IPAddress, &a.UserAgent, &a.Location,
			&a.Success, &a.FailureReason,
			&a.Flags.NewDevice, &a.Flags.NewIP, &a.Flags.NewLocation,
			&a.Flags.OffHours, &a.Flags.RapidRepeat,
			&a.RiskScore, &a.RiskLevel,
		)
		if err != nil {
			return nil, database.MapPostgresError(err)
		}
		attempts = append(attempts, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, database.MapPostgresError(err)
	}

	return attempts, nil
}

// DeleteOlderThan trims attempt records past the retention horizon.
func (r *LoginAttemptRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM login_attempts WHERE attempt_time < $1`, cutoff)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}

	return tag.RowsAffected(), nil
}
