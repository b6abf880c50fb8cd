package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/palletline/gatehouse/internal/database"
	"github.com/palletline/gatehouse/internal/models"
)

type AccountRepository struct {
	pool *pgxpool.Pool
}

func NewAccountRepository(db *database.DB) *AccountRepository {
	return &AccountRepository{pool: db.Pool}
}

// rowScanner lets the same scan helper serve pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

const accountColumns = `id, username, email, password_hash, role, company_id, department_id,
		active, failed_attempts, locked_until, refresh_token_hash, refresh_token_expires_at,
		last_login_at, created_at, updated_at`

func scanAccountRow(scanner rowScanner) (*models.Account, error) {
	var acct models.Account

	err := scanner.Scan(
		&acct.ID, &acct.Username, &acct.Email, &acct.PasswordHash,
		&acct.Role, &acct.CompanyID, &acct.DepartmentID, &acct.Active,
		&acct.FailedAttempts, &acct.LockedUntil,
		&acct.RefreshTokenHash, &acct.RefreshTokenExpiresAt,
		&acct.LastLoginAt, &acct.CreatedAt, &acct.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &acct, nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccountRow(r.pool.QueryRow(ctx, query, id))
}

func (r *AccountRepository) GetByUsername(ctx context.Context, username string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE username = $1`
	return scanAccountRow(r.pool.QueryRow(ctx, query, username))
}

func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`
	return scanAccountRow(r.pool.QueryRow(ctx, query, email))
}

func (r *AccountRepository) Create(ctx context.Context, acct *models.Account) error {
	if acct.ID == "" {
		acct.ID = uuid.New().String()
	}

	query := `
		INSERT INTO accounts (id, username, email, password_hash, role, company_id, department_id, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`

	err := r.pool.QueryRow(ctx, query,
		acct.ID, acct.Username, acct.Email, acct.PasswordHash,
		acct.Role, acct.CompanyID, acct.DepartmentID, acct.Active,
	).Scan(&acct.CreatedAt, &acct.UpdatedAt)
	if err != nil {
		return database.MapPostgresError(err)
	}

	return nil
}

// RecordFailedAttempt increments the failure counter and, if the counter
// reaches threshold, sets the lockout expiry. One statement so two
// concurrent failures cannot both read the same counter value.
func (r *AccountRepository) RecordFailedAttempt(ctx context.Context, id string, threshold int, lockUntil time.Time) (attempts int, lockedUntil *time.Time, err error) {
	query := `
		UPDATE accounts
		SET failed_attempts = failed_attempts + 1,
		    locked_until = CASE WHEN failed_attempts + 1 >= $2 THEN $3 ELSE locked_until END,
		    updated_at = now()
		WHERE id = $1
		RETURNING failed_attempts, locked_until
	`

	err = r.pool.QueryRow(ctx, query, id, threshold, lockUntil).Scan(&attempts, &lockedUntil)
	if err != nil {
		return 0, nil, database.MapPostgresError(err)
	}

	return attempts, lockedUntil, nil
}

// ResetFailedAttempts clears the counter and lockout after a successful
// authentication, and stamps the login time.
func (r *AccountRepository) ResetFailedAttempts(ctx context.Context, id string, loginAt time.Time) error {
	query := `
		UPDATE accounts
		SET failed_attempts = 0, locked_until = NULL, last_login_at = $2, updated_at = now()
		WHERE id = $1
	`

	tag, err := r.pool.Exec(ctx, query, id, loginAt)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

func (r *AccountRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	query := `UPDATE accounts SET password_hash = $2, updated_at = now() WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, id, passwordHash)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// SetRefreshToken stores the hash of a freshly issued refresh token,
// replacing whatever was there before.
func (r *AccountRepository) SetRefreshToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error {
	query := `
		UPDATE accounts
		SET refresh_token_hash = $2, refresh_token_expires_at = $3, updated_at = now()
		WHERE id = $1
	`

	tag, err := r.pool.Exec(ctx, query, id, tokenHash, expiresAt)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// RotateRefreshToken swaps oldHash for newHash only if oldHash is still
// the stored value. Returns false when another request rotated first;
// the compare-and-swap makes a presented refresh token single-use.
func (r *AccountRepository) RotateRefreshToken(ctx context.Context, id, oldHash, newHash string, expiresAt time.Time) (bool, error) {
	query := `
		UPDATE accounts
		SET refresh_token_hash = $3, refresh_token_expires_at = $4, updated_at = now()
		WHERE id = $1 AND refresh_token_hash = $2
	`

	tag, err := r.pool.Exec(ctx, query, id, oldHash, newHash, expiresAt)
	if err != nil {
		return false, database.MapPostgresError(err)
	}

	return tag.RowsAffected() == 1, nil
}

func (r *AccountRepository) GetByRefreshTokenHash(ctx context.Context, tokenHash string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE refresh_token_hash = $1`
	return scanAccountRow(r.pool.QueryRow(ctx, query, tokenHash))
}

func (r *AccountRepository) ClearRefreshToken(ctx context.Context, id string) error {
	query := `
		UPDATE accounts
		SET refresh_token_hash = NULL, refresh_token_expires_at = NULL, updated_at = now()
		WHERE id = $1
	`

	if _, err := r.pool.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("clear refresh token: %w", database.MapPostgresError(err))
	}

	return nil
}
