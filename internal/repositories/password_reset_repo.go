package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/palletline/gatehouse/internal/database"
	"github.com/palletline/gatehouse/internal/models"
)

type PasswordResetRepository struct {
	pool *pgxpool.Pool
}

func NewPasswordResetRepository(db *database.DB) *PasswordResetRepository {
	return &PasswordResetRepository{pool: db.Pool}
}

func (r *PasswordResetRepository) Create(ctx context.Context, token *models.PasswordResetToken) error {
	if token.ID == "" {
		token.ID = uuid.New().String()
	}

	query := `
		INSERT INTO password_reset_tokens (id, account_id, token_hash, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`

	err := r.pool.QueryRow(ctx, query,
		token.ID, token.AccountID, token.TokenHash, token.ExpiresAt,
	).Scan(&token.CreatedAt)
	if err != nil {
		return database.MapPostgresError(err)
	}

	return nil
}

func (r *PasswordResetRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*models.PasswordResetToken, error) {
	query := `
		SELECT id, account_id, token_hash, expires_at, used_at, created_at
		FROM password_reset_tokens
		WHERE token_hash = $1
	`

	var t models.PasswordResetToken
	err := r.pool.QueryRow(ctx, query, tokenHash).Scan(
		&t.ID, &t.AccountID, &t.TokenHash, &t.ExpiresAt, &t.UsedAt, &t.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &t, nil
}

// MarkUsed consumes the token. Returns false if it was already used, so
// two concurrent redemptions cannot both succeed.
func (r *PasswordResetRepository) MarkUsed(ctx context.Context, id string) (bool, error) {
	query := `UPDATE password_reset_tokens SET used_at = now() WHERE id = $1 AND used_at IS NULL`

	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return false, database.MapPostgresError(err)
	}

	return tag.RowsAffected() == 1, nil
}

// InvalidateUnused removes outstanding tokens for an account so only the
// most recently requested one works.
func (r *PasswordResetRepository) InvalidateUnused(ctx context.Context, accountID string) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM password_reset_tokens WHERE account_id = $1 AND used_at IS NULL`,
		accountID,
	)
	if err != nil {
		return database.MapPostgresError(err)
	}

	return nil
}

func (r *PasswordResetRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM password_reset_tokens WHERE expires_at < $1`, now)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}

	return tag.RowsAffected(), nil
}
