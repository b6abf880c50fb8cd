package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/palletline/gatehouse/internal/database"
	"github.com/palletline/gatehouse/internal/models"
)

// SessionRepository persists issued-token records. Sessions are never
// deleted; revocation flips active to false and stamps revoked_at.
type SessionRepository struct {
	pool *pgxpool.Pool
}

func NewSessionRepository(db *database.DB) *SessionRepository {
	return &SessionRepository{pool: db.Pool}
}

func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	if session.ID == "" {
		session.ID = uuid.New().String()
	}

	query := `
		INSERT INTO sessions (id, token_id, account_id, ip_address, user_agent, issued_at, expires_at, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, true)
	`

	_, err := r.pool.Exec(ctx, query,
		session.ID, session.TokenID, session.AccountID,
		session.IPAddress, session.UserAgent,
		session.IssuedAt, session.ExpiresAt,
	)
	if err != nil {
		return database.MapPostgresError(err)
	}

	session.Active = true
	return nil
}

func (r *SessionRepository) GetByTokenID(ctx context.Context, tokenID string) (*models.Session, error) {
	query := `
		SELECT id, token_id, account_id, ip_address, user_agent, issued_at, expires_at, active, revoked_at
		FROM sessions WHERE token_id = $1
	`

	var s models.Session
	err := r.pool.QueryRow(ctx, query, tokenID).Scan(
		&s.ID, &s.TokenID, &s.AccountID, &s.IPAddress, &s.UserAgent,
		&s.IssuedAt, &s.ExpiresAt, &s.Active, &s.RevokedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &s, nil
}

// IsActive reports whether the session exists, is unrevoked, and has not
// passed its expiry.
func (r *SessionRepository) IsActive(ctx context.Context, tokenID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM sessions
			WHERE token_id = $1 AND active AND expires_at > now()
		)
	`

	var active bool
	if err := r.pool.QueryRow(ctx, query, tokenID).Scan(&active); err != nil {
		return false, database.MapPostgresError(err)
	}

	return active, nil
}

// MarkInactive revokes a single session. Idempotent: revoking an already
// revoked session keeps the original revoked_at.
func (r *SessionRepository) MarkInactive(ctx context.Context, tokenID string) error {
	query := `
		UPDATE sessions
		SET active = false, revoked_at = COALESCE(revoked_at, now())
		WHERE token_id = $1
	`

	if _, err := r.pool.Exec(ctx, query, tokenID); err != nil {
		return fmt.Errorf("mark session inactive: %w", database.MapPostgresError(err))
	}

	return nil
}

// InvalidateAll revokes every active session for the account and returns
// the affected token ids so caches can be updated.
func (r *SessionRepository) InvalidateAll(ctx context.Context, accountID string) ([]string, error) {
	query := `
		UPDATE sessions
		SET active = false, revoked_at = COALESCE(revoked_at, now())
		WHERE account_id = $1 AND active
		RETURNING token_id
	`

	rows, err := r.pool.Query(ctx, query, accountID)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	tokenIDs := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, database.MapPostgresError(err)
		}
		tokenIDs = append(tokenIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, database.MapPostgresError(err)
	}

	return tokenIDs, nil
}

func (r *SessionRepository) ListByAccount(ctx context.Context, accountID string, limit int) ([]*models.Session, error) {
	query := `
		SELECT id, token_id, account_id, ip_address, user_agent, issued_at, expires_at, active, revoked_at
		FROM sessions
		WHERE account_id = $1
		ORDER BY issued_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, accountID, limit)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	sessions := make([]*models.Session, 0)
	for rows.Next() {
		var s models.Session
		err := rows.Scan(
			&s.ID, &s.TokenID, &s.AccountID, &s.IPAddress, &s.UserAgent,
			&s.IssuedAt, &s.ExpiresAt, &s.Active, &s.RevokedAt,
		)
		if err != nil {
			return nil, database.MapPostgresError(err)
		}
		sessions = append(sessions, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, database.MapPostgresError(err)
	}

	return sessions, nil
}
