package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/palletline/gatehouse/internal/database"
	"github.com/palletline/gatehouse/internal/models"
)

// AuditEntryRepository is append-only. There is no update or delete.
type AuditEntryRepository struct {
	pool *pgxpool.Pool
}

func NewAuditEntryRepository(db *database.DB) *AuditEntryRepository {
	return &AuditEntryRepository{pool: db.Pool}
}

func (r *AuditEntryRepository) Create(ctx context.Context, entry *models.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	query := `
		INSERT INTO audit_entries (id, account_id, action, entity_type, entity_id,
			before_state, after_state, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`

	err := r.pool.QueryRow(ctx, query,
		entry.ID, entry.AccountID, entry.Action, entry.EntityType, entry.EntityID,
		entry.Before, entry.After, entry.IPAddress, entry.UserAgent,
	).Scan(&entry.CreatedAt)
	if err != nil {
		return database.MapPostgresError(err)
	}

	return nil
}

func (r *AuditEntryRepository) ListByAccount(ctx context.Context, accountID string, limit int) ([]*models.AuditEntry, error) {
	query := `
		SELECT id, account_id, action, entity_type, entity_id,
			before_state, after_state, ip_address, user_agent, created_at
		FROM audit_entries
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, accountID, limit)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	entries := make([]*models.AuditEntry, 0)
	for rows.Next() {
		var e models.AuditEntry
		err := rows.Scan(
			&e.ID, &e.AccountID, &e.Action, &e.EntityType, &e.EntityID,
			&e.Before, &e.After, &e.IPAddress, &e.UserAgent, &e.CreatedAt,
		)
		if err != nil {
			return nil, database.MapPostgresError(err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, database.MapPostgresError(err)
	}

	return entries, nil
}
