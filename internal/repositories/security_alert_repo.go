package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/palletline/gatehouse/internal/database"
	"github.com/palletline/gatehouse/internal/models"
)

type SecurityAlertRepository struct {
	pool *pgxpool.Pool
}

func NewSecurityAlertRepository(db *database.DB) *SecurityAlertRepository {
	return &SecurityAlertRepository{pool: db.Pool}
}

const alertColumns = `id, account_id, alert_type, severity, description,
		created_at, resolved, resolved_at, resolution_notes`

func scanAlertRow(scanner rowScanner) (*models.SecurityAlert, error) {
	var a models.SecurityAlert

	err := scanner.Scan(
		&a.ID, &a.AccountID, &a.Type, &a.Severity, &a.Description,
		&a.CreatedAt, &a.Resolved, &a.ResolvedAt, &a.ResolutionNotes,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &a, nil
}

func (r *SecurityAlertRepository) Create(ctx context.Context, alert *models.SecurityAlert) error {
	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}

	query := `
		INSERT INTO security_alerts (id, account_id, alert_type, severity, description)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`

	err := r.pool.QueryRow(ctx, query,
		alert.ID, alert.AccountID, alert.Type, alert.Severity, alert.Description,
	).Scan(&alert.CreatedAt)
	if err != nil {
		return database.MapPostgresError(err)
	}

	return nil
}

func (r *SecurityAlertRepository) GetByID(ctx context.Context, id string) (*models.SecurityAlert, error) {
	query := `SELECT ` + alertColumns + ` FROM security_alerts WHERE id = $1`
	return scanAlertRow(r.pool.QueryRow(ctx, query, id))
}

// Resolve closes an alert. Resolution is one-way and idempotent: a second
// resolve keeps the original resolved_at and notes.
func (r *SecurityAlertRepository) Resolve(ctx context.Context, id, notes string) (*models.SecurityAlert, error) {
	query := `
		UPDATE security_alerts
		SET resolved = true,
		    resolved_at = COALESCE(resolved_at, now()),
		    resolution_notes = COALESCE(resolution_notes, $2)
		WHERE id = $1
		RETURNING ` + alertColumns

	return scanAlertRow(r.pool.QueryRow(ctx, query, id, notes))
}

// List returns alerts, newest first. Pass onlyOpen to hide resolved ones,
// and a non-empty accountID to scope to one account.
func (r *SecurityAlertRepository) List(ctx context.Context, accountID string, onlyOpen bool, limit int) ([]*models.SecurityAlert, error) {
	query := `
		SELECT ` + alertColumns + `
		FROM security_alerts
		WHERE ($1 = '' OR account_id = $1) AND (NOT $2 OR NOT resolved)
		ORDER BY created_at DESC
		LIMIT $3
	`

	rows, err := r.pool.Query(ctx, query, accountID, onlyOpen, limit)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	alerts := make([]*models.SecurityAlert, 0)
	for rows.Next() {
		alert, err := scanAlertRow(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, database.MapPostgresError(err)
	}

	return alerts, nil
}

// CountOpenForAccount counts unresolved alerts, used to gate device trust
// promotion.
func (r *SecurityAlertRepository) CountOpenForAccount(ctx context.Context, accountID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM security_alerts WHERE account_id = $1 AND NOT resolved`,
		accountID,
	).Scan(&count)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}

	return count, nil
}
