package services

import (
	"context"
	"log/slog"

	"github.com/palletline/gatehouse/internal/models"
)

// AuditService appends to the durable audit log. Recording is best
// effort: a failed write is logged but never fails the calling
// operation, because blocking a login on an audit insert would turn an
// observability problem into an availability problem.
type AuditService struct {
	repo   AuditEntryRepository
	logger *slog.Logger
}

func NewAuditService(repo AuditEntryRepository, logger *slog.Logger) *AuditService {
	return &AuditService{repo: repo, logger: logger}
}

func (s *AuditService) Record(ctx context.Context, entry *models.AuditEntry) {
	if err := s.repo.Create(ctx, entry); err != nil {
		s.logger.Error("audit entry write failed",
			"action", entry.Action,
			"entity_type", entry.EntityType,
			"error", err,
		)
	}
}

func (s *AuditService) ListByAccount(ctx context.Context, accountID string, limit int) ([]*models.AuditEntry, error) {
	return s.repo.ListByAccount(ctx, accountID, limit)
}
