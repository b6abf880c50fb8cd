package services

import (
	"context"
	"log/slog"

	"github.com/palletline/gatehouse/internal/models"
	pkglogger "github.com/palletline/gatehouse/pkg/logger"
)

// AlertService manages security alerts for the admin review queue.
type AlertService struct {
	repo   SecurityAlertRepository
	audit  *AuditService
	secLog *pkglogger.SecurityLogger
	logger *slog.Logger
}

func NewAlertService(repo SecurityAlertRepository, audit *AuditService, secLog *pkglogger.SecurityLogger, logger *slog.Logger) *AlertService {
	return &AlertService{repo: repo, audit: audit, secLog: secLog, logger: logger}
}

// Raise creates an open alert and emits it to the security log stream.
func (s *AlertService) Raise(ctx context.Context, accountID, alertType, severity, description string) (*models.SecurityAlert, error) {
	alert := &models.SecurityAlert{
		AccountID:   accountID,
		Type:        alertType,
		Severity:    severity,
		Description: description,
	}

	if err := s.repo.Create(ctx, alert); err != nil {
		return nil, err
	}

	s.secLog.LogSecurityAction(alertType, accountID, map[string]string{
		"alert_id": alert.ID,
		"severity": severity,
	})

	return alert, nil
}

// Resolve closes an alert with reviewer notes. Resolving an already
// resolved alert returns it unchanged.
func (s *AlertService) Resolve(ctx context.Context, alertID, notes, resolvedBy string) (*models.SecurityAlert, error) {
	alert, err := s.repo.Resolve(ctx, alertID, notes)
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, &models.AuditEntry{
		AccountID:  &alert.AccountID,
		Action:     models.AuditActionAlertResolved,
		EntityType: "security_alert",
		EntityID:   alert.ID,
		After:      models.AuditSnapshot{"resolved_by": resolvedBy, "notes": notes},
	})

	return alert, nil
}

func (s *AlertService) List(ctx context.Context, accountID string, onlyOpen bool, limit int) ([]*models.SecurityAlert, error) {
	return s.repo.List(ctx, accountID, onlyOpen, limit)
}

func (s *AlertService) CountOpenForAccount(ctx context.Context, accountID string) (int, error) {
	return s.repo.CountOpenForAccount(ctx, accountID)
}
