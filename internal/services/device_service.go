package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/palletline/gatehouse/internal/models"
)

// DeviceService maintains the per-account device registry and its trust
// lifecycle: unverified on first sight, promoted to trusted after enough
// clean logins, blockable by an administrator.
type DeviceService struct {
	repo            DeviceRepository
	alerts          *AlertService
	audit           *AuditService
	promotionLogins int
	logger          *slog.Logger
}

func NewDeviceService(repo DeviceRepository, alerts *AlertService, audit *AuditService, promotionLogins int, logger *slog.Logger) *DeviceService {
	return &DeviceService{
		repo:            repo,
		alerts:          alerts,
		audit:           audit,
		promotionLogins: promotionLogins,
		logger:          logger,
	}
}

// Fingerprint derives a stable device identifier. Clients send an opaque
// device id header; absent that, the user agent stands in, which is
// coarse but still distinguishes a new browser from a known one.
func Fingerprint(deviceIDHeader, userAgent string) string {
	material := deviceIDHeader
	if material == "" {
		material = "ua:" + userAgent
	}
	sum := sha256.Sum256([]byte(material))
	return hex.EncodeToString(sum[:])
}

// Lookup returns the device for a fingerprint, or nil when the account
// has never logged in from it. Risk evaluation runs against this
// pre-login state, before Observe registers or bumps the device.
func (s *DeviceService) Lookup(ctx context.Context, accountID, fingerprint string) (*models.TrustedDevice, error) {
	device, err := s.repo.GetByFingerprint(ctx, accountID, fingerprint)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return device, nil
}

// Observe looks up or registers the device for a successful login and
// returns it along with whether it was first seen just now. Promotion to
// trusted happens here, after the login count crosses the threshold with
// no open alerts on the account.
func (s *DeviceService) Observe(ctx context.Context, accountID, fingerprint, userAgent, ip string, now time.Time) (*models.TrustedDevice, bool, error) {
	device, err := s.repo.GetByFingerprint(ctx, accountID, fingerprint)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			return nil, false, err
		}

		name, os, browser := describeUserAgent(userAgent)
		device = &models.TrustedDevice{
			AccountID:   accountID,
			Fingerprint: fingerprint,
			DeviceName:  name,
			OS:          os,
			Browser:     browser,
			FirstSeenAt: now,
			LastSeenAt:  now,
			LastIP:      ip,
			LoginCount:  1,
			TrustLevel:  models.TrustLevelUnverified,
		}
		if err := s.repo.Create(ctx, device); err != nil {
			// Concurrent first login from the same device: fall back to
			// the row the other request created.
			if errors.Is(err, models.ErrConflict) {
				device, err = s.repo.GetByFingerprint(ctx, accountID, fingerprint)
				if err != nil {
					return nil, false, err
				}
				return device, false, nil
			}
			return nil, false, err
		}
		return device, true, nil
	}

	device, err = s.repo.RecordLogin(ctx, device.ID, ip, now)
	if err != nil {
		return nil, false, err
	}

	if s.eligibleForPromotion(ctx, device) {
		if err := s.repo.SetTrustLevel(ctx, device.ID, models.TrustLevelTrusted); err != nil {
			s.logger.Warn("device trust promotion failed", "device_id", device.ID, "error", err)
		} else {
			device.TrustLevel = models.TrustLevelTrusted
		}
	}

	return device, false, nil
}

func (s *DeviceService) eligibleForPromotion(ctx context.Context, device *models.TrustedDevice) bool {
	if device.Blocked || device.TrustLevel != models.TrustLevelUnverified {
		return false
	}
	if device.LoginCount < s.promotionLogins {
		return false
	}

	open, err := s.alerts.CountOpenForAccount(ctx, device.AccountID)
	if err != nil {
		s.logger.Warn("open alert count failed, skipping promotion", "account_id", device.AccountID, "error", err)
		return false
	}
	return open == 0
}

// Block marks the device blocked, raises an alert, and audits the action.
func (s *DeviceService) Block(ctx context.Context, deviceID, reason, actorID string) (*models.TrustedDevice, error) {
	device, err := s.repo.Block(ctx, deviceID, reason)
	if err != nil {
		return nil, err
	}

	if _, err := s.alerts.Raise(ctx, device.AccountID, models.AlertTypeDeviceBlocked, models.AlertSeverityHigh,
		"device blocked: "+reason); err != nil {
		s.logger.Error("alert for blocked device failed", "device_id", deviceID, "error", err)
	}

	s.audit.Record(ctx, &models.AuditEntry{
		AccountID:  &device.AccountID,
		Action:     models.AuditActionDeviceBlocked,
		EntityType: "trusted_device",
		EntityID:   device.ID,
		After:      models.AuditSnapshot{"reason": reason, "blocked_by": actorID},
	})

	return device, nil
}

func (s *DeviceService) ListByAccount(ctx context.Context, accountID string) ([]*models.TrustedDevice, error) {
	return s.repo.ListByAccount(ctx, accountID)
}

// describeUserAgent extracts a rough device description. Good enough for
// the admin device list; fingerprinting does not depend on it.
func describeUserAgent(ua string) (name, os, browser string) {
	lower := strings.ToLower(ua)

	switch {
	case strings.Contains(lower, "windows"):
		os = "Windows"
	case strings.Contains(lower, "android"):
		os = "Android"
	case strings.Contains(lower, "iphone"), strings.Contains(lower, "ipad"):
		os = "iOS"
	case strings.Contains(lower, "mac os"):
		os = "macOS"
	case strings.Contains(lower, "linux"):
		os = "Linux"
	}

	switch {
	case strings.Contains(lower, "edg/"):
		browser = "Edge"
	case strings.Contains(lower, "chrome"):
		browser = "Chrome"
	case strings.Contains(lower, "firefox"):
		browser = "Firefox"
	case strings.Contains(lower, "safari"):
		browser = "Safari"
	}

	name = strings.TrimSpace(os + " " + browser)
	if name == "" {
		name = "Unknown device"
	}
	return name, os, browser
}
