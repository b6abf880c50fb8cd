package services

import (
	"context"
	"testing"
	"time"

	"github.com/palletline/gatehouse/internal/models"
	pkglogger "github.com/palletline/gatehouse/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDeviceHarness() (*mockDeviceRepo, *memAlertRepo, *DeviceService) {
	logger := discardLogger()
	deviceRepo := &mockDeviceRepo{}
	alertRepo := newMemAlertRepo()
	audit := NewAuditService(newMemAuditRepo(), logger)
	alerts := NewAlertService(alertRepo, audit, pkglogger.NewSecurityLogger(logger), logger)
	devices := NewDeviceService(deviceRepo, alerts, audit, 3, logger)
	return deviceRepo, alertRepo, devices
}

func TestFingerprint_StableAndDistinct(t *testing.T) {
	a := Fingerprint("device-aaa", "ua-1")
	b := Fingerprint("device-aaa", "ua-2")
	c := Fingerprint("device-bbb", "ua-1")

	assert.Equal(t, a, b, "explicit device id wins over user agent")
	assert.NotEqual(t, a, c)

	// Without a device id the user agent is the distinguishing input.
	assert.Equal(t, Fingerprint("", "ua-1"), Fingerprint("", "ua-1"))
	assert.NotEqual(t, Fingerprint("", "ua-1"), Fingerprint("", "ua-2"))
}

func TestObserve_RegistersFirstSighting(t *testing.T) {
	deviceRepo, _, devices := newDeviceHarness()

	var created *models.TrustedDevice
	deviceRepo.CreateFunc = func(ctx context.Context, device *models.TrustedDevice) error {
		device.ID = "dev-1"
		created = device
		return nil
	}

	now := time.Now()
	device, isNew, err := devices.Observe(context.Background(), testAcctID, "fp-1",
		"Mozilla/5.0 (Windows NT 10.0) Chrome/120", "203.0.113.4", now)
	require.NoError(t, err)

	assert.True(t, isNew)
	assert.Equal(t, created, device)
	assert.Equal(t, models.TrustLevelUnverified, device.TrustLevel)
	assert.Equal(t, 1, device.LoginCount)
	assert.Equal(t, "Windows", device.OS)
	assert.Equal(t, "Chrome", device.Browser)
}

func TestObserve_PromotesAfterEnoughCleanLogins(t *testing.T) {
	deviceRepo, _, devices := newDeviceHarness()

	existing := &models.TrustedDevice{
		ID:          "dev-1",
		AccountID:   testAcctID,
		Fingerprint: "fp-1",
		TrustLevel:  models.TrustLevelUnverified,
		LoginCount:  2,
	}
	deviceRepo.GetByFingerprintFunc = func(ctx context.Context, accountID, fingerprint string) (*models.TrustedDevice, error) {
		return existing, nil
	}
	deviceRepo.RecordLoginFunc = func(ctx context.Context, id, ip string, seenAt time.Time) (*models.TrustedDevice, error) {
		bumped := *existing
		bumped.LoginCount++
		return &bumped, nil
	}
	var promoted string
	deviceRepo.SetTrustLevelFunc = func(ctx context.Context, id, trustLevel string) error {
		promoted = trustLevel
		return nil
	}

	device, isNew, err := devices.Observe(context.Background(), testAcctID, "fp-1", "ua", "ip", time.Now())
	require.NoError(t, err)

	assert.False(t, isNew)
	assert.Equal(t, models.TrustLevelTrusted, promoted)
	assert.Equal(t, models.TrustLevelTrusted, device.TrustLevel)
}

func TestObserve_OpenAlertBlocksPromotion(t *testing.T) {
	deviceRepo, alertRepo, devices := newDeviceHarness()

	require.NoError(t, alertRepo.Create(context.Background(), &models.SecurityAlert{
		AccountID: testAcctID,
		Type:      models.AlertTypeSuspiciousLogin,
		Severity:  models.AlertSeverityHigh,
	}))

	existing := &models.TrustedDevice{
		ID:          "dev-1",
		AccountID:   testAcctID,
		Fingerprint: "fp-1",
		TrustLevel:  models.TrustLevelUnverified,
		LoginCount:  5,
	}
	deviceRepo.GetByFingerprintFunc = func(ctx context.Context, accountID, fingerprint string) (*models.TrustedDevice, error) {
		return existing, nil
	}
	deviceRepo.RecordLoginFunc = func(ctx context.Context, id, ip string, seenAt time.Time) (*models.TrustedDevice, error) {
		bumped := *existing
		bumped.LoginCount++
		return &bumped, nil
	}
	deviceRepo.SetTrustLevelFunc = func(ctx context.Context, id, trustLevel string) error {
		t.Fatal("promotion must not happen while an alert is open")
		return nil
	}

	device, _, err := devices.Observe(context.Background(), testAcctID, "fp-1", "ua", "ip", time.Now())
	require.NoError(t, err)
	assert.Equal(t, models.TrustLevelUnverified, device.TrustLevel)
}

func TestBlock_RaisesAlertAndAudits(t *testing.T) {
	deviceRepo, alertRepo, devices := newDeviceHarness()

	deviceRepo.BlockFunc = func(ctx context.Context, id, reason string) (*models.TrustedDevice, error) {
		return &models.TrustedDevice{
			ID:        id,
			AccountID: testAcctID,
			Blocked:   true,
		}, nil
	}

	device, err := devices.Block(context.Background(), "dev-1", "reported stolen", "admin-1")
	require.NoError(t, err)
	assert.True(t, device.Blocked)

	raised := alertRepo.byType(models.AlertTypeDeviceBlocked)
	require.Len(t, raised, 1)
	assert.Equal(t, models.AlertSeverityHigh, raised[0].Severity)
}
