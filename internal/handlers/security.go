package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/palletline/gatehouse/internal/auth"
	"github.com/palletline/gatehouse/internal/models"
	pkghttp "github.com/palletline/gatehouse/pkg/http"
)

const defaultListLimit = 50

type AlertServiceInterface interface {
	List(ctx context.Context, accountID string, onlyOpen bool, limit int) ([]*models.SecurityAlert, error)
	Resolve(ctx context.Context, alertID, notes, resolvedBy string) (*models.SecurityAlert, error)
}

type DeviceServiceInterface interface {
	ListByAccount(ctx context.Context, accountID string) ([]*models.TrustedDevice, error)
	Block(ctx context.Context, deviceID, reason, actorID string) (*models.TrustedDevice, error)
}

type AttemptListerInterface interface {
	ListLoginAttempts(ctx context.Context, accountID string, limit int) ([]*models.LoginAttempt, error)
}

// SecurityHandler serves the admin review surface: alerts, devices, and
// the login attempt history.
type SecurityHandler struct {
	alerts   AlertServiceInterface
	devices  DeviceServiceInterface
	attempts AttemptListerInterface
}

func NewSecurityHandler(alerts AlertServiceInterface, devices DeviceServiceInterface, attempts AttemptListerInterface) *SecurityHandler {
	return &SecurityHandler{alerts: alerts, devices: devices, attempts: attempts}
}

type ResolveAlertRequest struct {
	Notes string `json:"notes" validate:"required,min=1,max=2000"`
}

type BlockDeviceRequest struct {
	Reason string `json:"reason" validate:"required,min=1,max=500"`
}

// ListAlerts handles GET /security/alerts.
func (h *SecurityHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("account_id")
	onlyOpen := r.URL.Query().Get("open") == "true"
	limit := queryLimit(r)

	alerts, err := h.alerts.List(r.Context(), accountID, onlyOpen, limit)
	if err != nil {
		pkghttp.WriteInternalError(w, "Failed to list alerts")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]interface{}{"alerts": alerts})
}

// ResolveAlert handles POST /security/alerts/{id}/resolve.
func (h *SecurityHandler) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	alertID := chi.URLParam(r, "id")

	var req ResolveAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	claims, _ := auth.ClaimsFromContext(r.Context())
	resolvedBy := ""
	if claims != nil {
		resolvedBy = claims.AccountID
	}

	alert, err := h.alerts.Resolve(r.Context(), alertID, req.Notes, resolvedBy)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "Alert not found")
			return
		}
		pkghttp.WriteInternalError(w, "Failed to resolve alert")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, alert)
}

// ListDevices handles GET /security/accounts/{id}/devices.
func (h *SecurityHandler) ListDevices(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "id")

	devices, err := h.devices.ListByAccount(r.Context(), accountID)
	if err != nil {
		pkghttp.WriteInternalError(w, "Failed to list devices")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]interface{}{"devices": devices})
}

// BlockDevice handles POST /security/devices/{id}/block.
func (h *SecurityHandler) BlockDevice(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "id")

	var req BlockDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	claims, _ := auth.ClaimsFromContext(r.Context())
	actorID := ""
	if claims != nil {
		actorID = claims.AccountID
	}

	device, err := h.devices.Block(r.Context(), deviceID, req.Reason, actorID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "Device not found")
			return
		}
		pkghttp.WriteInternalError(w, "Failed to block device")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, device)
}

// ListAttempts handles GET /security/accounts/{id}/attempts.
func (h *SecurityHandler) ListAttempts(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "id")

	attempts, err := h.attempts.ListLoginAttempts(r.Context(), accountID, queryLimit(r))
	if err != nil {
		pkghttp.WriteInternalError(w, "Failed to list attempts")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]interface{}{"attempts": attempts})
}

func queryLimit(r *http.Request) int {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			return n
		}
	}
	return defaultListLimit
}
