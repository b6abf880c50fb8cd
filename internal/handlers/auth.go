package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/palletline/gatehouse/internal/auth"
	"github.com/palletline/gatehouse/internal/models"
	"github.com/palletline/gatehouse/internal/services"
	pkghttp "github.com/palletline/gatehouse/pkg/http"
)

// AuthServiceInterface is the slice of the auth service the handlers use.
type AuthServiceInterface interface {
	Login(ctx context.Context, req services.LoginRequest) (*services.LoginResult, error)
	Refresh(ctx context.Context, refreshToken, ip, userAgent string) (*services.LoginResult, error)
	Logout(ctx context.Context, accessToken, ip, userAgent string) error
	LogoutAll(ctx context.Context, accountID, ip, userAgent string) (int, error)
	ChangePassword(ctx context.Context, accountID, currentPassword, newPassword, ip, userAgent string) error
	ForgotPassword(ctx context.Context, email, ip, userAgent string) error
	ResetPassword(ctx context.Context, token, newPassword, ip, userAgent string) error
}

// AuthHandler handles the authentication endpoints.
type AuthHandler struct {
	service  AuthServiceInterface
	ipConfig *pkghttp.IPConfig
}

func NewAuthHandler(service AuthServiceInterface, ipConfig *pkghttp.IPConfig) *AuthHandler {
	return &AuthHandler{service: service, ipConfig: ipConfig}
}

// Request DTOs

type LoginRequest struct {
	Username string `json:"username" validate:"required,min=1,max=128"`
	Password string `json:"password" validate:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type ResetPasswordRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required"`
}

// Response DTOs

type LoginResponse struct {
	Account          *models.AccountSummary `json:"account"`
	AccessToken      string                 `json:"access_token"`
	AccessExpiresAt  time.Time              `json:"access_expires_at"`
	RefreshToken     string                 `json:"refresh_token"`
	RefreshExpiresAt time.Time              `json:"refresh_expires_at"`
}

type LockedResponse struct {
	Error       string    `json:"error"`
	Message     string    `json:"message"`
	LockedUntil time.Time `json:"locked_until"`
}

func loginResponse(result *services.LoginResult) LoginResponse {
	return LoginResponse{
		Account:          result.Account,
		AccessToken:      result.Tokens.AccessToken,
		AccessExpiresAt:  result.Tokens.AccessExpiresAt,
		RefreshToken:     result.Tokens.RefreshToken,
		RefreshExpiresAt: result.Tokens.RefreshExpiresAt,
	}
}

// Login handles POST /auth/login. Unknown username, wrong password, and
// inactive account all produce the same 401; a lockout is the one state
// reported distinctly, with its expiry.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.service.Login(r.Context(), services.LoginRequest{
		Username:       req.Username,
		Password:       req.Password,
		IPAddress:      pkghttp.ExtractClientIP(r, h.ipConfig),
		UserAgent:      r.UserAgent(),
		DeviceIDHeader: r.Header.Get("X-Device-ID"),
	})
	if err != nil {
		h.writeLoginError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, loginResponse(result))
}

// Refresh handles POST /auth/refresh.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.service.Refresh(r.Context(), req.RefreshToken,
		pkghttp.ExtractClientIP(r, h.ipConfig), r.UserAgent())
	if err != nil {
		h.writeLoginError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, loginResponse(result))
}

// Logout handles POST /auth/logout. Always 204: a token that is already
// gone is exactly what the caller wanted.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token, _ := bearerFromHeader(r)

	if err := h.service.Logout(r.Context(), token,
		pkghttp.ExtractClientIP(r, h.ipConfig), r.UserAgent()); err != nil {
		pkghttp.WriteInternalError(w, "Logout failed")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// LogoutAll handles POST /auth/logout-all for the authenticated account.
func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, "authentication required")
		return
	}

	revoked, err := h.service.LogoutAll(r.Context(), claims.AccountID,
		pkghttp.ExtractClientIP(r, h.ipConfig), r.UserAgent())
	if err != nil {
		pkghttp.WriteInternalError(w, "Logout failed")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]int{"sessions_revoked": revoked})
}

// ChangePassword handles POST /auth/change-password.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, "authentication required")
		return
	}

	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	err := h.service.ChangePassword(r.Context(), claims.AccountID,
		req.CurrentPassword, req.NewPassword,
		pkghttp.ExtractClientIP(r, h.ipConfig), r.UserAgent())
	if err != nil {
		switch {
		case errors.Is(err, models.ErrInvalidCredentials):
			pkghttp.WriteUnauthorized(w, "Current password is incorrect")
		case errors.Is(err, models.ErrPasswordTooWeak):
			pkghttp.WriteBadRequest(w, err.Error())
		default:
			pkghttp.WriteInternalError(w, "Password change failed")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ForgotPassword handles POST /auth/forgot-password. Always 202 so the
// endpoint cannot confirm whether an email has an account.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	_ = h.service.ForgotPassword(r.Context(), req.Email,
		pkghttp.ExtractClientIP(r, h.ipConfig), r.UserAgent())

	pkghttp.WriteJSON(w, http.StatusAccepted, map[string]string{
		"message": "If that email has an account, a reset link is on its way",
	})
}

// ResetPassword handles POST /auth/reset-password.
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	err := h.service.ResetPassword(r.Context(), req.Token, req.NewPassword,
		pkghttp.ExtractClientIP(r, h.ipConfig), r.UserAgent())
	if err != nil {
		switch {
		case errors.Is(err, models.ErrResetTokenInvalid):
			pkghttp.WriteBadRequest(w, "Reset token is invalid or expired")
		case errors.Is(err, models.ErrPasswordTooWeak):
			pkghttp.WriteBadRequest(w, err.Error())
		default:
			pkghttp.WriteInternalError(w, "Password reset failed")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) writeLoginError(w http.ResponseWriter, err error) {
	var locked *models.AccountLockedError
	switch {
	case errors.As(err, &locked):
		pkghttp.WriteJSON(w, http.StatusLocked, LockedResponse{
			Error:       "account_locked",
			Message:     "Account is temporarily locked",
			LockedUntil: locked.Until,
		})
	case errors.Is(err, models.ErrAccountLocked):
		pkghttp.WriteLocked(w, "Account is temporarily locked")
	case errors.Is(err, models.ErrInvalidCredentials),
		errors.Is(err, models.ErrDeviceBlocked),
		errors.Is(err, models.ErrRefreshExpiredOrUnknown):
		pkghttp.WriteUnauthorized(w, "Invalid credentials")
	default:
		pkghttp.WriteInternalError(w, "Authentication failed")
	}
}

func bearerFromHeader(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):], true
	}
	return "", false
}
