package routes

import (
	"github.com/go-chi/chi/v5"
	"github.com/palletline/gatehouse/internal/auth"
	"github.com/palletline/gatehouse/internal/handlers"
	"github.com/palletline/gatehouse/internal/middleware"
	"github.com/palletline/gatehouse/internal/permissions"
)

// RegisterRoutes wires the public auth surface and the admin security
// surface. Credential endpoints are rate limited per IP; everything
// under /security requires a permission from the role table.
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	securityHandler *handlers.SecurityHandler,
	validator *auth.Validator,
	perms *permissions.Table,
) {
	rateLimit := middleware.RateLimitByIP(middleware.DefaultAuthRateLimit())

	// Public: credentials in, tokens out.
	router.With(rateLimit).Post("/auth/login", authHandler.Login)
	router.With(rateLimit).Post("/auth/refresh", authHandler.Refresh)
	router.With(rateLimit).Post("/auth/forgot-password", authHandler.ForgotPassword)
	router.With(rateLimit).Post("/auth/reset-password", authHandler.ResetPassword)

	// Logout accepts expired tokens, so it stays outside the validator.
	router.Post("/auth/logout", authHandler.Logout)

	// Authenticated.
	router.Group(func(r chi.Router) {
		r.Use(auth.Middleware(validator))

		r.Post("/auth/logout-all", authHandler.LogoutAll)
		r.Post("/auth/change-password", authHandler.ChangePassword)

		// Admin security surface.
		r.Route("/security", func(r chi.Router) {
			r.With(auth.RequirePermission(perms, permissions.PermAlertsRead)).
				Get("/alerts", securityHandler.ListAlerts)
			r.With(auth.RequirePermission(perms, permissions.PermAlertsResolve)).
				Post("/alerts/{id}/resolve", securityHandler.ResolveAlert)
			r.With(auth.RequirePermission(perms, permissions.PermDevicesRead)).
				Get("/accounts/{id}/devices", securityHandler.ListDevices)
			r.With(auth.RequirePermission(perms, permissions.PermDevicesBlock)).
				Post("/devices/{id}/block", securityHandler.BlockDevice)
			r.With(auth.RequirePermission(perms, permissions.PermAttemptsRead)).
				Get("/accounts/{id}/attempts", securityHandler.ListAttempts)
		})
	})
}
