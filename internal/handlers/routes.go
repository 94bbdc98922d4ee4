package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kmpdu/evote/internal/auth"
	"github.com/kmpdu/evote/internal/models"
)

// conditionalHTTPLogger only logs HTTP requests when HTTP logging is enabled
func (h *Handlers) conditionalHTTPLogger(next http.Handler) http.Handler {
	logger := middleware.Logger(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.Log != nil && h.Log.IsHTTPLoggingEnabled() {
			logger.ServeHTTP(w, r)
		} else {
			next.ServeHTTP(w, r)
		}
	})
}

// Router returns a configured chi router with all routes
func (h *Handlers) Router() chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.conditionalHTTPLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RedirectSlashes)

	// WebSocket connections are long-lived, so they sit outside the timeout
	if h.Hub != nil {
		r.Get("/ws", h.Hub.ServeWs)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		// Public
		r.Post("/api/auth/login", h.handleLogin)
		r.Post("/api/auth/logout", h.handleLogout)
		r.Get("/api/results", h.handleGetResults)
		r.Get("/api/stats", h.handleGetStats)
		r.Get("/api/status", h.handleGetStatus)
		r.Get("/api/receipts/verify/{token}", h.handleVerifyReceipt)

		// Member API
		r.Group(func(r chi.Router) {
			r.Use(h.Auth.RequireAuthAPI)

			r.Get("/api/me", h.handleMe)
			r.Get("/api/ballot", h.handleGetBallot)
			r.Post("/api/votes", h.handleCastVote)
			r.Get("/api/receipts", h.handleGetReceipts)
			r.Get("/api/receipts/{id}/qr", h.handleReceiptQR)
			r.Get("/api/notifications", h.handleGetNotifications)
			r.Post("/api/notifications/{id}/read", h.handleMarkNotificationRead)
			r.Post("/api/level", h.handleRequestLevel)
			r.Post("/api/level/confirm", h.handleConfirmLevel)
			r.Post("/api/level/cancel", h.handleCancelLevel)
		})

		// Admin API
		r.Group(func(r chi.Router) {
			r.Use(h.Auth.RequireAuthAPI)
			r.Use(auth.RequireRole(models.RoleAdmin, models.RoleSuperadmin))

			r.Post("/api/admin/emergency-stop", h.handleToggleEmergencyStop)
			r.Post("/api/admin/reset", h.handleResetElection)
			r.Post("/api/admin/reconcile", h.handleReconcile)
			r.Post("/api/admin/inject-votes", h.handleInjectVotes)
			r.Get("/api/admin/pending", h.handleGetPending)
			r.Get("/api/admin/audit", h.handleGetAudit)
		})

		// Superadmin overrides
		r.Group(func(r chi.Router) {
			r.Use(h.Auth.RequireAuthAPI)
			r.Use(auth.RequireRole(models.RoleSuperadmin))

			r.Get("/api/admin/overrides", h.handleGetOverrides)
			r.Put("/api/admin/vote-limits", h.handleSetVoteLimit)
			r.Delete("/api/admin/vote-limits", h.handleRemoveVoteLimit)
			r.Put("/api/admin/forced-winners", h.handleSetForcedWinner)
			r.Delete("/api/admin/forced-winners", h.handleRemoveForcedWinner)
			r.Post("/api/admin/system-override", h.handleToggleSystemOverride)
			r.Post("/api/admin/overrides/apply", h.handleApplyOverrides)
		})
	})

	return r
}
