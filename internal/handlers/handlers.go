package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/kmpdu/evote/internal/auth"
	"github.com/kmpdu/evote/internal/repository"
	"github.com/kmpdu/evote/internal/services"
	"github.com/kmpdu/evote/internal/websocket"
)

// BaseURLSetting is the settings key holding the public URL used in receipt QR codes
const BaseURLSetting = "base_url"

// Handlers holds all HTTP handler dependencies
type Handlers struct {
	Manager *services.SessionManager
	Repo    repository.FullRepository
	Auth    *auth.Auth
	Hub     *websocket.Hub
	Log     HTTPLogger
}

// HTTPLogger is an interface for loggers that support HTTP logging control
type HTTPLogger interface {
	IsHTTPLoggingEnabled() bool
}

// New creates a new Handlers instance with all dependencies.
// hub may be nil, in which case /ws is not served.
func New(
	manager *services.SessionManager,
	repo repository.FullRepository,
	memberAuth *auth.Auth,
	hub *websocket.Hub,
	log HTTPLogger,
) *Handlers {
	if log == nil {
		log = NoopHTTPLogger{}
	}
	return &Handlers{
		Manager: manager,
		Repo:    repo,
		Auth:    memberAuth,
		Hub:     hub,
		Log:     log,
	}
}

// NoopHTTPLogger is a test logger that always returns false for HTTP logging
type NoopHTTPLogger struct{}

func (NoopHTTPLogger) IsHTTPLoggingEnabled() bool { return false }

// session returns the voting session of the authenticated member
func (h *Handlers) session(r *http.Request) (*services.VotingSession, error) {
	u, ok := auth.UserFromContext(r.Context())
	if !ok {
		return nil, services.ErrUnauthenticated
	}
	return h.Manager.Session(r.Context(), *u), nil
}

// baseURL returns the configured public URL, falling back to the request host
func (h *Handlers) baseURL(ctx context.Context, r *http.Request) string {
	if h.Repo != nil {
		if u, err := h.Repo.GetSetting(ctx, BaseURLSetting); err == nil && u != "" {
			return strings.TrimSuffix(u, "/")
		}
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}
