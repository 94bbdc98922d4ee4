package handlers

import (
	"net/http"
	"strings"

	"github.com/kmpdu/evote/internal/auth"
)

// handleLogin signs a member in by membership number and issues a session token
func (h *Handlers) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	memberID := strings.TrimSpace(req.MemberID)
	if memberID == "" {
		respondError(w, BadRequest("memberId is required"))
		return
	}

	user, err := h.Repo.GetMemberByMemberID(r.Context(), memberID)
	if err != nil {
		respondError(w, err)
		return
	}
	if err := h.Auth.Verify(r.Context(), *user, req.Password); err != nil {
		respondError(w, err)
		return
	}

	token, exp, err := h.Auth.Login(*user)
	if err != nil {
		respondError(w, err)
		return
	}

	// Open the session now so ballot and history are loaded before the first vote
	h.Manager.Session(r.Context(), *user)

	auth.SetSessionCookie(w, token, h.Auth.TTL())
	respondOK(w, LoginResponse{Token: token, ExpiresAt: exp, User: *user})
}

// handleLogout revokes the session token and clears the cookie
func (h *Handlers) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token := auth.TokenFromRequest(r); token != "" {
		h.Auth.Logout(token)
	}
	auth.ClearSessionCookie(w)
	respondSuccess(w, "Logged out")
}

// handleMe returns the signed-in member and their session state
func (h *Handlers) handleMe(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, MeResponse{
		User:           *s.User(),
		SelectedLevel:  s.SelectedLevel(),
		VotedPositions: s.VotedPositions(),
		UnreadCount:    s.UnreadCount(),
	})
}
