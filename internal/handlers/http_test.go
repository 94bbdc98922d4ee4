package handlers_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/kmpdu/evote/internal/auth"
	"github.com/kmpdu/evote/internal/errors"
	"github.com/kmpdu/evote/internal/handlers"
	"github.com/kmpdu/evote/internal/repository"
	"github.com/kmpdu/evote/internal/services"
)

func TestAPIError_Error(t *testing.T) {
	err := handlers.NewAPIError(http.StatusBadRequest, "BAD_REQUEST", "test message")

	if err.Error() != "test message" {
		t.Errorf("expected 'test message', got %q", err.Error())
	}
	if err.Code != "BAD_REQUEST" {
		t.Errorf("expected code 'BAD_REQUEST', got %q", err.Code)
	}
}

func TestErrorConstructors(t *testing.T) {
	tests := []struct {
		name   string
		err    *handlers.APIError
		status int
		code   string
	}{
		{"bad request", handlers.BadRequest("x"), http.StatusBadRequest, handlers.ErrCodeBadRequest},
		{"unauthorized", handlers.Unauthorized("x"), http.StatusUnauthorized, handlers.ErrCodeUnauthorized},
		{"forbidden", handlers.Forbidden("x"), http.StatusForbidden, handlers.ErrCodeForbidden},
		{"not found", handlers.NotFound("x"), http.StatusNotFound, handlers.ErrCodeNotFound},
		{"conflict", handlers.Conflict("x"), http.StatusConflict, handlers.ErrCodeConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Status != tt.status || tt.err.Code != tt.code || tt.err.Message != "x" {
				t.Errorf("got %+v", tt.err)
			}
		})
	}
}

func TestInternalError_HidesCause(t *testing.T) {
	err := handlers.InternalError(fmt.Errorf("db connection failed"))

	if err.Status != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", err.Status)
	}
	if err.Message != "Internal server error" {
		t.Errorf("expected generic message, got %q", err.Message)
	}
}

func TestToAPIError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		code    string
		message string
	}{
		{"ineligible", services.ErrIneligible, http.StatusForbidden, handlers.ErrCodeIneligible, "You cannot vote for this position"},
		{"suspended", services.ErrVotingSuspended, http.StatusServiceUnavailable, handlers.ErrCodeVotingSuspended, "VOTING SUSPENDED: Emergency Stop is Active"},
		{"unauthenticated", services.ErrUnauthenticated, http.StatusUnauthorized, handlers.ErrCodeUnauthorized, "User not authenticated"},
		{"forbidden", auth.ErrForbidden, http.StatusForbidden, handlers.ErrCodeForbidden, ""},
		{"not found", errors.NotFound("missing"), http.StatusNotFound, handlers.ErrCodeNotFound, "missing"},
		{"repository not found", repository.ErrNotFound, http.StatusNotFound, handlers.ErrCodeNotFound, ""},
		{"validation", services.ErrUnknownCandidate, http.StatusBadRequest, handlers.ErrCodeValidation, ""},
		{"invalid input", services.ErrInvalidLevel, http.StatusBadRequest, handlers.ErrCodeValidation, ""},
		{"conflict", services.ErrNoPendingLevelSwitch, http.StatusConflict, handlers.ErrCodeConflict, ""},
		{"wrapped kind", fmt.Errorf("cast: %w", services.ErrVotingSuspended), http.StatusServiceUnavailable, handlers.ErrCodeVotingSuspended, ""},
		{"internal kind", services.ErrSinkNotConfigured, http.StatusInternalServerError, handlers.ErrCodeInternalServer, "Internal server error"},
		{"plain error", fmt.Errorf("boom"), http.StatusInternalServerError, handlers.ErrCodeInternalServer, "Internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := handlers.ToAPIError(tt.err)
			if got.Status != tt.status {
				t.Errorf("status = %d, want %d", got.Status, tt.status)
			}
			if got.Code != tt.code {
				t.Errorf("code = %q, want %q", got.Code, tt.code)
			}
			if tt.message != "" && got.Message != tt.message {
				t.Errorf("message = %q, want %q", got.Message, tt.message)
			}
		})
	}
}
