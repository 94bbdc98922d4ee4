package handlers

import (
	"net/http"

	"github.com/kmpdu/evote/internal/errors"
	"github.com/kmpdu/evote/internal/models"
	"github.com/kmpdu/evote/internal/services"
)

// ==================== Election control ====================

func (h *Handlers) handleToggleEmergencyStop(w http.ResponseWriter, r *http.Request) {
	respondOK(w, ToggleResponse{Enabled: h.Manager.Ledger().ToggleEmergencyStop()})
}

// handleResetElection restores the seed election and wipes all member state
func (h *Handlers) handleResetElection(w http.ResponseWriter, r *http.Request) {
	if err := h.Manager.ResetElection(r.Context()); err != nil {
		respondError(w, err)
		return
	}
	if h.Repo != nil {
		if err := h.Repo.ClearNotifications(r.Context()); err != nil {
			respondError(w, err)
			return
		}
	}
	respondSuccess(w, "Election reset")
}

func (h *Handlers) handleReconcile(w http.ResponseWriter, r *http.Request) {
	report, err := h.Manager.Reconcile(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, report)
}

func (h *Handlers) handleInjectVotes(w http.ResponseWriter, r *http.Request) {
	var req InjectVotesRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if req.Count < 0 {
		respondError(w, services.ErrInvalidVoteCount)
		return
	}
	if !h.Manager.Ledger().InjectVotes(req.PositionID, req.CandidateID, req.Count) {
		respondError(w, errors.NotFound("position or candidate not found"))
		return
	}
	p, _ := h.Manager.Ledger().Position(req.PositionID)
	respondOK(w, p.View())
}

func (h *Handlers) handleGetPending(w http.ResponseWriter, r *http.Request) {
	all, err := parseBoolQuery(r, "all")
	if err != nil {
		respondError(w, err)
		return
	}
	pending, err := h.Manager.Pending(r.Context(), all)
	if err != nil {
		respondError(w, err)
		return
	}
	if pending == nil {
		pending = []models.PendingVote{}
	}
	respondOK(w, pending)
}

// handleGetAudit summarizes receipts by cast mode alongside the offline backlog
func (h *Handlers) handleGetAudit(w http.ResponseWriter, r *http.Request) {
	counts, err := h.Repo.CountReceipts(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	pending, err := h.Manager.Pending(r.Context(), false)
	if err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, AuditResponse{
		Receipts:       counts,
		OpenSessions:   h.Manager.Count(),
		PendingOffline: len(pending),
	})
}

// ==================== Superadmin overrides ====================

func (h *Handlers) handleGetOverrides(w http.ResponseWriter, r *http.Request) {
	respondOK(w, h.Manager.Ledger().Overrides())
}

// requireCandidate checks that a position and one of its candidates exist
func (h *Handlers) requireCandidate(positionID, candidateID string) error {
	p, ok := h.Manager.Ledger().Position(positionID)
	if !ok {
		return errors.NotFoundf("position %s not found", positionID)
	}
	if _, ok := p.Candidate(candidateID); !ok {
		return errors.NotFoundf("candidate %s not found in %s", candidateID, positionID)
	}
	return nil
}

func (h *Handlers) handleSetVoteLimit(w http.ResponseWriter, r *http.Request) {
	var req VoteLimitRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if req.MaxVotes < 0 {
		respondError(w, errors.Validation("max_votes must not be negative"))
		return
	}
	if err := h.requireCandidate(req.PositionID, req.CandidateID); err != nil {
		respondError(w, err)
		return
	}
	h.Manager.Ledger().SetVoteLimit(req.PositionID, req.CandidateID, req.MaxVotes)
	respondOK(w, h.Manager.Ledger().Overrides())
}

func (h *Handlers) handleRemoveVoteLimit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	positionID, candidateID := q.Get("position_id"), q.Get("candidate_id")
	if positionID == "" || candidateID == "" {
		respondError(w, BadRequest("position_id and candidate_id are required"))
		return
	}
	h.Manager.Ledger().RemoveVoteLimit(positionID, candidateID)
	respondOK(w, h.Manager.Ledger().Overrides())
}

func (h *Handlers) handleSetForcedWinner(w http.ResponseWriter, r *http.Request) {
	var req ForcedWinnerRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if err := h.requireCandidate(req.PositionID, req.CandidateID); err != nil {
		respondError(w, err)
		return
	}
	h.Manager.Ledger().SetForcedWinner(req.PositionID, req.CandidateID, req.CollectRemainingVotes)
	respondOK(w, h.Manager.Ledger().Overrides())
}

func (h *Handlers) handleRemoveForcedWinner(w http.ResponseWriter, r *http.Request) {
	positionID := r.URL.Query().Get("position_id")
	if positionID == "" {
		respondError(w, BadRequest("position_id is required"))
		return
	}
	h.Manager.Ledger().RemoveForcedWinner(positionID)
	respondOK(w, h.Manager.Ledger().Overrides())
}

func (h *Handlers) handleToggleSystemOverride(w http.ResponseWriter, r *http.Request) {
	respondOK(w, ToggleResponse{Enabled: h.Manager.Ledger().ToggleSystemOverride()})
}

func (h *Handlers) handleApplyOverrides(w http.ResponseWriter, r *http.Request) {
	h.Manager.Ledger().ApplyOverrides()
	respondOK(w, h.Manager.Ledger().Views())
}
