package handlers

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/skip2/go-qrcode"

	"github.com/kmpdu/evote/internal/errors"
	"github.com/kmpdu/evote/internal/models"
	"github.com/kmpdu/evote/internal/services"
)

// ==================== Public ====================

func (h *Handlers) handleGetResults(w http.ResponseWriter, r *http.Request) {
	respondOK(w, h.Manager.Ledger().Views())
}

func (h *Handlers) handleGetStats(w http.ResponseWriter, r *http.Request) {
	respondOK(w, h.Manager.Ledger().Stats())
}

func (h *Handlers) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	respondOK(w, h.Manager.Ledger().Status())
}

// handleVerifyReceipt confirms a verification token belongs to an issued receipt
func (h *Handlers) handleVerifyReceipt(w http.ResponseWriter, r *http.Request) {
	token, err := requireParam(r, "token")
	if err != nil {
		respondError(w, err)
		return
	}

	rc, err := h.Repo.GetReceiptByToken(r.Context(), token)
	if err != nil {
		respondError(w, err)
		return
	}

	respondOK(w, ReceiptVerification{
		Valid:          true,
		ReceiptID:      rc.ID,
		PositionTitle:  rc.PositionTitle,
		Timestamp:      rc.Timestamp,
		BlockchainHash: rc.BlockchainHash,
		Mode:           rc.Mode,
	})
}

// ==================== Ballot & Voting ====================

// handleGetBallot lists the national seats and the member's own branch seats
func (h *Handlers) handleGetBallot(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		respondError(w, err)
		return
	}
	user := s.User()

	resp := BallotResponse{
		SelectedLevel: s.SelectedLevel(),
		EmergencyStop: s.IsEmergencyStopActive(),
		Positions:     []BallotPosition{},
	}
	for _, p := range s.RefreshResults() {
		if p.Type == models.PositionBranch && p.Branch != user.Branch && !user.Role.IsAdmin() {
			continue
		}
		resp.Positions = append(resp.Positions, BallotPosition{
			PositionView: p,
			HasVoted:     s.HasUserVotedForPosition(p.ID),
			CanVote:      s.CanUserVoteForPosition(p.ID),
		})
	}
	respondOK(w, resp)
}

// handleCastVote records a vote. Offline-fallback votes still succeed and
// report their mode so clients can tell the member.
func (h *Handlers) handleCastVote(w http.ResponseWriter, r *http.Request) {
	var req CastVoteRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if req.PositionID == "" || req.CandidateID == "" {
		respondError(w, BadRequest("position_id and candidate_id are required"))
		return
	}

	s, err := h.session(r)
	if err != nil {
		respondError(w, err)
		return
	}

	result, err := s.CastVote(r.Context(), req.PositionID, req.CandidateID)
	if err != nil {
		respondError(w, err)
		return
	}

	status := http.StatusOK
	if result.Offline() {
		status = http.StatusAccepted
	}
	respondJSON(w, status, result)
}

// ==================== Receipts ====================

// handleGetReceipts lists the member's receipts. The audit log is used when
// available so receipts survive a server restart.
func (h *Handlers) handleGetReceipts(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		respondError(w, err)
		return
	}
	if h.Repo == nil {
		respondOK(w, s.Receipts())
		return
	}

	receipts, err := h.Repo.ListReceipts(r.Context(), s.User().Key())
	if err != nil {
		respondError(w, err)
		return
	}
	if receipts == nil {
		receipts = []models.VoteReceipt{}
	}
	respondOK(w, receipts)
}

// handleReceiptQR renders a PNG QR code linking to the receipt's verification page
func (h *Handlers) handleReceiptQR(w http.ResponseWriter, r *http.Request) {
	id, err := requireParam(r, "id")
	if err != nil {
		respondError(w, err)
		return
	}
	s, err := h.session(r)
	if err != nil {
		respondError(w, err)
		return
	}

	rc, err := h.findReceipt(r, s, id)
	if err != nil {
		respondError(w, err)
		return
	}

	verifyURL := fmt.Sprintf("%s/api/receipts/verify/%s", h.baseURL(r.Context(), r), url.PathEscape(rc.VerificationToken))
	png, err := qrcode.Encode(verifyURL, qrcode.Medium, 256)
	if err != nil {
		respondError(w, err)
		return
	}

	respondPNG(w, png)
}

func (h *Handlers) findReceipt(r *http.Request, s *services.VotingSession, id string) (models.VoteReceipt, error) {
	if rc, ok := s.Receipt(id); ok {
		return rc, nil
	}
	if h.Repo != nil {
		receipts, err := h.Repo.ListReceipts(r.Context(), s.User().Key())
		if err != nil {
			return models.VoteReceipt{}, err
		}
		for _, rc := range receipts {
			if rc.ID == id {
				return rc, nil
			}
		}
	}
	return models.VoteReceipt{}, errors.NotFound("receipt not found")
}

// ==================== Notifications ====================

func (h *Handlers) handleGetNotifications(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, s.Notifications())
}

func (h *Handlers) handleMarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	id, err := requireParam(r, "id")
	if err != nil {
		respondError(w, err)
		return
	}
	s, err := h.session(r)
	if err != nil {
		respondError(w, err)
		return
	}
	if !s.MarkNotificationRead(id) {
		respondError(w, NotFound("Notification not found"))
		return
	}
	respondSuccess(w, "Notification marked as read")
}

// ==================== Voting level ====================

func (h *Handlers) handleRequestLevel(w http.ResponseWriter, r *http.Request) {
	var req LevelRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	level, ok := models.ParseVotingLevel(req.Level)
	if !ok || level == models.LevelNone {
		respondError(w, services.ErrInvalidLevel)
		return
	}

	s, err := h.session(r)
	if err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, s.RequestLevelSwitch(level))
}

func (h *Handlers) handleConfirmLevel(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		respondError(w, err)
		return
	}
	result, err := s.ConfirmLevelSwitch()
	if err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, result)
}

func (h *Handlers) handleCancelLevel(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		respondError(w, err)
		return
	}
	if !s.CancelLevelSwitch() {
		respondError(w, services.ErrNoPendingLevelSwitch)
		return
	}
	respondSuccess(w, "Level switch cancelled")
}
