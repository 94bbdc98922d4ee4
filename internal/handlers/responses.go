package handlers

import (
	"time"

	"github.com/kmpdu/evote/internal/models"
)

// LoginResponse is returned after a successful sign-in
type LoginResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      models.User `json:"user"`
}

// MeResponse describes the signed-in member and their session state
type MeResponse struct {
	User           models.User        `json:"user"`
	SelectedLevel  models.VotingLevel `json:"selected_level"`
	VotedPositions map[string]bool    `json:"voted_positions"`
	UnreadCount    int                `json:"unread_count"`
}

// BallotPosition is a position as seen by one member
type BallotPosition struct {
	models.PositionView
	HasVoted bool `json:"has_voted"`
	CanVote  bool `json:"can_vote"`
}

// BallotResponse lists the positions a member can see
type BallotResponse struct {
	SelectedLevel models.VotingLevel `json:"selected_level"`
	EmergencyStop bool               `json:"emergency_stop"`
	Positions     []BallotPosition   `json:"positions"`
}

// ReceiptVerification is the public view of a receipt. The candidate is
// left out so a verification link does not reveal how the member voted.
type ReceiptVerification struct {
	Valid          bool            `json:"valid"`
	ReceiptID      string          `json:"receipt_id"`
	PositionTitle  string          `json:"position_title"`
	Timestamp      time.Time       `json:"timestamp"`
	BlockchainHash string          `json:"blockchain_hash"`
	Mode           models.CastMode `json:"mode"`
}

// ToggleResponse reports the new state of a switch
type ToggleResponse struct {
	Enabled bool `json:"enabled"`
}

// AuditResponse summarizes the receipt audit log
type AuditResponse struct {
	Receipts       map[models.CastMode]int `json:"receipts"`
	OpenSessions   int                     `json:"open_sessions"`
	PendingOffline int                     `json:"pending_offline"`
}
