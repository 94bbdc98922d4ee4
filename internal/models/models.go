package models

import (
	"encoding/json"
	"strings"
	"time"
)

// PositionType distinguishes national seats from branch seats
type PositionType string

const (
	PositionNational PositionType = "national"
	PositionBranch   PositionType = "branch"
)

// PositionStatus is the lifecycle state of a position
type PositionStatus string

const (
	StatusUpcoming PositionStatus = "upcoming"
	StatusActive   PositionStatus = "active"
	StatusClosed   PositionStatus = "closed"
)

// Role is the portal role of a signed-in user
type Role string

const (
	RoleMember     Role = "member"
	RoleAdmin      Role = "admin"
	RoleSuperadmin Role = "superadmin"
)

// ParseRole normalizes a role string from the identity provider.
// Unknown roles are treated as members.
func ParseRole(s string) Role {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "admin":
		return RoleAdmin
	case "superadmin", "superuseradmin", "super_admin":
		return RoleSuperadmin
	default:
		return RoleMember
	}
}

// IsAdmin reports whether the role belongs to election staff rather than voters
func (r Role) IsAdmin() bool {
	return r == RoleAdmin || r == RoleSuperadmin
}

// VotingLevel is the ballot section a member is currently working through
type VotingLevel string

const (
	LevelNone     VotingLevel = ""
	LevelNational VotingLevel = "national"
	LevelBranch   VotingLevel = "branch"
)

// ParseVotingLevel returns the level and whether it was recognized
func ParseVotingLevel(s string) (VotingLevel, bool) {
	switch VotingLevel(strings.ToLower(strings.TrimSpace(s))) {
	case LevelNational:
		return LevelNational, true
	case LevelBranch:
		return LevelBranch, true
	case LevelNone:
		return LevelNone, true
	}
	return LevelNone, false
}

// Candidate is a person contesting a position.
// Percentages are derived from the owning position's total on read.
type Candidate struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Bio       string `json:"bio"`
	Photo     string `json:"photo,omitempty"`
	VoteCount int    `json:"vote_count"`
}

// Position is a contested office
type Position struct {
	ID             string         `json:"id"`
	ElectionID     string         `json:"election_id,omitempty"`
	Title          string         `json:"title"`
	Type           PositionType   `json:"type"`
	Branch         string         `json:"branch,omitempty"`
	Candidates     []Candidate    `json:"candidates"`
	TotalVotes     int            `json:"total_votes"`
	EligibleVoters int            `json:"eligible_voters"`
	Status         PositionStatus `json:"status"`
	StartTime      time.Time      `json:"start_time"`
	EndTime        time.Time      `json:"end_time"`
	WinnerID       string         `json:"winner_id,omitempty"`
	WinnerVotes    int            `json:"winner_votes,omitempty"`
}

// Clone returns a deep copy of the position
func (p Position) Clone() Position {
	out := p
	out.Candidates = append([]Candidate(nil), p.Candidates...)
	return out
}

// Candidate returns a pointer to the candidate with the given id
func (p *Position) Candidate(id string) (*Candidate, bool) {
	for i := range p.Candidates {
		if p.Candidates[i].ID == id {
			return &p.Candidates[i], true
		}
	}
	return nil, false
}

// Percentage returns a vote count as a share of total, 0 when total is 0
func Percentage(count, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(count) / float64(total) * 100
}

// RecountTotal sets TotalVotes to the sum of candidate counts
func (p *Position) RecountTotal() {
	total := 0
	for _, c := range p.Candidates {
		total += c.VoteCount
	}
	p.TotalVotes = total
}

// CandidateView is a candidate with its derived percentage
type CandidateView struct {
	Candidate
	Percentage float64 `json:"percentage"`
}

// PositionView is the read model of a position sent to clients
type PositionView struct {
	ID             string          `json:"id"`
	ElectionID     string          `json:"election_id,omitempty"`
	Title          string          `json:"title"`
	Type           PositionType    `json:"type"`
	Branch         string          `json:"branch,omitempty"`
	Candidates     []CandidateView `json:"candidates"`
	TotalVotes     int             `json:"total_votes"`
	EligibleVoters int             `json:"eligible_voters"`
	Status         PositionStatus  `json:"status"`
	StartTime      time.Time       `json:"start_time"`
	EndTime        time.Time       `json:"end_time"`
	WinnerID       string          `json:"winner_id,omitempty"`
	WinnerVotes    int             `json:"winner_votes,omitempty"`
}

// View derives percentages for every candidate
func (p Position) View() PositionView {
	v := PositionView{
		ID:             p.ID,
		ElectionID:     p.ElectionID,
		Title:          p.Title,
		Type:           p.Type,
		Branch:         p.Branch,
		Candidates:     make([]CandidateView, len(p.Candidates)),
		TotalVotes:     p.TotalVotes,
		EligibleVoters: p.EligibleVoters,
		Status:         p.Status,
		StartTime:      p.StartTime,
		EndTime:        p.EndTime,
		WinnerID:       p.WinnerID,
		WinnerVotes:    p.WinnerVotes,
	}
	for i, c := range p.Candidates {
		v.Candidates[i] = CandidateView{Candidate: c, Percentage: Percentage(c.VoteCount, p.TotalVotes)}
	}
	return v
}

// Views converts a slice of positions to read models
func Views(positions []Position) []PositionView {
	out := make([]PositionView, len(positions))
	for i, p := range positions {
		out[i] = p.View()
	}
	return out
}

// PositionRef identifies a position by id and title
type PositionRef struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// CastMode records whether a vote was confirmed by the backend
type CastMode string

const (
	ModeConfirmed       CastMode = "confirmed"
	ModeOfflineFallback CastMode = "offline_fallback"
)

// VoteReceipt is proof of a cast vote. It is never edited after issuance.
type VoteReceipt struct {
	ID                string    `json:"id"`
	MemberID          string    `json:"member_id"`
	PositionID        string    `json:"position_id"`
	PositionTitle     string    `json:"position_title"`
	CandidateID       string    `json:"candidate_id"`
	CandidateName     string    `json:"candidate_name"`
	Timestamp         time.Time `json:"timestamp"`
	VerificationToken string    `json:"verification_token"`
	BlockchainHash    string    `json:"blockchain_hash"`
	Mode              CastMode  `json:"mode"`
}

// CastResult is the tagged outcome of a vote cast
type CastResult struct {
	Mode    CastMode    `json:"mode"`
	Receipt VoteReceipt `json:"receipt"`
}

// Offline reports whether the vote still awaits backend confirmation
func (r CastResult) Offline() bool {
	return r.Mode == ModeOfflineFallback
}

// NotificationType classifies notifications for display
type NotificationType string

const (
	NotifySuccess NotificationType = "success"
	NotifyWarning NotificationType = "warning"
	NotifyInfo    NotificationType = "info"
	NotifyError   NotificationType = "error"
)

// Notification is a message shown to a user
type Notification struct {
	ID        string           `json:"id"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Type      NotificationType `json:"type"`
	Timestamp time.Time        `json:"timestamp"`
	Read      bool             `json:"read"`
}

// VoteLimit caps a candidate's recorded vote count
type VoteLimit struct {
	PositionID  string `json:"position_id"`
	CandidateID string `json:"candidate_id"`
	MaxVotes    int    `json:"max_votes"`
	IsActive    bool   `json:"is_active"`
}

// ForcedWinner fixes a position's outcome
type ForcedWinner struct {
	PositionID            string `json:"position_id"`
	CandidateID           string `json:"candidate_id"`
	IsActive              bool   `json:"is_active"`
	CollectRemainingVotes bool   `json:"collect_remaining_votes"`
}

// OverrideSettings is the process-wide superadmin override configuration
type OverrideSettings struct {
	VoteLimits            []VoteLimit    `json:"vote_limits"`
	ForcedWinners         []ForcedWinner `json:"forced_winners"`
	SystemOverrideEnabled bool           `json:"system_override_enabled"`
}

// Clone returns a deep copy of the settings
func (s OverrideSettings) Clone() OverrideSettings {
	return OverrideSettings{
		VoteLimits:            append([]VoteLimit{}, s.VoteLimits...),
		ForcedWinners:         append([]ForcedWinner{}, s.ForcedWinners...),
		SystemOverrideEnabled: s.SystemOverrideEnabled,
	}
}

// VotedFlags maps position id to whether the user has voted there.
// A nil map means the identity provider did not supply the information.
type VotedFlags map[string]bool

// UnmarshalJSON accepts only a JSON object; any other shape (booleans,
// arrays, null) decodes to nil so callers fall back to local history.
func (f *VotedFlags) UnmarshalJSON(data []byte) error {
	var m map[string]bool
	if err := json.Unmarshal(data, &m); err != nil {
		*f = nil
		return nil
	}
	*f = m
	return nil
}

// User is the identity of the current session
type User struct {
	ID       string     `json:"id"`
	MemberID string     `json:"member_id"`
	Name     string     `json:"name"`
	Email    string     `json:"email,omitempty"`
	Phone    string     `json:"phone,omitempty"`
	Role     Role       `json:"role"`
	Branch   string     `json:"branch"`
	HasVoted VotedFlags `json:"has_voted,omitempty"`
}

// Key returns the identifier used for per-user storage
func (u User) Key() string {
	if u.MemberID != "" {
		return u.MemberID
	}
	return u.ID
}

// VoteHistory is the persisted per-user voted map
type VoteHistory struct {
	VotedPositions map[string]bool `json:"votedPositions"`
	LastUpdated    time.Time       `json:"lastUpdated"`
}

// LevelSwitchResult reports the outcome of a level switch request
type LevelSwitchResult struct {
	From                 VotingLevel   `json:"from"`
	To                   VotingLevel   `json:"to"`
	Switched             bool          `json:"switched"`
	ConfirmationRequired bool          `json:"confirmation_required"`
	Incomplete           []PositionRef `json:"incomplete,omitempty"`
}

// ElectionStats summarizes turnout across all positions
type ElectionStats struct {
	TotalEligible     int     `json:"total_eligible"`
	TotalVotesCast    int     `json:"total_votes_cast"`
	TurnoutPercentage float64 `json:"turnout_percentage"`
	ActivePositions   int     `json:"active_positions"`
	ActiveBranches    int     `json:"active_branches"`
}

// ElectionStatus is the global switch state broadcast to clients
type ElectionStatus struct {
	EmergencyStop  bool `json:"emergency_stop"`
	SystemOverride bool `json:"system_override"`
}

// PendingVote is an offline-fallback vote awaiting backend confirmation
type PendingVote struct {
	IdempotencyKey string    `json:"idempotency_key"`
	ReceiptID      string    `json:"receipt_id"`
	UserID         string    `json:"user_id"`
	MemberID       string    `json:"member_id"`
	PositionID     string    `json:"position_id"`
	CandidateID    string    `json:"candidate_id"`
	ElectionID     string    `json:"election_id"`
	QueuedAt       time.Time `json:"queued_at"`
	Attempts       int       `json:"attempts"`
	Reconciled     bool      `json:"reconciled"`
	ReconciledAt   time.Time `json:"reconciled_at,omitempty"`
	BlockchainHash string    `json:"blockchain_hash,omitempty"`
}

// WSMessage represents a WebSocket message
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}
