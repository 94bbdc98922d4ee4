package handlers

// LoginRequest represents a member sign-in by membership number. Password
// is required for admin and superadmin accounts.
type LoginRequest struct {
	MemberID string `json:"memberId"`
	Password string `json:"password,omitempty"`
}

// CastVoteRequest represents a request to cast a vote
type CastVoteRequest struct {
	PositionID  string `json:"position_id"`
	CandidateID string `json:"candidate_id"`
}

// LevelRequest represents a request to switch the voting level
type LevelRequest struct {
	Level string `json:"level"`
}

// InjectVotesRequest represents a request to add votes to a candidate
type InjectVotesRequest struct {
	PositionID  string `json:"position_id"`
	CandidateID string `json:"candidate_id"`
	Count       int    `json:"count"`
}

// VoteLimitRequest represents a request to cap a candidate's votes
type VoteLimitRequest struct {
	PositionID  string `json:"position_id"`
	CandidateID string `json:"candidate_id"`
	MaxVotes    int    `json:"max_votes"`
}

// ForcedWinnerRequest represents a request to fix a position's winner
type ForcedWinnerRequest struct {
	PositionID            string `json:"position_id"`
	CandidateID           string `json:"candidate_id"`
	CollectRemainingVotes bool   `json:"collect_remaining_votes"`
}
