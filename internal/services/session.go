package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kmpdu/evote/internal/logger"
	"github.com/kmpdu/evote/internal/models"
	"github.com/kmpdu/evote/internal/seed"
	"github.com/kmpdu/evote/pkg/kmpduapi"
)

// DefaultCastTimeout bounds the remote vote-cast call before the offline path runs
const DefaultCastTimeout = 5 * time.Second

// Receipt prefixes. Offline receipts carry a distinct prefix so they can be
// told apart from backend-confirmed ones.
const (
	HashPrefix           = "KMPDU-BLK-"
	HashPrefixOffline    = "KMPDU-BLK-OFFLINE-"
	TokenPrefix          = "KMPDU-VRF-"
	TokenPrefixOffline   = "KMPDU-VRF-OFFLINE-"
	receiptIDPrefix      = "rcpt_"
	notificationIDPrefix = "notif_"
)

// SessionDeps are the collaborators of a VotingSession. Ledger and Identity
// are required; everything else may be nil.
type SessionDeps struct {
	Logger        logger.Logger
	Ledger        *Ledger
	Identity      IdentityProvider
	Ballots       BallotSource
	Votes         VoteSink
	History       HistoryStore
	Notifier      NotificationSink
	Receipts      ReceiptLog
	Pending       PendingQueue
	Clock         Clock
	Rand          io.Reader
	CastTimeout   time.Duration
	Notifications []models.Notification
}

// VotingSession is one user's view of the election: eligibility, vote
// casting, receipts, notifications and the selected voting level.
// All methods are safe for concurrent use; a cast holds the session lock
// until it completes so the same user cannot vote twice in parallel.
type VotingSession struct {
	mu sync.Mutex

	log         logger.Logger
	ledger      *Ledger
	identity    IdentityProvider
	ballots     BallotSource
	votes       VoteSink
	history     HistoryStore
	notifier    NotificationSink
	receiptLog  ReceiptLog
	pending     PendingQueue
	clock       Clock
	randReader  io.Reader
	castTimeout time.Duration

	voted         map[string]bool
	receipts      []models.VoteReceipt
	notifications []models.Notification
	level         models.VotingLevel
	pendingLevel  *models.VotingLevel
}

// NewVotingSession creates a session. Call Load once the identity is known.
func NewVotingSession(deps SessionDeps) *VotingSession {
	s := &VotingSession{
		log:         deps.Logger,
		ledger:      deps.Ledger,
		identity:    deps.Identity,
		ballots:     deps.Ballots,
		votes:       deps.Votes,
		history:     deps.History,
		notifier:    deps.Notifier,
		receiptLog:  deps.Receipts,
		pending:     deps.Pending,
		clock:       deps.Clock,
		randReader:  deps.Rand,
		castTimeout: deps.CastTimeout,
		voted:       make(map[string]bool),
	}
	if s.log == nil {
		s.log = logger.Discard()
	}
	if s.identity == nil {
		s.identity = StaticIdentity{}
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.randReader == nil {
		s.randReader = rand.Reader
	}
	if s.castTimeout <= 0 {
		s.castTimeout = DefaultCastTimeout
	}
	s.notifications = append([]models.Notification(nil), deps.Notifications...)
	return s
}

// User returns the signed-in user, or nil
func (s *VotingSession) User() *models.User {
	return s.identity.CurrentUser()
}

// Ledger returns the shared position ledger
func (s *VotingSession) Ledger() *Ledger {
	return s.ledger
}

// Load fetches the user's positions and voted map. Members load their
// personal ballot, admins the full election list; a failed or empty fetch
// keeps the seed data. The profile's HasVoted map wins over persisted history.
func (s *VotingSession) Load(ctx context.Context) {
	user := s.User()
	if user == nil {
		s.mu.Lock()
		s.voted = make(map[string]bool)
		s.mu.Unlock()
		return
	}

	s.ledger.Install(s.fetchPositions(ctx, user))
	voted := s.loadVoted(user)

	s.mu.Lock()
	s.voted = voted
	s.mu.Unlock()
}

func (s *VotingSession) fetchPositions(ctx context.Context, user *models.User) []models.Position {
	if s.ballots == nil {
		s.ledger.InstallSeed()
		return nil
	}

	var (
		positions []models.Position
		err       error
		source    string
	)
	if user.Role.IsAdmin() {
		source = "elections"
		positions, err = s.ballots.GetElections(ctx)
	} else {
		source = "ballot"
		positions, err = s.ballots.GetBallot(ctx, user.Key())
	}

	if err != nil {
		s.log.Warn("Failed to fetch positions, using seed data", "source", source, "member_id", user.Key(), "error", err)
		s.ledger.InstallSeed()
		return nil
	}
	if len(positions) == 0 {
		s.log.Warn("Backend returned no positions, using seed data", "source", source, "member_id", user.Key())
		s.ledger.InstallSeed()
		return nil
	}
	return positions
}

func (s *VotingSession) loadVoted(user *models.User) map[string]bool {
	voted := make(map[string]bool)
	if user.HasVoted != nil {
		for id, v := range user.HasVoted {
			if v {
				voted[id] = true
			}
		}
		return voted
	}

	if s.history == nil {
		return voted
	}
	h, err := s.history.Load(user.Key())
	if err != nil {
		s.log.Error("Failed to load voting history, starting empty", "member_id", user.Key(), "error", err)
		return voted
	}
	if h == nil {
		return voted
	}
	for id, v := range h.VotedPositions {
		if v {
			voted[id] = true
		}
	}
	return voted
}

// HasUserVotedForPosition reports whether this user already voted for the position
func (s *VotingSession) HasUserVotedForPosition(positionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.voted[positionID]
}

// VotedPositions returns a copy of the voted map
func (s *VotingSession) VotedPositions() map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]bool, len(s.voted))
	for k, v := range s.voted {
		out[k] = v
	}
	return out
}

// CanUserVoteForPosition is the single eligibility gate for casting a vote
func (s *VotingSession) CanUserVoteForPosition(positionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canVoteLocked(positionID)
}

func (s *VotingSession) canVoteLocked(positionID string) bool {
	user := s.User()
	if user == nil {
		return false
	}
	p, ok := s.ledger.Position(positionID)
	if !ok {
		return false
	}
	if s.voted[positionID] {
		return false
	}
	if p.Status != models.StatusActive {
		return false
	}
	if p.Type == models.PositionBranch && p.Branch != user.Branch {
		return false
	}
	return true
}

// CastVote records the user's vote for a candidate.
//
// The remote vote sink is tried first with a bounded timeout. If it fails
// the vote is still recorded: the result mode is OfflineFallback, the
// receipt carries the offline prefixes, and the vote is queued for
// reconciliation. Only confirmed votes change the shared tallies.
func (s *VotingSession) CastVote(ctx context.Context, positionID, candidateID string) (models.CastResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.canVoteLocked(positionID) {
		return models.CastResult{}, ErrIneligible
	}
	if s.ledger.EmergencyStopActive() {
		return models.CastResult{}, ErrVotingSuspended
	}
	user := s.User()
	if user == nil {
		return models.CastResult{}, ErrUnauthenticated
	}

	position, ok := s.ledger.Position(positionID)
	if !ok {
		return models.CastResult{}, ErrIneligible
	}
	candidate, ok := position.Candidate(candidateID)
	if !ok {
		return models.CastResult{}, ErrUnknownCandidate
	}
	electionID := position.ElectionID
	if electionID == "" {
		electionID = seed.DefaultElectionID
	}

	epoch := s.ledger.Epoch()
	idempotencyKey := uuid.NewString()
	vote := kmpduapi.VotePayload{PositionID: positionID, CandidateID: candidateID, ElectionID: electionID}
	resp, castErr := s.castRemote(ctx, user.Key(), vote, idempotencyKey)

	mode := models.ModeConfirmed
	if castErr != nil {
		mode = models.ModeOfflineFallback
		s.log.Warn("Remote vote cast failed, recording offline",
			"member_id", user.Key(), "position_id", positionID, "mode", mode, "error", castErr)
	}

	now := s.clock()
	receipt := models.VoteReceipt{
		ID:                receiptIDPrefix + uuid.NewString(),
		MemberID:          user.Key(),
		PositionID:        positionID,
		PositionTitle:     position.Title,
		CandidateID:       candidateID,
		CandidateName:     candidate.Name,
		Timestamp:         now,
		VerificationToken: resp.VerificationToken,
		BlockchainHash:    resp.BlockchainHash,
		Mode:              mode,
	}
	if receipt.BlockchainHash == "" {
		receipt.BlockchainHash = s.generateHash(mode, now)
	}
	if receipt.VerificationToken == "" {
		receipt.VerificationToken = s.generateToken(mode, now)
	}

	s.voted[positionID] = true
	s.persistHistoryLocked(user.Key(), now)

	s.ledger.settle()
	if mode == models.ModeConfirmed {
		s.ledger.recordVote(epoch, positionID, candidateID)
	} else {
		s.enqueuePending(ctx, models.PendingVote{
			IdempotencyKey: idempotencyKey,
			ReceiptID:      receipt.ID,
			UserID:         user.ID,
			MemberID:       user.Key(),
			PositionID:     positionID,
			CandidateID:    candidateID,
			ElectionID:     electionID,
			QueuedAt:       now,
		})
	}

	s.receipts = append(s.receipts, receipt)
	if s.receiptLog != nil {
		if err := s.receiptLog.AppendReceipt(ctx, receipt); err != nil {
			s.log.Error("Failed to append receipt to audit log", "receipt_id", receipt.ID, "error", err)
		}
	}

	title := "Vote Confirmed"
	message := fmt.Sprintf("Your vote for %s has been confirmed.", position.Title)
	if mode == models.ModeOfflineFallback {
		title = "Vote Recorded (Offline Mode)"
		message = fmt.Sprintf("Your vote for %s has been recorded locally and will be submitted when the server is reachable.", position.Title)
	}
	s.addNotificationLocked(title, message, models.NotifySuccess)

	s.log.Info("Vote recorded", "member_id", user.Key(), "position_id", positionID,
		"candidate_id", candidateID, "mode", mode, "receipt_id", receipt.ID)

	return models.CastResult{Mode: mode, Receipt: receipt}, nil
}

func (s *VotingSession) castRemote(ctx context.Context, userID string, vote kmpduapi.VotePayload, key string) (kmpduapi.CastResponse, error) {
	if s.votes == nil {
		return kmpduapi.CastResponse{}, ErrSinkNotConfigured
	}
	ctx, cancel := context.WithTimeout(ctx, s.castTimeout)
	defer cancel()
	return s.votes.CastVotes(ctx, userID, []kmpduapi.VotePayload{vote}, key)
}

func (s *VotingSession) persistHistoryLocked(memberKey string, now time.Time) {
	if s.history == nil {
		return
	}
	voted := make(map[string]bool, len(s.voted))
	for k, v := range s.voted {
		voted[k] = v
	}
	h := models.VoteHistory{VotedPositions: voted, LastUpdated: now}
	if err := s.history.Save(memberKey, h); err != nil {
		s.log.Error("Failed to persist voting history", "member_id", memberKey, "error", err)
	}
}

func (s *VotingSession) enqueuePending(ctx context.Context, v models.PendingVote) {
	if s.pending == nil {
		return
	}
	if err := s.pending.EnqueuePending(ctx, v); err != nil {
		s.log.Error("Failed to queue offline vote", "receipt_id", v.ReceiptID, "error", err)
	}
}

func (s *VotingSession) generateHash(mode models.CastMode, now time.Time) string {
	prefix := HashPrefix
	if mode == models.ModeOfflineFallback {
		prefix = HashPrefixOffline
	}
	return prefix + timestamp36(now) + "-" + s.randomSuffix(4)
}

func (s *VotingSession) generateToken(mode models.CastMode, now time.Time) string {
	prefix := TokenPrefix
	if mode == models.ModeOfflineFallback {
		prefix = TokenPrefixOffline
	}
	return prefix + timestamp36(now) + "-" + s.randomSuffix(4)
}

func timestamp36(t time.Time) string {
	return strings.ToUpper(strconv.FormatInt(t.UnixNano(), 36))
}

func (s *VotingSession) randomSuffix(n int) string {
	b := make([]byte, n)
	if _, err := io.ReadFull(s.randReader, b); err != nil {
		s.log.Warn("Random source failed, using uuid for receipt suffix", "error", err)
		return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:n*2])
	}
	return strings.ToUpper(hex.EncodeToString(b))
}

// Receipts returns the receipts issued in this session, oldest first
func (s *VotingSession) Receipts() []models.VoteReceipt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.VoteReceipt(nil), s.receipts...)
}

// Receipt returns one receipt by id
func (s *VotingSession) Receipt(id string) (models.VoteReceipt, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.receipts {
		if r.ID == id {
			return r, true
		}
	}
	return models.VoteReceipt{}, false
}

// RefreshResults returns the current positions with derived percentages
func (s *VotingSession) RefreshResults() []models.PositionView {
	return s.ledger.Views()
}

// IsEmergencyStopActive reports whether vote casting is suspended
func (s *VotingSession) IsEmergencyStopActive() bool {
	return s.ledger.EmergencyStopActive()
}

// ToggleEmergencyStop flips the global emergency stop
func (s *VotingSession) ToggleEmergencyStop() bool {
	return s.ledger.ToggleEmergencyStop()
}

// SuperuseradminSettings returns the current override settings
func (s *VotingSession) SuperuseradminSettings() models.OverrideSettings {
	return s.ledger.Overrides()
}

// SetVoteLimit upserts a vote limit
func (s *VotingSession) SetVoteLimit(positionID, candidateID string, maxVotes int) {
	s.ledger.SetVoteLimit(positionID, candidateID, maxVotes)
}

// RemoveVoteLimit deletes a vote limit
func (s *VotingSession) RemoveVoteLimit(positionID, candidateID string) {
	s.ledger.RemoveVoteLimit(positionID, candidateID)
}

// SetForcedWinner sets a position's forced winner
func (s *VotingSession) SetForcedWinner(positionID, candidateID string, collectRemainingVotes bool) {
	s.ledger.SetForcedWinner(positionID, candidateID, collectRemainingVotes)
}

// RemoveForcedWinner clears a position's forced winner
func (s *VotingSession) RemoveForcedWinner(positionID string) {
	s.ledger.RemoveForcedWinner(positionID)
}

// ToggleSystemOverride flips the advisory system override flag
func (s *VotingSession) ToggleSystemOverride() bool {
	return s.ledger.ToggleSystemOverride()
}

// ApplySuperuseradminOverrides applies forced winners and vote limits to the ledger
func (s *VotingSession) ApplySuperuseradminOverrides() {
	s.ledger.ApplyOverrides()
}

// InjectVotes adds simulated votes to a candidate
func (s *VotingSession) InjectVotes(positionID, candidateID string, count int) bool {
	return s.ledger.InjectVotes(positionID, candidateID, count)
}

// ResetElection restores the seed positions and wipes this user's voting
// state, history, receipts, notifications and the pending queue. It cannot
// be undone.
func (s *VotingSession) ResetElection(ctx context.Context) {
	s.mu.Lock()
	s.resetLocalLocked()
	s.ledger.Reset()
	s.mu.Unlock()

	if user := s.User(); user != nil && s.history != nil {
		if err := s.history.Delete(user.Key()); err != nil {
			s.log.Error("Failed to delete voting history", "member_id", user.Key(), "error", err)
		}
	}
	if s.receiptLog != nil {
		if err := s.receiptLog.ClearReceipts(ctx); err != nil {
			s.log.Error("Failed to clear receipt log", "error", err)
		}
	}
	if s.pending != nil {
		if err := s.pending.ClearPending(ctx); err != nil {
			s.log.Error("Failed to clear pending votes", "error", err)
		}
	}
	s.log.Warn("Election reset", "by", s.userKey())
}

// resetLocalLocked clears in-memory per-user state only. s.mu must be held.
func (s *VotingSession) resetLocalLocked() {
	s.voted = make(map[string]bool)
	s.receipts = nil
	s.notifications = nil
	s.level = models.LevelNone
	s.pendingLevel = nil
}

func (s *VotingSession) userKey() string {
	if u := s.User(); u != nil {
		return u.Key()
	}
	return ""
}
