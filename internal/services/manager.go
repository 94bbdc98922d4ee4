package services

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/kmpdu/evote/internal/logger"
	"github.com/kmpdu/evote/internal/models"
)

// ManagerDeps are the collaborators shared by every session of a server
type ManagerDeps struct {
	Logger      logger.Logger
	Ledger      *Ledger
	Ballots     BallotSource
	Votes       VoteSink
	History     HistoryStore
	Notifier    NotificationSink
	Receipts    ReceiptLog
	Pending     PendingQueue
	Clock       Clock
	Rand        io.Reader
	CastTimeout time.Duration
	// Notifications seeds each new session's notification list
	Notifications func() []models.Notification
}

// SessionManager keeps one VotingSession per member over a shared Ledger
type SessionManager struct {
	mu         sync.Mutex
	resetMu    sync.Mutex // one reset at a time; it locks many sessions
	deps       ManagerDeps
	log        logger.Logger
	sessions   map[string]*VotingSession
	reconciler *Reconciler
}

// NewSessionManager creates a new SessionManager
func NewSessionManager(deps ManagerDeps) *SessionManager {
	if deps.Logger == nil {
		deps.Logger = logger.Discard()
	}
	m := &SessionManager{
		deps:     deps,
		log:      deps.Logger,
		sessions: make(map[string]*VotingSession),
	}
	m.reconciler = NewReconciler(deps.Logger, deps.Ledger, deps.Votes, deps.Pending, deps.Clock, deps.CastTimeout)
	m.reconciler.OnReconciled = m.notifyReconciled
	return m
}

// Ledger returns the shared ledger
func (m *SessionManager) Ledger() *Ledger {
	return m.deps.Ledger
}

// Reconciler returns the offline-vote reconciler
func (m *SessionManager) Reconciler() *Reconciler {
	return m.reconciler
}

// Session returns the member's session, creating and loading it on first use
func (m *SessionManager) Session(ctx context.Context, user models.User) *VotingSession {
	key := user.Key()

	m.mu.Lock()
	if s, ok := m.sessions[key]; ok {
		m.mu.Unlock()
		return s
	}
	var initial []models.Notification
	if m.deps.Notifications != nil {
		initial = m.deps.Notifications()
	}
	u := user
	s := NewVotingSession(SessionDeps{
		Logger:        m.log.With("member_id", key),
		Ledger:        m.deps.Ledger,
		Identity:      StaticIdentity{User: &u},
		Ballots:       m.deps.Ballots,
		Votes:         m.deps.Votes,
		History:       m.deps.History,
		Notifier:      m.deps.Notifier,
		Receipts:      m.deps.Receipts,
		Pending:       m.deps.Pending,
		Clock:         m.deps.Clock,
		Rand:          m.deps.Rand,
		CastTimeout:   m.deps.CastTimeout,
		Notifications: initial,
	})
	m.sessions[key] = s
	m.mu.Unlock()

	s.Load(ctx)
	m.log.Debug("Session opened", "member_id", key, "role", user.Role)
	return s
}

// Lookup returns an existing session without creating one
func (m *SessionManager) Lookup(memberKey string) (*VotingSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[memberKey]
	return s, ok
}

// Close forgets a member's session; persisted history is kept
func (m *SessionManager) Close(memberKey string) {
	m.mu.Lock()
	delete(m.sessions, memberKey)
	m.mu.Unlock()
}

// Count returns the number of open sessions
func (m *SessionManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// ResetElection resets the ledger and every session, and wipes all
// persisted history, receipts and queued offline votes.
func (m *SessionManager) ResetElection(ctx context.Context) error {
	m.resetMu.Lock()
	defer m.resetMu.Unlock()

	m.mu.Lock()
	sessions := make([]*VotingSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	// Every session lock is held across the ledger reset so a cast already
	// in flight finishes against the old election first.
	for _, s := range sessions {
		s.mu.Lock()
	}
	for _, s := range sessions {
		s.resetLocalLocked()
	}
	m.deps.Ledger.Reset()
	for _, s := range sessions {
		s.mu.Unlock()
	}

	if m.deps.History != nil {
		if err := m.deps.History.Clear(); err != nil {
			return fmt.Errorf("clearing history: %w", err)
		}
	}
	if m.deps.Receipts != nil {
		if err := m.deps.Receipts.ClearReceipts(ctx); err != nil {
			return fmt.Errorf("clearing receipts: %w", err)
		}
	}
	if m.deps.Pending != nil {
		if err := m.deps.Pending.ClearPending(ctx); err != nil {
			return fmt.Errorf("clearing pending votes: %w", err)
		}
	}

	m.log.Warn("Election reset", "sessions", len(sessions))
	return nil
}

// Reconcile runs one reconciliation pass
func (m *SessionManager) Reconcile(ctx context.Context) (ReconcileReport, error) {
	return m.reconciler.Run(ctx)
}

// Pending lists queued offline votes
func (m *SessionManager) Pending(ctx context.Context, includeReconciled bool) ([]models.PendingVote, error) {
	if m.deps.Pending == nil {
		return nil, nil
	}
	return m.deps.Pending.ListPending(ctx, includeReconciled)
}

func (m *SessionManager) notifyReconciled(v models.PendingVote) {
	s, ok := m.Lookup(v.MemberID)
	if !ok {
		return
	}
	title := v.PositionID
	if p, ok := m.deps.Ledger.Position(v.PositionID); ok {
		title = p.Title
	}
	s.AddNotification("Vote Confirmed", fmt.Sprintf("Your offline vote for %s has been confirmed by the server.", title), models.NotifySuccess)
}
