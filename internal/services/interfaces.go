package services

import (
	"context"
	"time"

	"github.com/kmpdu/evote/internal/models"
	"github.com/kmpdu/evote/pkg/kmpduapi"
)

// IdentityProvider supplies the user of the current session.
// A nil user means nobody is signed in.
type IdentityProvider interface {
	CurrentUser() *models.User
}

// StaticIdentity is an IdentityProvider for a fixed user
type StaticIdentity struct {
	User *models.User
}

// CurrentUser returns the fixed user
func (s StaticIdentity) CurrentUser() *models.User {
	return s.User
}

// BallotSource loads positions from the remote backend
type BallotSource interface {
	GetBallot(ctx context.Context, memberID string) ([]models.Position, error)
	GetElections(ctx context.Context) ([]models.Position, error)
}

// VoteSink accepts cast votes
type VoteSink interface {
	CastVotes(ctx context.Context, userID string, votes []kmpduapi.VotePayload, idempotencyKey string) (kmpduapi.CastResponse, error)
}

// HistoryStore persists each member's voted-position map
type HistoryStore interface {
	Load(memberKey string) (*models.VoteHistory, error)
	Save(memberKey string, h models.VoteHistory) error
	Delete(memberKey string) error
	Clear() error
}

// NotificationSink receives notifications fire-and-forget
type NotificationSink interface {
	Notify(memberKey string, n models.Notification)
}

// ReceiptLog is the append-only audit log of issued receipts
type ReceiptLog interface {
	AppendReceipt(ctx context.Context, r models.VoteReceipt) error
	ClearReceipts(ctx context.Context) error
}

// PendingQueue holds offline-fallback votes until the backend confirms them
type PendingQueue interface {
	EnqueuePending(ctx context.Context, v models.PendingVote) error
	ListPending(ctx context.Context, includeReconciled bool) ([]models.PendingVote, error)
	MarkReconciled(ctx context.Context, idempotencyKey, blockchainHash string, at time.Time) error
	RecordAttempt(ctx context.Context, idempotencyKey string) error
	ClearPending(ctx context.Context) error
}

// Broadcaster defines the interface for broadcasting messages to clients
type Broadcaster interface {
	BroadcastResults(positions []models.PositionView)
	BroadcastElectionStatus(status models.ElectionStatus)
}

// Clock returns the current time
type Clock func() time.Time

// Ensure the backend client satisfies both remote roles
var (
	_ BallotSource = (kmpduapi.Client)(nil)
	_ VoteSink     = (kmpduapi.Client)(nil)
)
