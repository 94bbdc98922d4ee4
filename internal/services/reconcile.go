package services

import (
	"context"
	"time"

	"github.com/kmpdu/evote/internal/logger"
	"github.com/kmpdu/evote/internal/models"
	"github.com/kmpdu/evote/pkg/kmpduapi"
)

// ReconcileReport summarizes one reconciliation pass
type ReconcileReport struct {
	Attempted  int `json:"attempted"`
	Reconciled int `json:"reconciled"`
	Failed     int `json:"failed"`
}

// Reconciler replays offline-fallback votes against the vote sink using
// their original idempotency keys. A confirmed replay adds the vote to the
// shared tally and marks the entry reconciled.
type Reconciler struct {
	log         logger.Logger
	ledger      *Ledger
	votes       VoteSink
	pending     PendingQueue
	clock       Clock
	castTimeout time.Duration

	// OnReconciled is called after each successful replay
	OnReconciled func(v models.PendingVote)
}

// NewReconciler creates a new Reconciler
func NewReconciler(log logger.Logger, ledger *Ledger, votes VoteSink, pending PendingQueue, clock Clock, castTimeout time.Duration) *Reconciler {
	if clock == nil {
		clock = time.Now
	}
	if castTimeout <= 0 {
		castTimeout = DefaultCastTimeout
	}
	return &Reconciler{
		log:         log,
		ledger:      ledger,
		votes:       votes,
		pending:     pending,
		clock:       clock,
		castTimeout: castTimeout,
	}
}

// Run makes one pass over the unreconciled queue
func (r *Reconciler) Run(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport
	if r.pending == nil {
		return report, nil
	}
	if r.votes == nil {
		return report, ErrSinkNotConfigured
	}

	epoch := r.ledger.Epoch()
	queued, err := r.pending.ListPending(ctx, false)
	if err != nil {
		return report, err
	}

	for _, v := range queued {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		report.Attempted++

		resp, err := r.replay(ctx, v)
		if err != nil {
			report.Failed++
			r.log.Debug("Offline vote still unconfirmed", "idempotency_key", v.IdempotencyKey, "attempts", v.Attempts+1, "error", err)
			if err := r.pending.RecordAttempt(ctx, v.IdempotencyKey); err != nil {
				r.log.Error("Failed to record reconcile attempt", "idempotency_key", v.IdempotencyKey, "error", err)
			}
			continue
		}

		now := r.clock()
		if err := r.pending.MarkReconciled(ctx, v.IdempotencyKey, resp.BlockchainHash, now); err != nil {
			// the sink already has the vote; leave the tally alone so a retry does not double count
			r.log.Error("Failed to mark vote reconciled", "idempotency_key", v.IdempotencyKey, "error", err)
			report.Failed++
			continue
		}
		r.ledger.recordVote(epoch, v.PositionID, v.CandidateID)
		report.Reconciled++

		v.Reconciled = true
		v.ReconciledAt = now
		v.BlockchainHash = resp.BlockchainHash
		if r.OnReconciled != nil {
			r.OnReconciled(v)
		}
	}

	if report.Attempted > 0 {
		r.log.Info("Reconciliation pass complete", "attempted", report.Attempted,
			"reconciled", report.Reconciled, "failed", report.Failed)
	}
	return report, nil
}

func (r *Reconciler) replay(ctx context.Context, v models.PendingVote) (kmpduapi.CastResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, r.castTimeout)
	defer cancel()
	vote := kmpduapi.VotePayload{PositionID: v.PositionID, CandidateID: v.CandidateID, ElectionID: v.ElectionID}
	return r.votes.CastVotes(ctx, v.MemberID, []kmpduapi.VotePayload{vote}, v.IdempotencyKey)
}

// Start runs a pass every interval until ctx is cancelled
func (r *Reconciler) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Run(ctx); err != nil && ctx.Err() == nil {
				r.log.Warn("Reconciliation pass failed", "error", err)
			}
		}
	}
}
