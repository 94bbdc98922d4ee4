package services_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kmpdu/evote/internal/history"
	"github.com/kmpdu/evote/internal/logger"
	"github.com/kmpdu/evote/internal/models"
	"github.com/kmpdu/evote/internal/repository"
	"github.com/kmpdu/evote/internal/seed"
	"github.com/kmpdu/evote/internal/services"
	"github.com/kmpdu/evote/internal/testutil"
	"github.com/kmpdu/evote/pkg/kmpduapi"
)

var fixedNow = time.Date(2024, time.December, 4, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func member(i int) *models.User {
	u := seed.Members()[i]
	return &u
}

func nairobiMember() *models.User  { return member(0) }
func mombasaMember() *models.User  { return member(1) }
func adminUser() *models.User      { return member(2) }
func superadminUser() *models.User { return member(3) }

func newLedger() *services.Ledger {
	return services.NewLedger(logger.Discard(), seed.Positions)
}

// recordingNotifier captures notifications forwarded by sessions
type recordingNotifier struct {
	mu    sync.Mutex
	keys  []string
	items []models.Notification
}

func (r *recordingNotifier) Notify(memberKey string, n models.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, memberKey)
	r.items = append(r.items, n)
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// recordingBroadcaster captures ledger broadcasts
type recordingBroadcaster struct {
	mu       sync.Mutex
	results  [][]models.PositionView
	statuses []models.ElectionStatus
}

func (b *recordingBroadcaster) BroadcastResults(positions []models.PositionView) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.results = append(b.results, positions)
}

func (b *recordingBroadcaster) BroadcastElectionStatus(status models.ElectionStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.statuses = append(b.statuses, status)
}

func (b *recordingBroadcaster) resultCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.results)
}

func (b *recordingBroadcaster) lastStatus() (models.ElectionStatus, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.statuses) == 0 {
		return models.ElectionStatus{}, false
	}
	return b.statuses[len(b.statuses)-1], true
}

// fixture bundles a loaded session with its collaborators
type fixture struct {
	ledger   *services.Ledger
	client   *kmpduapi.MockClient
	repo     *repository.Repository
	history  *history.Store
	notifier *recordingNotifier
	session  *services.VotingSession
}

func newFixture(t *testing.T, user *models.User, opts ...kmpduapi.MockOption) *fixture {
	t.Helper()
	return newFixtureWithTimeout(t, user, 0, opts...)
}

func newFixtureWithTimeout(t *testing.T, user *models.User, timeout time.Duration, opts ...kmpduapi.MockOption) *fixture {
	t.Helper()

	f := &fixture{
		ledger:   newLedger(),
		client:   kmpduapi.NewMockClient(opts...),
		repo:     testutil.NewTestRepository(t),
		history:  testutil.NewTestHistory(t),
		notifier: &recordingNotifier{},
	}
	f.session = services.NewVotingSession(services.SessionDeps{
		Logger:        logger.Discard(),
		Ledger:        f.ledger,
		Identity:      services.StaticIdentity{User: user},
		Ballots:       f.client,
		Votes:         f.client,
		History:       f.history,
		Notifier:      f.notifier,
		Receipts:      f.repo,
		Pending:       f.repo,
		Clock:         fixedClock,
		CastTimeout:   timeout,
		Notifications: seed.Notifications(),
	})
	f.session.Load(context.Background())
	return f
}

func candidateVotes(t *testing.T, l *services.Ledger, positionID, candidateID string) int {
	t.Helper()
	p, ok := l.Position(positionID)
	if !ok {
		t.Fatalf("position %s not found", positionID)
	}
	c, ok := p.Candidate(candidateID)
	if !ok {
		t.Fatalf("candidate %s not found in %s", candidateID, positionID)
	}
	return c.VoteCount
}

func positionTotal(t *testing.T, l *services.Ledger, positionID string) int {
	t.Helper()
	p, ok := l.Position(positionID)
	if !ok {
		t.Fatalf("position %s not found", positionID)
	}
	return p.TotalVotes
}

// assertTallyConsistent checks every position's total equals its candidates' sum
func assertTallyConsistent(t *testing.T, l *services.Ledger) {
	t.Helper()
	for _, p := range l.Positions() {
		sum := 0
		for _, c := range p.Candidates {
			if c.VoteCount < 0 {
				t.Errorf("%s/%s has negative count %d", p.ID, c.ID, c.VoteCount)
			}
			sum += c.VoteCount
		}
		if sum != p.TotalVotes {
			t.Errorf("%s: total %d != candidate sum %d", p.ID, p.TotalVotes, sum)
		}
	}
}
