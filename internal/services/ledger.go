package services

import (
	"sync"

	"github.com/kmpdu/evote/internal/logger"
	"github.com/kmpdu/evote/internal/models"
)

// Ledger is the shared position ledger. It owns the positions, the
// superadmin override settings and the emergency-stop flag. Every session
// on a server reads and mutates the same Ledger.
type Ledger struct {
	mu            sync.RWMutex
	log           logger.Logger
	seed          func() []models.Position
	positions     []models.Position
	installed     bool
	fallback      bool
	epoch         uint64
	overrides     models.OverrideSettings
	emergencyStop bool
	broadcaster   Broadcaster
}

// NewLedger creates a ledger holding the seed positions. seed must return a
// fresh copy on every call; it is used for fallbacks and resets.
func NewLedger(log logger.Logger, seed func() []models.Position) *Ledger {
	return &Ledger{
		log:       log,
		seed:      seed,
		positions: seed(),
		overrides: models.OverrideSettings{},
	}
}

// SetBroadcaster sets the broadcaster for sending updates to clients
func (l *Ledger) SetBroadcaster(b Broadcaster) {
	l.mu.Lock()
	l.broadcaster = b
	l.mu.Unlock()
}

// Install replaces the seed positions on first call, or after a fallback
// seed nothing has touched yet. Later calls only add positions whose ids
// are not yet known, so a reload never rewinds tallies.
func (l *Ledger) Install(positions []models.Position) {
	if len(positions) == 0 {
		return
	}

	l.mu.Lock()
	if !l.installed || l.fallback {
		l.positions = make([]models.Position, 0, len(positions))
		l.installed = true
		l.fallback = false
	}
	added := 0
	for _, p := range positions {
		if l.indexOf(p.ID) >= 0 {
			continue
		}
		p = p.Clone()
		p.RecountTotal()
		l.positions = append(l.positions, p)
		added++
	}
	l.mu.Unlock()

	if added > 0 {
		l.log.Debug("Ledger positions installed", "added", added)
		l.publishResults()
	}
}

// InstallSeed keeps the seed positions when no ballot could be fetched.
// The first real Install still replaces them until a vote, an injection or
// an override lands on the seed.
func (l *Ledger) InstallSeed() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.installed {
		l.installed = true
		l.fallback = true
	}
}

// settle keeps whatever positions are installed now; later installs merge
func (l *Ledger) settle() {
	l.mu.Lock()
	l.fallback = false
	l.mu.Unlock()
}

// Epoch identifies the current election. It advances on every Reset.
func (l *Ledger) Epoch() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.epoch
}

// Positions returns deep copies of all positions
func (l *Ledger) Positions() []models.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshot()
}

// Position returns a copy of one position
func (l *Ledger) Position(id string) (models.Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	i := l.indexOf(id)
	if i < 0 {
		return models.Position{}, false
	}
	return l.positions[i].Clone(), true
}

// Views returns every position with derived percentages
func (l *Ledger) Views() []models.PositionView {
	return models.Views(l.Positions())
}

// SeedPositions returns a fresh copy of the original seed data set
func (l *Ledger) SeedPositions() []models.Position {
	return l.seed()
}

// recordVote adds one vote to a candidate and its position. epoch is the
// election the vote was cast in; a vote from before the last Reset is
// dropped. Reports false when the vote was not counted.
func (l *Ledger) recordVote(epoch uint64, positionID, candidateID string) bool {
	l.mu.Lock()
	if epoch != l.epoch {
		l.mu.Unlock()
		l.log.Warn("Dropping vote from a reset election", "position_id", positionID, "candidate_id", candidateID)
		return false
	}
	i := l.indexOf(positionID)
	if i < 0 {
		l.mu.Unlock()
		return false
	}
	c, ok := l.positions[i].Candidate(candidateID)
	if !ok {
		l.mu.Unlock()
		return false
	}
	c.VoteCount++
	l.positions[i].TotalVotes++
	l.fallback = false
	l.mu.Unlock()

	l.publishResults()
	return true
}

// EmergencyStopActive reports whether vote casting is suspended
func (l *Ledger) EmergencyStopActive() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.emergencyStop
}

// ToggleEmergencyStop flips the emergency stop and returns the new state
func (l *Ledger) ToggleEmergencyStop() bool {
	l.mu.Lock()
	l.emergencyStop = !l.emergencyStop
	active := l.emergencyStop
	l.mu.Unlock()

	l.log.Warn("Emergency stop toggled", "active", active)
	l.publishStatus()
	return active
}

// Stats summarizes turnout across all positions
func (l *Ledger) Stats() models.ElectionStats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var stats models.ElectionStats
	branches := make(map[string]struct{})
	for _, p := range l.positions {
		stats.TotalEligible += p.EligibleVoters
		stats.TotalVotesCast += p.TotalVotes
		if p.Status == models.StatusActive {
			stats.ActivePositions++
		}
		if p.Type == models.PositionBranch && p.Branch != "" {
			branches[p.Branch] = struct{}{}
		}
	}
	stats.ActiveBranches = len(branches)
	stats.TurnoutPercentage = models.Percentage(stats.TotalVotesCast, stats.TotalEligible)
	return stats
}

// Reset restores the seed positions and clears overrides and the emergency stop
func (l *Ledger) Reset() {
	l.mu.Lock()
	l.positions = l.seed()
	l.installed = true
	l.fallback = false
	l.epoch++
	l.overrides = models.OverrideSettings{}
	l.emergencyStop = false
	l.mu.Unlock()

	l.log.Warn("Election ledger reset to seed data")
	l.publishStatus()
	l.publishResults()
}

func (l *Ledger) indexOf(id string) int {
	for i := range l.positions {
		if l.positions[i].ID == id {
			return i
		}
	}
	return -1
}

func (l *Ledger) snapshot() []models.Position {
	out := make([]models.Position, len(l.positions))
	for i, p := range l.positions {
		out[i] = p.Clone()
	}
	return out
}

func (l *Ledger) publishResults() {
	l.mu.RLock()
	b := l.broadcaster
	var views []models.PositionView
	if b != nil {
		views = models.Views(l.snapshot())
	}
	l.mu.RUnlock()

	if b != nil {
		b.BroadcastResults(views)
	}
}

func (l *Ledger) publishStatus() {
	l.mu.RLock()
	b := l.broadcaster
	status := models.ElectionStatus{
		EmergencyStop:  l.emergencyStop,
		SystemOverride: l.overrides.SystemOverrideEnabled,
	}
	l.mu.RUnlock()

	if b != nil {
		b.BroadcastElectionStatus(status)
	}
}

// Status returns the current global switches
func (l *Ledger) Status() models.ElectionStatus {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return models.ElectionStatus{
		EmergencyStop:  l.emergencyStop,
		SystemOverride: l.overrides.SystemOverrideEnabled,
	}
}
