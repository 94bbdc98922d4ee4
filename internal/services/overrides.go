package services

import "github.com/kmpdu/evote/internal/models"

// Overrides returns a copy of the superadmin override settings
func (l *Ledger) Overrides() models.OverrideSettings {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.overrides.Clone()
}

// SetVoteLimit upserts an active vote limit keyed by position and candidate
func (l *Ledger) SetVoteLimit(positionID, candidateID string, maxVotes int) {
	l.mu.Lock()
	l.overrides.VoteLimits = append(
		withoutVoteLimit(l.overrides.VoteLimits, positionID, candidateID),
		models.VoteLimit{PositionID: positionID, CandidateID: candidateID, MaxVotes: maxVotes, IsActive: true},
	)
	l.mu.Unlock()

	l.log.Info("Vote limit set", "position_id", positionID, "candidate_id", candidateID, "max_votes", maxVotes)
}

// RemoveVoteLimit deletes the vote limit for a position and candidate
func (l *Ledger) RemoveVoteLimit(positionID, candidateID string) {
	l.mu.Lock()
	l.overrides.VoteLimits = withoutVoteLimit(l.overrides.VoteLimits, positionID, candidateID)
	l.mu.Unlock()

	l.log.Info("Vote limit removed", "position_id", positionID, "candidate_id", candidateID)
}

func withoutVoteLimit(limits []models.VoteLimit, positionID, candidateID string) []models.VoteLimit {
	out := make([]models.VoteLimit, 0, len(limits)+1)
	for _, vl := range limits {
		if vl.PositionID == positionID && vl.CandidateID == candidateID {
			continue
		}
		out = append(out, vl)
	}
	return out
}

// SetForcedWinner sets the single forced winner for a position, replacing any existing one
func (l *Ledger) SetForcedWinner(positionID, candidateID string, collectRemainingVotes bool) {
	l.mu.Lock()
	l.overrides.ForcedWinners = append(
		withoutForcedWinner(l.overrides.ForcedWinners, positionID),
		models.ForcedWinner{
			PositionID:            positionID,
			CandidateID:           candidateID,
			IsActive:              true,
			CollectRemainingVotes: collectRemainingVotes,
		},
	)
	l.mu.Unlock()

	l.log.Info("Forced winner set", "position_id", positionID, "candidate_id", candidateID,
		"collect_remaining_votes", collectRemainingVotes)
}

// RemoveForcedWinner clears the forced winner of a position
func (l *Ledger) RemoveForcedWinner(positionID string) {
	l.mu.Lock()
	l.overrides.ForcedWinners = withoutForcedWinner(l.overrides.ForcedWinners, positionID)
	l.mu.Unlock()

	l.log.Info("Forced winner removed", "position_id", positionID)
}

func withoutForcedWinner(winners []models.ForcedWinner, positionID string) []models.ForcedWinner {
	out := make([]models.ForcedWinner, 0, len(winners)+1)
	for _, fw := range winners {
		if fw.PositionID == positionID {
			continue
		}
		out = append(out, fw)
	}
	return out
}

// ToggleSystemOverride flips the advisory override flag and returns the new state
func (l *Ledger) ToggleSystemOverride() bool {
	l.mu.Lock()
	l.overrides.SystemOverrideEnabled = !l.overrides.SystemOverrideEnabled
	enabled := l.overrides.SystemOverrideEnabled
	l.mu.Unlock()

	l.log.Info("System override toggled", "enabled", enabled)
	l.publishStatus()
	return enabled
}

// ApplyOverrides rewrites tallies according to the override settings.
// It never runs on its own; callers invoke it explicitly.
//
// A position with an active forced winner gets that candidate set to every
// eligible voter (collecting remaining votes) or to at least 60% of them,
// and the position's winner fields set. Otherwise active vote limits cap
// their candidates.
func (l *Ledger) ApplyOverrides() {
	l.mu.Lock()
	changed := 0
	for i := range l.positions {
		p := &l.positions[i]
		if fw, ok := activeForcedWinner(l.overrides.ForcedWinners, p.ID); ok {
			if applyForcedWinner(p, fw) {
				changed++
			}
			continue
		}
		if applyVoteLimits(p, l.overrides.VoteLimits) {
			changed++
		}
	}
	if changed > 0 {
		l.fallback = false
	}
	l.mu.Unlock()

	l.log.Info("Superadmin overrides applied", "positions_changed", changed)
	l.publishResults()
}

func activeForcedWinner(winners []models.ForcedWinner, positionID string) (models.ForcedWinner, bool) {
	for _, fw := range winners {
		if fw.IsActive && fw.PositionID == positionID {
			return fw, true
		}
	}
	return models.ForcedWinner{}, false
}

func applyForcedWinner(p *models.Position, fw models.ForcedWinner) bool {
	winner, ok := p.Candidate(fw.CandidateID)
	if !ok {
		return false
	}

	if fw.CollectRemainingVotes {
		for i := range p.Candidates {
			p.Candidates[i].VoteCount = 0
		}
		winner.VoteCount = p.EligibleVoters
	} else {
		// ceil(0.6 * eligible)
		floor := (p.EligibleVoters*3 + 4) / 5
		if winner.VoteCount < floor {
			winner.VoteCount = floor
		}
	}

	p.RecountTotal()
	p.WinnerID = winner.ID
	p.WinnerVotes = winner.VoteCount
	return true
}

func applyVoteLimits(p *models.Position, limits []models.VoteLimit) bool {
	changed := false
	for _, vl := range limits {
		if !vl.IsActive || vl.PositionID != p.ID {
			continue
		}
		c, ok := p.Candidate(vl.CandidateID)
		if !ok || c.VoteCount <= vl.MaxVotes {
			continue
		}
		c.VoteCount = vl.MaxVotes
		changed = true
	}
	if changed {
		p.RecountTotal()
	}
	return changed
}

// InjectVotes adds count votes to a candidate for simulation. A negative
// count removes votes but never takes a candidate below zero. Reports false
// when the position or candidate is unknown.
func (l *Ledger) InjectVotes(positionID, candidateID string, count int) bool {
	l.mu.Lock()
	i := l.indexOf(positionID)
	if i < 0 {
		l.mu.Unlock()
		return false
	}
	p := &l.positions[i]
	c, ok := p.Candidate(candidateID)
	if !ok {
		l.mu.Unlock()
		return false
	}
	c.VoteCount += count
	if c.VoteCount < 0 {
		c.VoteCount = 0
	}
	p.RecountTotal()
	l.fallback = false
	l.mu.Unlock()

	l.log.Info("Votes injected", "position_id", positionID, "candidate_id", candidateID, "count", count)
	l.publishResults()
	return true
}
