package services

import "github.com/kmpdu/evote/internal/models"

// SelectedLevel returns the ballot section the user is working through
func (s *VotingSession) SelectedLevel() models.VotingLevel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.level
}

// HasSelectedLevel reports whether any level has been chosen
func (s *VotingSession) HasSelectedLevel() bool {
	return s.SelectedLevel() != models.LevelNone
}

// SetSelectedLevel sets the level directly, skipping the completeness check.
// Used for the first selection.
func (s *VotingSession) SetSelectedLevel(level models.VotingLevel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.level = level
	s.pendingLevel = nil
}

// RequestLevelSwitch asks to move to another level. Admins switch
// immediately. A member leaving a level with active unvoted positions gets
// ConfirmationRequired with those positions listed; the switch then waits
// for ConfirmLevelSwitch or CancelLevelSwitch.
func (s *VotingSession) RequestLevelSwitch(newLevel models.VotingLevel) models.LevelSwitchResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := models.LevelSwitchResult{From: s.level, To: newLevel}
	if newLevel == models.LevelNone || newLevel == s.level {
		result.To = s.level
		return result
	}

	user := s.User()
	if user != nil && user.Role.IsAdmin() {
		s.switchLocked(newLevel)
		result.Switched = true
		return result
	}

	if s.level != models.LevelNone {
		if incomplete := s.incompleteLocked(s.level, user); len(incomplete) > 0 {
			lvl := newLevel
			s.pendingLevel = &lvl
			result.ConfirmationRequired = true
			result.Incomplete = incomplete
			return result
		}
	}

	s.switchLocked(newLevel)
	result.Switched = true
	return result
}

// ConfirmLevelSwitch completes a switch that required confirmation
func (s *VotingSession) ConfirmLevelSwitch() (models.LevelSwitchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pendingLevel == nil {
		return models.LevelSwitchResult{}, ErrNoPendingLevelSwitch
	}
	result := models.LevelSwitchResult{From: s.level, To: *s.pendingLevel, Switched: true}
	s.switchLocked(*s.pendingLevel)
	return result, nil
}

// CancelLevelSwitch abandons a pending switch. Reports whether one was pending.
func (s *VotingSession) CancelLevelSwitch() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	pending := s.pendingLevel != nil
	s.pendingLevel = nil
	return pending
}

// PendingLevelSwitch returns the level awaiting confirmation, if any
func (s *VotingSession) PendingLevelSwitch() (models.VotingLevel, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pendingLevel == nil {
		return models.LevelNone, false
	}
	return *s.pendingLevel, true
}

func (s *VotingSession) switchLocked(level models.VotingLevel) {
	s.level = level
	s.pendingLevel = nil
}

// incompleteLocked lists active positions of a level the user has not voted on
func (s *VotingSession) incompleteLocked(level models.VotingLevel, user *models.User) []models.PositionRef {
	branch := ""
	if user != nil {
		branch = user.Branch
	}

	var refs []models.PositionRef
	for _, p := range s.ledger.Positions() {
		if p.Status != models.StatusActive {
			continue
		}
		switch level {
		case models.LevelNational:
			if p.Type != models.PositionNational {
				continue
			}
		case models.LevelBranch:
			if p.Type != models.PositionBranch || p.Branch != branch {
				continue
			}
		default:
			continue
		}
		if !s.voted[p.ID] {
			refs = append(refs, models.PositionRef{ID: p.ID, Title: p.Title})
		}
	}
	return refs
}
