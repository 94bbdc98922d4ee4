package services

import (
	stderrors "errors"

	"github.com/kmpdu/evote/internal/errors"
)

// Service errors
var (
	ErrIneligible           = errors.Ineligible("You cannot vote for this position")
	ErrVotingSuspended      = errors.Suspended("VOTING SUSPENDED: Emergency Stop is Active")
	ErrUnauthenticated      = errors.Unauthenticated("User not authenticated")
	ErrUnknownCandidate     = errors.Validation("candidate does not stand for this position")
	ErrNoPendingLevelSwitch = errors.Conflict("no level switch is awaiting confirmation")
	ErrInvalidLevel         = errors.InvalidInput("voting level must be national or branch")
	ErrInvalidVoteCount     = errors.Validation("vote count must be a non-negative number")
	ErrSinkNotConfigured    = errors.Internal(stderrors.New("vote sink is not configured"))
)
