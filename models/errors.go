package models

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthorized             = errors.New("unauthorized")
	ErrNotFound                 = errors.New("not found")
	ErrVotingClosed             = errors.New("voting is closed")
	ErrEarlyReturn              = errors.New("voting has not ended yet")
	ErrInsufficientStake        = errors.New("insufficient stake")
	ErrAlreadyVoted             = errors.New("voter already voted")
	ErrChallengeInProgress      = errors.New("an opinion challenge is already in progress")
	ErrImplementationInProgress = errors.New("an implementation is already pending")
	ErrInvalidTag               = errors.New("invalid tag")
	ErrInsufficientPool         = errors.New("withdrawal exceeds contribution")
	ErrInsufficientFunds        = errors.New("insufficient funds")
	ErrDebateNotAccepted        = errors.New("debate was not accepted")
	ErrInvalidAmount            = errors.New("invalid amount")
	ErrAmountOverflow           = errors.New("amount overflow")
	ErrInvalidSetting           = errors.New("invalid setting")
	ErrProposalClosed           = errors.New("proposal reward already paid")

	// ErrPollNotFound matches ErrNotFound too.
	ErrPollNotFound = fmt.Errorf("poll %w", ErrNotFound)
)
