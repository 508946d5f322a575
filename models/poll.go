package models

import (
	"time"
)

// Poll represents one time-boxed stake-weighted vote owned by a vote ledger.
// ForTotal / AgainstTotal accumulate while the poll is open but are only
// exposed once EndTime has passed.
type Poll struct {
	ID           uint      `gorm:"primaryKey" json:"-"`
	Ledger       string    `gorm:"size:64;not null;uniqueIndex:idx_poll_ledger_number,priority:1" json:"ledger"`
	Number       uint64    `gorm:"not null;uniqueIndex:idx_poll_ledger_number,priority:2" json:"id"`
	StartTime    time.Time `gorm:"not null" json:"start_time"`
	EndTime      time.Time `gorm:"not null;index" json:"end_time"`
	ForTotal     Amount    `gorm:"not null" json:"-"`
	AgainstTotal Amount    `gorm:"not null" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// ClosedAt reports whether the poll is terminal at the given instant.
func (p *Poll) ClosedAt(now time.Time) bool {
	return !now.Before(p.EndTime)
}

// Accepted is the majority rule: strict majority of weight in favour.
// A tie is a rejection.
func (p *Poll) Accepted() bool {
	return p.ForTotal.Gt(p.AgainstTotal)
}

// WinningTotal is the weight of the side that won.
func (p *Poll) WinningTotal() Amount {
	if p.Accepted() {
		return p.ForTotal
	}
	return p.AgainstTotal
}

// VoterRecord is the single vote of one voter on one poll.
type VoterRecord struct {
	ID           uint      `gorm:"primaryKey" json:"-"`
	Ledger       string    `gorm:"size:64;not null;uniqueIndex:idx_voter_poll,priority:1" json:"ledger"`
	PollNumber   uint64    `gorm:"not null;uniqueIndex:idx_voter_poll,priority:2" json:"poll_id"`
	Voter        Address   `gorm:"size:128;not null;uniqueIndex:idx_voter_poll,priority:3" json:"voter"`
	LockedAmount Amount    `gorm:"not null" json:"locked_amount"`
	VotedFor     bool      `gorm:"not null" json:"voted_for"`
	Settled      bool      `gorm:"not null;default:false" json:"settled"`
	CreatedAt    time.Time `json:"created_at"`
}

// AccessGrant lists a caller allowed to drive a vote ledger.
type AccessGrant struct {
	Registry  string    `gorm:"primaryKey;size:64"`
	Caller    Address   `gorm:"primaryKey;size:128"`
	CreatedAt time.Time
}

// PollDetail is the public view of a poll. Totals and outcome are zero
// until the poll is closed.
type PollDetail struct {
	ID               uint64    `json:"id"`
	StartTime        time.Time `json:"start_time"`
	EndTime          time.Time `json:"end_time"`
	Ongoing          bool      `json:"ongoing"`
	MajorityAccepted bool      `json:"majority_accepted"`
	ForTotal         Amount    `json:"for_total"`
	AgainstTotal     Amount    `json:"against_total"`
}

// VoterDetail is the public view of one voter's position on a poll.
type VoterDetail struct {
	PollDetail
	Voter        Address `json:"voter"`
	LockedAmount Amount  `json:"locked_amount"`
	VotedFor     bool    `json:"voted_for"`
	IsInMajority bool    `json:"is_in_majority"`
	Settled      bool    `json:"settled"`
}
