package models

import "time"

// Proposal is a funded request for implementations.
type Proposal struct {
	ID                      uint64    `gorm:"primaryKey" json:"id"`
	ContentRef              string    `gorm:"size:256;not null" json:"content_ref"`
	RewardPool              Amount    `gorm:"not null" json:"reward_pool"`
	Creator                 Address   `gorm:"size:128;not null;index" json:"creator"`
	PaidRewardOrPunishment  bool      `gorm:"not null;default:false" json:"paid_reward_or_punishment"`
	PendingImplementationID uint64    `gorm:"not null;default:0" json:"pending_implementation_id"`
	CreatedAt               time.Time `json:"created_at"`
	UpdatedAt               time.Time `json:"updated_at"`
}

// ProposalContribution is the withdrawable share of one depositor.
type ProposalContribution struct {
	ProposalID uint64  `gorm:"primaryKey;autoIncrement:false"`
	Depositor  Address `gorm:"primaryKey;size:128"`
	Amount     Amount  `gorm:"not null"`
	UpdatedAt  time.Time
}

// Implementation is a staked solution to a proposal. Its ID equals the
// poll number it opened on the governance ledger.
type Implementation struct {
	ID            uint64    `gorm:"primaryKey;autoIncrement:false" json:"id"`
	ProposalID    uint64    `gorm:"not null;index" json:"proposal_id"`
	ContentRef    string    `gorm:"size:256;not null" json:"content_ref"`
	Stake         Amount    `gorm:"not null" json:"stake"`
	Creator       Address   `gorm:"size:128;not null;index" json:"creator"`
	PollID        uint64    `gorm:"not null;uniqueIndex" json:"poll_id"`
	PaidBackStake bool      `gorm:"not null;default:false" json:"paid_back_stake"`
	Accepted      bool      `gorm:"not null;default:false" json:"accepted"`
	CreatedAt     time.Time `json:"created_at"`
}
