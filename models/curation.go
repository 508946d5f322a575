package models

import "time"

// Debate is a root topic. Its ID equals the poll number it opened.
// VoterPool is fixed when the creator side settles.
type Debate struct {
	ID                     uint64    `gorm:"primaryKey;autoIncrement:false" json:"id"`
	ContentRef             string    `gorm:"size:256;not null" json:"content_ref"`
	Stake                  Amount    `gorm:"not null" json:"stake"`
	Creator                Address   `gorm:"size:128;not null;index" json:"creator"`
	Tag1                   string    `gorm:"size:64" json:"tag1"`
	Tag2                   string    `gorm:"size:64" json:"tag2"`
	Tag3                   string    `gorm:"size:64" json:"tag3"`
	PollID                 uint64    `gorm:"not null;uniqueIndex" json:"poll_id"`
	PaidRewardOrPunishment bool      `gorm:"not null;default:false" json:"paid_reward_or_punishment"`
	VoterPool              Amount    `gorm:"not null;default:'0'" json:"voter_pool"`
	CreatedAt              time.Time `json:"created_at"`
}

// Opinion challenges the current top opinion of a debate.
type Opinion struct {
	ID                     uint64    `gorm:"primaryKey;autoIncrement:false" json:"id"`
	DebateID               uint64    `gorm:"not null;index" json:"debate_id"`
	ContentRef             string    `gorm:"size:256;not null" json:"content_ref"`
	Stake                  Amount    `gorm:"not null" json:"stake"`
	Creator                Address   `gorm:"size:128;not null;index" json:"creator"`
	PollID                 uint64    `gorm:"not null;uniqueIndex" json:"poll_id"`
	PaidRewardOrPunishment bool      `gorm:"not null;default:false" json:"paid_reward_or_punishment"`
	VoterPool              Amount    `gorm:"not null;default:'0'" json:"voter_pool"`
	CreatedAt              time.Time `json:"created_at"`
}

// OpinionRegistry holds the three slots of a debate's challenge state.
type OpinionRegistry struct {
	DebateID             uint64    `gorm:"primaryKey;autoIncrement:false" json:"debate_id"`
	TopOpinionID         uint64    `gorm:"not null;default:0" json:"top_opinion_id"`
	ChallengingOpinionID uint64    `gorm:"not null;default:0" json:"challenging_opinion_id"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// OpinionHistoryKind separates displaced top opinions from rejected challengers.
type OpinionHistoryKind string

const (
	HistoryOldTop   OpinionHistoryKind = "old_top"
	HistoryRejected OpinionHistoryKind = "rejected"
)

// OpinionHistory is an append-only list entry of a debate's registry.
type OpinionHistory struct {
	ID        uint               `gorm:"primaryKey"`
	DebateID  uint64             `gorm:"not null;index:idx_history_debate_kind,priority:1"`
	Kind      OpinionHistoryKind `gorm:"size:16;not null;index:idx_history_debate_kind,priority:2"`
	OpinionID uint64             `gorm:"not null"`
	CreatedAt time.Time
}

// OpinionRegistryDetail is the read model of a debate's registry.
type OpinionRegistryDetail struct {
	DebateID             uint64   `json:"debate_id"`
	TopOpinionID         uint64   `json:"top_opinion_id"`
	ChallengingOpinionID uint64   `json:"challenging_opinion_id"`
	OldTopOpinionIDs     []uint64 `json:"old_top_opinion_ids"`
	RejectedOpinionIDs   []uint64 `json:"rejected_opinion_ids"`
}

// Reserve accumulates stake residue that no participant is entitled to.
type Reserve struct {
	Name      string `gorm:"primaryKey;size:64"`
	Balance   Amount `gorm:"not null"`
	UpdatedAt time.Time
}
