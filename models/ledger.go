package models

import "time"

// Account is a native value balance held by the settlement substrate.
type Account struct {
	Address   Address `gorm:"primaryKey;size:128" json:"address"`
	Balance   Amount  `gorm:"not null" json:"balance"`
	UpdatedAt time.Time
}

// TokenState is the singleton row of the bonding curve token.
type TokenState struct {
	ID             uint    `gorm:"primaryKey"`
	Name           string  `gorm:"size:64;not null"`
	Symbol         string  `gorm:"size:16;not null"`
	Owner          Address `gorm:"size:128;not null"`
	TotalSupply    Amount  `gorm:"not null"`
	ReserveBalance Amount  `gorm:"not null"`
	ReserveRatio   uint32  `gorm:"not null"`
	UpdatedAt      time.Time
}

// TokenBalance is one holder's token balance.
type TokenBalance struct {
	Holder    Address `gorm:"primaryKey;size:128"`
	Balance   Amount  `gorm:"not null"`
	UpdatedAt time.Time
}

// TokenAllowance is what spender may move out of owner's balance.
type TokenAllowance struct {
	Owner     Address `gorm:"primaryKey;size:128"`
	Spender   Address `gorm:"primaryKey;size:128"`
	Amount    Amount  `gorm:"not null"`
	UpdatedAt time.Time
}

// SettingKind is the type tag of a stored setting.
type SettingKind string

const (
	SettingInt     SettingKind = "int"
	SettingAddress SettingKind = "address"
	SettingString  SettingKind = "string"
	SettingBool    SettingKind = "bool"
	SettingBytes   SettingKind = "bytes"
)

// Setting is one typed key/value pair.
type Setting struct {
	Kind      SettingKind `gorm:"primaryKey;size:16"`
	Key       string      `gorm:"primaryKey;size:128"`
	Value     string      `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

// TagEntry maps a tag to an entity id in insertion order.
type TagEntry struct {
	ID        uint   `gorm:"primaryKey"`
	Tag       string `gorm:"size:64;not null;index"`
	EntityID  uint64 `gorm:"not null"`
	CreatedAt time.Time
}

// AllModels lists every table for migration.
func AllModels() []interface{} {
	return []interface{}{
		&Account{}, &TokenState{}, &TokenBalance{}, &TokenAllowance{},
		&Setting{}, &TagEntry{}, &AccessGrant{}, &Poll{}, &VoterRecord{},
		&Debate{}, &Opinion{}, &OpinionRegistry{}, &OpinionHistory{}, &Reserve{},
		&Proposal{}, &ProposalContribution{}, &Implementation{},
	}
}
