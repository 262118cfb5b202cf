package claim

import (
	"time"
)

type Status string

const (
	StatusPending Status = "PENDING"
	StatusSuccess Status = "SUCCESS"
	StatusFailure Status = "FAILURE"
)

// Terminal reports whether the status ends the claim's lifecycle. Terminal
// claims are immutable.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailure
}

// Claim records that a user requested a specific reward for a specific
// event. The unique index on (user_id, event_id, reward_id) is the at-most-
// once enforcement; existence pre-checks only improve the error message.
type Claim struct {
	ID         string     `gorm:"column:id;primaryKey;type:char(26)"`
	CreatedAt  time.Time  `gorm:"column:created_at"`
	UpdatedAt  time.Time  `gorm:"column:updated_at"`
	ClaimCode  string     `gorm:"column:claim_code;type:varchar(32);index"`
	UserID     string     `gorm:"column:user_id;type:char(26);not null;uniqueIndex:idx_claims_user_event_reward"`
	EventID    string     `gorm:"column:event_id;type:char(26);not null;uniqueIndex:idx_claims_user_event_reward"`
	RewardID   string     `gorm:"column:reward_id;type:char(26);not null;uniqueIndex:idx_claims_user_event_reward"`
	Status     Status     `gorm:"column:status;type:varchar(20);not null;default:'PENDING'"`
	RewardAt   *time.Time `gorm:"column:reward_at"`
	NotifiedAt *time.Time `gorm:"column:notified_at"`
}

func (Claim) TableName() string {
	return "claims"
}
