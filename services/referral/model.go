package referral

import (
	"time"
)

// Referral credits an inviter for one accepted invitation. The unique index
// on invitee_email keeps an invitee from being credited to multiple inviters.
type Referral struct {
	ID           string     `gorm:"column:id;primaryKey;type:char(26)"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	InviteCode   string     `gorm:"column:invite_code;type:varchar(32);index"`
	InviterID    string     `gorm:"column:inviter_id;type:char(26);index;not null"`
	InviterEmail string     `gorm:"column:inviter_email;type:varchar(255);not null"`
	InviteeID    string     `gorm:"column:invitee_id;type:char(26)"`
	InviteeEmail string     `gorm:"column:invitee_email;type:varchar(255);not null;uniqueIndex"`
	IsRegistered bool       `gorm:"column:is_registered;not null"`
	RegisteredAt *time.Time `gorm:"column:registered_at"`
}

func (Referral) TableName() string {
	return "referrals"
}
