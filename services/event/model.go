package event

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

type Status string

const (
	StatusUpcoming Status = "UPCOMING"
	StatusOngoing  Status = "ONGOING"
	StatusEnded    Status = "ENDED"
	StatusCanceled Status = "CANCELED"
	StatusInactive Status = "INACTIVE"
)

func (s Status) Valid() bool {
	switch s {
	case StatusUpcoming, StatusOngoing, StatusEnded, StatusCanceled, StatusInactive:
		return true
	default:
		return false
	}
}

// Operator reports whether the status is operator-set rather than derived
// from the event window. Derivation never overwrites these.
func (s Status) Operator() bool {
	return s == StatusCanceled || s == StatusInactive
}

type ConditionType string

const (
	ConditionConsecutiveAttendance     ConditionType = "CONSECUTIVE_ATTENDANCE"
	ConditionInviteFriend              ConditionType = "INVITE_FRIEND"
	ConditionParticipationVerification ConditionType = "PARTICIPATION_VERIFICATION"
	ConditionRuleExpression            ConditionType = "RULE_EXPRESSION"
)

func (t ConditionType) Valid() bool {
	switch t {
	case ConditionConsecutiveAttendance, ConditionInviteFriend,
		ConditionParticipationVerification, ConditionRuleExpression:
		return true
	default:
		return false
	}
}

// Condition is the single optional eligibility rule attached to an event.
// For RULE_EXPRESSION the Description field carries a CEL expression over
// consecutive_days and invite_count and Threshold is ignored.
type Condition struct {
	Type        ConditionType `json:"type"`
	Threshold   int           `json:"threshold,omitempty"`
	Description string        `json:"description,omitempty"`
}

type Event struct {
	ID          string         `gorm:"column:id;primaryKey;type:char(26)"`
	CreatedAt   time.Time      `gorm:"column:created_at"`
	UpdatedAt   time.Time      `gorm:"column:updated_at"`
	Title       string         `gorm:"column:title;type:varchar(255);not null"`
	Slug        string         `gorm:"column:slug;type:varchar(255);index"`
	Description string         `gorm:"column:description;type:text"`
	StartDate   time.Time      `gorm:"column:start_date;not null"`
	EndDate     time.Time      `gorm:"column:end_date;not null"`
	Status      Status         `gorm:"column:status;type:varchar(20);not null"`
	Condition   datatypes.JSON `gorm:"column:condition;type:jsonb"`
	CreatedBy   string         `gorm:"column:created_by;type:char(26)"`
	UpdatedBy   string         `gorm:"column:updated_by;type:char(26)"`
}

func (Event) TableName() string {
	return "events"
}

// ParsedCondition decodes the embedded condition, returning nil when the
// event has none.
func (e *Event) ParsedCondition() (*Condition, error) {
	if len(e.Condition) == 0 {
		return nil, nil
	}
	var c Condition
	if err := json.Unmarshal(e.Condition, &c); err != nil {
		return nil, err
	}
	if c.Type == "" {
		return nil, nil
	}
	return &c, nil
}

func (e *Event) SetCondition(c *Condition) error {
	if c == nil {
		e.Condition = nil
		return nil
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return err
	}
	e.Condition = raw
	return nil
}

// DeriveStatus computes lifecycle status from the window. The stored status
// is a cache refreshed at write time; activity checks at claim time re-derive
// from the window instead of trusting it.
func DeriveStatus(start, end, now time.Time) Status {
	if !now.Before(end) {
		return StatusEnded
	}
	if !now.Before(start) {
		return StatusOngoing
	}
	return StatusUpcoming
}
