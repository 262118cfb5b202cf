package attendance

import (
	"time"
)

// Attendance is one check-in for one civil day. CivilDate is the UTC instant
// of local midnight for that day; rows are append-only.
type Attendance struct {
	ID              string    `gorm:"column:id;primaryKey;type:char(26)"`
	CreatedAt       time.Time `gorm:"column:created_at"`
	UserID          string    `gorm:"column:user_id;type:char(26);not null;uniqueIndex:idx_attendances_user_day"`
	CivilDate       time.Time `gorm:"column:civil_date;not null;uniqueIndex:idx_attendances_user_day"`
	ConsecutiveDays int       `gorm:"column:consecutive_days;not null"`
}

func (Attendance) TableName() string {
	return "attendances"
}
