package reward

import (
	"time"
)

type Type string

const (
	TypePoint  Type = "POINT"
	TypeItem   Type = "ITEM"
	TypeCoupon Type = "COUPON"
	TypeCash   Type = "CASH"
	TypeCustom Type = "CUSTOM"
)

func (t Type) Valid() bool {
	switch t {
	case TypePoint, TypeItem, TypeCoupon, TypeCash, TypeCustom:
		return true
	default:
		return false
	}
}

type Reward struct {
	ID          string    `gorm:"column:id;primaryKey;type:char(26)"`
	CreatedAt   time.Time `gorm:"column:created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at"`
	EventID     string    `gorm:"column:event_id;type:char(26);index;not null"`
	Name        string    `gorm:"column:name;type:varchar(255);not null"`
	Type        Type      `gorm:"column:type;type:varchar(20);not null"`
	Quantity    int       `gorm:"column:quantity;not null"`
	UnitValue   *int64    `gorm:"column:unit_value"`
	Description string    `gorm:"column:description;type:text"`
	CreatedBy   string    `gorm:"column:created_by;type:char(26)"`
	UpdatedBy   string    `gorm:"column:updated_by;type:char(26)"`
}

func (Reward) TableName() string {
	return "rewards"
}
