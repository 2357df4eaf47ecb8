package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/kolo-backend/pkg/enums"
)

// RecurringContribution schedules wallet-funded contributions to a group.
type RecurringContribution struct {
	ID           uuid.UUID                `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID       uuid.UUID                `gorm:"column:user_id;type:uuid;not null;index" json:"user_id"`
	GroupID      uuid.UUID                `gorm:"column:group_id;type:uuid;not null" json:"group_id"`
	Amount       decimal.Decimal          `gorm:"column:amount;type:numeric(14,2);not null" json:"amount"`
	Interval     enums.RecurrenceInterval `gorm:"column:interval;type:recurrence_interval;not null" json:"interval"`
	NextRunAt    time.Time                `gorm:"column:next_run_at;not null;index" json:"next_run_at"`
	Active       bool                     `gorm:"column:active;not null;default:true" json:"active"`
	LastRunAt    *time.Time               `gorm:"column:last_run_at" json:"last_run_at,omitempty"`
	LastError    *string                  `gorm:"column:last_error" json:"last_error,omitempty"`
	FailureCount int                      `gorm:"column:failure_count;not null;default:0" json:"failure_count"`
	CreatedAt    time.Time                `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time                `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (RecurringContribution) TableName() string { return "recurring_contributions" }

func (r *RecurringContribution) BeforeCreate(*gorm.DB) error {
	ensureID(&r.ID)
	return nil
}
