package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/kolo-backend/pkg/enums"
)

// ContributionGroup is a shared pot. CurrentAmount is a cached projection of
// contributions minus approved or executed payouts.
type ContributionGroup struct {
	ID              uuid.UUID         `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Name            string            `gorm:"column:name;not null" json:"name"`
	Description     *string           `gorm:"column:description" json:"description,omitempty"`
	CreatorID       uuid.UUID         `gorm:"column:creator_id;type:uuid;not null;index" json:"creator_id"`
	TargetAmount    decimal.Decimal   `gorm:"column:target_amount;type:numeric(14,2);not null" json:"target_amount"`
	CurrentAmount   decimal.Decimal   `gorm:"column:current_amount;type:numeric(14,2);not null;default:0" json:"current_amount"`
	VotingThreshold int               `gorm:"column:voting_threshold;not null;default:1" json:"voting_threshold"`
	Status          enums.GroupStatus `gorm:"column:status;type:group_status;not null;default:active" json:"status"`
	CreatedAt       time.Time         `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time         `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (ContributionGroup) TableName() string { return "contribution_groups" }

func (g *ContributionGroup) BeforeCreate(*gorm.DB) error {
	ensureID(&g.ID)
	return nil
}
