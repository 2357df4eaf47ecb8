package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/kolo-backend/pkg/enums"
)

// Contributor is a member's stake in a group. Anonymous bank-transfer senders
// have no UserID and are keyed by their payer identity instead.
type Contributor struct {
	ID                uuid.UUID        `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	GroupID           uuid.UUID        `gorm:"column:group_id;type:uuid;not null;uniqueIndex:idx_contributors_group_member,priority:1" json:"group_id"`
	UserID            *uuid.UUID       `gorm:"column:user_id;type:uuid;index" json:"user_id,omitempty"`
	MemberKey         string           `gorm:"column:member_key;not null;uniqueIndex:idx_contributors_group_member,priority:2" json:"member_key"`
	DisplayName       *string          `gorm:"column:display_name" json:"display_name,omitempty"`
	TotalContributed  decimal.Decimal  `gorm:"column:total_contributed;type:numeric(14,2);not null;default:0" json:"total_contributed"`
	ContributionCount int              `gorm:"column:contribution_count;not null;default:0" json:"contribution_count"`
	HasVotingRights   bool             `gorm:"column:has_voting_rights;not null;default:false" json:"has_voting_rights"`
	JoinMethod        enums.JoinMethod `gorm:"column:join_method;type:join_method;not null" json:"join_method"`
	LastContributedAt *time.Time       `gorm:"column:last_contributed_at" json:"last_contributed_at,omitempty"`
	CreatedAt         time.Time        `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time        `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Contributor) TableName() string { return "contributors" }

func (c *Contributor) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}
