package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Profile mirrors an authenticated user and carries their wallet balance.
// The id is the auth provider's user id.
type Profile struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	FullName      string          `gorm:"column:full_name;not null;default:''" json:"full_name"`
	Email         *string         `gorm:"column:email" json:"email,omitempty"`
	WalletBalance decimal.Decimal `gorm:"column:wallet_balance;type:numeric(14,2);not null;default:0" json:"wallet_balance"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Profile) TableName() string { return "profiles" }

func (p *Profile) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}
