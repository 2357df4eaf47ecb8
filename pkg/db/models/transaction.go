package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dbtypes "github.com/angelmondragon/kolo-backend/pkg/db/types"
	"github.com/angelmondragon/kolo-backend/pkg/enums"
)

// Transaction is an immutable ledger row. ReferenceID is the provider payment
// reference or an internal idempotency key and is unique when present.
type Transaction struct {
	ID          uuid.UUID               `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID      *uuid.UUID              `gorm:"column:user_id;type:uuid;index" json:"user_id,omitempty"`
	GroupID     *uuid.UUID              `gorm:"column:group_id;type:uuid;index" json:"group_id,omitempty"`
	Type        enums.TransactionType   `gorm:"column:type;type:transaction_type;not null" json:"type"`
	Amount      decimal.Decimal         `gorm:"column:amount;type:numeric(14,2);not null" json:"amount"`
	Status      enums.TransactionStatus `gorm:"column:status;type:transaction_status;not null" json:"status"`
	ReferenceID *string                 `gorm:"column:reference_id;uniqueIndex:transactions_reference_id_key" json:"reference_id,omitempty"`
	Provider    *string                 `gorm:"column:provider" json:"provider,omitempty"`
	Description *string                 `gorm:"column:description" json:"description,omitempty"`
	Metadata    dbtypes.JSON            `gorm:"column:metadata;type:jsonb" json:"metadata,omitempty"`
	CreatedAt   time.Time               `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (Transaction) TableName() string { return "transactions" }

func (t *Transaction) BeforeCreate(*gorm.DB) error {
	ensureID(&t.ID)
	return nil
}
