package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dbtypes "github.com/angelmondragon/kolo-backend/pkg/db/types"
	"github.com/angelmondragon/kolo-backend/pkg/enums"
)

// WithdrawalRequest asks the group to release Amount to the requester.
// Version guards concurrent vote writes.
type WithdrawalRequest struct {
	ID          uuid.UUID           `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	GroupID     uuid.UUID           `gorm:"column:group_id;type:uuid;not null;index" json:"group_id"`
	RequesterID uuid.UUID           `gorm:"column:requester_id;type:uuid;not null" json:"requester_id"`
	Amount      decimal.Decimal     `gorm:"column:amount;type:numeric(14,2);not null" json:"amount"`
	Reason      string              `gorm:"column:reason;not null" json:"reason"`
	Status      enums.RequestStatus `gorm:"column:status;type:request_status;not null;index" json:"status"`
	Votes       dbtypes.VoteList    `gorm:"column:votes;type:jsonb;not null" json:"votes"`
	Deadline    time.Time           `gorm:"column:deadline;not null" json:"deadline"`
	Version     int                 `gorm:"column:version;not null;default:1" json:"version"`
	DecidedAt   *time.Time          `gorm:"column:decided_at" json:"decided_at,omitempty"`
	ExecutedAt  *time.Time          `gorm:"column:executed_at" json:"executed_at,omitempty"`
	CreatedAt   time.Time           `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time           `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (WithdrawalRequest) TableName() string { return "withdrawal_requests" }

func (w *WithdrawalRequest) BeforeCreate(*gorm.DB) error {
	ensureID(&w.ID)
	if w.Votes == nil {
		w.Votes = dbtypes.VoteList{}
	}
	return nil
}
