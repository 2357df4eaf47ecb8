package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dbtypes "github.com/angelmondragon/kolo-backend/pkg/db/types"
	"github.com/angelmondragon/kolo-backend/pkg/enums"
)

// GroupRefundRequest asks to return Percentage of every stake to its contributor.
// Amount and the processed/failed counts are filled when the refund executes.
type GroupRefundRequest struct {
	ID                  uuid.UUID           `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	GroupID             uuid.UUID           `gorm:"column:group_id;type:uuid;not null;index" json:"group_id"`
	RequesterID         uuid.UUID           `gorm:"column:requester_id;type:uuid;not null" json:"requester_id"`
	RefundType          enums.RefundType    `gorm:"column:refund_type;type:refund_type;not null" json:"refund_type"`
	Percentage          int                 `gorm:"column:percentage;not null" json:"percentage"`
	Reason              string              `gorm:"column:reason;not null" json:"reason"`
	Status              enums.RequestStatus `gorm:"column:status;type:request_status;not null;index" json:"status"`
	Votes               dbtypes.VoteList    `gorm:"column:votes;type:jsonb;not null" json:"votes"`
	TotalEligibleVoters int                 `gorm:"column:total_eligible_voters;not null" json:"total_eligible_voters"`
	VotingDeadline      time.Time           `gorm:"column:voting_deadline;not null" json:"voting_deadline"`
	Version             int                 `gorm:"column:version;not null;default:1" json:"version"`
	Amount              decimal.Decimal     `gorm:"column:amount;type:numeric(14,2);not null;default:0" json:"amount"`
	RefundsProcessed    int                 `gorm:"column:refunds_processed;not null;default:0" json:"refunds_processed"`
	RefundsFailed       int                 `gorm:"column:refunds_failed;not null;default:0" json:"refunds_failed"`
	DecidedAt           *time.Time          `gorm:"column:decided_at" json:"decided_at,omitempty"`
	ExecutedAt          *time.Time          `gorm:"column:executed_at" json:"executed_at,omitempty"`
	CreatedAt           time.Time           `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time           `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (GroupRefundRequest) TableName() string { return "group_refund_requests" }

func (r *GroupRefundRequest) BeforeCreate(*gorm.DB) error {
	ensureID(&r.ID)
	if r.Votes == nil {
		r.Votes = dbtypes.VoteList{}
	}
	return nil
}
