package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/kolo-backend/pkg/enums"
)

// WithdrawalRequestCreatedEvent announces a new withdrawal request to the group's voters.
type WithdrawalRequestCreatedEvent struct {
	RequestID   uuid.UUID       `json:"request_id"`
	GroupID     uuid.UUID       `json:"group_id"`
	GroupName   string          `json:"group_name"`
	RequesterID uuid.UUID       `json:"requester_id"`
	Amount      decimal.Decimal `json:"amount"`
	Deadline    time.Time       `json:"deadline"`
	VoterIDs    []uuid.UUID     `json:"voter_ids"`
}

// WithdrawalDecidedEvent is emitted when voting closes a withdrawal request.
type WithdrawalDecidedEvent struct {
	RequestID   uuid.UUID           `json:"request_id"`
	GroupID     uuid.UUID           `json:"group_id"`
	GroupName   string              `json:"group_name"`
	RequesterID uuid.UUID           `json:"requester_id"`
	Amount      decimal.Decimal     `json:"amount"`
	Status      enums.RequestStatus `json:"status"`
	Approvals   int                 `json:"approvals"`
	Rejections  int                 `json:"rejections"`
	Expired     bool                `json:"expired"`
}

// WithdrawalExecutedEvent confirms funds moved to the requester's wallet.
type WithdrawalExecutedEvent struct {
	RequestID     uuid.UUID       `json:"request_id"`
	GroupID       uuid.UUID       `json:"group_id"`
	RequesterID   uuid.UUID       `json:"requester_id"`
	Amount        decimal.Decimal `json:"amount"`
	TransactionID uuid.UUID       `json:"transaction_id"`
}

// RefundRequestCreatedEvent announces a refund vote.
type RefundRequestCreatedEvent struct {
	RequestID      uuid.UUID        `json:"request_id"`
	GroupID        uuid.UUID        `json:"group_id"`
	GroupName      string           `json:"group_name"`
	RequesterID    uuid.UUID        `json:"requester_id"`
	RefundType     enums.RefundType `json:"refund_type"`
	Percentage     int              `json:"percentage"`
	VotingDeadline time.Time        `json:"voting_deadline"`
	VoterIDs       []uuid.UUID      `json:"voter_ids"`
}

// RefundDecidedEvent is emitted when a refund request is approved or lapses.
type RefundDecidedEvent struct {
	RequestID   uuid.UUID           `json:"request_id"`
	GroupID     uuid.UUID           `json:"group_id"`
	GroupName   string              `json:"group_name"`
	RequesterID uuid.UUID           `json:"requester_id"`
	Status      enums.RequestStatus `json:"status"`
	VotesFor    int                 `json:"votes_for"`
	VotesCast   int                 `json:"votes_cast"`
	Eligible    int                 `json:"eligible"`
	Expired     bool                `json:"expired"`
}

// RefundExecutedEvent reports the outcome of paying refunds out to contributor wallets.
type RefundExecutedEvent struct {
	RequestID        uuid.UUID       `json:"request_id"`
	GroupID          uuid.UUID       `json:"group_id"`
	GroupName        string          `json:"group_name"`
	Amount           decimal.Decimal `json:"amount"`
	RefundsProcessed int             `json:"refunds_processed"`
	RefundsFailed    int             `json:"refunds_failed"`
	RecipientIDs     []uuid.UUID     `json:"recipient_ids"`
}

// ContributionReceivedEvent is emitted for every completed group contribution.
type ContributionReceivedEvent struct {
	TransactionID uuid.UUID        `json:"transaction_id"`
	GroupID       uuid.UUID        `json:"group_id"`
	GroupName     string           `json:"group_name"`
	CreatorID     uuid.UUID        `json:"creator_id"`
	ContributorID uuid.UUID        `json:"contributor_id"`
	UserID        *uuid.UUID       `json:"user_id,omitempty"`
	Amount        decimal.Decimal  `json:"amount"`
	JoinMethod    enums.JoinMethod `json:"join_method"`
}

// RecurringContributionFailedEvent tells a user their scheduled contribution did not go through.
type RecurringContributionFailedEvent struct {
	RecurringID uuid.UUID       `json:"recurring_id"`
	UserID      uuid.UUID       `json:"user_id"`
	GroupID     uuid.UUID       `json:"group_id"`
	Amount      decimal.Decimal `json:"amount"`
	Reason      string          `json:"reason"`
}
