package enums

import "fmt"

// RequestStatus maps to the request_status enum shared by withdrawal and refund requests.
type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "pending"
	RequestStatusApproved RequestStatus = "approved"
	RequestStatusRejected RequestStatus = "rejected"
	RequestStatusExecuted RequestStatus = "executed"
)

var validRequestStatuses = []RequestStatus{
	RequestStatusPending,
	RequestStatusApproved,
	RequestStatusRejected,
	RequestStatusExecuted,
}

// IsValid reports whether the status is known.
func (s RequestStatus) IsValid() bool {
	for _, candidate := range validRequestStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// CountsAgainstBalance reports whether a request in this status has left, or
// is committed to leave, the group pot.
func (s RequestStatus) CountsAgainstBalance() bool {
	return s == RequestStatusApproved || s == RequestStatusExecuted
}

// ParseRequestStatus converts raw input into RequestStatus.
func ParseRequestStatus(value string) (RequestStatus, error) {
	for _, candidate := range validRequestStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid request status %q", value)
}

// VoteValue is a single ballot. Withdrawals use approve/reject, refunds use for/against.
type VoteValue string

const (
	VoteApprove VoteValue = "approve"
	VoteReject  VoteValue = "reject"
	VoteFor     VoteValue = "for"
	VoteAgainst VoteValue = "against"
)

// IsWithdrawalVote reports whether v is a valid withdrawal ballot.
func (v VoteValue) IsWithdrawalVote() bool {
	return v == VoteApprove || v == VoteReject
}

// IsRefundVote reports whether v is a valid refund ballot.
func (v VoteValue) IsRefundVote() bool {
	return v == VoteFor || v == VoteAgainst
}

// IsAffirmative reports whether the ballot supports the request.
func (v VoteValue) IsAffirmative() bool {
	return v == VoteApprove || v == VoteFor
}

// ParseVoteValue converts raw input into VoteValue.
func ParseVoteValue(value string) (VoteValue, error) {
	switch VoteValue(value) {
	case VoteApprove, VoteReject, VoteFor, VoteAgainst:
		return VoteValue(value), nil
	}
	return "", fmt.Errorf("invalid vote %q", value)
}

// RefundType distinguishes full and partial refunds.
type RefundType string

const (
	RefundTypeFull    RefundType = "full"
	RefundTypePartial RefundType = "partial"
)

// ParseRefundType converts raw input into RefundType.
func ParseRefundType(value string) (RefundType, error) {
	switch RefundType(value) {
	case RefundTypeFull, RefundTypePartial:
		return RefundType(value), nil
	}
	return "", fmt.Errorf("invalid refund type %q", value)
}

// RecurrenceInterval is the cadence of a recurring contribution.
type RecurrenceInterval string

const (
	IntervalDaily   RecurrenceInterval = "daily"
	IntervalWeekly  RecurrenceInterval = "weekly"
	IntervalMonthly RecurrenceInterval = "monthly"
)

// ParseRecurrenceInterval converts raw input into RecurrenceInterval.
func ParseRecurrenceInterval(value string) (RecurrenceInterval, error) {
	switch RecurrenceInterval(value) {
	case IntervalDaily, IntervalWeekly, IntervalMonthly:
		return RecurrenceInterval(value), nil
	}
	return "", fmt.Errorf("invalid recurrence interval %q", value)
}
