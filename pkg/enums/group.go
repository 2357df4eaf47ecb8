package enums

import "fmt"

// GroupStatus maps to the group_status enum in Postgres.
type GroupStatus string

const (
	GroupStatusActive    GroupStatus = "active"
	GroupStatusCompleted GroupStatus = "completed"
)

var validGroupStatuses = []GroupStatus{
	GroupStatusActive,
	GroupStatusCompleted,
}

// IsValid reports whether the status is a known group status.
func (s GroupStatus) IsValid() bool {
	for _, candidate := range validGroupStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseGroupStatus converts raw input into GroupStatus.
func ParseGroupStatus(value string) (GroupStatus, error) {
	for _, candidate := range validGroupStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid group status %q", value)
}

// JoinMethod records how a contributor first entered a group.
type JoinMethod string

const (
	JoinMethodCardPayment  JoinMethod = "card_payment"
	JoinMethodBankTransfer JoinMethod = "bank_transfer"
	JoinMethodWallet       JoinMethod = "wallet"
	JoinMethodManual       JoinMethod = "manual"
)

var validJoinMethods = []JoinMethod{
	JoinMethodCardPayment,
	JoinMethodBankTransfer,
	JoinMethodWallet,
	JoinMethodManual,
}

// IsValid reports whether the join method is known.
func (m JoinMethod) IsValid() bool {
	for _, candidate := range validJoinMethods {
		if candidate == m {
			return true
		}
	}
	return false
}

// GrantsVotingRights reports whether contributing through this method confers
// voting rights without an explicit promotion.
func (m JoinMethod) GrantsVotingRights() bool {
	return m == JoinMethodCardPayment || m == JoinMethodWallet || m == JoinMethodManual
}

// ParseJoinMethod converts raw input into JoinMethod.
func ParseJoinMethod(value string) (JoinMethod, error) {
	for _, candidate := range validJoinMethods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid join method %q", value)
}
