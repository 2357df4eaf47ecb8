package governance

import (
	dbtypes "github.com/angelmondragon/kolo-backend/pkg/db/types"
	"github.com/angelmondragon/kolo-backend/pkg/enums"
)

// EvaluateWithdrawal applies the absolute headcount threshold stored on the group.
// Approval wins when both sides reach the threshold on the same ballot, which
// only happens when threshold is met by approvals first.
func EvaluateWithdrawal(votes dbtypes.VoteList, threshold int) enums.RequestStatus {
	if threshold < 1 {
		threshold = 1
	}
	tally := Count(votes)
	switch {
	case tally.For >= threshold:
		return enums.RequestStatusApproved
	case tally.Against >= threshold:
		return enums.RequestStatusRejected
	default:
		return enums.RequestStatusPending
	}
}

// EvaluateUnfundedWithdrawal is EvaluateWithdrawal for a request the group
// balance cannot cover: approvals never decide it, rejections still can.
func EvaluateUnfundedWithdrawal(votes dbtypes.VoteList, threshold int) enums.RequestStatus {
	if threshold < 1 {
		threshold = 1
	}
	if Count(votes).Against >= threshold {
		return enums.RequestStatusRejected
	}
	return enums.RequestStatusPending
}
