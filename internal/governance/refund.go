package governance

import (
	dbtypes "github.com/angelmondragon/kolo-backend/pkg/db/types"
	"github.com/angelmondragon/kolo-backend/pkg/enums"
)

const (
	DefaultParticipationPct = 70
	DefaultApprovalPct      = 60
)

// RefundPolicy holds the two percentage gates a refund must clear.
type RefundPolicy struct {
	ParticipationPct int
	ApprovalPct      int
}

// DefaultRefundPolicy is 70% turnout of eligible voters and 60% approval of ballots cast.
func DefaultRefundPolicy() RefundPolicy {
	return RefundPolicy{ParticipationPct: DefaultParticipationPct, ApprovalPct: DefaultApprovalPct}
}

func (p RefundPolicy) normalized() RefundPolicy {
	if p.ParticipationPct <= 0 {
		p.ParticipationPct = DefaultParticipationPct
	}
	if p.ApprovalPct <= 0 {
		p.ApprovalPct = DefaultApprovalPct
	}
	return p
}

// RefundOutcome is the result of evaluating a refund ballot box.
type RefundOutcome struct {
	Tally              Tally
	Eligible           int
	ParticipationMet   bool
	ApprovalMet        bool
	ParticipationRatio float64
	ApprovalRatio      float64
}

// Approved reports whether both gates hold.
func (o RefundOutcome) Approved() bool {
	return o.ParticipationMet && o.ApprovalMet
}

// Status maps the outcome to the request status while voting is open.
func (o RefundOutcome) Status() enums.RequestStatus {
	if o.Approved() {
		return enums.RequestStatusApproved
	}
	return enums.RequestStatusPending
}

// EvaluateRefund checks both gates with integer cross-multiplication so 7 of 10
// is exactly 70%. Ratios are informational only.
func EvaluateRefund(votes dbtypes.VoteList, eligible int, policy RefundPolicy) RefundOutcome {
	policy = policy.normalized()
	tally := Count(votes)
	cast := tally.Cast()

	out := RefundOutcome{Tally: tally, Eligible: eligible}
	if eligible > 0 {
		out.ParticipationRatio = float64(cast) / float64(eligible)
		out.ParticipationMet = cast*100 >= policy.ParticipationPct*eligible
	}
	if cast > 0 {
		out.ApprovalRatio = float64(tally.For) / float64(cast)
		out.ApprovalMet = tally.For*100 >= policy.ApprovalPct*cast
	}
	return out
}
