// Package governance holds the voting rules for withdrawal and refund requests.
// It performs no I/O; services load state, ask for a decision, and persist it.
package governance

import (
	"time"

	"github.com/google/uuid"

	dbtypes "github.com/angelmondragon/kolo-backend/pkg/db/types"
	"github.com/angelmondragon/kolo-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/kolo-backend/pkg/errors"
)

// Tally counts affirmative and negative ballots.
type Tally struct {
	For     int
	Against int
}

// Cast is the total number of ballots.
func (t Tally) Cast() int {
	return t.For + t.Against
}

// Count tallies a vote list.
func Count(votes dbtypes.VoteList) Tally {
	var t Tally
	for _, v := range votes {
		if v.Vote.IsAffirmative() {
			t.For++
		} else {
			t.Against++
		}
	}
	return t
}

// ValidateVote applies the guards shared by both request kinds. Eligibility is
// checked separately because it needs the ledger.
func ValidateVote(status enums.RequestStatus, deadline, now time.Time, votes dbtypes.VoteList, voter uuid.UUID) error {
	if status != enums.RequestStatusPending {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "request is no longer pending").
			WithDetails(map[string]any{"status": status})
	}
	if now.After(deadline) {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "voting deadline has passed").
			WithDetails(map[string]any{"deadline": deadline.UTC().Format(time.RFC3339)})
	}
	if votes.Has(voter) {
		return pkgerrors.New(pkgerrors.CodeConflict, "you have already voted on this request")
	}
	return nil
}

// AppendVote returns a copy of votes with the new ballot added.
func AppendVote(votes dbtypes.VoteList, voter uuid.UUID, value enums.VoteValue, now time.Time) dbtypes.VoteList {
	out := make(dbtypes.VoteList, 0, len(votes)+1)
	out = append(out, votes...)
	return append(out, dbtypes.Vote{UserID: voter, Vote: value, VotedAt: now.UTC()})
}

// IsTerminal reports whether a status can no longer change through voting.
func IsTerminal(status enums.RequestStatus) bool {
	return status != enums.RequestStatusPending
}

// CanTransition encodes the request lifecycle: pending moves to approved or
// rejected, approved moves to executed, everything else is final.
func CanTransition(from, to enums.RequestStatus) bool {
	switch from {
	case enums.RequestStatusPending:
		return to == enums.RequestStatusApproved || to == enums.RequestStatusRejected
	case enums.RequestStatusApproved:
		return to == enums.RequestStatusExecuted
	default:
		return false
	}
}
