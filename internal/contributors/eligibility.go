package contributors

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/kolo-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/kolo-backend/pkg/errors"
)

// ContributionChecker answers whether a user has a completed contribution to a group.
type ContributionChecker interface {
	HasCompletedContribution(ctx context.Context, groupID, userID uuid.UUID) (bool, error)
}

// CanVote admits the group creator, or a contributor holding voting rights
// who also has a completed contribution in the ledger.
func CanVote(ctx context.Context, repo Repository, ledger ContributionChecker, group *models.ContributionGroup, userID uuid.UUID) (bool, error) {
	if group.CreatorID == userID {
		return true, nil
	}
	contributor, err := repo.FindByUser(ctx, group.ID, userID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load contributor")
	}
	if contributor == nil || !contributor.HasVotingRights {
		return false, nil
	}
	contributed, err := ledger.HasCompletedContribution(ctx, group.ID, userID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "scan contributions")
	}
	return contributed, nil
}
