package contributors

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/kolo-backend/pkg/db/models"
	"github.com/angelmondragon/kolo-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/kolo-backend/pkg/errors"
)

// Service exposes contributor reads plus the stake and voting-rights mutations.
type Service interface {
	List(ctx context.Context, groupID uuid.UUID) ([]models.Contributor, error)
	GrantVotingRights(ctx context.Context, input GrantVotingRightsInput) (*models.Contributor, error)
}

type groupReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.ContributionGroup, error)
}

type service struct {
	repo   Repository
	groups groupReader
}

// GrantVotingRightsInput promotes a contributor. Only the group creator or a
// platform admin may do it.
type GrantVotingRightsInput struct {
	GroupID       uuid.UUID
	ContributorID uuid.UUID
	ActorID       uuid.UUID
	ActorRole     enums.UserRole
}

// NewService wires contributor dependencies.
func NewService(repo Repository, groups groupReader) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "contributors repository required")
	}
	if groups == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "groups reader required")
	}
	return &service{repo: repo, groups: groups}, nil
}

func (s *service) List(ctx context.Context, groupID uuid.UUID) ([]models.Contributor, error) {
	if _, err := s.loadGroup(ctx, groupID); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListByGroup(ctx, groupID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list contributors")
	}
	return rows, nil
}

func (s *service) GrantVotingRights(ctx context.Context, input GrantVotingRightsInput) (*models.Contributor, error) {
	group, err := s.loadGroup(ctx, input.GroupID)
	if err != nil {
		return nil, err
	}
	if group.CreatorID != input.ActorID && input.ActorRole != enums.UserRoleAdmin {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the group creator or an admin can grant voting rights")
	}

	contributor, err := s.repo.FindByID(ctx, input.ContributorID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "contributor not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load contributor")
	}
	if contributor.GroupID != group.ID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "contributor not found")
	}
	if contributor.UserID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "anonymous contributors cannot vote")
	}
	if contributor.HasVotingRights {
		return contributor, nil
	}

	if err := s.repo.SetVotingRights(ctx, contributor.ID, true); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "grant voting rights")
	}
	contributor.HasVotingRights = true
	return contributor, nil
}

func (s *service) loadGroup(ctx context.Context, groupID uuid.UUID) (*models.ContributionGroup, error) {
	if groupID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "group id required")
	}
	group, err := s.groups.FindByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "group not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load group")
	}
	return group, nil
}

// StakeInput describes a completed contribution to apply to a member's stake.
type StakeInput struct {
	GroupID     uuid.UUID
	UserID      *uuid.UUID
	MemberKey   string
	DisplayName *string
	JoinMethod  enums.JoinMethod
	Amount      decimal.Decimal
	At          time.Time
}

// ApplyContribution upserts the member's stake inside the caller's transaction.
// Card and wallet contributions grant voting rights; bank transfers never
// grant them and never revoke rights a member already holds.
func ApplyContribution(ctx context.Context, repo Repository, input StakeInput) (*models.Contributor, bool, error) {
	if input.MemberKey == "" {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "member key required")
	}
	if !input.JoinMethod.IsValid() {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "invalid join method")
	}

	existing, err := repo.FindByMemberForUpdate(ctx, input.GroupID, input.MemberKey)
	if err != nil {
		return nil, false, err
	}
	at := input.At
	if existing == nil {
		contributor := &models.Contributor{
			GroupID:           input.GroupID,
			UserID:            input.UserID,
			MemberKey:         input.MemberKey,
			DisplayName:       input.DisplayName,
			TotalContributed:  input.Amount,
			ContributionCount: 1,
			HasVotingRights:   input.UserID != nil && input.JoinMethod.GrantsVotingRights(),
			JoinMethod:        input.JoinMethod,
			LastContributedAt: &at,
		}
		if err := repo.Create(ctx, contributor); err != nil {
			return nil, false, err
		}
		return contributor, true, nil
	}

	existing.TotalContributed = existing.TotalContributed.Add(input.Amount)
	existing.ContributionCount++
	existing.LastContributedAt = &at
	if input.UserID != nil && input.JoinMethod.GrantsVotingRights() {
		existing.HasVotingRights = true
	}
	if existing.DisplayName == nil && input.DisplayName != nil {
		existing.DisplayName = input.DisplayName
	}
	if err := repo.Save(ctx, existing); err != nil {
		return nil, false, err
	}
	return existing, false, nil
}
