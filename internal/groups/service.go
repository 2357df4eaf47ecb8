package groups

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/kolo-backend/internal/contributors"
	"github.com/angelmondragon/kolo-backend/pkg/db/models"
	"github.com/angelmondragon/kolo-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/kolo-backend/pkg/errors"
	"github.com/angelmondragon/kolo-backend/pkg/logger"
	"github.com/angelmondragon/kolo-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes group lifecycle operations and the balance reconciliation.
type Service interface {
	Create(ctx context.Context, input CreateGroupInput) (*models.ContributionGroup, error)
	Get(ctx context.Context, id uuid.UUID) (*models.ContributionGroup, error)
	List(ctx context.Context, userID uuid.UUID, params pagination.Params) (*GroupList, error)
	SyncContributionData(ctx context.Context, groupID uuid.UUID) (*SyncResult, error)
	SyncTx(ctx context.Context, tx *gorm.DB, groupID uuid.UUID) (*SyncResult, error)
	ReconcileAll(ctx context.Context) (ReconcileSummary, error)
}

// CreateGroupInput carries the fields needed to open a new pot.
type CreateGroupInput struct {
	CreatorID       uuid.UUID
	Name            string
	Description     *string
	TargetAmount    decimal.Decimal
	VotingThreshold int
}

// GroupList is a page of groups visible to a member.
type GroupList struct {
	Groups     []models.ContributionGroup `json:"groups"`
	NextCursor string                     `json:"next_cursor,omitempty"`
}

type service struct {
	repo         Repository
	contributors contributors.Repository
	tx           txRunner
	logg         *logger.Logger
	now          func() time.Time
	sweepWorkers int
}

// Option tunes optional service behaviour.
type Option func(*service)

// WithSweepWorkers sets how many groups ReconcileAll syncs concurrently.
// Values below one mean one.
func WithSweepWorkers(n int) Option {
	return func(s *service) {
		if n > 0 {
			s.sweepWorkers = n
		}
	}
}

// NewService wires the group service.
func NewService(repo Repository, contributorRepo contributors.Repository, tx txRunner, logg *logger.Logger, opts ...Option) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "groups repository required")
	}
	if contributorRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "contributors repository required")
	}
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	}
	svc := &service{
		repo:         repo,
		contributors: contributorRepo,
		tx:           tx,
		logg:         logg,
		now:          time.Now,
		sweepWorkers: 1,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

func (s *service) Create(ctx context.Context, input CreateGroupInput) (*models.ContributionGroup, error) {
	if input.CreatorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	if !input.TargetAmount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "target amount must be positive")
	}
	threshold := input.VotingThreshold
	if threshold == 0 {
		threshold = 1
	}
	if threshold < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "voting threshold must be at least 1")
	}

	group := &models.ContributionGroup{
		Name:            name,
		Description:     input.Description,
		CreatorID:       input.CreatorID,
		TargetAmount:    input.TargetAmount.Round(2),
		CurrentAmount:   decimal.Zero,
		VotingThreshold: threshold,
		Status:          enums.GroupStatusActive,
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, group); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create group")
		}
		creatorID := input.CreatorID
		creator := &models.Contributor{
			GroupID:          group.ID,
			UserID:           &creatorID,
			MemberKey:        contributors.UserMemberKey(creatorID),
			TotalContributed: decimal.Zero,
			HasVotingRights:  true,
			JoinMethod:       enums.JoinMethodManual,
		}
		if err := s.contributors.WithTx(tx).Create(ctx, creator); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "enroll creator")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return group, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.ContributionGroup, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "group id required")
	}
	group, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapLoadError(err)
	}
	return group, nil
}

func (s *service) List(ctx context.Context, userID uuid.UUID, params pagination.Params) (*GroupList, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, next, err := s.repo.ListForMember(ctx, listGroupsParams{
		UserID: userID,
		Limit:  params.Limit,
		Cursor: cursor,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list groups")
	}
	out := &GroupList{Groups: rows}
	if next != nil {
		out.NextCursor = pagination.EncodeCursor(*next)
	}
	return out, nil
}

func mapLoadError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "group not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load group")
}

// Lock loads the group with a row lock inside the repository's transaction.
func Lock(ctx context.Context, repo Repository, id uuid.UUID) (*models.ContributionGroup, error) {
	group, err := repo.FindByIDForUpdate(ctx, id)
	if err != nil {
		return nil, mapLoadError(err)
	}
	return group, nil
}
