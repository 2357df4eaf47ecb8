package contributors

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/kolo-backend/pkg/db/dbtest"
	"github.com/angelmondragon/kolo-backend/pkg/db/models"
	"github.com/angelmondragon/kolo-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/kolo-backend/pkg/errors"
)

type groupStub struct {
	groups map[uuid.UUID]*models.ContributionGroup
}

func (g groupStub) FindByID(_ context.Context, id uuid.UUID) (*models.ContributionGroup, error) {
	group, ok := g.groups[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return group, nil
}

func seedGroup(t *testing.T, conn *gorm.DB, creator uuid.UUID) *models.ContributionGroup {
	t.Helper()
	group := &models.ContributionGroup{
		Name:          "pot",
		CreatorID:     creator,
		TargetAmount:  decimal.NewFromInt(5000),
		CurrentAmount: decimal.Zero,
		Status:        enums.GroupStatusActive,
	}
	require.NoError(t, conn.Create(group).Error)
	return group
}

func TestApplyContributionBankTransferWithoutVotingRights(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	group := seedGroup(t, conn, uuid.New())
	userID := uuid.New()

	contributor, created, err := ApplyContribution(ctx, repo, StakeInput{
		GroupID:    group.ID,
		UserID:     &userID,
		MemberKey:  UserMemberKey(userID),
		JoinMethod: enums.JoinMethodBankTransfer,
		Amount:     decimal.NewFromInt(1000),
		At:         time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.False(t, contributor.HasVotingRights)
	assert.Equal(t, 1, contributor.ContributionCount)
}

func TestApplyContributionCardGrantsAndNeverRevokes(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	group := seedGroup(t, conn, uuid.New())
	userID := uuid.New()
	key := UserMemberKey(userID)

	_, _, err := ApplyContribution(ctx, repo, StakeInput{
		GroupID: group.ID, UserID: &userID, MemberKey: key,
		JoinMethod: enums.JoinMethodCardPayment, Amount: decimal.NewFromInt(500), At: time.Now().UTC(),
	})
	require.NoError(t, err)

	contributor, created, err := ApplyContribution(ctx, repo, StakeInput{
		GroupID: group.ID, UserID: &userID, MemberKey: key,
		JoinMethod: enums.JoinMethodBankTransfer, Amount: decimal.NewFromInt(250), At: time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.True(t, contributor.HasVotingRights)
	assert.Equal(t, 2, contributor.ContributionCount)
	assert.True(t, contributor.TotalContributed.Equal(decimal.NewFromInt(750)))

	var stored models.Contributor
	require.NoError(t, conn.Where("id = ?", contributor.ID).First(&stored).Error)
	assert.True(t, stored.HasVotingRights)
	assert.True(t, stored.TotalContributed.Equal(decimal.NewFromInt(750)))
}

func TestApplyContributionAnonymousPayerNeverVotes(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	group := seedGroup(t, conn, uuid.New())
	name := "Chidi Okafor"

	contributor, _, err := ApplyContribution(context.Background(), repo, StakeInput{
		GroupID:     group.ID,
		MemberKey:   PayerMemberKey("", "0123456789"),
		DisplayName: &name,
		JoinMethod:  enums.JoinMethodCardPayment,
		Amount:      decimal.NewFromInt(300),
		At:          time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.False(t, contributor.HasVotingRights)
	assert.Nil(t, contributor.UserID)
	assert.Equal(t, "payer:0123456789", contributor.MemberKey)
}

func TestApplyContributionRejectsMissingKey(t *testing.T) {
	conn := dbtest.Open(t)
	_, _, err := ApplyContribution(context.Background(), NewRepository(conn), StakeInput{
		GroupID:    uuid.New(),
		JoinMethod: enums.JoinMethodWallet,
		Amount:     decimal.NewFromInt(1),
	})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestGrantVotingRightsByCreator(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	creator := uuid.New()
	group := seedGroup(t, conn, creator)
	userID := uuid.New()

	contributor, _, err := ApplyContribution(ctx, repo, StakeInput{
		GroupID: group.ID, UserID: &userID, MemberKey: UserMemberKey(userID),
		JoinMethod: enums.JoinMethodBankTransfer, Amount: decimal.NewFromInt(1000), At: time.Now().UTC(),
	})
	require.NoError(t, err)
	require.False(t, contributor.HasVotingRights)

	svc, err := NewService(repo, groupStub{groups: map[uuid.UUID]*models.ContributionGroup{group.ID: group}})
	require.NoError(t, err)

	_, err = svc.GrantVotingRights(ctx, GrantVotingRightsInput{
		GroupID: group.ID, ContributorID: contributor.ID, ActorID: userID, ActorRole: enums.UserRoleUser,
	})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeForbidden))

	granted, err := svc.GrantVotingRights(ctx, GrantVotingRightsInput{
		GroupID: group.ID, ContributorID: contributor.ID, ActorID: creator, ActorRole: enums.UserRoleUser,
	})
	require.NoError(t, err)
	assert.True(t, granted.HasVotingRights)

	count, err := repo.CountVoters(ctx, group.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestGrantVotingRightsRejectsAnonymous(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	group := seedGroup(t, conn, uuid.New())

	contributor, _, err := ApplyContribution(ctx, repo, StakeInput{
		GroupID: group.ID, MemberKey: PayerMemberKey("payer@example.com"),
		JoinMethod: enums.JoinMethodBankTransfer, Amount: decimal.NewFromInt(100), At: time.Now().UTC(),
	})
	require.NoError(t, err)

	svc, err := NewService(repo, groupStub{groups: map[uuid.UUID]*models.ContributionGroup{group.ID: group}})
	require.NoError(t, err)
	_, err = svc.GrantVotingRights(ctx, GrantVotingRightsInput{
		GroupID: group.ID, ContributorID: contributor.ID, ActorID: uuid.New(), ActorRole: enums.UserRoleAdmin,
	})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestMemberKeys(t *testing.T) {
	id := uuid.MustParse("6f1c8a2e-4b1d-4c55-9a0e-1d2f3a4b5c6d")
	assert.Equal(t, "user:6f1c8a2e-4b1d-4c55-9a0e-1d2f3a4b5c6d", UserMemberKey(id))
	assert.Equal(t, "payer:ada@example.com", PayerMemberKey("", "  Ada@Example.com "))
	assert.Equal(t, "", PayerMemberKey("", " "))
}
