package wallet

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/kolo-backend/internal/contributions"
	"github.com/angelmondragon/kolo-backend/internal/contributors"
	"github.com/angelmondragon/kolo-backend/internal/groups"
	"github.com/angelmondragon/kolo-backend/internal/ledger"
	"github.com/angelmondragon/kolo-backend/pkg/db/dbtest"
	"github.com/angelmondragon/kolo-backend/pkg/db/models"
	"github.com/angelmondragon/kolo-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/kolo-backend/pkg/errors"
	"github.com/angelmondragon/kolo-backend/pkg/outbox"
	"github.com/angelmondragon/kolo-backend/pkg/pagination"
)

type fixture struct {
	svc   Service
	conn  *gorm.DB
	group *models.ContributionGroup
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	client, conn := dbtest.OpenClient(t)
	ledgerRepo := ledger.NewRepository(conn)
	ledgerSvc, err := ledger.NewService(ledgerRepo)
	require.NoError(t, err)
	poster, err := contributions.NewPoster(
		groups.NewRepository(conn),
		contributors.NewRepository(conn),
		ledgerRepo,
		outbox.NewService(outbox.NewRepository(conn), nil),
	)
	require.NoError(t, err)
	svc, err := NewService(NewRepository(conn), ledgerSvc, poster, client)
	require.NoError(t, err)

	group := &models.ContributionGroup{
		Name:          "Rent",
		CreatorID:     uuid.New(),
		TargetAmount:  decimal.NewFromInt(20000),
		CurrentAmount: decimal.Zero,
		Status:        enums.GroupStatusActive,
	}
	require.NoError(t, conn.Create(group).Error)
	return fixture{svc: svc, conn: conn, group: group}
}

func seedProfile(t *testing.T, conn *gorm.DB, balance int64) uuid.UUID {
	t.Helper()
	profile := &models.Profile{ID: uuid.New(), FullName: "Ngozi", WalletBalance: decimal.NewFromInt(balance)}
	require.NoError(t, conn.Create(profile).Error)
	return profile.ID
}

func TestContributeFromWalletMovesFunds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := seedProfile(t, f.conn, 3000)

	result, err := f.svc.ContributeFromWallet(ctx, ContributeInput{
		UserID:  userID,
		GroupID: f.group.ID,
		Amount:  decimal.NewFromInt(1200),
	})
	require.NoError(t, err)
	assert.True(t, result.WalletBalance.Equal(decimal.NewFromInt(1800)))
	assert.True(t, result.GroupBalance.Equal(decimal.NewFromInt(1200)))

	balance, err := f.svc.GetBalance(ctx, userID)
	require.NoError(t, err)
	assert.True(t, balance.Balance.Equal(decimal.NewFromInt(1800)))

	var contributor models.Contributor
	require.NoError(t, f.conn.Where("group_id = ? AND user_id = ?", f.group.ID, userID).First(&contributor).Error)
	assert.True(t, contributor.HasVotingRights)
	assert.Equal(t, enums.JoinMethodWallet, contributor.JoinMethod)

	history, err := f.svc.ListTransactions(ctx, userID, ledger.ListParams{Params: pagination.Params{Limit: 10}})
	require.NoError(t, err)
	require.Len(t, history.Transactions, 1)
	assert.Equal(t, enums.TransactionTypeContribution, history.Transactions[0].Type)
}

func TestContributeFromWalletInsufficientFundsRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := seedProfile(t, f.conn, 500)

	_, err := f.svc.ContributeFromWallet(ctx, ContributeInput{
		UserID:  userID,
		GroupID: f.group.ID,
		Amount:  decimal.NewFromInt(501),
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInsufficient))

	var group models.ContributionGroup
	require.NoError(t, f.conn.Where("id = ?", f.group.ID).First(&group).Error)
	assert.True(t, group.CurrentAmount.IsZero())

	var txCount, contributorCount int64
	require.NoError(t, f.conn.Model(&models.Transaction{}).Count(&txCount).Error)
	require.NoError(t, f.conn.Model(&models.Contributor{}).Count(&contributorCount).Error)
	assert.Zero(t, txCount)
	assert.Zero(t, contributorCount)
}

func TestContributeFromWalletReferenceIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := seedProfile(t, f.conn, 5000)
	input := ContributeInput{UserID: userID, GroupID: f.group.ID, Amount: decimal.NewFromInt(1000), Reference: "recurring:abc:2026-10-19"}

	_, err := f.svc.ContributeFromWallet(ctx, input)
	require.NoError(t, err)
	_, err = f.svc.ContributeFromWallet(ctx, input)
	require.ErrorIs(t, err, ledger.ErrDuplicateReference)

	balance, err := f.svc.GetBalance(ctx, userID)
	require.NoError(t, err)
	assert.True(t, balance.Balance.Equal(decimal.NewFromInt(4000)))
}

func TestCreditOpensMissingProfile(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	userID := uuid.New()

	profile, err := Credit(context.Background(), repo, userID, decimal.NewFromInt(750))
	require.NoError(t, err)
	assert.True(t, profile.WalletBalance.Equal(decimal.NewFromInt(750)))

	profile, err = Credit(context.Background(), repo, userID, decimal.NewFromInt(250))
	require.NoError(t, err)
	assert.True(t, profile.WalletBalance.Equal(decimal.NewFromInt(1000)))
}

func TestGetBalanceWithoutProfileIsZero(t *testing.T) {
	f := newFixture(t)
	balance, err := f.svc.GetBalance(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.True(t, balance.Balance.IsZero())
}
