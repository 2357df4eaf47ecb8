package contributions

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/kolo-backend/internal/contributors"
	"github.com/angelmondragon/kolo-backend/internal/groups"
	"github.com/angelmondragon/kolo-backend/internal/ledger"
	"github.com/angelmondragon/kolo-backend/pkg/db/dbtest"
	"github.com/angelmondragon/kolo-backend/pkg/db/models"
	"github.com/angelmondragon/kolo-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/kolo-backend/pkg/errors"
	"github.com/angelmondragon/kolo-backend/pkg/outbox"
)

func newTestPoster(t *testing.T, conn *gorm.DB) *Poster {
	t.Helper()
	poster, err := NewPoster(
		groups.NewRepository(conn),
		contributors.NewRepository(conn),
		ledger.NewRepository(conn),
		outbox.NewService(outbox.NewRepository(conn), nil),
	)
	require.NoError(t, err)
	return poster
}

func seedGroup(t *testing.T, conn *gorm.DB, target int64) *models.ContributionGroup {
	t.Helper()
	group := &models.ContributionGroup{
		Name:          "Wedding gift",
		CreatorID:     uuid.New(),
		TargetAmount:  decimal.NewFromInt(target),
		CurrentAmount: decimal.Zero,
		Status:        enums.GroupStatusActive,
	}
	require.NoError(t, conn.Create(group).Error)
	return group
}

func TestPostCreditsGroupAndStake(t *testing.T) {
	conn := dbtest.Open(t)
	poster := newTestPoster(t, conn)
	group := seedGroup(t, conn, 10000)
	userID := uuid.New()
	ctx := context.Background()

	var result *Result
	err := conn.Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = poster.Post(ctx, tx, Input{
			GroupID:    group.ID,
			UserID:     &userID,
			MemberKey:  contributors.UserMemberKey(userID),
			JoinMethod: enums.JoinMethodCardPayment,
			Amount:     decimal.NewFromInt(5000),
			Reference:  "FLW-MOCK-5000",
			Provider:   enums.PaymentProviderFlutterwave,
		})
		return err
	})
	require.NoError(t, err)
	assert.True(t, result.ContributorCreated)
	assert.True(t, result.Contributor.HasVotingRights)
	assert.True(t, result.Group.CurrentAmount.Equal(decimal.NewFromInt(5000)))

	var stored models.ContributionGroup
	require.NoError(t, conn.Where("id = ?", group.ID).First(&stored).Error)
	assert.True(t, stored.CurrentAmount.Equal(decimal.NewFromInt(5000)))
	assert.Equal(t, enums.GroupStatusActive, stored.Status)

	var events []models.OutboxEvent
	require.NoError(t, conn.Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventContributionReceived, events[0].EventType)
}

func TestPostDuplicateReferenceLeavesBalancesUntouched(t *testing.T) {
	conn := dbtest.Open(t)
	poster := newTestPoster(t, conn)
	group := seedGroup(t, conn, 10000)
	userID := uuid.New()
	ctx := context.Background()
	input := Input{
		GroupID:    group.ID,
		UserID:     &userID,
		MemberKey:  contributors.UserMemberKey(userID),
		JoinMethod: enums.JoinMethodWallet,
		Amount:     decimal.NewFromInt(1000),
		Reference:  "wallet:dup",
		Provider:   enums.PaymentProviderWallet,
	}

	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		_, err := poster.Post(ctx, tx, input)
		return err
	}))
	err := conn.Transaction(func(tx *gorm.DB) error {
		_, err := poster.Post(ctx, tx, input)
		return err
	})
	require.ErrorIs(t, err, ledger.ErrDuplicateReference)

	var stored models.ContributionGroup
	require.NoError(t, conn.Where("id = ?", group.ID).First(&stored).Error)
	assert.True(t, stored.CurrentAmount.Equal(decimal.NewFromInt(1000)))

	var contributor models.Contributor
	require.NoError(t, conn.Where("group_id = ?", group.ID).First(&contributor).Error)
	assert.Equal(t, 1, contributor.ContributionCount)
}

func TestPostCompletesGroupAtTarget(t *testing.T) {
	conn := dbtest.Open(t)
	poster := newTestPoster(t, conn)
	group := seedGroup(t, conn, 1000)
	ctx := context.Background()

	err := conn.Transaction(func(tx *gorm.DB) error {
		_, err := poster.Post(ctx, tx, Input{
			GroupID:    group.ID,
			MemberKey:  contributors.PayerMemberKey("0123456789"),
			JoinMethod: enums.JoinMethodBankTransfer,
			Amount:     decimal.NewFromInt(1000),
			Reference:  "MNFY-1",
			Provider:   enums.PaymentProviderMonnify,
		})
		return err
	})
	require.NoError(t, err)

	var stored models.ContributionGroup
	require.NoError(t, conn.Where("id = ?", group.ID).First(&stored).Error)
	assert.Equal(t, enums.GroupStatusCompleted, stored.Status)
}

func TestPostUnknownGroup(t *testing.T) {
	conn := dbtest.Open(t)
	poster := newTestPoster(t, conn)
	err := conn.Transaction(func(tx *gorm.DB) error {
		_, err := poster.Post(context.Background(), tx, Input{
			GroupID:    uuid.New(),
			MemberKey:  "payer:x",
			JoinMethod: enums.JoinMethodBankTransfer,
			Amount:     decimal.NewFromInt(1),
		})
		return err
	})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}
