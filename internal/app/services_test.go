package app

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/kolo-backend/internal/groups"
	"github.com/angelmondragon/kolo-backend/pkg/config"
	"github.com/angelmondragon/kolo-backend/pkg/db/dbtest"
	"github.com/angelmondragon/kolo-backend/pkg/logger"
)

func testConfig() *config.Config {
	return &config.Config{
		Governance: config.GovernanceConfig{
			RefundParticipationPct: 70,
			RefundApprovalPct:      60,
			RefundVotingWindow:     168 * time.Hour,
			WithdrawalVotingWindow: 72 * time.Hour,
			VoteRetryAttempts:      3,
		},
	}
}

func TestNewServicesRequiresClient(t *testing.T) {
	_, err := NewServices(testConfig(), nil, nil)
	require.Error(t, err)
}

func TestNewServicesWiresDomainLayer(t *testing.T) {
	client, _ := dbtest.OpenClient(t)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})

	svcs, err := NewServices(testConfig(), logg, client)
	require.NoError(t, err)
	require.NotNil(t, svcs.Withdrawals)
	require.NotNil(t, svcs.Refunds)
	require.NotNil(t, svcs.Recurring)

	ctx := context.Background()
	creator := uuid.New()
	group, err := svcs.Groups.Create(ctx, groups.CreateGroupInput{
		CreatorID:    creator,
		Name:         "Hostel rent",
		TargetAmount: decimal.NewFromInt(120000),
	})
	require.NoError(t, err)

	members, err := svcs.Contributors.List(ctx, group.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.True(t, members[0].HasVotingRights)

	summary, err := svcs.Groups.ReconcileAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Checked)
	assert.Zero(t, summary.Corrected)
}
