package refunds

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/kolo-backend/internal/contributions"
	"github.com/angelmondragon/kolo-backend/internal/contributors"
	"github.com/angelmondragon/kolo-backend/internal/governance"
	"github.com/angelmondragon/kolo-backend/internal/groups"
	"github.com/angelmondragon/kolo-backend/internal/ledger"
	"github.com/angelmondragon/kolo-backend/internal/wallet"
	"github.com/angelmondragon/kolo-backend/pkg/db/dbtest"
	"github.com/angelmondragon/kolo-backend/pkg/db/models"
	"github.com/angelmondragon/kolo-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/kolo-backend/pkg/errors"
	"github.com/angelmondragon/kolo-backend/pkg/outbox"
)

type fixture struct {
	svc     *service
	conn    *gorm.DB
	poster  *contributions.Poster
	group   *models.ContributionGroup
	creator uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client, conn := dbtest.OpenClient(t)
	emitter := outbox.NewService(outbox.NewRepository(conn), nil)
	poster, err := contributions.NewPoster(groups.NewRepository(conn), contributors.NewRepository(conn), ledger.NewRepository(conn), emitter)
	require.NoError(t, err)

	svc, err := NewService(Deps{
		Repo:         NewRepository(conn),
		Groups:       groups.NewRepository(conn),
		Contributors: contributors.NewRepository(conn),
		Ledger:       ledger.NewRepository(conn),
		Wallets:      wallet.NewRepository(conn),
		Tx:           client,
		Outbox:       emitter,
	}, Options{Policy: governance.DefaultRefundPolicy()})
	require.NoError(t, err)

	creator := uuid.New()
	group := &models.ContributionGroup{
		Name:            "Burial levy",
		CreatorID:       creator,
		TargetAmount:    decimal.NewFromInt(1000000),
		CurrentAmount:   decimal.Zero,
		VotingThreshold: 3,
		Status:          enums.GroupStatusActive,
	}
	require.NoError(t, conn.Create(group).Error)
	require.NoError(t, conn.Create(&models.Contributor{
		GroupID:          group.ID,
		UserID:           &creator,
		MemberKey:        contributors.UserMemberKey(creator),
		TotalContributed: decimal.Zero,
		HasVotingRights:  true,
		JoinMethod:       enums.JoinMethodManual,
	}).Error)
	return &fixture{svc: svc.(*service), conn: conn, poster: poster, group: group, creator: creator}
}

func (f *fixture) post(t *testing.T, input contributions.Input) {
	t.Helper()
	input.GroupID = f.group.ID
	if input.Reference == "" {
		input.Reference = uuid.NewString()
	}
	require.NoError(t, f.conn.Transaction(func(tx *gorm.DB) error {
		_, err := f.poster.Post(context.Background(), tx, input)
		return err
	}))
}

func (f *fixture) cardContributor(t *testing.T, amount int64) uuid.UUID {
	t.Helper()
	userID := uuid.New()
	f.post(t, contributions.Input{
		UserID:     &userID,
		MemberKey:  contributors.UserMemberKey(userID),
		JoinMethod: enums.JoinMethodCardPayment,
		Amount:     decimal.NewFromInt(amount),
		Provider:   enums.PaymentProviderFlutterwave,
	})
	return userID
}

func (f *fixture) walletBalance(t *testing.T, userID uuid.UUID) decimal.Decimal {
	t.Helper()
	var profile models.Profile
	err := f.conn.Where("id = ?", userID).First(&profile).Error
	if err == gorm.ErrRecordNotFound {
		return decimal.Zero
	}
	require.NoError(t, err)
	return profile.WalletBalance
}

func (f *fixture) reloadGroup(t *testing.T) models.ContributionGroup {
	t.Helper()
	var group models.ContributionGroup
	require.NoError(t, f.conn.Where("id = ?", f.group.ID).First(&group).Error)
	return group
}

func TestCreateSnapshotsEligibleVoters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	member := f.cardContributor(t, 2000)
	f.post(t, contributions.Input{
		MemberKey:  contributors.PayerMemberKey("0001112223"),
		JoinMethod: enums.JoinMethodBankTransfer,
		Amount:     decimal.NewFromInt(500),
		Provider:   enums.PaymentProviderMonnify,
	})

	request, err := f.svc.Create(ctx, CreateInput{GroupID: f.group.ID, RequesterID: member, RefundType: enums.RefundTypeFull, Reason: "Event cancelled"})
	require.NoError(t, err)
	assert.Equal(t, 2, request.TotalEligibleVoters)
	assert.Equal(t, 100, request.Percentage)
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), request.VotingDeadline, time.Minute)

	_, err = f.svc.Create(ctx, CreateInput{GroupID: f.group.ID, RequesterID: f.creator, RefundType: enums.RefundTypePartial, Percentage: 50, Reason: "again"})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConflict))
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, CreateInput{GroupID: f.group.ID, RequesterID: f.creator, RefundType: enums.RefundTypeFull, Reason: "empty pot"})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	f.cardContributor(t, 1000)
	_, err = f.svc.Create(ctx, CreateInput{GroupID: f.group.ID, RequesterID: f.creator, RefundType: enums.RefundTypePartial, Percentage: 0, Reason: "x"})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.Create(ctx, CreateInput{GroupID: f.group.ID, RequesterID: f.creator, RefundType: "most", Reason: "x"})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.Create(ctx, CreateInput{GroupID: f.group.ID, RequesterID: uuid.New(), RefundType: enums.RefundTypeFull, Reason: "x"})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeForbidden))
}

func TestDualGateAutoApprovesAndExecutes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	voters := []uuid.UUID{f.creator}
	for i := 0; i < 9; i++ {
		voters = append(voters, f.cardContributor(t, 1000))
	}
	f.post(t, contributions.Input{
		MemberKey:  contributors.PayerMemberKey("anon@example.com"),
		JoinMethod: enums.JoinMethodBankTransfer,
		Amount:     decimal.NewFromInt(1000),
		Provider:   enums.PaymentProviderMonnify,
	})
	require.True(t, f.reloadGroup(t).CurrentAmount.Equal(decimal.NewFromInt(10000)))

	request, err := f.svc.Create(ctx, CreateInput{GroupID: f.group.ID, RequesterID: voters[1], RefundType: enums.RefundTypeFull, Reason: "Trip cancelled"})
	require.NoError(t, err)
	require.Equal(t, 10, request.TotalEligibleVoters)

	ballots := []enums.VoteValue{enums.VoteFor, enums.VoteFor, enums.VoteFor, enums.VoteFor, enums.VoteFor, enums.VoteAgainst}
	var last *VoteResult
	for i, ballot := range ballots {
		last, err = f.svc.Vote(ctx, VoteInput{RequestID: request.ID, VoterID: voters[i+1], Vote: ballot})
		require.NoError(t, err)
	}
	assert.Equal(t, enums.RequestStatusPending, last.Request.Status, "6 of 10 cast misses the participation gate")
	assert.False(t, last.ParticipationMet)
	assert.True(t, last.ApprovalMet)

	last, err = f.svc.Vote(ctx, VoteInput{RequestID: request.ID, VoterID: voters[7], Vote: enums.VoteAgainst})
	require.NoError(t, err)
	assert.True(t, last.ParticipationMet)
	assert.True(t, last.ApprovalMet)
	assert.Equal(t, enums.RequestStatusExecuted, last.Request.Status)
	assert.Equal(t, 9, last.Request.RefundsProcessed)
	assert.Equal(t, 1, last.Request.RefundsFailed)
	assert.True(t, last.Request.Amount.Equal(decimal.NewFromInt(9000)))

	for _, voter := range voters[1:] {
		assert.True(t, f.walletBalance(t, voter).Equal(decimal.NewFromInt(1000)))
	}
	assert.True(t, f.walletBalance(t, f.creator).IsZero())

	group := f.reloadGroup(t)
	assert.True(t, group.CurrentAmount.Equal(decimal.NewFromInt(1000)), group.CurrentAmount.String())

	var refundRows int64
	require.NoError(t, f.conn.Model(&models.Transaction{}).Where("type = ?", enums.TransactionTypeRefund).Count(&refundRows).Error)
	assert.EqualValues(t, 9, refundRows)

	var stake models.Contributor
	require.NoError(t, f.conn.Where("group_id = ? AND user_id = ?", f.group.ID, voters[1]).First(&stake).Error)
	assert.True(t, stake.TotalContributed.Equal(decimal.NewFromInt(1000)))

	_, err = f.svc.Vote(ctx, VoteInput{RequestID: request.ID, VoterID: voters[8], Vote: enums.VoteFor})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))
}

func TestPartialRefundScalesToRemainingPot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.cardContributor(t, 2000)
	bob := f.cardContributor(t, 1000)

	require.NoError(t, f.conn.Create(&models.WithdrawalRequest{
		GroupID:     f.group.ID,
		RequesterID: f.creator,
		Amount:      decimal.NewFromInt(1500),
		Reason:      "Deposit",
		Status:      enums.RequestStatusExecuted,
		Deadline:    time.Now().UTC(),
	}).Error)
	require.NoError(t, f.conn.Model(&models.ContributionGroup{}).Where("id = ?", f.group.ID).
		Update("current_amount", decimal.NewFromInt(1500)).Error)

	request, err := f.svc.Create(ctx, CreateInput{GroupID: f.group.ID, RequesterID: alice, RefundType: enums.RefundTypePartial, Percentage: 75, Reason: "Partial"})
	require.NoError(t, err)
	require.Equal(t, 3, request.TotalEligibleVoters)

	for _, voter := range []uuid.UUID{alice, bob, f.creator} {
		_, err = f.svc.Vote(ctx, VoteInput{RequestID: request.ID, VoterID: voter, Vote: enums.VoteFor})
		require.NoError(t, err)
	}

	// 75% of 3000 is 2250 which exceeds the 1500 left, so shares scale by 1500/2250.
	assert.True(t, f.walletBalance(t, alice).Equal(decimal.NewFromInt(1000)), f.walletBalance(t, alice).String())
	assert.True(t, f.walletBalance(t, bob).Equal(decimal.NewFromInt(500)), f.walletBalance(t, bob).String())
	assert.True(t, f.reloadGroup(t).CurrentAmount.IsZero())
}

func TestSecondRefundSkipsStakesAlreadyReturned(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	refundAll := func(requester uuid.UUID, voters ...uuid.UUID) {
		t.Helper()
		request, err := f.svc.Create(ctx, CreateInput{GroupID: f.group.ID, RequesterID: requester, RefundType: enums.RefundTypeFull, Reason: "Cancelled"})
		require.NoError(t, err)
		var last *VoteResult
		for _, voter := range voters {
			last, err = f.svc.Vote(ctx, VoteInput{RequestID: request.ID, VoterID: voter, Vote: enums.VoteFor})
			require.NoError(t, err)
		}
		require.Equal(t, enums.RequestStatusExecuted, last.Request.Status)
	}

	alice := f.cardContributor(t, 1000)
	refundAll(alice, alice, f.creator)
	require.True(t, f.walletBalance(t, alice).Equal(decimal.NewFromInt(1000)))
	require.True(t, f.reloadGroup(t).CurrentAmount.IsZero())

	bob := f.cardContributor(t, 1000)
	refundAll(bob, alice, bob, f.creator)

	assert.True(t, f.walletBalance(t, alice).Equal(decimal.NewFromInt(1000)), f.walletBalance(t, alice).String())
	assert.True(t, f.walletBalance(t, bob).Equal(decimal.NewFromInt(1000)), f.walletBalance(t, bob).String())
	assert.True(t, f.reloadGroup(t).CurrentAmount.IsZero(), f.reloadGroup(t).CurrentAmount.String())
}

func TestExpireOverdueLapsesToRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	member := f.cardContributor(t, 1000)

	request, err := f.svc.Create(ctx, CreateInput{GroupID: f.group.ID, RequesterID: member, RefundType: enums.RefundTypeFull, Reason: "Slow"})
	require.NoError(t, err)

	count, err := f.svc.ExpireOverdue(ctx, time.Now().Add(8*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	var stored models.GroupRefundRequest
	require.NoError(t, f.conn.Where("id = ?", request.ID).First(&stored).Error)
	assert.Equal(t, enums.RequestStatusRejected, stored.Status)

	f.svc.now = func() time.Time { return time.Now().Add(8 * 24 * time.Hour) }
	_, err = f.svc.Vote(ctx, VoteInput{RequestID: request.ID, VoterID: member, Vote: enums.VoteFor})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))
}

func TestProcessRefundRequiresApproval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	member := f.cardContributor(t, 1000)
	request, err := f.svc.Create(ctx, CreateInput{GroupID: f.group.ID, RequesterID: member, RefundType: enums.RefundTypeFull, Reason: "Early"})
	require.NoError(t, err)

	_, err = f.svc.ProcessRefund(ctx, request.ID)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))
}

func TestVoteRejectsWithdrawalBallots(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Vote(context.Background(), VoteInput{RequestID: uuid.New(), VoterID: f.creator, Vote: enums.VoteApprove})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}
