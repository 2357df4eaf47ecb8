package paymentwebhook

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/kolo-backend/internal/contributions"
	"github.com/angelmondragon/kolo-backend/internal/contributors"
	"github.com/angelmondragon/kolo-backend/internal/groups"
	"github.com/angelmondragon/kolo-backend/internal/ledger"
	"github.com/angelmondragon/kolo-backend/internal/wallet"
	"github.com/angelmondragon/kolo-backend/pkg/db/dbtest"
	"github.com/angelmondragon/kolo-backend/pkg/db/models"
	"github.com/angelmondragon/kolo-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/kolo-backend/pkg/errors"
	"github.com/angelmondragon/kolo-backend/pkg/logger"
	"github.com/angelmondragon/kolo-backend/pkg/metrics"
	"github.com/angelmondragon/kolo-backend/pkg/outbox"
)

type fixture struct {
	svc    *Service
	conn   *gorm.DB
	store  *memoryStore
	logBuf *bytes.Buffer
}

// blindLedger never finds a reference, simulating a concurrent delivery that
// commits between the lookup and the insert.
type blindLedger struct {
	ledger.Repository
}

func (blindLedger) FindByReference(context.Context, string) (*models.Transaction, error) {
	return nil, nil
}

func newFixture(t *testing.T, opts ...func(*ServiceParams)) fixture {
	t.Helper()
	client, conn := dbtest.OpenClient(t)
	ledgerRepo := ledger.NewRepository(conn)
	poster, err := contributions.NewPoster(
		groups.NewRepository(conn),
		contributors.NewRepository(conn),
		ledgerRepo,
		outbox.NewService(outbox.NewRepository(conn), nil),
	)
	require.NoError(t, err)

	store := newMemoryStore()
	guard, err := NewDeliveryGuard(store, time.Hour)
	require.NoError(t, err)
	buf := &bytes.Buffer{}

	params := ServiceParams{
		Ledger:            ledgerRepo,
		Wallets:           wallet.NewRepository(conn),
		Poster:            poster,
		TransactionRunner: client,
		Guard:             guard,
		Metrics:           metrics.NewWebhookMetrics(prometheus.NewRegistry()),
		Logger:            logger.New(logger.Options{ServiceName: "test", Output: buf}),
	}
	for _, opt := range opts {
		opt(&params)
	}
	svc, err := NewService(params)
	require.NoError(t, err)
	return fixture{svc: svc, conn: conn, store: store, logBuf: buf}
}

func seedGroup(t *testing.T, conn *gorm.DB, priorContributors int) *models.ContributionGroup {
	t.Helper()
	group := &models.ContributionGroup{
		Name:            "Ajo circle",
		CreatorID:       uuid.New(),
		TargetAmount:    decimal.NewFromInt(100000),
		CurrentAmount:   decimal.NewFromInt(int64(priorContributors) * 1000),
		VotingThreshold: 3,
		Status:          enums.GroupStatusActive,
	}
	require.NoError(t, conn.Create(group).Error)
	for i := 0; i < priorContributors; i++ {
		userID := uuid.New()
		require.NoError(t, conn.Create(&models.Contributor{
			GroupID:           group.ID,
			UserID:            &userID,
			MemberKey:         contributors.UserMemberKey(userID),
			TotalContributed:  decimal.NewFromInt(1000),
			ContributionCount: 1,
			HasVotingRights:   true,
			JoinMethod:        enums.JoinMethodCardPayment,
		}).Error)
	}
	return group
}

func countTransactions(t *testing.T, conn *gorm.DB, reference string) int64 {
	t.Helper()
	var count int64
	require.NoError(t, conn.Model(&models.Transaction{}).Where("reference_id = ?", reference).Count(&count).Error)
	return count
}

func walletBalance(t *testing.T, conn *gorm.DB, userID uuid.UUID) decimal.Decimal {
	t.Helper()
	var profile models.Profile
	require.NoError(t, conn.First(&profile, "id = ?", userID).Error)
	return profile.WalletBalance
}

func cardEvent(reference string, amount int64, groupID, userID *uuid.UUID) *Event {
	return &Event{
		Type:       EventChargeCompleted,
		Channel:    ChannelCard,
		Provider:   enums.PaymentProviderFlutterwave,
		Reference:  reference,
		Amount:     decimal.NewFromInt(amount),
		Status:     "successful",
		Successful: true,
		GroupID:    groupID,
		UserID:     userID,
		PayerEmail: "payer@example.com",
	}
}

func TestCardContributionToGroupWithPriorContributors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	group := seedGroup(t, f.conn, 5)
	userID := uuid.New()

	result, err := f.svc.HandleEvent(ctx, cardEvent("FLW-5000", 5000, &group.ID, &userID))
	require.NoError(t, err)
	assert.Equal(t, ResultProcessed, result.Status)

	var contributorCount int64
	require.NoError(t, f.conn.Model(&models.Contributor{}).Where("group_id = ?", group.ID).Count(&contributorCount).Error)
	assert.Equal(t, int64(6), contributorCount)

	var contributor models.Contributor
	require.NoError(t, f.conn.First(&contributor, "group_id = ? AND user_id = ?", group.ID, userID).Error)
	assert.True(t, contributor.HasVotingRights)
	assert.Equal(t, enums.JoinMethodCardPayment, contributor.JoinMethod)

	var stored models.ContributionGroup
	require.NoError(t, f.conn.First(&stored, "id = ?", group.ID).Error)
	assert.True(t, stored.CurrentAmount.Equal(decimal.NewFromInt(10000)), "got %s", stored.CurrentAmount)

	var txns []models.Transaction
	require.NoError(t, f.conn.Where("group_id = ?", group.ID).Find(&txns).Error)
	require.Len(t, txns, 1)
	assert.Equal(t, enums.TransactionTypeContribution, txns[0].Type)
	assert.Equal(t, enums.TransactionStatusCompleted, txns[0].Status)
}

func TestDoubleDeliveryCreditsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	event := cardEvent("FLW-DEP-1", 2000, nil, &userID)

	first, err := f.svc.HandleEvent(ctx, event)
	require.NoError(t, err)
	assert.Equal(t, ResultProcessed, first.Status)

	second, err := f.svc.HandleEvent(ctx, event)
	require.NoError(t, err)
	assert.Equal(t, ResultDuplicate, second.Status)

	assert.Equal(t, int64(1), countTransactions(t, f.conn, "FLW-DEP-1"))
	assert.True(t, walletBalance(t, f.conn, userID).Equal(decimal.NewFromInt(2000)))
}

func TestRedeliveryAfterGuardExpiryHitsLedger(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	group := seedGroup(t, f.conn, 0)
	userID := uuid.New()

	_, err := f.svc.HandleEvent(ctx, cardEvent("FLW-G-1", 700, &group.ID, &userID))
	require.NoError(t, err)

	// marker gone, as after its TTL elapses
	require.NoError(t, f.store.Del(ctx, f.store.WebhookDeliveryKey("flutterwave", "FLW-G-1")))

	result, err := f.svc.HandleEvent(ctx, cardEvent("FLW-G-1", 900, &group.ID, &userID))
	require.NoError(t, err)
	assert.Equal(t, ResultDuplicate, result.Status)
	require.NotNil(t, result.TransactionID)
	assert.Contains(t, f.logBuf.String(), "payment amount differs from recorded transaction")

	var stored models.ContributionGroup
	require.NoError(t, f.conn.First(&stored, "id = ?", group.ID).Error)
	assert.True(t, stored.CurrentAmount.Equal(decimal.NewFromInt(700)))
	assert.Equal(t, int64(1), countTransactions(t, f.conn, "FLW-G-1"))
}

func TestConcurrentInsertResolvesAsDuplicate(t *testing.T) {
	f := newFixture(t, func(p *ServiceParams) {
		p.Ledger = blindLedger{Repository: p.Ledger}
		p.Guard = nil
	})
	ctx := context.Background()
	userID := uuid.New()
	event := cardEvent("FLW-RACE", 1500, nil, &userID)

	_, err := f.svc.HandleEvent(ctx, event)
	require.NoError(t, err)

	result, err := f.svc.HandleEvent(ctx, event)
	require.NoError(t, err)
	assert.Equal(t, ResultDuplicate, result.Status)
	assert.True(t, walletBalance(t, f.conn, userID).Equal(decimal.NewFromInt(1500)))
	assert.Equal(t, int64(1), countTransactions(t, f.conn, "FLW-RACE"))
}

func TestBankTransferContributionWithoutVotingRights(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	group := seedGroup(t, f.conn, 1)

	event := &Event{
		Type:         EventSuccessfulTransaction,
		Channel:      ChannelBankTransfer,
		Provider:     enums.PaymentProviderMonnify,
		Reference:    "MNFY-1",
		Amount:       decimal.NewFromInt(3000),
		Successful:   true,
		GroupID:      &group.ID,
		PayerAccount: "0123456789",
		PayerName:    "TUNDE A",
	}
	result, err := f.svc.HandleEvent(ctx, event)
	require.NoError(t, err)
	assert.Equal(t, ResultProcessed, result.Status)

	var contributor models.Contributor
	require.NoError(t, f.conn.First(&contributor, "group_id = ? AND member_key = ?", group.ID, "payer:0123456789").Error)
	assert.False(t, contributor.HasVotingRights)
	assert.Nil(t, contributor.UserID)
	assert.Equal(t, enums.JoinMethodBankTransfer, contributor.JoinMethod)
	require.NotNil(t, contributor.DisplayName)
	assert.Equal(t, "TUNDE A", *contributor.DisplayName)
}

func TestFailedChargeRecordsRowWithoutCredit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	event := cardEvent("FLW-FAIL", 800, nil, &userID)
	event.Successful = false
	event.Status = "failed"

	result, err := f.svc.HandleEvent(ctx, event)
	require.NoError(t, err)
	assert.Equal(t, ResultFailed, result.Status)

	var txn models.Transaction
	require.NoError(t, f.conn.First(&txn, "reference_id = ?", "FLW-FAIL:failed").Error)
	assert.Equal(t, enums.TransactionStatusFailed, txn.Status)
	assert.False(t, f.store.has(f.store.WebhookDeliveryKey("flutterwave", "FLW-FAIL")))
	assert.True(t, f.store.has(f.store.WebhookDeliveryKey("flutterwave", "FLW-FAIL:failed")))

	var profiles int64
	require.NoError(t, f.conn.Model(&models.Profile{}).Where("id = ?", userID).Count(&profiles).Error)
	assert.Zero(t, profiles)
}

func TestPendingThenSuccessfulDeliveryCredits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	pending := cardEvent("FLW-PEND", 1200, nil, &userID)
	pending.Status = "pending"
	pending.Successful = false

	result, err := f.svc.HandleEvent(ctx, pending)
	require.NoError(t, err)
	assert.Equal(t, ResultFailed, result.Status)

	result, err = f.svc.HandleEvent(ctx, pending)
	require.NoError(t, err)
	assert.Equal(t, ResultDuplicate, result.Status)

	result, err = f.svc.HandleEvent(ctx, cardEvent("FLW-PEND", 1200, nil, &userID))
	require.NoError(t, err)
	assert.Equal(t, ResultProcessed, result.Status)
	assert.True(t, walletBalance(t, f.conn, userID).Equal(decimal.NewFromInt(1200)))

	var settled models.Transaction
	require.NoError(t, f.conn.First(&settled, "reference_id = ?", "FLW-PEND").Error)
	assert.Equal(t, enums.TransactionStatusCompleted, settled.Status)
	assert.EqualValues(t, 1, countTransactions(t, f.conn, "FLW-PEND:pending"))

	result, err = f.svc.HandleEvent(ctx, cardEvent("FLW-PEND", 1200, nil, &userID))
	require.NoError(t, err)
	assert.Equal(t, ResultDuplicate, result.Status)
	assert.True(t, walletBalance(t, f.conn, userID).Equal(decimal.NewFromInt(1200)))
}

func TestPendingThenSuccessfulWithoutGuard(t *testing.T) {
	f := newFixture(t, func(p *ServiceParams) { p.Guard = nil })
	ctx := context.Background()
	userID := uuid.New()
	pending := cardEvent("FLW-PEND-2", 300, nil, &userID)
	pending.Status = "pending"
	pending.Successful = false

	_, err := f.svc.HandleEvent(ctx, pending)
	require.NoError(t, err)
	result, err := f.svc.HandleEvent(ctx, cardEvent("FLW-PEND-2", 300, nil, &userID))
	require.NoError(t, err)
	assert.Equal(t, ResultProcessed, result.Status)
	assert.True(t, walletBalance(t, f.conn, userID).Equal(decimal.NewFromInt(300)))
}

func TestAnonymousDepositRejectedAndReleased(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	event := cardEvent("FLW-ANON", 500, nil, nil)

	_, err := f.svc.HandleEvent(ctx, event)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
	assert.False(t, f.store.has(f.store.WebhookDeliveryKey("flutterwave", "FLW-ANON")))
	assert.Zero(t, countTransactions(t, f.conn, "FLW-ANON"))
}

func TestUnknownGroupIsValidationError(t *testing.T) {
	f := newFixture(t)
	missing := uuid.New()
	userID := uuid.New()

	_, err := f.svc.HandleEvent(context.Background(), cardEvent("FLW-NOGROUP", 500, &missing, &userID))
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
	assert.Equal(t, fmt.Sprint(map[string]any{"group_id": missing.String()}), fmt.Sprint(typed.Details()))
}

func TestGuardOutageFailsDelivery(t *testing.T) {
	f := newFixture(t)
	f.store.setNXErr = fmt.Errorf("redis down")
	userID := uuid.New()

	_, err := f.svc.HandleEvent(context.Background(), cardEvent("FLW-OUT", 500, nil, &userID))
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeDependency))
}
