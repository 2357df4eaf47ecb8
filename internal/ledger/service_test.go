package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/kolo-backend/pkg/db/dbtest"
	"github.com/angelmondragon/kolo-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/kolo-backend/pkg/db/types"
	"github.com/angelmondragon/kolo-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/kolo-backend/pkg/errors"
	"github.com/angelmondragon/kolo-backend/pkg/pagination"
)

type fakeRepository struct {
	createFn func(ctx context.Context, txn *models.Transaction) error
}

func (f *fakeRepository) WithTx(*gorm.DB) Repository { return f }

func (f *fakeRepository) Create(ctx context.Context, txn *models.Transaction) error {
	if f.createFn != nil {
		return f.createFn(ctx, txn)
	}
	return nil
}

func (f *fakeRepository) FindByReference(context.Context, string) (*models.Transaction, error) {
	return nil, nil
}

func (f *fakeRepository) List(context.Context, listParams) ([]models.Transaction, *pagination.Cursor, error) {
	return nil, nil, nil
}

func (f *fakeRepository) HasCompletedContribution(context.Context, uuid.UUID, uuid.UUID) (bool, error) {
	return false, nil
}

func (f *fakeRepository) RefundedByUser(context.Context, uuid.UUID) (map[uuid.UUID]decimal.Decimal, error) {
	return nil, nil
}

func TestRecordBuildsRow(t *testing.T) {
	var created *models.Transaction
	repo := &fakeRepository{createFn: func(_ context.Context, txn *models.Transaction) error {
		created = txn
		return nil
	}}
	groupID := uuid.New()

	got, err := Record(context.Background(), repo, RecordInput{
		GroupID:   &groupID,
		Type:      enums.TransactionTypeContribution,
		Amount:    decimal.RequireFromString("5000.005"),
		Status:    enums.TransactionStatusCompleted,
		Reference: "  FLW-MOCK-1 ",
		Provider:  string(enums.PaymentProviderFlutterwave),
		Metadata:  dbtypes.JSON(`{"join_method":"card_payment"}`),
	})
	require.NoError(t, err)
	require.Same(t, created, got)
	require.NotNil(t, got.ReferenceID)
	assert.Equal(t, "FLW-MOCK-1", *got.ReferenceID)
	assert.Nil(t, got.Description)
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("5000.01")))
}

func TestRecordValidatesInput(t *testing.T) {
	repo := &fakeRepository{}
	_, err := Record(context.Background(), repo, RecordInput{Type: "bogus", Status: enums.TransactionStatusCompleted})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	_, err = Record(context.Background(), repo, RecordInput{
		Type: enums.TransactionTypeDeposit, Status: enums.TransactionStatusCompleted, Amount: decimal.NewFromInt(-1),
	})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestRecordWrapsRepositoryFailure(t *testing.T) {
	repo := &fakeRepository{createFn: func(context.Context, *models.Transaction) error {
		return errors.New("connection reset")
	}}
	_, err := Record(context.Background(), repo, RecordInput{
		Type: enums.TransactionTypeDeposit, Status: enums.TransactionStatusCompleted, Amount: decimal.NewFromInt(1),
	})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeDependency))
}

func TestRecordDuplicateReference(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	input := RecordInput{
		Type:      enums.TransactionTypeDeposit,
		Amount:    decimal.NewFromInt(100),
		Status:    enums.TransactionStatusCompleted,
		Reference: "MNFY|20240101|0001",
	}

	_, err := Record(ctx, repo, input)
	require.NoError(t, err)
	_, err = Record(ctx, repo, input)
	require.ErrorIs(t, err, ErrDuplicateReference)

	var count int64
	require.NoError(t, conn.Model(&models.Transaction{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestServiceListsAndScans(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	svc, err := NewService(repo)
	require.NoError(t, err)
	ctx := context.Background()

	userID := uuid.New()
	groupID := uuid.New()
	for i, typ := range []enums.TransactionType{enums.TransactionTypeDeposit, enums.TransactionTypeContribution, enums.TransactionTypeContribution} {
		_, err := Record(ctx, repo, RecordInput{
			UserID:    &userID,
			GroupID:   &groupID,
			Type:      typ,
			Amount:    decimal.NewFromInt(int64(100 * (i + 1))),
			Status:    enums.TransactionStatusCompleted,
			Reference: uuid.NewString(),
		})
		require.NoError(t, err)
	}

	page, err := svc.ListForUser(ctx, userID, ListParams{Params: pagination.Params{Limit: 2}})
	require.NoError(t, err)
	require.Len(t, page.Transactions, 2)
	require.NotEmpty(t, page.NextCursor)

	rest, err := svc.ListForUser(ctx, userID, ListParams{Params: pagination.Params{Limit: 2, Cursor: page.NextCursor}})
	require.NoError(t, err)
	assert.Len(t, rest.Transactions, 1)

	contribution := enums.TransactionTypeContribution
	byGroup, err := svc.ListForGroup(ctx, groupID, ListParams{Type: &contribution})
	require.NoError(t, err)
	assert.Len(t, byGroup.Transactions, 2)

	ok, err := svc.HasContributed(ctx, groupID, userID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.HasContributed(ctx, groupID, uuid.New())
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = svc.FindByReference(ctx, "missing")
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}
