package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/kolo-backend/pkg/db/models"
	"github.com/angelmondragon/kolo-backend/pkg/enums"
	"github.com/angelmondragon/kolo-backend/pkg/pagination"
)

// Repository manages persistence for ledger transactions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, txn *models.Transaction) error
	FindByReference(ctx context.Context, reference string) (*models.Transaction, error)
	List(ctx context.Context, params listParams) ([]models.Transaction, *pagination.Cursor, error)
	HasCompletedContribution(ctx context.Context, groupID, userID uuid.UUID) (bool, error)
	RefundedByUser(ctx context.Context, groupID uuid.UUID) (map[uuid.UUID]decimal.Decimal, error)
}

type listParams struct {
	UserID  *uuid.UUID
	GroupID *uuid.UUID
	Type    *enums.TransactionType
	Limit   int
	Cursor  *pagination.Cursor
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, txn *models.Transaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

// FindByReference returns nil without error when nothing was recorded.
func (r *repository) FindByReference(ctx context.Context, reference string) (*models.Transaction, error) {
	var txn models.Transaction
	err := r.db.WithContext(ctx).Where("reference_id = ?", reference).First(&txn).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *repository) List(ctx context.Context, params listParams) ([]models.Transaction, *pagination.Cursor, error) {
	query := r.db.WithContext(ctx).Model(&models.Transaction{})
	if params.UserID != nil {
		query = query.Where("user_id = ?", *params.UserID)
	}
	if params.GroupID != nil {
		query = query.Where("group_id = ?", *params.GroupID)
	}
	if params.Type != nil {
		query = query.Where("type = ?", *params.Type)
	}

	var rows []models.Transaction
	if err := query.Scopes(pagination.Keyset(params.Cursor, params.Limit)).Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	page, next := pagination.Trim(rows, params.Limit, func(row models.Transaction) pagination.Cursor {
		return pagination.Cursor{CreatedAt: row.CreatedAt, ID: row.ID}
	})
	return page, next, nil
}

func (r *repository) HasCompletedContribution(ctx context.Context, groupID, userID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("group_id = ? AND user_id = ? AND type = ? AND status = ?",
			groupID, userID, enums.TransactionTypeContribution, enums.TransactionStatusCompleted).
		Count(&count).Error
	return count > 0, err
}

// RefundedByUser sums the completed refund rows of a group per recipient.
func (r *repository) RefundedByUser(ctx context.Context, groupID uuid.UUID) (map[uuid.UUID]decimal.Decimal, error) {
	var rows []models.Transaction
	err := r.db.WithContext(ctx).
		Select("user_id", "amount").
		Where("group_id = ? AND type = ? AND status = ? AND user_id IS NOT NULL",
			groupID, enums.TransactionTypeRefund, enums.TransactionStatusCompleted).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]decimal.Decimal, len(rows))
	for _, row := range rows {
		out[*row.UserID] = out[*row.UserID].Add(row.Amount)
	}
	return out, nil
}
