package groups

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/kolo-backend/pkg/db/models"
	"github.com/angelmondragon/kolo-backend/pkg/enums"
	"github.com/angelmondragon/kolo-backend/pkg/pagination"
)

// Repository manages persistence for contribution groups.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, group *models.ContributionGroup) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.ContributionGroup, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.ContributionGroup, error)
	ListForMember(ctx context.Context, params listGroupsParams) ([]models.ContributionGroup, *pagination.Cursor, error)
	ListIDs(ctx context.Context) ([]uuid.UUID, error)
	UpdateProjection(ctx context.Context, id uuid.UUID, current decimal.Decimal, status enums.GroupStatus) error
	Totals(ctx context.Context, groupID uuid.UUID) (Totals, error)
}

// Totals are the inputs of the balance projection.
type Totals struct {
	Contributed decimal.Decimal
	Withdrawn   decimal.Decimal
	Refunded    decimal.Decimal
}

// Balance is contributions minus every approved or executed payout.
func (t Totals) Balance() decimal.Decimal {
	return t.Contributed.Sub(t.Withdrawn).Sub(t.Refunded)
}

type listGroupsParams struct {
	UserID uuid.UUID
	Limit  int
	Cursor *pagination.Cursor
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a groups repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, group *models.ContributionGroup) error {
	return r.db.WithContext(ctx).Create(group).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.ContributionGroup, error) {
	var group models.ContributionGroup
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&group).Error; err != nil {
		return nil, err
	}
	return &group, nil
}

func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.ContributionGroup, error) {
	var group models.ContributionGroup
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&group).Error; err != nil {
		return nil, err
	}
	return &group, nil
}

func (r *repository) ListForMember(ctx context.Context, params listGroupsParams) ([]models.ContributionGroup, *pagination.Cursor, error) {
	member := r.db.Model(&models.Contributor{}).Select("group_id").Where("user_id = ?", params.UserID)
	query := r.db.WithContext(ctx).
		Model(&models.ContributionGroup{}).
		Where("creator_id = ? OR id IN (?)", params.UserID, member)

	var rows []models.ContributionGroup
	if err := query.Scopes(pagination.Keyset(params.Cursor, params.Limit)).Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	page, next := pagination.Trim(rows, params.Limit, func(row models.ContributionGroup) pagination.Cursor {
		return pagination.Cursor{CreatedAt: row.CreatedAt, ID: row.ID}
	})
	return page, next, nil
}

func (r *repository) ListIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.ContributionGroup{}).
		Order("created_at ASC").
		Pluck("id", &ids).Error
	return ids, err
}

func (r *repository) UpdateProjection(ctx context.Context, id uuid.UUID, current decimal.Decimal, status enums.GroupStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.ContributionGroup{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"current_amount": current,
			"status":         status,
			"updated_at":     time.Now().UTC(),
		}).Error
}

// Totals sums in Go so the projection stays exact on every dialect.
func (r *repository) Totals(ctx context.Context, groupID uuid.UUID) (Totals, error) {
	var out Totals
	db := r.db.WithContext(ctx)

	var contributed []decimal.Decimal
	if err := db.Model(&models.Contributor{}).
		Where("group_id = ?", groupID).
		Pluck("total_contributed", &contributed).Error; err != nil {
		return out, err
	}
	out.Contributed = sum(contributed)

	payoutStatuses := []enums.RequestStatus{enums.RequestStatusApproved, enums.RequestStatusExecuted}

	var withdrawn []decimal.Decimal
	if err := db.Model(&models.WithdrawalRequest{}).
		Where("group_id = ? AND status IN ?", groupID, payoutStatuses).
		Pluck("amount", &withdrawn).Error; err != nil {
		return out, err
	}
	out.Withdrawn = sum(withdrawn)

	var refunded []decimal.Decimal
	if err := db.Model(&models.GroupRefundRequest{}).
		Where("group_id = ? AND status IN ?", groupID, payoutStatuses).
		Pluck("amount", &refunded).Error; err != nil {
		return out, err
	}
	out.Refunded = sum(refunded)
	return out, nil
}

func sum(values []decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}
