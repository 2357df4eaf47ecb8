package refunds

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/kolo-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/kolo-backend/pkg/db/types"
	"github.com/angelmondragon/kolo-backend/pkg/enums"
)

// Repository manages persistence for group refund requests.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, request *models.GroupRefundRequest) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.GroupRefundRequest, error)
	FindPendingByGroup(ctx context.Context, groupID uuid.UUID) (*models.GroupRefundRequest, error)
	ListByGroup(ctx context.Context, groupID uuid.UUID) ([]models.GroupRefundRequest, error)
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]models.GroupRefundRequest, error)
	SaveVotes(ctx context.Context, update voteUpdate) (bool, error)
	Expire(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	MarkExecuted(ctx context.Context, outcome executionOutcome) (bool, error)
}

type voteUpdate struct {
	ID        uuid.UUID
	Version   int
	Votes     dbtypes.VoteList
	Status    enums.RequestStatus
	DecidedAt *time.Time
}

type executionOutcome struct {
	ID        uuid.UUID
	Amount    decimal.Decimal
	Processed int
	Failed    int
	At        time.Time
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a refund repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, request *models.GroupRefundRequest) error {
	return r.db.WithContext(ctx).Create(request).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.GroupRefundRequest, error) {
	var request models.GroupRefundRequest
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&request).Error; err != nil {
		return nil, err
	}
	return &request, nil
}

// FindPendingByGroup returns nil without error when no vote is open.
func (r *repository) FindPendingByGroup(ctx context.Context, groupID uuid.UUID) (*models.GroupRefundRequest, error) {
	var request models.GroupRefundRequest
	err := r.db.WithContext(ctx).
		Where("group_id = ? AND status = ?", groupID, enums.RequestStatusPending).
		First(&request).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *repository) ListByGroup(ctx context.Context, groupID uuid.UUID) ([]models.GroupRefundRequest, error) {
	var rows []models.GroupRefundRequest
	if err := r.db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Order("created_at DESC, id DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListOverdue(ctx context.Context, now time.Time, limit int) ([]models.GroupRefundRequest, error) {
	var rows []models.GroupRefundRequest
	err := r.db.WithContext(ctx).
		Where("status = ? AND voting_deadline < ?", enums.RequestStatusPending, now).
		Order("voting_deadline ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// SaveVotes reports false when another writer bumped the version first.
func (r *repository) SaveVotes(ctx context.Context, update voteUpdate) (bool, error) {
	updates := map[string]any{
		"votes":      update.Votes,
		"status":     update.Status,
		"version":    gorm.Expr("version + 1"),
		"updated_at": time.Now().UTC(),
	}
	if update.DecidedAt != nil {
		updates["decided_at"] = *update.DecidedAt
	}
	res := r.db.WithContext(ctx).
		Model(&models.GroupRefundRequest{}).
		Where("id = ? AND version = ? AND status = ?", update.ID, update.Version, enums.RequestStatusPending).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) Expire(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.GroupRefundRequest{}).
		Where("id = ? AND status = ?", id, enums.RequestStatusPending).
		Updates(map[string]any{
			"status":     enums.RequestStatusRejected,
			"decided_at": at,
			"version":    gorm.Expr("version + 1"),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) MarkExecuted(ctx context.Context, outcome executionOutcome) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.GroupRefundRequest{}).
		Where("id = ? AND status = ?", outcome.ID, enums.RequestStatusApproved).
		Updates(map[string]any{
			"status":            enums.RequestStatusExecuted,
			"amount":            outcome.Amount,
			"refunds_processed": outcome.Processed,
			"refunds_failed":    outcome.Failed,
			"executed_at":       outcome.At,
			"version":           gorm.Expr("version + 1"),
			"updated_at":        time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
