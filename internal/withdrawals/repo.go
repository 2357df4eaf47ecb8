package withdrawals

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/kolo-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/kolo-backend/pkg/db/types"
	"github.com/angelmondragon/kolo-backend/pkg/enums"
)

// Repository manages persistence for withdrawal requests.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, request *models.WithdrawalRequest) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.WithdrawalRequest, error)
	ListByGroup(ctx context.Context, groupID uuid.UUID, status *enums.RequestStatus) ([]models.WithdrawalRequest, error)
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]models.WithdrawalRequest, error)
	SaveVotes(ctx context.Context, update voteUpdate) (bool, error)
	Transition(ctx context.Context, id uuid.UUID, from, to enums.RequestStatus, at time.Time) (bool, error)
}

// voteUpdate is a compare-and-swap on the request version.
type voteUpdate struct {
	ID        uuid.UUID
	Version   int
	Votes     dbtypes.VoteList
	Status    enums.RequestStatus
	DecidedAt *time.Time
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a withdrawal repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, request *models.WithdrawalRequest) error {
	return r.db.WithContext(ctx).Create(request).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.WithdrawalRequest, error) {
	var request models.WithdrawalRequest
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&request).Error; err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *repository) ListByGroup(ctx context.Context, groupID uuid.UUID, status *enums.RequestStatus) ([]models.WithdrawalRequest, error) {
	query := r.db.WithContext(ctx).Where("group_id = ?", groupID)
	if status != nil {
		query = query.Where("status = ?", *status)
	}
	var rows []models.WithdrawalRequest
	if err := query.Order("created_at DESC, id DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListOverdue(ctx context.Context, now time.Time, limit int) ([]models.WithdrawalRequest, error) {
	var rows []models.WithdrawalRequest
	err := r.db.WithContext(ctx).
		Where("status = ? AND deadline < ?", enums.RequestStatusPending, now).
		Order("deadline ASC").
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
		Model(&models.WithdrawalRequest{}).
		Where("id = ? AND version = ? AND status = ?", update.ID, update.Version, enums.RequestStatusPending).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Transition moves a request between statuses only if it is still in from.
func (r *repository) Transition(ctx context.Context, id uuid.UUID, from, to enums.RequestStatus, at time.Time) (bool, error) {
	updates := map[string]any{
		"status":     to,
		"version":    gorm.Expr("version + 1"),
		"updated_at": time.Now().UTC(),
	}
	switch to {
	case enums.RequestStatusExecuted:
		updates["executed_at"] = at
	default:
		updates["decided_at"] = at
	}
	res := r.db.WithContext(ctx).
		Model(&models.WithdrawalRequest{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
