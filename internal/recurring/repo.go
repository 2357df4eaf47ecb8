package recurring

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/kolo-backend/pkg/db/models"
)

// Repository manages persistence for recurring contributions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, rc *models.RecurringContribution) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.RecurringContribution, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]models.RecurringContribution, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]models.RecurringContribution, error)
	Deactivate(ctx context.Context, id uuid.UUID) error
	RecordRun(ctx context.Context, id uuid.UUID, run runUpdate) error
}

// runUpdate is the bookkeeping written after each scheduled attempt.
type runUpdate struct {
	NextRunAt    time.Time
	LastRunAt    time.Time
	LastError    *string
	FailureCount int
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, rc *models.RecurringContribution) error {
	return r.db.WithContext(ctx).Create(rc).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.RecurringContribution, error) {
	var rc models.RecurringContribution
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&rc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rc, nil
}

func (r *repository) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.RecurringContribution, error) {
	var rows []models.RecurringContribution
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) ListDue(ctx context.Context, now time.Time, limit int) ([]models.RecurringContribution, error) {
	var rows []models.RecurringContribution
	err := r.db.WithContext(ctx).
		Where("active = ? AND next_run_at <= ?", true, now).
		Order("next_run_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *repository) Deactivate(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.RecurringContribution{}).
		Where("id = ?", id).
		Update("active", false).Error
}

func (r *repository) RecordRun(ctx context.Context, id uuid.UUID, run runUpdate) error {
	return r.db.WithContext(ctx).
		Model(&models.RecurringContribution{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"next_run_at":   run.NextRunAt,
			"last_run_at":   run.LastRunAt,
			"last_error":    run.LastError,
			"failure_count": run.FailureCount,
		}).Error
}
