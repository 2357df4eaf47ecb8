package contributors

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/kolo-backend/pkg/db/models"
)

// Repository manages persistence for group contributors.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, contributor *models.Contributor) error
	Save(ctx context.Context, contributor *models.Contributor) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Contributor, error)
	FindByMemberForUpdate(ctx context.Context, groupID uuid.UUID, memberKey string) (*models.Contributor, error)
	FindByUser(ctx context.Context, groupID, userID uuid.UUID) (*models.Contributor, error)
	ListByGroup(ctx context.Context, groupID uuid.UUID) ([]models.Contributor, error)
	ListVoterIDs(ctx context.Context, groupID uuid.UUID) ([]uuid.UUID, error)
	CountVoters(ctx context.Context, groupID uuid.UUID) (int64, error)
	SetVotingRights(ctx context.Context, id uuid.UUID, granted bool) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a contributors repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, contributor *models.Contributor) error {
	return r.db.WithContext(ctx).Create(contributor).Error
}

func (r *repository) Save(ctx context.Context, contributor *models.Contributor) error {
	return r.db.WithContext(ctx).Save(contributor).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Contributor, error) {
	var contributor models.Contributor
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&contributor).Error; err != nil {
		return nil, err
	}
	return &contributor, nil
}

// FindByMemberForUpdate returns nil without error when the member has no stake yet.
func (r *repository) FindByMemberForUpdate(ctx context.Context, groupID uuid.UUID, memberKey string) (*models.Contributor, error) {
	var contributor models.Contributor
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("group_id = ? AND member_key = ?", groupID, memberKey).
		First(&contributor).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &contributor, nil
}

// FindByUser returns nil without error when the user is not a contributor.
func (r *repository) FindByUser(ctx context.Context, groupID, userID uuid.UUID) (*models.Contributor, error) {
	var contributor models.Contributor
	err := r.db.WithContext(ctx).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		First(&contributor).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &contributor, nil
}

func (r *repository) ListByGroup(ctx context.Context, groupID uuid.UUID) ([]models.Contributor, error) {
	var rows []models.Contributor
	if err := r.db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListVoterIDs(ctx context.Context, groupID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := r.db.WithContext(ctx).
		Model(&models.Contributor{}).
		Where("group_id = ? AND has_voting_rights = ? AND user_id IS NOT NULL", groupID, true).
		Order("created_at ASC").
		Pluck("user_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repository) CountVoters(ctx context.Context, groupID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Contributor{}).
		Where("group_id = ? AND has_voting_rights = ? AND user_id IS NOT NULL", groupID, true).
		Count(&count).Error
	return count, err
}

func (r *repository) SetVotingRights(ctx context.Context, id uuid.UUID, granted bool) error {
	return r.db.WithContext(ctx).
		Model(&models.Contributor{}).
		Where("id = ?", id).
		Updates(map[string]any{"has_voting_rights": granted}).Error
}
