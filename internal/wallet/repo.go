package wallet

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/kolo-backend/pkg/db/models"
)

// Repository manages profile rows and their wallet balances.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, profile *models.Profile) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	UpdateBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a wallet repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, profile *models.Profile) error {
	return r.db.WithContext(ctx).Create(profile).Error
}

// FindByID returns nil without error when the profile does not exist.
func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	return r.find(r.db.WithContext(ctx), id)
}

// FindByIDForUpdate returns nil without error when the profile does not exist.
func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	return r.find(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (r *repository) find(query *gorm.DB, id uuid.UUID) (*models.Profile, error) {
	var profile models.Profile
	err := query.Where("id = ?", id).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *repository) UpdateBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal) error {
	return r.db.WithContext(ctx).
		Model(&models.Profile{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"wallet_balance": balance,
			"updated_at":     time.Now().UTC(),
		}).Error
}
