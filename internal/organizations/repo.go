package organizations

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/homebase-app/homebase-backend/pkg/db/models"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Organization, error)
	FindByStripeAccount(ctx context.Context, accountID string) (*models.Organization, error)
	ListConnected(ctx context.Context, orgID *uuid.UUID) ([]models.Organization, error)
	Update(ctx context.Context, id uuid.UUID, fields map[string]any) error
	UpdateProfilePlans(ctx context.Context, orgID uuid.UUID, userID *uuid.UUID, fields map[string]any) (int64, error)
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

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	return r.take(r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *repository) FindByStripeAccount(ctx context.Context, accountID string) (*models.Organization, error) {
	return r.take(r.db.WithContext(ctx).Where("stripe_account_id = ?", accountID))
}

func (r *repository) take(query *gorm.DB) (*models.Organization, error) {
	var org models.Organization
	err := query.Take(&org).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &org, nil
}

// ListConnected returns organizations with a Stripe Connect account, limited
// to orgID when set.
func (r *repository) ListConnected(ctx context.Context, orgID *uuid.UUID) ([]models.Organization, error) {
	query := r.db.WithContext(ctx).
		Where("stripe_account_id IS NOT NULL AND stripe_account_id <> ''")
	if orgID != nil {
		query = query.Where("id = ?", *orgID)
	}
	var orgs []models.Organization
	if err := query.Order("created_at ASC").Find(&orgs).Error; err != nil {
		return nil, err
	}
	return orgs, nil
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Organization{}).
		Where("id = ?", id).
		Updates(fields).Error
}

// UpdateProfilePlans updates profiles in the organization, plus userID when
// the subscriber's profile is not linked to the organization yet.
func (r *repository) UpdateProfilePlans(ctx context.Context, orgID uuid.UUID, userID *uuid.UUID, fields map[string]any) (int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Profile{})
	if userID != nil {
		query = query.Where("org_id = ? OR id = ?", orgID, *userID)
	} else {
		query = query.Where("org_id = ?", orgID)
	}
	res := query.Updates(fields)
	return res.RowsAffected, res.Error
}
