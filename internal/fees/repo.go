package fees

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/homebase-app/homebase-backend/pkg/db/models"
	"github.com/homebase-app/homebase-backend/pkg/enums"
)

// Repository reads the rows the resolver needs.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindOrganization(ctx context.Context, orgID uuid.UUID) (*models.Organization, error)
	FindActiveSubscription(ctx context.Context, providerID uuid.UUID) (*models.ProviderSubscription, error)
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

// FindOrganization returns nil without error when the organization is missing.
func (r *repository) FindOrganization(ctx context.Context, orgID uuid.UUID) (*models.Organization, error) {
	var org models.Organization
	err := r.db.WithContext(ctx).Where("id = ?", orgID).Take(&org).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &org, nil
}

// FindActiveSubscription returns the most recently updated subscription in a
// plan-granting status, or nil.
func (r *repository) FindActiveSubscription(ctx context.Context, providerID uuid.UUID) (*models.ProviderSubscription, error) {
	var sub models.ProviderSubscription
	err := r.db.WithContext(ctx).
		Where("provider_id = ? AND status IN ?", providerID, []enums.SubscriptionStatus{
			enums.SubscriptionStatusActive,
			enums.SubscriptionStatusTrialing,
		}).
		Order("updated_at DESC").
		Take(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}
