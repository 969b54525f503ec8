package billing

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/homebase-app/homebase-backend/pkg/db/models"
)

// Repository handles provider subscription persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByStripeID(ctx context.Context, stripeSubscriptionID string) (*models.ProviderSubscription, error)
	Upsert(ctx context.Context, sub *models.ProviderSubscription) error
	UpdateByStripeID(ctx context.Context, stripeSubscriptionID string, fields map[string]any) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a billing repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByStripeID(ctx context.Context, stripeSubscriptionID string) (*models.ProviderSubscription, error) {
	var sub models.ProviderSubscription
	err := r.db.WithContext(ctx).
		Where("stripe_subscription_id = ?", stripeSubscriptionID).
		Take(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// Upsert inserts sub or refreshes the mutable columns of the row with the
// same stripe_subscription_id.
func (r *repository) Upsert(ctx context.Context, sub *models.ProviderSubscription) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "stripe_subscription_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"provider_id",
				"user_id",
				"plan",
				"status",
				"stripe_customer_id",
				"current_period_end",
				"cancel_at_period_end",
				"updated_at",
			}),
		}).
		Create(sub).Error
}

func (r *repository) UpdateByStripeID(ctx context.Context, stripeSubscriptionID string, fields map[string]any) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.ProviderSubscription{}).
		Where("stripe_subscription_id = ?", stripeSubscriptionID).
		Updates(fields)
	return res.RowsAffected, res.Error
}
