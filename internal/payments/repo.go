package payments

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/homebase-app/homebase-backend/pkg/db/models"
)

// Repository handles payments persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	// FindByStripeRefs returns the payment matching either the charge id or
	// the payment intent id. Empty refs are ignored.
	FindByStripeRefs(ctx context.Context, chargeID, intentID string) (*models.Payment, error)
	Create(ctx context.Context, payment *models.Payment) (bool, error)
	Update(ctx context.Context, id uuid.UUID, fields map[string]any) error
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

func (r *repository) FindByStripeRefs(ctx context.Context, chargeID, intentID string) (*models.Payment, error) {
	if chargeID == "" && intentID == "" {
		return nil, nil
	}
	query := r.db.WithContext(ctx).Model(&models.Payment{})
	switch {
	case chargeID != "" && intentID != "":
		query = query.Where("stripe_id = ? OR stripe_payment_intent_id = ?", chargeID, intentID)
	case chargeID != "":
		query = query.Where("stripe_id = ?", chargeID)
	default:
		query = query.Where("stripe_payment_intent_id = ?", intentID)
	}

	var payment models.Payment
	err := query.Order("created_at ASC").Take(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// Create inserts payment unless a row with the same charge or intent id
// exists. It reports whether the row was written.
func (r *repository) Create(ctx context.Context, payment *models.Payment) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(payment)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ?", id).
		Updates(fields).Error
}
