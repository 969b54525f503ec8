package invoices

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/homebase-app/homebase-backend/pkg/db/models"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error)
	FindByStripeInvoiceID(ctx context.Context, stripeInvoiceID string) (*models.Invoice, error)
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

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	return r.take(r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *repository) FindByStripeInvoiceID(ctx context.Context, stripeInvoiceID string) (*models.Invoice, error) {
	return r.take(r.db.WithContext(ctx).Where("stripe_invoice_id = ?", stripeInvoiceID))
}

func (r *repository) take(query *gorm.DB) (*models.Invoice, error) {
	var invoice models.Invoice
	err := query.Take(&invoice).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Invoice{}).
		Where("id = ?", id).
		Updates(fields).Error
}
