// Package stripeevents stores the durable idempotency record of every Stripe
// webhook delivery.
package stripeevents

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/homebase-app/homebase-backend/pkg/db/models"
)

const maxErrorLen = 2000

// Repository handles stripe_events persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	// Insert writes the row unless one exists for the same stripe_event_id and
	// reports whether it was written.
	Insert(ctx context.Context, event *models.StripeEvent) (bool, error)
	FindByStripeID(ctx context.Context, stripeEventID string) (*models.StripeEvent, error)
	// MarkProcessed stamps processed_at if it is still null.
	MarkProcessed(ctx context.Context, stripeEventID string, at time.Time) (bool, error)
	RecordFailure(ctx context.Context, stripeEventID string, cause error) error
	ListUnprocessed(ctx context.Context, olderThan time.Time, limit int) ([]models.StripeEvent, error)
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

func (r *repository) Insert(ctx context.Context, event *models.StripeEvent) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "stripe_event_id"}}, DoNothing: true}).
		Create(event)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) FindByStripeID(ctx context.Context, stripeEventID string) (*models.StripeEvent, error) {
	var event models.StripeEvent
	err := r.db.WithContext(ctx).Where("stripe_event_id = ?", stripeEventID).Take(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *repository) MarkProcessed(ctx context.Context, stripeEventID string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.StripeEvent{}).
		Where("stripe_event_id = ? AND processed_at IS NULL", stripeEventID).
		Updates(map[string]any{
			"processed_at": at,
			"last_error":   nil,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) RecordFailure(ctx context.Context, stripeEventID string, cause error) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	if len(msg) > maxErrorLen {
		msg = msg[:maxErrorLen]
	}
	return r.db.WithContext(ctx).
		Model(&models.StripeEvent{}).
		Where("stripe_event_id = ? AND processed_at IS NULL", stripeEventID).
		Updates(map[string]any{
			"last_error":    msg,
			"attempt_count": gorm.Expr("attempt_count + 1"),
		}).Error
}

// ListUnprocessed returns events received before olderThan that never
// completed, oldest first.
func (r *repository) ListUnprocessed(ctx context.Context, olderThan time.Time, limit int) ([]models.StripeEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []models.StripeEvent
	err := r.db.WithContext(ctx).
		Where("processed_at IS NULL AND created_at < ?", olderThan).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
