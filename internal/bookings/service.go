// Package bookings advances jobs when their payments settle.
package bookings

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/homebase-app/homebase-backend/pkg/db/models"
	"github.com/homebase-app/homebase-backend/pkg/enums"
	"github.com/homebase-app/homebase-backend/pkg/logger"
)

// PaymentKind distinguishes deposits from full payments.
type PaymentKind string

const (
	PaymentKindFull    PaymentKind = "full"
	PaymentKindDeposit PaymentKind = "deposit"
)

// ParsePaymentKind reads the payment_type metadata value; anything other
// than "deposit" is a full payment.
func ParsePaymentKind(value string) PaymentKind {
	if value == string(PaymentKindDeposit) {
		return PaymentKindDeposit
	}
	return PaymentKindFull
}

type Service struct {
	db   *gorm.DB
	logg *logger.Logger
}

func NewService(db *gorm.DB, logg *logger.Logger) *Service {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{db: db, logg: logg}
}

func (s *Service) WithTx(tx *gorm.DB) *Service {
	if tx == nil {
		return s
	}
	return &Service{db: tx, logg: s.logg}
}

// ApplyPayment marks the job's payment flags and moves its status forward:
// a deposit or an unfinished job becomes confirmed, a completed job becomes
// paid. A missing job is logged and ignored.
func (s *Service) ApplyPayment(ctx context.Context, jobID uuid.UUID, kind PaymentKind) (*models.Booking, error) {
	var booking models.Booking
	err := s.db.WithContext(ctx).Where("id = ?", jobID).Take(&booking).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.logg.Warn(s.logg.WithField(ctx, "job_id", jobID.String()), "job not found for payment")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", jobID, err)
	}

	fields := map[string]any{"payment_captured": true}
	booking.PaymentCaptured = true
	if kind == PaymentKindDeposit {
		fields["deposit_paid"] = true
		booking.DepositPaid = true
	}

	target := enums.BookingStatusConfirmed
	if kind == PaymentKindFull && booking.Status == enums.BookingStatusCompleted {
		target = enums.BookingStatusPaid
	}
	if booking.Status.Advances(target) {
		fields["status"] = target
		booking.Status = target
	}

	if err := s.db.WithContext(ctx).
		Model(&models.Booking{}).
		Where("id = ?", jobID).
		Updates(fields).Error; err != nil {
		return nil, fmt.Errorf("update job %s: %w", jobID, err)
	}
	return &booking, nil
}
