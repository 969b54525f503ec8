// Package disputes mirrors Stripe disputes against HomeBase payments.
package disputes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/homebase-app/homebase-backend/pkg/db/models"
	"github.com/homebase-app/homebase-backend/pkg/enums"
)

// State is a dispute as reported by Stripe.
type State struct {
	StripeDisputeID string
	ChargeID        string
	PaymentIntentID string
	PaymentID       *uuid.UUID
	OrgID           *uuid.UUID
	AmountCents     int64
	Currency        string
	Reason          string
	Status          enums.DisputeStatus
	EvidenceDueBy   *time.Time
}

type Service struct {
	db  *gorm.DB
	now func() time.Time
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Service) WithTx(tx *gorm.DB) *Service {
	if tx == nil {
		return s
	}
	return &Service{db: tx, now: s.now}
}

// Upsert writes the dispute's latest state. A closed status stamps
// resolved_at the first time it is seen. Once resolved, the row no longer
// accepts updates, so a late created or updated event leaves it closed.
func (s *Service) Upsert(ctx context.Context, state State) (*models.Dispute, error) {
	if state.StripeDisputeID == "" {
		return nil, errors.New("stripe dispute id is required")
	}
	row := &models.Dispute{
		StripeDisputeID: state.StripeDisputeID,
		ChargeID:        state.ChargeID,
		PaymentID:       state.PaymentID,
		OrgID:           state.OrgID,
		Amount:          state.AmountCents,
		Currency:        state.Currency,
		Reason:          state.Reason,
		Status:          state.Status,
		EvidenceDueBy:   state.EvidenceDueBy,
	}
	if state.PaymentIntentID != "" {
		pi := state.PaymentIntentID
		row.PaymentIntentID = &pi
	}
	if row.Currency == "" {
		row.Currency = "usd"
	}

	if err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "stripe_dispute_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"status", "amount", "reason", "evidence_due_by", "updated_at"}),
			Where: clause.Where{Exprs: []clause.Expression{
				clause.Expr{SQL: "disputes.resolved_at IS NULL"},
			}},
		}).
		Create(row).Error; err != nil {
		return nil, fmt.Errorf("upsert dispute %s: %w", state.StripeDisputeID, err)
	}

	var stored models.Dispute
	if err := s.db.WithContext(ctx).
		Where("stripe_dispute_id = ?", state.StripeDisputeID).
		Take(&stored).Error; err != nil {
		return nil, fmt.Errorf("reload dispute %s: %w", state.StripeDisputeID, err)
	}

	if state.Status.Closed() && stored.ResolvedAt == nil {
		resolvedAt := s.now()
		if err := s.db.WithContext(ctx).
			Model(&models.Dispute{}).
			Where("id = ? AND resolved_at IS NULL", stored.ID).
			Update("resolved_at", resolvedAt).Error; err != nil {
			return nil, fmt.Errorf("resolve dispute %s: %w", state.StripeDisputeID, err)
		}
		stored.ResolvedAt = &resolvedAt
	}
	return &stored, nil
}
