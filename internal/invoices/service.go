// Package invoices applies payment outcomes to HomeBase invoices.
package invoices

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/homebase-app/homebase-backend/pkg/db/models"
	"github.com/homebase-app/homebase-backend/pkg/enums"
	"github.com/homebase-app/homebase-backend/pkg/logger"
)

var allowedFrom = map[enums.InvoiceStatus][]enums.InvoiceStatus{
	enums.InvoiceStatusProcessing: {enums.InvoiceStatusPending},
	enums.InvoiceStatusPaid:       {enums.InvoiceStatusPending, enums.InvoiceStatusProcessing},
	enums.InvoiceStatusPending:    {enums.InvoiceStatusProcessing},
	enums.InvoiceStatusVoid:       {enums.InvoiceStatusPending, enums.InvoiceStatusProcessing},
	enums.InvoiceStatusRefunded:   {enums.InvoiceStatusPaid},
}

// Outcome is the result of applying a status change.
type Outcome struct {
	Invoice *models.Invoice
	Changed bool
}

// PaidInput carries the Stripe references recorded with a paid invoice.
type PaidInput struct {
	SessionID       string
	StripeInvoiceID string
	PaidAt          time.Time
}

type Service struct {
	repo Repository
	logg *logger.Logger
}

func NewService(repo Repository, logg *logger.Logger) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("invoices repository required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{repo: repo, logg: logg}, nil
}

func (s *Service) WithTx(tx *gorm.DB) *Service {
	return &Service{repo: s.repo.WithTx(tx), logg: s.logg}
}

func (s *Service) Find(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *Service) FindByStripeInvoiceID(ctx context.Context, stripeInvoiceID string) (*models.Invoice, error) {
	return s.repo.FindByStripeInvoiceID(ctx, stripeInvoiceID)
}

// MarkPaid sets the invoice paid with paid_at and any Stripe references.
func (s *Service) MarkPaid(ctx context.Context, id uuid.UUID, in PaidInput) (Outcome, error) {
	if in.PaidAt.IsZero() {
		in.PaidAt = time.Now().UTC()
	}
	fields := map[string]any{"paid_at": in.PaidAt}
	if in.SessionID != "" {
		fields["stripe_session_id"] = in.SessionID
	}
	if in.StripeInvoiceID != "" {
		fields["stripe_invoice_id"] = in.StripeInvoiceID
	}
	return s.move(ctx, id, enums.InvoiceStatusPaid, fields)
}

// MarkProcessing records that a checkout completed with an asynchronous
// payment method whose funds have not arrived.
func (s *Service) MarkProcessing(ctx context.Context, id uuid.UUID, sessionID string) (Outcome, error) {
	fields := map[string]any{}
	if sessionID != "" {
		fields["stripe_session_id"] = sessionID
	}
	return s.move(ctx, id, enums.InvoiceStatusProcessing, fields)
}

// MarkPaymentFailed returns a processing invoice to pending so the client can
// pay again.
func (s *Service) MarkPaymentFailed(ctx context.Context, id uuid.UUID) (Outcome, error) {
	return s.move(ctx, id, enums.InvoiceStatusPending, nil)
}

// Void voids the invoice unless money has already moved.
func (s *Service) Void(ctx context.Context, id uuid.UUID) (Outcome, error) {
	return s.move(ctx, id, enums.InvoiceStatusVoid, nil)
}

// MarkRefunded moves a paid invoice to refunded and clears paid_at.
func (s *Service) MarkRefunded(ctx context.Context, id uuid.UUID) (Outcome, error) {
	return s.move(ctx, id, enums.InvoiceStatusRefunded, map[string]any{"paid_at": nil})
}

func (s *Service) move(ctx context.Context, id uuid.UUID, next enums.InvoiceStatus, fields map[string]any) (Outcome, error) {
	invoice, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return Outcome{}, fmt.Errorf("load invoice %s: %w", id, err)
	}
	if invoice == nil {
		s.logg.Warn(s.logg.WithField(ctx, "invoice_id", id.String()), "invoice not found")
		return Outcome{}, nil
	}
	if invoice.Status == next {
		return Outcome{Invoice: invoice}, nil
	}
	if !canMove(invoice.Status, next) {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"invoice_id": id.String(),
			"from":       invoice.Status,
			"to":         next,
		})
		s.logg.Warn(logCtx, "skipping invoice status change")
		return Outcome{Invoice: invoice}, nil
	}

	update := map[string]any{"status": next}
	for k, v := range fields {
		update[k] = v
	}
	if err := s.repo.Update(ctx, id, update); err != nil {
		return Outcome{}, fmt.Errorf("update invoice %s: %w", id, err)
	}

	invoice.Status = next
	switch next {
	case enums.InvoiceStatusPaid:
		if paidAt, ok := update["paid_at"].(time.Time); ok {
			invoice.PaidAt = &paidAt
		}
	case enums.InvoiceStatusRefunded:
		invoice.PaidAt = nil
	}
	return Outcome{Invoice: invoice, Changed: true}, nil
}

func canMove(from, to enums.InvoiceStatus) bool {
	for _, candidate := range allowedFrom[to] {
		if candidate == from {
			return true
		}
	}
	return false
}
