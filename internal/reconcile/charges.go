package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/homebase-app/homebase-backend/internal/payments"
	"github.com/homebase-app/homebase-backend/internal/settlement"
	stripewebhook "github.com/homebase-app/homebase-backend/internal/webhooks/stripe"
	"github.com/homebase-app/homebase-backend/pkg/enums"
	"github.com/homebase-app/homebase-backend/pkg/metrics"
	stripeapi "github.com/homebase-app/homebase-backend/pkg/stripe"
)

// backfillPayments records every captured platform charge in the window
// that has no settled payment yet.
func (s *Service) backfillPayments(ctx context.Context, opts Options, report *Report) error {
	params := stripeapi.ListParams{
		CreatedGTE: report.Since,
		Type:       string(stripe.BalanceTransactionTypeCharge),
		Expand:     []string{"data.source"},
	}
	return s.eachBalanceTransaction(ctx, params, report, func(ctx context.Context, txn *stripe.BalanceTransaction) (string, error) {
		return s.applyCharge(ctx, txn, opts)
	})
}

// syncTransactions walks every balance transaction in the window and
// applies charges and refunds.
func (s *Service) syncTransactions(ctx context.Context, opts Options, report *Report) error {
	params := stripeapi.ListParams{
		CreatedGTE: report.Since,
		Expand:     []string{"data.source", "data.source.charge"},
	}
	return s.eachBalanceTransaction(ctx, params, report, func(ctx context.Context, txn *stripe.BalanceTransaction) (string, error) {
		switch txn.Type {
		case stripe.BalanceTransactionTypeCharge, stripe.BalanceTransactionTypePayment:
			return s.applyCharge(ctx, txn, opts)
		case stripe.BalanceTransactionTypeRefund, stripe.BalanceTransactionTypePaymentRefund:
			return s.applyRefund(ctx, txn, opts)
		default:
			return metrics.ItemSkipped, nil
		}
	})
}

func (s *Service) applyCharge(ctx context.Context, txn *stripe.BalanceTransaction, opts Options) (string, error) {
	if txn.Source == nil || txn.Source.Charge == nil {
		return metrics.ItemSkipped, nil
	}
	charge := txn.Source.Charge
	if charge.ID == "" || charge.Amount <= 0 {
		return metrics.ItemSkipped, nil
	}
	intentID := ""
	if charge.PaymentIntent != nil {
		intentID = charge.PaymentIntent.ID
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{"charge_id": charge.ID, "payment_intent_id": intentID})

	links := stripewebhook.ParsePaymentLinks(charge.Metadata)
	if links.OrgID == nil {
		orgID, err := s.orgForDestination(ctx, charge)
		if err != nil {
			return "", err
		}
		links.OrgID = orgID
	}
	if links.OrgID == nil {
		s.logg.Debug(logCtx, "charge without provider")
		return metrics.ItemSkipped, nil
	}
	if opts.OrgID != nil && *opts.OrgID != *links.OrgID {
		return metrics.ItemSkipped, nil
	}

	existing, err := s.payments.Find(ctx, payments.Lookup{ChargeID: charge.ID, PaymentIntentID: intentID})
	if err != nil {
		return "", err
	}
	if existing != nil && settled(existing.Status) {
		return metrics.ItemSkipped, nil
	}

	fee := links.ApplicationFeeCents
	if charge.ApplicationFeeAmount > 0 {
		snapshot := charge.ApplicationFeeAmount
		fee = &snapshot
	}
	in := settlement.PaymentInput{
		SettledInput: payments.SettledInput{
			ChargeID:            charge.ID,
			PaymentIntentID:     intentID,
			OrgID:               links.OrgID,
			JobID:               links.JobID,
			InvoiceID:           links.InvoiceID,
			HomeownerID:         links.HomeownerID,
			AmountCents:         charge.Amount,
			StripeFeeCents:      txn.Fee,
			ApplicationFeeCents: fee,
			Currency:            string(charge.Currency),
			PaidAt:              unixTime(charge.Created, txn.Created),
			Source:              "reconcile",
		},
		Kind:  links.Kind,
		Quiet: true,
	}
	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		_, err := s.mutator.WithTx(tx).ApplyPayment(ctx, in)
		return err
	})
	if err != nil {
		return "", err
	}
	s.logg.Info(logCtx, "backfilled payment")
	return metrics.ItemApplied, nil
}

func (s *Service) applyRefund(ctx context.Context, txn *stripe.BalanceTransaction, opts Options) (string, error) {
	if txn.Source == nil || txn.Source.Refund == nil {
		return metrics.ItemSkipped, nil
	}
	charge := txn.Source.Refund.Charge
	if charge == nil || charge.ID == "" {
		return metrics.ItemSkipped, nil
	}
	if charge.Amount == 0 {
		expanded, err := s.stripe.GetCharge(ctx, charge.ID)
		if err != nil {
			return "", fmt.Errorf("get charge %s: %w", charge.ID, err)
		}
		charge = expanded
	}
	intentID := ""
	if charge.PaymentIntent != nil {
		intentID = charge.PaymentIntent.ID
	}
	if opts.OrgID != nil {
		payment, err := s.payments.Find(ctx, payments.Lookup{ChargeID: charge.ID, PaymentIntentID: intentID})
		if err != nil {
			return "", err
		}
		if payment == nil || payment.OrgID == nil || *payment.OrgID != *opts.OrgID {
			return metrics.ItemSkipped, nil
		}
	}

	in := settlement.RefundInput{
		ChargeID:        charge.ID,
		PaymentIntentID: intentID,
		CumulativeCents: charge.AmountRefunded,
		FullyRefunded:   charge.Refunded || (charge.Amount > 0 && charge.AmountRefunded >= charge.Amount),
		Currency:        string(charge.Currency),
		RefundedAt:      unixTime(txn.Source.Refund.Created, txn.Created),
		Quiet:           true,
	}
	var out settlement.RefundOutcome
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		out, err = s.mutator.WithTx(tx).ApplyRefund(ctx, in)
		return err
	})
	if err != nil {
		return "", err
	}
	if !out.LedgerWritten && !out.StatusChanged {
		return metrics.ItemSkipped, nil
	}
	return metrics.ItemApplied, nil
}

func (s *Service) orgForDestination(ctx context.Context, charge *stripe.Charge) (*uuid.UUID, error) {
	if charge.TransferData == nil || charge.TransferData.Destination == nil || charge.TransferData.Destination.ID == "" {
		return nil, nil
	}
	org, err := s.orgs.FindByStripeAccount(ctx, charge.TransferData.Destination.ID)
	if err != nil || org == nil {
		return nil, err
	}
	return &org.ID, nil
}

// settled reports whether a payment has already moved past capture.
func settled(status enums.PaymentStatus) bool {
	switch status {
	case enums.PaymentStatusPaid, enums.PaymentStatusRefunded, enums.PaymentStatusDisputed:
		return true
	}
	return false
}

func unixTime(sec, fallback int64) time.Time {
	if sec <= 0 {
		sec = fallback
	}
	if sec <= 0 {
		return time.Now().UTC()
	}
	return time.Unix(sec, 0).UTC()
}
