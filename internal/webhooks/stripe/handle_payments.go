package stripewebhook

import (
	"context"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/homebase-app/homebase-backend/internal/bookings"
	"github.com/homebase-app/homebase-backend/internal/ledger"
	"github.com/homebase-app/homebase-backend/internal/payments"
	"github.com/homebase-app/homebase-backend/internal/settlement"
	"github.com/homebase-app/homebase-backend/pkg/db/models"
)

// links are the HomeBase ids a payment belongs to.
type links struct {
	orgID       *uuid.UUID
	jobID       *uuid.UUID
	invoiceID   *uuid.UUID
	homeownerID *uuid.UUID
	kind        bookings.PaymentKind
}

// resolveLinks reads ids from metadata and fills gaps from the referenced
// invoice, the transfer destination and finally the Connect account the
// event came from.
func (b *branch) resolveLinks(ctx context.Context, meta metadata, destination string) (links, error) {
	l := links{
		orgID:       meta.uuid(MetaOrgID),
		jobID:       meta.uuid(MetaJobID),
		invoiceID:   meta.uuid(MetaInvoiceID),
		homeownerID: meta.homeowner(),
		kind:        bookings.ParsePaymentKind(meta[MetaPaymentType]),
	}
	if l.invoiceID != nil {
		invoice, err := b.invoices.Find(ctx, *l.invoiceID)
		if err != nil {
			return links{}, err
		}
		if invoice != nil {
			fillFromInvoice(&l, invoice)
		}
	}
	for _, account := range []string{destination, b.event.Account} {
		if l.orgID != nil || account == "" {
			continue
		}
		org, err := b.orgs.FindByStripeAccount(ctx, account)
		if err != nil {
			return links{}, err
		}
		if org != nil {
			l.orgID = &org.ID
		}
	}
	return l, nil
}

func fillFromInvoice(l *links, invoice *models.Invoice) {
	if l.orgID == nil {
		orgID := invoice.OrgID
		l.orgID = &orgID
	}
	if l.jobID == nil {
		l.jobID = invoice.JobID
	}
	if l.homeownerID == nil {
		l.homeownerID = invoice.ClientID
	}
}

func (b *branch) paymentIntentCreated(ctx context.Context) error {
	var intent stripe.PaymentIntent
	if err := decodeObject(b.event, &intent); err != nil {
		return err
	}
	l, err := b.resolveLinks(ctx, metadata(intent.Metadata), transferDestination(&intent))
	if err != nil {
		return err
	}
	if l.orgID == nil {
		b.logg.Debug(b.logg.WithField(ctx, "payment_intent_id", intent.ID), "payment intent without provider")
		return nil
	}
	_, _, err = b.payments.UpsertPending(ctx, payments.PendingInput{
		PaymentIntentID: intent.ID,
		OrgID:           l.orgID,
		JobID:           l.jobID,
		InvoiceID:       l.invoiceID,
		HomeownerID:     l.homeownerID,
		AmountCents:     intent.Amount,
		ApplicationFee:  intent.ApplicationFeeAmount,
		Currency:        string(intent.Currency),
	})
	return err
}

func (b *branch) paymentIntentSucceeded(ctx context.Context) error {
	var intent stripe.PaymentIntent
	if err := decodeObject(b.event, &intent); err != nil {
		return err
	}
	meta := metadata(intent.Metadata)
	l, err := b.resolveLinks(ctx, meta, transferDestination(&intent))
	if err != nil {
		return err
	}
	if l.orgID == nil {
		b.logg.Info(b.logg.WithField(ctx, "payment_intent_id", intent.ID), "payment intent without provider, nothing to settle")
		return nil
	}

	amount := intent.AmountReceived
	if amount <= 0 {
		amount = intent.Amount
	}
	in := settlement.PaymentInput{
		SettledInput: payments.SettledInput{
			PaymentIntentID:     intent.ID,
			OrgID:               l.orgID,
			JobID:               l.jobID,
			InvoiceID:           l.invoiceID,
			HomeownerID:         l.homeownerID,
			AmountCents:         amount,
			ApplicationFeeCents: feeSnapshot(intent.ApplicationFeeAmount, meta),
			Currency:            string(intent.Currency),
			PaidAt:              b.occurredAt(),
			Source:              string(b.event.Type),
		},
		Kind:   l.kind,
		Origin: b.origin,
	}
	if charge := intent.LatestCharge; charge != nil {
		in.ChargeID = charge.ID
		if charge.BalanceTransaction != nil {
			in.StripeFeeCents = charge.BalanceTransaction.Fee
		}
	}
	_, err = b.mutator.ApplyPayment(ctx, in)
	return err
}

func (b *branch) checkoutSessionCompleted(ctx context.Context) error {
	var session stripe.CheckoutSession
	if err := decodeObject(b.event, &session); err != nil {
		return err
	}
	meta := metadata(session.Metadata)
	if session.Mode == stripe.CheckoutSessionModeSubscription {
		return b.subscriptionCheckout(ctx, &session, meta)
	}

	l, err := b.resolveLinks(ctx, meta, "")
	if err != nil {
		return err
	}
	settled := session.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid ||
		session.PaymentStatus == stripe.CheckoutSessionPaymentStatusNoPaymentRequired
	if !settled {
		if l.invoiceID != nil {
			_, err := b.invoices.MarkProcessing(ctx, *l.invoiceID, session.ID)
			return err
		}
		return nil
	}

	intentID := ""
	if session.PaymentIntent != nil {
		intentID = session.PaymentIntent.ID
	}
	if intentID == "" || l.orgID == nil || session.AmountTotal <= 0 {
		logCtx := b.logg.WithField(ctx, "checkout_session_id", session.ID)
		b.logg.Warn(logCtx, "checkout session has no payment to record")
		if l.invoiceID != nil {
			return b.markInvoicePaid(ctx, *l.invoiceID, session.ID, "")
		}
		return nil
	}

	_, err = b.mutator.ApplyPayment(ctx, settlement.PaymentInput{
		SettledInput: payments.SettledInput{
			PaymentIntentID:     intentID,
			OrgID:               l.orgID,
			JobID:               l.jobID,
			InvoiceID:           l.invoiceID,
			HomeownerID:         l.homeownerID,
			AmountCents:         session.AmountTotal,
			ApplicationFeeCents: meta.cents(MetaApplicationFeeCents),
			Currency:            string(session.Currency),
			PaidAt:              b.occurredAt(),
			Source:              string(b.event.Type),
		},
		Kind:      l.kind,
		SessionID: session.ID,
		Origin:    b.origin,
	})
	return err
}

func (b *branch) chargeRefunded(ctx context.Context) error {
	var charge stripe.Charge
	if err := decodeObject(b.event, &charge); err != nil {
		return err
	}
	in := settlement.RefundInput{
		ChargeID:        charge.ID,
		CumulativeCents: charge.AmountRefunded,
		FullyRefunded:   charge.Refunded || (charge.Amount > 0 && charge.AmountRefunded >= charge.Amount),
		Currency:        string(charge.Currency),
		RefundedAt:      b.occurredAt(),
		Origin:          b.origin,
	}
	if charge.PaymentIntent != nil {
		in.PaymentIntentID = charge.PaymentIntent.ID
	}
	_, err := b.mutator.ApplyRefund(ctx, in)
	return err
}

// transferCreated records standalone transfers. Transfers created by a
// destination charge are already covered by that charge's ledger pair.
func (b *branch) transferCreated(ctx context.Context) error {
	var transfer stripe.Transfer
	if err := decodeObject(b.event, &transfer); err != nil {
		return err
	}
	if transfer.SourceTransaction != nil && transfer.SourceTransaction.ID != "" {
		b.logg.Debug(b.logg.WithField(ctx, "transfer_id", transfer.ID), "transfer belongs to a destination charge")
		return nil
	}
	destination := ""
	if transfer.Destination != nil {
		destination = transfer.Destination.ID
	}
	l, err := b.resolveLinks(ctx, metadata(transfer.Metadata), destination)
	if err != nil {
		return err
	}
	if l.orgID == nil {
		b.logg.Warn(b.logg.WithField(ctx, "transfer_id", transfer.ID), "transfer to unknown connect account")
	}
	_, err = b.ledger.RecordTransfer(ctx, ledger.Movement{
		StripeRef:   transfer.ID,
		OccurredAt:  unixTime(transfer.Created, b.occurredAt()),
		AmountCents: transfer.Amount,
		Currency:    string(transfer.Currency),
		ProviderID:  l.orgID,
		JobID:       l.jobID,
		Metadata:    map[string]any{"destination": destination},
	})
	return err
}

// payoutPaid only tracks payouts of connected accounts; platform payouts
// arrive without an account.
func (b *branch) payoutPaid(ctx context.Context) error {
	var payout stripe.Payout
	if err := decodeObject(b.event, &payout); err != nil {
		return err
	}
	if b.event.Account == "" {
		b.logg.Debug(b.logg.WithField(ctx, "payout_id", payout.ID), "platform payout ignored")
		return nil
	}
	_, err := b.mutator.ApplyPayout(ctx, settlement.PayoutInput{
		PayoutID:    payout.ID,
		AccountID:   b.event.Account,
		AmountCents: payout.Amount,
		Currency:    string(payout.Currency),
		ArrivedAt:   unixTime(payout.ArrivalDate, b.occurredAt()),
		Origin:      b.origin,
	})
	return err
}

func transferDestination(intent *stripe.PaymentIntent) string {
	if intent.TransferData == nil || intent.TransferData.Destination == nil {
		return ""
	}
	return intent.TransferData.Destination.ID
}

// feeSnapshot prefers the fee Stripe holds on the intent, then the fee
// stamped in metadata at checkout creation.
func feeSnapshot(applicationFee int64, meta metadata) *int64 {
	if applicationFee > 0 {
		return &applicationFee
	}
	return meta.cents(MetaApplicationFeeCents)
}
