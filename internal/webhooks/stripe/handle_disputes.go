package stripewebhook

import (
	"context"

	"github.com/stripe/stripe-go/v84"

	"github.com/homebase-app/homebase-backend/internal/disputes"
	"github.com/homebase-app/homebase-backend/internal/ledger"
	"github.com/homebase-app/homebase-backend/internal/notifications"
	"github.com/homebase-app/homebase-backend/internal/payments"
	"github.com/homebase-app/homebase-backend/pkg/enums"
	"github.com/homebase-app/homebase-backend/pkg/outbox/payloads"
)

// disputeChanged mirrors the dispute and keeps the payment disputed while
// it is open. A closed dispute returns the payment to paid when the
// provider kept the funds; a lost one stays disputed and debits the
// provider.
func (b *branch) disputeChanged(ctx context.Context, kind Kind) error {
	var dispute stripe.Dispute
	if err := decodeObject(b.event, &dispute); err != nil {
		return err
	}
	lookup := payments.Lookup{}
	if dispute.Charge != nil {
		lookup.ChargeID = dispute.Charge.ID
	}
	if dispute.PaymentIntent != nil {
		lookup.PaymentIntentID = dispute.PaymentIntent.ID
	}
	status := enums.DisputeStatus(dispute.Status)
	ctx = b.logg.WithFields(ctx, map[string]any{"dispute_id": dispute.ID, "dispute_status": string(status)})

	payment, err := b.payments.Find(ctx, lookup)
	if err != nil {
		return err
	}
	state := disputes.State{
		StripeDisputeID: dispute.ID,
		ChargeID:        lookup.ChargeID,
		PaymentIntentID: lookup.PaymentIntentID,
		AmountCents:     dispute.Amount,
		Currency:        string(dispute.Currency),
		Reason:          string(dispute.Reason),
		Status:          status,
	}
	if dispute.EvidenceDetails != nil {
		state.EvidenceDueBy = unixPtr(dispute.EvidenceDetails.DueBy)
	}
	if payment != nil {
		state.PaymentID = &payment.ID
		state.OrgID = payment.OrgID
	}
	stored, err := b.disputes.Upsert(ctx, state)
	if err != nil {
		return err
	}
	if payment == nil {
		b.logg.Warn(ctx, "dispute for unknown payment")
		return nil
	}

	closed := kind == KindDisputeClosed || status.Closed()
	if !closed && stored.ResolvedAt != nil {
		b.logg.Info(ctx, "ignoring dispute update after close")
		return nil
	}
	switch {
	case closed && status.FavorsMerchant():
		_, _, err = b.payments.Transition(ctx, lookup, enums.PaymentStatusPaid)
	case closed:
		if _, _, err = b.payments.Transition(ctx, lookup, enums.PaymentStatusDisputed); err != nil {
			return err
		}
		_, err = b.ledger.RecordDisputeLoss(ctx, ledger.Movement{
			StripeRef:   dispute.ID,
			OccurredAt:  b.occurredAt(),
			AmountCents: dispute.Amount,
			Currency:    string(dispute.Currency),
			ProviderID:  payment.OrgID,
			HomeownerID: payment.HomeownerID,
			JobID:       payment.JobID,
			Metadata:    map[string]any{"charge_id": lookup.ChargeID, "reason": state.Reason},
		})
	default:
		_, _, err = b.payments.Transition(ctx, lookup, enums.PaymentStatusDisputed)
	}
	if err != nil {
		return err
	}

	if kind == KindDisputeCreated && b.notify != nil {
		target := notifications.Target{AggregateType: enums.AggregateDispute, AggregateID: stored.ID, Source: b.origin}
		b.notifyProvider(ctx, enums.AggregateDispute, stored.ID, payment.OrgID, payloads.NotificationRequestedEvent{
			Category: notifications.CategoryDispute,
			Title:    "Payment disputed",
			Body:     "A client disputed a payment. Respond before the evidence deadline.",
			Data:     map[string]string{"dispute_id": stored.ID.String(), "payment_id": payment.ID.String()},
		})
		b.notify.Trigger(ctx, b.tx, target, payloads.WorkflowTriggeredEvent{
			Trigger:    notifications.TriggerDisputeOpened,
			OrgID:      payment.OrgID,
			EntityType: "dispute",
			EntityID:   stored.ID,
			Data:       map[string]any{"payment_id": payment.ID.String(), "amount_cents": dispute.Amount},
		})
	}
	return nil
}
