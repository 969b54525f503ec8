package stripewebhook

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/homebase-app/homebase-backend/internal/billing"
	"github.com/homebase-app/homebase-backend/internal/invoices"
	"github.com/homebase-app/homebase-backend/internal/ledger"
	"github.com/homebase-app/homebase-backend/internal/notifications"
	"github.com/homebase-app/homebase-backend/internal/organizations"
	"github.com/homebase-app/homebase-backend/internal/payments"
	"github.com/homebase-app/homebase-backend/internal/settlement"
	"github.com/homebase-app/homebase-backend/pkg/db/models"
	"github.com/homebase-app/homebase-backend/pkg/enums"
	"github.com/homebase-app/homebase-backend/pkg/outbox/payloads"
)

func (b *branch) accountUpdated(ctx context.Context) error {
	var account stripe.Account
	if err := decodeObject(b.event, &account); err != nil {
		return err
	}
	_, err := b.mutator.ApplyAccount(ctx, organizations.AccountState{
		AccountID:        account.ID,
		ChargesEnabled:   account.ChargesEnabled,
		PayoutsEnabled:   account.PayoutsEnabled,
		DetailsSubmitted: account.DetailsSubmitted,
	})
	return err
}

func (b *branch) subscriptionCheckout(ctx context.Context, session *stripe.CheckoutSession, meta metadata) error {
	orgID := meta.uuid(MetaOrgID)
	if orgID == nil && session.ClientReferenceID != "" {
		if id, err := uuid.Parse(session.ClientReferenceID); err == nil {
			orgID = &id
		}
	}
	plan := meta.plan()
	logCtx := b.logg.WithField(ctx, "checkout_session_id", session.ID)
	if orgID == nil || plan == "" || session.Subscription == nil {
		b.logg.Warn(logCtx, "subscription checkout missing org, plan or subscription")
		return nil
	}
	state := billing.SubscriptionState{
		StripeSubscriptionID: session.Subscription.ID,
		OrgID:                orgID,
		UserID:               meta.uuid(MetaUserID),
		Plan:                 plan,
		Status:               enums.SubscriptionStatusActive,
		EventAt:              b.occurredAt(),
	}
	if session.Customer != nil {
		state.StripeCustomerID = session.Customer.ID
	}
	sub, err := b.billing.Activate(ctx, state)
	if err != nil || sub.Status.Terminal() {
		return err
	}
	b.notifyProvider(ctx, enums.AggregateOrganization, *orgID, orgID, payloads.NotificationRequestedEvent{
		Category: notifications.CategorySubscription,
		Title:    "Plan activated",
		Body:     "Your " + string(plan) + " plan is now active.",
		Data:     map[string]string{"plan": string(plan), "subscription_id": sub.StripeSubscriptionID},
	})
	return nil
}

func (b *branch) subscriptionChanged(ctx context.Context, deleted bool) error {
	var sub stripe.Subscription
	if err := decodeObject(b.event, &sub); err != nil {
		return err
	}
	meta := metadata(sub.Metadata)
	status, err := enums.ParseSubscriptionStatus(string(sub.Status))
	if err != nil {
		if !deleted {
			b.logg.Warn(b.logg.WithField(ctx, "status", string(sub.Status)), "unknown subscription status")
			return nil
		}
		status = enums.SubscriptionStatusCanceled
	}
	state := billing.SubscriptionState{
		StripeSubscriptionID: sub.ID,
		OrgID:                meta.uuid(MetaOrgID),
		UserID:               meta.uuid(MetaUserID),
		Plan:                 meta.plan(),
		Status:               status,
		CancelAtPeriodEnd:    sub.CancelAtPeriodEnd,
		Deleted:              deleted,
		EventAt:              b.occurredAt(),
	}
	if sub.Customer != nil {
		state.StripeCustomerID = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0] != nil {
		state.CurrentPeriodEnd = unixPtr(sub.Items.Data[0].CurrentPeriodEnd)
	}
	stored, err := b.billing.Sync(ctx, state)
	if err != nil || stored == nil || !deleted {
		return err
	}
	b.notifyProvider(ctx, enums.AggregateOrganization, stored.ProviderID, &stored.ProviderID, payloads.NotificationRequestedEvent{
		Category: notifications.CategorySubscription,
		Title:    "Subscription ended",
		Body:     "Your plan was moved to Free.",
		Data:     map[string]string{"subscription_id": stored.StripeSubscriptionID},
	})
	return nil
}

func (b *branch) invoicePaid(ctx context.Context) error {
	var inv invoiceObject
	if err := decodeObject(b.event, &inv); err != nil {
		return err
	}
	meta := inv.metadata()
	paidAt := unixTime(inv.StatusTransitions.PaidAt, b.occurredAt())

	if subID := inv.subscriptionID(); subID != "" {
		return b.subscriptionInvoicePaid(ctx, inv, subID, meta, paidAt)
	}

	invoice, err := b.homebaseInvoice(ctx, meta, inv.ID)
	if err != nil || invoice == nil {
		return err
	}
	if inv.PaymentIntent == "" || inv.AmountPaid <= 0 {
		return b.markInvoicePaid(ctx, invoice.ID, "", inv.ID)
	}

	orgID := invoice.OrgID
	_, err = b.mutator.ApplyPayment(ctx, settlement.PaymentInput{
		SettledInput: payments.SettledInput{
			ChargeID:            string(inv.Charge),
			PaymentIntentID:     string(inv.PaymentIntent),
			OrgID:               &orgID,
			JobID:               invoice.JobID,
			InvoiceID:           &invoice.ID,
			HomeownerID:         invoice.ClientID,
			AmountCents:         inv.AmountPaid,
			ApplicationFeeCents: meta.cents(MetaApplicationFeeCents),
			Currency:            inv.Currency,
			PaidAt:              paidAt,
			Source:              string(b.event.Type),
		},
		StripeInvoiceID: inv.ID,
		Origin:          b.origin,
	})
	return err
}

// subscriptionInvoicePaid credits the platform with a provider's plan fee.
func (b *branch) subscriptionInvoicePaid(ctx context.Context, inv invoiceObject, subID string, meta metadata, paidAt time.Time) error {
	providerID := meta.uuid(MetaOrgID)
	sub, err := b.billing.FindByStripeID(ctx, subID)
	if err != nil {
		return err
	}
	if sub != nil {
		providerID = &sub.ProviderID
	}
	if inv.AmountPaid <= 0 {
		return nil
	}
	_, err = b.ledger.RecordSubscriptionInvoice(ctx, ledger.Movement{
		StripeRef:   inv.ID,
		OccurredAt:  paidAt,
		AmountCents: inv.AmountPaid,
		Currency:    inv.Currency,
		ProviderID:  providerID,
		Metadata:    map[string]any{"subscription_id": subID, "customer_id": string(inv.Customer)},
	})
	return err
}

func (b *branch) invoicePaymentFailed(ctx context.Context) error {
	var inv invoiceObject
	if err := decodeObject(b.event, &inv); err != nil {
		return err
	}
	meta := inv.metadata()
	if subID := inv.subscriptionID(); subID != "" {
		sub, err := b.billing.MarkPastDue(ctx, subID)
		if err != nil || sub == nil {
			return err
		}
		b.notifyProvider(ctx, enums.AggregateOrganization, sub.ProviderID, &sub.ProviderID, payloads.NotificationRequestedEvent{
			Category: notifications.CategorySubscription,
			Title:    "Subscription payment failed",
			Body:     "We could not charge your card for your HomeBase plan.",
			Data:     map[string]string{"subscription_id": subID},
		})
		return nil
	}

	invoice, err := b.homebaseInvoice(ctx, meta, inv.ID)
	if err != nil || invoice == nil {
		return err
	}
	outcome, err := b.invoices.MarkPaymentFailed(ctx, invoice.ID)
	if err != nil || !outcome.Changed {
		return err
	}
	orgID := invoice.OrgID
	b.notifyProvider(ctx, enums.AggregateInvoice, invoice.ID, &orgID, payloads.NotificationRequestedEvent{
		Category: notifications.CategoryPaymentFailed,
		Title:    "Payment failed",
		Body:     "A client's invoice payment did not go through.",
		Data:     map[string]string{"invoice_id": invoice.ID.String()},
	})
	return nil
}

func (b *branch) invoiceVoided(ctx context.Context) error {
	var inv invoiceObject
	if err := decodeObject(b.event, &inv); err != nil {
		return err
	}
	invoice, err := b.homebaseInvoice(ctx, inv.metadata(), inv.ID)
	if err != nil || invoice == nil {
		return err
	}
	_, err = b.invoices.Void(ctx, invoice.ID)
	return err
}

// homebaseInvoice finds the HomeBase invoice a Stripe invoice refers to.
func (b *branch) homebaseInvoice(ctx context.Context, meta metadata, stripeInvoiceID string) (*models.Invoice, error) {
	if id := meta.uuid(MetaInvoiceID); id != nil {
		invoice, err := b.invoices.Find(ctx, *id)
		if err != nil || invoice != nil {
			return invoice, err
		}
	}
	if stripeInvoiceID == "" {
		return nil, nil
	}
	invoice, err := b.invoices.FindByStripeInvoiceID(ctx, stripeInvoiceID)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		b.logg.Debug(b.logg.WithField(ctx, "stripe_invoice_id", stripeInvoiceID), "no homebase invoice for stripe invoice")
	}
	return invoice, nil
}

func (b *branch) markInvoicePaid(ctx context.Context, invoiceID uuid.UUID, sessionID, stripeInvoiceID string) error {
	_, err := b.invoices.MarkPaid(ctx, invoiceID, invoices.PaidInput{
		SessionID:       sessionID,
		StripeInvoiceID: stripeInvoiceID,
		PaidAt:          b.occurredAt(),
	})
	return err
}

func (b *branch) notifyProvider(ctx context.Context, aggregate enums.OutboxAggregateType, aggregateID uuid.UUID, orgID *uuid.UUID, n payloads.NotificationRequestedEvent) {
	if b.notify == nil {
		return
	}
	n.Audience = payloads.AudienceProvider
	n.OrgID = orgID
	b.notify.Notify(ctx, b.tx, notifications.Target{
		AggregateType: aggregate,
		AggregateID:   aggregateID,
		Source:        b.origin,
	}, n)
}
