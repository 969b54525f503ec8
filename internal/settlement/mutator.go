// Package settlement applies money movements reported by Stripe across
// payments, the ledger, invoices, jobs and organizations. Webhook handlers
// and the reconciliation jobs both go through Mutator, so a charge seen by
// either path lands on the same rows.
package settlement

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/homebase-app/homebase-backend/internal/bookings"
	"github.com/homebase-app/homebase-backend/internal/invoices"
	"github.com/homebase-app/homebase-backend/internal/ledger"
	"github.com/homebase-app/homebase-backend/internal/notifications"
	"github.com/homebase-app/homebase-backend/internal/organizations"
	"github.com/homebase-app/homebase-backend/internal/payments"
	"github.com/homebase-app/homebase-backend/pkg/db/models"
	"github.com/homebase-app/homebase-backend/pkg/enums"
	"github.com/homebase-app/homebase-backend/pkg/logger"
	"github.com/homebase-app/homebase-backend/pkg/outbox"
	"github.com/homebase-app/homebase-backend/pkg/outbox/payloads"
)

// PaymentInput is a settled customer payment plus the HomeBase objects it
// pays for.
type PaymentInput struct {
	payments.SettledInput
	Kind            bookings.PaymentKind
	SessionID       string
	StripeInvoiceID string
	Origin          *outbox.SourceRef
	// Quiet suppresses provider notifications, for historical backfills.
	Quiet bool
}

// PaymentOutcome reports what ApplyPayment changed.
type PaymentOutcome struct {
	Payment        *models.Payment
	PaymentCreated bool
	InvoicePaid    bool
	Booking        *models.Booking
}

// RefundInput describes the refund state of one charge. CumulativeCents is
// the total refunded so far, as Stripe reports it.
type RefundInput struct {
	ChargeID        string
	PaymentIntentID string
	CumulativeCents int64
	FullyRefunded   bool
	Currency        string
	RefundedAt      time.Time
	Origin          *outbox.SourceRef
	Quiet           bool
}

// RefundOutcome reports what ApplyRefund changed.
type RefundOutcome struct {
	Payment       *models.Payment
	LedgerWritten bool
	StatusChanged bool
}

// PayoutInput is a payout that reached a connected account's bank.
type PayoutInput struct {
	PayoutID    string
	AccountID   string
	OrgID       *uuid.UUID
	AmountCents int64
	Currency    string
	ArrivedAt   time.Time
	Origin      *outbox.SourceRef
	Quiet       bool
}

type Params struct {
	Payments      *payments.Recorder
	Ledger        *ledger.Writer
	Invoices      *invoices.Service
	Bookings      *bookings.Service
	Organizations *organizations.Service
	Notifications *notifications.Enqueuer
	Logger        *logger.Logger
}

type Mutator struct {
	payments *payments.Recorder
	ledger   *ledger.Writer
	invoices *invoices.Service
	bookings *bookings.Service
	orgs     *organizations.Service
	notify   *notifications.Enqueuer
	logg     *logger.Logger
	tx       *gorm.DB
}

func New(params Params) (*Mutator, error) {
	switch {
	case params.Payments == nil:
		return nil, fmt.Errorf("payments recorder required")
	case params.Ledger == nil:
		return nil, fmt.Errorf("ledger writer required")
	case params.Invoices == nil:
		return nil, fmt.Errorf("invoices service required")
	case params.Bookings == nil:
		return nil, fmt.Errorf("bookings service required")
	case params.Organizations == nil:
		return nil, fmt.Errorf("organizations service required")
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	return &Mutator{
		payments: params.Payments,
		ledger:   params.Ledger,
		invoices: params.Invoices,
		bookings: params.Bookings,
		orgs:     params.Organizations,
		notify:   params.Notifications,
		logg:     params.Logger,
	}, nil
}

// WithTx binds every collaborator to tx. Notifications are only queued by a
// transaction-bound mutator.
func (m *Mutator) WithTx(tx *gorm.DB) *Mutator {
	return &Mutator{
		payments: m.payments.WithTx(tx),
		ledger:   m.ledger.WithTx(tx),
		invoices: m.invoices.WithTx(tx),
		bookings: m.bookings.WithTx(tx),
		orgs:     m.orgs.WithTx(tx),
		notify:   m.notify,
		logg:     m.logg,
		tx:       tx,
	}
}

// ApplyPayment records the payment with its ledger pair, marks the invoice
// paid, advances the job and tells the provider. Replays change nothing.
func (m *Mutator) ApplyPayment(ctx context.Context, in PaymentInput) (PaymentOutcome, error) {
	recorded, err := m.payments.RecordSettled(ctx, in.SettledInput)
	if err != nil {
		return PaymentOutcome{}, err
	}
	out := PaymentOutcome{Payment: recorded.Payment, PaymentCreated: recorded.Created}

	if in.InvoiceID != nil {
		invoice, err := m.invoices.MarkPaid(ctx, *in.InvoiceID, invoices.PaidInput{
			SessionID:       in.SessionID,
			StripeInvoiceID: in.StripeInvoiceID,
			PaidAt:          in.PaidAt,
		})
		if err != nil {
			return PaymentOutcome{}, err
		}
		out.InvoicePaid = invoice.Changed
	}
	if in.JobID != nil {
		booking, err := m.bookings.ApplyPayment(ctx, *in.JobID, in.Kind)
		if err != nil {
			return PaymentOutcome{}, err
		}
		out.Booking = booking
	}

	if (out.PaymentCreated || out.InvoicePaid) && out.Payment != nil && !in.Quiet {
		m.announcePayment(ctx, in, out)
	}
	return out, nil
}

func (m *Mutator) announcePayment(ctx context.Context, in PaymentInput, out PaymentOutcome) {
	if m.tx == nil || m.notify == nil {
		return
	}
	target := notifications.Target{
		AggregateType: enums.AggregatePayment,
		AggregateID:   out.Payment.ID,
		Source:        in.Origin,
	}
	amount := formatCents(in.AmountCents, in.Currency)
	m.notify.Notify(ctx, m.tx, target, payloads.NotificationRequestedEvent{
		Audience: payloads.AudienceProvider,
		OrgID:    in.OrgID,
		Category: notifications.CategoryPaymentReceived,
		Title:    "Payment received",
		Body:     fmt.Sprintf("You received a payment of %s.", amount),
		Data:     map[string]string{"payment_id": out.Payment.ID.String()},
	})

	trigger := payloads.WorkflowTriggeredEvent{
		Trigger:    notifications.TriggerPaymentReceived,
		OrgID:      in.OrgID,
		EntityType: "payment",
		EntityID:   out.Payment.ID,
		Data:       map[string]any{"amount_cents": in.AmountCents, "currency": in.Currency},
	}
	if out.InvoicePaid && in.InvoiceID != nil {
		trigger.Trigger = notifications.TriggerInvoicePaid
		trigger.EntityType = "invoice"
		trigger.EntityID = *in.InvoiceID
		trigger.Data["payment_id"] = out.Payment.ID.String()
	}
	if in.JobID != nil {
		trigger.Data["job_id"] = in.JobID.String()
	}
	m.notify.Trigger(ctx, m.tx, target, trigger)
}

// ApplyRefund writes the refunded delta to the ledger and moves the payment
// to refunded on any refund. The invoice follows only once the charge is
// fully refunded, since a partial refund leaves the balance owed as paid.
func (m *Mutator) ApplyRefund(ctx context.Context, in RefundInput) (RefundOutcome, error) {
	if in.ChargeID == "" {
		return RefundOutcome{}, fmt.Errorf("refund charge id required")
	}
	if in.RefundedAt.IsZero() {
		in.RefundedAt = time.Now().UTC()
	}
	payment, err := m.payments.Find(ctx, payments.Lookup{ChargeID: in.ChargeID, PaymentIntentID: in.PaymentIntentID})
	if err != nil {
		return RefundOutcome{}, err
	}
	out := RefundOutcome{Payment: payment}
	logCtx := m.logg.WithField(ctx, "charge_id", in.ChargeID)
	if payment == nil {
		m.logg.Warn(logCtx, "refund for unknown payment")
	}

	movement := ledger.Movement{
		StripeRef:  in.ChargeID,
		OccurredAt: in.RefundedAt,
		Currency:   in.Currency,
		Metadata:   map[string]any{"payment_intent_id": in.PaymentIntentID},
	}
	if payment != nil {
		movement.ProviderID = payment.OrgID
		movement.HomeownerID = payment.HomeownerID
		movement.JobID = payment.JobID
		if movement.Currency == "" {
			movement.Currency = payment.Currency
		}
	}
	if out.LedgerWritten, err = m.ledger.RecordRefund(ctx, movement, in.CumulativeCents); err != nil {
		return RefundOutcome{}, err
	}

	if payment == nil {
		return out, nil
	}
	updated, changed, err := m.payments.Transition(ctx, payments.Lookup{ChargeID: in.ChargeID, PaymentIntentID: in.PaymentIntentID}, enums.PaymentStatusRefunded)
	if err != nil {
		return RefundOutcome{}, err
	}
	out.Payment = updated
	out.StatusChanged = changed
	if in.FullyRefunded && updated.Status == enums.PaymentStatusRefunded && payment.InvoiceID != nil {
		if _, err := m.invoices.MarkRefunded(ctx, *payment.InvoiceID); err != nil {
			return RefundOutcome{}, err
		}
	}

	if out.LedgerWritten && !in.Quiet && m.tx != nil && m.notify != nil {
		target := notifications.Target{AggregateType: enums.AggregatePayment, AggregateID: payment.ID, Source: in.Origin}
		m.notify.Notify(ctx, m.tx, target, payloads.NotificationRequestedEvent{
			Audience: payloads.AudienceProvider,
			OrgID:    payment.OrgID,
			Category: notifications.CategoryPaymentRefunded,
			Title:    "Payment refunded",
			Body:     fmt.Sprintf("A payment of %s was refunded.", formatCents(payment.Amount, payment.Currency)),
			Data:     map[string]string{"payment_id": payment.ID.String()},
		})
		m.notify.Trigger(ctx, m.tx, target, payloads.WorkflowTriggeredEvent{
			Trigger:    notifications.TriggerPaymentRefunded,
			OrgID:      payment.OrgID,
			EntityType: "payment",
			EntityID:   payment.ID,
			Data:       map[string]any{"refunded_cents": in.CumulativeCents},
		})
	}
	return out, nil
}

// ApplyPayout debits the provider for a paid-out amount. It reports whether
// a new ledger entry was written.
func (m *Mutator) ApplyPayout(ctx context.Context, in PayoutInput) (bool, error) {
	if in.PayoutID == "" {
		return false, fmt.Errorf("payout id required")
	}
	if in.AmountCents <= 0 {
		return false, nil
	}
	orgID := in.OrgID
	if orgID == nil && in.AccountID != "" {
		org, err := m.orgs.FindByStripeAccount(ctx, in.AccountID)
		if err != nil {
			return false, err
		}
		if org != nil {
			orgID = &org.ID
		}
	}
	if orgID == nil {
		m.logg.Warn(m.logg.WithField(ctx, "payout_id", in.PayoutID), "payout for unknown connect account")
	}
	if in.ArrivedAt.IsZero() {
		in.ArrivedAt = time.Now().UTC()
	}

	written, err := m.ledger.RecordPayout(ctx, ledger.Movement{
		StripeRef:   in.PayoutID,
		OccurredAt:  in.ArrivedAt,
		AmountCents: in.AmountCents,
		Currency:    in.Currency,
		ProviderID:  orgID,
		Metadata:    map[string]any{"stripe_account_id": in.AccountID},
	})
	if err != nil {
		return false, err
	}
	if written && orgID != nil && !in.Quiet && m.tx != nil && m.notify != nil {
		m.notify.Notify(ctx, m.tx, notifications.Target{
			AggregateType: enums.AggregateOrganization,
			AggregateID:   *orgID,
			Source:        in.Origin,
		}, payloads.NotificationRequestedEvent{
			Audience: payloads.AudienceProvider,
			OrgID:    orgID,
			Category: notifications.CategoryPayout,
			Title:    "Payout sent",
			Body:     fmt.Sprintf("%s is on its way to your bank.", formatCents(in.AmountCents, in.Currency)),
			Data:     map[string]string{"payout_id": in.PayoutID},
		})
	}
	return written, nil
}

// ApplyAccount mirrors a Connect account's capability flags.
func (m *Mutator) ApplyAccount(ctx context.Context, state organizations.AccountState) (*models.Organization, error) {
	return m.orgs.SyncAccount(ctx, state)
}

func formatCents(cents int64, currency string) string {
	amount := decimal.New(cents, -2).StringFixed(2)
	if currency == "" || strings.EqualFold(currency, "usd") {
		return "$" + amount
	}
	return amount + " " + strings.ToUpper(currency)
}
