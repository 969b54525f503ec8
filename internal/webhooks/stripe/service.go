// Package stripewebhook verifies, deduplicates and routes Stripe webhook
// deliveries. Each routed event runs in one database transaction that also
// stamps the event processed.
package stripewebhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/homebase-app/homebase-backend/internal/billing"
	"github.com/homebase-app/homebase-backend/internal/disputes"
	"github.com/homebase-app/homebase-backend/internal/invoices"
	"github.com/homebase-app/homebase-backend/internal/ledger"
	"github.com/homebase-app/homebase-backend/internal/notifications"
	"github.com/homebase-app/homebase-backend/internal/organizations"
	"github.com/homebase-app/homebase-backend/internal/payments"
	"github.com/homebase-app/homebase-backend/internal/settlement"
	"github.com/homebase-app/homebase-backend/pkg/enums"
	pkgerrors "github.com/homebase-app/homebase-backend/pkg/errors"
	"github.com/homebase-app/homebase-backend/pkg/logger"
	"github.com/homebase-app/homebase-backend/pkg/metrics"
	"github.com/homebase-app/homebase-backend/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ServiceParams struct {
	Verifier          *Verifier
	Guard             *Guard
	TransactionRunner txRunner
	Settlement        *settlement.Mutator
	Payments          *payments.Recorder
	Ledger            *ledger.Writer
	Invoices          *invoices.Service
	Organizations     *organizations.Service
	Billing           *billing.Service
	Disputes          *disputes.Service
	Notifications     *notifications.Enqueuer
	Metrics           *metrics.WebhookMetrics
	Logger            *logger.Logger
}

type Service struct {
	verifier *Verifier
	guard    *Guard
	txRunner txRunner
	mutator  *settlement.Mutator
	payments *payments.Recorder
	ledger   *ledger.Writer
	invoices *invoices.Service
	orgs     *organizations.Service
	billing  *billing.Service
	disputes *disputes.Service
	notify   *notifications.Enqueuer
	metrics  *metrics.WebhookMetrics
	logg     *logger.Logger
	now      func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Verifier == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "signature verifier required")
	case params.Guard == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard required")
	case params.TransactionRunner == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	case params.Settlement == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "settlement mutator required")
	case params.Payments == nil, params.Ledger == nil, params.Invoices == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payments, ledger and invoices required")
	case params.Organizations == nil, params.Billing == nil, params.Disputes == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "organizations, billing and disputes required")
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	return &Service{
		verifier: params.Verifier,
		guard:    params.Guard,
		txRunner: params.TransactionRunner,
		mutator:  params.Settlement,
		payments: params.Payments,
		ledger:   params.Ledger,
		invoices: params.Invoices,
		orgs:     params.Organizations,
		billing:  params.Billing,
		disputes: params.Disputes,
		notify:   params.Notifications,
		metrics:  params.Metrics,
		logg:     params.Logger,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Result is what the endpoint reports back to Stripe.
type Result struct {
	EventID   string
	EventType string
	Kind      Kind
	Source    enums.WebhookSource
	Duplicate bool
}

// Configured reports whether any endpoint secret is set.
func (s *Service) Configured() bool {
	return s.verifier.Configured()
}

// Handle authenticates payload, records it and applies it once.
func (s *Service) Handle(ctx context.Context, payload []byte, signature string) (Result, error) {
	started := time.Now()
	if signature == "" {
		s.metrics.Observe("", "", metrics.OutcomeRejected, time.Since(started))
		return Result{}, pkgerrors.New(pkgerrors.CodeInvalidSignature, "missing Stripe-Signature header")
	}
	if !s.verifier.Configured() {
		s.metrics.Observe("", "", metrics.OutcomeRejected, time.Since(started))
		return Result{}, pkgerrors.New(pkgerrors.CodeInvalidSignature, "no webhook secrets configured")
	}
	source, ok := s.verifier.Identify(payload, signature)
	if !ok {
		s.metrics.Observe("", "", metrics.OutcomeRejected, time.Since(started))
		return Result{}, pkgerrors.New(pkgerrors.CodeInvalidSignature, "signature does not match any endpoint secret")
	}

	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil || event.ID == "" {
		s.metrics.Observe("", source.String(), metrics.OutcomeRejected, time.Since(started))
		return Result{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid stripe event payload")
	}

	result, outcome, err := s.process(ctx, &event, source, payload)
	s.metrics.Observe(result.Kind.String(), source.String(), outcome, time.Since(started))
	return result, err
}

func (s *Service) process(ctx context.Context, event *stripe.Event, source enums.WebhookSource, raw []byte) (Result, string, error) {
	class := Classify(event.Type)
	result := Result{EventID: event.ID, EventType: string(event.Type), Kind: class.Kind, Source: source}
	ctx = s.logg.WithEvent(ctx, event.ID, string(event.Type))
	ctx = s.logg.WithField(ctx, "webhook_source", source.String())

	ticket, err := s.guard.Begin(ctx, event, source, raw)
	if err != nil {
		if pkgerrors.CodeOf(err) == pkgerrors.CodeEventInFlight {
			return result, metrics.OutcomeInFlight, err
		}
		return result, metrics.OutcomeFailed, err
	}
	defer s.guard.Release(ctx, ticket)
	if ticket.Duplicate {
		s.logg.Info(ctx, "stripe event already processed")
		result.Duplicate = true
		return result, metrics.OutcomeDuplicate, nil
	}

	if class.Kind == KindUnhandled {
		if err := s.guard.MarkProcessed(ctx, nil, event.ID); err != nil {
			s.guard.RecordFailure(ctx, event.ID, err)
			return result, metrics.OutcomeFailed, pkgerrors.Wrap(pkgerrors.CodeWebhookRejected, err, "mark event processed")
		}
		s.logg.Debug(ctx, "stripe event type not routed")
		return result, metrics.OutcomeIgnored, nil
	}

	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.dispatch(ctx, s.bind(tx, event), class.Kind); err != nil {
			return err
		}
		return s.guard.MarkProcessed(ctx, tx, event.ID)
	})
	if err != nil {
		s.guard.RecordFailure(ctx, event.ID, err)
		s.logg.Error(ctx, "stripe event processing failed", err)
		return result, metrics.OutcomeFailed, pkgerrors.Wrap(pkgerrors.CodeWebhookRejected, err, fmt.Sprintf("process %s", event.Type))
	}
	s.logg.Info(ctx, "stripe event applied")
	return result, metrics.OutcomeApplied, nil
}

// dispatch switches over every Kind; a Kind without a case is a bug.
func (s *Service) dispatch(ctx context.Context, b *branch, kind Kind) error {
	switch kind {
	case KindAccountUpdated:
		return b.accountUpdated(ctx)
	case KindPaymentIntentCreated:
		return b.paymentIntentCreated(ctx)
	case KindPaymentIntentSucceeded:
		return b.paymentIntentSucceeded(ctx)
	case KindInvoicePaid:
		return b.invoicePaid(ctx)
	case KindInvoicePaymentFailed:
		return b.invoicePaymentFailed(ctx)
	case KindInvoiceVoided:
		return b.invoiceVoided(ctx)
	case KindCheckoutSessionCompleted:
		return b.checkoutSessionCompleted(ctx)
	case KindSubscriptionUpdated:
		return b.subscriptionChanged(ctx, false)
	case KindSubscriptionDeleted:
		return b.subscriptionChanged(ctx, true)
	case KindTransferCreated:
		return b.transferCreated(ctx)
	case KindChargeRefunded:
		return b.chargeRefunded(ctx)
	case KindPayoutPaid:
		return b.payoutPaid(ctx)
	case KindDisputeCreated, KindDisputeUpdated, KindDisputeClosed:
		return b.disputeChanged(ctx, kind)
	case KindUnhandled:
		return nil
	}
	return errors.New("no handler for event kind " + kind.String())
}

// branch is the set of transaction-bound collaborators one event runs with.
type branch struct {
	tx       *gorm.DB
	event    *stripe.Event
	origin   *outbox.SourceRef
	mutator  *settlement.Mutator
	payments *payments.Recorder
	ledger   *ledger.Writer
	invoices *invoices.Service
	orgs     *organizations.Service
	billing  *billing.Service
	disputes *disputes.Service
	notify   *notifications.Enqueuer
	logg     *logger.Logger
	now      time.Time
}

func (s *Service) bind(tx *gorm.DB, event *stripe.Event) *branch {
	return &branch{
		tx:       tx,
		event:    event,
		origin:   &outbox.SourceRef{StripeEventID: event.ID, StripeEventType: string(event.Type)},
		mutator:  s.mutator.WithTx(tx),
		payments: s.payments.WithTx(tx),
		ledger:   s.ledger.WithTx(tx),
		invoices: s.invoices.WithTx(tx),
		orgs:     s.orgs.WithTx(tx),
		billing:  s.billing.WithTx(tx),
		disputes: s.disputes.WithTx(tx),
		notify:   s.notify,
		logg:     s.logg,
		now:      s.now(),
	}
}

// occurredAt is the event's creation time, or now when Stripe omitted it.
func (b *branch) occurredAt() time.Time {
	return unixTime(b.event.Created, b.now)
}
