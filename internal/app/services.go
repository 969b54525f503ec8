// Package app assembles the domain services shared by the api and worker
// binaries.
package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/homebase-app/homebase-backend/internal/billing"
	"github.com/homebase-app/homebase-backend/internal/bookings"
	"github.com/homebase-app/homebase-backend/internal/checkout"
	"github.com/homebase-app/homebase-backend/internal/disputes"
	"github.com/homebase-app/homebase-backend/internal/fees"
	"github.com/homebase-app/homebase-backend/internal/invoices"
	"github.com/homebase-app/homebase-backend/internal/ledger"
	"github.com/homebase-app/homebase-backend/internal/notifications"
	"github.com/homebase-app/homebase-backend/internal/organizations"
	"github.com/homebase-app/homebase-backend/internal/payments"
	"github.com/homebase-app/homebase-backend/internal/reconcile"
	"github.com/homebase-app/homebase-backend/internal/settlement"
	"github.com/homebase-app/homebase-backend/internal/stripeevents"
	stripewebhook "github.com/homebase-app/homebase-backend/internal/webhooks/stripe"
	"github.com/homebase-app/homebase-backend/pkg/config"
	"github.com/homebase-app/homebase-backend/pkg/db"
	"github.com/homebase-app/homebase-backend/pkg/logger"
	"github.com/homebase-app/homebase-backend/pkg/metrics"
	"github.com/homebase-app/homebase-backend/pkg/outbox"
	"github.com/homebase-app/homebase-backend/pkg/redis"
	stripeapi "github.com/homebase-app/homebase-backend/pkg/stripe"
)

// Services holds the wired domain graph.
type Services struct {
	Outbox        *outbox.Service
	OutboxRepo    *outbox.Repository
	Organizations *organizations.Service
	Invoices      *invoices.Service
	Ledger        *ledger.Writer
	Settlement    *settlement.Mutator
	Webhooks      *stripewebhook.Service
	StripeEvents  stripeevents.Repository
	Metrics       *metrics.WebhookMetrics
	Reconcile     *reconcile.Service
	Checkout      *checkout.Service
}

// Params are the infrastructure clients the graph is built on. Redis and
// Registerer are optional.
type Params struct {
	Config     *config.Config
	DB         *db.Client
	Redis      *redis.Client
	Registerer prometheus.Registerer
	Logger     *logger.Logger
}

// NewServices builds every domain service from the infrastructure clients.
func NewServices(ctx context.Context, params Params) (*Services, error) {
	cfg, dbClient, logg := params.Config, params.DB, params.Logger
	if cfg == nil || dbClient == nil {
		return nil, fmt.Errorf("config and database required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	conn := dbClient.DB()

	resolver, err := fees.NewResolver(fees.NewRepository(conn), fees.DefaultPlanTable(), cfg.Fees.DefaultRate)
	if err != nil {
		return nil, fmt.Errorf("fee resolver: %w", err)
	}
	writer, err := ledger.NewWriter(ledger.NewRepository(conn), logg)
	if err != nil {
		return nil, fmt.Errorf("ledger writer: %w", err)
	}
	recorder, err := payments.NewRecorder(payments.RecorderParams{
		Repo:     payments.NewRepository(conn),
		Ledger:   writer,
		Resolver: resolver,
		Logger:   logg,
	})
	if err != nil {
		return nil, fmt.Errorf("payments recorder: %w", err)
	}
	invoiceSvc, err := invoices.NewService(invoices.NewRepository(conn), logg)
	if err != nil {
		return nil, fmt.Errorf("invoices service: %w", err)
	}
	orgs, err := organizations.NewService(organizations.NewRepository(conn), logg)
	if err != nil {
		return nil, fmt.Errorf("organizations service: %w", err)
	}
	billingSvc, err := billing.NewService(billing.ServiceParams{
		Repo:          billing.NewRepository(conn),
		Organizations: orgs,
		Resolver:      resolver,
		Logger:        logg,
	})
	if err != nil {
		return nil, fmt.Errorf("billing service: %w", err)
	}
	outboxRepo := outbox.NewRepository(conn)
	outboxSvc := outbox.NewService(outboxRepo, logg)
	enqueuer, err := notifications.NewEnqueuer(outboxSvc, logg)
	if err != nil {
		return nil, fmt.Errorf("notifications enqueuer: %w", err)
	}
	mutator, err := settlement.New(settlement.Params{
		Payments:      recorder,
		Ledger:        writer,
		Invoices:      invoiceSvc,
		Bookings:      bookings.NewService(conn, logg),
		Organizations: orgs,
		Notifications: enqueuer,
		Logger:        logg,
	})
	if err != nil {
		return nil, fmt.Errorf("settlement mutator: %w", err)
	}

	eventsRepo := stripeevents.NewRepository(conn)
	guardParams := stripewebhook.GuardParams{
		Repo:     eventsRepo,
		LeaseTTL: cfg.Webhook.InFlightTTL,
		Logger:   logg,
	}
	if params.Redis != nil {
		guardParams.Leases = params.Redis
	}
	guard, err := stripewebhook.NewGuard(guardParams)
	if err != nil {
		return nil, fmt.Errorf("webhook guard: %w", err)
	}
	var webhookMetrics *metrics.WebhookMetrics
	var reconcileMetrics *metrics.ReconcileMetrics
	if params.Registerer != nil {
		webhookMetrics = metrics.NewWebhookMetrics(params.Registerer)
		reconcileMetrics = metrics.NewReconcileMetrics(params.Registerer)
	}
	webhooks, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Verifier:          stripewebhook.NewVerifier(cfg.Stripe),
		Guard:             guard,
		TransactionRunner: dbClient,
		Settlement:        mutator,
		Payments:          recorder,
		Ledger:            writer,
		Invoices:          invoiceSvc,
		Organizations:     orgs,
		Billing:           billingSvc,
		Disputes:          disputes.NewService(conn),
		Notifications:     enqueuer,
		Metrics:           webhookMetrics,
		Logger:            logg,
	})
	if err != nil {
		return nil, fmt.Errorf("webhook service: %w", err)
	}

	stripeClient, err := stripeapi.NewClient(ctx, cfg.Stripe, nil, logg)
	if err != nil {
		return nil, fmt.Errorf("stripe client: %w", err)
	}
	reconcileSvc, err := reconcile.NewService(reconcile.Params{
		Stripe:            stripeClient,
		TransactionRunner: dbClient,
		Settlement:        mutator,
		Payments:          recorder,
		Organizations:     orgs,
		Config:            cfg.Reconcile,
		Metrics:           reconcileMetrics,
		Logger:            logg,
	})
	if err != nil {
		return nil, fmt.Errorf("reconcile service: %w", err)
	}
	checkoutSvc, err := checkout.NewService(checkout.ServiceParams{
		Stripe:        stripeClient,
		Invoices:      invoiceSvc,
		Organizations: orgs,
		Fees:          resolver,
		SuccessURL:    cfg.Stripe.CheckoutSuccessURL,
		CancelURL:     cfg.Stripe.CheckoutCancelURL,
		Logger:        logg,
	})
	if err != nil {
		return nil, fmt.Errorf("checkout service: %w", err)
	}

	return &Services{
		Outbox:        outboxSvc,
		OutboxRepo:    outboxRepo,
		Organizations: orgs,
		Invoices:      invoiceSvc,
		Ledger:        writer,
		Settlement:    mutator,
		Webhooks:      webhooks,
		StripeEvents:  eventsRepo,
		Metrics:       webhookMetrics,
		Reconcile:     reconcileSvc,
		Checkout:      checkoutSvc,
	}, nil
}
