package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/homebase-app/homebase-backend/api/controllers"
	admincontrollers "github.com/homebase-app/homebase-backend/api/controllers/admin"
	invoicecontrollers "github.com/homebase-app/homebase-backend/api/controllers/invoices"
	ledgercontrollers "github.com/homebase-app/homebase-backend/api/controllers/ledger"
	webhookcontrollers "github.com/homebase-app/homebase-backend/api/controllers/webhooks"
	"github.com/homebase-app/homebase-backend/api/middleware"
	"github.com/homebase-app/homebase-backend/api/responses"
	"github.com/homebase-app/homebase-backend/pkg/config"
	"github.com/homebase-app/homebase-backend/pkg/enums"
	pkgerrors "github.com/homebase-app/homebase-backend/pkg/errors"
	"github.com/homebase-app/homebase-backend/pkg/logger"
)

const (
	reconcileRateWindow = time.Minute
	reconcileRateLimit  = 6
)

type rateLimiterStore interface {
	IncrWithTTL(context.Context, string, time.Duration) (int64, error)
}

// Params carries everything the router mounts. RateLimiter and Gatherer are
// optional.
type Params struct {
	Config      *config.Config
	Logger      *logger.Logger
	Webhooks    webhookcontrollers.StripeWebhookService
	Reconcile   admincontrollers.ReconcileRunner
	Checkout    invoicecontrollers.LinkCreator
	Ledger      ledgercontrollers.Lister
	Readiness   []controllers.Dependency
	RateLimiter rateLimiterStore
	Gatherer    prometheus.Gatherer
}

func NewRouter(p Params) http.Handler {
	cfg, logg := p.Config, p.Logger
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.AllowedOrigins()),
	)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		responses.WriteError(r.Context(), nil, w, pkgerrors.New(pkgerrors.CodeNotFound, "route not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		responses.WriteError(r.Context(), nil, w, pkgerrors.New(pkgerrors.CodeMethodNotAllowed, "method not allowed"))
	})

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, p.Readiness...))
	})
	if p.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(p.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Get("/api/public/ping", controllers.PublicPing())

	stripeWebhook := webhookcontrollers.StripeWebhook(p.Webhooks, cfg.Webhook.MaxBodyBytes, logg)
	r.HandleFunc("/api/v1/webhooks/stripe", stripeWebhook)
	// Path the hosted-function deployment registered with Stripe.
	r.HandleFunc("/functions/v1/stripe-webhook", stripeWebhook)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(logg, enums.MemberRoleOwner, enums.MemberRoleStaff))
		r.Use(middleware.RequireOrg(logg))
		r.Post("/invoices/{invoiceId}/payment-link", invoicecontrollers.CreatePaymentLink(p.Checkout, logg))
		r.Get("/ledger", ledgercontrollers.ProviderLedger(p.Ledger, logg))
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(logg, enums.MemberRoleAdmin))
		r.Get("/ping", controllers.AdminPing())
		r.Get("/v1/organizations/{orgId}/ledger", ledgercontrollers.OrganizationLedger(p.Ledger, logg))
		r.Route("/v1/reconcile", func(r chi.Router) {
			r.Get("/", admincontrollers.ReconcileJobs())
			limit := middleware.RateLimit(middleware.NewRateLimitPolicy("reconcile", reconcileRateWindow, reconcileRateLimit), p.RateLimiter, logg)
			r.With(limit).Post("/{job}", admincontrollers.RunReconcile(p.Reconcile, logg))
		})
	})

	return r
}
