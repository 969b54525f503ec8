package routes

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/homebase-app/homebase-backend/internal/checkout"
	"github.com/homebase-app/homebase-backend/internal/ledger"
	"github.com/homebase-app/homebase-backend/internal/reconcile"
	stripewebhook "github.com/homebase-app/homebase-backend/internal/webhooks/stripe"
	"github.com/homebase-app/homebase-backend/pkg/auth"
	"github.com/homebase-app/homebase-backend/pkg/config"
	"github.com/homebase-app/homebase-backend/pkg/enums"
	"github.com/homebase-app/homebase-backend/pkg/logger"
	"github.com/homebase-app/homebase-backend/pkg/pagination"
)

type stubWebhooks struct{ calls int }

func (s *stubWebhooks) Handle(context.Context, []byte, string) (stripewebhook.Result, error) {
	s.calls++
	return stripewebhook.Result{EventID: "evt_1", Source: enums.WebhookSourcePlatform}, nil
}

func (s *stubWebhooks) Configured() bool { return true }

type stubReconcile struct{ job string }

func (s *stubReconcile) Run(_ context.Context, job string, _ reconcile.Options) (reconcile.Report, error) {
	s.job = job
	return reconcile.Report{Job: job}, nil
}

type stubCheckout struct{ calls int }

func (s *stubCheckout) CreateInvoiceLink(context.Context, checkout.InvoiceLinkInput) (checkout.InvoiceLink, error) {
	s.calls++
	return checkout.InvoiceLink{SessionID: "cs_1"}, nil
}

type stubLedger struct{ calls int }

func (s *stubLedger) ListForProvider(context.Context, uuid.UUID, pagination.Params) (ledger.Page, error) {
	s.calls++
	return ledger.Page{}, nil
}

type env struct {
	handler   http.Handler
	cfg       *config.Config
	webhooks  *stubWebhooks
	reconcile *stubReconcile
	checkout  *stubCheckout
	ledger    *stubLedger
}

func newEnv(t *testing.T) env {
	t.Helper()
	cfg := &config.Config{
		App: config.AppConfig{Env: "dev", CORSOrigins: "*"},
		JWT: config.JWTConfig{Secret: "secret", Issuer: "homebase"},
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "homebase_test_total"}))
	e := env{cfg: cfg, webhooks: &stubWebhooks{}, reconcile: &stubReconcile{}, checkout: &stubCheckout{}, ledger: &stubLedger{}}
	e.handler = NewRouter(Params{
		Config:    cfg,
		Logger:    logger.Nop(),
		Webhooks:  e.webhooks,
		Reconcile: e.reconcile,
		Checkout:  e.checkout,
		Ledger:    e.ledger,
		Gatherer:  reg,
	})
	return e
}

func (e env) do(method, path, token string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Stripe-Signature", "t=1,v1=abc")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e env) token(t *testing.T, role enums.MemberRole, orgID *uuid.UUID) string {
	t.Helper()
	token, err := auth.MintAccessToken(e.cfg.JWT, time.Now(), time.Hour, auth.AccessTokenPayload{UserID: uuid.New(), OrgID: orgID, Role: role})
	require.NoError(t, err)
	return token
}

func TestWebhookRoutesAndAlias(t *testing.T) {
	e := newEnv(t)
	for _, path := range []string{"/api/v1/webhooks/stripe", "/functions/v1/stripe-webhook"} {
		rec := e.do(http.MethodPost, path, "", []byte(`{}`))
		require.Equal(t, http.StatusOK, rec.Code, path)
		require.NotEmpty(t, rec.Header().Get("X-Request-Id"))
	}
	require.Equal(t, 2, e.webhooks.calls)
	require.Equal(t, http.StatusMethodNotAllowed, e.do(http.MethodDelete, "/api/v1/webhooks/stripe", "", nil).Code)
	require.Equal(t, http.StatusOK, e.do(http.MethodGet, "/functions/v1/stripe-webhook", "", nil).Code)
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	e := newEnv(t)
	path := "/api/admin/v1/reconcile/" + reconcile.JobSyncBalance

	require.Equal(t, http.StatusUnauthorized, e.do(http.MethodPost, path, "", nil).Code)
	orgID := uuid.New()
	require.Equal(t, http.StatusForbidden, e.do(http.MethodPost, path, e.token(t, enums.MemberRoleOwner, &orgID), nil).Code)

	rec := e.do(http.MethodPost, path, e.token(t, enums.MemberRoleAdmin, nil), []byte(`{"days_back":7}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, reconcile.JobSyncBalance, e.reconcile.job)
}

func TestProviderRoutesRequireOrganization(t *testing.T) {
	e := newEnv(t)
	path := "/api/v1/invoices/" + uuid.NewString() + "/payment-link"

	require.Equal(t, http.StatusForbidden, e.do(http.MethodPost, path, e.token(t, enums.MemberRoleStaff, nil), nil).Code)
	orgID := uuid.New()
	require.Equal(t, http.StatusCreated, e.do(http.MethodPost, path, e.token(t, enums.MemberRoleOwner, &orgID), nil).Code)
	require.Equal(t, 1, e.checkout.calls)
	require.Equal(t, http.StatusOK, e.do(http.MethodGet, "/api/v1/ledger", e.token(t, enums.MemberRoleOwner, &orgID), nil).Code)
	require.Equal(t, http.StatusOK, e.do(http.MethodGet, "/api/admin/v1/organizations/"+orgID.String()+"/ledger", e.token(t, enums.MemberRoleAdmin, nil), nil).Code)
	require.Equal(t, 2, e.ledger.calls)
}

func TestOperationalRoutes(t *testing.T) {
	e := newEnv(t)
	require.Equal(t, http.StatusOK, e.do(http.MethodGet, "/health/live", "", nil).Code)
	require.Equal(t, http.StatusOK, e.do(http.MethodGet, "/health/ready", "", nil).Code)

	rec := e.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "homebase_test_total")

	rec = e.do(http.MethodGet, "/nope", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "NOT_FOUND")
}
