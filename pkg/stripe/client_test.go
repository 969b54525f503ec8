package stripe

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"

	"github.com/homebase-app/homebase-backend/pkg/config"
	pkgerrors "github.com/homebase-app/homebase-backend/pkg/errors"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient(context.Background(), config.StripeConfig{APIKey: "sk_test_123", Env: "test", BaseURL: srv.URL + "/"}, srv.Client(), nil)
	require.NoError(t, err)
	return c
}

func TestNewClientValidatesKeyAndEnv(t *testing.T) {
	_, err := NewClient(context.Background(), config.StripeConfig{}, nil, nil)
	require.ErrorIs(t, err, errAPIKeyRequired)

	_, err = NewClient(context.Background(), config.StripeConfig{APIKey: "sk_live_1", Env: "test"}, nil, nil)
	require.Error(t, err)

	_, err = NewClient(context.Background(), config.StripeConfig{APIKey: "sk_test_1", Env: "staging"}, nil, nil)
	require.ErrorIs(t, err, errInvalidStripeEnv)

	c, err := NewClient(context.Background(), config.StripeConfig{APIKey: "rk_live_1", Env: "LIVE"}, nil, nil)
	require.NoError(t, err)
	require.Equal(t, liveEnv, c.Environment())
	require.Equal(t, defaultBaseURL, c.baseURL)
}

func TestListBalanceTransactionsSendsCursorAndExpand(t *testing.T) {
	var query url.Values
	var auth, account string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/balance_transactions", r.URL.Path)
		query = r.URL.Query()
		auth = r.Header.Get("Authorization")
		account = r.Header.Get("Stripe-Account")
		_, _ = io.WriteString(w, `{"object":"list","has_more":true,"data":[
			{"id":"txn_1","type":"charge","amount":10000,"fee":320,"created":1767225600,
			 "source":{"id":"ch_1","object":"charge","amount":10000,"metadata":{"org_id":"o"}}}
		]}`)
	})

	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	page, err := c.ListBalanceTransactions(context.Background(), ListParams{
		CreatedGTE:    since,
		StartingAfter: "txn_0",
		Type:          "charge",
		Expand:        []string{"data.source"},
	})
	require.NoError(t, err)
	require.Equal(t, "Bearer sk_test_123", auth)
	require.Empty(t, account)
	require.Equal(t, "100", query.Get("limit"))
	require.Equal(t, "txn_0", query.Get("starting_after"))
	require.Equal(t, "1767225600", query.Get("created[gte]"))
	require.Equal(t, []string{"data.source"}, query["expand[]"])

	require.True(t, page.HasMore)
	require.Len(t, page.Data, 1)
	txn := page.Data[0]
	require.Equal(t, stripe.BalanceTransactionTypeCharge, txn.Type)
	require.NotNil(t, txn.Source)
	require.NotNil(t, txn.Source.Charge)
	require.Equal(t, "ch_1", txn.Source.Charge.ID)
	require.Equal(t, "o", txn.Source.Charge.Metadata["org_id"])
}

func TestConnectedAccountCallsUseStripeAccountHeader(t *testing.T) {
	var accounts []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		accounts = append(accounts, r.Header.Get("Stripe-Account"))
		switch r.URL.Path {
		case "/v1/balance":
			_, _ = io.WriteString(w, `{"object":"balance","available":[{"amount":1200,"currency":"usd"}],"pending":[{"amount":300,"currency":"usd"}]}`)
		case "/v1/payouts":
			require.Equal(t, "paid", r.URL.Query().Get("status"))
			_, _ = io.WriteString(w, `{"object":"list","has_more":false,"data":[{"id":"po_1","amount":900,"currency":"usd","status":"paid","arrival_date":1767225600}]}`)
		case "/v1/accounts/acct_1":
			_, _ = io.WriteString(w, `{"id":"acct_1","object":"account","charges_enabled":true,"payouts_enabled":false,"details_submitted":true}`)
		default:
			http.NotFound(w, r)
		}
	})

	balance, err := c.GetBalance(context.Background(), "acct_1")
	require.NoError(t, err)
	require.EqualValues(t, 1200, balance.Available[0].Amount)

	payouts, err := c.ListPayouts(context.Background(), ListParams{Account: "acct_1", Status: "paid"})
	require.NoError(t, err)
	require.Equal(t, "po_1", payouts.Data[0].ID)

	acct, err := c.GetAccount(context.Background(), "acct_1")
	require.NoError(t, err)
	require.True(t, acct.ChargesEnabled)
	require.False(t, acct.PayoutsEnabled)

	require.Equal(t, []string{"acct_1", "acct_1", ""}, accounts)

	_, err = c.GetAccount(context.Background(), " ")
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
}

func TestGetChargeReadsRefundTotals(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/charges/ch_1", r.URL.Path)
		require.Empty(t, r.Header.Get("Stripe-Account"))
		_, _ = io.WriteString(w, `{"id":"ch_1","object":"charge","amount":5000,"amount_refunded":3000,"refunded":false,"currency":"usd"}`)
	})

	charge, err := c.GetCharge(context.Background(), "ch_1")
	require.NoError(t, err)
	require.EqualValues(t, 3000, charge.AmountRefunded)
	require.False(t, charge.Refunded)

	_, err = c.GetCharge(context.Background(), "")
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
}

func TestCreateCheckoutSessionPostsForm(t *testing.T) {
	var form url.Values
	var contentType string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		contentType = r.Header.Get("Content-Type")
		require.NoError(t, r.ParseForm())
		form = r.PostForm
		_, _ = io.WriteString(w, `{"id":"cs_1","object":"checkout.session","url":"https://checkout.stripe.com/c/cs_1"}`)
	})

	session, err := c.CreateCheckoutSession(context.Background(), url.Values{
		"mode": {"payment"},
		"payment_intent_data[application_fee_amount]": {"300"},
	})
	require.NoError(t, err)
	require.Equal(t, "cs_1", session.ID)
	require.Equal(t, "application/x-www-form-urlencoded", contentType)
	require.Equal(t, "300", form.Get("payment_intent_data[application_fee_amount]"))
}

func TestAPIErrorsAreDependencyErrors(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Request-Id", "req_42")
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = io.WriteString(w, `{"error":{"type":"invalid_request_error","message":"No such account"}}`)
	})

	_, err := c.GetBalance(context.Background(), "acct_missing")
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeDependency, pkgerrors.CodeOf(err))

	var apiErr *stripe.Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusPaymentRequired, apiErr.HTTPStatusCode)
	require.Equal(t, "No such account", apiErr.Msg)
	require.Equal(t, "req_42", apiErr.RequestID)
}
