// Package stripe is a small form-encoded REST client for the handful of
// Stripe endpoints the reconciliation jobs and checkout creation need.
// Responses decode into stripe-go's types so the webhook and the jobs share
// one object model.
package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84"

	"github.com/homebase-app/homebase-backend/pkg/config"
	pkgerrors "github.com/homebase-app/homebase-backend/pkg/errors"
	"github.com/homebase-app/homebase-backend/pkg/logger"
)

const (
	testEnv = "test"
	liveEnv = "live"

	defaultBaseURL = "https://api.stripe.com"
	maxPageSize    = 100
)

var (
	errAPIKeyRequired   = errors.New("stripe api key is required")
	errInvalidStripeEnv = fmt.Errorf("stripe environment must be %q or %q", testEnv, liveEnv)
)

// Client calls the Stripe REST API with the platform secret key.
type Client struct {
	apiKey      string
	baseURL     string
	environment string
	http        *http.Client
	logg        *logger.Logger
}

// NewClient validates the key against the configured environment.
func NewClient(ctx context.Context, cfg config.StripeConfig, httpClient *http.Client, logg *logger.Logger) (*Client, error) {
	env, err := normalizeEnv(cfg.Environment())
	if err != nil {
		return nil, err
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	if err := validateAPIKey(env, apiKey); err != nil {
		return nil, err
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = defaultBaseURL
	}
	if httpClient == nil {
		timeout := cfg.HTTPTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	if logg == nil {
		logg = logger.Nop()
	}
	logg.Info(ctx, fmt.Sprintf("stripe client initialized (%s)", env))
	return &Client{apiKey: apiKey, baseURL: base, environment: env, http: httpClient, logg: logg}, nil
}

// Environment reports the normalized Stripe environment in use.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// ListParams are the cursor and filter parameters shared by list endpoints.
type ListParams struct {
	// Account lists on behalf of a connected account (Stripe-Account header).
	Account       string
	CreatedGTE    time.Time
	StartingAfter string
	Limit         int
	Type          string
	Status        string
	Expand        []string
}

func (p ListParams) values() url.Values {
	v := url.Values{}
	limit := p.Limit
	if limit <= 0 || limit > maxPageSize {
		limit = maxPageSize
	}
	v.Set("limit", strconv.Itoa(limit))
	if !p.CreatedGTE.IsZero() {
		v.Set("created[gte]", strconv.FormatInt(p.CreatedGTE.Unix(), 10))
	}
	if p.StartingAfter != "" {
		v.Set("starting_after", p.StartingAfter)
	}
	if p.Type != "" {
		v.Set("type", p.Type)
	}
	if p.Status != "" {
		v.Set("status", p.Status)
	}
	for _, field := range p.Expand {
		v.Add("expand[]", field)
	}
	return v
}

// ListBalanceTransactions returns one page of balance transactions.
func (c *Client) ListBalanceTransactions(ctx context.Context, p ListParams) (*stripe.BalanceTransactionList, error) {
	var out stripe.BalanceTransactionList
	if err := c.do(ctx, http.MethodGet, "/v1/balance_transactions", p.Account, p.values(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListPayouts returns one page of payouts.
func (c *Client) ListPayouts(ctx context.Context, p ListParams) (*stripe.PayoutList, error) {
	var out stripe.PayoutList
	if err := c.do(ctx, http.MethodGet, "/v1/payouts", p.Account, p.values(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetBalance returns the balance of the platform, or of account when set.
func (c *Client) GetBalance(ctx context.Context, account string) (*stripe.Balance, error) {
	var out stripe.Balance
	if err := c.do(ctx, http.MethodGet, "/v1/balance", account, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetAccount returns a connected account.
func (c *Client) GetAccount(ctx context.Context, accountID string) (*stripe.Account, error) {
	if strings.TrimSpace(accountID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stripe account id required")
	}
	var out stripe.Account
	if err := c.do(ctx, http.MethodGet, "/v1/accounts/"+url.PathEscape(accountID), "", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetCharge returns a platform charge, used when a refund arrives without
// its charge expanded.
func (c *Client) GetCharge(ctx context.Context, chargeID string) (*stripe.Charge, error) {
	if strings.TrimSpace(chargeID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stripe charge id required")
	}
	var out stripe.Charge
	if err := c.do(ctx, http.MethodGet, "/v1/charges/"+url.PathEscape(chargeID), "", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateCheckoutSession posts a form-encoded checkout session.
func (c *Client) CreateCheckoutSession(ctx context.Context, form url.Values) (*stripe.CheckoutSession, error) {
	var out stripe.CheckoutSession
	if err := c.do(ctx, http.MethodPost, "/v1/checkout/sessions", "", form, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type errorEnvelope struct {
	Error *stripe.Error `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path, account string, params url.Values, out any) error {
	endpoint := c.baseURL + path
	var body io.Reader
	encoded := params.Encode()
	if method == http.MethodGet {
		if encoded != "" {
			endpoint += "?" + encoded
		}
	} else {
		body = strings.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build stripe request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if account != "" {
		req.Header.Set("Stripe-Account", account)
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("stripe %s %s", method, path))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read stripe response")
	}
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"stripe_path":   path,
		"stripe_status": resp.StatusCode,
		"duration_ms":   time.Since(started).Milliseconds(),
	})
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := decodeError(raw, resp)
		c.logg.Warn(c.logg.WithField(logCtx, "stripe_error", apiErr.Msg), "stripe request failed")
		return pkgerrors.Wrap(pkgerrors.CodeDependency, apiErr, fmt.Sprintf("stripe %s %s", method, path))
	}
	c.logg.Debug(logCtx, "stripe request completed")

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode stripe response")
	}
	return nil
}

func decodeError(raw []byte, resp *http.Response) *stripe.Error {
	var envelope errorEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil || envelope.Error == nil {
		envelope.Error = &stripe.Error{Msg: strings.TrimSpace(string(raw))}
	}
	envelope.Error.HTTPStatusCode = resp.StatusCode
	envelope.Error.RequestID = resp.Header.Get("Request-Id")
	return envelope.Error
}

func normalizeEnv(raw string) (string, error) {
	env := strings.TrimSpace(strings.ToLower(raw))
	if env == "" {
		env = testEnv
	}
	switch env {
	case testEnv, liveEnv:
		return env, nil
	default:
		return "", errInvalidStripeEnv
	}
}

func validateAPIKey(env, key string) error {
	switch env {
	case testEnv:
		if strings.HasPrefix(key, "sk_test") || strings.HasPrefix(key, "rk_test") {
			return nil
		}
		return fmt.Errorf("stripe environment %q requires a test secret key (sk_test/rk_test)", testEnv)
	case liveEnv:
		if strings.HasPrefix(key, "sk_live") || strings.HasPrefix(key, "rk_live") {
			return nil
		}
		return fmt.Errorf("stripe environment %q requires a live secret key (sk_live/rk_live)", liveEnv)
	default:
		return errInvalidStripeEnv
	}
}
