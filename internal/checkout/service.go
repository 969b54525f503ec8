// Package checkout creates Stripe Checkout sessions for HomeBase invoices.
// The platform fee is resolved here and stamped on the session so the
// webhook settles the payment with the fee the client was shown.
package checkout

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"

	"github.com/homebase-app/homebase-backend/internal/bookings"
	"github.com/homebase-app/homebase-backend/internal/fees"
	stripewebhook "github.com/homebase-app/homebase-backend/internal/webhooks/stripe"
	"github.com/homebase-app/homebase-backend/pkg/db/models"
	"github.com/homebase-app/homebase-backend/pkg/enums"
	pkgerrors "github.com/homebase-app/homebase-backend/pkg/errors"
	"github.com/homebase-app/homebase-backend/pkg/logger"
)

// MetaFeeRate records the rate the application fee was computed with.
const MetaFeeRate = "fee_rate"

type sessionCreator interface {
	CreateCheckoutSession(ctx context.Context, form url.Values) (*stripe.CheckoutSession, error)
}

type invoiceLoader interface {
	Find(ctx context.Context, id uuid.UUID) (*models.Invoice, error)
}

type organizationLoader interface {
	Find(ctx context.Context, id uuid.UUID) (*models.Organization, error)
}

type rateResolver interface {
	ResolveRate(ctx context.Context, providerID uuid.UUID) (fees.Rate, error)
}

type ServiceParams struct {
	Stripe        sessionCreator
	Invoices      invoiceLoader
	Organizations organizationLoader
	Fees          rateResolver
	SuccessURL    string
	CancelURL     string
	Logger        *logger.Logger
}

type Service struct {
	stripe     sessionCreator
	invoices   invoiceLoader
	orgs       organizationLoader
	fees       rateResolver
	successURL string
	cancelURL  string
	logg       *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Stripe == nil:
		return nil, fmt.Errorf("stripe client required")
	case params.Invoices == nil:
		return nil, fmt.Errorf("invoices service required")
	case params.Organizations == nil:
		return nil, fmt.Errorf("organizations service required")
	case params.Fees == nil:
		return nil, fmt.Errorf("fee resolver required")
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	return &Service{
		stripe:     params.Stripe,
		invoices:   params.Invoices,
		orgs:       params.Organizations,
		fees:       params.Fees,
		successURL: strings.TrimSpace(params.SuccessURL),
		cancelURL:  strings.TrimSpace(params.CancelURL),
		logg:       params.Logger,
	}, nil
}

// InvoiceLinkInput asks for a payment link for an invoice. AmountCents
// overrides the invoice amount for deposits; zero charges the full amount.
type InvoiceLinkInput struct {
	InvoiceID   uuid.UUID
	OrgID       uuid.UUID
	PaymentKind bookings.PaymentKind
	AmountCents int64
	SuccessURL  string
	CancelURL   string
}

// InvoiceLink is the created session and the fee stamped on it.
type InvoiceLink struct {
	SessionID           string          `json:"session_id"`
	URL                 string          `json:"url"`
	AmountCents         int64           `json:"amount_cents"`
	ApplicationFeeCents int64           `json:"application_fee_cents"`
	FeeRate             decimal.Decimal `json:"fee_rate"`
	RateSource          fees.RateSource `json:"rate_source"`
}

// CreateInvoiceLink creates a destination-charge checkout session for a
// pending invoice of a provider whose Connect account can take payments.
func (s *Service) CreateInvoiceLink(ctx context.Context, in InvoiceLinkInput) (InvoiceLink, error) {
	invoice, err := s.invoices.Find(ctx, in.InvoiceID)
	if err != nil {
		return InvoiceLink{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load invoice")
	}
	if invoice == nil || invoice.OrgID != in.OrgID {
		return InvoiceLink{}, pkgerrors.New(pkgerrors.CodeNotFound, "invoice not found")
	}
	if invoice.Status != enums.InvoiceStatusPending {
		return InvoiceLink{}, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("invoice is %s", invoice.Status))
	}

	org, err := s.orgs.Find(ctx, invoice.OrgID)
	if err != nil {
		return InvoiceLink{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load organization")
	}
	if org == nil || org.StripeAccountID == nil || *org.StripeAccountID == "" {
		return InvoiceLink{}, pkgerrors.New(pkgerrors.CodeStateConflict, "provider has no connected stripe account")
	}
	if !org.PaymentsReady {
		return InvoiceLink{}, pkgerrors.New(pkgerrors.CodeStateConflict, "provider cannot accept payments yet")
	}

	amount := invoice.Amount
	if in.AmountCents > 0 {
		if in.AmountCents > invoice.Amount {
			return InvoiceLink{}, pkgerrors.New(pkgerrors.CodeValidation, "amount exceeds invoice total")
		}
		amount = in.AmountCents
	}
	if amount <= 0 {
		return InvoiceLink{}, pkgerrors.New(pkgerrors.CodeValidation, "invoice amount must be positive")
	}

	rate, err := s.fees.ResolveRate(ctx, org.ID)
	if err != nil {
		return InvoiceLink{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve fee rate")
	}
	fee := fees.ApplicationFeeCents(amount, rate.Value)

	kind := in.PaymentKind
	if kind == "" {
		kind = bookings.PaymentKindFull
	}
	meta := map[string]string{
		stripewebhook.MetaInvoiceID:           invoice.ID.String(),
		stripewebhook.MetaOrgID:               org.ID.String(),
		stripewebhook.MetaPaymentType:         string(kind),
		stripewebhook.MetaApplicationFeeCents: strconv.FormatInt(fee, 10),
		MetaFeeRate:                           rate.Value.String(),
	}
	if invoice.JobID != nil {
		meta[stripewebhook.MetaJobID] = invoice.JobID.String()
	}
	if invoice.ClientID != nil {
		meta[stripewebhook.MetaClientID] = invoice.ClientID.String()
	}

	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("client_reference_id", invoice.ID.String())
	form.Set("success_url", firstNonEmpty(in.SuccessURL, s.successURL))
	form.Set("cancel_url", firstNonEmpty(in.CancelURL, s.cancelURL))
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", currencyOf(invoice))
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(amount, 10))
	form.Set("line_items[0][price_data][product_data][name]", lineItemName(org, kind))
	form.Set("payment_intent_data[transfer_data][destination]", *org.StripeAccountID)
	if fee > 0 {
		form.Set("payment_intent_data[application_fee_amount]", strconv.FormatInt(fee, 10))
	}
	for key, value := range meta {
		form.Set("metadata["+key+"]", value)
		form.Set("payment_intent_data[metadata]["+key+"]", value)
	}
	if form.Get("success_url") == "" || form.Get("cancel_url") == "" {
		return InvoiceLink{}, pkgerrors.New(pkgerrors.CodeValidation, "success and cancel urls are required")
	}

	session, err := s.stripe.CreateCheckoutSession(ctx, form)
	if err != nil {
		return InvoiceLink{}, err
	}

	logCtx := s.logg.WithFields(s.logg.WithOrgID(ctx, org.ID.String()), map[string]any{
		"invoice_id":            invoice.ID.String(),
		"session_id":            session.ID,
		"application_fee_cents": fee,
		"rate_source":           rate.Source,
	})
	s.logg.Info(logCtx, "checkout session created")

	return InvoiceLink{
		SessionID:           session.ID,
		URL:                 session.URL,
		AmountCents:         amount,
		ApplicationFeeCents: fee,
		FeeRate:             rate.Value,
		RateSource:          rate.Source,
	}, nil
}

func lineItemName(org *models.Organization, kind bookings.PaymentKind) string {
	name := "Invoice"
	if kind == bookings.PaymentKindDeposit {
		name = "Deposit"
	}
	if org.Name != "" {
		name += " from " + org.Name
	}
	return name
}

func currencyOf(invoice *models.Invoice) string {
	if invoice.Currency == "" {
		return "usd"
	}
	return strings.ToLower(invoice.Currency)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
