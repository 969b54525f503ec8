package invoices

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/homebase-app/homebase-backend/api/middleware"
	"github.com/homebase-app/homebase-backend/api/responses"
	"github.com/homebase-app/homebase-backend/api/validators"
	"github.com/homebase-app/homebase-backend/internal/bookings"
	"github.com/homebase-app/homebase-backend/internal/checkout"
	pkgerrors "github.com/homebase-app/homebase-backend/pkg/errors"
	"github.com/homebase-app/homebase-backend/pkg/logger"
)

const maxURLLength = 2048

type LinkCreator interface {
	CreateInvoiceLink(ctx context.Context, in checkout.InvoiceLinkInput) (checkout.InvoiceLink, error)
}

type paymentLinkRequest struct {
	PaymentKind string `json:"payment_kind" validate:"omitempty,oneof=full deposit"`
	AmountCents int64  `json:"amount_cents" validate:"omitempty,min=50"`
	SuccessURL  string `json:"success_url" validate:"omitempty,url"`
	CancelURL   string `json:"cancel_url" validate:"omitempty,url"`
}

func (r *paymentLinkRequest) Sanitize() {
	r.PaymentKind = validators.SanitizeString(r.PaymentKind, 16)
	r.SuccessURL = validators.SanitizeString(r.SuccessURL, maxURLLength)
	r.CancelURL = validators.SanitizeString(r.CancelURL, maxURLLength)
}

// CreatePaymentLink creates a Stripe Checkout session for one of the
// caller's pending invoices.
func CreatePaymentLink(svc LinkCreator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		orgID, err := uuid.Parse(middleware.OrgIDFromContext(ctx))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "organization scope required"))
			return
		}
		invoiceID, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "invoiceId")))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid invoice id"))
			return
		}

		var body paymentLinkRequest
		if err := validators.DecodeOptionalJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		link, err := svc.CreateInvoiceLink(ctx, checkout.InvoiceLinkInput{
			InvoiceID:   invoiceID,
			OrgID:       orgID,
			PaymentKind: bookings.ParsePaymentKind(body.PaymentKind),
			AmountCents: body.AmountCents,
			SuccessURL:  body.SuccessURL,
			CancelURL:   body.CancelURL,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, link)
	}
}
