package webhooks

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/homebase-app/homebase-backend/api/responses"
	stripewebhook "github.com/homebase-app/homebase-backend/internal/webhooks/stripe"
	pkgerrors "github.com/homebase-app/homebase-backend/pkg/errors"
	"github.com/homebase-app/homebase-backend/pkg/logger"
)

// DefaultMaxBodyBytes caps a delivery when no limit is configured.
const DefaultMaxBodyBytes int64 = 1 << 20

type StripeWebhookService interface {
	Handle(ctx context.Context, payload []byte, signature string) (stripewebhook.Result, error)
	Configured() bool
}

type stripeWebhookResponse struct {
	OK        bool   `json:"ok"`
	Received  bool   `json:"received"`
	Source    string `json:"source"`
	EventType string `json:"event_type"`
	EventID   string `json:"event_id"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

type stripeWebhookDiagnostics struct {
	OK         bool   `json:"ok"`
	Endpoint   string `json:"endpoint"`
	Configured bool   `json:"configured"`
	Method     string `json:"method"`
}

// StripeWebhook serves the platform and Connect webhook endpoint. POST
// deliveries are verified and applied, GET reports whether secrets are
// configured, OPTIONS answers preflights.
func StripeWebhook(svc StripeWebhookService, maxBodyBytes int64, logg *logger.Logger) http.HandlerFunc {
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		switch r.Method {
		case http.MethodOptions:
			w.WriteHeader(http.StatusNoContent)
			return
		case http.MethodGet:
			configured := svc != nil && svc.Configured()
			responses.WriteJSON(w, http.StatusOK, stripeWebhookDiagnostics{
				OK:         true,
				Endpoint:   "stripe-webhook",
				Configured: configured,
				Method:     http.MethodPost,
			})
			return
		case http.MethodPost:
		default:
			w.Header().Set("Allow", "GET, POST, OPTIONS")
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeMethodNotAllowed, "method not allowed"))
			return
		}

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "payload too large"))
				return
			}
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		result, err := svc.Handle(ctx, payload, r.Header.Get("Stripe-Signature"))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteJSON(w, http.StatusOK, stripeWebhookResponse{
			OK:        true,
			Received:  true,
			Source:    result.Source.String(),
			EventType: result.EventType,
			EventID:   result.EventID,
			Duplicate: result.Duplicate,
		})
	}
}
