package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	stripewebhook "github.com/homebase-app/homebase-backend/internal/webhooks/stripe"
	"github.com/homebase-app/homebase-backend/pkg/enums"
	pkgerrors "github.com/homebase-app/homebase-backend/pkg/errors"
)

type fakeStripeWebhookService struct {
	calls      int
	configured bool
	result     stripewebhook.Result
	err        error
	gotSig     string
	gotPayload []byte
}

func (f *fakeStripeWebhookService) Handle(_ context.Context, payload []byte, signature string) (stripewebhook.Result, error) {
	f.calls++
	f.gotSig = signature
	f.gotPayload = payload
	return f.result, f.err
}

func (f *fakeStripeWebhookService) Configured() bool {
	return f.configured
}

func serve(handler http.Handler, method string, body []byte, sig string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/api/v1/webhooks/stripe", bytes.NewReader(body))
	if sig != "" {
		req.Header.Set("Stripe-Signature", sig)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestStripeWebhookAppliesDelivery(t *testing.T) {
	svc := &fakeStripeWebhookService{result: stripewebhook.Result{
		EventID:   "evt_1",
		EventType: "payment_intent.succeeded",
		Source:    enums.WebhookSourceConnect,
	}}
	handler := StripeWebhook(svc, 0, nil)

	rec := serve(handler, http.MethodPost, []byte(`{"id":"evt_1"}`), "t=1,v1=abc")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.gotSig != "t=1,v1=abc" || string(svc.gotPayload) != `{"id":"evt_1"}` {
		t.Fatalf("service received %q / %q", svc.gotSig, svc.gotPayload)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["ok"] != true || body["received"] != true {
		t.Fatalf("unexpected body %v", body)
	}
	if body["event_id"] != "evt_1" || body["event_type"] != "payment_intent.succeeded" {
		t.Fatalf("unexpected event fields %v", body)
	}
	if body["source"] != enums.WebhookSourceConnect.String() {
		t.Fatalf("unexpected source %v", body["source"])
	}
	if _, ok := body["duplicate"]; ok {
		t.Fatalf("duplicate should be omitted on first delivery")
	}
}

func TestStripeWebhookReportsDuplicate(t *testing.T) {
	svc := &fakeStripeWebhookService{result: stripewebhook.Result{EventID: "evt_1", Duplicate: true}}
	rec := serve(StripeWebhook(svc, 0, nil), http.MethodPost, []byte(`{}`), "t=1,v1=abc")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["duplicate"] != true {
		t.Fatalf("expected duplicate flag, got %v", body)
	}
}

func TestStripeWebhookMapsErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"bad signature", pkgerrors.New(pkgerrors.CodeInvalidSignature, "signature does not match"), http.StatusBadRequest},
		{"bad json", pkgerrors.New(pkgerrors.CodeValidation, "invalid stripe event payload"), http.StatusBadRequest},
		{"processing failure", pkgerrors.New(pkgerrors.CodeWebhookRejected, "process charge.refunded"), http.StatusBadRequest},
		{"in flight", pkgerrors.New(pkgerrors.CodeEventInFlight, "event is being processed"), http.StatusConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &fakeStripeWebhookService{err: tc.err}
			rec := serve(StripeWebhook(svc, 0, nil), http.MethodPost, []byte(`{}`), "t=1,v1=abc")
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rec.Code)
			}
		})
	}
}

func TestStripeWebhookRejectsOversizedBody(t *testing.T) {
	svc := &fakeStripeWebhookService{}
	rec := serve(StripeWebhook(svc, 16, nil), http.MethodPost, bytes.Repeat([]byte("x"), 64), "t=1,v1=abc")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if svc.calls != 0 {
		t.Fatalf("service should not see an oversized body")
	}
}

func TestStripeWebhookMethods(t *testing.T) {
	svc := &fakeStripeWebhookService{configured: true}
	handler := StripeWebhook(svc, 0, nil)

	rec := serve(handler, http.MethodGet, nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET: expected 200, got %d", rec.Code)
	}
	var diag map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &diag); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if diag["configured"] != true {
		t.Fatalf("unexpected diagnostics %v", diag)
	}

	if rec := serve(handler, http.MethodOptions, nil, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("OPTIONS: expected 204, got %d", rec.Code)
	}

	rec = serve(handler, http.MethodPut, nil, "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("PUT: expected 405, got %d", rec.Code)
	}
	if rec.Header().Get("Allow") == "" {
		t.Fatalf("405 should carry an Allow header")
	}
	if svc.calls != 0 {
		t.Fatalf("only POST reaches the service")
	}
}
