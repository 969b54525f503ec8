package stripewebhook

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/homebase-app/homebase-backend/internal/bookings"
	"github.com/homebase-app/homebase-backend/pkg/enums"
	pkgerrors "github.com/homebase-app/homebase-backend/pkg/errors"
)

// Metadata keys written on Stripe objects by HomeBase checkout creation.
const (
	MetaOrgID               = "org_id"
	MetaUserID              = "user_id"
	MetaPlan                = "plan"
	MetaInvoiceID           = "invoice_id"
	MetaJobID               = "job_id"
	MetaHomeownerID         = "homeowner_id"
	MetaClientID            = "client_id"
	MetaPaymentType         = "payment_type"
	MetaApplicationFeeCents = "application_fee_cents"
)

type metadata map[string]string

func (m metadata) uuid(key string) *uuid.UUID {
	raw := strings.TrimSpace(m[key])
	if raw == "" {
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil
	}
	return &id
}

// homeowner prefers homeowner_id and falls back to client_id.
func (m metadata) homeowner() *uuid.UUID {
	if id := m.uuid(MetaHomeownerID); id != nil {
		return id
	}
	return m.uuid(MetaClientID)
}

func (m metadata) cents(key string) *int64 {
	raw := strings.TrimSpace(m[key])
	if raw == "" {
		return nil
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value < 0 {
		return nil
	}
	return &value
}

func (m metadata) plan() enums.Plan {
	plan, err := enums.ParsePlan(m[MetaPlan])
	if err != nil {
		return ""
	}
	return plan
}

// merge returns a copy of m with other's keys filling the gaps.
func (m metadata) merge(other map[string]string) metadata {
	out := metadata{}
	for k, v := range other {
		out[k] = v
	}
	for k, v := range m {
		if v != "" {
			out[k] = v
		}
	}
	return out
}

func decodeObject(event *stripe.Event, out any) error {
	if event == nil || event.Data == nil || len(event.Data.Raw) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}
	if err := json.Unmarshal(event.Data.Raw, out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode "+string(event.Type)+" object")
	}
	return nil
}

func unixTime(sec int64, fallback time.Time) time.Time {
	if sec <= 0 {
		return fallback
	}
	return time.Unix(sec, 0).UTC()
}

func unixPtr(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}

// expandableID reads a field that is either an id string or an expanded
// object with an id.
type expandableID string

func (e *expandableID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*e = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*e = expandableID(s)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*e = expandableID(obj.ID)
	return nil
}

// invoiceObject is the part of a Stripe invoice the router reads. Older API
// versions put the subscription at the top level, newer ones under
// parent.subscription_details, so both are accepted.
type invoiceObject struct {
	ID            string            `json:"id"`
	AmountPaid    int64             `json:"amount_paid"`
	AmountDue     int64             `json:"amount_due"`
	Currency      string            `json:"currency"`
	Customer      expandableID      `json:"customer"`
	Subscription  expandableID      `json:"subscription"`
	PaymentIntent expandableID      `json:"payment_intent"`
	Charge        expandableID      `json:"charge"`
	Metadata      map[string]string `json:"metadata"`
	Created       int64             `json:"created"`
	Parent        *struct {
		SubscriptionDetails *struct {
			Subscription expandableID      `json:"subscription"`
			Metadata     map[string]string `json:"metadata"`
		} `json:"subscription_details"`
	} `json:"parent"`
	StatusTransitions struct {
		PaidAt int64 `json:"paid_at"`
	} `json:"status_transitions"`
}

func (i invoiceObject) subscriptionID() string {
	if i.Subscription != "" {
		return string(i.Subscription)
	}
	if i.Parent != nil && i.Parent.SubscriptionDetails != nil {
		return string(i.Parent.SubscriptionDetails.Subscription)
	}
	return ""
}

func (i invoiceObject) metadata() metadata {
	meta := metadata(i.Metadata)
	if i.Parent != nil && i.Parent.SubscriptionDetails != nil {
		meta = meta.merge(i.Parent.SubscriptionDetails.Metadata)
	}
	if meta == nil {
		meta = metadata{}
	}
	return meta
}

// PaymentLinks are the HomeBase ids and fee snapshot stamped in a Stripe
// object's metadata at checkout creation.
type PaymentLinks struct {
	OrgID               *uuid.UUID
	JobID               *uuid.UUID
	InvoiceID           *uuid.UUID
	HomeownerID         *uuid.UUID
	Kind                bookings.PaymentKind
	ApplicationFeeCents *int64
}

// ParsePaymentLinks reads PaymentLinks from metadata. Malformed ids are
// treated as absent.
func ParsePaymentLinks(raw map[string]string) PaymentLinks {
	meta := metadata(raw)
	return PaymentLinks{
		OrgID:               meta.uuid(MetaOrgID),
		JobID:               meta.uuid(MetaJobID),
		InvoiceID:           meta.uuid(MetaInvoiceID),
		HomeownerID:         meta.homeowner(),
		Kind:                bookings.ParsePaymentKind(meta[MetaPaymentType]),
		ApplicationFeeCents: meta.cents(MetaApplicationFeeCents),
	}
}
