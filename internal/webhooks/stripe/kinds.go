package stripewebhook

import "github.com/stripe/stripe-go/v84"

// Kind is the closed set of Stripe events the router acts on.
type Kind int

const (
	KindUnhandled Kind = iota
	KindAccountUpdated
	KindPaymentIntentCreated
	KindPaymentIntentSucceeded
	KindInvoicePaid
	KindInvoicePaymentFailed
	KindInvoiceVoided
	KindCheckoutSessionCompleted
	KindSubscriptionUpdated
	KindSubscriptionDeleted
	KindTransferCreated
	KindChargeRefunded
	KindPayoutPaid
	KindDisputeCreated
	KindDisputeUpdated
	KindDisputeClosed
)

var kindsByType = map[stripe.EventType]Kind{
	stripe.EventTypeAccountUpdated:              KindAccountUpdated,
	stripe.EventTypePaymentIntentCreated:        KindPaymentIntentCreated,
	stripe.EventTypePaymentIntentSucceeded:      KindPaymentIntentSucceeded,
	stripe.EventTypeInvoicePaid:                 KindInvoicePaid,
	stripe.EventTypeInvoicePaymentSucceeded:     KindInvoicePaid,
	stripe.EventTypeInvoicePaymentFailed:        KindInvoicePaymentFailed,
	stripe.EventTypeInvoiceVoided:               KindInvoiceVoided,
	stripe.EventTypeCheckoutSessionCompleted:    KindCheckoutSessionCompleted,
	stripe.EventTypeCustomerSubscriptionCreated: KindSubscriptionUpdated,
	stripe.EventTypeCustomerSubscriptionUpdated: KindSubscriptionUpdated,
	stripe.EventTypeCustomerSubscriptionDeleted: KindSubscriptionDeleted,
	stripe.EventTypeTransferCreated:             KindTransferCreated,
	stripe.EventTypeChargeRefunded:              KindChargeRefunded,
	stripe.EventTypePayoutPaid:                  KindPayoutPaid,
	stripe.EventTypeChargeDisputeCreated:        KindDisputeCreated,
	stripe.EventTypeChargeDisputeUpdated:        KindDisputeUpdated,
	stripe.EventTypeChargeDisputeFundsWithdrawn: KindDisputeUpdated,
	stripe.EventTypeChargeDisputeClosed:         KindDisputeClosed,
}

var kindNames = map[Kind]string{
	KindUnhandled:                "unhandled",
	KindAccountUpdated:           "account_updated",
	KindPaymentIntentCreated:     "payment_intent_created",
	KindPaymentIntentSucceeded:   "payment_intent_succeeded",
	KindInvoicePaid:              "invoice_paid",
	KindInvoicePaymentFailed:     "invoice_payment_failed",
	KindInvoiceVoided:            "invoice_voided",
	KindCheckoutSessionCompleted: "checkout_session_completed",
	KindSubscriptionUpdated:      "subscription_updated",
	KindSubscriptionDeleted:      "subscription_deleted",
	KindTransferCreated:          "transfer_created",
	KindChargeRefunded:           "charge_refunded",
	KindPayoutPaid:               "payout_paid",
	KindDisputeCreated:           "dispute_created",
	KindDisputeUpdated:           "dispute_updated",
	KindDisputeClosed:            "dispute_closed",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Classification is the routing decision for one event. Raw keeps the
// original type so unhandled events can still be logged.
type Classification struct {
	Kind Kind
	Raw  stripe.EventType
}

// Classify maps a Stripe event type onto a Kind.
func Classify(eventType stripe.EventType) Classification {
	kind, ok := kindsByType[eventType]
	if !ok {
		kind = KindUnhandled
	}
	return Classification{Kind: kind, Raw: eventType}
}
