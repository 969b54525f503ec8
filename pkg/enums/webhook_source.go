package enums

// WebhookSource names the Stripe endpoint secret that authenticated a delivery.
type WebhookSource string

const (
	WebhookSourcePlatform WebhookSource = "platform"
	WebhookSourceConnect  WebhookSource = "connect"
)

func (s WebhookSource) String() string {
	return string(s)
}
