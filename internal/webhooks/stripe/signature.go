package stripewebhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/homebase-app/homebase-backend/pkg/config"
	"github.com/homebase-app/homebase-backend/pkg/enums"
)

const (
	SignatureHeader = "Stripe-Signature"

	signatureScheme = "v1"
)

// signedHeader is a parsed Stripe-Signature header.
type signedHeader struct {
	timestamp  string
	unix       int64
	signatures [][]byte
}

func parseSignedHeader(header string) (signedHeader, bool) {
	var parsed signedHeader
	for _, item := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(item), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			unix, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return signedHeader{}, false
			}
			parsed.timestamp = value
			parsed.unix = unix
		case signatureScheme:
			sig, err := hex.DecodeString(value)
			if err != nil {
				continue
			}
			parsed.signatures = append(parsed.signatures, sig)
		}
	}
	if parsed.timestamp == "" || len(parsed.signatures) == 0 {
		return signedHeader{}, false
	}
	return parsed, true
}

func (h signedHeader) matches(payload []byte, secret string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(h.timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := mac.Sum(nil)
	for _, sig := range h.signatures {
		if hmac.Equal(expected, sig) {
			return true
		}
	}
	return false
}

// Verify reports whether header carries a v1 signature of payload made with
// secret. It does not check the timestamp.
func Verify(payload []byte, header string, secret string) bool {
	if secret == "" || header == "" {
		return false
	}
	parsed, ok := parseSignedHeader(header)
	if !ok {
		return false
	}
	return parsed.matches(payload, secret)
}

type endpointSecret struct {
	source enums.WebhookSource
	secret string
}

// Verifier authenticates deliveries against the platform and Connect
// endpoint secrets.
type Verifier struct {
	secrets   []endpointSecret
	tolerance time.Duration
	now       func() time.Time
}

// NewVerifier builds a verifier from the Stripe config. A zero tolerance
// disables the timestamp check.
func NewVerifier(cfg config.StripeConfig) *Verifier {
	v := &Verifier{tolerance: cfg.SignatureTolerance, now: time.Now}
	if secret := strings.TrimSpace(cfg.WebhookSecret); secret != "" {
		v.secrets = append(v.secrets, endpointSecret{source: enums.WebhookSourcePlatform, secret: secret})
	}
	if secret := strings.TrimSpace(cfg.ConnectWebhookSecret); secret != "" {
		v.secrets = append(v.secrets, endpointSecret{source: enums.WebhookSourceConnect, secret: secret})
	}
	return v
}

// Configured reports whether at least one endpoint secret is set.
func (v *Verifier) Configured() bool {
	return v != nil && len(v.secrets) > 0
}

// Identify returns the endpoint whose secret signed payload. The platform
// secret is tried first.
func (v *Verifier) Identify(payload []byte, header string) (enums.WebhookSource, bool) {
	if !v.Configured() || header == "" {
		return "", false
	}
	parsed, ok := parseSignedHeader(header)
	if !ok {
		return "", false
	}
	if v.tolerance > 0 {
		age := v.now().Sub(time.Unix(parsed.unix, 0))
		if age > v.tolerance || age < -v.tolerance {
			return "", false
		}
	}
	for _, candidate := range v.secrets {
		if parsed.matches(payload, candidate.secret) {
			return candidate.source, true
		}
	}
	return "", false
}
