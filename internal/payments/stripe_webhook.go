package payments

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"

	domain "github.com/hanko-field/checkout/internal/domain"
)

const (
	stripeProviderName    = "stripe"
	stripeSignatureHeader = "Stripe-Signature"
	orderIDMetadataKey    = "order_id"
)

var stripeEventKinds = map[stripe.EventType]domain.PaymentEventKind{
	"checkout.session.completed":               domain.PaymentEventCompleted,
	"checkout.session.async_payment_succeeded": domain.PaymentEventCompleted,
	"checkout.session.expired":                 domain.PaymentEventExpired,
	"checkout.session.async_payment_failed":    domain.PaymentEventPaymentFailed,
	"payment_intent.payment_failed":            domain.PaymentEventPaymentFailed,
	"charge.refunded":                          domain.PaymentEventRefunded,
}

// StripeWebhookConfig configures Stripe webhook verification.
type StripeWebhookConfig struct {
	Secret    string
	Tolerance time.Duration
}

// StripeWebhookParser verifies Stripe-Signature headers and maps the subset of events that drive
// the order lifecycle.
type StripeWebhookParser struct {
	secret    string
	tolerance time.Duration
}

var _ WebhookParser = (*StripeWebhookParser)(nil)

// NewStripeWebhookParser constructs the parser. The signing secret is required.
func NewStripeWebhookParser(cfg StripeWebhookConfig) (*StripeWebhookParser, error) {
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errors.New("payments: stripe webhook secret is required")
	}
	tolerance := cfg.Tolerance
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}
	return &StripeWebhookParser{secret: secret, tolerance: tolerance}, nil
}

func (p *StripeWebhookParser) Provider() string {
	return stripeProviderName
}

// stripeEventObject holds the fields shared by checkout sessions, payment intents and charges.
type stripeEventObject struct {
	ID                string            `json:"id"`
	Object            string            `json:"object"`
	ClientReferenceID string            `json:"client_reference_id"`
	Metadata          map[string]string `json:"metadata"`
}

func (p *StripeWebhookParser) ParseWebhook(payload []byte, header http.Header) (domain.PaymentEvent, bool, error) {
	event, err := webhook.ConstructEventWithOptions(payload, header.Get(stripeSignatureHeader), p.secret, webhook.ConstructEventOptions{
		Tolerance:                p.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return domain.PaymentEvent{}, false, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	kind, ok := stripeEventKinds[event.Type]
	if !ok {
		return domain.PaymentEvent{}, false, nil
	}
	if event.Data == nil {
		return domain.PaymentEvent{}, false, fmt.Errorf("%w: event %s has no data", ErrMalformedEvent, event.ID)
	}
	raw := event.Data.Raw
	if len(raw) == 0 {
		if raw, err = json.Marshal(event.Data.Object); err != nil {
			return domain.PaymentEvent{}, false, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
	}
	var object stripeEventObject
	if err := json.Unmarshal(raw, &object); err != nil {
		return domain.PaymentEvent{}, false, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	orderID := strings.TrimSpace(object.Metadata[orderIDMetadataKey])
	if orderID == "" && object.Object == "checkout.session" {
		orderID = strings.TrimSpace(object.ClientReferenceID)
	}

	occurred := time.Unix(event.Created, 0).UTC()
	if event.Created == 0 {
		occurred = time.Time{}
	}
	return domain.PaymentEvent{
		ID:         event.ID,
		Provider:   stripeProviderName,
		Kind:       kind,
		OrderID:    orderID,
		OccurredAt: occurred,
	}, true, nil
}
