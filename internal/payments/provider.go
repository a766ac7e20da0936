package payments

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	domain "github.com/hanko-field/checkout/internal/domain"
)

var (
	// ErrUnsupportedProvider is returned when the manager cannot locate a provider.
	ErrUnsupportedProvider = errors.New("payments: unsupported provider")
	// ErrInvalidSignature is returned when a webhook payload fails authenticity checks.
	ErrInvalidSignature = errors.New("payments: invalid webhook signature")
	// ErrMalformedEvent is returned when a verified payload cannot be decoded.
	ErrMalformedEvent = errors.New("payments: malformed webhook event")
)

// WebhookParser verifies a signed gateway notification and maps it to a provider-neutral event.
// The boolean is false for authentic events the reconciler has no use for.
type WebhookParser interface {
	Provider() string
	ParseWebhook(payload []byte, header http.Header) (domain.PaymentEvent, bool, error)
}

// Manager resolves webhook parsers by provider name.
type Manager struct {
	parsers map[string]WebhookParser
}

// NewManager registers the supplied parsers. Provider names are matched case-insensitively.
func NewManager(parsers ...WebhookParser) (*Manager, error) {
	m := &Manager{parsers: make(map[string]WebhookParser, len(parsers))}
	for _, parser := range parsers {
		if parser == nil {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(parser.Provider()))
		if name == "" {
			return nil, errors.New("payments: provider name is required")
		}
		if _, exists := m.parsers[name]; exists {
			return nil, fmt.Errorf("payments: provider %q registered twice", name)
		}
		m.parsers[name] = parser
	}
	return m, nil
}

// Parser returns the parser registered for provider.
func (m *Manager) Parser(provider string) (WebhookParser, error) {
	if m == nil {
		return nil, ErrUnsupportedProvider
	}
	parser, ok := m.parsers[strings.ToLower(strings.TrimSpace(provider))]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, provider)
	}
	return parser, nil
}
