package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hanko-field/checkout/internal/payments"
	"github.com/hanko-field/checkout/internal/platform/dedup"
	"github.com/hanko-field/checkout/internal/platform/httpx"
	"github.com/hanko-field/checkout/internal/platform/observability"
	"github.com/hanko-field/checkout/internal/services"
)

const maxWebhookBodySize = 64 * 1024

// WebhookHandlers receives signed payment gateway notifications.
type WebhookHandlers struct {
	payments   *payments.Manager
	reconciler services.LifecycleReconciler
	ledger     dedup.Ledger
}

// NewWebhookHandlers constructs the webhook handlers. A nil ledger disables redelivery short-circuiting.
func NewWebhookHandlers(manager *payments.Manager, reconciler services.LifecycleReconciler, ledger dedup.Ledger) *WebhookHandlers {
	if ledger == nil {
		ledger = dedup.Noop{}
	}
	return &WebhookHandlers{
		payments:   manager,
		reconciler: reconciler,
		ledger:     ledger,
	}
}

// Routes registers the /webhooks endpoints.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/payments/{provider}", h.handlePayment)
}

type webhookResponse struct {
	OK      bool   `json:"ok"`
	Outcome string `json:"outcome"`
	EventID string `json:"eventId,omitempty"`
}

func (h *WebhookHandlers) handlePayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.FromContext(ctx)
	if h.reconciler == nil {
		httpx.WriteError(ctx, w, httpx.NewError("webhook_unavailable", "payment reconciler unavailable", http.StatusServiceUnavailable))
		return
	}

	provider := strings.TrimSpace(chi.URLParam(r, "provider"))
	parser, err := h.payments.Parser(provider)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("unsupported_provider", "payment provider is not supported", http.StatusNotFound))
		return
	}

	payload, err := readLimitedBody(r, maxWebhookBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	event, relevant, err := parser.ParseWebhook(payload, r.Header)
	if err != nil {
		switch {
		case errors.Is(err, payments.ErrInvalidSignature):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", "webhook signature verification failed", http.StatusBadRequest))
		case errors.Is(err, payments.ErrMalformedEvent):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_event", "webhook payload could not be decoded", http.StatusBadRequest))
		default:
			logger.Error("webhook: parse failed", zap.String("provider", provider), zap.Error(err))
			httpx.WriteError(ctx, w, httpx.NewError("webhook_error", "failed to process webhook", http.StatusInternalServerError))
		}
		return
	}
	if !relevant {
		writeJSONResponse(w, http.StatusOK, webhookResponse{OK: true, Outcome: "ignored_event_type"})
		return
	}

	dedupKey := parser.Provider() + ":" + event.ID
	if event.ID != "" {
		seen, err := h.ledger.Seen(ctx, dedupKey)
		if err != nil {
			logger.Warn("webhook: dedup lookup failed", zap.String("eventId", event.ID), zap.Error(err))
		} else if seen {
			writeJSONResponse(w, http.StatusOK, webhookResponse{OK: true, Outcome: "duplicate", EventID: event.ID})
			return
		}
	}

	result, err := h.reconciler.Apply(ctx, event)
	if err != nil {
		if errors.Is(err, services.ErrReconcileInvalidEvent) {
			logger.Warn("webhook: event rejected", zap.String("eventId", event.ID), zap.Error(err))
			writeJSONResponse(w, http.StatusOK, webhookResponse{OK: true, Outcome: "ignored_invalid_event", EventID: event.ID})
			return
		}
		logger.Error("webhook: reconcile failed", zap.String("eventId", event.ID), zap.String("orderId", event.OrderID), zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("webhook_error", "failed to apply payment event", http.StatusInternalServerError))
		return
	}

	if event.ID != "" {
		if err := h.ledger.Mark(context.WithoutCancel(ctx), dedupKey); err != nil {
			logger.Warn("webhook: dedup mark failed", zap.String("eventId", event.ID), zap.Error(err))
		}
	}
	writeJSONResponse(w, http.StatusOK, webhookResponse{OK: true, Outcome: string(result.Outcome), EventID: event.ID})
}
