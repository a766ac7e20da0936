package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	domain "github.com/hanko-field/checkout/internal/domain"
	"github.com/hanko-field/checkout/internal/platform/observability"
	"github.com/hanko-field/checkout/internal/repositories"
)

var (
	// ErrReconcileInvalidEvent signals a payment event the reconciler cannot interpret.
	ErrReconcileInvalidEvent = errors.New("reconcile: invalid payment event")
	// ErrReconcileUnavailable signals the order store failed; the gateway should redeliver.
	ErrReconcileUnavailable = errors.New("reconcile: store unavailable")
)

// lifecycleTransitions lists the allowed moves. payment_failed is reachable from every state except
// itself, which keeps the release path unguarded apart from the released flag.
var lifecycleTransitions = map[domain.LifecycleStatus][]domain.LifecycleStatus{
	domain.LifecycleStatusPendingPayment: {domain.LifecycleStatusPaid, domain.LifecycleStatusExpired, domain.LifecycleStatusPaymentFailed},
	domain.LifecycleStatusExpired:        {domain.LifecycleStatusPaid, domain.LifecycleStatusPaymentFailed},
	domain.LifecycleStatusPaymentFailed:  {domain.LifecycleStatusPaid},
	domain.LifecycleStatusPaid:           {domain.LifecycleStatusRefunded, domain.LifecycleStatusPaymentFailed},
	domain.LifecycleStatusRefunded:       {domain.LifecycleStatusPaymentFailed},
}

var paymentEventTargets = map[domain.PaymentEventKind]domain.LifecycleStatus{
	domain.PaymentEventCompleted:     domain.LifecycleStatusPaid,
	domain.PaymentEventExpired:       domain.LifecycleStatusExpired,
	domain.PaymentEventPaymentFailed: domain.LifecycleStatusPaymentFailed,
	domain.PaymentEventRefunded:      domain.LifecycleStatusRefunded,
}

func canTransition(from, to domain.LifecycleStatus) bool {
	return slices.Contains(lifecycleTransitions[from], to)
}

// LifecycleReconcilerDeps bundles collaborators required to construct the reconciler.
type LifecycleReconcilerDeps struct {
	Orders      repositories.OrderRepository
	SellerIndex repositories.SellerOrderIndex
	Events      OrderEventPublisher
	Clock       func() time.Time
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type lifecycleReconciler struct {
	orders      repositories.OrderRepository
	sellerIndex repositories.SellerOrderIndex
	events      OrderEventPublisher
	clock       func() time.Time
	logger      func(context.Context, string, map[string]any)
}

var _ LifecycleReconciler = (*lifecycleReconciler)(nil)

// NewLifecycleReconciler wires the payment event reconciler.
func NewLifecycleReconciler(deps LifecycleReconcilerDeps) (LifecycleReconciler, error) {
	if deps.Orders == nil {
		return nil, errors.New("lifecycle reconciler: order repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &lifecycleReconciler{
		orders:      deps.Orders,
		sellerIndex: deps.SellerIndex,
		events:      deps.Events,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

func (r *lifecycleReconciler) Apply(ctx context.Context, event domain.PaymentEvent) (ReconcileResult, error) {
	target, ok := paymentEventTargets[event.Kind]
	if !ok {
		return ReconcileResult{}, fmt.Errorf("%w: unsupported kind %q", ErrReconcileInvalidEvent, event.Kind)
	}
	orderID := strings.TrimSpace(event.OrderID)
	if orderID == "" {
		r.logger(ctx, "reconcile.unknown_order", map[string]any{"eventId": event.ID, "kind": event.Kind})
		return ReconcileResult{Outcome: ReconcileUnknownOrder}, nil
	}

	ctx, span := observability.StartSpan(ctx, "LifecycleReconciler.Apply",
		attribute.String("order.id", orderID),
		attribute.String("payment.event_kind", string(event.Kind)),
	)
	defer span.End()

	now := r.clock()
	var (
		outcome ReconcileOutcome
		from    domain.LifecycleStatus
	)
	order, plan, err := r.orders.Transition(ctx, orderID, func(order *domain.Order) (repositories.TransitionPlan, error) {
		from = order.LifecycleStatus
		var decided repositories.TransitionPlan
		decided, outcome = planTransition(order, event, target, now)
		return decided, nil
	})
	if err != nil {
		if repositories.IsNotFound(err) {
			r.logger(ctx, "reconcile.unknown_order", map[string]any{"orderId": orderID, "eventId": event.ID, "kind": event.Kind})
			return ReconcileResult{Outcome: ReconcileUnknownOrder}, nil
		}
		span.RecordError(err)
		r.logger(ctx, "reconcile.transition_failed", map[string]any{"orderId": orderID, "eventId": event.ID, "error": err})
		return ReconcileResult{}, fmt.Errorf("%w: %v", ErrReconcileUnavailable, err)
	}

	result := ReconcileResult{
		Outcome:  outcome,
		Order:    order,
		From:     from,
		To:       order.LifecycleStatus,
		Released: plan.ReleaseReservations,
	}
	span.SetAttributes(attribute.String("reconcile.outcome", string(outcome)))
	r.logger(ctx, "reconcile.applied", map[string]any{
		"orderId":  orderID,
		"eventId":  event.ID,
		"kind":     event.Kind,
		"outcome":  outcome,
		"from":     from,
		"to":       result.To,
		"released": result.Released,
	})
	if outcome != ReconcileApplied || from == result.To {
		return result, nil
	}

	if r.sellerIndex != nil && order.SellerID != "" {
		if err := r.sellerIndex.UpdateStatus(ctx, domain.SummaryFromOrder(order)); err != nil {
			result.IndexErr = err
			r.logger(ctx, "reconcile.seller_index.update_failed", map[string]any{"orderId": order.ID, "error": err})
		}
	}
	if r.events != nil {
		_, err := r.events.PublishOrderEvent(ctx, OrderEvent{
			Type:            OrderEventStatusChanged,
			OrderID:         order.ID,
			UserID:          order.UserID,
			SellerID:        order.SellerID,
			LifecycleStatus: order.LifecycleStatus,
			PreviousStatus:  from,
			Total:           order.Total,
			Currency:        order.Currency,
			PaymentEventID:  event.ID,
			OccurredAt:      now,
		})
		if err != nil {
			r.logger(ctx, "reconcile.event.publish_failed", map[string]any{"orderId": order.ID, "error": err})
		}
	}
	return result, nil
}

// planTransition mutates order for the event and reports what the store must persist. It runs
// inside the order transaction, so the released flag check and the release are atomic.
func planTransition(order *domain.Order, event domain.PaymentEvent, target domain.LifecycleStatus, now time.Time) (repositories.TransitionPlan, ReconcileOutcome) {
	current := order.LifecycleStatus
	switch event.Kind {
	case domain.PaymentEventCompleted:
		if current == domain.LifecycleStatusPaid || current == domain.LifecycleStatusRefunded {
			return repositories.TransitionPlan{}, ReconcileNoop
		}
	case domain.PaymentEventExpired:
		if current != domain.LifecycleStatusPendingPayment {
			return repositories.TransitionPlan{}, ReconcileNoop
		}
	case domain.PaymentEventPaymentFailed:
		if current == domain.LifecycleStatusPaymentFailed {
			if order.ReservationReleased {
				return repositories.TransitionPlan{}, ReconcileNoop
			}
			order.ReservationReleased = true
			order.UpdatedAt = now
			return repositories.TransitionPlan{Write: true, ReleaseReservations: true}, ReconcileApplied
		}
	case domain.PaymentEventRefunded:
		if current == domain.LifecycleStatusRefunded {
			return repositories.TransitionPlan{}, ReconcileNoop
		}
	}
	if !canTransition(current, target) {
		return repositories.TransitionPlan{}, ReconcileInvalidTransition
	}

	plan := repositories.TransitionPlan{Write: true}
	if target == domain.LifecycleStatusExpired || target == domain.LifecycleStatusPaymentFailed {
		plan.ReleaseReservations = !order.ReservationReleased
		order.ReservationReleased = true
	}

	switch target {
	case domain.LifecycleStatusPaid:
		order.PaidAt = &now
	case domain.LifecycleStatusExpired:
		order.ExpiredAt = &now
	case domain.LifecycleStatusPaymentFailed:
		order.FailedAt = &now
	case domain.LifecycleStatusRefunded:
		order.RefundedAt = &now
	}
	order.StatusHistory = append(order.StatusHistory, domain.StatusHistoryEntry{
		From:    current,
		To:      target,
		At:      now,
		Note:    "payment event " + string(event.Kind),
		EventID: event.ID,
	})
	order.LifecycleStatus = target
	order.Status = domain.LegacyStatus(target)
	order.UpdatedAt = now
	order.Version++
	return plan, ReconcileApplied
}
