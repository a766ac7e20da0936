package services

import (
	"context"
	"slices"
	"strings"
	"time"

	domain "github.com/hanko-field/checkout/internal/domain"
)

// Order event types published after a state change commits.
const (
	OrderEventCreated       = "order.created"
	OrderEventStatusChanged = "order.status_changed"
)

// Actor roles understood by the services. They mirror the auth claims without importing them.
const (
	RoleSeller = "seller"
	RoleStaff  = "staff"
	RoleAdmin  = "admin"
)

// Actor is the authenticated principal a command runs on behalf of.
type Actor struct {
	UserID   string
	SellerID string
	Roles    []string
}

// IsOperator reports whether the actor may act on any user or seller.
func (a Actor) IsOperator() bool {
	return slices.ContainsFunc(a.Roles, func(role string) bool {
		role = strings.ToLower(strings.TrimSpace(role))
		return role == RoleStaff || role == RoleAdmin
	})
}

// CanActForUser reports whether the actor may act as the supplied buyer.
func (a Actor) CanActForUser(userID string) bool {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return false
	}
	return a.UserID == userID || a.IsOperator()
}

// CanActForSeller reports whether the actor may read the supplied seller's data.
func (a Actor) CanActForSeller(sellerID string) bool {
	sellerID = strings.TrimSpace(sellerID)
	if sellerID == "" {
		return false
	}
	if a.IsOperator() {
		return true
	}
	if !slices.Contains(a.Roles, RoleSeller) {
		return false
	}
	return a.SellerID == sellerID || a.UserID == sellerID
}

// OrderEvent is the payload published to downstream consumers.
type OrderEvent struct {
	Type            string                 `json:"type"`
	OrderID         string                 `json:"orderId"`
	UserID          string                 `json:"userId"`
	SellerID        string                 `json:"sellerId"`
	LifecycleStatus domain.LifecycleStatus `json:"lifecycleStatus"`
	PreviousStatus  domain.LifecycleStatus `json:"previousStatus,omitempty"`
	Total           int64                  `json:"total"`
	Currency        string                 `json:"currency"`
	PaymentEventID  string                 `json:"paymentEventId,omitempty"`
	OccurredAt      time.Time              `json:"occurredAt"`
}

// OrderEventPublisher publishes order events. Publishing is best-effort and never affects the
// committed order.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) (string, error)
}

// ValidateCartCommand carries the client cart to reconcile.
type ValidateCartCommand struct {
	SiteID        string
	Currency      string
	Lines         []domain.CartLine
	DiscountCodes []string
}

// CartValidator reconciles a client cart against the catalog without writing anything.
type CartValidator interface {
	Validate(ctx context.Context, cmd ValidateCartCommand) (domain.CartValidation, error)
}

// CreateOrderCommand requests a pending order with reserved stock.
type CreateOrderCommand struct {
	Actor         Actor
	UserID        string
	SellerID      string
	SiteID        string
	Currency      string
	Lines         []domain.CartLine
	DiscountCodes []string
}

// CreateOrderResult is the committed order. IndexErr reports a failed seller index write, which
// does not roll back the order.
type CreateOrderResult struct {
	Order    domain.Order
	Rejected []domain.DiscountRejection
	IndexErr error
}

// OrderReservationService creates orders and reserves their stock atomically.
type OrderReservationService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (CreateOrderResult, error)
}

// ReconcileOutcome describes what applying a payment event did.
type ReconcileOutcome string

const (
	ReconcileApplied           ReconcileOutcome = "applied"
	ReconcileNoop              ReconcileOutcome = "noop"
	ReconcileUnknownOrder      ReconcileOutcome = "ignored_unknown_order"
	ReconcileInvalidTransition ReconcileOutcome = "ignored_invalid_transition"
)

// ReconcileResult summarises a reconciled payment event.
type ReconcileResult struct {
	Outcome  ReconcileOutcome
	Order    domain.Order
	From     domain.LifecycleStatus
	To       domain.LifecycleStatus
	Released bool
	IndexErr error
}

// LifecycleReconciler applies verified payment events to orders.
type LifecycleReconciler interface {
	Apply(ctx context.Context, event domain.PaymentEvent) (ReconcileResult, error)
}

// SellerOrdersQuery selects a page of a seller's orders.
type SellerOrdersQuery struct {
	Actor     Actor
	SellerID  string
	Status    domain.LifecycleStatus
	PageSize  int
	PageToken string
}

// OrderQueryService serves read access to orders and seller projections.
type OrderQueryService interface {
	GetOrder(ctx context.Context, actor Actor, orderID string) (domain.Order, error)
	ListSellerOrders(ctx context.Context, query SellerOrdersQuery) (domain.Page[domain.SellerOrderSummary], error)
}

// SystemService reports dependency health.
type SystemService interface {
	HealthReport(ctx context.Context) (domain.SystemHealthReport, error)
}
