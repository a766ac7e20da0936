package repositories

import (
	"context"
	"time"

	domain "github.com/hanko-field/checkout/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// CatalogReader reads product documents, including their embedded variants.
type CatalogReader interface {
	GetProduct(ctx context.Context, productID string) (domain.Product, error)
}

// DiscountRuleStore returns the complete rule set of a tenant. An empty tenant id selects the
// account-wide rules.
type DiscountRuleStore interface {
	ListRules(ctx context.Context, tenantID string) ([]domain.DiscountRule, error)
}

// ReservationLine is a requested line entering the reservation transaction.
type ReservationLine struct {
	LineID    string
	ProductID string
	VariantID string
	Quantity  int
}

// ReservationRequest groups the lines reserved for one order.
type ReservationRequest struct {
	Lines []ReservationLine
	Now   time.Time
}

// ReservedLine is a line that survived in-transaction stock checks, with the catalog records read
// inside the transaction and the possibly clamped quantity.
type ReservedLine struct {
	LineID   string
	Quantity int
	Product  domain.Product
	Variant  *domain.Variant
}

// OrderBuilder turns reserved lines into the order persisted in the same transaction. It may run
// once per transaction attempt and must not have side effects.
type OrderBuilder func(lines []ReservedLine, adjustments []domain.StockAdjustment) (domain.Order, error)

// TransitionPlan is the decision a TransitionFunc takes after inspecting the stored order.
type TransitionPlan struct {
	// Write persists the mutated order. False leaves the document untouched.
	Write bool
	// ReleaseReservations decrements reserved counters by every line quantity, floored at zero.
	ReleaseReservations bool
}

// TransitionFunc mutates order in place and reports what to persist. It may run once per
// transaction attempt and must be a pure function of the order it receives.
type TransitionFunc func(order *domain.Order) (TransitionPlan, error)

// OrderRepository owns the order documents and the reservation counters they hold.
type OrderRepository interface {
	// ReserveAndCreate re-reads every product, clamps to effective availability, increments
	// reserved counters and creates the order atomically. Returns ErrNoAvailableItems when no line
	// survives, in which case nothing is written.
	ReserveAndCreate(ctx context.Context, req ReservationRequest, build OrderBuilder) (domain.Order, error)
	// Transition reads the order, applies fn, and writes the order plus any released reservations
	// in one transaction.
	Transition(ctx context.Context, orderID string, fn TransitionFunc) (domain.Order, TransitionPlan, error)
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
}

// SellerOrderQuery selects a page of a seller's order index.
type SellerOrderQuery struct {
	SellerID  string
	Status    domain.LifecycleStatus
	PageSize  int
	PageToken string
}

// SellerOrderIndex maintains the per-seller order projection.
type SellerOrderIndex interface {
	Upsert(ctx context.Context, summary domain.SellerOrderSummary) error
	// UpdateStatus merges the lifecycle fields of summary, stamping paidAt or refundedAt when set.
	// The identity fields are written too, so a summary whose Upsert was lost still lists.
	UpdateStatus(ctx context.Context, summary domain.SellerOrderSummary) error
	List(ctx context.Context, query SellerOrderQuery) (domain.Page[domain.SellerOrderSummary], error)
}

// HealthRepository reports dependency readiness.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
