package domain

import (
	"strings"
	"time"
)

// Page represents a cursor-paginated result set.
type Page[T any] struct {
	Items         []T
	NextPageToken string
}

// Product is the catalog record a cart line resolves against. Stock nil means unlimited.
type Product struct {
	ID         string
	Name       string
	SKU        string
	Price      int64
	Stock      *int64
	Reserved   int64
	Categories []string
	Weight     *float64
	TaxCode    string
	Variants   []Variant
	UpdatedAt  time.Time
}

// Variant is a purchasable option scoped to a product. Price nil inherits the product price.
type Variant struct {
	ID       string
	SKU      string
	Name     string
	Price    *int64
	Stock    *int64
	Reserved int64
	Options  map[string]string
	Weight   *float64
	TaxCode  string
}

// FindVariant returns the variant with the supplied id and its position in the product.
func (p Product) FindVariant(id string) (Variant, int, bool) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Variant{}, -1, false
	}
	for i, v := range p.Variants {
		if v.ID == id {
			return v, i, true
		}
	}
	return Variant{}, -1, false
}

// UnitPrice resolves the canonical unit price for a product or one of its variants.
func (p Product) UnitPrice(v *Variant) int64 {
	if v != nil && v.Price != nil {
		return *v.Price
	}
	return p.Price
}

// CartLine is the client-submitted, untrusted view of a cart entry.
type CartLine struct {
	LineID          string
	ProductID       string
	VariantID       string
	Quantity        int
	ClientUnitPrice *int64
}

// Key identifies the stock bucket the line draws from.
func (l CartLine) Key() string {
	return StockKey(l.ProductID, l.VariantID)
}

// StockKey joins a product and optional variant into a stable identifier.
func StockKey(productID, variantID string) string {
	if variantID == "" {
		return productID
	}
	return productID + "#" + variantID
}

// PricedLine is a cart line re-derived from the catalog.
type PricedLine struct {
	LineID          string
	ProductID       string
	VariantID       string
	Name            string
	SKU             string
	Categories      []string
	Quantity        int
	UnitPrice       int64
	ClientUnitPrice *int64
	LineTotal       int64
	PriceChanged    bool
}

// Line removal reasons.
const (
	RemovalNotFound        = "not_found"
	RemovalVariantNotFound = "variant_not_found"
	RemovalOutOfStock      = "out_of_stock"
)

// AdjustmentStockClamped marks a quantity reduced to what the catalog can supply.
const AdjustmentStockClamped = "stock_clamped"

// LineRemoval records a cart line dropped during reconciliation.
type LineRemoval struct {
	LineID    string
	ProductID string
	VariantID string
	Reason    string
}

// StockAdjustment records a server-side quantity clamp.
type StockAdjustment struct {
	LineID    string
	ProductID string
	VariantID string
	FromQty   int
	ToQty     int
	Reason    string
}

// DiscountType enumerates how a rule's amount is interpreted.
type DiscountType string

const (
	// DiscountTypePercent applies Amount percent of the subtotal.
	DiscountTypePercent DiscountType = "Percent"
	// DiscountTypeFixed subtracts Amount minor units.
	DiscountTypeFixed DiscountType = "Fixed"
)

// DiscountRule is a stored discount code definition.
type DiscountRule struct {
	Code              string
	Type              DiscountType
	Amount            float64
	Stackable         bool
	NonStackingGroup  string
	MinSpend          *float64
	ExcludeProducts   []string
	ExcludeCategories []string
}

// Discount rejection reasons.
const (
	RejectNotFound          = "not_found"
	RejectMinSpend          = "min_spend"
	RejectExclusionProduct  = "exclusion_product"
	RejectExclusionCategory = "exclusion_category"
	RejectNonStackable      = "non_stackable"
	RejectNoRemaining       = "no_remaining"
	RejectZeroValue         = "zero_value"
)

// AppliedDiscount is an accepted code with its capped amount.
type AppliedDiscount struct {
	Code   string
	Type   DiscountType
	Amount int64
}

// DiscountRejection explains why a requested code was not applied.
type DiscountRejection struct {
	Code   string
	Reason string
}

// DiscountResult is the outcome of evaluating requested codes against a cart.
type DiscountResult struct {
	Applied        []AppliedDiscount
	DiscountAmount int64
	Rejected       []DiscountRejection
}

// CartValidation is the advisory reconciliation of a client cart.
type CartValidation struct {
	Lines          []PricedLine
	Subtotal       int64
	Applied        []AppliedDiscount
	DiscountAmount int64
	Total          int64
	Removed        []LineRemoval
	Adjustments    []StockAdjustment
	Rejected       []DiscountRejection
	Changed        bool
}

// LifecycleStatus is the authoritative order state.
type LifecycleStatus string

const (
	LifecycleStatusPendingPayment LifecycleStatus = "pending_payment"
	LifecycleStatusPaid           LifecycleStatus = "paid"
	LifecycleStatusExpired        LifecycleStatus = "expired"
	LifecycleStatusPaymentFailed  LifecycleStatus = "payment_failed"
	LifecycleStatusRefunded       LifecycleStatus = "refunded"
)

// OrderStatus is the legacy display status mirrored alongside the lifecycle status.
type OrderStatus string

const (
	OrderStatusPending       OrderStatus = "pending"
	OrderStatusPaid          OrderStatus = "paid"
	OrderStatusExpired       OrderStatus = "expired"
	OrderStatusPaymentFailed OrderStatus = "payment_failed"
	OrderStatusRefunded      OrderStatus = "refunded"
)

// LegacyStatus maps a lifecycle status to its display mirror.
func LegacyStatus(status LifecycleStatus) OrderStatus {
	switch status {
	case LifecycleStatusPaid:
		return OrderStatusPaid
	case LifecycleStatusExpired:
		return OrderStatusExpired
	case LifecycleStatusPaymentFailed:
		return OrderStatusPaymentFailed
	case LifecycleStatusRefunded:
		return OrderStatusRefunded
	default:
		return OrderStatusPending
	}
}

// OrderLine is a normalised, priced line persisted on an order.
type OrderLine struct {
	ProductID string
	VariantID string
	Quantity  int
	UnitPrice int64
	SKU       string
	Name      string
	Weight    *float64
	TaxCode   string
	Options   map[string]string
}

// StatusHistoryEntry is an append-only lifecycle audit record. From is empty for the initial entry.
type StatusHistoryEntry struct {
	From    LifecycleStatus
	To      LifecycleStatus
	At      time.Time
	Note    string
	EventID string
}

// Order is created once by the reservation transaction and afterwards only changes lifecycle fields.
type Order struct {
	ID                  string
	UserID              string
	SellerID            string
	SiteID              string
	Lines               []OrderLine
	Subtotal            int64
	DiscountAmount      int64
	Total               int64
	Currency            string
	Discounts           []AppliedDiscount
	LifecycleStatus     LifecycleStatus
	Status              OrderStatus
	StatusHistory       []StatusHistoryEntry
	StockAdjustments    []StockAdjustment
	ReservationReleased bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
	PaidAt              *time.Time
	ExpiredAt           *time.Time
	FailedAt            *time.Time
	RefundedAt          *time.Time
	Version             int
}

// SellerOrderSummary is the denormalised per-seller projection of an order.
type SellerOrderSummary struct {
	SellerID        string
	OrderID         string
	UserID          string
	Subtotal        int64
	Total           int64
	Currency        string
	Status          OrderStatus
	LifecycleStatus LifecycleStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
	PaidAt          *time.Time
	RefundedAt      *time.Time
}

// SummaryFromOrder builds the seller projection of an order.
func SummaryFromOrder(order Order) SellerOrderSummary {
	return SellerOrderSummary{
		SellerID:        order.SellerID,
		OrderID:         order.ID,
		UserID:          order.UserID,
		Subtotal:        order.Subtotal,
		Total:           order.Total,
		Currency:        order.Currency,
		Status:          order.Status,
		LifecycleStatus: order.LifecycleStatus,
		CreatedAt:       order.CreatedAt,
		UpdatedAt:       order.UpdatedAt,
		PaidAt:          order.PaidAt,
		RefundedAt:      order.RefundedAt,
	}
}

// PaymentEventKind enumerates gateway notifications the reconciler understands.
type PaymentEventKind string

const (
	PaymentEventCompleted     PaymentEventKind = "completed"
	PaymentEventExpired       PaymentEventKind = "expired"
	PaymentEventPaymentFailed PaymentEventKind = "payment_failed"
	PaymentEventRefunded      PaymentEventKind = "refunded"
)

// PaymentEvent is a verified, provider-neutral gateway notification keyed by order id.
type PaymentEvent struct {
	ID         string
	Provider   string
	Kind       PaymentEventKind
	OrderID    string
	OccurredAt time.Time
}

// HealthStatus is the aggregated readiness of a dependency.
type HealthStatus string

const (
	HealthStatusOK       HealthStatus = "ok"
	HealthStatusDegraded HealthStatus = "degraded"
	HealthStatusError    HealthStatus = "error"
)

// SystemHealthCheck is the result of probing one dependency.
type SystemHealthCheck struct {
	Status    HealthStatus
	Detail    string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency probes.
type SystemHealthReport struct {
	Status      HealthStatus
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}
