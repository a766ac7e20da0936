package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/hanko-field/checkout/internal/domain"
	"github.com/hanko-field/checkout/internal/platform/auth"
	"github.com/hanko-field/checkout/internal/platform/httpx"
	"github.com/hanko-field/checkout/internal/services"
)

const maxOrderBodySize = 64 * 1024

// OrderHandlers exposes order creation and lookup for authenticated users.
type OrderHandlers struct {
	authn       *auth.Authenticator
	orders      services.OrderReservationService
	queries     services.OrderQueryService
	idempotency func(http.Handler) http.Handler
}

// OrderHandlersOption customises OrderHandlers.
type OrderHandlersOption func(*OrderHandlers)

// WithOrderIdempotency guards order creation with mw. It runs after authentication so keys are
// scoped per caller.
func WithOrderIdempotency(mw func(http.Handler) http.Handler) OrderHandlersOption {
	return func(h *OrderHandlers) {
		h.idempotency = mw
	}
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderReservationService, queries services.OrderQueryService, opts ...OrderHandlersOption) *OrderHandlers {
	h := &OrderHandlers{
		authn:   authn,
		orders:  orders,
		queries: queries,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	create := http.Handler(http.HandlerFunc(h.createOrder))
	if h.idempotency != nil {
		create = h.idempotency(create)
	}
	r.Method(http.MethodPost, "/", create)
	r.Get("/{orderID}", h.getOrder)
}

type createOrderRequest struct {
	UserID        string            `json:"userId"`
	SellerUserID  string            `json:"sellerUserId"`
	SiteID        string            `json:"siteId"`
	Currency      string            `json:"currency"`
	Items         []cartItemRequest `json:"items"`
	Discounts     discountCodeList  `json:"discounts"`
	DiscountCodes discountCodeList  `json:"discountCodes"`
}

type createOrderResponse struct {
	OK               bool                      `json:"ok"`
	OrderID          string                    `json:"orderId"`
	Subtotal         int64                     `json:"subtotal"`
	Total            int64                     `json:"total"`
	DiscountAmount   int64                     `json:"discountAmount"`
	Currency         string                    `json:"currency"`
	Discounts        []appliedDiscountPayload  `json:"discounts"`
	StockAdjustments []stockAdjustmentPayload  `json:"stockAdjustments"`
	SellerUserID     string                    `json:"sellerUserId"`
	SiteID           string                    `json:"siteId"`
	LifecycleStatus  string                    `json:"lifecycleStatus"`
	Rejected         []rejectedDiscountPayload `json:"rejected"`
}

type orderLinePayload struct {
	ProductID string            `json:"productId"`
	VariantID string            `json:"variantId,omitempty"`
	Qty       int               `json:"qty"`
	UnitPrice int64             `json:"unitPrice"`
	SKU       string            `json:"sku,omitempty"`
	Name      string            `json:"name,omitempty"`
	Weight    *float64          `json:"weight,omitempty"`
	TaxCode   string            `json:"taxCode,omitempty"`
	Options   map[string]string `json:"options,omitempty"`
}

type statusHistoryPayload struct {
	From    string `json:"from"`
	To      string `json:"to"`
	At      string `json:"at"`
	Note    string `json:"note,omitempty"`
	EventID string `json:"eventId,omitempty"`
}

type orderPayload struct {
	ID               string                   `json:"id"`
	UserID           string                   `json:"userId"`
	SellerUserID     string                   `json:"sellerUserId"`
	SiteID           string                   `json:"siteId,omitempty"`
	Items            []orderLinePayload       `json:"items"`
	Subtotal         int64                    `json:"subtotal"`
	DiscountAmount   int64                    `json:"discountAmount"`
	Total            int64                    `json:"total"`
	Currency         string                   `json:"currency"`
	Discounts        []appliedDiscountPayload `json:"discounts"`
	LifecycleStatus  string                   `json:"lifecycleStatus"`
	Status           string                   `json:"status"`
	StatusHistory    []statusHistoryPayload   `json:"statusHistory"`
	StockAdjustments []stockAdjustmentPayload `json:"stockAdjustments"`
	CreatedAt        string                   `json:"createdAt"`
	UpdatedAt        string                   `json:"updatedAt"`
	PaidAt           string                   `json:"paidAt,omitempty"`
	ExpiredAt        string                   `json:"expiredAt,omitempty"`
	FailedAt         string                   `json:"failedAt,omitempty"`
	RefundedAt       string                   `json:"refundedAt,omitempty"`
}

type orderResponse struct {
	OK    bool         `json:"ok"`
	Order orderPayload `json:"order"`
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req createOrderRequest
	if err := decodeJSONBody(r, maxOrderBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		userID = strings.TrimSpace(identity.UID)
	}
	codes := append([]string(req.Discounts), req.DiscountCodes...)

	result, err := h.orders.CreateOrder(ctx, services.CreateOrderCommand{
		Actor:         actorFromIdentity(identity),
		UserID:        userID,
		SellerID:      req.SellerUserID,
		SiteID:        req.SiteID,
		Currency:      req.Currency,
		Lines:         cartLinesFromRequest(req.Items),
		DiscountCodes: codes,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	order := result.Order
	w.Header().Set("Location", "/api/v1/orders/"+order.ID)
	writeJSONResponse(w, http.StatusCreated, createOrderResponse{
		OK:               true,
		OrderID:          order.ID,
		Subtotal:         order.Subtotal,
		Total:            order.Total,
		DiscountAmount:   order.DiscountAmount,
		Currency:         order.Currency,
		Discounts:        buildAppliedDiscounts(order.Discounts),
		StockAdjustments: buildStockAdjustments(order.StockAdjustments),
		SellerUserID:     order.SellerID,
		SiteID:           order.SiteID,
		LifecycleStatus:  string(order.LifecycleStatus),
		Rejected:         buildRejectedDiscounts(result.Rejected),
	})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.queries == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	order, err := h.queries.GetOrder(ctx, actorFromIdentity(identity), orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{OK: true, Order: buildOrderPayload(order)})
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrOrderNoAvailableItems):
		httpx.WriteError(ctx, w, httpx.NewError("NO_AVAILABLE_ITEMS", "none of the requested items are available", http.StatusConflict))
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderPermissionDenied):
		httpx.WriteError(ctx, w, httpx.NewError("permission_denied", "cannot act for another user", http.StatusForbidden))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("order_unavailable", "order store temporarily unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order", http.StatusInternalServerError))
	}
}

func buildOrderPayload(order domain.Order) orderPayload {
	payload := orderPayload{
		ID:               order.ID,
		UserID:           order.UserID,
		SellerUserID:     order.SellerID,
		SiteID:           order.SiteID,
		Items:            make([]orderLinePayload, 0, len(order.Lines)),
		Subtotal:         order.Subtotal,
		DiscountAmount:   order.DiscountAmount,
		Total:            order.Total,
		Currency:         order.Currency,
		Discounts:        buildAppliedDiscounts(order.Discounts),
		LifecycleStatus:  string(order.LifecycleStatus),
		Status:           string(order.Status),
		StatusHistory:    make([]statusHistoryPayload, 0, len(order.StatusHistory)),
		StockAdjustments: buildStockAdjustments(order.StockAdjustments),
		CreatedAt:        formatTime(order.CreatedAt),
		UpdatedAt:        formatTime(order.UpdatedAt),
		PaidAt:           formatTimePtr(order.PaidAt),
		ExpiredAt:        formatTimePtr(order.ExpiredAt),
		FailedAt:         formatTimePtr(order.FailedAt),
		RefundedAt:       formatTimePtr(order.RefundedAt),
	}
	for _, line := range order.Lines {
		payload.Items = append(payload.Items, orderLinePayload{
			ProductID: line.ProductID,
			VariantID: line.VariantID,
			Qty:       line.Quantity,
			UnitPrice: line.UnitPrice,
			SKU:       line.SKU,
			Name:      line.Name,
			Weight:    line.Weight,
			TaxCode:   line.TaxCode,
			Options:   line.Options,
		})
	}
	for _, entry := range order.StatusHistory {
		payload.StatusHistory = append(payload.StatusHistory, statusHistoryPayload{
			From:    string(entry.From),
			To:      string(entry.To),
			At:      formatTime(entry.At),
			Note:    entry.Note,
			EventID: entry.EventID,
		})
	}
	return payload
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}
