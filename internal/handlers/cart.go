package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/hanko-field/checkout/internal/domain"
	"github.com/hanko-field/checkout/internal/platform/auth"
	"github.com/hanko-field/checkout/internal/platform/httpx"
	"github.com/hanko-field/checkout/internal/services"
)

const maxCartBodySize = 64 * 1024

// CartHandlers exposes the advisory cart reconciliation endpoint.
type CartHandlers struct {
	authn     *auth.Authenticator
	validator services.CartValidator
}

// NewCartHandlers constructs a new CartHandlers instance.
func NewCartHandlers(authn *auth.Authenticator, validator services.CartValidator) *CartHandlers {
	return &CartHandlers{
		authn:     authn,
		validator: validator,
	}
}

// Routes registers the cart endpoints.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/cart:validate", h.validateCart)
}

type validateCartRequest struct {
	UserID        string            `json:"userId"`
	SiteID        string            `json:"siteId"`
	Currency      string            `json:"currency"`
	Items         []cartItemRequest `json:"items"`
	DiscountCodes discountCodeList  `json:"discountCodes"`
}

type cartLinePayload struct {
	ID              string   `json:"id"`
	ProductID       string   `json:"productId"`
	VariantID       string   `json:"variantId,omitempty"`
	Name            string   `json:"name,omitempty"`
	SKU             string   `json:"sku,omitempty"`
	Qty             int      `json:"qty"`
	UnitPrice       int64    `json:"unitPrice"`
	ClientUnitPrice *int64   `json:"clientUnitPrice,omitempty"`
	LineTotal       int64    `json:"lineTotal"`
	PriceChanged    bool     `json:"priceChanged"`
	Categories      []string `json:"categories,omitempty"`
}

type appliedDiscountPayload struct {
	Code   string `json:"code"`
	Type   string `json:"type"`
	Amount int64  `json:"amount"`
}

type rejectedDiscountPayload struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

type removedLinePayload struct {
	ID        string `json:"id"`
	ProductID string `json:"productId"`
	VariantID string `json:"variantId,omitempty"`
	Reason    string `json:"reason"`
}

type stockAdjustmentPayload struct {
	ID        string `json:"id"`
	ProductID string `json:"productId"`
	VariantID string `json:"variantId,omitempty"`
	FromQty   int    `json:"fromQty"`
	ToQty     int    `json:"toQty"`
	Reason    string `json:"reason"`
}

type validateCartResponse struct {
	OK             bool                      `json:"ok"`
	Items          []cartLinePayload         `json:"items"`
	Subtotal       int64                     `json:"subtotal"`
	Discounts      []appliedDiscountPayload  `json:"discounts"`
	DiscountAmount int64                     `json:"discountAmount"`
	Total          int64                     `json:"total"`
	Changed        bool                      `json:"changed"`
	RemovedItemIDs []string                  `json:"removedItemIds"`
	Removed        []removedLinePayload      `json:"removed"`
	Adjustments    []stockAdjustmentPayload  `json:"adjustments"`
	Rejected       []rejectedDiscountPayload `json:"rejected"`
}

func (h *CartHandlers) validateCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.validator == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req validateCartRequest
	if err := decodeJSONBody(r, maxCartBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	if userID := strings.TrimSpace(req.UserID); userID != "" && !actorFromIdentity(identity).CanActForUser(userID) {
		httpx.WriteError(ctx, w, httpx.NewError("permission_denied", "cannot validate another user's cart", http.StatusForbidden))
		return
	}

	result, err := h.validator.Validate(ctx, services.ValidateCartCommand{
		SiteID:        req.SiteID,
		Currency:      req.Currency,
		Lines:         cartLinesFromRequest(req.Items),
		DiscountCodes: []string(req.DiscountCodes),
	})
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildValidateCartResponse(result))
}

func writeCartError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCartValidationInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCartValidationUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog temporarily unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("cart_error", "failed to validate cart", http.StatusInternalServerError))
	}
}

func cartLinesFromRequest(items []cartItemRequest) []domain.CartLine {
	lines := make([]domain.CartLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, domain.CartLine{
			LineID:          item.ID,
			ProductID:       item.ProductID,
			VariantID:       item.VariantID,
			Quantity:        item.Qty,
			ClientUnitPrice: item.Price,
		})
	}
	return lines
}

func buildValidateCartResponse(result domain.CartValidation) validateCartResponse {
	resp := validateCartResponse{
		OK:             true,
		Items:          make([]cartLinePayload, 0, len(result.Lines)),
		Subtotal:       result.Subtotal,
		Discounts:      buildAppliedDiscounts(result.Applied),
		DiscountAmount: result.DiscountAmount,
		Total:          result.Total,
		Changed:        result.Changed,
		RemovedItemIDs: make([]string, 0, len(result.Removed)),
		Removed:        make([]removedLinePayload, 0, len(result.Removed)),
		Adjustments:    buildStockAdjustments(result.Adjustments),
		Rejected:       buildRejectedDiscounts(result.Rejected),
	}
	for _, line := range result.Lines {
		resp.Items = append(resp.Items, cartLinePayload{
			ID:              line.LineID,
			ProductID:       line.ProductID,
			VariantID:       line.VariantID,
			Name:            line.Name,
			SKU:             line.SKU,
			Qty:             line.Quantity,
			UnitPrice:       line.UnitPrice,
			ClientUnitPrice: line.ClientUnitPrice,
			LineTotal:       line.LineTotal,
			PriceChanged:    line.PriceChanged,
			Categories:      line.Categories,
		})
	}
	for _, removal := range result.Removed {
		resp.RemovedItemIDs = append(resp.RemovedItemIDs, removal.LineID)
		resp.Removed = append(resp.Removed, removedLinePayload{
			ID:        removal.LineID,
			ProductID: removal.ProductID,
			VariantID: removal.VariantID,
			Reason:    removal.Reason,
		})
	}
	return resp
}

func buildAppliedDiscounts(applied []domain.AppliedDiscount) []appliedDiscountPayload {
	out := make([]appliedDiscountPayload, 0, len(applied))
	for _, d := range applied {
		out = append(out, appliedDiscountPayload{Code: d.Code, Type: string(d.Type), Amount: d.Amount})
	}
	return out
}

func buildRejectedDiscounts(rejected []domain.DiscountRejection) []rejectedDiscountPayload {
	out := make([]rejectedDiscountPayload, 0, len(rejected))
	for _, r := range rejected {
		out = append(out, rejectedDiscountPayload{Code: r.Code, Reason: r.Reason})
	}
	return out
}

func buildStockAdjustments(adjustments []domain.StockAdjustment) []stockAdjustmentPayload {
	out := make([]stockAdjustmentPayload, 0, len(adjustments))
	for _, adj := range adjustments {
		out = append(out, stockAdjustmentPayload{
			ID:        adj.LineID,
			ProductID: adj.ProductID,
			VariantID: adj.VariantID,
			FromQty:   adj.FromQty,
			ToQty:     adj.ToQty,
			Reason:    adj.Reason,
		})
	}
	return out
}
