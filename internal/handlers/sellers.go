package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/hanko-field/checkout/internal/domain"
	"github.com/hanko-field/checkout/internal/platform/auth"
	"github.com/hanko-field/checkout/internal/platform/httpx"
	"github.com/hanko-field/checkout/internal/platform/pagination"
	"github.com/hanko-field/checkout/internal/services"
)

const (
	defaultSellerOrderPageSize = 20
	maxSellerOrderPageSize     = pagination.DefaultMaxPageSize
)

// SellerHandlers exposes the per-seller order index.
type SellerHandlers struct {
	authn   *auth.Authenticator
	queries services.OrderQueryService
}

// NewSellerHandlers constructs a new SellerHandlers instance.
func NewSellerHandlers(authn *auth.Authenticator, queries services.OrderQueryService) *SellerHandlers {
	return &SellerHandlers{
		authn:   authn,
		queries: queries,
	}
}

// Routes registers the /sellers endpoints.
func (h *SellerHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleSeller, auth.RoleStaff, auth.RoleAdmin))
	}
	r.Get("/{sellerID}/orders", h.listOrders)
}

type sellerOrderSummaryPayload struct {
	OrderID         string `json:"orderId"`
	UserID          string `json:"userId"`
	Subtotal        int64  `json:"subtotal"`
	Total           int64  `json:"total"`
	Currency        string `json:"currency"`
	Status          string `json:"status"`
	LifecycleStatus string `json:"lifecycleStatus"`
	CreatedAt       string `json:"createdAt"`
	UpdatedAt       string `json:"updatedAt"`
	PaidAt          string `json:"paidAt,omitempty"`
	RefundedAt      string `json:"refundedAt,omitempty"`
}

type sellerOrderListResponse struct {
	OK            bool                        `json:"ok"`
	Items         []sellerOrderSummaryPayload `json:"items"`
	NextPageToken string                      `json:"nextPageToken,omitempty"`
}

func (h *SellerHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.queries == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	sellerID := strings.TrimSpace(chi.URLParam(r, "sellerID"))
	if sellerID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "seller id is required", http.StatusBadRequest))
		return
	}

	query := r.URL.Query()
	params, err := pagination.Parse(query, pagination.Options{
		DefaultPageSize: defaultSellerOrderPageSize,
		MaxPageSize:     maxSellerOrderPageSize,
	})
	if err != nil {
		message := "invalid pagination parameters"
		if errors.Is(err, pagination.ErrInvalidPageToken) {
			message = "pageToken is invalid"
		} else if errors.Is(err, pagination.ErrInvalidPageSize) {
			message = "pageSize must be a positive integer"
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", message, http.StatusBadRequest))
		return
	}

	page, err := h.queries.ListSellerOrders(ctx, services.SellerOrdersQuery{
		Actor:     actorFromIdentity(identity),
		SellerID:  sellerID,
		Status:    domain.LifecycleStatus(strings.TrimSpace(query.Get("status"))),
		PageSize:  params.PageSize,
		PageToken: params.PageToken,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	resp := sellerOrderListResponse{
		OK:            true,
		Items:         make([]sellerOrderSummaryPayload, 0, len(page.Items)),
		NextPageToken: page.NextPageToken,
	}
	for _, summary := range page.Items {
		resp.Items = append(resp.Items, sellerOrderSummaryPayload{
			OrderID:         summary.OrderID,
			UserID:          summary.UserID,
			Subtotal:        summary.Subtotal,
			Total:           summary.Total,
			Currency:        summary.Currency,
			Status:          string(summary.Status),
			LifecycleStatus: string(summary.LifecycleStatus),
			CreatedAt:       formatTime(summary.CreatedAt),
			UpdatedAt:       formatTime(summary.UpdatedAt),
			PaidAt:          formatTimePtr(summary.PaidAt),
			RefundedAt:      formatTimePtr(summary.RefundedAt),
		})
	}
	writeJSONResponse(w, http.StatusOK, resp)
}
