package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/hanko-field/checkout/internal/domain"
	"github.com/hanko-field/checkout/internal/platform/pagination"
	"github.com/hanko-field/checkout/internal/repositories"
)

// OrderQueryServiceDeps bundles collaborators required to construct the order query service.
type OrderQueryServiceDeps struct {
	Orders      repositories.OrderRepository
	SellerIndex repositories.SellerOrderIndex
}

type orderQueryService struct {
	orders      repositories.OrderRepository
	sellerIndex repositories.SellerOrderIndex
}

var _ OrderQueryService = (*orderQueryService)(nil)

// NewOrderQueryService wires read access to orders and the seller projection.
func NewOrderQueryService(deps OrderQueryServiceDeps) (OrderQueryService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order query service: order repository is required")
	}
	if deps.SellerIndex == nil {
		return nil, errors.New("order query service: seller index is required")
	}
	return &orderQueryService{orders: deps.Orders, sellerIndex: deps.SellerIndex}, nil
}

// GetOrder returns the order when the actor owns it or is an operator. Other callers get
// ErrOrderNotFound so order ids cannot be probed.
func (s *orderQueryService) GetOrder(ctx context.Context, actor Actor, orderID string) (domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return domain.Order{}, ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
	}
	if !actor.CanActForUser(order.UserID) {
		return domain.Order{}, ErrOrderNotFound
	}
	return order, nil
}

func (s *orderQueryService) ListSellerOrders(ctx context.Context, query SellerOrdersQuery) (domain.Page[domain.SellerOrderSummary], error) {
	sellerID := strings.TrimSpace(query.SellerID)
	if sellerID == "" {
		return domain.Page[domain.SellerOrderSummary]{}, fmt.Errorf("%w: seller id is required", ErrOrderInvalidInput)
	}
	if !query.Actor.CanActForSeller(sellerID) {
		return domain.Page[domain.SellerOrderSummary]{}, ErrOrderPermissionDenied
	}
	if query.Status != "" {
		if _, known := lifecycleTransitions[query.Status]; !known {
			return domain.Page[domain.SellerOrderSummary]{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, query.Status)
		}
	}
	size := query.PageSize
	switch {
	case size <= 0:
		size = pagination.DefaultPageSize
	case size > pagination.DefaultMaxPageSize:
		size = pagination.DefaultMaxPageSize
	}

	page, err := s.sellerIndex.List(ctx, repositories.SellerOrderQuery{
		SellerID:  sellerID,
		Status:    query.Status,
		PageSize:  size,
		PageToken: query.PageToken,
	})
	if err != nil {
		if errors.Is(err, pagination.ErrInvalidPageToken) {
			return domain.Page[domain.SellerOrderSummary]{}, fmt.Errorf("%w: %v", ErrOrderInvalidInput, err)
		}
		return domain.Page[domain.SellerOrderSummary]{}, fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
	}
	return page, nil
}
