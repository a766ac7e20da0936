package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/text/currency"

	domain "github.com/hanko-field/checkout/internal/domain"
	"github.com/hanko-field/checkout/internal/platform/observability"
	"github.com/hanko-field/checkout/internal/repositories"
)

const orderIDPrefix = "ord_"

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located or is not visible to the caller.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderPermissionDenied indicates the caller attempted to act for another user.
	ErrOrderPermissionDenied = errors.New("order: permission denied")
	// ErrOrderNoAvailableItems indicates no requested line had stock left, so nothing was reserved.
	ErrOrderNoAvailableItems = errors.New("order: no available items")
	// ErrOrderUnavailable indicates the store failed or transaction retries were exhausted.
	ErrOrderUnavailable = errors.New("order: store unavailable")
)

// OrderReservationServiceDeps bundles collaborators required to construct the reservation service.
type OrderReservationServiceDeps struct {
	Orders          repositories.OrderRepository
	Rules           repositories.DiscountRuleStore
	SellerIndex     repositories.SellerOrderIndex
	Events          OrderEventPublisher
	DefaultCurrency string
	Clock           func() time.Time
	IDGenerator     func() string
	Logger          func(ctx context.Context, event string, fields map[string]any)
}

type orderReservationService struct {
	orders          repositories.OrderRepository
	rules           repositories.DiscountRuleStore
	sellerIndex     repositories.SellerOrderIndex
	events          OrderEventPublisher
	defaultCurrency string
	clock           func() time.Time
	newID           func() string
	logger          func(context.Context, string, map[string]any)
}

var _ OrderReservationService = (*orderReservationService)(nil)

// NewOrderReservationService wires the authoritative order creation path.
func NewOrderReservationService(deps OrderReservationServiceDeps) (OrderReservationService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order reservation service: order repository is required")
	}
	if deps.Rules == nil {
		return nil, errors.New("order reservation service: discount rule store is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	newID := deps.IDGenerator
	if newID == nil {
		newID = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderReservationService{
		orders:          deps.Orders,
		rules:           deps.Rules,
		sellerIndex:     deps.SellerIndex,
		events:          deps.Events,
		defaultCurrency: deps.DefaultCurrency,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  newID,
		logger: logger,
	}, nil
}

func (s *orderReservationService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (CreateOrderResult, error) {
	ctx, span := observability.StartSpan(ctx, "OrderReservation.CreateOrder")
	defer span.End()

	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return CreateOrderResult{}, fmt.Errorf("%w: userId is required", ErrOrderInvalidInput)
	}
	if !cmd.Actor.CanActForUser(userID) {
		return CreateOrderResult{}, ErrOrderPermissionDenied
	}
	sellerID := strings.TrimSpace(cmd.SellerID)
	if sellerID == "" {
		return CreateOrderResult{}, fmt.Errorf("%w: sellerUserId is required", ErrOrderInvalidInput)
	}
	unit, err := currency.ParseISO(strings.ToUpper(firstNonEmpty(cmd.Currency, s.defaultCurrency)))
	if err != nil {
		return CreateOrderResult{}, fmt.Errorf("%w: currency: %v", ErrOrderInvalidInput, err)
	}
	code := unit.String()
	lines, err := normalizeCartLines(cmd.Lines)
	if err != nil {
		return CreateOrderResult{}, fmt.Errorf("%w: %v", ErrOrderInvalidInput, err)
	}
	if len(cmd.DiscountCodes) > maxDiscountCodes {
		return CreateOrderResult{}, fmt.Errorf("%w: at most %d discount codes are allowed", ErrOrderInvalidInput, maxDiscountCodes)
	}
	siteID := strings.TrimSpace(cmd.SiteID)
	span.SetAttributes(
		attribute.String("order.user_id", userID),
		attribute.String("order.seller_id", sellerID),
		attribute.Int("order.requested_lines", len(lines)),
	)

	var rules []domain.DiscountRule
	if len(normalizeDiscountCodes(cmd.DiscountCodes)) > 0 {
		rules, err = s.rules.ListRules(ctx, siteID)
		if err != nil {
			span.RecordError(err)
			return CreateOrderResult{}, fmt.Errorf("%w: discount rules: %v", ErrOrderUnavailable, err)
		}
	}

	now := s.clock()
	orderID := orderIDPrefix + s.newID()
	clientPrices := make(map[string]*int64, len(lines))
	reservation := repositories.ReservationRequest{Now: now}
	for _, line := range lines {
		clientPrices[line.LineID] = line.ClientUnitPrice
		reservation.Lines = append(reservation.Lines, repositories.ReservationLine{
			LineID:    line.LineID,
			ProductID: line.ProductID,
			VariantID: line.VariantID,
			Quantity:  line.Quantity,
		})
	}

	var rejected []domain.DiscountRejection
	build := func(reserved []repositories.ReservedLine, adjustments []domain.StockAdjustment) (domain.Order, error) {
		order := domain.Order{
			ID:               orderID,
			UserID:           userID,
			SellerID:         sellerID,
			SiteID:           siteID,
			Currency:         code,
			LifecycleStatus:  domain.LifecycleStatusPendingPayment,
			Status:           domain.LegacyStatus(domain.LifecycleStatusPendingPayment),
			StockAdjustments: adjustments,
			CreatedAt:        now,
			UpdatedAt:        now,
			Version:          1,
			StatusHistory: []domain.StatusHistoryEntry{{
				To:   domain.LifecycleStatusPendingPayment,
				At:   now,
				Note: "order created",
			}},
		}
		priced := make([]domain.PricedLine, 0, len(reserved))
		for _, line := range reserved {
			cartLine := domain.CartLine{
				LineID:          line.LineID,
				ProductID:       line.Product.ID,
				Quantity:        line.Quantity,
				ClientUnitPrice: clientPrices[line.LineID],
			}
			if line.Variant != nil {
				cartLine.VariantID = line.Variant.ID
			}
			p := priceLine(cartLine, line.Product, line.Variant, line.Quantity)
			priced = append(priced, p)
			order.Lines = append(order.Lines, normalizeOrderLine(line, p.UnitPrice))
			order.Subtotal += p.LineTotal
		}

		discounts := EvaluateDiscounts(DiscountInput{
			Subtotal: order.Subtotal,
			Currency: code,
			Lines:    priced,
			Codes:    cmd.DiscountCodes,
			Rules:    rules,
		})
		order.Discounts = discounts.Applied
		order.DiscountAmount = discounts.DiscountAmount
		order.Total = DiscountedTotal(order.Subtotal, discounts.DiscountAmount)
		rejected = discounts.Rejected
		return order, nil
	}

	order, err := s.orders.ReserveAndCreate(ctx, reservation, build)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reserve failed")
		return CreateOrderResult{}, s.mapReserveError(ctx, orderID, err)
	}
	span.SetAttributes(attribute.String("order.id", order.ID), attribute.Int("order.lines", len(order.Lines)))

	result := CreateOrderResult{Order: order, Rejected: rejected}
	if s.sellerIndex != nil {
		if err := s.sellerIndex.Upsert(ctx, domain.SummaryFromOrder(order)); err != nil {
			result.IndexErr = err
			s.logger(ctx, "order.seller_index.write_failed", map[string]any{
				"orderId":  order.ID,
				"sellerId": order.SellerID,
				"error":    err,
			})
		}
	}
	s.publish(ctx, OrderEvent{
		Type:            OrderEventCreated,
		OrderID:         order.ID,
		UserID:          order.UserID,
		SellerID:        order.SellerID,
		LifecycleStatus: order.LifecycleStatus,
		Total:           order.Total,
		Currency:        order.Currency,
		OccurredAt:      now,
	})

	s.logger(ctx, "order.created", map[string]any{
		"orderId":     order.ID,
		"lines":       len(order.Lines),
		"adjustments": len(order.StockAdjustments),
		"total":       order.Total,
	})
	return result, nil
}

func (s *orderReservationService) mapReserveError(ctx context.Context, orderID string, err error) error {
	switch {
	case errors.Is(err, repositories.ErrNoAvailableItems):
		return ErrOrderNoAvailableItems
	case repositories.IsConflict(err), repositories.IsUnavailable(err):
		s.logger(ctx, "order.reserve.failed", map[string]any{"orderId": orderID, "error": err})
		return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
	default:
		s.logger(ctx, "order.reserve.failed", map[string]any{"orderId": orderID, "error": err})
		return fmt.Errorf("order: reserve: %w", err)
	}
}

func (s *orderReservationService) publish(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if _, err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish_failed", map[string]any{
			"orderId": event.OrderID,
			"type":    event.Type,
			"error":   err,
		})
	}
}

// normalizeOrderLine resolves display attributes from the variant first, then the product.
func normalizeOrderLine(line repositories.ReservedLine, unitPrice int64) domain.OrderLine {
	product := line.Product
	out := domain.OrderLine{
		ProductID: product.ID,
		Quantity:  line.Quantity,
		UnitPrice: unitPrice,
		SKU:       product.SKU,
		Name:      product.Name,
		Weight:    product.Weight,
		TaxCode:   product.TaxCode,
	}
	if v := line.Variant; v != nil {
		out.VariantID = v.ID
		out.SKU = firstNonEmpty(v.SKU, out.SKU)
		out.Name = firstNonEmpty(v.Name, out.Name)
		out.TaxCode = firstNonEmpty(v.TaxCode, out.TaxCode)
		if v.Weight != nil {
			out.Weight = v.Weight
		}
		if len(v.Options) > 0 {
			out.Options = maps.Clone(v.Options)
		}
	}
	return out
}
