package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/hanko-field/checkout/internal/domain"
	pfirestore "github.com/hanko-field/checkout/internal/platform/firestore"
	"github.com/hanko-field/checkout/internal/repositories"
)

const ordersCollection = "orders"

// OrderRepository persists orders and the product reservation counters they hold.
type OrderRepository struct {
	provider *pfirestore.Provider
}

func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{provider: provider}, nil
}

func (r *OrderRepository) ReserveAndCreate(ctx context.Context, req repositories.ReservationRequest, build repositories.OrderBuilder) (domain.Order, error) {
	if len(req.Lines) == 0 {
		return domain.Order{}, repositories.ErrNoAvailableItems
	}
	if build == nil {
		return domain.Order{}, errors.New("order reserve: order builder is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Order{}, err
	}
	now := req.Now.UTC()
	if req.Now.IsZero() {
		now = time.Now().UTC()
	}

	var created domain.Order
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		products, err := readProducts(tx, client, productIDsOf(req.Lines))
		if err != nil {
			return err
		}

		plan := repositories.PlanReservation(products, req.Lines)
		if len(plan.Lines) == 0 {
			return repositories.ErrNoAvailableItems
		}

		order, err := build(plan.Lines, plan.Adjustments)
		if err != nil {
			return err
		}
		if strings.TrimSpace(order.ID) == "" {
			return errors.New("order reserve: built order has no id")
		}

		for _, id := range plan.Touched {
			if err := tx.Update(client.Collection(productsCollection).Doc(id), reservationUpdates(products[id], now)); err != nil {
				return err
			}
		}
		if err := tx.Create(client.Collection(ordersCollection).Doc(order.ID), encodeOrder(order)); err != nil {
			return err
		}
		created = order
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	return created, nil
}

func (r *OrderRepository) Transition(ctx context.Context, orderID string, fn repositories.TransitionFunc) (domain.Order, repositories.TransitionPlan, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, repositories.TransitionPlan{}, pfirestore.NotFound("orders.transition", "order id is required")
	}
	if fn == nil {
		return domain.Order{}, repositories.TransitionPlan{}, errors.New("orders.transition: transition func is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Order{}, repositories.TransitionPlan{}, err
	}
	orderRef := client.Collection(ordersCollection).Doc(orderID)

	var (
		result domain.Order
		plan   repositories.TransitionPlan
	)
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(orderRef)
		if err != nil {
			return pfirestore.WrapError("orders.transition", err)
		}
		order, err := decodeOrder(snap)
		if err != nil {
			return err
		}
		decided, err := fn(&order)
		if err != nil {
			return err
		}
		plan, result = decided, order
		if !decided.Write {
			return nil
		}

		if decided.ReleaseReservations {
			ids := make([]string, 0, len(order.Lines))
			for _, line := range order.Lines {
				ids = append(ids, line.ProductID)
			}
			products, err := readProducts(tx, client, uniqueStrings(ids))
			if err != nil {
				return err
			}
			for _, id := range repositories.PlanRelease(products, order.Lines) {
				if err := tx.Update(client.Collection(productsCollection).Doc(id), reservationUpdates(products[id], order.UpdatedAt)); err != nil {
					return err
				}
			}
		}
		return tx.Set(orderRef, encodeOrder(order))
	})
	if err != nil {
		return domain.Order{}, repositories.TransitionPlan{}, err
	}
	return result, plan, nil
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, pfirestore.NotFound("orders.find", "order id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Order{}, err
	}
	snap, err := client.Collection(ordersCollection).Doc(orderID).Get(ctx)
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.find", err)
	}
	return decodeOrder(snap)
}

// readProducts fetches every id inside tx. Missing products map to nil.
func readProducts(tx *firestore.Transaction, client *firestore.Client, ids []string) (map[string]*domain.Product, error) {
	products := make(map[string]*domain.Product, len(ids))
	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			products[id] = nil
			continue
		}
		snap, err := tx.Get(client.Collection(productsCollection).Doc(id))
		if err != nil {
			if pfirestore.IsNotFoundStatus(err) {
				products[id] = nil
				continue
			}
			return nil, err
		}
		product, err := decodeProduct(snap)
		if err != nil {
			return nil, err
		}
		products[id] = &product
	}
	return products, nil
}

func reservationUpdates(product *domain.Product, now time.Time) []firestore.Update {
	updates := []firestore.Update{
		{Path: "reserved", Value: product.Reserved},
		{Path: "updatedAt", Value: now},
	}
	if len(product.Variants) > 0 {
		updates = append(updates, firestore.Update{Path: "variants", Value: encodeVariants(product.Variants)})
	}
	return updates
}

func productIDsOf(lines []repositories.ReservationLine) []string {
	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ProductID)
	}
	return uniqueStrings(ids)
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

type orderDocument struct {
	UserID              string                    `firestore:"userId"`
	SellerID            string                    `firestore:"sellerId"`
	SiteID              string                    `firestore:"siteId,omitempty"`
	Lines               []orderLineDocument       `firestore:"items"`
	Subtotal            int64                     `firestore:"subtotal"`
	DiscountAmount      int64                     `firestore:"discountAmount"`
	Total               int64                     `firestore:"total"`
	Currency            string                    `firestore:"currency"`
	Discounts           []appliedDiscountDocument `firestore:"discounts"`
	LifecycleStatus     string                    `firestore:"lifecycleStatus"`
	Status              string                    `firestore:"status"`
	StatusHistory       []statusHistoryDocument   `firestore:"statusHistory"`
	StockAdjustments    []stockAdjustmentDocument `firestore:"stockAdjustments"`
	ReservationReleased bool                      `firestore:"reservationReleased"`
	CreatedAt           time.Time                 `firestore:"createdAt"`
	UpdatedAt           time.Time                 `firestore:"updatedAt"`
	PaidAt              *time.Time                `firestore:"paidAt"`
	ExpiredAt           *time.Time                `firestore:"expiredAt"`
	FailedAt            *time.Time                `firestore:"failedAt"`
	RefundedAt          *time.Time                `firestore:"refundedAt"`
	Version             int                       `firestore:"version"`
}

type orderLineDocument struct {
	ProductID string            `firestore:"productId"`
	VariantID string            `firestore:"variantId,omitempty"`
	Quantity  int               `firestore:"qty"`
	UnitPrice int64             `firestore:"unitPrice"`
	SKU       string            `firestore:"sku"`
	Name      string            `firestore:"name"`
	Weight    *float64          `firestore:"weight"`
	TaxCode   string            `firestore:"taxCode,omitempty"`
	Options   map[string]string `firestore:"options,omitempty"`
}

type appliedDiscountDocument struct {
	Code   string `firestore:"code"`
	Type   string `firestore:"type"`
	Amount int64  `firestore:"amount"`
}

type statusHistoryDocument struct {
	From    string    `firestore:"from"`
	To      string    `firestore:"to"`
	At      time.Time `firestore:"at"`
	Note    string    `firestore:"note,omitempty"`
	EventID string    `firestore:"eventId,omitempty"`
}

type stockAdjustmentDocument struct {
	LineID    string `firestore:"lineId,omitempty"`
	ProductID string `firestore:"productId"`
	VariantID string `firestore:"variantId,omitempty"`
	FromQty   int    `firestore:"fromQty"`
	ToQty     int    `firestore:"toQty"`
	Reason    string `firestore:"reason"`
}

func encodeOrder(order domain.Order) orderDocument {
	doc := orderDocument{
		UserID:              order.UserID,
		SellerID:            order.SellerID,
		SiteID:              order.SiteID,
		Subtotal:            order.Subtotal,
		DiscountAmount:      order.DiscountAmount,
		Total:               order.Total,
		Currency:            order.Currency,
		LifecycleStatus:     string(order.LifecycleStatus),
		Status:              string(order.Status),
		ReservationReleased: order.ReservationReleased,
		CreatedAt:           order.CreatedAt.UTC(),
		UpdatedAt:           order.UpdatedAt.UTC(),
		PaidAt:              order.PaidAt,
		ExpiredAt:           order.ExpiredAt,
		FailedAt:            order.FailedAt,
		RefundedAt:          order.RefundedAt,
		Version:             order.Version,
	}
	for _, line := range order.Lines {
		doc.Lines = append(doc.Lines, orderLineDocument(line))
	}
	for _, d := range order.Discounts {
		doc.Discounts = append(doc.Discounts, appliedDiscountDocument{Code: d.Code, Type: string(d.Type), Amount: d.Amount})
	}
	for _, h := range order.StatusHistory {
		doc.StatusHistory = append(doc.StatusHistory, statusHistoryDocument{
			From: string(h.From), To: string(h.To), At: h.At.UTC(), Note: h.Note, EventID: h.EventID,
		})
	}
	for _, a := range order.StockAdjustments {
		doc.StockAdjustments = append(doc.StockAdjustments, stockAdjustmentDocument(a))
	}
	return doc
}

func decodeOrder(snap *firestore.DocumentSnapshot) (domain.Order, error) {
	var doc orderDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Order{}, fmt.Errorf("decode order %s: %w", snap.Ref.ID, err)
	}
	order := domain.Order{
		ID:                  snap.Ref.ID,
		UserID:              doc.UserID,
		SellerID:            doc.SellerID,
		SiteID:              doc.SiteID,
		Subtotal:            doc.Subtotal,
		DiscountAmount:      doc.DiscountAmount,
		Total:               doc.Total,
		Currency:            doc.Currency,
		LifecycleStatus:     domain.LifecycleStatus(doc.LifecycleStatus),
		Status:              domain.OrderStatus(doc.Status),
		ReservationReleased: doc.ReservationReleased,
		CreatedAt:           doc.CreatedAt,
		UpdatedAt:           doc.UpdatedAt,
		PaidAt:              doc.PaidAt,
		ExpiredAt:           doc.ExpiredAt,
		FailedAt:            doc.FailedAt,
		RefundedAt:          doc.RefundedAt,
		Version:             doc.Version,
	}
	for _, line := range doc.Lines {
		order.Lines = append(order.Lines, domain.OrderLine(line))
	}
	for _, d := range doc.Discounts {
		order.Discounts = append(order.Discounts, domain.AppliedDiscount{Code: d.Code, Type: domain.DiscountType(d.Type), Amount: d.Amount})
	}
	for _, h := range doc.StatusHistory {
		order.StatusHistory = append(order.StatusHistory, domain.StatusHistoryEntry{
			From: domain.LifecycleStatus(h.From), To: domain.LifecycleStatus(h.To), At: h.At, Note: h.Note, EventID: h.EventID,
		})
	}
	for _, a := range doc.StockAdjustments {
		order.StockAdjustments = append(order.StockAdjustments, domain.StockAdjustment(a))
	}
	return order, nil
}
