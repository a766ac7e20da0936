package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	domain "github.com/hanko-field/checkout/internal/domain"
	pfirestore "github.com/hanko-field/checkout/internal/platform/firestore"
	"github.com/hanko-field/checkout/internal/platform/pagination"
	"github.com/hanko-field/checkout/internal/repositories"
)

const (
	sellersCollection      = "sellers"
	sellerOrdersCollection = "orders"
)

// SellerOrderIndexRepository maintains sellers/{sellerId}/orders/{orderId} summaries.
type SellerOrderIndexRepository struct {
	provider *pfirestore.Provider
}

func NewSellerOrderIndexRepository(provider *pfirestore.Provider) (*SellerOrderIndexRepository, error) {
	if provider == nil {
		return nil, errors.New("seller order index requires firestore provider")
	}
	return &SellerOrderIndexRepository{provider: provider}, nil
}

func (r *SellerOrderIndexRepository) Upsert(ctx context.Context, summary domain.SellerOrderSummary) error {
	coll, err := r.collection(ctx, summary.SellerID)
	if err != nil {
		return err
	}
	if strings.TrimSpace(summary.OrderID) == "" {
		return errors.New("seller index upsert: order id is required")
	}
	if _, err := coll.Doc(summary.OrderID).Set(ctx, encodeSellerSummary(summary)); err != nil {
		return pfirestore.WrapError("sellerIndex.upsert", err)
	}
	return nil
}

func (r *SellerOrderIndexRepository) UpdateStatus(ctx context.Context, summary domain.SellerOrderSummary) error {
	coll, err := r.collection(ctx, summary.SellerID)
	if err != nil {
		return err
	}
	if strings.TrimSpace(summary.OrderID) == "" {
		return errors.New("seller index update: order id is required")
	}
	_, err = coll.Doc(summary.OrderID).Set(ctx, statusFields(summary), firestore.MergeAll)
	if err != nil {
		return pfirestore.WrapError("sellerIndex.updateStatus", err)
	}
	return nil
}

// statusFields is the merge written on lifecycle changes. createdAt is included so List, which
// orders by it, still finds summaries whose initial Upsert never landed.
func statusFields(s domain.SellerOrderSummary) map[string]any {
	status := s.Status
	if status == "" {
		status = domain.LegacyStatus(s.LifecycleStatus)
	}
	fields := map[string]any{
		"orderId":         s.OrderID,
		"userId":          s.UserID,
		"subtotal":        s.Subtotal,
		"total":           s.Total,
		"currency":        s.Currency,
		"lifecycleStatus": string(s.LifecycleStatus),
		"status":          string(status),
		"createdAt":       s.CreatedAt.UTC(),
		"updatedAt":       s.UpdatedAt.UTC(),
	}
	if s.PaidAt != nil {
		fields["paidAt"] = s.PaidAt.UTC()
	}
	if s.RefundedAt != nil {
		fields["refundedAt"] = s.RefundedAt.UTC()
	}
	return fields
}

func (r *SellerOrderIndexRepository) List(ctx context.Context, query repositories.SellerOrderQuery) (domain.Page[domain.SellerOrderSummary], error) {
	coll, err := r.collection(ctx, query.SellerID)
	if err != nil {
		return domain.Page[domain.SellerOrderSummary]{}, err
	}
	cursor, err := pagination.DecodeToken(query.PageToken)
	if err != nil {
		return domain.Page[domain.SellerOrderSummary]{}, err
	}
	pageSize := query.PageSize
	if pageSize <= 0 {
		pageSize = pagination.DefaultPageSize
	}

	q := coll.Query
	if query.Status != "" {
		q = q.Where("lifecycleStatus", "==", string(query.Status))
	}
	q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
	if !cursor.IsZero() {
		q = q.StartAfter(cursor.CreatedAt, cursor.ID)
	}
	// One extra document tells us whether another page exists.
	iter := q.Limit(pageSize + 1).Documents(ctx)
	defer iter.Stop()

	var items []domain.SellerOrderSummary
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.Page[domain.SellerOrderSummary]{}, pfirestore.WrapError("sellerIndex.list", err)
		}
		summary, err := decodeSellerSummary(query.SellerID, snap)
		if err != nil {
			return domain.Page[domain.SellerOrderSummary]{}, err
		}
		items = append(items, summary)
	}

	page := domain.Page[domain.SellerOrderSummary]{Items: items}
	if len(items) > pageSize {
		page.Items = items[:pageSize]
		last := page.Items[pageSize-1]
		token, err := pagination.EncodeToken(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.OrderID})
		if err != nil {
			return domain.Page[domain.SellerOrderSummary]{}, err
		}
		page.NextPageToken = token
	}
	return page, nil
}

func (r *SellerOrderIndexRepository) collection(ctx context.Context, sellerID string) (*firestore.CollectionRef, error) {
	sellerID = strings.TrimSpace(sellerID)
	if sellerID == "" {
		return nil, errors.New("seller index: seller id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(sellersCollection).Doc(sellerID).Collection(sellerOrdersCollection), nil
}

type sellerSummaryDocument struct {
	OrderID         string     `firestore:"orderId"`
	UserID          string     `firestore:"userId"`
	Subtotal        int64      `firestore:"subtotal"`
	Total           int64      `firestore:"total"`
	Currency        string     `firestore:"currency"`
	Status          string     `firestore:"status"`
	LifecycleStatus string     `firestore:"lifecycleStatus"`
	CreatedAt       time.Time  `firestore:"createdAt"`
	UpdatedAt       time.Time  `firestore:"updatedAt"`
	PaidAt          *time.Time `firestore:"paidAt"`
	RefundedAt      *time.Time `firestore:"refundedAt"`
}

func encodeSellerSummary(s domain.SellerOrderSummary) sellerSummaryDocument {
	return sellerSummaryDocument{
		OrderID:         s.OrderID,
		UserID:          s.UserID,
		Subtotal:        s.Subtotal,
		Total:           s.Total,
		Currency:        s.Currency,
		Status:          string(s.Status),
		LifecycleStatus: string(s.LifecycleStatus),
		CreatedAt:       s.CreatedAt.UTC(),
		UpdatedAt:       s.UpdatedAt.UTC(),
		PaidAt:          utcPtr(s.PaidAt),
		RefundedAt:      utcPtr(s.RefundedAt),
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

func decodeSellerSummary(sellerID string, snap *firestore.DocumentSnapshot) (domain.SellerOrderSummary, error) {
	var doc sellerSummaryDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.SellerOrderSummary{}, fmt.Errorf("decode seller order %s: %w", snap.Ref.ID, err)
	}
	return domain.SellerOrderSummary{
		SellerID:        sellerID,
		OrderID:         snap.Ref.ID,
		UserID:          doc.UserID,
		Subtotal:        doc.Subtotal,
		Total:           doc.Total,
		Currency:        doc.Currency,
		Status:          domain.OrderStatus(doc.Status),
		LifecycleStatus: domain.LifecycleStatus(doc.LifecycleStatus),
		CreatedAt:       doc.CreatedAt,
		UpdatedAt:       doc.UpdatedAt,
		PaidAt:          doc.PaidAt,
		RefundedAt:      doc.RefundedAt,
	}, nil
}
