package firestore

import (
	"testing"
	"time"

	domain "github.com/hanko-field/checkout/internal/domain"
)

func TestEncodeVariantsPreservesReservedCounters(t *testing.T) {
	stock := int64(4)
	docs := encodeVariants([]domain.Variant{{ID: "red", Stock: &stock, Reserved: 3}})
	if len(docs) != 1 || docs[0].Reserved != 3 || *docs[0].Stock != 4 {
		t.Fatalf("unexpected variant docs %+v", docs)
	}
}

func TestEncodeDecodeOrderLinesKeepShape(t *testing.T) {
	order := domain.Order{
		ID:              "ord_1",
		Lines:           []domain.OrderLine{{ProductID: "p", VariantID: "v", Quantity: 2, UnitPrice: 300}},
		LifecycleStatus: domain.LifecycleStatusPendingPayment,
		StatusHistory:   []domain.StatusHistoryEntry{{To: domain.LifecycleStatusPendingPayment}},
	}
	doc := encodeOrder(order)
	if len(doc.Lines) != 1 || doc.Lines[0].Quantity != 2 || doc.LifecycleStatus != "pending_payment" {
		t.Fatalf("unexpected document %+v", doc)
	}
	if doc.StatusHistory[0].From != "" {
		t.Fatalf("initial history entry must have empty from, got %q", doc.StatusHistory[0].From)
	}
}

func TestStatusFieldsCarryProjectionAndStamps(t *testing.T) {
	created := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	refunded := created.Add(72 * time.Hour)
	fields := statusFields(domain.SellerOrderSummary{
		SellerID:        "seller-1",
		OrderID:         "ord_9",
		UserID:          "user-1",
		Total:           1200,
		LifecycleStatus: domain.LifecycleStatusRefunded,
		CreatedAt:       created,
		UpdatedAt:       refunded,
		RefundedAt:      &refunded,
	})

	if fields["status"] != string(domain.OrderStatusRefunded) || fields["lifecycleStatus"] != "refunded" {
		t.Fatalf("unexpected status fields %+v", fields)
	}
	refundedAt, _ := fields["refundedAt"].(time.Time)
	createdAt, _ := fields["createdAt"].(time.Time)
	if !refundedAt.Equal(refunded) || !createdAt.Equal(created) || fields["orderId"] != "ord_9" {
		t.Fatalf("expected refundedAt, createdAt and orderId in merge, got %+v", fields)
	}
	if _, ok := fields["paidAt"]; ok {
		t.Fatalf("paidAt must not be written when unset, got %+v", fields)
	}
}

func TestEncodeSellerSummaryKeepsPaymentStamps(t *testing.T) {
	paid := time.Date(2026, 1, 5, 10, 0, 0, 0, time.FixedZone("JST", 9*3600))
	doc := encodeSellerSummary(domain.SellerOrderSummary{OrderID: "ord_1", PaidAt: &paid})
	if doc.PaidAt == nil || !doc.PaidAt.Equal(paid) || doc.PaidAt.Location() != time.UTC {
		t.Fatalf("expected paidAt stored in UTC, got %v", doc.PaidAt)
	}
	if doc.RefundedAt != nil {
		t.Fatalf("expected no refundedAt, got %v", doc.RefundedAt)
	}
}
