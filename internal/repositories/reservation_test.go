package repositories

import (
	"testing"

	domain "github.com/hanko-field/checkout/internal/domain"
)

func stockOf(v int64) *int64 { return &v }

func TestPlanReservationDropsMissingAndSoldOutLines(t *testing.T) {
	products := map[string]*domain.Product{
		"sold-out": {ID: "sold-out", Stock: stockOf(2), Reserved: 2},
		"shirt":    {ID: "shirt", Variants: []domain.Variant{{ID: "red", Stock: stockOf(1)}}},
		"ghost":    nil,
	}

	plan := PlanReservation(products, []ReservationLine{
		{LineID: "l1", ProductID: "missing", Quantity: 1},
		{LineID: "l2", ProductID: "ghost", Quantity: 1},
		{LineID: "l3", ProductID: "shirt", VariantID: "blue", Quantity: 1},
		{LineID: "l4", ProductID: "sold-out", Quantity: 1},
	})

	if len(plan.Lines) != 0 || len(plan.Touched) != 0 {
		t.Fatalf("expected nothing reserved, got %+v", plan)
	}
	want := []string{domain.RemovalNotFound, domain.RemovalNotFound, domain.RemovalVariantNotFound, domain.RemovalOutOfStock}
	if len(plan.Adjustments) != len(want) {
		t.Fatalf("expected %d adjustments, got %+v", len(want), plan.Adjustments)
	}
	for i, reason := range want {
		adj := plan.Adjustments[i]
		if adj.Reason != reason || adj.ToQty != 0 || adj.FromQty != 1 {
			t.Fatalf("adjustment %d: expected %s 1->0, got %+v", i, reason, adj)
		}
	}
	if products["sold-out"].Reserved != 2 {
		t.Fatalf("dropped line must not touch reserved, got %d", products["sold-out"].Reserved)
	}
}

func TestPlanReservationClampsToEffectiveAvailability(t *testing.T) {
	products := map[string]*domain.Product{
		"mug": {ID: "mug", Stock: stockOf(5), Reserved: 3},
	}

	plan := PlanReservation(products, []ReservationLine{{LineID: "l1", ProductID: "mug", Quantity: 4}})

	if len(plan.Lines) != 1 || plan.Lines[0].Quantity != 2 {
		t.Fatalf("expected one line clamped to 2, got %+v", plan.Lines)
	}
	if len(plan.Adjustments) != 1 {
		t.Fatalf("expected one adjustment, got %+v", plan.Adjustments)
	}
	adj := plan.Adjustments[0]
	if adj.Reason != domain.AdjustmentStockClamped || adj.FromQty != 4 || adj.ToQty != 2 || adj.LineID != "l1" {
		t.Fatalf("unexpected clamp adjustment %+v", adj)
	}
	if products["mug"].Reserved != 5 {
		t.Fatalf("expected reserved 5, got %d", products["mug"].Reserved)
	}
	if plan.Lines[0].Product.Reserved != 5 {
		t.Fatalf("reserved line must carry the updated record, got %d", plan.Lines[0].Product.Reserved)
	}
	if len(plan.Touched) != 1 || plan.Touched[0] != "mug" {
		t.Fatalf("expected mug touched, got %v", plan.Touched)
	}
}

func TestPlanReservationScopesVariantCounters(t *testing.T) {
	products := map[string]*domain.Product{
		"shirt": {
			ID:       "shirt",
			Stock:    stockOf(1),
			Reserved: 1,
			Variants: []domain.Variant{{ID: "red", Stock: stockOf(3), Reserved: 1}, {ID: "blue"}},
		},
	}

	plan := PlanReservation(products, []ReservationLine{
		{LineID: "l1", ProductID: "shirt", VariantID: "red", Quantity: 2},
		{LineID: "l2", ProductID: "shirt", VariantID: "blue", Quantity: 7},
	})

	if len(plan.Lines) != 2 || len(plan.Adjustments) != 0 {
		t.Fatalf("expected both variant lines reserved in full, got %+v", plan)
	}
	shirt := products["shirt"]
	if shirt.Reserved != 1 {
		t.Fatalf("product counter must stay untouched, got %d", shirt.Reserved)
	}
	if shirt.Variants[0].Reserved != 3 || shirt.Variants[1].Reserved != 7 {
		t.Fatalf("unexpected variant counters %+v", shirt.Variants)
	}
	if plan.Lines[0].Variant == nil || plan.Lines[0].Variant.ID != "red" {
		t.Fatalf("expected red variant on first line, got %+v", plan.Lines[0].Variant)
	}
	if len(plan.Touched) != 1 {
		t.Fatalf("expected product touched once, got %v", plan.Touched)
	}
}

func TestPlanReservationAccumulatesRepeatedProduct(t *testing.T) {
	products := map[string]*domain.Product{
		"pen": {ID: "pen", Stock: stockOf(3)},
	}

	plan := PlanReservation(products, []ReservationLine{
		{LineID: "a", ProductID: "pen", Quantity: 2},
		{LineID: "b", ProductID: "pen", Quantity: 2},
		{LineID: "c", ProductID: "pen", Quantity: 1},
	})

	if len(plan.Lines) != 2 || plan.Lines[0].Quantity != 2 || plan.Lines[1].Quantity != 1 {
		t.Fatalf("expected 2 then clamped 1, got %+v", plan.Lines)
	}
	if len(plan.Adjustments) != 2 {
		t.Fatalf("expected clamp and drop, got %+v", plan.Adjustments)
	}
	if plan.Adjustments[0].LineID != "b" || plan.Adjustments[0].Reason != domain.AdjustmentStockClamped {
		t.Fatalf("expected line b clamped, got %+v", plan.Adjustments[0])
	}
	if plan.Adjustments[1].LineID != "c" || plan.Adjustments[1].Reason != domain.RemovalOutOfStock {
		t.Fatalf("expected line c dropped, got %+v", plan.Adjustments[1])
	}
	if products["pen"].Reserved != 3 {
		t.Fatalf("expected reserved 3, never above stock, got %d", products["pen"].Reserved)
	}
	if len(plan.Touched) != 1 {
		t.Fatalf("expected pen touched once, got %v", plan.Touched)
	}
}

func TestPlanReservationUnlimitedStock(t *testing.T) {
	products := map[string]*domain.Product{
		"ebook": {ID: "ebook", Reserved: 40},
	}

	plan := PlanReservation(products, []ReservationLine{
		{LineID: "l1", ProductID: "ebook", Quantity: 100},
		{LineID: "l2", ProductID: "ebook", Quantity: 0},
	})

	if len(plan.Lines) != 1 || plan.Lines[0].Quantity != 100 || len(plan.Adjustments) != 0 {
		t.Fatalf("expected unlimited line reserved in full, got %+v", plan)
	}
	if products["ebook"].Reserved != 140 {
		t.Fatalf("expected reserved 140, got %d", products["ebook"].Reserved)
	}
}

func TestPlanReleaseFloorsAtZero(t *testing.T) {
	products := map[string]*domain.Product{
		"mug":   {ID: "mug", Reserved: 1},
		"shirt": {ID: "shirt", Reserved: 4, Variants: []domain.Variant{{ID: "red", Reserved: 5}}},
	}

	touched := PlanRelease(products, []domain.OrderLine{
		{ProductID: "mug", Quantity: 3},
		{ProductID: "shirt", VariantID: "red", Quantity: 2},
		{ProductID: "shirt", VariantID: "gone", Quantity: 2},
		{ProductID: "deleted", Quantity: 1},
	})

	if products["mug"].Reserved != 0 {
		t.Fatalf("expected mug floored at 0, got %d", products["mug"].Reserved)
	}
	if products["shirt"].Variants[0].Reserved != 3 || products["shirt"].Reserved != 4 {
		t.Fatalf("expected only the red variant released, got %+v", products["shirt"])
	}
	if len(touched) != 2 || touched[0] != "mug" || touched[1] != "shirt" {
		t.Fatalf("unexpected touched ids %v", touched)
	}
}

func TestReleaseCount(t *testing.T) {
	if got := ReleaseCount(2, 5); got != 0 {
		t.Fatalf("expected floor at 0, got %d", got)
	}
	if got := ReleaseCount(5, 2); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
}
