package services

import (
	"testing"

	domain "github.com/hanko-field/checkout/internal/domain"
)

func float64Ptr(v float64) *float64 { return &v }

func rejectionReasons(result domain.DiscountResult) map[string]string {
	out := make(map[string]string, len(result.Rejected))
	for _, r := range result.Rejected {
		out[r.Code] = r.Reason
	}
	return out
}

func TestEvaluateDiscountsPercentCode(t *testing.T) {
	result := EvaluateDiscounts(DiscountInput{
		Subtotal: 10000,
		Currency: "JPY",
		Codes:    []string{"SAVE10"},
		Rules:    []domain.DiscountRule{{Code: "SAVE10", Type: domain.DiscountTypePercent, Amount: 10, Stackable: true}},
	})

	if len(result.Applied) != 1 || result.Applied[0].Code != "SAVE10" || result.Applied[0].Amount != 1000 {
		t.Fatalf("unexpected applied discounts: %+v", result.Applied)
	}
	if result.DiscountAmount != 1000 {
		t.Fatalf("expected discount 1000, got %d", result.DiscountAmount)
	}
	if total := DiscountedTotal(10000, result.DiscountAmount); total != 9000 {
		t.Fatalf("expected total 9000, got %d", total)
	}
}

func TestEvaluateDiscountsDedupesAndRejectsUnknown(t *testing.T) {
	result := EvaluateDiscounts(DiscountInput{
		Subtotal: 10000,
		Codes:    []string{" save10", "SAVE10", "missing", ""},
		Rules:    []domain.DiscountRule{{Code: "SAVE10", Type: domain.DiscountTypePercent, Amount: 10, Stackable: true}},
	})

	if len(result.Applied) != 1 {
		t.Fatalf("expected duplicate code to apply once, got %+v", result.Applied)
	}
	if len(result.Rejected) != 1 || result.Rejected[0].Code != "MISSING" || result.Rejected[0].Reason != domain.RejectNotFound {
		t.Fatalf("unexpected rejections: %+v", result.Rejected)
	}
}

func TestEvaluateDiscountsMinSpendUsesCurrencyScale(t *testing.T) {
	rules := []domain.DiscountRule{{Code: "BIG", Type: domain.DiscountTypeFixed, Amount: 500, Stackable: true, MinSpend: float64Ptr(50)}}

	usd := EvaluateDiscounts(DiscountInput{Subtotal: 4999, Currency: "USD", Codes: []string{"BIG"}, Rules: rules})
	if reason := rejectionReasons(usd)["BIG"]; reason != domain.RejectMinSpend {
		t.Fatalf("expected min_spend rejection for 49.99 USD, got %q", reason)
	}

	usdOK := EvaluateDiscounts(DiscountInput{Subtotal: 5000, Currency: "USD", Codes: []string{"BIG"}, Rules: rules})
	if usdOK.DiscountAmount != 500 {
		t.Fatalf("expected code to apply at exactly 50.00 USD, got %+v", usdOK)
	}

	jpy := EvaluateDiscounts(DiscountInput{Subtotal: 50, Currency: "JPY", Codes: []string{"BIG"}, Rules: rules})
	if jpy.DiscountAmount != 50 {
		t.Fatalf("expected JPY min spend of 50 to be met and capped at subtotal, got %+v", jpy)
	}
}

func TestEvaluateDiscountsExclusions(t *testing.T) {
	lines := []domain.PricedLine{
		{ProductID: "prod_a", Categories: []string{"stamps"}, Quantity: 1, UnitPrice: 1000, LineTotal: 1000},
		{ProductID: "prod_b", Categories: []string{"ink"}, Quantity: 1, UnitPrice: 1000, LineTotal: 1000},
	}
	rules := []domain.DiscountRule{
		{Code: "NOA", Type: domain.DiscountTypeFixed, Amount: 100, Stackable: true, ExcludeProducts: []string{"prod_a"}},
		{Code: "NOINK", Type: domain.DiscountTypeFixed, Amount: 100, Stackable: true, ExcludeCategories: []string{"ink"}},
		{Code: "OTHER", Type: domain.DiscountTypeFixed, Amount: 100, Stackable: true, ExcludeProducts: []string{"prod_z"}},
	}

	result := EvaluateDiscounts(DiscountInput{Subtotal: 2000, Lines: lines, Codes: []string{"NOA", "NOINK", "OTHER"}, Rules: rules})
	reasons := rejectionReasons(result)
	if reasons["NOA"] != domain.RejectExclusionProduct {
		t.Fatalf("expected exclusion_product, got %q", reasons["NOA"])
	}
	if reasons["NOINK"] != domain.RejectExclusionCategory {
		t.Fatalf("expected exclusion_category, got %q", reasons["NOINK"])
	}
	if len(result.Applied) != 1 || result.Applied[0].Code != "OTHER" {
		t.Fatalf("expected OTHER to apply, got %+v", result.Applied)
	}
}

func TestEvaluateDiscountsNonStacking(t *testing.T) {
	rules := []domain.DiscountRule{
		{Code: "SPRING", Type: domain.DiscountTypeFixed, Amount: 100, Stackable: true, NonStackingGroup: "Seasonal"},
		{Code: "SUMMER", Type: domain.DiscountTypeFixed, Amount: 200, Stackable: true, NonStackingGroup: "seasonal"},
		{Code: "SOLO", Type: domain.DiscountTypeFixed, Amount: 300, Stackable: false},
		{Code: "EXTRA", Type: domain.DiscountTypeFixed, Amount: 50, Stackable: true},
	}

	cases := []struct {
		name     string
		codes    []string
		applied  string
		rejected string
	}{
		{name: "shared group", codes: []string{"SPRING", "SUMMER"}, applied: "SPRING", rejected: "SUMMER"},
		{name: "non-stackable after accepted", codes: []string{"EXTRA", "SOLO"}, applied: "EXTRA", rejected: "SOLO"},
		{name: "stackable after non-stackable", codes: []string{"SOLO", "EXTRA"}, applied: "SOLO", rejected: "EXTRA"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := EvaluateDiscounts(DiscountInput{Subtotal: 10000, Codes: tc.codes, Rules: rules})
			if len(result.Applied) != 1 || result.Applied[0].Code != tc.applied {
				t.Fatalf("expected only %s applied, got %+v", tc.applied, result.Applied)
			}
			if len(result.Rejected) != 1 || result.Rejected[0].Code != tc.rejected || result.Rejected[0].Reason != domain.RejectNonStackable {
				t.Fatalf("expected %s rejected as non_stackable, got %+v", tc.rejected, result.Rejected)
			}
		})
	}
}

func TestEvaluateDiscountsCapsAtRemaining(t *testing.T) {
	rules := []domain.DiscountRule{
		{Code: "A", Type: domain.DiscountTypeFixed, Amount: 8000, Stackable: true},
		{Code: "B", Type: domain.DiscountTypeFixed, Amount: 5000, Stackable: true},
		{Code: "C", Type: domain.DiscountTypePercent, Amount: 10, Stackable: true},
	}

	result := EvaluateDiscounts(DiscountInput{Subtotal: 10000, Codes: []string{"A", "B", "C"}, Rules: rules})
	if result.DiscountAmount != 10000 {
		t.Fatalf("expected discount capped at subtotal, got %d", result.DiscountAmount)
	}
	if len(result.Applied) != 2 || result.Applied[1].Amount != 2000 {
		t.Fatalf("expected second code capped at 2000, got %+v", result.Applied)
	}
	if reason := rejectionReasons(result)["C"]; reason != domain.RejectNoRemaining {
		t.Fatalf("expected no_remaining, got %q", reason)
	}
	if total := DiscountedTotal(10000, result.DiscountAmount); total != 0 {
		t.Fatalf("expected zero total, got %d", total)
	}
}

func TestEvaluateDiscountsRoundingAndZeroValue(t *testing.T) {
	rules := []domain.DiscountRule{
		{Code: "ODD", Type: domain.DiscountTypePercent, Amount: 12.345, Stackable: true},
		{Code: "TINY", Type: domain.DiscountTypePercent, Amount: 0.001, Stackable: true},
	}

	result := EvaluateDiscounts(DiscountInput{Subtotal: 10000, Codes: []string{"ODD", "TINY"}, Rules: rules})
	if len(result.Applied) != 1 || result.Applied[0].Amount != 1235 {
		t.Fatalf("expected 1234.5 to round to 1235, got %+v", result.Applied)
	}
	if reason := rejectionReasons(result)["TINY"]; reason != domain.RejectZeroValue {
		t.Fatalf("expected zero_value, got %q", reason)
	}
}

func TestEvaluateDiscountsIsDeterministic(t *testing.T) {
	in := DiscountInput{
		Subtotal: 7777,
		Currency: "USD",
		Codes:    []string{"A", "B", "missing"},
		Rules: []domain.DiscountRule{
			{Code: "B", Type: domain.DiscountTypeFixed, Amount: 700, Stackable: true},
			{Code: "A", Type: domain.DiscountTypePercent, Amount: 15, Stackable: true},
		},
	}
	first := EvaluateDiscounts(in)
	for i := 0; i < 5; i++ {
		again := EvaluateDiscounts(in)
		if again.DiscountAmount != first.DiscountAmount || len(again.Applied) != len(first.Applied) || len(again.Rejected) != len(first.Rejected) {
			t.Fatalf("evaluation diverged: %+v vs %+v", first, again)
		}
	}
}
