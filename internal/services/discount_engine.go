package services

import (
	"slices"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"

	domain "github.com/hanko-field/checkout/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// DiscountInput is everything the stacking policy looks at. Lines are the priced, post-clamp lines
// the subtotal was computed from.
type DiscountInput struct {
	Subtotal int64
	Currency string
	Lines    []domain.PricedLine
	Codes    []string
	Rules    []domain.DiscountRule
}

// EvaluateDiscounts applies the requested codes in order and returns the accepted set, the capped
// total and the reason every other code was rejected. It has no side effects, so the cart validator
// and the reservation path always agree for the same input.
func EvaluateDiscounts(in DiscountInput) domain.DiscountResult {
	result := domain.DiscountResult{}
	codes := normalizeDiscountCodes(in.Codes)
	if len(codes) == 0 {
		return result
	}

	rules := make(map[string]domain.DiscountRule, len(in.Rules))
	for _, rule := range in.Rules {
		key := normalizeDiscountCode(rule.Code)
		if key == "" {
			continue
		}
		if _, exists := rules[key]; !exists {
			rules[key] = rule
		}
	}

	scale := minorUnitScale(in.Currency)
	subtotal := decimal.NewFromInt(in.Subtotal)

	var accepted []domain.DiscountRule
	for _, code := range codes {
		rule, ok := rules[code]
		if !ok {
			result.Rejected = append(result.Rejected, domain.DiscountRejection{Code: code, Reason: domain.RejectNotFound})
			continue
		}
		if rule.MinSpend != nil && subtotal.LessThan(decimal.NewFromFloat(*rule.MinSpend).Shift(scale)) {
			result.Rejected = append(result.Rejected, domain.DiscountRejection{Code: code, Reason: domain.RejectMinSpend})
			continue
		}
		if reason := exclusionReason(rule, in.Lines); reason != "" {
			result.Rejected = append(result.Rejected, domain.DiscountRejection{Code: code, Reason: reason})
			continue
		}
		if conflictsWithAccepted(rule, accepted) {
			result.Rejected = append(result.Rejected, domain.DiscountRejection{Code: code, Reason: domain.RejectNonStackable})
			continue
		}

		remaining := in.Subtotal - result.DiscountAmount
		if remaining <= 0 {
			result.Rejected = append(result.Rejected, domain.DiscountRejection{Code: code, Reason: domain.RejectNoRemaining})
			continue
		}
		amount := min(rawDiscount(rule, subtotal), remaining)
		if amount <= 0 {
			result.Rejected = append(result.Rejected, domain.DiscountRejection{Code: code, Reason: domain.RejectZeroValue})
			continue
		}

		accepted = append(accepted, rule)
		result.Applied = append(result.Applied, domain.AppliedDiscount{Code: code, Type: rule.Type, Amount: amount})
		result.DiscountAmount += amount
	}
	return result
}

// DiscountedTotal applies a discount to a subtotal without going below zero.
func DiscountedTotal(subtotal, discount int64) int64 {
	return max(0, subtotal-discount)
}

func normalizeDiscountCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func normalizeDiscountCodes(codes []string) []string {
	out := make([]string, 0, len(codes))
	for _, code := range codes {
		code = normalizeDiscountCode(code)
		if code == "" || slices.Contains(out, code) {
			continue
		}
		out = append(out, code)
	}
	return out
}

// minorUnitScale returns the ISO 4217 digits of the currency, or 0 when it is unknown.
func minorUnitScale(code string) int32 {
	unit, err := currency.ParseISO(strings.TrimSpace(code))
	if err != nil {
		return 0
	}
	scale, _ := currency.Standard.Rounding(unit)
	return int32(scale)
}

func exclusionReason(rule domain.DiscountRule, lines []domain.PricedLine) string {
	if len(rule.ExcludeProducts) > 0 {
		for _, line := range lines {
			if slices.Contains(rule.ExcludeProducts, line.ProductID) {
				return domain.RejectExclusionProduct
			}
		}
	}
	if len(rule.ExcludeCategories) > 0 {
		for _, line := range lines {
			for _, category := range line.Categories {
				if slices.Contains(rule.ExcludeCategories, category) {
					return domain.RejectExclusionCategory
				}
			}
		}
	}
	return ""
}

// conflictsWithAccepted rejects a non-stackable rule once anything is accepted, any rule once a
// non-stackable one is accepted, and any rule sharing a group with an accepted one.
func conflictsWithAccepted(rule domain.DiscountRule, accepted []domain.DiscountRule) bool {
	if len(accepted) == 0 {
		return false
	}
	if !rule.Stackable {
		return true
	}
	group := strings.ToLower(strings.TrimSpace(rule.NonStackingGroup))
	for _, prior := range accepted {
		if !prior.Stackable {
			return true
		}
		if group != "" && strings.ToLower(strings.TrimSpace(prior.NonStackingGroup)) == group {
			return true
		}
	}
	return false
}

func rawDiscount(rule domain.DiscountRule, subtotal decimal.Decimal) int64 {
	amount := decimal.NewFromFloat(rule.Amount)
	if rule.Type == domain.DiscountTypePercent {
		amount = subtotal.Mul(amount).Div(hundred)
	}
	return amount.Round(0).IntPart()
}
