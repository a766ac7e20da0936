package repositories

import (
	domain "github.com/hanko-field/checkout/internal/domain"
)

// ReservationPlan is the result of checking requested lines against the catalog records read in
// the reservation transaction.
type ReservationPlan struct {
	Lines       []ReservedLine
	Adjustments []domain.StockAdjustment
	// Touched lists the product ids whose reserved counters changed, in first-touch order.
	Touched []string
}

// PlanReservation drops or clamps every line against effective availability (stock - reserved)
// and increments the reserved counters of products in place. Products missing from the map, or
// mapped to nil, do not exist. Lines for the same product or variant accumulate against the same
// record, so a later line sees the reservations of earlier ones. Nil stock is unlimited.
func PlanReservation(products map[string]*domain.Product, lines []ReservationLine) ReservationPlan {
	var plan ReservationPlan
	seen := make(map[string]struct{})
	for _, line := range lines {
		if line.Quantity <= 0 {
			continue
		}
		product := products[line.ProductID]
		if product == nil {
			plan.Adjustments = append(plan.Adjustments, droppedLine(line, domain.RemovalNotFound))
			continue
		}

		variantIdx := -1
		stock, held := product.Stock, product.Reserved
		if line.VariantID != "" {
			variant, idx, ok := product.FindVariant(line.VariantID)
			if !ok {
				plan.Adjustments = append(plan.Adjustments, droppedLine(line, domain.RemovalVariantNotFound))
				continue
			}
			variantIdx = idx
			stock, held = variant.Stock, variant.Reserved
		}

		qty := line.Quantity
		if stock != nil {
			effective := *stock - held
			if effective <= 0 {
				plan.Adjustments = append(plan.Adjustments, droppedLine(line, domain.RemovalOutOfStock))
				continue
			}
			if int64(qty) > effective {
				plan.Adjustments = append(plan.Adjustments, domain.StockAdjustment{
					LineID:    line.LineID,
					ProductID: line.ProductID,
					VariantID: line.VariantID,
					FromQty:   qty,
					ToQty:     int(effective),
					Reason:    domain.AdjustmentStockClamped,
				})
				qty = int(effective)
			}
		}

		entry := ReservedLine{LineID: line.LineID, Quantity: qty}
		if variantIdx >= 0 {
			product.Variants[variantIdx].Reserved += int64(qty)
			variant := product.Variants[variantIdx]
			entry.Variant = &variant
		} else {
			product.Reserved += int64(qty)
		}
		entry.Product = *product
		plan.Lines = append(plan.Lines, entry)
		if _, ok := seen[product.ID]; !ok {
			seen[product.ID] = struct{}{}
			plan.Touched = append(plan.Touched, product.ID)
		}
	}
	return plan
}

// PlanRelease decrements the reserved counters held by lines, floored at zero, and returns the
// ids of products it changed. Lines whose product or variant no longer exists are skipped.
func PlanRelease(products map[string]*domain.Product, lines []domain.OrderLine) []string {
	var touched []string
	seen := make(map[string]struct{})
	for _, line := range lines {
		product := products[line.ProductID]
		if product == nil {
			continue
		}
		if line.VariantID != "" {
			_, idx, ok := product.FindVariant(line.VariantID)
			if !ok {
				continue
			}
			product.Variants[idx].Reserved = ReleaseCount(product.Variants[idx].Reserved, line.Quantity)
		} else {
			product.Reserved = ReleaseCount(product.Reserved, line.Quantity)
		}
		if _, ok := seen[product.ID]; !ok {
			seen[product.ID] = struct{}{}
			touched = append(touched, product.ID)
		}
	}
	return touched
}

// ReleaseCount subtracts qty from a reserved counter without going below zero.
func ReleaseCount(current int64, qty int) int64 {
	next := current - int64(qty)
	if next < 0 {
		return 0
	}
	return next
}

func droppedLine(line ReservationLine, reason string) domain.StockAdjustment {
	return domain.StockAdjustment{
		LineID:    line.LineID,
		ProductID: line.ProductID,
		VariantID: line.VariantID,
		FromQty:   line.Quantity,
		ToQty:     0,
		Reason:    reason,
	}
}
