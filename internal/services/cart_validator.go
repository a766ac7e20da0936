package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	domain "github.com/hanko-field/checkout/internal/domain"
	"github.com/hanko-field/checkout/internal/repositories"
)

const (
	maxCartLines       = 100
	maxLineQuantity    = 999
	maxDiscountCodes   = 10
	catalogReadWorkers = 8
)

var (
	// ErrCartValidationInvalidInput signals a malformed cart.
	ErrCartValidationInvalidInput = errors.New("cart validation: invalid input")
	// ErrCartValidationUnavailable signals the catalog or rule store could not be read.
	ErrCartValidationUnavailable = errors.New("cart validation: dependency unavailable")
)

// CartValidatorDeps bundles collaborators required to construct the cart validator.
type CartValidatorDeps struct {
	Catalog         repositories.CatalogReader
	Rules           repositories.DiscountRuleStore
	DefaultCurrency string
	Logger          func(ctx context.Context, event string, fields map[string]any)
}

type cartValidator struct {
	catalog         repositories.CatalogReader
	rules           repositories.DiscountRuleStore
	defaultCurrency string
	logger          func(context.Context, string, map[string]any)
}

var _ CartValidator = (*cartValidator)(nil)

// NewCartValidator wires the read-only cart reconciliation path.
func NewCartValidator(deps CartValidatorDeps) (CartValidator, error) {
	if deps.Catalog == nil {
		return nil, errors.New("cart validator: catalog reader is required")
	}
	if deps.Rules == nil {
		return nil, errors.New("cart validator: discount rule store is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &cartValidator{
		catalog:         deps.Catalog,
		rules:           deps.Rules,
		defaultCurrency: strings.ToUpper(strings.TrimSpace(deps.DefaultCurrency)),
		logger:          logger,
	}, nil
}

func (v *cartValidator) Validate(ctx context.Context, cmd ValidateCartCommand) (domain.CartValidation, error) {
	lines, err := normalizeCartLines(cmd.Lines)
	if err != nil {
		return domain.CartValidation{}, fmt.Errorf("%w: %v", ErrCartValidationInvalidInput, err)
	}
	if len(cmd.DiscountCodes) > maxDiscountCodes {
		return domain.CartValidation{}, fmt.Errorf("%w: at most %d discount codes are allowed", ErrCartValidationInvalidInput, maxDiscountCodes)
	}

	products, err := v.loadProducts(ctx, lines)
	if err != nil {
		return domain.CartValidation{}, err
	}

	result := domain.CartValidation{}
	for _, line := range lines {
		product, ok := products[line.ProductID]
		if !ok {
			result.Removed = append(result.Removed, removal(line, domain.RemovalNotFound))
			continue
		}

		var variant *domain.Variant
		stock := product.Stock
		if line.VariantID != "" {
			found, _, ok := product.FindVariant(line.VariantID)
			if !ok {
				result.Removed = append(result.Removed, removal(line, domain.RemovalVariantNotFound))
				continue
			}
			variant = &found
			stock = found.Stock
		}

		qty := line.Quantity
		if stock != nil {
			// Reserved units are not subtracted here; the reservation transaction is authoritative.
			available := *stock
			if available <= 0 {
				result.Removed = append(result.Removed, removal(line, domain.RemovalOutOfStock))
				continue
			}
			if int64(qty) > available {
				result.Adjustments = append(result.Adjustments, domain.StockAdjustment{
					LineID:    line.LineID,
					ProductID: line.ProductID,
					VariantID: line.VariantID,
					FromQty:   qty,
					ToQty:     int(available),
					Reason:    domain.AdjustmentStockClamped,
				})
				qty = int(available)
			}
		}

		priced := priceLine(line, product, variant, qty)
		result.Lines = append(result.Lines, priced)
		result.Subtotal += priced.LineTotal
	}

	var rules []domain.DiscountRule
	if len(normalizeDiscountCodes(cmd.DiscountCodes)) > 0 {
		rules, err = v.rules.ListRules(ctx, strings.TrimSpace(cmd.SiteID))
		if err != nil {
			v.logger(ctx, "cart.validate.rules_failed", map[string]any{"siteId": cmd.SiteID, "error": err})
			return domain.CartValidation{}, fmt.Errorf("%w: discount rules: %v", ErrCartValidationUnavailable, err)
		}
	}

	discounts := EvaluateDiscounts(DiscountInput{
		Subtotal: result.Subtotal,
		Currency: firstNonEmpty(cmd.Currency, v.defaultCurrency),
		Lines:    result.Lines,
		Codes:    cmd.DiscountCodes,
		Rules:    rules,
	})
	result.Applied = discounts.Applied
	result.DiscountAmount = discounts.DiscountAmount
	result.Rejected = discounts.Rejected
	result.Total = DiscountedTotal(result.Subtotal, result.DiscountAmount)

	result.Changed = len(result.Removed) > 0 || len(result.Adjustments) > 0 || len(result.Rejected) > 0
	for _, line := range result.Lines {
		if line.PriceChanged {
			result.Changed = true
			break
		}
	}
	return result, nil
}

// loadProducts reads every distinct product once. Missing products are absent from the map.
func (v *cartValidator) loadProducts(ctx context.Context, lines []domain.CartLine) (map[string]domain.Product, error) {
	ids := make([]string, 0, len(lines))
	seen := make(map[string]struct{}, len(lines))
	for _, line := range lines {
		if _, ok := seen[line.ProductID]; ok {
			continue
		}
		seen[line.ProductID] = struct{}{}
		ids = append(ids, line.ProductID)
	}

	var mu sync.Mutex
	products := make(map[string]domain.Product, len(ids))
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(catalogReadWorkers)
	for _, id := range ids {
		group.Go(func() error {
			product, err := v.catalog.GetProduct(gctx, id)
			if err != nil {
				if repositories.IsNotFound(err) {
					return nil
				}
				return fmt.Errorf("%w: product %s: %v", ErrCartValidationUnavailable, id, err)
			}
			mu.Lock()
			products[id] = product
			mu.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		v.logger(ctx, "cart.validate.catalog_failed", map[string]any{"error": err})
		return nil, err
	}
	return products, nil
}

// normalizeCartLines trims identifiers, defaults line ids and rejects malformed lines.
func normalizeCartLines(lines []domain.CartLine) ([]domain.CartLine, error) {
	if len(lines) == 0 {
		return nil, errors.New("items must not be empty")
	}
	if len(lines) > maxCartLines {
		return nil, fmt.Errorf("at most %d items are allowed", maxCartLines)
	}
	out := make([]domain.CartLine, 0, len(lines))
	for i, line := range lines {
		line.ProductID = strings.TrimSpace(line.ProductID)
		line.VariantID = strings.TrimSpace(line.VariantID)
		line.LineID = strings.TrimSpace(line.LineID)
		if line.ProductID == "" {
			return nil, fmt.Errorf("items[%d].productId is required", i)
		}
		if line.Quantity <= 0 || line.Quantity > maxLineQuantity {
			return nil, fmt.Errorf("items[%d].qty must be between 1 and %d", i, maxLineQuantity)
		}
		if line.ClientUnitPrice != nil && *line.ClientUnitPrice < 0 {
			return nil, fmt.Errorf("items[%d].price must not be negative", i)
		}
		if line.LineID == "" {
			line.LineID = line.Key()
		}
		out = append(out, line)
	}
	return out, nil
}

func removal(line domain.CartLine, reason string) domain.LineRemoval {
	return domain.LineRemoval{
		LineID:    line.LineID,
		ProductID: line.ProductID,
		VariantID: line.VariantID,
		Reason:    reason,
	}
}

func priceLine(line domain.CartLine, product domain.Product, variant *domain.Variant, qty int) domain.PricedLine {
	unit := product.UnitPrice(variant)
	name, sku := product.Name, product.SKU
	if variant != nil {
		name = firstNonEmpty(variant.Name, name)
		sku = firstNonEmpty(variant.SKU, sku)
	}
	return domain.PricedLine{
		LineID:          line.LineID,
		ProductID:       line.ProductID,
		VariantID:       line.VariantID,
		Name:            name,
		SKU:             sku,
		Categories:      product.Categories,
		Quantity:        qty,
		UnitPrice:       unit,
		ClientUnitPrice: line.ClientUnitPrice,
		LineTotal:       unit * int64(qty),
		PriceChanged:    line.ClientUnitPrice != nil && *line.ClientUnitPrice != unit,
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
