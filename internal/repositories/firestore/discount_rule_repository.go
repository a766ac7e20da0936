package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"

	domain "github.com/hanko-field/checkout/internal/domain"
	pfirestore "github.com/hanko-field/checkout/internal/platform/firestore"
)

const (
	discountRulesCollection = "discountRules"
	sitesCollection         = "sites"
)

// DiscountRuleRepository reads discount rules from sites/{siteId}/discountRules, or the root
// discountRules collection for account-wide rules.
type DiscountRuleRepository struct {
	provider *pfirestore.Provider
}

func NewDiscountRuleRepository(provider *pfirestore.Provider) (*DiscountRuleRepository, error) {
	if provider == nil {
		return nil, errors.New("discount rule repository requires firestore provider")
	}
	return &DiscountRuleRepository{provider: provider}, nil
}

func (r *DiscountRuleRepository) ListRules(ctx context.Context, tenantID string) ([]domain.DiscountRule, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}

	coll := client.Collection(discountRulesCollection)
	if tenantID = strings.TrimSpace(tenantID); tenantID != "" {
		coll = client.Collection(sitesCollection).Doc(tenantID).Collection(discountRulesCollection)
	}

	snaps, err := coll.Documents(ctx).GetAll()
	if err != nil {
		return nil, pfirestore.WrapError("discountRules.list", err)
	}
	rules := make([]domain.DiscountRule, 0, len(snaps))
	for _, snap := range snaps {
		rule, err := decodeDiscountRule(snap)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

type discountRuleDocument struct {
	Code              string   `firestore:"code"`
	Type              string   `firestore:"type"`
	Amount            float64  `firestore:"amount"`
	Stackable         *bool    `firestore:"stackable"`
	NonStackingGroup  string   `firestore:"nonStackingGroup"`
	MinSpend          *float64 `firestore:"minSpend"`
	ExcludeProducts   []string `firestore:"excludeProducts"`
	ExcludeCategories []string `firestore:"excludeCategories"`
}

func decodeDiscountRule(snap *firestore.DocumentSnapshot) (domain.DiscountRule, error) {
	var doc discountRuleDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.DiscountRule{}, fmt.Errorf("decode discount rule %s: %w", snap.Ref.ID, err)
	}
	code := strings.TrimSpace(doc.Code)
	if code == "" {
		code = snap.Ref.ID
	}
	ruleType := domain.DiscountTypeFixed
	if strings.EqualFold(doc.Type, string(domain.DiscountTypePercent)) {
		ruleType = domain.DiscountTypePercent
	}
	stackable := true
	if doc.Stackable != nil {
		stackable = *doc.Stackable
	}
	return domain.DiscountRule{
		Code:              strings.ToUpper(code),
		Type:              ruleType,
		Amount:            doc.Amount,
		Stackable:         stackable,
		NonStackingGroup:  strings.TrimSpace(doc.NonStackingGroup),
		MinSpend:          doc.MinSpend,
		ExcludeProducts:   doc.ExcludeProducts,
		ExcludeCategories: doc.ExcludeCategories,
	}, nil
}
