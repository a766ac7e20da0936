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
)

const productsCollection = "products"

// CatalogRepository reads products with their embedded variants from products/{productId}.
type CatalogRepository struct {
	provider *pfirestore.Provider
}

func NewCatalogRepository(provider *pfirestore.Provider) (*CatalogRepository, error) {
	if provider == nil {
		return nil, errors.New("catalog repository requires firestore provider")
	}
	return &CatalogRepository{provider: provider}, nil
}

func (r *CatalogRepository) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.Product{}, pfirestore.NotFound("catalog.getProduct", "product id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Product{}, err
	}
	snap, err := client.Collection(productsCollection).Doc(productID).Get(ctx)
	if err != nil {
		return domain.Product{}, pfirestore.WrapError("catalog.getProduct", err)
	}
	return decodeProduct(snap)
}

type productDocument struct {
	Name       string            `firestore:"name"`
	SKU        string            `firestore:"sku"`
	Price      int64             `firestore:"price"`
	Stock      *int64            `firestore:"stock"`
	Reserved   int64             `firestore:"reserved"`
	Categories []string          `firestore:"categories"`
	Weight     *float64          `firestore:"weight"`
	TaxCode    string            `firestore:"taxCode"`
	Variants   []variantDocument `firestore:"variants"`
	UpdatedAt  time.Time         `firestore:"updatedAt"`
}

type variantDocument struct {
	ID       string            `firestore:"id"`
	SKU      string            `firestore:"sku"`
	Name     string            `firestore:"name"`
	Price    *int64            `firestore:"price"`
	Stock    *int64            `firestore:"stock"`
	Reserved int64             `firestore:"reserved"`
	Options  map[string]string `firestore:"options"`
	Weight   *float64          `firestore:"weight"`
	TaxCode  string            `firestore:"taxCode"`
}

func decodeProduct(snap *firestore.DocumentSnapshot) (domain.Product, error) {
	var doc productDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Product{}, fmt.Errorf("decode product %s: %w", snap.Ref.ID, err)
	}
	product := domain.Product{
		ID:         snap.Ref.ID,
		Name:       doc.Name,
		SKU:        doc.SKU,
		Price:      doc.Price,
		Stock:      doc.Stock,
		Reserved:   doc.Reserved,
		Categories: doc.Categories,
		Weight:     doc.Weight,
		TaxCode:    doc.TaxCode,
		UpdatedAt:  doc.UpdatedAt,
	}
	for _, v := range doc.Variants {
		product.Variants = append(product.Variants, domain.Variant{
			ID:       v.ID,
			SKU:      v.SKU,
			Name:     v.Name,
			Price:    v.Price,
			Stock:    v.Stock,
			Reserved: v.Reserved,
			Options:  v.Options,
			Weight:   v.Weight,
			TaxCode:  v.TaxCode,
		})
	}
	return product, nil
}

func encodeVariants(variants []domain.Variant) []variantDocument {
	docs := make([]variantDocument, 0, len(variants))
	for _, v := range variants {
		docs = append(docs, variantDocument{
			ID:       v.ID,
			SKU:      v.SKU,
			Name:     v.Name,
			Price:    v.Price,
			Stock:    v.Stock,
			Reserved: v.Reserved,
			Options:  v.Options,
			Weight:   v.Weight,
			TaxCode:  v.TaxCode,
		})
	}
	return docs
}
