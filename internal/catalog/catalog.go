// Package catalog reads the static product catalog the cart is filled from.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/utafrali/shopcart/internal/domain"
	apperrors "github.com/utafrali/shopcart/pkg/errors"
)

// Category groups products for display.
type Category struct {
	ID       string    `json:"id" validate:"required"`
	Title    string    `json:"title"`
	Image    string    `json:"image"`
	Products []Product `json:"products" validate:"dive"`
}

// Product is a catalog entry. TitleID is the product's display title.
type Product struct {
	ID      string      `json:"id" validate:"required"`
	TitleID string      `json:"titleId"`
	Img     string      `json:"img"`
	Price   json.Number `json:"price" validate:"required,money"`
}

// Descriptor converts the product into the descriptor the cart store seeds
// new lines from.
func (p Product) Descriptor() (domain.ProductDescriptor, error) {
	price, err := decimal.NewFromString(p.Price.String())
	if err != nil {
		return domain.ProductDescriptor{}, fmt.Errorf("product %s price %q: %w", p.ID, p.Price, err)
	}
	return domain.ProductDescriptor{
		ID:       p.ID,
		Title:    p.TitleID,
		ImageRef: p.Img,
		Price:    price,
	}, nil
}

// ErrCatalogLoad matches every *CatalogLoadError.
var ErrCatalogLoad = errors.New("catalog load failed")

// CatalogLoadError reports a catalog that could not be fetched or parsed.
// Status is the HTTP status when the server answered, zero otherwise.
type CatalogLoadError struct {
	URL    string
	Status int
	Err    error
}

func (e *CatalogLoadError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("load catalog %s: status %d: %v", e.URL, e.Status, e.Err)
	}
	return fmt.Sprintf("load catalog %s: %v", e.URL, e.Err)
}

func (e *CatalogLoadError) Unwrap() error { return e.Err }

// Is reports the error as both a catalog failure and an unavailable dependency.
func (e *CatalogLoadError) Is(target error) bool {
	return target == ErrCatalogLoad || target == apperrors.ErrServiceUnavail
}

// index maps every product ID to its product. The first occurrence wins when
// a product is listed under several categories.
func index(categories []Category) map[string]Product {
	idx := make(map[string]Product)
	for _, c := range categories {
		for _, p := range c.Products {
			if _, ok := idx[p.ID]; !ok {
				idx[p.ID] = p
			}
		}
	}
	return idx
}
