package http

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/utafrali/shopcart/internal/catalog"
	"github.com/utafrali/shopcart/internal/domain"
	"github.com/utafrali/shopcart/internal/store"
)

// --- Request DTOs ---

// DescriptorRequest is the JSON body for increment and decrement. Title, img
// and price only seed a new line; a product without a price is looked up in
// the catalog when it has no line yet.
type DescriptorRequest struct {
	ID    string      `json:"id" validate:"required,max=200"`
	Title string      `json:"title" validate:"max=500"`
	Img   string      `json:"img" validate:"max=2000"`
	Price json.Number `json:"price" validate:"money"`
}

func (r DescriptorRequest) hasPrice() bool {
	return r.Price != ""
}

// descriptor converts the request. The price has already passed the money
// validation, so a parse failure cannot happen for a non-empty value.
func (r DescriptorRequest) descriptor() domain.ProductDescriptor {
	d := domain.ProductDescriptor{ID: r.ID, Title: r.Title, ImageRef: r.Img}
	if r.hasPrice() {
		d.Price, _ = decimal.NewFromString(r.Price.String())
	}
	return d
}

// --- Response DTOs ---

// LineResponse is one cart line on the wire.
type LineResponse struct {
	ProductID string `json:"productId"`
	Title     string `json:"title"`
	Img       string `json:"img"`
	Price     string `json:"price"`
	Quantity  int    `json:"quantity"`
	LineTotal string `json:"lineTotal"`
}

// CartResponse lists the lines in insertion order with their aggregates.
type CartResponse struct {
	Lines     []LineResponse `json:"lines"`
	ItemCount int            `json:"itemCount"`
	Total     string         `json:"total"`
}

// LineMutationResponse answers increment and decrement.
type LineMutationResponse struct {
	Line    LineResponse `json:"line"`
	Total   string       `json:"total"`
	Durable bool         `json:"durable"`
}

// CartMutationResponse answers remove and clear.
type CartMutationResponse struct {
	Cart    CartResponse `json:"cart"`
	Durable bool         `json:"durable"`
}

// CheckoutResponse carries what was bought.
type CheckoutResponse struct {
	Purchased CartResponse `json:"purchased"`
	Durable   bool         `json:"durable"`
}

// CategoryResponse is a catalog category with its products.
type CategoryResponse struct {
	ID       string            `json:"id"`
	Title    string            `json:"title"`
	Image    string            `json:"image"`
	Products []ProductResponse `json:"products"`
}

// ProductResponse is a catalog product. Its fields match DescriptorRequest
// so a client can post it back to increment as is.
type ProductResponse struct {
	ID    string      `json:"id"`
	Title string      `json:"title"`
	Img   string      `json:"img"`
	Price json.Number `json:"price"`
}

func toLineResponse(line domain.CartLine) LineResponse {
	return LineResponse{
		ProductID: line.ProductID,
		Title:     line.Title,
		Img:       line.ImageRef,
		Price:     line.UnitPrice.String(),
		Quantity:  line.Quantity,
		LineTotal: domain.LineTotal(line).String(),
	}
}

func toCartResponse(snap store.Snapshot) CartResponse {
	lines := make([]LineResponse, 0, len(snap.Lines))
	for _, l := range snap.Lines {
		lines = append(lines, toLineResponse(l))
	}
	return CartResponse{
		Lines:     lines,
		ItemCount: snap.ItemCount,
		Total:     snap.Total.String(),
	}
}

func toCategoryResponse(c catalog.Category) CategoryResponse {
	products := make([]ProductResponse, 0, len(c.Products))
	for _, p := range c.Products {
		products = append(products, ProductResponse{ID: p.ID, Title: p.TitleID, Img: p.Img, Price: p.Price})
	}
	return CategoryResponse{ID: c.ID, Title: c.Title, Image: c.Image, Products: products}
}
