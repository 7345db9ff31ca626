package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ProductDescriptor describes a catalog product the shopper interacts with.
// It only seeds a brand-new cart line; once a line exists its stored fields win.
type ProductDescriptor struct {
	ID       string
	Title    string
	ImageRef string
	Price    decimal.Decimal
}

// CartLine is one selected product and its quantity.
type CartLine struct {
	ProductID string
	Title     string
	ImageRef  string
	UnitPrice decimal.Decimal
	Quantity  int
}

// NewLine seeds a zero-quantity line from a descriptor.
func NewLine(d ProductDescriptor) CartLine {
	return CartLine{
		ProductID: d.ID,
		Title:     d.Title,
		ImageRef:  d.ImageRef,
		UnitPrice: d.Price,
		Quantity:  0,
	}
}

// Validate checks the descriptor can seed a line. It returns a human readable
// reason or an empty string when the descriptor is acceptable.
func (d ProductDescriptor) Validate() string {
	if strings.TrimSpace(d.ID) == "" {
		return "product id is required"
	}
	if d.Price.IsNegative() {
		return "price must not be negative"
	}
	return ""
}

// CartState maps product IDs to cart lines and remembers the order in which
// lines were first inserted. The zero value is not usable; call NewCartState.
type CartState struct {
	order []string
	lines map[string]CartLine
}

// NewCartState returns an empty state.
func NewCartState() *CartState {
	return &CartState{lines: make(map[string]CartLine)}
}

// Len returns the number of lines.
func (s *CartState) Len() int {
	return len(s.order)
}

// Get looks a line up by product ID. The boolean distinguishes an absent line
// from a present line with zero quantity.
func (s *CartState) Get(productID string) (CartLine, bool) {
	line, ok := s.lines[productID]
	return line, ok
}

// Put stores a line. A new product ID is appended to the insertion order; an
// existing one keeps its position.
func (s *CartState) Put(line CartLine) {
	if _, ok := s.lines[line.ProductID]; !ok {
		s.order = append(s.order, line.ProductID)
	}
	s.lines[line.ProductID] = line
}

// Remove deletes a line and reports whether it was present.
func (s *CartState) Remove(productID string) bool {
	if _, ok := s.lines[productID]; !ok {
		return false
	}
	delete(s.lines, productID)
	for i, id := range s.order {
		if id == productID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// Reset drops every line.
func (s *CartState) Reset() {
	s.order = nil
	s.lines = make(map[string]CartLine)
}

// Lines returns a copy of all lines in insertion order.
func (s *CartState) Lines() []CartLine {
	out := make([]CartLine, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.lines[id])
	}
	return out
}
