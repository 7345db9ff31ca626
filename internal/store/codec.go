package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/utafrali/shopcart/internal/domain"
)

// persistedLine is the wire shape of one line inside the blob.
// TitleID is read for blobs written by the old page, which stored the
// catalog product verbatim.
type persistedLine struct {
	ID      string      `json:"id"`
	Title   string      `json:"title"`
	TitleID string      `json:"titleId,omitempty"`
	Img     string      `json:"img"`
	Price   json.Number `json:"price"`
	Amount  *int        `json:"amount,omitempty"`
}

func fromLine(line domain.CartLine) persistedLine {
	qty := line.Quantity
	return persistedLine{
		ID:     line.ProductID,
		Title:  line.Title,
		Img:    line.ImageRef,
		Price:  json.Number(line.UnitPrice.String()),
		Amount: &qty,
	}
}

func (p persistedLine) toLine(key string) (domain.CartLine, error) {
	id := p.ID
	if id == "" {
		id = key
	}
	if id != key {
		return domain.CartLine{}, fmt.Errorf("line key %q does not match id %q", key, id)
	}
	if p.Price == "" {
		return domain.CartLine{}, fmt.Errorf("line %q: price is missing", key)
	}
	price, err := decimal.NewFromString(string(p.Price))
	if err != nil {
		return domain.CartLine{}, fmt.Errorf("line %q: price: %w", key, err)
	}
	if price.IsNegative() {
		return domain.CartLine{}, fmt.Errorf("line %q: negative price %s", key, price)
	}
	qty := 0
	if p.Amount != nil {
		qty = *p.Amount
	}
	if qty < 0 {
		return domain.CartLine{}, fmt.Errorf("line %q: negative amount %d", key, qty)
	}
	title := p.Title
	if title == "" {
		title = p.TitleID
	}
	return domain.CartLine{
		ProductID: id,
		Title:     title,
		ImageRef:  p.Img,
		UnitPrice: price,
		Quantity:  qty,
	}, nil
}

// encodeState writes the state as one JSON object whose member order is the
// insertion order of the lines.
func encodeState(state *domain.CartState) (string, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, line := range state.Lines() {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(line.ProductID)
		if err != nil {
			return "", fmt.Errorf("marshal key %q: %w", line.ProductID, err)
		}
		v, err := json.Marshal(fromLine(line))
		if err != nil {
			return "", fmt.Errorf("marshal line %q: %w", line.ProductID, err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.String(), nil
}

// decodeState parses a blob produced by encodeState (or by the old page),
// keeping object member order as line insertion order.
func decodeState(blob string) (*domain.CartState, error) {
	dec := json.NewDecoder(strings.NewReader(blob))

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("read cart object: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("cart state must be a JSON object, got %v", tok)
	}

	state := domain.NewCartState()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("read line key: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v", tok)
		}
		var rec persistedLine
		if err := dec.Decode(&rec); err != nil {
			return nil, fmt.Errorf("line %q: %w", key, err)
		}
		line, err := rec.toLine(key)
		if err != nil {
			return nil, err
		}
		state.Put(line)
	}

	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("read end of cart object: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after cart object")
	}
	return state, nil
}
