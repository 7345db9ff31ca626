// Package event publishes cart changes to Kafka.
package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/utafrali/shopcart/internal/domain"
	"github.com/utafrali/shopcart/internal/store"
	pkgkafka "github.com/utafrali/shopcart/pkg/kafka"
	"github.com/utafrali/shopcart/pkg/logger"
)

// Kafka topics for cart events.
const (
	TopicCartUpdated    = "shopcart.cart.updated"
	TopicCartCleared    = "shopcart.cart.cleared"
	TopicCartCheckedOut = "shopcart.cart.checked_out"
)

// AggregateTypeCart is the aggregate type stamped on every event.
const AggregateTypeCart = "cart"

// SourceShopcart identifies this service as the event source.
const SourceShopcart = "shopcart"

// LineData is a cart line inside an event payload.
type LineData struct {
	ProductID string          `json:"product_id"`
	Title     string          `json:"title"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

// CartUpdatedData is the payload of a cart.updated event.
type CartUpdatedData struct {
	Op        string          `json:"op"`
	ProductID string          `json:"product_id"`
	Quantity  *int            `json:"quantity,omitempty"`
	Lines     []LineData      `json:"lines"`
	ItemCount int             `json:"item_count"`
	Total     decimal.Decimal `json:"total"`
	Durable   bool            `json:"durable"`
}

// CartClearedData is the payload of a cart.cleared event.
type CartClearedData struct {
	Durable bool `json:"durable"`
}

// CartCheckedOutData is the payload of a cart.checked_out event.
type CartCheckedOutData struct {
	Lines     []LineData      `json:"lines"`
	ItemCount int             `json:"item_count"`
	Total     decimal.Decimal `json:"total"`
}

// EventPublisher is the part of the Kafka producer the publisher needs.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Publisher turns store changes into Kafka events. It implements store.Observer.
type Publisher struct {
	kafka   EventPublisher
	cartKey string
	logger  *slog.Logger
}

// NewPublisher creates a publisher for the cart stored under cartKey.
func NewPublisher(kafka EventPublisher, cartKey string, logger *slog.Logger) *Publisher {
	return &Publisher{
		kafka:   kafka,
		cartKey: cartKey,
		logger:  logger,
	}
}

var _ store.Observer = (*Publisher)(nil)

// CartChanged publishes the event matching the change.
func (p *Publisher) CartChanged(ctx context.Context, change store.Change) error {
	topic, data := p.payload(change)

	event, err := pkgkafka.NewEvent(eventType(topic), pkgkafka.Aggregate{ID: p.cartKey, Type: AggregateTypeCart}, SourceShopcart, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	event.WithCorrelationID(logger.CorrelationIDFromContext(ctx)).
		WithMetadata("op", string(change.Op))

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published cart event",
		slog.String("topic", topic),
		slog.String("op", string(change.Op)),
	)
	return nil
}

func (p *Publisher) payload(change store.Change) (string, any) {
	switch change.Op {
	case store.OpClear:
		return TopicCartCleared, CartClearedData{Durable: change.Durable}
	case store.OpCheckout:
		data := CartCheckedOutData{Lines: []LineData{}, Total: decimal.Zero}
		if snap := change.CheckedOut; snap != nil {
			data.Lines = lineData(snap.Lines)
			data.ItemCount = snap.ItemCount
			data.Total = snap.Total
		}
		return TopicCartCheckedOut, data
	default:
		data := CartUpdatedData{
			Op:        string(change.Op),
			ProductID: change.ProductID,
			Lines:     lineData(change.Lines),
			ItemCount: domain.ItemCount(change.Lines),
			Total:     change.Total,
			Durable:   change.Durable,
		}
		if change.Line != nil {
			q := change.Line.Quantity
			data.Quantity = &q
		}
		return TopicCartUpdated, data
	}
}

func lineData(lines []domain.CartLine) []LineData {
	out := make([]LineData, len(lines))
	for i, l := range lines {
		out[i] = LineData{
			ProductID: l.ProductID,
			Title:     l.Title,
			UnitPrice: l.UnitPrice,
			Quantity:  l.Quantity,
		}
	}
	return out
}

// eventType drops the service prefix from a topic: "shopcart.cart.updated"
// becomes "cart.updated".
func eventType(topic string) string {
	return topic[len(SourceShopcart)+1:]
}
