// Package events holds the outbound order event publishers and the
// inbound payment-result consumer. Publishers consume aggregate snapshots
// and are best-effort: the caller logs and swallows their errors.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"github.com/rrajo-portfolio/orders-service/internal/order"
)

type orderEventItem struct {
	ProductID   uuid.UUID       `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
}

type orderEventPayload struct {
	OrderID     uuid.UUID        `json:"orderId"`
	UserID      uuid.UUID        `json:"userId"`
	UserName    string           `json:"userName"`
	UserEmail   string           `json:"userEmail"`
	Status      string           `json:"status"`
	TotalAmount decimal.Decimal  `json:"totalAmount"`
	Currency    string           `json:"currency"`
	CreatedAt   time.Time        `json:"createdAt"`
	Items       []orderEventItem `json:"items"`
}

// OrderEventPublisher emits the full order lifecycle record to the
// checkout events topic, keyed by order id so all events for one order
// land on the same partition.
type OrderEventPublisher struct {
	writer *kafka.Writer
}

func NewOrderEventPublisher(brokers []string, topic string) *OrderEventPublisher {
	return &OrderEventPublisher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

func (p *OrderEventPublisher) PublishOrderEvent(ctx context.Context, o order.Order) error {
	items := make([]orderEventItem, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, orderEventItem{
			ProductID:   item.ProductID,
			ProductName: item.Title,
			Quantity:    item.Quantity,
			Price:       item.Price,
		})
	}

	payload := orderEventPayload{
		OrderID:     o.ID,
		UserID:      o.UserID,
		UserName:    o.UserFullName,
		UserEmail:   o.UserEmail,
		Status:      o.Status.String(),
		TotalAmount: o.TotalAmount,
		Currency:    o.Currency,
		CreatedAt:   o.CreatedAt,
		Items:       items,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("events: failed to marshal order %s event payload: %w", o.ID, err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(o.ID.String()),
		Value: body,
	})
	if err != nil {
		return fmt.Errorf("events: failed to publish order %s event: %w", o.ID, err)
	}

	log.Debug().Stringer("order_id", o.ID).Str("topic", p.writer.Topic).Msg("events: published order event")
	return nil
}

func (p *OrderEventPublisher) Close() error {
	return p.writer.Close()
}
