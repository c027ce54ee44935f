package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/rrajo-portfolio/orders-service/internal/order"
)

// paymentAuthorized is the only status value that confirms an order; any
// other outcome cancels it.
const paymentAuthorized = "AUTHORIZED"

type paymentResultEvent struct {
	OrderID   uuid.UUID `json:"orderId"`
	PaymentID string    `json:"paymentId"`
	Status    string    `json:"status"`
}

// PaymentResultConsumer feeds external payment outcomes back into the
// orchestrator. It runs on its own goroutine, concurrently with
// interactive requests; the optimistic version check in the repository
// serializes conflicting writes.
type PaymentResultConsumer struct {
	reader *kafka.Reader
	orders order.Service
}

func NewPaymentResultConsumer(brokers []string, topic, groupID string, orders order.Service) *PaymentResultConsumer {
	return &PaymentResultConsumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers: brokers,
			Topic:   topic,
			GroupID: groupID,
		}),
		orders: orders,
	}
}

// Run blocks until ctx is cancelled. Handler errors are logged and the
// message is not redelivered by us; the transition is applied
// unconditionally on every delivery.
func (c *PaymentResultConsumer) Run(ctx context.Context) {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info().Msg("events: payment result consumer shutting down")
				return
			}
			log.Error().Err(err).Msg("events: failed to read payment result message")
			continue
		}

		if err := c.handle(ctx, msg.Value); err != nil {
			log.Error().Err(err).Msg("events: failed to handle payment result")
		}
	}
}

func (c *PaymentResultConsumer) handle(ctx context.Context, value []byte) error {
	var event paymentResultEvent
	if err := json.Unmarshal(value, &event); err != nil {
		return fmt.Errorf("events: failed to decode payment result: %w", err)
	}
	if event.OrderID == uuid.Nil {
		return fmt.Errorf("events: payment result without order id (payment %s)", event.PaymentID)
	}

	success := event.Status == paymentAuthorized
	log.Info().
		Stringer("order_id", event.OrderID).
		Str("payment_id", event.PaymentID).
		Str("status", event.Status).
		Msg("events: received payment result")

	if err := c.orders.HandlePaymentResult(ctx, event.OrderID, success); err != nil {
		return fmt.Errorf("events: failed to apply payment result for order %s: %w", event.OrderID, err)
	}
	return nil
}

func (c *PaymentResultConsumer) Close() error {
	return c.reader.Close()
}
