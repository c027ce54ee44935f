package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gofrs/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/rrajo-portfolio/orders-service/internal/config"
	"github.com/rrajo-portfolio/orders-service/internal/order"
)

type notificationPayload struct {
	OrderID     uuid.UUID       `json:"orderId"`
	Status      string          `json:"status"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
}

// NotificationPublisher routes a compact status notification to a topic
// exchange. The routing key is derived from the order's current status.
// Publishing is skipped entirely when notifications are disabled.
type NotificationPublisher struct {
	channel *amqp.Channel
	cfg     config.Notification
}

func NewNotificationPublisher(conn *amqp.Connection, cfg config.Notification) (*NotificationPublisher, error) {
	channel, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("events: failed to open notification channel: %w", err)
	}
	if err := channel.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("events: failed to declare exchange %s: %w", cfg.Exchange, err)
	}
	return &NotificationPublisher{channel: channel, cfg: cfg}, nil
}

func (p *NotificationPublisher) PublishNotification(ctx context.Context, o order.Order) error {
	if !p.cfg.Enabled {
		return nil
	}

	payload := notificationPayload{
		OrderID:     o.ID,
		Status:      o.Status.String(),
		TotalAmount: o.TotalAmount,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("events: failed to marshal order %s notification payload: %w", o.ID, err)
	}

	key := routingKey(p.cfg.RoutingKeyPattern, o.Status)
	err = p.channel.PublishWithContext(ctx, p.cfg.Exchange, key, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
	if err != nil {
		return fmt.Errorf("events: failed to publish order %s notification: %w", o.ID, err)
	}

	log.Debug().Stringer("order_id", o.ID).Str("routing_key", key).Msg("events: published order notification")
	return nil
}

func (p *NotificationPublisher) Close() error {
	return p.channel.Close()
}

// routingKey substitutes the lower-cased status into the configured
// pattern, e.g. "orders.notifications.*" -> "orders.notifications.pending".
func routingKey(pattern string, status order.Status) string {
	value := "unknown"
	if status != "" {
		value = strings.ToLower(status.String())
	}
	return strings.ReplaceAll(pattern, "*", value)
}
