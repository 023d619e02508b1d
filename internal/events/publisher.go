package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"github.com/vendalink/channel-service/internal/domain"
)

// NotificationEvent is the broker-facing shape of an agent notification,
// published so the dashboard can push alerts without polling.
type NotificationEvent struct {
	ID         string    `json:"id"`
	AgentID    int64     `json:"agentId"`
	LeadID     int64     `json:"leadId"`
	InstanceID int64     `json:"instanceId"`
	Kind       string    `json:"kind"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"createdAt"`
}

type Publisher interface {
	PublishNotification(ctx context.Context, n domain.Notification) error
	Close() error
}

type rmqPublisher struct {
	conn     *amqp091.Connection
	exchange string
	log      *slog.Logger
}

// NewPublisher connects to RabbitMQ and declares the notifications topic
// exchange.
func NewPublisher(url, exchange string, logger *slog.Logger) (Publisher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(
		exchange, "topic", true, false, false, false, nil,
	); err != nil {
		conn.Close()
		return nil, err
	}

	return &rmqPublisher{
		conn:     conn,
		exchange: exchange,
		log:      logger,
	}, nil
}

func (r *rmqPublisher) PublishNotification(ctx context.Context, n domain.Notification) error {
	ch, err := r.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	body, err := json.Marshal(NotificationEvent{
		ID:         n.ID,
		AgentID:    n.AgentID,
		LeadID:     n.LeadID,
		InstanceID: n.InstanceID,
		Kind:       string(n.Kind),
		Body:       n.Body,
		CreatedAt:  n.CreatedAt,
	})
	if err != nil {
		return err
	}

	msgID := n.ID
	if msgID == "" {
		msgID = uuid.NewString()
	}

	key := "notification." + string(n.Kind)
	err = ch.PublishWithContext(
		ctx, r.exchange, key, false, false,
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			MessageId:    msgID,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err == nil {
		r.log.Info("published", slog.String("key", key), slog.String("exchange", r.exchange))
	}
	return err
}

func (r *rmqPublisher) Close() error {
	return r.conn.Close()
}
