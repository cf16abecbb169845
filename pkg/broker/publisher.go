package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// ReservationConfirmedEvent is emitted once a payment has been converged
// into reservation state.
type ReservationConfirmedEvent struct {
	PaymentID         string    `json:"payment_id"`
	PaymentReference  string    `json:"payment_reference"`
	ReservationID     string    `json:"reservation_id"`
	RecurrenceGroupID string    `json:"recurrence_group_id,omitempty"`
	Status            string    `json:"status"`
	Amount            string    `json:"amount"`
	Currency          string    `json:"currency"`
	ConfirmedAt       time.Time `json:"confirmed_at"`
}

type Publisher interface {
	PublishReservationConfirmed(ctx context.Context, event ReservationConfirmedEvent) error
}

// dialTimeout bounds connect plus AMQP handshake. Publishing runs inside
// reconciliation, so an unreachable broker must fail fast.
const dialTimeout = 3 * time.Second

type rabbitPublisher struct {
	url         string
	queue       string
	dialTimeout time.Duration
	log         *zap.Logger
}

// NewPublisher returns a RabbitMQ publisher, or a publisher that only logs
// when url is empty.
func NewPublisher(url, queue string, log *zap.Logger) Publisher {
	log = log.With(zap.String("broker", "rabbitmq"))
	if url == "" {
		return logPublisher{log: log}
	}
	return &rabbitPublisher{url: url, queue: queue, dialTimeout: dialTimeout, log: log}
}

func (p *rabbitPublisher) PublishReservationConfirmed(ctx context.Context, event ReservationConfirmedEvent) error {
	timeout := p.dialTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		return fmt.Errorf("dial rabbitmq: %w", context.DeadlineExceeded)
	}

	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(timeout),
	})
	if err != nil {
		return fmt.Errorf("dial rabbitmq: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if _, err := ch.QueueDeclare(
		p.queue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	); err != nil {
		return fmt.Errorf("declare queue %s: %w", p.queue, err)
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.PaymentID,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}

	if err := ch.PublishWithContext(ctx, "", p.queue, false, false, pub); err != nil {
		return fmt.Errorf("publish to %s: %w", p.queue, err)
	}

	p.log.Debug("Reservation confirmed event published",
		zap.String("queue", p.queue),
		zap.String("payment_id", event.PaymentID),
		zap.String("reservation_id", event.ReservationID),
	)
	return nil
}

type logPublisher struct {
	log *zap.Logger
}

func (p logPublisher) PublishReservationConfirmed(_ context.Context, event ReservationConfirmedEvent) error {
	p.log.Info("Broker disabled, reservation confirmed event not published",
		zap.String("payment_id", event.PaymentID),
		zap.String("reservation_id", event.ReservationID),
	)
	return nil
}
