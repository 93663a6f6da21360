// Package notify contains notifier backends. Every backend accepts a
// notification or returns an error; the booking engine treats the error as
// non-fatal.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sony/gobreaker"

	"rentshare-backend/internal/domain"
	"rentshare-backend/internal/logger"
)

// ErrCircuitOpen is returned while the breaker refuses to publish.
var ErrCircuitOpen = errors.New("notification publisher circuit open")

type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type BreakerSettings struct {
	// FailureRatio trips the breaker once at least three requests were seen.
	FailureRatio float64
	// OpenTimeout is how long the breaker stays open before probing again.
	OpenTimeout time.Duration
}

// AMQPNotifier publishes notifications as persistent JSON messages to a
// queue on the default exchange.
type AMQPNotifier struct {
	ch      publisher
	queue   string
	breaker *gobreaker.CircuitBreaker
	now     func() time.Time
}

func NewAMQPNotifier(ch publisher, queue string, settings BreakerSettings) *AMQPNotifier {
	if settings.FailureRatio <= 0 {
		settings.FailureRatio = 0.6
	}
	if settings.OpenTimeout <= 0 {
		settings.OpenTimeout = 30 * time.Second
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "notify:" + queue,
		MaxRequests: 1,
		Interval:    settings.OpenTimeout,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= settings.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Notifier circuit breaker changed state", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return &AMQPNotifier{ch: ch, queue: queue, breaker: cb, now: time.Now}
}

func (n *AMQPNotifier) Notify(ctx context.Context, userID int32, event domain.EventType, payload map[string]string) error {
	sentAt := n.now().UTC()
	body, err := json.Marshal(domain.Notification{
		UserID:  userID,
		Event:   event,
		Payload: payload,
		SentAt:  sentAt.Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	logger.ExternalServiceCall("amqp", "publish", "queue", n.queue, "event", event, "userID", userID)
	_, err = n.breaker.Execute(func() (interface{}, error) {
		return nil, n.ch.PublishWithContext(ctx, "", n.queue, false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    sentAt,
			Type:         string(event),
			Body:         body,
		})
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	}
	logger.ExternalServiceResult("amqp", "publish", err, "queue", n.queue, "event", event)
	return err
}

// State exposes the breaker state for health reporting.
func (n *AMQPNotifier) State() gobreaker.State {
	return n.breaker.State()
}

// DialAMQP connects to the broker and declares the durable notification queue.
func DialAMQP(url, queue string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("amqp dial failed: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("amqp channel open failed: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("amqp queue declare failed: %w", err)
	}
	return conn, ch, nil
}
