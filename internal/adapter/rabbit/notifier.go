package rabbit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/aqylbek/ambulance-dispatch/internal/domain/models"
	wrap "github.com/aqylbek/ambulance-dispatch/pkg/logger/wrapper"
	"github.com/aqylbek/ambulance-dispatch/pkg/metrics"
	"github.com/aqylbek/ambulance-dispatch/pkg/rabbit"
)

const (
	emergencyExchange = "emergency_topic"
	alertExchange     = "critical_alerts"

	publishRetries    = 3
	publishRetryDelay = 200 * time.Millisecond
)

// Notifier publishes dispatch events to RabbitMQ. Publishing is best effort:
// callers log failures and carry on, the state machine never depends on it.
type Notifier struct {
	client *rabbit.RabbitMQ
}

func NewNotifier(client *rabbit.RabbitMQ) *Notifier {
	return &Notifier{
		client: client,
	}
}

// DeclareExchanges sets up the topic exchanges the notifier publishes to.
// Idempotent, called once at startup.
func (n *Notifier) DeclareExchanges() error {
	for _, name := range []string{emergencyExchange, alertExchange} {
		if err := n.client.Channel.ExchangeDeclare(
			name,
			"topic",
			true,  // durable
			false, // auto-delete
			false, // internal
			false, // no-wait
			nil,
		); err != nil {
			return fmt.Errorf("notifier: declare exchange %s: %w", name, err)
		}
	}
	return nil
}

// PublishEmergencyStatus announces an emergency status change.
func (n *Notifier) PublishEmergencyStatus(ctx context.Context, msg models.EmergencyStatusMessage) error {
	const op = "Notifier.PublishEmergencyStatus"

	key := fmt.Sprintf("emergency.status.%s", msg.EmergencyID)
	return n.publish(ctx, op, emergencyExchange, key, msg)
}

// PublishAssignmentOffer tells a driver they have a pending offer.
func (n *Notifier) PublishAssignmentOffer(ctx context.Context, msg models.AssignmentOfferMessage) error {
	const op = "Notifier.PublishAssignmentOffer"

	key := fmt.Sprintf("assignment.offer.%s", msg.DriverID)
	return n.publish(ctx, op, emergencyExchange, key, msg)
}

// PublishCriticalAlert raises an operator-facing alert, e.g. a driver going
// stale mid-trip or an emergency left without any available driver.
func (n *Notifier) PublishCriticalAlert(ctx context.Context, msg models.CriticalAlertMessage) error {
	const op = "Notifier.PublishCriticalAlert"

	key := fmt.Sprintf("alert.%s", msg.Kind)
	return n.publish(ctx, op, alertExchange, key, msg)
}

func (n *Notifier) publish(ctx context.Context, op, exchange, key string, msg any) error {
	body, err := json.Marshal(msg)
	if err != nil {
		ctx = wrap.WithAction(ctx, "marshal_message")
		return wrap.Error(ctx, fmt.Errorf("%s: failed to marshal message: %w", op, err))
	}

	err = retry(publishRetries, publishRetryDelay, func() error {
		return n.client.Channel.PublishWithContext(
			ctx,
			exchange,
			key,
			false, // mandatory
			false, // immediate
			amqp091.Publishing{
				ContentType:   "application/json",
				CorrelationId: wrap.GetRequestID(ctx),
				Body:          body,
				Timestamp:     time.Now(),
			},
		)
	})
	metrics.RecordRabbitMQPublish(exchange, err)
	if err != nil {
		ctx = wrap.WithAction(ctx, "publish_message")
		return wrap.Error(ctx, fmt.Errorf("%s: failed to publish with context: %w", op, err))
	}
	return nil
}

func retry(n int, sleep time.Duration, fn func() error) error {
	var err error
	for range n {
		if err = fn(); err == nil {
			return nil
		}
		time.Sleep(sleep)
	}
	return err
}
