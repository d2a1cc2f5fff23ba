package rabbit

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/aqylbek/ambulance-dispatch/internal/domain/models"
	"github.com/aqylbek/ambulance-dispatch/pkg/logger"
	wrap "github.com/aqylbek/ambulance-dispatch/pkg/logger/wrapper"
	"github.com/aqylbek/ambulance-dispatch/pkg/rabbit"
)

const (
	queueAssignmentOffers = "assignment_offers"
	offerBindingKey       = "assignment.offer.*"

	reconnectDelay = 2 * time.Second
)

// OfferHandler processes one assignment offer pulled from the broker.
type OfferHandler func(ctx context.Context, msg models.AssignmentOfferMessage) error

// OfferConsumer delivers assignment offers to the driver gateway. Offers
// travel through the broker so the dispatcher never blocks on a slow or
// absent WebSocket peer.
type OfferConsumer struct {
	client *rabbit.RabbitMQ
	l      logger.Logger
}

func NewOfferConsumer(client *rabbit.RabbitMQ, l logger.Logger) *OfferConsumer {
	return &OfferConsumer{
		client: client,
		l:      l,
	}
}

func (c *OfferConsumer) declareAndBindQueue(ctx context.Context) (amqp.Queue, error) {
	q, err := c.client.Channel.QueueDeclare(queueAssignmentOffers, true, false, false, false, nil)
	if err != nil {
		return amqp.Queue{}, wrap.Error(ctx, err)
	}

	if err := c.client.Channel.QueueBind(q.Name, offerBindingKey, emergencyExchange, false, nil); err != nil {
		return amqp.Queue{}, wrap.Error(ctx, err)
	}

	return q, nil
}

// ConsumeAssignmentOffers reads offers until ctx is cancelled,
// reconnecting on broker failures.
func (c *OfferConsumer) ConsumeAssignmentOffers(ctx context.Context, handler OfferHandler) error {
	ctx = wrap.WithAction(ctx, "rabbitmq_consume_assignment_offers")

	for {
		if ctx.Err() != nil {
			c.l.Debug(ctx, "assignment offer consumer stopped by context")
			return nil
		}

		if err := c.client.Reconnect(ctx); err != nil {
			c.l.Error(ctx, "reconnect failed", err)
			time.Sleep(reconnectDelay)
			continue
		}

		if _, err := c.declareAndBindQueue(ctx); err != nil {
			c.l.Error(ctx, "declare and bind queue failed", err)
			time.Sleep(reconnectDelay)
			continue
		}

		msgs, err := c.client.Channel.Consume(queueAssignmentOffers, "", false, false, false, false, nil)
		if err != nil {
			c.l.Error(ctx, "consume failed", err)
			time.Sleep(reconnectDelay)
			continue
		}

		c.l.Info(ctx, "start consuming assignment offers", "queue", queueAssignmentOffers)

	consumeLoop:
		for {
			select {
			case <-ctx.Done():
				c.l.Info(ctx, "assignment offer consumer shutting down")
				return nil

			case msg, ok := <-msgs:
				if !ok {
					c.l.Warn(ctx, "message channel closed, reconnecting...")
					time.Sleep(reconnectDelay)
					break consumeLoop
				}

				c.handleOffer(ctx, handler, msg)
			}
		}
	}
}

func (c *OfferConsumer) handleOffer(ctx context.Context, handler OfferHandler, d amqp.Delivery) {
	var offer models.AssignmentOfferMessage
	if err := json.Unmarshal(d.Body, &offer); err != nil {
		c.l.Error(ctx, "failed to unmarshal assignment offer", err)
		d.Nack(false, false)
		return
	}

	ctx = wrap.WithRequestID(ctx, d.CorrelationId)
	ctx = wrap.WithDriverID(ctx, offer.DriverID.String())

	if err := handler(ctx, offer); err != nil {
		c.l.Error(wrap.ErrorCtx(ctx, err), "failed to handle assignment offer", err)
		d.Nack(false, false)
		return
	}

	d.Ack(false)
}
