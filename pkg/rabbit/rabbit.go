// Package rabbit holds the shared AMQP connection and channel, with
// close monitoring and re-dial support for consumers.
package rabbit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aqylbek/ambulance-dispatch/pkg/logger"
	wrap "github.com/aqylbek/ambulance-dispatch/pkg/logger/wrapper"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	heartbeatInterval = 10 * time.Second
	redialAttempts    = 5
)

type RabbitMQ struct {
	Conn      *amqp.Connection
	Channel   *amqp.Channel
	closeChan chan *amqp.Error
	isClosed  bool
	mu        sync.Mutex
	dsn       string

	log logger.Logger
}

func New(ctx context.Context, dsn string, log logger.Logger) (*RabbitMQ, error) {
	conn, channel, err := dial(dsn)
	if err != nil {
		return nil, err
	}

	r := &RabbitMQ{
		Conn:    conn,
		Channel: channel,
		dsn:     dsn,
		log:     log,
	}
	r.closeChan = watchClose(conn, channel)

	go r.monitorConnection()

	log.Info(wrap.WithAction(ctx, "rabbitmq_connected"), "connected to rabbitMQ")
	return r, nil
}

func dial(dsn string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.DialConfig(dsn, amqp.Config{Heartbeat: heartbeatInterval})
	if err != nil {
		return nil, nil, fmt.Errorf("connect to rabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}

	return conn, channel, nil
}

// watchClose merges connection and channel close notifications into a
// single stream; whichever closes first decides the connection is down.
func watchClose(conn *amqp.Connection, channel *amqp.Channel) chan *amqp.Error {
	connClose := make(chan *amqp.Error, 1)
	chClose := make(chan *amqp.Error, 1)
	conn.NotifyClose(connClose)
	channel.NotifyClose(chClose)

	merged := make(chan *amqp.Error, 2)
	go func() {
		select {
		case err := <-connClose:
			merged <- err
		case err := <-chClose:
			merged <- err
		}
	}()
	return merged
}

func (r *RabbitMQ) monitorConnection() {
	closeErr := <-r.closeChan
	r.isClosed = true

	ctx := wrap.WithAction(context.Background(), "rabbitmq_connection_closed")
	if closeErr != nil {
		r.log.Error(ctx, "rabbitMQ connection closed with error", closeErr)
	} else {
		r.log.Debug(ctx, "rabbitMQ connection closed gracefully")
	}
}

func (r *RabbitMQ) IsConnectionClosed() bool {
	if r.Conn == nil {
		return true
	}
	return r.isClosed || r.Conn.IsClosed() || r.Channel.IsClosed()
}

// Close shuts the channel and connection down, honoring ctx so a stuck
// broker cannot stall graceful shutdown.
func (r *RabbitMQ) Close(ctx context.Context) error {
	ctx = wrap.WithAction(ctx, "rabbitmq_connection_closing")

	r.mu.Lock()
	if r.isClosed {
		r.mu.Unlock()
		return nil
	}
	// Marked closed before releasing the lock so concurrent Close calls
	// return early.
	r.isClosed = true
	ch := r.Channel
	conn := r.Conn
	r.Channel = nil
	r.Conn = nil
	r.mu.Unlock()

	if ch != nil {
		if err := closeWithCtxFunc(ctx, ch.Close); err != nil && ctx.Err() == nil {
			r.log.Error(ctx, "error closing channel", err)
		}
	}

	if conn != nil {
		if err := closeWithCtxFunc(ctx, conn.Close); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("close connection: %w", err)
		}
	}

	r.log.Info(wrap.WithAction(ctx, "rabbitmq_connection_closed"), "rabbitMQ closed")
	return nil
}

func closeWithCtxFunc(ctx context.Context, fn func() error) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- fn()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		// The goroutine still writes into the buffered channel and exits.
		return ctx.Err()
	}
}

// Reconnect re-dials the broker with a linear backoff. It is a no-op
// when the current connection and channel are still healthy.
func (r *RabbitMQ) Reconnect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.dsn == "" {
		return fmt.Errorf("dsn is empty: can't reconnect")
	}

	if !r.isClosed && r.Conn != nil && !r.Conn.IsClosed() && r.Channel != nil && !r.Channel.IsClosed() {
		return nil
	}

	var (
		conn    *amqp.Connection
		channel *amqp.Channel
		err     error
	)

	for i := range redialAttempts {
		conn, channel, err = dial(r.dsn)
		if err == nil {
			break
		}

		wait := time.Duration(i+1) * 2 * time.Second
		r.log.Debug(ctx, "reconnect attempt failed", "attempt", i+1, "retry_in", wait.String())

		select {
		case <-ctx.Done():
			r.log.Debug(ctx, "shutdown requested, stopping reconnect attempts")
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	if err != nil {
		return fmt.Errorf("reconnect to rabbitMQ: %w", err)
	}

	r.Conn = conn
	r.Channel = channel
	r.closeChan = watchClose(conn, channel)
	r.isClosed = false

	go r.monitorConnection()

	r.log.Info(wrap.WithAction(ctx, "rabbitmq_connected"), "reconnected to rabbitMQ")
	return nil
}
