package messaging

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cnhflow/cnhflow-backend/pkg/config"
	"github.com/cnhflow/cnhflow-backend/pkg/logger"
)

// ErrConnectionClosed is returned by Reconnect after Close
var ErrConnectionClosed = errors.New("rabbitmq connection is permanently closed")

// RabbitMQ owns the broker connection and the single channel events are
// published on. The channel is replaced on Reconnect.
type RabbitMQ struct {
	config *config.RabbitMQConfig
	logger *logger.Logger

	mu         sync.RWMutex
	conn       *amqp.Connection
	channel    *amqp.Channel
	closed     bool
	reconnects int
}

// New dials the broker
func New(cfg *config.RabbitMQConfig, log *logger.Logger) (*RabbitMQ, error) {
	rmq := &RabbitMQ{
		config: cfg,
		logger: log.WithComponent("rabbitmq"),
	}

	conn, ch, err := dial(cfg.URL)
	if err != nil {
		return nil, err
	}
	rmq.swap(conn, ch)

	rmq.logger.Info().Str("exchange", cfg.Exchange).Msg("connected to RabbitMQ")
	return rmq, nil
}

func dial(url string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to open channel: %w", err)
	}
	return conn, ch, nil
}

// swap installs a new connection and logs when the broker drops it.
// Callers hold mu, except New.
func (r *RabbitMQ) swap(conn *amqp.Connection, ch *amqp.Channel) {
	r.conn = conn
	r.channel = ch

	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	go func() {
		if amqpErr, ok := <-closed; ok && amqpErr != nil {
			r.logger.Warn().Int("code", amqpErr.Code).Str("reason", amqpErr.Reason).Msg("RabbitMQ connection lost")
		}
	}()
}

// Channel returns the current channel
func (r *RabbitMQ) Channel() *amqp.Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.channel
}

// Close closes the channel and the connection. Reconnect fails afterwards.
func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true

	if r.channel != nil {
		if err := r.channel.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			r.logger.Warn().Err(err).Msg("failed to close channel")
		}
	}
	if r.conn != nil {
		if err := r.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			return fmt.Errorf("failed to close connection: %w", err)
		}
	}

	r.logger.Info().Msg("RabbitMQ connection closed")
	return nil
}

// Health returns the health status of the broker connection
func (r *RabbitMQ) Health() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	status := map[string]string{
		"status":     "up",
		"exchange":   r.config.Exchange,
		"reconnects": strconv.Itoa(r.reconnects),
	}
	if r.conn == nil || r.conn.IsClosed() {
		status["status"] = "down"
		status["error"] = "connection closed"
	}
	return status
}

// DeclareExchange declares a durable topic exchange
func (r *RabbitMQ) DeclareExchange(name string) error {
	ch := r.Channel()
	if ch == nil {
		return amqp.ErrClosed
	}
	return ch.ExchangeDeclare(
		name,    // name
		"topic", // type
		true,    // durable
		false,   // auto-deleted
		false,   // internal
		false,   // no-wait
		nil,     // arguments
	)
}

// Reconnect replaces a dropped connection, retrying up to max_retries times
// with reconnect_delay in between. A healthy connection is left alone.
func (r *RabbitMQ) Reconnect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrConnectionClosed
	}
	if r.conn != nil && !r.conn.IsClosed() && r.channel != nil && !r.channel.IsClosed() {
		return nil
	}
	if r.conn != nil && !r.conn.IsClosed() {
		r.conn.Close()
	}

	attempts := max(r.config.MaxRetries, 1)
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		r.logger.Info().Int("attempt", i+1).Msg("attempting to reconnect to RabbitMQ")

		conn, ch, err := dial(r.config.URL)
		if err == nil {
			r.swap(conn, ch)
			r.reconnects++
			return nil
		}

		r.logger.Warn().Err(err).Msg("reconnection attempt failed")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.config.ReconnectDelay):
		}
	}

	return fmt.Errorf("failed to reconnect after %d attempts", attempts)
}
