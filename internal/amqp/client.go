package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// Circuit breaker states
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	maxFailures    = 5
	openTimeout    = 30 * time.Second
	publishTimeout = 5 * time.Second
	maxBackoff     = 30 * time.Second
)

var ErrNotConnected = errors.New("amqp: not connected")

// Client publishes and consumes cache invalidation events on a fanout exchange.
// Every instance binds its own exclusive queue, so each one sees every event.
type Client struct {
	url          string
	exchangeName string
	origin       string
	logger       *slog.Logger

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel

	state        int32
	failureCount int64
	cbMu         sync.Mutex
	lastFailure  time.Time
}

// NewClient connects to url and declares the exchange. origin identifies
// this instance in published messages.
func NewClient(url, exchangeName, origin string, logger *slog.Logger) (*Client, error) {
	c := &Client{
		url:          url,
		exchangeName: exchangeName,
		origin:       origin,
		logger:       logger,
	}
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

// Origin returns the instance identifier stamped on published messages.
func (c *Client) Origin() string {
	return c.origin
}

func (c *Client) log() *slog.Logger {
	if c.logger == nil {
		return slog.Default()
	}
	return c.logger
}

func (c *Client) connect() error {
	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		c.exchangeName, // name
		"fanout",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("declare exchange: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.channel = channel
	c.mu.Unlock()
	return nil
}

func (c *Client) currentChannel() *amqp091.Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel == nil || c.channel.IsClosed() {
		return nil
	}
	return c.channel
}

// reconnect drops the current connection and dials again, backing off
// until it succeeds or ctx is done.
func (c *Client) reconnect(ctx context.Context) error {
	c.closeConnection()

	for attempt := 0; ; attempt++ {
		err := c.connect()
		if err == nil {
			c.log().InfoContext(ctx, "Reconnected to AMQP", "exchange", c.exchangeName, "attempts", attempt+1)
			return nil
		}

		wait := exponentialBackoff(attempt)
		c.log().WarnContext(ctx, "AMQP reconnect failed", "error", err, "retry_in", wait)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// PublishSettingChanged announces a setting change to every instance.
func (c *Client) PublishSettingChanged(ctx context.Context, key, value string) error {
	body, err := NewSettingChangedMessage(key, value, c.origin).ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := c.publish(ctx, TypeSettingChanged, body); err != nil {
		return fmt.Errorf("publish setting change: %w", err)
	}

	c.log().InfoContext(ctx, "Published setting change",
		"key", key,
		"value", value,
		"exchange", c.exchangeName)
	return nil
}

// PublishStatsInvalidated tells every instance to drop its cached stats.
func (c *Client) PublishStatsInvalidated(ctx context.Context, reason string) error {
	body, err := NewStatsInvalidatedMessage(reason, c.origin).ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := c.publish(ctx, TypeStatsInvalidated, body); err != nil {
		return fmt.Errorf("publish stats invalidation: %w", err)
	}

	c.log().DebugContext(ctx, "Published stats invalidation", "reason", reason, "exchange", c.exchangeName)
	return nil
}

func (c *Client) publish(ctx context.Context, msgType string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.isCircuitOpen() {
		return errors.New("circuit breaker is open")
	}

	channel := c.currentChannel()
	if channel == nil {
		if err := c.connect(); err != nil {
			c.recordFailure()
			return fmt.Errorf("%w: %v", ErrNotConnected, err)
		}
		channel = c.currentChannel()
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err := channel.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		"",             // routing key, ignored by fanout
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType: "application/json",
			Type:        msgType,
			AppId:       c.origin,
			Timestamp:   time.Now(),
			Body:        body,
		},
	)
	if err != nil {
		c.recordFailure()
		if isConnectionError(err) {
			c.closeConnection()
		}
		return fmt.Errorf("publish message: %w", err)
	}
	c.recordSuccess()
	return nil
}

// Handlers receive events from other instances. A nil handler acknowledges
// and ignores its message type.
type Handlers struct {
	SettingChanged   func(context.Context, *SettingChangedMessage) error
	StatsInvalidated func(context.Context, *StatsInvalidatedMessage) error
	// Reconnected runs after the consumer rebinds a fresh queue. Events
	// published while the old queue was gone are lost, so caches that depend
	// on them should be dropped here.
	Reconnected func(context.Context)
}

// Consume delivers events from other instances to h until ctx is done,
// reconnecting when the broker goes away.
func (c *Client) Consume(ctx context.Context, h Handlers) error {
	for {
		err := c.consume(ctx, h)
		if ctx.Err() != nil {
			c.log().InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return ctx.Err()
		}

		c.log().WarnContext(ctx, "Event consumer interrupted", "error", err)
		if err := c.reconnect(ctx); err != nil {
			return err
		}
		if h.Reconnected != nil {
			h.Reconnected(ctx)
		}
	}
}

func (c *Client) consume(ctx context.Context, h Handlers) error {
	channel := c.currentChannel()
	if channel == nil {
		return ErrNotConnected
	}

	// Server-named, exclusive and auto-deleted: the queue lives as long as
	// this consumer does.
	queue, err := channel.QueueDeclare(
		"",    // name
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	if err := channel.QueueBind(queue.Name, "", c.exchangeName, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	msgs, err := channel.Consume(
		queue.Name, // queue
		"",         // consumer
		false,      // auto-ack
		true,       // exclusive
		false,      // no-local
		false,      // no-wait
		nil,        // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	c.log().InfoContext(ctx, "Started consuming events", "exchange", c.exchangeName, "queue", queue.Name)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return errors.New("message channel closed")
			}
			c.dispatch(ctx, delivery.Type, delivery.Body, delivery, h)
		}
	}
}

type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

// dispatch decodes body by msgType and runs the matching handler. Failed
// messages are dropped rather than requeued: the queue is private, so a
// requeue would loop forever.
func (c *Client) dispatch(ctx context.Context, msgType string, body []byte, ack acknowledger, h Handlers) {
	var (
		origin string
		handle func() error
		err    error
	)
	switch msgType {
	case "", TypeSettingChanged:
		var msg *SettingChangedMessage
		if msg, err = SettingChangedMessageFromJSON(body); err == nil {
			origin = msg.Origin
			if h.SettingChanged != nil {
				handle = func() error { return h.SettingChanged(ctx, msg) }
			}
		}
	case TypeStatsInvalidated:
		var msg *StatsInvalidatedMessage
		if msg, err = StatsInvalidatedMessageFromJSON(body); err == nil {
			origin = msg.Origin
			if h.StatsInvalidated != nil {
				handle = func() error { return h.StatsInvalidated(ctx, msg) }
			}
		}
	default:
		err = fmt.Errorf("unknown message type %q", msgType)
	}
	if err != nil {
		c.log().ErrorContext(ctx, "Failed to decode message", "error", err, "type", msgType)
		ack.Nack(false, false)
		return
	}

	if origin == c.origin || handle == nil {
		ack.Ack(false)
		return
	}

	if err := handle(); err != nil {
		c.log().ErrorContext(ctx, "Failed to handle message",
			"error", err,
			"type", msgType,
			"origin", origin)
		ack.Nack(false, false)
		return
	}

	ack.Ack(false)
	c.log().DebugContext(ctx, "Processed message", "type", msgType, "origin", origin)
}

func (c *Client) isCircuitOpen() bool {
	if atomic.LoadInt32(&c.state) != StateOpen {
		return false
	}

	c.cbMu.Lock()
	last := c.lastFailure
	c.cbMu.Unlock()

	if time.Since(last) > openTimeout {
		// Let one probe through.
		atomic.CompareAndSwapInt32(&c.state, StateOpen, StateHalfOpen)
		return false
	}
	return true
}

func (c *Client) recordFailure() {
	n := atomic.AddInt64(&c.failureCount, 1)

	c.cbMu.Lock()
	c.lastFailure = time.Now()
	c.cbMu.Unlock()

	if n >= maxFailures || atomic.LoadInt32(&c.state) == StateHalfOpen {
		if atomic.SwapInt32(&c.state, StateOpen) != StateOpen {
			c.log().Warn("AMQP circuit breaker opened", "failures", n)
		}
	}
}

func (c *Client) recordSuccess() {
	atomic.StoreInt64(&c.failureCount, 0)
	atomic.StoreInt32(&c.state, StateClosed)
}

// exponentialBackoff returns 1s doubled per attempt, capped at 30s.
func exponentialBackoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= 5 {
		return maxBackoff
	}
	d := time.Second << attempt
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := err.Error()
	for _, s := range []string{
		"connection refused",
		"connection closed",
		"EOF",
		"broken pipe",
		"use of closed network connection",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func (c *Client) closeConnection() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// Ping reports whether the broker connection is open.
func (c *Client) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || c.conn.IsClosed() {
		return ErrNotConnected
	}
	return nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}
