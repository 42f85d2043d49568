package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"bookvault/pkg/logger"
)

const (
	traceIDHeader = "x-trace-id"
	retryHeader   = "x-retry-count"
	routingHeader = "x-routing-key"

	reconnectDelay = 2 * time.Second
)

// Connection manages a RabbitMQ connection with reconnect capability
type Connection struct {
	url        string
	conn       *amqp.Connection
	channel    *amqp.Channel
	log        *logger.Logger
	mu         sync.RWMutex
	closeChan  chan struct{}
	closeOnce  sync.Once
	reconnects int
}

// NewConnection creates a new RabbitMQ connection
func NewConnection(url string, log *logger.Logger) (*Connection, error) {
	c := &Connection{
		url:       url,
		log:       log,
		closeChan: make(chan struct{}),
	}

	if err := c.connect(); err != nil {
		return nil, err
	}

	go c.watch()

	return c, nil
}

func (c *Connection) connect() error {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.channel = ch
	c.mu.Unlock()

	c.log.Info("connected to RabbitMQ", zap.Int("reconnects", c.reconnects))
	return nil
}

// watch redials after the broker drops the connection until Close is called
func (c *Connection) watch() {
	for {
		c.mu.RLock()
		notify := c.conn.NotifyClose(make(chan *amqp.Error, 1))
		c.mu.RUnlock()

		select {
		case <-c.closeChan:
			return
		case amqpErr, ok := <-notify:
			if !ok && amqpErr == nil {
				// graceful close
				select {
				case <-c.closeChan:
					return
				default:
				}
			}
			c.log.Warn("RabbitMQ connection lost", zap.Any("reason", amqpErr))
		}

		for {
			select {
			case <-c.closeChan:
				return
			case <-time.After(reconnectDelay):
			}
			c.reconnects++
			if err := c.connect(); err != nil {
				c.log.Error("RabbitMQ reconnect failed", zap.Error(err))
				continue
			}
			break
		}
	}
}

// Channel returns the current channel
func (c *Connection) Channel() *amqp.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channel
}

// Close closes the connection
func (c *Connection) Close() error {
	c.closeOnce.Do(func() { close(c.closeChan) })

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// DeclareExchange declares a durable topic exchange
func DeclareExchange(ch *amqp.Channel, exchange string) error {
	err := ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}
	return nil
}

// Publisher publishes messages to RabbitMQ
type Publisher struct {
	conn     *Connection
	exchange string
	log      *logger.Logger
}

// NewPublisher creates a new publisher
func NewPublisher(conn *Connection, exchange string, log *logger.Logger) (*Publisher, error) {
	if err := DeclareExchange(conn.Channel(), exchange); err != nil {
		return nil, err
	}

	return &Publisher{
		conn:     conn,
		exchange: exchange,
		log:      log,
	}, nil
}

// Publish publishes a message
func (p *Publisher) Publish(ctx context.Context, routingKey string, message interface{}) error {
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	traceID := logger.GetTraceID(ctx)

	err = p.conn.Channel().PublishWithContext(
		ctx,
		p.exchange, // exchange
		routingKey, // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:   "application/json",
			Body:          body,
			DeliveryMode:  amqp.Persistent,
			Timestamp:     time.Now(),
			CorrelationId: traceID,
			Headers: amqp.Table{
				traceIDHeader: traceID,
			},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	p.log.WithContext(ctx).Debug("message published",
		zap.String("exchange", p.exchange),
		zap.String("routing_key", routingKey),
	)

	return nil
}

// ErrPermanent marks a handler failure that redelivery cannot fix. Such
// messages go straight to the dead-letter exchange.
var ErrPermanent = errors.New("permanent failure")

// Permanent wraps err so the consumer dead-letters the message
func Permanent(err error) error {
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// Consumer consumes messages from RabbitMQ
type Consumer struct {
	conn        *Connection
	queue       string
	exchange    string
	routingKeys []string
	maxRetries  int
	log         *logger.Logger
}

// NewConsumer creates a new consumer. The queue dead-letters into
// "<exchange>.dlx" once a message has been retried maxRetries times.
func NewConsumer(conn *Connection, queue, exchange string, routingKeys []string, maxRetries int, log *logger.Logger) (*Consumer, error) {
	ch := conn.Channel()

	if err := DeclareExchange(ch, exchange); err != nil {
		return nil, err
	}
	if err := DeclareExchange(ch, exchange+".dlx"); err != nil {
		return nil, err
	}

	_, err := ch.QueueDeclare(
		queue, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		amqp.Table{
			"x-dead-letter-exchange": exchange + ".dlx",
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	for _, key := range routingKeys {
		if err := ch.QueueBind(queue, key, exchange, false, nil); err != nil {
			return nil, fmt.Errorf("failed to bind queue: %w", err)
		}
	}

	return &Consumer{
		conn:        conn,
		queue:       queue,
		exchange:    exchange,
		routingKeys: routingKeys,
		maxRetries:  maxRetries,
		log:         log,
	}, nil
}

// MessageHandler is a function that handles a message
type MessageHandler func(ctx context.Context, routingKey string, body []byte) error

// Consume starts consuming messages
func (c *Consumer) Consume(ctx context.Context, handler MessageHandler) error {
	msgs, err := c.conn.Channel().Consume(
		c.queue, // queue
		"",      // consumer
		false,   // auto-ack
		false,   // exclusive
		false,   // no-local
		false,   // no-wait
		nil,     // args
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				c.handle(ctx, msg, handler)
			}
		}
	}()

	c.log.Info("consumer started",
		zap.String("queue", c.queue),
		zap.Strings("routing_keys", c.routingKeys),
	)

	return nil
}

func (c *Consumer) handle(ctx context.Context, msg amqp.Delivery, handler MessageHandler) {
	traceID, _ := msg.Headers[traceIDHeader].(string)
	msgCtx := logger.WithTraceIDContext(ctx, traceID)
	log := c.log.WithContext(msgCtx)

	log.Debug("message received",
		zap.String("queue", c.queue),
		zap.String("routing_key", msg.RoutingKey),
	)

	routingKey := OriginalRoutingKey(msg)
	err := handler(msgCtx, routingKey, msg.Body)
	if err == nil {
		msg.Ack(false)
		return
	}

	retries := RetryCount(msg.Headers)
	if errors.Is(err, ErrPermanent) || retries >= c.maxRetries {
		log.Error("message dead-lettered",
			zap.Error(err),
			zap.String("queue", c.queue),
			zap.Int("retries", retries),
		)
		msg.Nack(false, false)
		return
	}

	log.Warn("failed to handle message, retrying",
		zap.Error(err),
		zap.String("queue", c.queue),
		zap.Int("retries", retries),
	)

	// republish straight to our queue with an incremented counter; a plain
	// requeue would lose it
	headers := amqp.Table{}
	for k, v := range msg.Headers {
		headers[k] = v
	}
	headers[retryHeader] = int32(retries + 1)
	headers[routingHeader] = routingKey

	time.Sleep(time.Second)
	pubErr := c.conn.Channel().PublishWithContext(ctx, "", c.queue, false, false, amqp.Publishing{
		ContentType:   msg.ContentType,
		Body:          msg.Body,
		DeliveryMode:  amqp.Persistent,
		Timestamp:     time.Now(),
		CorrelationId: msg.CorrelationId,
		Headers:       headers,
	})
	if pubErr != nil {
		log.Error("failed to republish message", zap.Error(pubErr))
		msg.Nack(false, true)
		return
	}
	msg.Ack(false)
}

// RetryCount reads the redelivery counter from message headers
func RetryCount(headers amqp.Table) int {
	switch v := headers[retryHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

// OriginalRoutingKey returns the key a message was first published with,
// surviving retries that go through the default exchange
func OriginalRoutingKey(msg amqp.Delivery) string {
	if rk, ok := msg.Headers[routingHeader].(string); ok && rk != "" {
		return rk
	}
	return msg.RoutingKey
}
