package amqp

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rabbitmq/amqp091-go"

	applog "utmreport/internal/log"
)

// channel is the subset of *amqp091.Channel the client uses.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

type Client struct {
	conn         *amqp091.Connection
	channel      channel
	exchangeName string
	routingKey   string
	logger       *applog.Logger
}

// Broker connection attempts made by NewClient before giving up.
const (
	dialAttempts = 5
	dialDelay    = time.Second
)

func NewClient(url, exchangeName, routingKey string, logger *applog.Logger) (*Client, error) {
	conn, err := dialWithRetry(context.Background(), url, amqp091.Dial, dialAttempts, dialDelay, logger)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	client := newClient(ch, exchangeName, routingKey, logger)
	client.conn = conn

	if err := client.setup(); err != nil {
		client.Close()
		return nil, fmt.Errorf("setup exchange: %w", err)
	}

	return client, nil
}

// dialWithRetry covers a broker that starts after the service.
func dialWithRetry(ctx context.Context, url string, dial func(string) (*amqp091.Connection, error), attempts uint, delay time.Duration, logger *applog.Logger) (*amqp091.Connection, error) {
	if logger == nil {
		logger = applog.Default(applog.ComponentAMQP)
	}
	var conn *amqp091.Connection
	err := retry.Do(
		func() error {
			c, err := dial(url)
			if err != nil {
				return err
			}
			conn = c
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.WarnContext(ctx, "AMQP dial failed, retrying",
				"attempt", n+1,
				applog.FieldError, err.Error())
		}),
	)
	return conn, err
}

func newClient(ch channel, exchangeName, routingKey string, logger *applog.Logger) *Client {
	if logger == nil {
		logger = applog.Default(applog.ComponentAMQP)
	}
	return &Client{
		channel:      ch,
		exchangeName: exchangeName,
		routingKey:   routingKey,
		logger:       logger,
	}
}

func (c *Client) setup() error {
	err := c.channel.ExchangeDeclare(
		c.exchangeName, // name
		"topic",        // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	return nil
}

// PublishReportRefreshed publishes a persistent refresh event
func (c *Client) PublishReportRefreshed(ctx context.Context, msg *ReportRefreshedMessage) error {
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = c.channel.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		c.routingKey,   // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    msg.CompletedAt,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	c.logger.InfoContext(ctx, "Published report refreshed message",
		applog.FieldSnapshotID, msg.SnapshotID,
		"exchange", c.exchangeName,
		"routing_key", c.routingKey)

	return nil
}

func (c *Client) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
