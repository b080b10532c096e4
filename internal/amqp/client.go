package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp091 "github.com/rabbitmq/amqp091-go"
)

// Config is the [amqp] section shared by the server and worker binaries.
type Config struct {
	Host       string `toml:"host"`
	Port       int    `toml:"port"`
	Exchange   string `toml:"exchange"`
	RoutingKey string `toml:"routing_key"`
	Queue      string `toml:"queue"`
}

// URL builds the broker URI. Credentials default to the broker's defaults.
func (c Config) URL() string {
	return fmt.Sprintf("amqp://%s:%d/", c.Host, c.Port)
}

// Client wraps one broker connection and one channel. The channel is safe
// for concurrent publish and consume, which the worker relay relies on.
type Client struct {
	cfg  Config
	conn *amqp091.Connection
	ch   *amqp091.Channel
}

// Dial connects to the broker with a periodic heartbeat. The library runs
// the heartbeat as its own background task.
func Dial(cfg Config) (*Client, error) {
	conn, err := amqp091.DialConfig(cfg.URL(), amqp091.Config{Heartbeat: 10 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("connecting to AMQP at %s: %w", cfg.URL(), err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening AMQP channel: %w", err)
	}
	return &Client{cfg: cfg, conn: conn, ch: ch}, nil
}

// Close tears the channel and connection down.
func (c *Client) Close() error {
	c.ch.Close()
	return c.conn.Close()
}

// DeclareExchangeAndQueue sets up the request exchange and queue and binds
// them. Both binaries declare, so either side may start first.
func (c *Client) DeclareExchangeAndQueue() error {
	if err := c.ch.ExchangeDeclare(c.cfg.Exchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declaring exchange %s: %w", c.cfg.Exchange, err)
	}
	if _, err := c.ch.QueueDeclare(c.cfg.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declaring queue %s: %w", c.cfg.Queue, err)
	}
	if err := c.ch.QueueBind(c.cfg.Queue, c.cfg.RoutingKey, c.cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("binding queue %s: %w", c.cfg.Queue, err)
	}
	return nil
}

// PublishRequest sends a job request to the request exchange.
func (c *Client) PublishRequest(req JobRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	return c.ch.PublishWithContext(context.Background(), c.cfg.Exchange, c.cfg.RoutingKey, false, false,
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Body:         body,
		})
}

// Publish sends a payload straight to a named queue through the default
// exchange. Used for per-job response queues.
func (c *Client) Publish(queue string, body []byte) error {
	return c.ch.PublishWithContext(context.Background(), "", queue, false, false,
		amqp091.Publishing{
			ContentType: "application/json",
			Body:        body,
		})
}

// DeclareResponseQueue creates the per-job response queue a worker will
// publish to. It must exist before the request goes out, or the response
// could be dropped by the broker.
func (c *Client) DeclareResponseQueue(name string) error {
	_, err := c.ch.QueueDeclare(name, false, false, false, false, nil)
	return err
}

// DeleteQueue removes a response queue once its job is done.
func (c *Client) DeleteQueue(name string) error {
	_, err := c.ch.QueueDelete(name, false, false, false)
	return err
}

// ConsumeRequests subscribes to the request queue with manual
// acknowledgment and at most prefetch unacknowledged deliveries.
func (c *Client) ConsumeRequests(consumerTag string, prefetch int) (<-chan Delivery, error) {
	if err := c.ch.Qos(prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("setting prefetch: %w", err)
	}
	msgs, err := c.ch.Consume(c.cfg.Queue, consumerTag, false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consuming queue %s: %w", c.cfg.Queue, err)
	}
	return convert(msgs), nil
}

// ConsumeQueue subscribes to a response queue with manual acknowledgment.
func (c *Client) ConsumeQueue(name string) (<-chan Delivery, error) {
	msgs, err := c.ch.Consume(name, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consuming queue %s: %w", name, err)
	}
	return convert(msgs), nil
}

// Ack acknowledges a single delivery by tag.
func (c *Client) Ack(tag uint64) error {
	return c.ch.Ack(tag, false)
}

// Reject refuses a single delivery, optionally putting it back on the queue.
func (c *Client) Reject(tag uint64, requeue bool) error {
	return c.ch.Reject(tag, requeue)
}

func convert(msgs <-chan amqp091.Delivery) <-chan Delivery {
	out := make(chan Delivery)
	go func() {
		defer close(out)
		for m := range msgs {
			out <- Delivery{Body: m.Body, Tag: m.DeliveryTag}
		}
	}()
	return out
}
