// Package redisqueue feeds domain events pushed onto a Redis list into the
// engine.
package redisqueue

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/drip/pkg/events"
	"github.com/dukex/drip/pkg/models"
	redis "github.com/redis/go-redis/v9"
)

const (
	DefaultQueue = "drip:domain-events"

	// DefaultMaxDeliveries bounds handler attempts per message.
	DefaultMaxDeliveries = 5

	popTimeout   = time.Second
	errorBackoff = time.Second
)

// Handler receives each decoded event. A returned error puts the raw message
// back at the tail of the queue until it has been delivered MaxDeliveries
// times, after which it is dead-lettered.
type Handler func(ctx context.Context, event *models.DomainEvent) error

// Consumer pops events with BLPOP and hands them to a Handler one at a time.
// Messages that do not decode into a valid event are moved to the dead-letter
// list {queue}:dead. Failed deliveries are counted in the hash
// {queue}:deliveries, keyed by the SHA-256 of the raw message.
type Consumer struct {
	client        redis.UniversalClient
	queue         string
	handler       Handler
	maxDeliveries int64
	clock         func() time.Time
	logger        *slog.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewConsumer(client redis.UniversalClient, queue string, handler Handler, logger *slog.Logger) (*Consumer, error) {
	if queue == "" {
		return nil, errors.New("redis queue name is required")
	}

	if handler == nil {
		return nil, errors.New("redis queue handler is required")
	}

	return &Consumer{
		client:        client,
		queue:         queue,
		handler:       handler,
		maxDeliveries: DefaultMaxDeliveries,
		clock:         time.Now,
		stopCh:        make(chan struct{}),
		logger:        logger.With("module", "redis_queue", "queue", queue),
	}, nil
}

// WithMaxDeliveries sets how many failed handler attempts a message gets
// before it is dead-lettered. Values below one are ignored.
func (c *Consumer) WithMaxDeliveries(n int) *Consumer {
	if n > 0 {
		c.maxDeliveries = int64(n)
	}

	return c
}

// DeadLetterQueue is the list invalid and exhausted messages are moved to.
func (c *Consumer) DeadLetterQueue() string {
	return c.queue + ":dead"
}

// DeliveriesKey is the hash holding failed delivery counts.
func (c *Consumer) DeliveriesKey() string {
	return c.queue + ":deliveries"
}

func messageKey(message string) string {
	sum := sha256.Sum256([]byte(message))

	return hex.EncodeToString(sum[:])
}

// Start verifies the connection and begins consuming in the background.
func (c *Consumer) Start(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := c.client.Ping(pingCtx).Err()
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	c.logger.InfoContext(ctx, "Starting queue consumer")

	c.wg.Add(1)

	go c.consume(ctx)

	return nil
}

func (c *Consumer) consume(ctx context.Context) {
	defer c.wg.Done()

	for {
		select {
		case <-c.stopCh:
			c.logger.InfoContext(ctx, "Queue consumer stopped")

			return
		case <-ctx.Done():
			c.logger.InfoContext(context.WithoutCancel(ctx), "Context cancelled, stopping queue consumer")

			return
		default:
			_, err := c.ProcessNext(ctx)
			if err != nil && ctx.Err() == nil {
				c.logger.ErrorContext(ctx, "Error processing message", "error", err)
				time.Sleep(errorBackoff)
			}
		}
	}
}

// ProcessNext waits briefly for one message and handles it. It reports whether
// a message was popped.
func (c *Consumer) ProcessNext(ctx context.Context) (bool, error) {
	result, err := c.client.BLPop(ctx, popTimeout, c.queue).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("failed to pop message from queue: %w", err)
	}

	if len(result) < 2 {
		return false, nil
	}

	message := result[1]

	event, err := events.DecodeDomainEvent([]byte(message), c.clock())
	if err != nil {
		c.logger.WarnContext(ctx, "Moving invalid message to dead-letter queue", "error", err)

		pushErr := c.client.RPush(ctx, c.DeadLetterQueue(), message).Err()
		if pushErr != nil {
			return true, fmt.Errorf("failed to dead-letter message: %w", pushErr)
		}

		return true, nil
	}

	err = c.handler(ctx, event)
	if err != nil {
		return true, c.retry(context.WithoutCancel(ctx), event, message, err)
	}

	err = c.client.HDel(ctx, c.DeliveriesKey(), messageKey(message)).Err()
	if err != nil {
		c.logger.WarnContext(ctx, "Failed to clear delivery count", "event_id", event.ID, "error", err)
	}

	c.logger.DebugContext(ctx, "Event consumed", "event_id", event.ID, "event_type", event.Type)

	return true, nil
}

// retry requeues a message whose handler failed, or dead-letters it once it
// has failed maxDeliveries times.
func (c *Consumer) retry(ctx context.Context, event *models.DomainEvent, message string, cause error) error {
	field := messageKey(message)

	deliveries, err := c.client.HIncrBy(ctx, c.DeliveriesKey(), field, 1).Result()
	if err != nil {
		return fmt.Errorf("failed to count delivery of event %s after %w: %w", event.ID, cause, err)
	}

	if deliveries >= c.maxDeliveries {
		c.logger.WarnContext(ctx, "Moving exhausted event to dead-letter queue",
			"event_id", event.ID, "deliveries", deliveries, "error", cause)

		_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.RPush(ctx, c.DeadLetterQueue(), message)
			pipe.HDel(ctx, c.DeliveriesKey(), field)

			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to dead-letter event %s after %w: %w", event.ID, cause, err)
		}

		return fmt.Errorf("event %s dead-lettered after %d deliveries: %w", event.ID, deliveries, cause)
	}

	err = c.client.RPush(ctx, c.queue, message).Err()
	if err != nil {
		return fmt.Errorf("failed to requeue event %s after %w: %w", event.ID, cause, err)
	}

	return fmt.Errorf("event %s requeued: %w", event.ID, cause)
}

// Stop ends the consumer loop and waits for the in-flight message.
func (c *Consumer) Stop(ctx context.Context) {
	c.logger.InfoContext(ctx, "Stopping queue consumer")

	close(c.stopCh)
	c.wg.Wait()
}
