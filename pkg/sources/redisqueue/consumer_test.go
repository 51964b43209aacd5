package redisqueue

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/dukex/drip/pkg/models"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func redisClient(t *testing.T) redis.UniversalClient {
	t.Helper()

	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(t.Context(), time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("redis not available at %s: %v", addr, err)
	}

	t.Cleanup(func() { _ = client.Close() })

	return client
}

type collector struct {
	mu     sync.Mutex
	events []*models.DomainEvent
	fail   error
}

func (c *collector) handle(_ context.Context, event *models.DomainEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.fail != nil {
		return c.fail
	}

	c.events = append(c.events, event)

	return nil
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.events)
}

func TestNewConsumer_Validation(t *testing.T) {
	_, err := NewConsumer(nil, "", func(context.Context, *models.DomainEvent) error { return nil }, testLogger())
	assert.Error(t, err)

	_, err = NewConsumer(nil, DefaultQueue, nil, testLogger())
	assert.Error(t, err)
}

func TestConsumer_ProcessNext(t *testing.T) {
	client := redisClient(t)
	queue := "drip:test:" + t.Name()
	sink := &collector{}

	consumer, err := NewConsumer(client, queue, sink.handle, testLogger())
	require.NoError(t, err)

	t.Cleanup(func() { client.Del(context.Background(), queue, consumer.DeadLetterQueue(), consumer.DeliveriesKey()) })

	require.NoError(t, client.RPush(t.Context(), queue,
		`{"type":"purchase_made","tenant_id":"tenant-1","contact_id":"c-1","payload":{"value":120}}`,
		`{"type":"purchase_made"}`,
		`not json`,
	).Err())

	popped, err := consumer.ProcessNext(t.Context())
	require.NoError(t, err)
	assert.True(t, popped)
	require.Equal(t, 1, sink.count())
	assert.Equal(t, "c-1", sink.events[0].ContactID)
	assert.NotEmpty(t, sink.events[0].ID)
	assert.False(t, sink.events[0].OccurredAt.IsZero())

	for range 2 {
		popped, err = consumer.ProcessNext(t.Context())
		require.NoError(t, err)
		assert.True(t, popped)
	}

	dead, err := client.LRange(t.Context(), consumer.DeadLetterQueue(), 0, -1).Result()
	require.NoError(t, err)
	assert.Len(t, dead, 2)

	popped, err = consumer.ProcessNext(t.Context())
	require.NoError(t, err)
	assert.False(t, popped)
}

func TestConsumer_RequeuesOnHandlerError(t *testing.T) {
	client := redisClient(t)
	queue := "drip:test:" + t.Name()
	sink := &collector{fail: errors.New("database unavailable")}

	consumer, err := NewConsumer(client, queue, sink.handle, testLogger())
	require.NoError(t, err)

	t.Cleanup(func() { client.Del(context.Background(), queue, consumer.DeadLetterQueue(), consumer.DeliveriesKey()) })

	require.NoError(t, client.RPush(t.Context(), queue, `{"type":"tag_added","tenant_id":"t","contact_id":"c"}`).Err())

	_, err = consumer.ProcessNext(t.Context())
	require.Error(t, err)

	length, err := client.LLen(t.Context(), queue).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), length)
}

func TestConsumer_DeadLettersAfterMaxDeliveries(t *testing.T) {
	client := redisClient(t)
	queue := "drip:test:" + t.Name()
	sink := &collector{fail: errors.New("database unavailable")}

	consumer, err := NewConsumer(client, queue, sink.handle, testLogger())
	require.NoError(t, err)

	consumer.WithMaxDeliveries(3)

	t.Cleanup(func() { client.Del(context.Background(), queue, consumer.DeadLetterQueue(), consumer.DeliveriesKey()) })

	message := `{"type":"tag_added","tenant_id":"t","contact_id":"c"}`
	require.NoError(t, client.RPush(t.Context(), queue, message).Err())

	for range 2 {
		_, err = consumer.ProcessNext(t.Context())
		require.ErrorContains(t, err, "requeued")
	}

	_, err = consumer.ProcessNext(t.Context())
	require.ErrorContains(t, err, "dead-lettered after 3 deliveries")

	length, err := client.LLen(t.Context(), queue).Result()
	require.NoError(t, err)
	assert.Zero(t, length)

	dead, err := client.LRange(t.Context(), consumer.DeadLetterQueue(), 0, -1).Result()
	require.NoError(t, err)
	assert.Equal(t, []string{message}, dead)

	counts, err := client.HLen(t.Context(), consumer.DeliveriesKey()).Result()
	require.NoError(t, err)
	assert.Zero(t, counts)
}

func TestConsumer_SuccessClearsDeliveryCount(t *testing.T) {
	client := redisClient(t)
	queue := "drip:test:" + t.Name()
	sink := &collector{fail: errors.New("database unavailable")}

	consumer, err := NewConsumer(client, queue, sink.handle, testLogger())
	require.NoError(t, err)

	t.Cleanup(func() { client.Del(context.Background(), queue, consumer.DeadLetterQueue(), consumer.DeliveriesKey()) })

	require.NoError(t, client.RPush(t.Context(), queue, `{"type":"tag_added","tenant_id":"t","contact_id":"c"}`).Err())

	_, err = consumer.ProcessNext(t.Context())
	require.Error(t, err)

	sink.mu.Lock()
	sink.fail = nil
	sink.mu.Unlock()

	_, err = consumer.ProcessNext(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, sink.count())

	counts, err := client.HLen(t.Context(), consumer.DeliveriesKey()).Result()
	require.NoError(t, err)
	assert.Zero(t, counts)
}

func TestConsumer_StartStop(t *testing.T) {
	client := redisClient(t)
	queue := "drip:test:" + t.Name()
	sink := &collector{}

	consumer, err := NewConsumer(client, queue, sink.handle, testLogger())
	require.NoError(t, err)

	t.Cleanup(func() { client.Del(context.Background(), queue, consumer.DeadLetterQueue(), consumer.DeliveriesKey()) })

	require.NoError(t, consumer.Start(t.Context()))
	require.NoError(t, client.RPush(t.Context(), queue, `{"type":"tag_added","tenant_id":"t","contact_id":"c"}`).Err())

	require.Eventually(t, func() bool { return sink.count() == 1 }, 3*time.Second, 10*time.Millisecond)

	consumer.Stop(t.Context())
}
