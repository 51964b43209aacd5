package definitions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/drip/pkg/models"
	"github.com/redis/go-redis/v9"
)

// SnapshotCache is a shared cache of serialized definition snapshots.
type SnapshotCache interface {
	// Get returns the cached value, or ok=false on a miss.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte) error
}

type snapshotKey struct {
	workflowID string
	version    int
}

// CachedStore decorates a Store with caching of active workflow snapshots.
// Snapshots of draft or paused definitions are never cached because their
// action list may still change under the same version. Goals and the current
// definition are always read from the underlying store.
type CachedStore struct {
	store  Store
	shared SnapshotCache
	logger *slog.Logger

	mu        sync.RWMutex
	snapshots map[snapshotKey]*models.WorkflowDefinition
}

// NewCachedStore wraps store. shared may be nil for an in-process cache only.
func NewCachedStore(store Store, shared SnapshotCache, logger *slog.Logger) *CachedStore {
	return &CachedStore{
		store:     store,
		shared:    shared,
		logger:    logger.With("module", "definition_cache"),
		snapshots: map[snapshotKey]*models.WorkflowDefinition{},
	}
}

func (c *CachedStore) WorkflowDefinition(ctx context.Context, workflowID string, version int) (*models.WorkflowDefinition, error) {
	key := snapshotKey{workflowID: workflowID, version: version}

	c.mu.RLock()
	definition, ok := c.snapshots[key]
	c.mu.RUnlock()

	if ok {
		return definition, nil
	}

	if c.shared != nil {
		definition, ok = c.readShared(ctx, key)
		if ok {
			c.remember(key, definition)

			return definition, nil
		}
	}

	definition, err := c.store.WorkflowDefinition(ctx, workflowID, version)
	if err != nil {
		return nil, err
	}

	if definition.Status == models.WorkflowStatusActive || definition.Status == models.WorkflowStatusArchived {
		c.remember(key, definition)
		c.writeShared(ctx, key, definition)
	}

	return definition, nil
}

func (c *CachedStore) CurrentDefinition(ctx context.Context, workflowID string) (*models.WorkflowDefinition, error) {
	return c.store.CurrentDefinition(ctx, workflowID)
}

func (c *CachedStore) ActiveGoals(ctx context.Context, workflowID string) ([]*models.GoalDefinition, error) {
	return c.store.ActiveGoals(ctx, workflowID)
}

func (c *CachedStore) remember(key snapshotKey, definition *models.WorkflowDefinition) {
	c.mu.Lock()
	c.snapshots[key] = definition
	c.mu.Unlock()
}

// Shared cache failures degrade to a store read.
func (c *CachedStore) readShared(ctx context.Context, key snapshotKey) (*models.WorkflowDefinition, bool) {
	body, ok, err := c.shared.Get(ctx, key.String())
	if err != nil {
		c.logger.WarnContext(ctx, "Shared definition cache read failed", "workflow_id", key.workflowID, "error", err)

		return nil, false
	}

	if !ok {
		return nil, false
	}

	var definition models.WorkflowDefinition

	err = json.Unmarshal(body, &definition)
	if err != nil {
		c.logger.WarnContext(ctx, "Discarding undecodable cached definition", "workflow_id", key.workflowID, "error", err)

		return nil, false
	}

	return &definition, true
}

func (c *CachedStore) writeShared(ctx context.Context, key snapshotKey, definition *models.WorkflowDefinition) {
	if c.shared == nil {
		return
	}

	body, err := json.Marshal(definition)
	if err != nil {
		c.logger.WarnContext(ctx, "Failed to encode definition for cache", "workflow_id", key.workflowID, "error", err)

		return
	}

	err = c.shared.Set(ctx, key.String(), body)
	if err != nil {
		c.logger.WarnContext(ctx, "Shared definition cache write failed", "workflow_id", key.workflowID, "error", err)
	}
}

func (k snapshotKey) String() string {
	return fmt.Sprintf("drip:definition:%s:%d", k.workflowID, k.version)
}

// RedisCache stores snapshots in Redis. Active snapshots are immutable so
// entries only expire to bound memory.
type RedisCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisCache(client redis.UniversalClient, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	body, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, err
	}

	return body, true, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, value []byte) error {
	return r.client.Set(ctx, key, value, r.ttl).Err()
}
