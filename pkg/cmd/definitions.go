package cmd

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukex/drip/pkg/definitions"
	redis "github.com/redis/go-redis/v9"
)

// NewRedisClient parses a redis:// or rediss:// URL. An empty URL yields nil.
func NewRedisClient(redisURL string) (redis.UniversalClient, error) {
	if redisURL == "" {
		return nil, nil
	}

	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	return redis.NewClient(options), nil
}

// NewDefinitions opens the definition store at definitionsURL and caches
// active snapshots in process and, when client is set, in Redis.
func NewDefinitions(definitionsURL string, client redis.UniversalClient, ttl time.Duration, logger *slog.Logger) (definitions.Store, error) {
	if definitionsURL != "" && !strings.HasPrefix(definitionsURL, "file://") && strings.Contains(definitionsURL, "://") {
		return nil, fmt.Errorf("unsupported definitions url %q, expected file://", definitionsURL)
	}

	var shared definitions.SnapshotCache
	if client != nil {
		shared = definitions.NewRedisCache(client, ttl)
	}

	return definitions.NewCachedStore(definitions.NewFileStore(definitionsURL), shared, logger), nil
}
