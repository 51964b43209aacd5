// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/drip/pkg/persistence"
	"github.com/dukex/drip/pkg/persistence/memory"
	"github.com/dukex/drip/pkg/persistence/postgresql"
)

var supportedPersistenceProviders = []string{"memory", "postgres", "postgresql"}

// NewPersistence selects the backend from the URL scheme: memory:// keeps
// state in process, postgres:// connects and migrates the database.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	provider, err := parsePersistenceProvider(databaseURL)
	if err != nil {
		return nil, err
	}

	switch provider {
	case "postgres", "postgresql":
		return postgresql.NewPersistence(ctx, logger, databaseURL)
	default:
		logger.WarnContext(ctx, "Using in-memory persistence; state is lost on exit")

		return memory.NewPersistence(), nil
	}
}

func parsePersistenceProvider(databaseURL string) (string, error) {
	if databaseURL == "" {
		return "memory", nil
	}

	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "", fmt.Errorf("database url %q has no scheme", databaseURL)
	}

	for _, supported := range supportedPersistenceProviders {
		if provider == supported {
			return provider, nil
		}
	}

	return "", fmt.Errorf("unsupported persistence provider %q, expected one of %v", provider, supportedPersistenceProviders)
}
