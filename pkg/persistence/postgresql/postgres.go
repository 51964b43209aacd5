// Package postgresql provides the PostgreSQL persistence implementation for
// enrollments, execution records, goal achievements and webhook deliveries.
package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/drip/pkg/persistence"
	"github.com/dukex/drip/pkg/persistence/sqlbase"
	"github.com/lib/pq"
)

const uniqueViolation = pq.ErrorCode("23505")

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db              *sql.DB
	logger          *slog.Logger
	enrollmentRepo  *EnrollmentRepository
	recordRepo      *ExecutionRecordRepository
	achievementRepo *AchievementRepository
	deliveryRepo    *DeliveryRepository
}

// NewPersistence connects to databaseURL, runs migrations and returns the
// PostgreSQL persistence layer.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return New(database, logger), nil
}

// New wraps an already migrated database handle.
func New(db *sql.DB, logger *slog.Logger) *Persistence {
	return &Persistence{
		db:              db,
		logger:          logger,
		enrollmentRepo:  NewEnrollmentRepository(db, logger),
		recordRepo:      NewExecutionRecordRepository(db, logger),
		achievementRepo: NewAchievementRepository(db, logger),
		deliveryRepo:    NewDeliveryRepository(db, logger),
	}
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func (p *Persistence) EnrollmentRepository() persistence.EnrollmentRepository {
	return p.enrollmentRepo
}

func (p *Persistence) ExecutionRecordRepository() persistence.ExecutionRecordRepository {
	return p.recordRepo
}

func (p *Persistence) AchievementRepository() persistence.AchievementRepository {
	return p.achievementRepo
}

func (p *Persistence) DeliveryRepository() persistence.DeliveryRepository {
	return p.deliveryRepo
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error

	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

type scanner interface {
	Scan(dest ...any) error
}
