package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"benchrun/pkg/models"
	"benchrun/pkg/storage"
)

// PostgresStore implements the request, schedule and summary stores.
type PostgresStore struct {
	db *gorm.DB
}

var (
	_ storage.RequestStore  = (*PostgresStore)(nil)
	_ storage.ScheduleStore = (*PostgresStore)(nil)
	_ storage.SummaryStore  = (*PostgresStore)(nil)
)

// NewPostgresStore initializes the GORM connection and migrates the schema.
func NewPostgresStore(connString string) (*PostgresStore, error) {
	db, err := gorm.Open(postgres.Open(connString), &gorm.Config{
		Logger:      logger.Default.LogMode(logger.Warn),
		PrepareStmt: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return newStore(db)
}

func newStore(db *gorm.DB) (*PostgresStore, error) {
	if err := db.AutoMigrate(&models.RunRequest{}, &models.Schedule{}, &models.Summary{}); err != nil {
		return nil, fmt.Errorf("schema migration failed: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks the connection, for health reporting.
func (s *PostgresStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return storage.ErrNotFound
	}
	return err
}

// --- RequestStore ---

func (s *PostgresStore) CreateRequest(ctx context.Context, req *models.RunRequest) error {
	if err := s.db.WithContext(ctx).Create(req).Error; err != nil {
		return fmt.Errorf("failed to create run request: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetRequest(ctx context.Context, id uuid.UUID) (*models.RunRequest, error) {
	var req models.RunRequest
	if err := s.db.WithContext(ctx).First(&req, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &req, nil
}

func (s *PostgresStore) ListRequests(ctx context.Context, limit, offset int) ([]models.RunRequest, error) {
	var reqs []models.RunRequest
	result := s.db.WithContext(ctx).
		Order("created_at desc").
		Limit(limit).
		Offset(offset).
		Find(&reqs)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list run requests: %w", result.Error)
	}
	return reqs, nil
}

func (s *PostgresStore) MarkRunning(ctx context.Context, id uuid.UUID, nodeID string, startedAt time.Time) error {
	result := s.db.WithContext(ctx).
		Model(&models.RunRequest{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     models.RunRunning,
			"node_id":    nodeID,
			"started_at": startedAt,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to mark request running: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Complete(ctx context.Context, id uuid.UUID, status models.RunStatus, message string, summaryID *uuid.UUID) error {
	result := s.db.WithContext(ctx).
		Model(&models.RunRequest{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       status,
			"message":      message,
			"summary_id":   summaryID,
			"completed_at": time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to complete request: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// MarkOrphansAsFailed fails RUNNING requests whose node is not in
// activeNodeIDs. With no active nodes every running request is an orphan.
func (s *PostgresStore) MarkOrphansAsFailed(ctx context.Context, activeNodeIDs []string) (int64, error) {
	query := s.db.WithContext(ctx).
		Model(&models.RunRequest{}).
		Where("status = ?", models.RunRunning)
	if len(activeNodeIDs) > 0 {
		query = query.Where("node_id NOT IN ?", activeNodeIDs)
	}

	result := query.Updates(map[string]interface{}{
		"status":       models.RunFailed,
		"message":      "worker stopped heartbeating",
		"completed_at": time.Now(),
	})
	return result.RowsAffected, result.Error
}

func (s *PostgresStore) ListRetryable(ctx context.Context, limit int) ([]models.RunRequest, error) {
	var reqs []models.RunRequest
	result := s.db.WithContext(ctx).
		Where("status = ?", models.RunFailed).
		Where("retried = ?", false).
		Where("attempt < max_attempts").
		Order("completed_at asc").
		Limit(limit).
		Find(&reqs)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list retryable requests: %w", result.Error)
	}
	return reqs, nil
}

func (s *PostgresStore) MarkRetried(ctx context.Context, id uuid.UUID) error {
	result := s.db.WithContext(ctx).
		Model(&models.RunRequest{}).
		Where("id = ?", id).
		Update("retried", true)
	if result.Error != nil {
		return fmt.Errorf("failed to mark request retried: %w", result.Error)
	}
	return nil
}

// --- ScheduleStore ---

func (s *PostgresStore) CreateSchedule(ctx context.Context, sched *models.Schedule) error {
	if err := s.db.WithContext(ctx).Create(sched).Error; err != nil {
		return fmt.Errorf("failed to create schedule: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSchedule(ctx context.Context, id uuid.UUID) (*models.Schedule, error) {
	var sched models.Schedule
	if err := s.db.WithContext(ctx).First(&sched, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &sched, nil
}

// ListSchedules returns non-archived schedules, newest first.
func (s *PostgresStore) ListSchedules(ctx context.Context, limit, offset int) ([]models.Schedule, error) {
	var scheds []models.Schedule
	result := s.db.WithContext(ctx).
		Where("status != ?", models.ScheduleArchived).
		Order("created_at desc").
		Limit(limit).
		Offset(offset).
		Find(&scheds)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", result.Error)
	}
	return scheds, nil
}

func (s *PostgresStore) UpdateSchedule(ctx context.Context, sched *models.Schedule) error {
	result := s.db.WithContext(ctx).Save(sched)
	if result.Error != nil {
		return fmt.Errorf("failed to update schedule: %w", result.Error)
	}
	return nil
}

func (s *PostgresStore) DeleteSchedule(ctx context.Context, id uuid.UUID) error {
	result := s.db.WithContext(ctx).Delete(&models.Schedule{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete schedule: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListDueSchedules(ctx context.Context, limit int) ([]models.Schedule, error) {
	var scheds []models.Schedule
	// SELECT * FROM schedules WHERE status = 'ACTIVE' AND next_run_at <= NOW() ORDER BY next_run_at LIMIT ?
	result := s.db.WithContext(ctx).
		Where("status = ?", models.ScheduleActive).
		Where("next_run_at <= ?", time.Now()).
		Order("next_run_at asc").
		Limit(limit).
		Find(&scheds)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list due schedules: %w", result.Error)
	}
	return scheds, nil
}

func (s *PostgresStore) UpdateNextRun(ctx context.Context, id uuid.UUID, nextRun time.Time) error {
	result := s.db.WithContext(ctx).
		Model(&models.Schedule{}).
		Where("id = ?", id).
		Update("next_run_at", nextRun)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// --- SummaryStore ---

func (s *PostgresStore) SaveSummary(ctx context.Context, sum *models.Summary) error {
	if err := s.db.WithContext(ctx).Create(sum).Error; err != nil {
		return fmt.Errorf("failed to save summary: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSummary(ctx context.Context, id uuid.UUID) (*models.Summary, error) {
	var sum models.Summary
	if err := s.db.WithContext(ctx).First(&sum, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &sum, nil
}

func (s *PostgresStore) ListSummaries(ctx context.Context, requestID uuid.UUID) ([]models.Summary, error) {
	var sums []models.Summary
	result := s.db.WithContext(ctx).
		Where("request_id = ?", requestID).
		Order("created_at asc").
		Find(&sums)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list summaries: %w", result.Error)
	}
	return sums, nil
}
