package storage

import (
	"context"
	"errors"
	"time"

	"benchrun/pkg/models"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record already exists")
)

// RequestStore defines the data access layer for queued run requests.
type RequestStore interface {
	// CreateRequest persists a new request.
	CreateRequest(ctx context.Context, req *models.RunRequest) error

	// GetRequest retrieves a request by ID.
	GetRequest(ctx context.Context, id uuid.UUID) (*models.RunRequest, error)

	// ListRequests returns the most recent requests, newest first.
	ListRequests(ctx context.Context, limit, offset int) ([]models.RunRequest, error)

	// MarkRunning records that nodeID picked the request up.
	MarkRunning(ctx context.Context, id uuid.UUID, nodeID string, startedAt time.Time) error

	// Complete records the final status of a request.
	Complete(ctx context.Context, id uuid.UUID, status models.RunStatus, message string, summaryID *uuid.UUID) error

	// MarkOrphansAsFailed fails requests stuck in RUNNING on nodes that are no
	// longer alive.
	MarkOrphansAsFailed(ctx context.Context, activeNodeIDs []string) (int64, error)

	// ListRetryable returns FAILED requests that have attempts left and were
	// not retried yet.
	ListRetryable(ctx context.Context, limit int) ([]models.RunRequest, error)

	// MarkRetried flags a failed request once its follow-up attempt exists.
	MarkRetried(ctx context.Context, id uuid.UUID) error
}

// ScheduleStore defines the data access layer for recurring runs.
type ScheduleStore interface {
	CreateSchedule(ctx context.Context, s *models.Schedule) error
	GetSchedule(ctx context.Context, id uuid.UUID) (*models.Schedule, error)
	ListSchedules(ctx context.Context, limit, offset int) ([]models.Schedule, error)
	UpdateSchedule(ctx context.Context, s *models.Schedule) error
	DeleteSchedule(ctx context.Context, id uuid.UUID) error

	// ListDueSchedules finds active schedules with NextRunAt <= now.
	ListDueSchedules(ctx context.Context, limit int) ([]models.Schedule, error)

	// UpdateNextRun moves a schedule to its next fire time.
	UpdateNextRun(ctx context.Context, id uuid.UUID, nextRun time.Time) error
}

// SummaryStore persists run summaries.
type SummaryStore interface {
	SaveSummary(ctx context.Context, s *models.Summary) error
	GetSummary(ctx context.Context, id uuid.UUID) (*models.Summary, error)
	ListSummaries(ctx context.Context, requestID uuid.UUID) ([]models.Summary, error)
}

// Queue defines the mechanism for dispatching run requests to workers.
type Queue interface {
	// Push adds a request to the pending stream.
	Push(ctx context.Context, req *models.RunRequest) error

	// Pop retrieves a request for a consumer of group. A nil request with a
	// nil error means the wait timed out.
	Pop(ctx context.Context, group string, consumer string) (string, *models.RunRequest, error)

	// Ack acknowledges a request as processed.
	Ack(ctx context.Context, group string, msgID string) error

	// EnsureGroup ensures the consumer group exists.
	EnsureGroup(ctx context.Context, group string) error
}
