package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"benchrun/pkg/models"
	"benchrun/pkg/storage"
)

// StoreSuite runs against a real Postgres and skips when none is reachable.
type StoreSuite struct {
	suite.Suite
	store *PostgresStore
}

func (s *StoreSuite) SetupSuite() {
	if os.Getenv("SKIP_INTEGRATION_TESTS") == "true" {
		s.T().Skip("Skipping integration tests (SKIP_INTEGRATION_TESTS=true)")
	}

	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		getEnv("TEST_DB_HOST", "localhost"),
		getEnv("TEST_DB_PORT", "5432"),
		getEnv("TEST_DB_USER", "benchrun"),
		getEnv("TEST_DB_PASS", "password"),
		getEnv("TEST_DB_NAME", "benchrun_test"),
	)
	store, err := NewPostgresStore(connStr)
	if err != nil {
		s.T().Skipf("Skipping integration tests: %v", err)
	}
	s.store = store
}

func (s *StoreSuite) TearDownSuite() {
	if s.store != nil {
		s.store.Close()
	}
}

func (s *StoreSuite) SetupTest() {
	s.store.db.Exec("TRUNCATE run_requests, schedules, summaries")
}

func (s *StoreSuite) newRequest(status models.RunStatus, attempt, maxAttempts int) *models.RunRequest {
	req := &models.RunRequest{
		Kind:        models.TargetSource,
		Source:      "package x",
		Status:      status,
		Attempt:     attempt,
		MaxAttempts: maxAttempts,
		ScheduledAt: time.Now(),
	}
	s.Require().NoError(s.store.CreateRequest(context.Background(), req))
	return req
}

func (s *StoreSuite) TestRequestLifecycle() {
	ctx := context.Background()
	req := s.newRequest(models.RunPending, 1, 1)

	s.Require().NoError(s.store.MarkRunning(ctx, req.ID, "node-a", time.Now()))
	got, err := s.store.GetRequest(ctx, req.ID)
	s.Require().NoError(err)
	s.Equal(models.RunRunning, got.Status)
	s.Equal("node-a", *got.NodeID)

	sumID := uuid.New()
	s.Require().NoError(s.store.Complete(ctx, req.ID, models.RunSucceeded, "", &sumID))
	got, err = s.store.GetRequest(ctx, req.ID)
	s.Require().NoError(err)
	s.Equal(models.RunSucceeded, got.Status)
	s.Equal(sumID, *got.SummaryID)
	s.NotNil(got.CompletedAt)
}

func (s *StoreSuite) TestGetRequestNotFound() {
	_, err := s.store.GetRequest(context.Background(), uuid.New())
	s.ErrorIs(err, storage.ErrNotFound)
}

func (s *StoreSuite) TestMarkOrphansAsFailed() {
	ctx := context.Background()
	alive := s.newRequest(models.RunPending, 1, 1)
	dead := s.newRequest(models.RunPending, 1, 1)
	s.Require().NoError(s.store.MarkRunning(ctx, alive.ID, "alive", time.Now()))
	s.Require().NoError(s.store.MarkRunning(ctx, dead.ID, "dead", time.Now()))

	n, err := s.store.MarkOrphansAsFailed(ctx, []string{"alive"})
	s.Require().NoError(err)
	s.EqualValues(1, n)

	got, _ := s.store.GetRequest(ctx, dead.ID)
	s.Equal(models.RunFailed, got.Status)
	got, _ = s.store.GetRequest(ctx, alive.ID)
	s.Equal(models.RunRunning, got.Status)
}

func (s *StoreSuite) TestListRetryableSkipsInvalidAndExhausted() {
	ctx := context.Background()
	retryable := s.newRequest(models.RunPending, 1, 3)
	invalid := s.newRequest(models.RunPending, 1, 3)
	exhausted := s.newRequest(models.RunPending, 3, 3)
	s.Require().NoError(s.store.Complete(ctx, retryable.ID, models.RunFailed, "boom", nil))
	s.Require().NoError(s.store.Complete(ctx, invalid.ID, models.RunInvalid, "bad", nil))
	s.Require().NoError(s.store.Complete(ctx, exhausted.ID, models.RunFailed, "boom", nil))

	reqs, err := s.store.ListRetryable(ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(reqs, 1)
	s.Equal(retryable.ID, reqs[0].ID)

	s.Require().NoError(s.store.MarkRetried(ctx, retryable.ID))
	reqs, err = s.store.ListRetryable(ctx, 10)
	s.Require().NoError(err)
	s.Empty(reqs)
}

func (s *StoreSuite) TestSchedules() {
	ctx := context.Background()
	past := time.Now().Add(-time.Minute)
	future := time.Now().Add(time.Hour)

	due := &models.Schedule{Name: "due", Cron: "* * * * *", Kind: models.TargetURL, URL: "https://x", Status: models.ScheduleActive, NextRunAt: &past}
	later := &models.Schedule{Name: "later", Cron: "* * * * *", Kind: models.TargetURL, URL: "https://x", Status: models.ScheduleActive, NextRunAt: &future}
	s.Require().NoError(s.store.CreateSchedule(ctx, due))
	s.Require().NoError(s.store.CreateSchedule(ctx, later))

	scheds, err := s.store.ListDueSchedules(ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(scheds, 1)
	s.Equal(due.ID, scheds[0].ID)

	s.Require().NoError(s.store.UpdateNextRun(ctx, due.ID, future))
	scheds, err = s.store.ListDueSchedules(ctx, 10)
	s.Require().NoError(err)
	s.Empty(scheds)

	s.Require().NoError(s.store.DeleteSchedule(ctx, later.ID))
	_, err = s.store.GetSchedule(ctx, later.ID)
	s.ErrorIs(err, storage.ErrNotFound)
}

func (s *StoreSuite) TestSummaries() {
	ctx := context.Background()
	reqID := uuid.New()
	sum := &models.Summary{
		RequestID: &reqID,
		Title:     "sums",
		Reports:   models.Reports{{Benchmark: "sums.BenchmarkAdd", N: 100, NsPerOp: 12.5}},
	}
	s.Require().NoError(s.store.SaveSummary(ctx, sum))

	got, err := s.store.GetSummary(ctx, sum.ID)
	s.Require().NoError(err)
	s.Equal("sums", got.Title)
	s.Require().Len(got.Reports, 1)
	s.Equal(100, got.Reports[0].N)

	list, err := s.store.ListSummaries(ctx, reqID)
	s.Require().NoError(err)
	s.Len(list, 1)
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
