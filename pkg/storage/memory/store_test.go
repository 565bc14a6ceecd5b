package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"benchrun/pkg/models"
	"benchrun/pkg/storage"
)

func TestRequestLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	req := &models.RunRequest{Kind: models.TargetSource, Source: "package x"}
	require.NoError(t, s.CreateRequest(ctx, req))
	assert.NotEqual(t, uuid.Nil, req.ID)
	assert.Equal(t, models.RunPending, req.Status)
	assert.ErrorIs(t, s.CreateRequest(ctx, req), storage.ErrConflict)

	require.NoError(t, s.MarkRunning(ctx, req.ID, "node-1", time.Now()))
	got, err := s.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunRunning, got.Status)
	assert.Equal(t, "node-1", *got.NodeID)

	sumID := uuid.New()
	require.NoError(t, s.Complete(ctx, req.ID, models.RunSucceeded, "", &sumID))
	got, _ = s.GetRequest(ctx, req.ID)
	assert.Equal(t, models.RunSucceeded, got.Status)
	assert.Equal(t, sumID, *got.SummaryID)
	assert.NotNil(t, got.CompletedAt)

	_, err = s.GetRequest(ctx, uuid.New())
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, s.MarkRetried(ctx, uuid.New()), storage.ErrNotFound)
}

func TestOrphansAndRetryable(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	alive, dead := "alive", "dead"
	onAlive := &models.RunRequest{Status: models.RunRunning, NodeID: &alive, MaxAttempts: 3}
	onDead := &models.RunRequest{Status: models.RunRunning, NodeID: &dead, MaxAttempts: 3}
	invalid := &models.RunRequest{Status: models.RunInvalid, MaxAttempts: 3}
	exhausted := &models.RunRequest{Status: models.RunFailed, Attempt: 3, MaxAttempts: 3}
	for _, r := range []*models.RunRequest{onAlive, onDead, invalid, exhausted} {
		require.NoError(t, s.CreateRequest(ctx, r))
	}

	n, err := s.MarkOrphansAsFailed(ctx, []string{alive})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	retryable, err := s.ListRetryable(ctx, 10)
	require.NoError(t, err)
	require.Len(t, retryable, 1)
	assert.Equal(t, onDead.ID, retryable[0].ID)

	require.NoError(t, s.MarkRetried(ctx, onDead.ID))
	retryable, _ = s.ListRetryable(ctx, 10)
	assert.Empty(t, retryable)
}

func TestDueSchedules(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewStore()
	s.SetClock(func() time.Time { return now })

	past, future := now.Add(-time.Minute), now.Add(time.Minute)
	due := &models.Schedule{Name: "due", NextRunAt: &past}
	later := &models.Schedule{Name: "later", NextRunAt: &future}
	paused := &models.Schedule{Name: "paused", NextRunAt: &past, Status: models.SchedulePaused}
	for _, sc := range []*models.Schedule{due, later, paused} {
		require.NoError(t, s.CreateSchedule(ctx, sc))
	}

	got, err := s.ListDueSchedules(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "due", got[0].Name)

	require.NoError(t, s.UpdateNextRun(ctx, due.ID, future))
	got, _ = s.ListDueSchedules(ctx, 10)
	assert.Empty(t, got)

	require.NoError(t, s.DeleteSchedule(ctx, later.ID))
	all, _ := s.ListSchedules(ctx, 10, 0)
	assert.Len(t, all, 2)
}

func TestSummariesByRequest(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	reqID := uuid.New()

	require.NoError(t, s.SaveSummary(ctx, &models.Summary{Title: "a", RequestID: &reqID}))
	require.NoError(t, s.SaveSummary(ctx, &models.Summary{Title: "other"}))

	got, err := s.ListSummaries(ctx, reqID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].Title)
}

func TestQueue(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(4, 10*time.Millisecond)
	require.NoError(t, q.EnsureGroup(ctx, "g"))

	msgID, req, err := q.Pop(ctx, "g", "c")
	require.NoError(t, err)
	assert.Nil(t, req)
	assert.Empty(t, msgID)

	require.NoError(t, q.Push(ctx, &models.RunRequest{URL: "https://example.com/b.go"}))
	assert.Equal(t, 1, q.Len())

	msgID, req, err = q.Pop(ctx, "g", "c")
	require.NoError(t, err)
	require.NotNil(t, req)
	assert.Equal(t, "https://example.com/b.go", req.URL)
	assert.Equal(t, 1, q.Pending())

	require.NoError(t, q.Ack(ctx, "g", msgID))
	assert.Zero(t, q.Pending())
}

func TestPage(t *testing.T) {
	items := []int{1, 2, 3, 4}
	assert.Equal(t, []int{2, 3}, page(items, 2, 1))
	assert.Equal(t, []int{1, 2, 3, 4}, page(items, 0, 0))
	assert.Equal(t, []int{}, page(items, 2, 9))
}
