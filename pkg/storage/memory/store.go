// Package memory provides process-local implementations of the storage
// interfaces for single-node mode and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"benchrun/pkg/models"
	"benchrun/pkg/storage"
)

// Store keeps requests, schedules and summaries in maps.
type Store struct {
	mu        sync.RWMutex
	requests  map[uuid.UUID]models.RunRequest
	schedules map[uuid.UUID]models.Schedule
	summaries map[uuid.UUID]models.Summary
	now       func() time.Time
}

var (
	_ storage.RequestStore  = (*Store)(nil)
	_ storage.ScheduleStore = (*Store)(nil)
	_ storage.SummaryStore  = (*Store)(nil)
)

func NewStore() *Store {
	return &Store{
		requests:  make(map[uuid.UUID]models.RunRequest),
		schedules: make(map[uuid.UUID]models.Schedule),
		summaries: make(map[uuid.UUID]models.Summary),
		now:       time.Now,
	}
}

// SetClock replaces the time source used for timestamps and due checks.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// --- RequestStore ---

func (s *Store) CreateRequest(_ context.Context, req *models.RunRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	if _, ok := s.requests[req.ID]; ok {
		return storage.ErrConflict
	}
	if req.Status == "" {
		req.Status = models.RunPending
	}
	if req.Attempt == 0 {
		req.Attempt = 1
	}
	if req.MaxAttempts == 0 {
		req.MaxAttempts = 1
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = s.now()
	}
	if req.ScheduledAt.IsZero() {
		req.ScheduledAt = req.CreatedAt
	}
	s.requests[req.ID] = *req
	return nil
}

func (s *Store) GetRequest(_ context.Context, id uuid.UUID) (*models.RunRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.requests[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &req, nil
}

func (s *Store) ListRequests(_ context.Context, limit, offset int) ([]models.RunRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.RunRequest, 0, len(s.requests))
	for _, r := range s.requests {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, limit, offset), nil
}

func (s *Store) MarkRunning(_ context.Context, id uuid.UUID, nodeID string, startedAt time.Time) error {
	return s.updateRequest(id, func(r *models.RunRequest) {
		r.Status = models.RunRunning
		r.NodeID = &nodeID
		r.StartedAt = &startedAt
	})
}

func (s *Store) Complete(_ context.Context, id uuid.UUID, status models.RunStatus, message string, summaryID *uuid.UUID) error {
	now := s.now()
	return s.updateRequest(id, func(r *models.RunRequest) {
		r.Status = status
		r.Message = message
		r.SummaryID = summaryID
		r.CompletedAt = &now
	})
}

func (s *Store) MarkOrphansAsFailed(_ context.Context, activeNodeIDs []string) (int64, error) {
	alive := make(map[string]bool, len(activeNodeIDs))
	for _, id := range activeNodeIDs {
		alive[id] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	var n int64
	for id, r := range s.requests {
		if r.Status != models.RunRunning || (r.NodeID != nil && alive[*r.NodeID]) {
			continue
		}
		r.Status = models.RunFailed
		r.Message = "worker stopped heartbeating"
		r.CompletedAt = &now
		s.requests[id] = r
		n++
	}
	return n, nil
}

func (s *Store) ListRetryable(_ context.Context, limit int) ([]models.RunRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.RunRequest
	for _, r := range s.requests {
		if r.Status == models.RunFailed && !r.Retried && r.Attempt < r.MaxAttempts {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return page(out, limit, 0), nil
}

func (s *Store) MarkRetried(_ context.Context, id uuid.UUID) error {
	return s.updateRequest(id, func(r *models.RunRequest) { r.Retried = true })
}

func (s *Store) updateRequest(id uuid.UUID, fn func(*models.RunRequest)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	if !ok {
		return storage.ErrNotFound
	}
	fn(&r)
	s.requests[id] = r
	return nil
}

// --- ScheduleStore ---

func (s *Store) CreateSchedule(_ context.Context, sched *models.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sched.ID == uuid.Nil {
		sched.ID = uuid.New()
	}
	if _, ok := s.schedules[sched.ID]; ok {
		return storage.ErrConflict
	}
	if sched.Status == "" {
		sched.Status = models.ScheduleActive
	}
	now := s.now()
	sched.CreatedAt, sched.UpdatedAt = now, now
	s.schedules[sched.ID] = *sched
	return nil
}

func (s *Store) GetSchedule(_ context.Context, id uuid.UUID) (*models.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sched, ok := s.schedules[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &sched, nil
}

func (s *Store) ListSchedules(_ context.Context, limit, offset int) ([]models.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Schedule
	for _, sched := range s.schedules {
		if sched.Status != models.ScheduleArchived {
			out = append(out, sched)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, limit, offset), nil
}

func (s *Store) UpdateSchedule(_ context.Context, sched *models.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.schedules[sched.ID]; !ok {
		return storage.ErrNotFound
	}
	sched.UpdatedAt = s.now()
	s.schedules[sched.ID] = *sched
	return nil
}

func (s *Store) DeleteSchedule(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.schedules[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.schedules, id)
	return nil
}

func (s *Store) ListDueSchedules(_ context.Context, limit int) ([]models.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := s.now()
	var out []models.Schedule
	for _, sched := range s.schedules {
		if sched.Status == models.ScheduleActive && sched.NextRunAt != nil && !sched.NextRunAt.After(now) {
			out = append(out, sched)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextRunAt.Before(*out[j].NextRunAt) })
	return page(out, limit, 0), nil
}

func (s *Store) UpdateNextRun(_ context.Context, id uuid.UUID, nextRun time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sched, ok := s.schedules[id]
	if !ok {
		return storage.ErrNotFound
	}
	sched.NextRunAt = &nextRun
	s.schedules[id] = sched
	return nil
}

// --- SummaryStore ---

func (s *Store) SaveSummary(_ context.Context, sum *models.Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sum.ID == uuid.Nil {
		sum.ID = uuid.New()
	}
	if _, ok := s.summaries[sum.ID]; ok {
		return storage.ErrConflict
	}
	if sum.CreatedAt.IsZero() {
		sum.CreatedAt = s.now()
	}
	s.summaries[sum.ID] = *sum
	return nil
}

func (s *Store) GetSummary(_ context.Context, id uuid.UUID) (*models.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sum, ok := s.summaries[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &sum, nil
}

func (s *Store) ListSummaries(_ context.Context, requestID uuid.UUID) ([]models.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Summary
	for _, sum := range s.summaries {
		if sum.RequestID != nil && *sum.RequestID == requestID {
			out = append(out, sum)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
