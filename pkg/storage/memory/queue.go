package memory

import (
	"context"
	"strconv"
	"sync"
	"time"

	"benchrun/pkg/models"
	"benchrun/pkg/storage"
)

// Queue is a buffered channel with unacknowledged-message tracking. Consumer
// groups are not modelled: every consumer reads from the same channel.
type Queue struct {
	ch    chan models.RunRequest
	block time.Duration

	mu      sync.Mutex
	seq     int
	pending map[string]models.RunRequest
}

var _ storage.Queue = (*Queue)(nil)

// NewQueue creates a queue holding up to size requests. Pop waits at most
// block for a message.
func NewQueue(size int, block time.Duration) *Queue {
	return &Queue{
		ch:      make(chan models.RunRequest, size),
		block:   block,
		pending: make(map[string]models.RunRequest),
	}
}

func (q *Queue) Push(ctx context.Context, req *models.RunRequest) error {
	select {
	case q.ch <- *req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) Pop(ctx context.Context, _ string, _ string) (string, *models.RunRequest, error) {
	timer := time.NewTimer(q.block)
	defer timer.Stop()

	select {
	case req := <-q.ch:
		q.mu.Lock()
		q.seq++
		id := strconv.Itoa(q.seq)
		q.pending[id] = req
		q.mu.Unlock()
		return id, &req, nil
	case <-timer.C:
		return "", nil, nil
	case <-ctx.Done():
		return "", nil, ctx.Err()
	}
}

func (q *Queue) Ack(_ context.Context, _ string, msgID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.pending, msgID)
	return nil
}

func (q *Queue) EnsureGroup(context.Context, string) error { return nil }

// Pending returns how many popped requests are not acknowledged yet.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Len returns how many requests wait to be popped.
func (q *Queue) Len() int {
	return len(q.ch)
}
