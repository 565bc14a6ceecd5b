// Package local implements coordination for a single process. Every election
// is won by its first campaigner and node registrations expire on a clock.
package local

import (
	"context"
	"sort"
	"sync"
	"time"

	"benchrun/pkg/coordination"
)

type Coordinator struct {
	mu        sync.Mutex
	nodes     map[string]time.Time // node ID -> expiry
	elections map[string]*election
	now       func() time.Time
}

var _ coordination.Coordinator = (*Coordinator)(nil)

func NewCoordinator() *Coordinator {
	return &Coordinator{
		nodes:     make(map[string]time.Time),
		elections: make(map[string]*election),
		now:       time.Now,
	}
}

// SetClock replaces the time source used for node expiry.
func (c *Coordinator) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

func (c *Coordinator) NewElection(name string) coordination.Election {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.elections[name]
	if !ok {
		e = &election{free: make(chan struct{}, 1)}
		e.free <- struct{}{}
		c.elections[name] = e
	}
	return e
}

func (c *Coordinator) RegisterNode(_ context.Context, nodeID string, ttl int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nodes[nodeID] = c.now().Add(time.Duration(ttl) * time.Second)
	return nil
}

func (c *Coordinator) GetActiveNodes(context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	var ids []string
	for id, expiry := range c.nodes {
		if now.Before(expiry) {
			ids = append(ids, id)
			continue
		}
		delete(c.nodes, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (c *Coordinator) Close() error { return nil }

// election hands leadership over a one-slot channel.
type election struct {
	free chan struct{}

	mu     sync.Mutex
	leader string
}

func (e *election) Campaign(ctx context.Context, value string) error {
	select {
	case <-e.free:
		e.mu.Lock()
		e.leader = value
		e.mu.Unlock()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *election) Resign(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.leader == "" {
		return nil
	}
	e.leader = ""
	e.free <- struct{}{}
	return nil
}

func (e *election) Leader(context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.leader == "" {
		return "", coordination.ErrNoLeader
	}
	return e.leader, nil
}
