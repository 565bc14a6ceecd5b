package coordination

import (
	"context"
	"errors"
)

// ErrNoLeader is returned by Election.Leader when nobody holds leadership.
var ErrNoLeader = errors.New("no leader elected")

// Coordinator handles distributed coordination tasks.
type Coordinator interface {
	// NewElection creates a new election instance for a given campaign name.
	NewElection(name string) Election

	// RegisterNode announces nodeID as alive for ttl seconds. Calling it
	// again before the ttl elapses keeps the node alive.
	RegisterNode(ctx context.Context, nodeID string, ttl int) error

	// GetActiveNodes lists the nodes whose registration has not expired.
	GetActiveNodes(ctx context.Context) ([]string, error)

	// Close terminates the coordinator connection.
	Close() error
}

// Election represents a single leader election campaign.
type Election interface {
	// Campaign blocks until leadership is acquired or ctx ends.
	Campaign(ctx context.Context, value string) error

	// Resign releases leadership.
	Resign(ctx context.Context) error

	// Leader returns the current leader's value.
	Leader(ctx context.Context) (string, error)
}

// IsLeader reports whether id currently holds leadership of e.
func IsLeader(ctx context.Context, e Election, id string) (bool, error) {
	leader, err := e.Leader(ctx)
	if errors.Is(err, ErrNoLeader) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return leader == id, nil
}
