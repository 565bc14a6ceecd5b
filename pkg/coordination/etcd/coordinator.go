package etcd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"

	"benchrun/pkg/coordination"
)

const (
	electionPrefix = "/benchrun/elections/"
	nodePrefix     = "/benchrun/nodes/"
)

type EtcdCoordinator struct {
	client  *clientv3.Client
	session *concurrency.Session

	mu     sync.Mutex
	leases map[string]clientv3.LeaseID
}

var _ coordination.Coordinator = (*EtcdCoordinator)(nil)

func NewEtcdCoordinator(endpoints []string, ttl int) (*EtcdCoordinator, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}

	// The session keeps its lease alive in the background.
	sess, err := concurrency.NewSession(cli, concurrency.WithTTL(ttl))
	if err != nil {
		cli.Close()
		return nil, fmt.Errorf("failed to create concurrency session: %w", err)
	}

	return &EtcdCoordinator{
		client:  cli,
		session: sess,
		leases:  make(map[string]clientv3.LeaseID),
	}, nil
}

func (c *EtcdCoordinator) Close() error {
	if c.session != nil {
		c.session.Close()
	}
	return c.client.Close()
}

func (c *EtcdCoordinator) NewElection(name string) coordination.Election {
	return &EtcdElection{election: concurrency.NewElection(c.session, electionPrefix+name)}
}

// EtcdElection wraps the etcd concurrency.Election struct
type EtcdElection struct {
	election *concurrency.Election
}

func (e *EtcdElection) Campaign(ctx context.Context, value string) error {
	return e.election.Campaign(ctx, value)
}

func (e *EtcdElection) Resign(ctx context.Context) error {
	return e.election.Resign(ctx)
}

func (e *EtcdElection) Leader(ctx context.Context) (string, error) {
	resp, err := e.election.Leader(ctx)
	if errors.Is(err, concurrency.ErrElectionNoLeader) {
		return "", coordination.ErrNoLeader
	}
	if err != nil {
		return "", err
	}
	return string(resp.Kvs[0].Value), nil
}

// RegisterNode keeps one lease per node. The first call grants it and writes
// the node key; later calls refresh it, and a lease that already expired is
// replaced.
func (c *EtcdCoordinator) RegisterNode(ctx context.Context, nodeID string, ttl int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if id, ok := c.leases[nodeID]; ok {
		if _, err := c.client.KeepAliveOnce(ctx, id); err == nil {
			return nil
		}
		delete(c.leases, nodeID)
	}

	resp, err := c.client.Grant(ctx, int64(ttl))
	if err != nil {
		return fmt.Errorf("failed to grant lease: %w", err)
	}
	if _, err := c.client.Put(ctx, nodePrefix+nodeID, "ONLINE", clientv3.WithLease(resp.ID)); err != nil {
		return fmt.Errorf("failed to put node key: %w", err)
	}
	c.leases[nodeID] = resp.ID
	return nil
}

func (c *EtcdCoordinator) GetActiveNodes(ctx context.Context) ([]string, error) {
	resp, err := c.client.Get(ctx, nodePrefix, clientv3.WithPrefix(), clientv3.WithKeysOnly())
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}

	nodes := make([]string, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		if id := strings.TrimPrefix(string(kv.Key), nodePrefix); id != "" {
			nodes = append(nodes, id)
		}
	}
	return nodes, nil
}
