package coordination

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type staticElection struct {
	leader string
	err    error
}

func (s staticElection) Campaign(context.Context, string) error { return nil }
func (s staticElection) Resign(context.Context) error           { return nil }
func (s staticElection) Leader(context.Context) (string, error) { return s.leader, s.err }

func TestIsLeader(t *testing.T) {
	ctx := context.Background()

	ok, err := IsLeader(ctx, staticElection{leader: "me"}, "me")
	assert.NoError(t, err)
	assert.True(t, ok)

	ok, err = IsLeader(ctx, staticElection{leader: "other"}, "me")
	assert.NoError(t, err)
	assert.False(t, ok)

	ok, err = IsLeader(ctx, staticElection{err: ErrNoLeader}, "me")
	assert.NoError(t, err)
	assert.False(t, ok)

	boom := errors.New("etcd down")
	_, err = IsLeader(ctx, staticElection{err: boom}, "me")
	assert.ErrorIs(t, err, boom)
}
