package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"benchrun/pkg/models"
)

func TestDecode(t *testing.T) {
	req, err := decode(map[string]interface{}{
		payloadField: `{"id":"6f1c1b7e-8a8e-4c53-9f7e-3f1d1c1b7e8a","kind":"URL","url":"https://x/y_test.go","args":["--count","2"]}`,
	})
	require.NoError(t, err)
	assert.Equal(t, models.TargetURL, req.Kind)
	assert.Equal(t, models.Args{"--count", "2"}, req.Args)

	_, err = decode(map[string]interface{}{payloadField: 42})
	assert.Error(t, err)

	_, err = decode(map[string]interface{}{payloadField: "{"})
	assert.Error(t, err)
}

func TestRedisQueue_PushPopAck(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}

	cfg := DefaultRedisQueueConfig(addr)
	cfg.Stream = "benchrun:test:" + uuid.NewString()
	cfg.Block = 100 * time.Millisecond
	q, err := NewRedisQueueWithConfig(cfg)
	require.NoError(t, err)
	defer func() {
		q.Client().Del(context.Background(), cfg.Stream)
		q.Close()
	}()

	ctx := context.Background()
	require.NoError(t, q.EnsureGroup(ctx, "workers"))
	require.NoError(t, q.EnsureGroup(ctx, "workers"), "second call must tolerate BUSYGROUP")

	in := &models.RunRequest{ID: uuid.New(), Kind: models.TargetSource, Source: "package x"}
	require.NoError(t, q.Push(ctx, in))

	msgID, out, err := q.Pop(ctx, "workers", "w1")
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, in.ID, out.ID)
	require.NoError(t, q.Ack(ctx, "workers", msgID))

	_, out, err = q.Pop(ctx, "workers", "w1")
	require.NoError(t, err)
	assert.Nil(t, out)
}
