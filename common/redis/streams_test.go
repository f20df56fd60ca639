package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStreamRedis(t *testing.T) *redis.Client {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestStreams_PublishReadAck(t *testing.T) {
	client := setupStreamRedis(t)
	ctx := context.Background()

	require.NoError(t, CreateConsumerGroup(ctx, client, "audit", "workers"))
	// second create is tolerated
	require.NoError(t, CreateConsumerGroup(ctx, client, "audit", "workers"))

	id, err := PublishJSONToStream(ctx, client, "audit", map[string]string{"op": "create"}, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	msgs, err := ReadFromStream(ctx, client, "audit", "workers", "w1", 10, 10*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, id, msgs[0].ID)

	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(msgs[0].Values["data"].(string)), &payload))
	assert.Equal(t, "create", payload["op"])

	require.NoError(t, Ack(ctx, client, "audit", "workers", id))

	pending, err := client.XPending(ctx, "audit", "workers").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), pending.Count)
}

func TestReadFromStream_EmptyReturnsNoMessages(t *testing.T) {
	client := setupStreamRedis(t)
	ctx := context.Background()

	require.NoError(t, CreateConsumerGroup(ctx, client, "audit", "workers"))

	msgs, err := ReadFromStream(ctx, client, "audit", "workers", "w1", 10, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestReadPendingFromStream_RedeliversUnacked(t *testing.T) {
	client := setupStreamRedis(t)
	ctx := context.Background()

	require.NoError(t, CreateConsumerGroup(ctx, client, "audit", "workers"))
	id, err := PublishJSONToStream(ctx, client, "audit", map[string]string{"op": "create"}, 0)
	require.NoError(t, err)

	_, err = ReadFromStream(ctx, client, "audit", "workers", "w1", 10, 10*time.Millisecond)
	require.NoError(t, err)

	// other consumers do not see w1's entries
	msgs, err := ReadPendingFromStream(ctx, client, "audit", "workers", "w2", 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	msgs, err = ReadPendingFromStream(ctx, client, "audit", "workers", "w1", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, id, msgs[0].ID)

	require.NoError(t, Ack(ctx, client, "audit", "workers", id))
	msgs, err = ReadPendingFromStream(ctx, client, "audit", "workers", "w1", 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}
