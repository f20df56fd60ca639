package remotelog

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRedisLog(t *testing.T) (*RedisLog, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLog(client, "rtdb:", zap.NewNop()), mr
}

func waitSnapshot(t *testing.T, ch <-chan Snapshot) Snapshot {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return Snapshot{}
	}
}

func TestRedisLog_WriteUpdateRemove(t *testing.T) {
	log, mr := newTestRedisLog(t)
	ctx := context.Background()

	require.NoError(t, log.Write(ctx, "pengajuan/a", map[string]any{"nama": "A", "status": "Rawat Jalan"}))
	assert.True(t, mr.Exists("rtdb:pengajuan"))

	require.NoError(t, log.Update(ctx, "pengajuan/a", map[string]any{"status": "Selesai"}))
	snap, err := log.load(ctx, "pengajuan")
	require.NoError(t, err)
	require.Len(t, snap.Entries, 1)
	assert.Equal(t, "A", snap.Entries[0].Value["nama"])
	assert.Equal(t, "Selesai", snap.Entries[0].Value["status"])

	// update of a missing entry must not create it
	require.NoError(t, log.Update(ctx, "pengajuan/ghost", map[string]any{"status": "Selesai"}))
	snap, err = log.load(ctx, "pengajuan")
	require.NoError(t, err)
	assert.Len(t, snap.Entries, 1)

	require.NoError(t, log.Remove(ctx, "pengajuan/a"))
	require.NoError(t, log.Remove(ctx, "pengajuan/a"))
	snap, err = log.load(ctx, "pengajuan")
	require.NoError(t, err)
	assert.False(t, snap.Exists())
}

func TestRedisLog_SubscribeReceivesChanges(t *testing.T) {
	log, _ := newTestRedisLog(t)
	ctx := context.Background()

	require.NoError(t, log.Write(ctx, "pengajuan/b", map[string]any{"nama": "B"}))

	snaps := make(chan Snapshot, 8)
	unsub, err := log.Subscribe(ctx, "pengajuan", func(s Snapshot) { snaps <- s }, func(error) {})
	require.NoError(t, err)
	defer unsub()

	initial := waitSnapshot(t, snaps)
	require.Len(t, initial.Entries, 1)

	require.NoError(t, log.Write(ctx, "pengajuan/a", map[string]any{"nama": "A"}))
	next := waitSnapshot(t, snaps)
	require.Len(t, next.Entries, 2)
	assert.Equal(t, "a", next.Entries[0].Key)
	assert.Equal(t, "b", next.Entries[1].Key)
}

func TestRedisLog_SkipsUndecodableEntries(t *testing.T) {
	log, mr := newTestRedisLog(t)
	mr.HSet("rtdb:pengajuan", "bad", "not-json")
	mr.HSet("rtdb:pengajuan", "good", `{"nama":"G"}`)

	snap, err := log.load(context.Background(), "pengajuan")
	require.NoError(t, err)
	require.Len(t, snap.Entries, 1)
	assert.Equal(t, "good", snap.Entries[0].Key)
}

func TestRedisLog_InvalidPath(t *testing.T) {
	log, _ := newTestRedisLog(t)
	assert.Error(t, log.Write(context.Background(), "pengajuan", map[string]any{}))
}
