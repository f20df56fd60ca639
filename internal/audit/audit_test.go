package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"bnn-rehab/internal/store"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

type fakeInserter struct {
	ids    []string
	events []store.AuditEvent
	err    error
}

func (f *fakeInserter) Insert(ctx context.Context, streamID string, ev store.AuditEvent) error {
	if f.err != nil {
		return f.err
	}
	f.ids = append(f.ids, streamID)
	f.events = append(f.events, ev)
	return nil
}

func newTestConsumer(client *redis.Client, repo Inserter) *Consumer {
	c := NewConsumer(client, repo, zap.NewNop(), "", "", "worker-1", 10)
	c.block = 10 * time.Millisecond
	return c
}

func TestStreamRecorderAndConsumer(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()
	recorder := NewStreamRecorder(client, "", 1000, zap.NewNop())
	repo := &fakeInserter{}
	consumer := newTestConsumer(client, repo)
	require.NoError(t, consumer.ensureGroup(ctx))

	at := time.Date(2024, 11, 15, 8, 0, 0, 0, time.UTC)
	require.NoError(t, recorder.Record(ctx, store.AuditEvent{Op: "create", RecordID: "k1", Status: "Rawat Jalan", Actor: "admin@bnn.go.id", At: at}))
	require.NoError(t, recorder.Record(ctx, store.AuditEvent{Op: "delete", RecordID: "k1", At: at}))
	require.NoError(t, client.XAdd(ctx, &redis.XAddArgs{Stream: DefaultStream, Values: map[string]interface{}{"data": "{broken"}}).Err())

	n, err := consumer.consumeOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, repo.events, 2)
	assert.Equal(t, "create", repo.events[0].Op)
	assert.Equal(t, "admin@bnn.go.id", repo.events[0].Actor)
	assert.True(t, at.Equal(repo.events[0].At))
	assert.Equal(t, "delete", repo.events[1].Op)
	assert.NotEmpty(t, repo.ids[0])

	pending, err := client.XPending(ctx, DefaultStream, DefaultGroup).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), pending.Count)
}

func TestConsumerLeavesFailedInsertPending(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()
	recorder := NewStreamRecorder(client, "", 0, zap.NewNop())
	consumer := newTestConsumer(client, &fakeInserter{err: errors.New("db down")})
	require.NoError(t, consumer.ensureGroup(ctx))

	require.NoError(t, recorder.Record(ctx, store.AuditEvent{Op: "create", RecordID: "k1", At: time.Now()}))

	_, err := consumer.consumeOnce(ctx)
	require.Error(t, err)

	pending, err := client.XPending(ctx, DefaultStream, DefaultGroup).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending.Count)
}

func TestConsumerRetriesPendingAfterFailedInsert(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()
	recorder := NewStreamRecorder(client, "", 0, zap.NewNop())
	repo := &fakeInserter{err: errors.New("db down")}
	consumer := newTestConsumer(client, repo)
	require.NoError(t, consumer.ensureGroup(ctx))

	require.NoError(t, recorder.Record(ctx, store.AuditEvent{Op: "create", RecordID: "k1", At: time.Now()}))
	require.NoError(t, recorder.Record(ctx, store.AuditEvent{Op: "delete", RecordID: "k1", At: time.Now()}))

	_, err := consumer.consumeOnce(ctx)
	require.Error(t, err)
	require.Empty(t, repo.events)

	repo.err = nil
	for i := 0; i < 3; i++ {
		_, err := consumer.consumeOnce(ctx)
		require.NoError(t, err)
	}

	require.Len(t, repo.events, 2)
	assert.Equal(t, "create", repo.events[0].Op)
	assert.Equal(t, "delete", repo.events[1].Op)
	assert.False(t, consumer.recovering)

	pending, err := client.XPending(ctx, DefaultStream, DefaultGroup).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), pending.Count)
}

func TestConsumerDrainsPendingOnStart(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()
	recorder := NewStreamRecorder(client, "", 0, zap.NewNop())

	first := newTestConsumer(client, &fakeInserter{err: errors.New("db down")})
	require.NoError(t, first.ensureGroup(ctx))
	require.NoError(t, recorder.Record(ctx, store.AuditEvent{Op: "create", RecordID: "k2", At: time.Now()}))
	_, err := first.consumeOnce(ctx)
	require.Error(t, err)

	// Same consumer name after a restart owns the pending entry.
	repo := &fakeInserter{}
	restarted := newTestConsumer(client, repo)
	n, err := restarted.consumeOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, repo.events, 1)
	assert.Equal(t, "k2", repo.events[0].RecordID)
}

func TestConsumerStartStopsOnCancel(t *testing.T) {
	client := setupRedis(t)
	consumer := newTestConsumer(client, &fakeInserter{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- consumer.Start(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop")
	}
}

func TestStreamRecorderRejectsIncompleteEvent(t *testing.T) {
	recorder := NewStreamRecorder(setupRedis(t), "", 0, zap.NewNop())
	err := recorder.Record(context.Background(), store.AuditEvent{Op: "create"})
	assert.ErrorIs(t, err, ErrInvalidEvent)
}

func TestDecodeEvent(t *testing.T) {
	_, err := decodeEvent(map[string]interface{}{})
	assert.ErrorIs(t, err, ErrInvalidEvent)

	_, err = decodeEvent(map[string]interface{}{"data": `{"op":"create"}`})
	assert.ErrorIs(t, err, ErrInvalidEvent)

	ev, err := decodeEvent(map[string]interface{}{"data": `{"op":"create","record_id":"k1","at":"2024-11-15T08:00:00Z"}`})
	require.NoError(t, err)
	assert.Equal(t, "k1", ev.RecordID)
}

func setupMockAuditDB(t *testing.T) (sqlmock.Sqlmock, *AuditRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return mock, NewAuditRepository(db, zap.NewNop())
}

func TestAuditRepositoryInsert(t *testing.T) {
	mock, repo := setupMockAuditDB(t)
	at := time.Now()

	mock.ExpectExec(`INSERT INTO case_record_audit`).
		WithArgs("1-0", "update_status", "k1", "Selesai", nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Insert(context.Background(), "1-0", store.AuditEvent{Op: "update_status", RecordID: "k1", Status: "Selesai", At: at})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepositoryInsertError(t *testing.T) {
	mock, repo := setupMockAuditDB(t)
	mock.ExpectExec(`INSERT INTO case_record_audit`).WillReturnError(errors.New("connection reset"))

	err := repo.Insert(context.Background(), "1-0", store.AuditEvent{Op: "delete", RecordID: "k1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestAuditRepositoryListByRecord(t *testing.T) {
	mock, repo := setupMockAuditDB(t)
	at := time.Date(2024, 11, 15, 8, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"stream_id", "op", "record_id", "status", "actor", "at"}).
		AddRow("2-0", "update_status", "k1", "Selesai", nil, at).
		AddRow("1-0", "create", "k1", "Rawat Jalan", "admin@bnn.go.id", at.Add(-time.Hour))
	mock.ExpectQuery(`SELECT stream_id, op, record_id, status, actor, at`).
		WithArgs("k1", 50).
		WillReturnRows(rows)

	entries, err := repo.ListByRecord(context.Background(), "k1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "update_status", entries[0].Op)
	assert.Empty(t, entries[0].Actor)
	assert.Equal(t, "admin@bnn.go.id", entries[1].Actor)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepositoryEnsureSchema(t *testing.T) {
	mock, repo := setupMockAuditDB(t)
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS case_record_audit`).WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, repo.EnsureSchema(context.Background()))
}
