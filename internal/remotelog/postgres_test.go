package remotelog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeNotifier struct {
	channels []string
	ch       chan *pq.Notification
	closed   bool
	listen   error
}

func (f *fakeNotifier) Listen(channel string) error {
	f.channels = append(f.channels, channel)
	return f.listen
}

func (f *fakeNotifier) NotificationChannel() <-chan *pq.Notification { return f.ch }

func (f *fakeNotifier) Close() error {
	if !f.closed {
		f.closed = true
		close(f.ch)
	}
	return nil
}

func newTestPostgresLog(t *testing.T) (*PostgresLog, sqlmock.Sqlmock, *fakeNotifier) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	notifier := &fakeNotifier{ch: make(chan *pq.Notification, 4)}
	factory := func(func(pq.ListenerEventType, error)) Notifier { return notifier }
	return NewPostgresLog(db, factory, zap.NewNop()), mock, notifier
}

func TestPostgresLog_Write(t *testing.T) {
	log, mock, _ := newTestPostgresLog(t)

	mock.ExpectExec("INSERT INTO realtime_entries").
		WithArgs("pengajuan", "k1", `{"nama":"A"}`, "rtdb_pengajuan").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, log.Write(context.Background(), "pengajuan/k1", map[string]any{"nama": "A"}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLog_UpdateMerges(t *testing.T) {
	log, mock, _ := newTestPostgresLog(t)

	mock.ExpectExec(`UPDATE realtime_entries SET value = value \|\| \$3::jsonb`).
		WithArgs("pengajuan", "k1", `{"status":"Selesai"}`, "rtdb_pengajuan").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, log.Update(context.Background(), "pengajuan/k1", map[string]any{"status": "Selesai"}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLog_RemoveError(t *testing.T) {
	log, mock, _ := newTestPostgresLog(t)

	mock.ExpectExec("DELETE FROM realtime_entries").
		WithArgs("pengajuan", "k1", "rtdb_pengajuan").
		WillReturnError(errors.New("connection refused"))

	err := log.Remove(context.Background(), "pengajuan/k1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestPostgresLog_SubscribeReloadsOnNotification(t *testing.T) {
	log, mock, notifier := newTestPostgresLog(t)

	mock.ExpectQuery("SELECT key, value FROM realtime_entries").
		WithArgs("pengajuan").
		WillReturnRows(sqlmock.NewRows([]string{"key", "value"}).
			AddRow("a", []byte(`{"nama":"A"}`)))
	mock.ExpectQuery("SELECT key, value FROM realtime_entries").
		WithArgs("pengajuan").
		WillReturnRows(sqlmock.NewRows([]string{"key", "value"}).
			AddRow("a", []byte(`{"nama":"A"}`)).
			AddRow("b", []byte(`{"nama":"B"}`)).
			AddRow("c", []byte(`broken`)))

	snaps := make(chan Snapshot, 4)
	unsub, err := log.Subscribe(context.Background(), "pengajuan", func(s Snapshot) { snaps <- s }, func(error) {})
	require.NoError(t, err)
	assert.Equal(t, []string{"rtdb_pengajuan"}, notifier.channels)

	initial := waitSnapshot(t, snaps)
	assert.Len(t, initial.Entries, 1)

	// nil notification: the listener reconnected
	notifier.ch <- nil
	next := waitSnapshot(t, snaps)
	require.Len(t, next.Entries, 2)
	assert.Equal(t, "b", next.Entries[1].Key)

	unsub()
	assert.True(t, notifier.closed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLog_SubscribeListenFailure(t *testing.T) {
	log, _, notifier := newTestPostgresLog(t)
	notifier.listen = errors.New("no connection")

	_, err := log.Subscribe(context.Background(), "pengajuan", func(Snapshot) {}, nil)
	require.Error(t, err)
	assert.True(t, notifier.closed)
}

func TestPostgresLog_ChannelClosedReportsError(t *testing.T) {
	log, mock, notifier := newTestPostgresLog(t)
	mock.ExpectQuery("SELECT key, value FROM realtime_entries").
		WillReturnRows(sqlmock.NewRows([]string{"key", "value"}))

	errs := make(chan error, 1)
	unsub, err := log.Subscribe(context.Background(), "pengajuan", func(Snapshot) {}, func(err error) { errs <- err })
	require.NoError(t, err)
	defer unsub()

	close(notifier.ch)
	notifier.closed = true

	select {
	case err := <-errs:
		assert.Contains(t, err.Error(), "closed")
	case <-time.After(2 * time.Second):
		t.Fatal("expected subscription error")
	}
}

func TestChannelName(t *testing.T) {
	assert.Equal(t, "rtdb_pengajuan", ChannelName("pengajuan"))
	assert.Equal(t, "rtdb_a_b", ChannelName("a-b"))
}
