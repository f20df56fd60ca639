package remotelog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// Notifier is the subset of *pq.Listener used for change notification.
type Notifier interface {
	Listen(channel string) error
	NotificationChannel() <-chan *pq.Notification
	Close() error
}

// NotifierFactory opens a Notifier; onEvent receives connection state changes.
type NotifierFactory func(onEvent func(pq.ListenerEventType, error)) Notifier

// NewPQNotifierFactory returns a factory backed by pq.NewListener, which reconnects on its own.
func NewPQNotifierFactory(dsn string, minReconnect, maxReconnect time.Duration) NotifierFactory {
	return func(onEvent func(pq.ListenerEventType, error)) Notifier {
		return pq.NewListener(dsn, minReconnect, maxReconnect, pq.EventCallbackType(onEvent))
	}
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS realtime_entries (
	path       TEXT        NOT NULL,
	key        TEXT        NOT NULL,
	value      JSONB       NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (path, key)
)`

const writeSQL = `
WITH up AS (
	INSERT INTO realtime_entries (path, key, value, updated_at)
	VALUES ($1, $2, $3::jsonb, now())
	ON CONFLICT (path, key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()
	RETURNING key
)
SELECT pg_notify($4, key) FROM up`

const updateSQL = `
WITH up AS (
	UPDATE realtime_entries SET value = value || $3::jsonb, updated_at = now()
	WHERE path = $1 AND key = $2
	RETURNING key
)
SELECT pg_notify($4, key) FROM up`

const removeSQL = `
WITH del AS (
	DELETE FROM realtime_entries WHERE path = $1 AND key = $2
	RETURNING key
)
SELECT pg_notify($3, key) FROM del`

const loadSQL = `SELECT key, value FROM realtime_entries WHERE path = $1 ORDER BY key`

var channelUnsafe = regexp.MustCompile(`[^a-z0-9_]`)

// PostgresLog keeps entries in a jsonb table and announces changes with
// pg_notify from the same statement, so only committed changes notify.
type PostgresLog struct {
	db          *sql.DB
	newNotifier NotifierFactory
	logger      *zap.Logger
}

// NewPostgresLog creates a Postgres-backed log.
func NewPostgresLog(db *sql.DB, newNotifier NotifierFactory, logger *zap.Logger) *PostgresLog {
	return &PostgresLog{
		db:          db,
		newNotifier: newNotifier,
		logger:      logger,
	}
}

// EnsureSchema creates the entries table when missing.
func (p *PostgresLog) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create realtime_entries: %w", err)
	}
	return nil
}

// ChannelName is the NOTIFY channel used for a collection.
func ChannelName(collection string) string {
	return "rtdb_" + channelUnsafe.ReplaceAllString(collection, "_")
}

func (p *PostgresLog) Subscribe(ctx context.Context, path string, onSnapshot SnapshotFunc, onError ErrorFunc) (Unsubscribe, error) {
	channel := ChannelName(path)
	listener := p.newNotifier(func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventDisconnected, pq.ListenerEventConnectionAttemptFailed:
			p.logger.Warn("Change listener connection problem",
				zap.String("channel", channel),
				zap.Error(err),
			)
		case pq.ListenerEventReconnected:
			p.logger.Info("Change listener reconnected", zap.String("channel", channel))
		}
	})

	if err := listener.Listen(channel); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("failed to listen on %s: %w", channel, err)
	}

	initial, err := p.load(ctx, path)
	if err != nil {
		_ = listener.Close()
		return nil, err
	}

	subCtx, cancel := context.WithCancel(context.Background())
	go func() {
		onSnapshot(initial)

		notifications := listener.NotificationChannel()
		for {
			select {
			case <-subCtx.Done():
				return
			case _, ok := <-notifications:
				if !ok {
					if subCtx.Err() == nil && onError != nil {
						onError(fmt.Errorf("notification channel %s closed", channel))
					}
					return
				}
				// a nil notification follows a reconnect; reloading covers anything missed
				snap, err := p.load(subCtx, path)
				if err != nil {
					if subCtx.Err() != nil {
						return
					}
					if onError != nil {
						onError(err)
					}
					return
				}
				onSnapshot(snap)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			if err := listener.Close(); err != nil {
				p.logger.Warn("Failed to close change listener", zap.String("channel", channel), zap.Error(err))
			}
		})
	}, nil
}

func (p *PostgresLog) Write(ctx context.Context, path string, value map[string]any) error {
	collection, key, err := SplitPath(path)
	if err != nil {
		return err
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	if _, err := p.db.ExecContext(ctx, writeSQL, collection, key, string(data), ChannelName(collection)); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func (p *PostgresLog) Update(ctx context.Context, path string, partial map[string]any) error {
	collection, key, err := SplitPath(path)
	if err != nil {
		return err
	}
	data, err := json.Marshal(partial)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	if _, err := p.db.ExecContext(ctx, updateSQL, collection, key, string(data), ChannelName(collection)); err != nil {
		return fmt.Errorf("failed to update %s: %w", path, err)
	}
	return nil
}

func (p *PostgresLog) Remove(ctx context.Context, path string) error {
	collection, key, err := SplitPath(path)
	if err != nil {
		return err
	}
	if _, err := p.db.ExecContext(ctx, removeSQL, collection, key, ChannelName(collection)); err != nil {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return nil
}

func (p *PostgresLog) NewKey(path string) string {
	return newPushKey()
}

func (p *PostgresLog) load(ctx context.Context, path string) (Snapshot, error) {
	rows, err := p.db.QueryContext(ctx, loadSQL, path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var key string
		var raw []byte
		if err := rows.Scan(&key, &raw); err != nil {
			return Snapshot{}, fmt.Errorf("failed to scan entry: %w", err)
		}
		value := make(map[string]any)
		if err := json.Unmarshal(raw, &value); err != nil {
			p.logger.Warn("Skipping undecodable entry",
				zap.String("path", path),
				zap.String("key", key),
				zap.Error(err),
			)
			continue
		}
		entries = append(entries, Entry{Key: key, Value: value})
	}
	if err := rows.Err(); err != nil {
		return Snapshot{}, fmt.Errorf("failed to iterate entries: %w", err)
	}
	return Snapshot{Path: path, Entries: entries}, nil
}
