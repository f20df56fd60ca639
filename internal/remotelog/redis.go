package remotelog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const maxWatchRetries = 3

// RedisLog stores each collection as a hash (field = key, value = JSON) and
// announces every committed change by publishing the key on "<hash>:changes".
type RedisLog struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewRedisLog creates a Redis-backed log; prefix namespaces all keys (e.g. "rtdb:").
func NewRedisLog(client *redis.Client, prefix string, logger *zap.Logger) *RedisLog {
	return &RedisLog{
		client: client,
		prefix: prefix,
		logger: logger,
	}
}

func (r *RedisLog) hashKey(collection string) string {
	return r.prefix + collection
}

func (r *RedisLog) channel(collection string) string {
	return r.prefix + collection + ":changes"
}

// Subscribe listens on the change channel before reading the initial snapshot,
// so no change committed after Subscribe returns can be missed.
func (r *RedisLog) Subscribe(ctx context.Context, path string, onSnapshot SnapshotFunc, onError ErrorFunc) (Unsubscribe, error) {
	pubsub := r.client.Subscribe(ctx, r.channel(path))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", r.channel(path), err)
	}

	initial, err := r.load(ctx, path)
	if err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	subCtx, cancel := context.WithCancel(context.Background())
	go func() {
		onSnapshot(initial)

		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					if subCtx.Err() == nil && onError != nil {
						onError(fmt.Errorf("change channel for %s closed", path))
					}
					return
				}
				snap, err := r.load(subCtx, path)
				if err != nil {
					if subCtx.Err() != nil {
						return
					}
					r.logger.Error("Failed to load snapshot",
						zap.String("path", path),
						zap.String("changed_key", msg.Payload),
						zap.Error(err),
					)
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
			if err := pubsub.Close(); err != nil {
				r.logger.Warn("Failed to close pubsub", zap.String("path", path), zap.Error(err))
			}
		})
	}, nil
}

func (r *RedisLog) Write(ctx context.Context, path string, value map[string]any) error {
	collection, key, err := SplitPath(path)
	if err != nil {
		return err
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, r.hashKey(collection), key, data)
		pipe.Publish(ctx, r.channel(collection), key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// Update merges partial into the stored object under WATCH; a missing entry is left alone.
func (r *RedisLog) Update(ctx context.Context, path string, partial map[string]any) error {
	collection, key, err := SplitPath(path)
	if err != nil {
		return err
	}
	hash := r.hashKey(collection)

	merge := func(tx *redis.Tx) error {
		raw, err := tx.HGet(ctx, hash, key).Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}

		current := make(map[string]any)
		if err := json.Unmarshal([]byte(raw), &current); err != nil {
			return fmt.Errorf("stored value at %s is not an object: %w", path, err)
		}
		for k, v := range partial {
			current[k] = v
		}
		data, err := json.Marshal(current)
		if err != nil {
			return fmt.Errorf("failed to marshal value: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, hash, key, data)
			pipe.Publish(ctx, r.channel(collection), key)
			return nil
		})
		return err
	}

	for i := 0; i < maxWatchRetries; i++ {
		err = r.client.Watch(ctx, merge, hash)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", path, err)
	}
	return nil
}

func (r *RedisLog) Remove(ctx context.Context, path string) error {
	collection, key, err := SplitPath(path)
	if err != nil {
		return err
	}
	n, err := r.client.HDel(ctx, r.hashKey(collection), key).Result()
	if err != nil {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	if n == 0 {
		return nil
	}
	if err := r.client.Publish(ctx, r.channel(collection), key).Err(); err != nil {
		return fmt.Errorf("failed to announce removal of %s: %w", path, err)
	}
	return nil
}

func (r *RedisLog) NewKey(path string) string {
	return newPushKey()
}

func (r *RedisLog) load(ctx context.Context, path string) (Snapshot, error) {
	raw, err := r.client.HGetAll(ctx, r.hashKey(path)).Result()
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	entries := make([]Entry, 0, len(raw))
	for key, data := range raw {
		value := make(map[string]any)
		if err := json.Unmarshal([]byte(data), &value); err != nil {
			r.logger.Warn("Skipping undecodable entry",
				zap.String("path", path),
				zap.String("key", key),
				zap.Error(err),
			)
			continue
		}
		entries = append(entries, Entry{Key: key, Value: value})
	}
	sortEntries(entries)
	return Snapshot{Path: path, Entries: entries}, nil
}
