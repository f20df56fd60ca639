package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// StreamMessage one Redis Streams entry.
type StreamMessage struct {
	Stream string
	ID     string
	Values map[string]interface{}
}

// PublishJSONToStream marshals data into the "data" field and appends it with XADD.
// maxLen > 0 caps the stream approximately.
func PublishJSONToStream(ctx context.Context, client *redis.Client, stream string, data interface{}, maxLen int64) (string, error) {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to marshal stream payload: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{
			"data":      string(jsonBytes),
			"timestamp": time.Now().UnixMilli(),
		},
	}
	if maxLen > 0 {
		args.MaxLen = maxLen
		args.Approx = true
	}
	return client.XAdd(ctx, args).Result()
}

// ReadFromStream reads new messages for a consumer group member (XREADGROUP ">").
func ReadFromStream(ctx context.Context, client *redis.Client, stream, group, consumer string, count int64, block time.Duration) ([]StreamMessage, error) {
	return readGroup(ctx, client, stream, group, consumer, ">", count, block)
}

// ReadPendingFromStream re-reads messages already delivered to consumer but
// not yet acknowledged (XREADGROUP "0"). It never blocks.
func ReadPendingFromStream(ctx context.Context, client *redis.Client, stream, group, consumer string, count int64) ([]StreamMessage, error) {
	return readGroup(ctx, client, stream, group, consumer, "0", count, -1)
}

func readGroup(ctx context.Context, client *redis.Client, stream, group, consumer, id string, count int64, block time.Duration) ([]StreamMessage, error) {
	streams, err := client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, id},
		Count:    count,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []StreamMessage{}, nil
		}
		return nil, err
	}

	messages := []StreamMessage{}
	for _, s := range streams {
		for _, msg := range s.Messages {
			messages = append(messages, StreamMessage{
				Stream: s.Stream,
				ID:     msg.ID,
				Values: msg.Values,
			})
		}
	}
	return messages, nil
}

// CreateConsumerGroup creates the group (and the stream if missing); an existing group is not an error.
func CreateConsumerGroup(ctx context.Context, client *redis.Client, stream, group string) error {
	err := client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

// Ack acknowledges processed message IDs.
func Ack(ctx context.Context, client *redis.Client, stream, group string, ids ...string) error {
	return client.XAck(ctx, stream, group, ids...).Err()
}
