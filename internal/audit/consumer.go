package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	rediscommon "bnn-rehab/common/redis"
	"bnn-rehab/internal/store"

	"go.uber.org/zap"
)

// Inserter persists one decoded event.
type Inserter interface {
	Insert(ctx context.Context, streamID string, ev store.AuditEvent) error
}

// Consumer moves audit events from the stream into the repository.
type Consumer struct {
	client       *rediscommon.Client
	repo         Inserter
	logger       *zap.Logger
	stream       string
	groupName    string
	consumerName string
	batchSize    int64
	block        time.Duration

	// recovering is set at start and after any failure; while set, this
	// consumer's pending entries are re-read before new ones.
	recovering bool
}

// NewConsumer creates a consumer group member.
func NewConsumer(
	client *rediscommon.Client,
	repo Inserter,
	logger *zap.Logger,
	stream string,
	groupName string,
	consumerName string,
	batchSize int64,
) *Consumer {
	if stream == "" {
		stream = DefaultStream
	}
	if groupName == "" {
		groupName = DefaultGroup
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Consumer{
		client:       client,
		repo:         repo,
		logger:       logger,
		stream:       stream,
		groupName:    groupName,
		consumerName: consumerName,
		batchSize:    batchSize,
		block:        2 * time.Second,
		recovering:   true,
	}
}

// Start consumes until ctx is done, backing off exponentially on errors.
func (c *Consumer) Start(ctx context.Context) error {
	if err := c.ensureGroup(ctx); err != nil {
		return err
	}

	c.logger.Info("Audit consumer started",
		zap.String("stream", c.stream),
		zap.String("consumer_group", c.groupName),
		zap.String("consumer_name", c.consumerName),
	)

	backoffDuration := time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if _, err := c.consumeOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("Failed to consume audit events",
				zap.Error(err),
				zap.Duration("backoff", backoffDuration),
			)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoffDuration):
				backoffDuration *= 2
				if backoffDuration > maxBackoff {
					backoffDuration = maxBackoff
				}
			}
			continue
		}
		backoffDuration = time.Second
	}
}

func (c *Consumer) ensureGroup(ctx context.Context) error {
	if err := rediscommon.CreateConsumerGroup(ctx, c.client, c.stream, c.groupName); err != nil {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

// consumeOnce reads one batch and returns how many events were persisted.
// Entries left pending by an earlier failure are retried before new ones.
// Undecodable entries are acknowledged and dropped.
func (c *Consumer) consumeOnce(ctx context.Context) (n int, err error) {
	defer func() {
		if err != nil {
			c.recovering = true
		}
	}()

	if c.recovering {
		messages, err := rediscommon.ReadPendingFromStream(ctx, c.client, c.stream, c.groupName, c.consumerName, c.batchSize)
		if err != nil {
			return 0, fmt.Errorf("failed to read pending entries: %w", err)
		}
		if len(messages) > 0 {
			c.logger.Info("Retrying pending audit entries", zap.Int("count", len(messages)))
			return c.persist(ctx, messages)
		}
		c.recovering = false
	}

	messages, err := rediscommon.ReadFromStream(ctx, c.client, c.stream, c.groupName, c.consumerName, c.batchSize, c.block)
	if err != nil {
		return 0, fmt.Errorf("failed to read stream: %w", err)
	}
	return c.persist(ctx, messages)
}

func (c *Consumer) persist(ctx context.Context, messages []rediscommon.StreamMessage) (int, error) {
	persisted := 0
	for _, msg := range messages {
		ev, err := decodeEvent(msg.Values)
		if err != nil {
			c.logger.Warn("Dropping audit entry",
				zap.String("stream_id", msg.ID),
				zap.Error(err),
			)
			if err := rediscommon.Ack(ctx, c.client, c.stream, c.groupName, msg.ID); err != nil {
				return persisted, fmt.Errorf("failed to ack %s: %w", msg.ID, err)
			}
			continue
		}

		if err := c.repo.Insert(ctx, msg.ID, ev); err != nil {
			return persisted, err
		}
		if err := rediscommon.Ack(ctx, c.client, c.stream, c.groupName, msg.ID); err != nil {
			return persisted, fmt.Errorf("failed to ack %s: %w", msg.ID, err)
		}
		persisted++
	}
	return persisted, nil
}

func decodeEvent(values map[string]interface{}) (store.AuditEvent, error) {
	raw, ok := values["data"].(string)
	if !ok {
		return store.AuditEvent{}, fmt.Errorf("%w: missing data field", ErrInvalidEvent)
	}
	var ev store.AuditEvent
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		return store.AuditEvent{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if ev.Op == "" || ev.RecordID == "" {
		return store.AuditEvent{}, fmt.Errorf("%w: op and record_id are required", ErrInvalidEvent)
	}
	return ev, nil
}
