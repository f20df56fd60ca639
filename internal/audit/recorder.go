// Package audit appends accepted case-record mutations to a Redis Stream and
// persists them into PostgreSQL from a consumer group.
package audit

import (
	"context"
	"errors"
	"fmt"

	rediscommon "bnn-rehab/common/redis"
	"bnn-rehab/internal/store"

	"go.uber.org/zap"
)

const (
	DefaultStream = "pengajuan:audit"
	DefaultGroup  = "audit-writers"
)

// ErrInvalidEvent marks a stream entry that cannot be decoded into an event.
var ErrInvalidEvent = errors.New("invalid audit event")

// StreamRecorder implements store.AuditSink on a Redis Stream.
type StreamRecorder struct {
	client *rediscommon.Client
	stream string
	maxLen int64
	logger *zap.Logger
}

// NewStreamRecorder creates a recorder; maxLen > 0 caps the stream approximately.
func NewStreamRecorder(client *rediscommon.Client, stream string, maxLen int64, logger *zap.Logger) *StreamRecorder {
	if stream == "" {
		stream = DefaultStream
	}
	return &StreamRecorder{
		client: client,
		stream: stream,
		maxLen: maxLen,
		logger: logger,
	}
}

func (r *StreamRecorder) Record(ctx context.Context, ev store.AuditEvent) error {
	if ev.Op == "" || ev.RecordID == "" {
		return ErrInvalidEvent
	}
	id, err := rediscommon.PublishJSONToStream(ctx, r.client, r.stream, ev, r.maxLen)
	if err != nil {
		return fmt.Errorf("failed to append audit event: %w", err)
	}
	r.logger.Debug("Audit event appended",
		zap.String("stream", r.stream),
		zap.String("stream_id", id),
		zap.String("op", ev.Op),
		zap.String("record_id", ev.RecordID),
	)
	return nil
}
