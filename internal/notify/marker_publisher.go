// Package notify pushes the reconciled marker set to MQTT subscribers.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"bnn-rehab/internal/mapview"

	"go.uber.org/zap"
)

// DefaultTopic carries the retained marker set.
const DefaultTopic = "bnn/sebaran/markers"

// Publisher is satisfied by the common MQTT client.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// MarkerPublisher publishes each marker set as a retained GeoJSON message.
// Only the newest pending set is kept; older ones are superseded.
type MarkerPublisher struct {
	client Publisher
	topic  string
	qos    byte
	logger *zap.Logger
	latest chan []mapview.Marker
}

// NewMarkerPublisher creates a publisher; call Run to start delivering.
func NewMarkerPublisher(client Publisher, topic string, logger *zap.Logger) *MarkerPublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &MarkerPublisher{
		client: client,
		topic:  topic,
		qos:    1,
		logger: logger,
		latest: make(chan []mapview.Marker, 1),
	}
}

// Hook is a mapview.ReconcileHook; it never blocks reconciliation.
func (p *MarkerPublisher) Hook(markers []mapview.Marker) {
	for {
		select {
		case p.latest <- markers:
			return
		default:
		}
		select {
		case <-p.latest:
		default:
		}
	}
}

// Run publishes queued marker sets until ctx is done.
func (p *MarkerPublisher) Run(ctx context.Context) {
	p.logger.Info("Marker publisher started", zap.String("topic", p.topic))
	for {
		select {
		case <-ctx.Done():
			return
		case markers := <-p.latest:
			if err := p.Publish(markers); err != nil {
				p.logger.Error("Failed to publish markers",
					zap.String("topic", p.topic),
					zap.Int("marker_count", len(markers)),
					zap.Error(err),
				)
			}
		}
	}
}

// Publish sends one marker set synchronously.
func (p *MarkerPublisher) Publish(markers []mapview.Marker) error {
	payload, err := json.Marshal(mapview.ToFeatureCollection(markers))
	if err != nil {
		return fmt.Errorf("failed to marshal markers: %w", err)
	}
	if err := p.client.Publish(p.topic, p.qos, true, payload); err != nil {
		return err
	}
	p.logger.Debug("Markers published",
		zap.String("topic", p.topic),
		zap.Int("marker_count", len(markers)),
	)
	return nil
}
