// Package metrics provides the fire-and-forget metrics side channel.
// Recording never blocks or fails the caller; sink errors are logged only.
package metrics

import (
	"context"
	"log/slog"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"

	shared "github.com/skycast/server/pkg"
)

// Metric events carry a fixed source and a type derived from the record, so
// consumers can subscribe per metric family.
const (
	eventSource     = "//skycast/metrics"
	eventTypePrefix = "com.skycast.metric."
)

func newMetricEvent(rec Record) (cloudevents.Event, error) {
	e := cloudevents.NewEvent()
	e.SetSpecVersion("1.0")
	e.SetType(eventTypePrefix + rec.Type)
	e.SetSource(eventSource)
	if err := e.SetData(cloudevents.ApplicationJSON, rec); err != nil {
		return e, err
	}
	return e, nil
}

// Record is one metric observation.
type Record struct {
	Type     string            `json:"type"`
	Name     string            `json:"name"`
	Value    float64           `json:"value"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Sink accepts metric records. Implementations must be non-blocking from the
// caller's perspective and must never propagate errors.
type Sink interface {
	Record(ctx context.Context, rec Record)
}

// PublisherSink publishes metric records as CloudEvents to a Pub/Sub topic.
type PublisherSink struct {
	Pub    shared.Publisher
	Topic  string
	Logger *slog.Logger
}

func NewPublisherSink(pub shared.Publisher, topic string, logger *slog.Logger) *PublisherSink {
	return &PublisherSink{Pub: pub, Topic: topic, Logger: logger}
}

func (s *PublisherSink) Record(ctx context.Context, rec Record) {
	e, err := newMetricEvent(rec)
	if err != nil {
		s.Logger.Warn("Failed to build metric event", "component", "metrics", "name", rec.Name, "error", err)
		return
	}

	// Bounded so a stuck publisher cannot stall the pipeline.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if _, err := s.Pub.PublishCloudEvent(pubCtx, s.Topic, e); err != nil {
		s.Logger.Warn("Failed to publish metric", "component", "metrics", "name", rec.Name, "error", err)
	}
}

// NoopSink drops all records. Used in tests and when metrics are disabled.
type NoopSink struct{}

func (NoopSink) Record(ctx context.Context, rec Record) {}
