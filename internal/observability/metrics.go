package observability

import (
	"context"
	"strings"

	auth "github.com/goliatone/go-forum-auth"
	"github.com/hashicorp/go-metrics"
)

// MetricsSink counts auth activity events. The event type becomes the
// counter key: auth.login.failure -> [service auth login failure].
type MetricsSink struct {
	metrics *metrics.Metrics
}

var _ auth.ActivitySink = (*MetricsSink)(nil)

// NewMetricsSink creates an activity sink reporting to sink
func NewMetricsSink(service string, sink metrics.MetricSink) (*MetricsSink, error) {
	cfg := metrics.DefaultConfig(service)
	cfg.EnableHostname = false
	cfg.EnableRuntimeMetrics = false

	m, err := metrics.New(cfg, sink)
	if err != nil {
		return nil, err
	}

	return &MetricsSink{metrics: m}, nil
}

func (s *MetricsSink) Record(_ context.Context, event auth.ActivityEvent) error {
	if event.EventType == "" {
		return nil
	}
	s.metrics.IncrCounter(strings.Split(string(event.EventType), "."), 1)
	return nil
}
