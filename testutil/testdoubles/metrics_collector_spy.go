package testdoubles

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/AntonStoeckl/library-lending-go/lending"
)

// SpyMetricRecord represents a recorded metrics call of any kind.
type SpyMetricRecord struct {
	Kind     string
	Metric   string
	Duration time.Duration
	Value    float64
	Labels   map[string]string
	Context  context.Context
}

const (
	// KindDuration marks a RecordDuration call.
	KindDuration = "duration"

	// KindCounter marks an IncrementCounter call.
	KindCounter = "counter"

	// KindValue marks a RecordValue call.
	KindValue = "value"
)

// MetricsCollectorSpy captures metrics calls for testing. It implements lending.ContextualMetricsCollector.
type MetricsCollectorSpy struct {
	mu      sync.Mutex
	records []SpyMetricRecord
}

// NewMetricsCollectorSpy creates a new MetricsCollectorSpy.
func NewMetricsCollectorSpy() *MetricsCollectorSpy {
	return &MetricsCollectorSpy{}
}

func (s *MetricsCollectorSpy) RecordDuration(metric string, duration time.Duration, labels map[string]string) {
	s.RecordDurationContext(context.Background(), metric, duration, labels)
}

func (s *MetricsCollectorSpy) IncrementCounter(metric string, labels map[string]string) {
	s.IncrementCounterContext(context.Background(), metric, labels)
}

func (s *MetricsCollectorSpy) RecordValue(metric string, value float64, labels map[string]string) {
	s.RecordValueContext(context.Background(), metric, value, labels)
}

func (s *MetricsCollectorSpy) RecordDurationContext(
	ctx context.Context,
	metric string,
	duration time.Duration,
	labels map[string]string,
) {
	s.add(SpyMetricRecord{Kind: KindDuration, Metric: metric, Duration: duration, Labels: maps.Clone(labels), Context: ctx})
}

func (s *MetricsCollectorSpy) IncrementCounterContext(ctx context.Context, metric string, labels map[string]string) {
	s.add(SpyMetricRecord{Kind: KindCounter, Metric: metric, Labels: maps.Clone(labels), Context: ctx})
}

func (s *MetricsCollectorSpy) RecordValueContext(
	ctx context.Context,
	metric string,
	value float64,
	labels map[string]string,
) {
	s.add(SpyMetricRecord{Kind: KindValue, Metric: metric, Value: value, Labels: maps.Clone(labels), Context: ctx})
}

func (s *MetricsCollectorSpy) add(record SpyMetricRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, record)
}

// Records returns a copy of all records for the given metric name.
func (s *MetricsCollectorSpy) Records(metric string) []SpyMetricRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []SpyMetricRecord
	for _, record := range s.records {
		if record.Metric == metric {
			result = append(result, record)
		}
	}

	return result
}

// CountWithLabel returns how many records of the metric carry the given label value.
func (s *MetricsCollectorSpy) CountWithLabel(metric, label, value string) int {
	count := 0
	for _, record := range s.Records(metric) {
		if record.Labels[label] == value {
			count++
		}
	}

	return count
}

var _ lending.ContextualMetricsCollector = (*MetricsCollectorSpy)(nil)
