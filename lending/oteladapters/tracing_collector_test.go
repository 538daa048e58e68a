package oteladapters_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/AntonStoeckl/library-lending-go/lending"
	"github.com/AntonStoeckl/library-lending-go/lending/oteladapters"
)

func newTracedCollector() (*oteladapters.TracingCollector, *tracetest.InMemoryExporter) {
	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

	return oteladapters.NewTracingCollector(provider.Tracer("test")), exporter
}

func assertSpanHasAttribute(t *testing.T, span tracetest.SpanStub, key, value string) {
	t.Helper()

	for _, attr := range span.Attributes {
		if attr.Key == attribute.Key(key) {
			assert.Equal(t, value, attr.Value.AsString())
			return
		}
	}

	assert.Failf(t, "attribute not found", "span %q has no attribute %q", span.Name, key)
}

func Test_TracingCollector_StartAndFinishSpan(t *testing.T) {
	// arrange
	collector, exporter := newTracedCollector()

	// act
	ctx, spanCtx := collector.StartSpan(context.Background(), lending.SpanNameSnapshotSave, map[string]string{"works": "1"})
	spanCtx.AddAttribute("copies", "3")
	collector.FinishSpan(spanCtx, lending.StatusSuccess, map[string]string{"attempts": "1"})

	// assert
	assert.NotNil(t, ctx)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)

	span := spans[0]
	assert.Equal(t, lending.SpanNameSnapshotSave, span.Name)
	assert.Equal(t, codes.Ok, span.Status.Code)
	assertSpanHasAttribute(t, span, "works", "1")
	assertSpanHasAttribute(t, span, "copies", "3")
	assertSpanHasAttribute(t, span, "attempts", "1")
}

func Test_TracingCollector_StatusMapping(t *testing.T) {
	testCases := []struct {
		status              string
		expectedCode        codes.Code
		expectedDescription string
	}{
		{lending.StatusSuccess, codes.Ok, ""},
		{"ok", codes.Ok, ""},
		{lending.StatusError, codes.Error, "Operation failed"},
		{"canceled", codes.Error, "Operation canceled"},
		{"timeout", codes.Error, "Operation timed out"},
		{"degraded", codes.Unset, ""},
	}

	for _, tc := range testCases {
		t.Run(tc.status, func(t *testing.T) {
			// arrange
			collector, exporter := newTracedCollector()

			// act
			_, spanCtx := collector.StartSpan(context.Background(), "op", nil)
			collector.FinishSpan(spanCtx, tc.status, nil)

			// assert
			spans := exporter.GetSpans()
			require.Len(t, spans, 1)
			assert.Equal(t, tc.expectedCode, spans[0].Status.Code)
			assert.Equal(t, tc.expectedDescription, spans[0].Status.Description)
		})
	}
}

func Test_TracingCollector_UnknownStatus_IsRecordedAsAttribute(t *testing.T) {
	// arrange
	collector, exporter := newTracedCollector()

	// act
	_, spanCtx := collector.StartSpan(context.Background(), "op", nil)
	collector.FinishSpan(spanCtx, "degraded", nil)

	// assert
	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assertSpanHasAttribute(t, spans[0], "status", "degraded")
}

type foreignSpanContext struct{}

func (foreignSpanContext) SetStatus(string)            {}
func (foreignSpanContext) AddAttribute(string, string) {}

func Test_TracingCollector_FinishSpan_IgnoresForeignSpanContext(t *testing.T) {
	// arrange
	collector, exporter := newTracedCollector()

	// act
	collector.FinishSpan(foreignSpanContext{}, lending.StatusSuccess, nil)

	// assert
	assert.Empty(t, exporter.GetSpans())
}
