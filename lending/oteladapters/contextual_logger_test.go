package oteladapters_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/log/noop"

	"github.com/AntonStoeckl/library-lending-go/lending/oteladapters"
)

func Test_SlogBridgeLogger_AllLevels(t *testing.T) {
	// arrange
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := oteladapters.NewSlogBridgeLoggerWithHandler(handler)
	ctx := context.Background()

	// act
	logger.DebugContext(ctx, "debug message", "copy_id", "C1")
	logger.InfoContext(ctx, "info message", "copy_id", "C1")
	logger.WarnContext(ctx, "warn message", "copy_id", "C1")
	logger.ErrorContext(ctx, "error message", "copy_id", "C1")

	// assert
	output := buf.String()
	assert.Contains(t, output, `"level":"DEBUG"`)
	assert.Contains(t, output, `"level":"INFO"`)
	assert.Contains(t, output, `"level":"WARN"`)
	assert.Contains(t, output, `"level":"ERROR"`)
	assert.Contains(t, output, `"copy_id":"C1"`)
}

func Test_SlogBridgeLogger_GlobalProvider_DoesNotPanic(t *testing.T) {
	logger := oteladapters.NewSlogBridgeLogger("lending-test")

	assert.NotPanics(t, func() {
		logger.InfoContext(context.Background(), "snapshot saved", "works", 1)
	})
}

func Test_OTelLogger_AllLevels_DoNotPanic(t *testing.T) {
	// arrange
	logger := oteladapters.NewOTelLogger(noop.NewLoggerProvider().Logger("test"))
	ctx := context.Background()

	// act / assert
	assert.NotPanics(t, func() {
		logger.DebugContext(ctx, "debug", "copy_id", "C1", "attempt", 2)
		logger.InfoContext(ctx, "info", "held", true, "ratio", 0.5)
		logger.WarnContext(ctx, "warn", "error", errors.New("boom"), "borrower_id", int64(7))
		logger.ErrorContext(ctx, "error", "dangling")
	})
}
