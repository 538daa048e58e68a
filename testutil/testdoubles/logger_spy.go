package testdoubles

import (
	"context"
	"sync"

	"github.com/AntonStoeckl/library-lending-go/lending"
)

// SpyLogRecord represents a recorded log call.
type SpyLogRecord struct {
	Level   string
	Message string
	Args    []any
	Context context.Context
}

// Attr returns the value logged for the given key, if any.
func (r SpyLogRecord) Attr(key string) (any, bool) {
	for i := 0; i+1 < len(r.Args); i += 2 {
		if k, ok := r.Args[i].(string); ok && k == key {
			return r.Args[i+1], true
		}
	}

	return nil, false
}

type logRecorder struct {
	mu      sync.Mutex
	records []SpyLogRecord
}

func (r *logRecorder) record(ctx context.Context, level, msg string, args []any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records = append(r.records, SpyLogRecord{
		Level:   level,
		Message: msg,
		Args:    append([]any(nil), args...),
		Context: ctx,
	})
}

// Records returns a copy of all records of the given level, or of all levels if level is empty.
func (r *logRecorder) Records(level string) []SpyLogRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []SpyLogRecord
	for _, record := range r.records {
		if level == "" || record.Level == level {
			result = append(result, record)
		}
	}

	return result
}

// HasLog checks if a log with the specified level and message exists.
func (r *logRecorder) HasLog(level, message string) bool {
	for _, record := range r.Records(level) {
		if record.Message == message {
			return true
		}
	}

	return false
}

// Reset clears all recorded log calls.
func (r *logRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records = nil
}

// LoggerSpy captures calls made through the plain lending.Logger interface.
type LoggerSpy struct {
	logRecorder
}

// NewLoggerSpy creates a new LoggerSpy.
func NewLoggerSpy() *LoggerSpy {
	return &LoggerSpy{}
}

func (s *LoggerSpy) Debug(msg string, args ...any) { s.record(context.Background(), "debug", msg, args) }

func (s *LoggerSpy) Info(msg string, args ...any) { s.record(context.Background(), "info", msg, args) }

func (s *LoggerSpy) Warn(msg string, args ...any) { s.record(context.Background(), "warn", msg, args) }

func (s *LoggerSpy) Error(msg string, args ...any) { s.record(context.Background(), "error", msg, args) }

// ContextualLoggerSpy captures calls made through the lending.ContextualLogger interface,
// including the context each record was emitted in.
type ContextualLoggerSpy struct {
	logRecorder
}

// NewContextualLoggerSpy creates a new ContextualLoggerSpy.
func NewContextualLoggerSpy() *ContextualLoggerSpy {
	return &ContextualLoggerSpy{}
}

// DebugContext implements the ContextualLogger interface for testing.
func (s *ContextualLoggerSpy) DebugContext(ctx context.Context, msg string, args ...any) {
	s.record(ctx, "debug", msg, args)
}

// InfoContext implements the ContextualLogger interface for testing.
func (s *ContextualLoggerSpy) InfoContext(ctx context.Context, msg string, args ...any) {
	s.record(ctx, "info", msg, args)
}

// WarnContext implements the ContextualLogger interface for testing.
func (s *ContextualLoggerSpy) WarnContext(ctx context.Context, msg string, args ...any) {
	s.record(ctx, "warn", msg, args)
}

// ErrorContext implements the ContextualLogger interface for testing.
func (s *ContextualLoggerSpy) ErrorContext(ctx context.Context, msg string, args ...any) {
	s.record(ctx, "error", msg, args)
}

var (
	_ lending.Logger           = (*LoggerSpy)(nil)
	_ lending.ContextualLogger = (*ContextualLoggerSpy)(nil)
)
