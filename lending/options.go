package lending

import "errors"

var (
	// ErrNilLogger is returned when a nil logger is provided to WithLogger.
	ErrNilLogger = errors.New("logger must not be nil")

	// ErrNilContextualLogger is returned when a nil contextual logger is provided to WithContextualLogger.
	ErrNilContextualLogger = errors.New("contextual logger must not be nil")

	// ErrNilMetricsCollector is returned when a nil metrics collector is provided to WithMetrics.
	ErrNilMetricsCollector = errors.New("metrics collector must not be nil")

	// ErrNilTracingCollector is returned when a nil tracing collector is provided to WithTracing.
	ErrNilTracingCollector = errors.New("tracing collector must not be nil")
)

// settings collects what the functional options configure for a Library and its Reconciler.
type settings struct {
	observer
	strictBorrowLimit bool
	retryOptions      []RetryOption
}

// Option defines a functional option for configuring a Library or a Reconciler.
type Option func(*settings) error

// WithLogger sets the logger.
// The logger will receive messages at different levels based on the logger's configured level:
//
// Debug level: rejected borrows and returns, no-op releases, adopted records
// Info level: snapshot saves and reloads with record counts and durations
// Warn level: skipped records, retried persistence failures
// Error level: persistence failures.
func WithLogger(logger Logger) Option {
	return func(s *settings) error {
		if logger == nil {
			return ErrNilLogger
		}

		s.logger = logger

		return nil
	}
}

// WithContextualLogger sets a context-aware logger which takes precedence over the plain Logger.
// Log records then carry the trace and span IDs of the context they were emitted in.
func WithContextualLogger(logger ContextualLogger) Option {
	return func(s *settings) error {
		if logger == nil {
			return ErrNilContextualLogger
		}

		s.contextualLogger = logger

		return nil
	}
}

// WithMetrics sets the metrics collector.
// If the collector also implements ContextualMetricsCollector, the context-aware methods are used.
func WithMetrics(collector MetricsCollector) Option {
	return func(s *settings) error {
		if collector == nil {
			return ErrNilMetricsCollector
		}

		s.metricsCollector = collector

		return nil
	}
}

// WithTracing sets the tracing collector used for spans around snapshot I/O.
func WithTracing(collector TracingCollector) Option {
	return func(s *settings) error {
		if collector == nil {
			return ErrNilTracingCollector
		}

		s.tracingCollector = collector

		return nil
	}
}

// WithStrictBorrowLimit makes the borrow-limit check and the copy acquisition one atomic step
// per borrower, so concurrent borrows can never push a borrower over the limit.
func WithStrictBorrowLimit() Option {
	return func(s *settings) error {
		s.strictBorrowLimit = true
		return nil
	}
}

// WithRetryOptions configures how transient persistence failures are retried during snapshot saves.
func WithRetryOptions(options ...RetryOption) Option {
	return func(s *settings) error {
		s.retryOptions = append(s.retryOptions, options...)
		return nil
	}
}

func applyOptions(options []Option) (settings, error) {
	var s settings

	for _, option := range options {
		if err := option(&s); err != nil {
			return settings{}, err
		}
	}

	if _, err := newRetryConfig(s.retryOptions); err != nil {
		return settings{}, err
	}

	return s, nil
}
