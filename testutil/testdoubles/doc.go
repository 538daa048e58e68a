// Package testdoubles provides test doubles (spies) for the observability interfaces of the lending package.
//
//   - LoggerSpy: captures plain structured logging calls
//   - ContextualLoggerSpy: captures structured logging with context
//   - MetricsCollectorSpy: captures metrics recording calls for verification
//   - TracingCollectorSpy: captures tracing spans and their final status
//
// All spies are safe for concurrent use, so they can be shared by the goroutines of concurrency tests.
package testdoubles
