// Package oteladapters plugs OpenTelemetry into the observability interfaces of package lending.
//
// SlogBridgeLogger and OTelLogger implement lending.ContextualLogger, MetricsCollector implements
// lending.ContextualMetricsCollector and TracingCollector implements lending.TracingCollector.
// All of them use the providers they are given, or the global ones where noted, so the Library
// itself never imports OpenTelemetry.
package oteladapters
