// Package otel publishes goReset engine metrics through an OpenTelemetry
// Meter.
//
// [NewOTelExporter] registers one observable counter per engine counter and
// one observable gauge per latency bucket. A single callback reads
// [goReset.Engine.MetricsSnapshot] on each collection. The caller owns the
// MeterProvider.
package otel
