// Package otel publishes engine metrics as OpenTelemetry observable
// instruments.
//
// One callback reads Engine.MetricsSnapshot per collection cycle. Callers
// own the MeterProvider and pass in a Meter.
package otel
