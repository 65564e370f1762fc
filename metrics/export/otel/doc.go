// Package otel publishes keygate metrics through an OpenTelemetry Meter.
//
// Counters become Int64ObservableCounters. Each latency histogram becomes a
// "_bucket" gauge with one cumulative data point per "le" attribute and a
// "_count" gauge. A single callback reads the engine snapshot; the caller
// owns the MeterProvider.
package otel
