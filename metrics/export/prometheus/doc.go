// Package prometheus renders keygate counters and password latency
// histograms in the Prometheus text exposition format.
//
// Counters are named keygate_*_total; histograms keygate_password_*_seconds.
// Nothing is registered globally: callers mount [Exporter.Handler].
package prometheus
