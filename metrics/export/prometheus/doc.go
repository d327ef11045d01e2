// Package prometheus provides Prometheus collectors for goBroker metrics.
//
// [NewPrometheusExporter] accepts a [goBroker.Client] and exposes an [http.Handler]
// that renders all goBroker counters and histograms in Prometheus text exposition
// format. Counter names are prefixed gobroker_*_total; the histograms are
// gobroker_request_latency_seconds and gobroker_refresh_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry — callers mount the Handler.
//   - Mutate client state.
package prometheus
