// Package prometheus renders goReset engine metrics in the Prometheus text
// exposition format.
//
// [NewPrometheusExporter] wraps an [goReset.Engine] and exposes an
// [http.Handler]. [PrometheusExporter.WriteTo] streams a scrape to any
// writer and stops at the first write error. Counters are named goreset_*_total; the two latency
// histograms are goreset_request_latency_seconds and
// goreset_redeem_latency_seconds. Nothing is registered globally; callers
// mount the handler themselves.
package prometheus
