// Package prometheus exposes cmsauth engine counters as a prometheus.Collector.
//
// [NewExporter] reads a fresh [cmsauth.MetricsSnapshot] on every scrape.
// Counter names are prefixed cmsauth_*_total; the single histogram is
// cmsauth_authorize_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in the global Prometheus registry. Callers register the
//     collector or mount Handler.
//   - Mutate engine state.
package prometheus
