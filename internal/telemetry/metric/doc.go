// Package metric provides Prometheus metrics for the vote receiver.
//
//   - prometheus.go: Registry, recording helpers and the /metrics handler
//   - collector.go: a collector that reports keystore state at scrape time
//
// Metrics include:
//
//   - Accepted, active and rate-limited connections
//   - Delivered, dropped and rejected votes (by protocol and error kind)
//   - Decode latency histograms
//   - Keystore reloads and token counts
//
// Metrics are exposed at /metrics in Prometheus format.
package metric
