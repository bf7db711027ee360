// Package httpserver serves the receiver's operational endpoints:
//
//	GET /health   status, version, uptime, key and token counts
//	GET /ready    200 once the vote listener is bound
//	GET /metrics  Prometheus exposition
//	GET /votes    recent journal entries (when the journal is enabled)
//
// It is built on net/http with a small middleware chain.
package httpserver
