// Package connection provides the network clients used by votifier-cli.
//
//   - votes.go: vote protocol client (greeting, v1 and v2 frames)
//   - http.go: health and metrics client for the admin HTTP endpoint
package connection
