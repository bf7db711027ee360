// Package buildinfo exposes version information for votifier-server and
// votifier-cli.
//
// Release builds inject values through ldflags:
//
//	go build -ldflags "-X github.com/yndnr/votifier-go/internal/infra/buildinfo.Version=v1.0.0"
//
// Without ldflags the VCS stamp embedded by the Go toolchain is used.
package buildinfo
