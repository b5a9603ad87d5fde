// Package version reports which engine build is linked into the running
// binary. Scope health checks and the telemetry exporter defaults use it.
//
// The version can be pinned at compile time via -ldflags:
//
//	go build -ldflags "-X github.com/kbukum/wirekit/version.Version=v1.2.0"
package version
