// Package buildinfo reports the version of the running binary.
//
// Version, Commit and BuildTime are set with ldflags:
//
//	go build -ldflags "-X github.com/yndnr/rmap-go/internal/infra/buildinfo.Version=v0.3.0"
//
// Unset values fall back to the module and VCS data embedded by the Go
// toolchain.
package buildinfo
