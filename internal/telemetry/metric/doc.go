// Package metric owns the server's Prometheus registry and its HTTP endpoint.
//
// NewRegistry returns a registry preloaded with Go runtime, process and build
// information collectors. Components register their own metrics on it
// (storage, connection pool, command counters). Server exposes the registry
// at /metrics and a liveness probe at /healthz.
package metric
