// Package tlsroots loads TLS material for the RESP endpoint and its
// clients.
//
//   - roots.go: trusted CA pools and client configuration
//   - keypair.go: a server certificate that can be reloaded in place
//
// KeyPair.Reload is meant to be driven by a file watcher or SIGHUP. A failed
// reload keeps serving the previous certificate.
package tlsroots
