// Package config provides CLI configuration for rmap-cli.
//
// The file lives at ~/.rmap/cli.yaml and holds the default connection and
// output preferences. RMAP_CLI_* environment variables override it, and
// command-line flags override both.
package config
