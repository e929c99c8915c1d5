// Package command provides CLI command definitions for rmap-cli.
//
// This package defines all CLI commands using urfave/cli/v2:
//
//   - root.go: App, global flags, per-invocation session
//   - hash.go: one command per map operation
//   - system.go: ping
//   - config.go: local configuration subcommands
//
// Every command loads the config file, applies global flags on top, opens
// a connection on first use and writes its result through the selected
// output formatter.
package command
