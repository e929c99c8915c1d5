// Package output provides output formatting for rmap-cli.
//
//   - formatter.go: Formatter interface and factory
//   - table.go: aligned table rendering
//   - json.go: JSON output formatting
//   - yaml.go: YAML output formatting
//
// Table output is for people. JSON and YAML are stable for scripting.
package output
