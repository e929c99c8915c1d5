// Package shutdown runs named cleanup hooks when the process is asked to
// stop, and reload hooks on SIGHUP.
package shutdown
