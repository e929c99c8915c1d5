// Package tests holds end-to-end tests that run the rmap client against a
// real rmap-server over every storage backend.
//
// They are skipped with -short.
package tests
