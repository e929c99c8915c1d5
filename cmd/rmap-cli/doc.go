// Package main provides the entry point for rmap-cli.
//
// rmap-cli runs one map operation per invocation against an rmap-server or
// any Redis-compatible store:
//
//	rmap-cli put inventory apples 10
//	rmap-cli replace-if inventory apples 10 9
//	rmap-cli -o json entries inventory
package main
