// Package benchmark provides performance benchmarks for rmap.
//
// Run benchmarks with:
//
//	go test -bench=. -benchmem ./internal/tests/benchmark/...
//
// Compare conditional operations under contention:
//
//	go test -bench=Contended -benchtime=5s -cpu=1,4,16 ./internal/tests/benchmark/...
//
// Compare results:
//
//	benchstat old.txt new.txt
package benchmark
