// Package storagetest provides a conformance suite for storage.HashStore
// implementations.
package storagetest

import (
	"context"
	"errors"
	"testing"

	"github.com/yndnr/rmap-go/internal/storage"
)

// Run exercises every HashStore method against a fresh store from open.
func Run(t *testing.T, open func(t *testing.T) storage.HashStore) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s storage.HashStore)
	}{
		{"SetGet", testSetGet},
		{"SetNX", testSetNX},
		{"Del", testDel},
		{"GetAll", testGetAll},
		{"EmptyValue", testEmptyValue},
		{"BinaryFields", testBinaryFields},
		{"KeyIsolation", testKeyIsolation},
		{"Closed", testClosed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, open(t))
		})
	}
}

func pair(f, v string) storage.Pair {
	return storage.Pair{Field: []byte(f), Value: []byte(v)}
}

func testSetGet(t *testing.T, s storage.HashStore) {
	ctx := context.Background()

	added, err := s.HSet(ctx, "inventory", pair("widget", "5"), pair("gadget", "7"))
	if err != nil || added != 2 {
		t.Fatalf("HSet() = %d, %v; want 2", added, err)
	}
	added, err = s.HSet(ctx, "inventory", pair("widget", "3"))
	if err != nil || added != 0 {
		t.Fatalf("HSet(overwrite) = %d, %v; want 0", added, err)
	}

	v, err := s.HGet(ctx, "inventory", []byte("widget"))
	if err != nil || string(v) != "3" {
		t.Errorf("HGet(widget) = %q, %v; want 3", v, err)
	}
	v, err = s.HGet(ctx, "inventory", []byte("missing"))
	if err != nil || v != nil {
		t.Errorf("HGet(missing) = %q, %v; want nil", v, err)
	}

	ok, _ := s.HExists(ctx, "inventory", []byte("gadget"))
	if !ok {
		t.Error("HExists(gadget) = false")
	}
	ok, _ = s.HExists(ctx, "inventory", []byte("missing"))
	if ok {
		t.Error("HExists(missing) = true")
	}

	n, err := s.HLen(ctx, "inventory")
	if err != nil || n != 2 {
		t.Errorf("HLen() = %d, %v; want 2", n, err)
	}
	n, _ = s.HLen(ctx, "nothing")
	if n != 0 {
		t.Errorf("HLen(nothing) = %d", n)
	}
}

func testSetNX(t *testing.T, s storage.HashStore) {
	ctx := context.Background()

	set, err := s.HSetNX(ctx, "h", []byte("f"), []byte("v1"))
	if err != nil || !set {
		t.Fatalf("HSetNX(new) = %v, %v", set, err)
	}
	set, err = s.HSetNX(ctx, "h", []byte("f"), []byte("v2"))
	if err != nil || set {
		t.Fatalf("HSetNX(existing) = %v, %v", set, err)
	}
	if v, _ := s.HGet(ctx, "h", []byte("f")); string(v) != "v1" {
		t.Errorf("HGet() = %q, want v1", v)
	}
}

func testDel(t *testing.T, s storage.HashStore) {
	ctx := context.Background()

	_, _ = s.HSet(ctx, "h", pair("a", "1"), pair("b", "2"))
	_, _ = s.HSet(ctx, "other", pair("x", "1"))

	n, err := s.HDel(ctx, "h", []byte("a"), []byte("missing"))
	if err != nil || n != 1 {
		t.Fatalf("HDel() = %d, %v; want 1", n, err)
	}
	if ok, _ := s.Exists(ctx, "h"); !ok {
		t.Error("Exists(h) = false with one field left")
	}

	n, _ = s.HDel(ctx, "h", []byte("b"))
	if n != 1 {
		t.Fatalf("HDel(last) = %d", n)
	}
	if ok, _ := s.Exists(ctx, "h"); ok {
		t.Error("hash still exists after last field removed")
	}

	n, err = s.Del(ctx, "other", "missing")
	if err != nil || n != 1 {
		t.Fatalf("Del() = %d, %v; want 1", n, err)
	}
	if ok, _ := s.Exists(ctx, "other"); ok {
		t.Error("Exists(other) = true after Del")
	}
}

func testGetAll(t *testing.T, s storage.HashStore) {
	ctx := context.Background()

	_, _ = s.HSet(ctx, "h", pair("c", "3"), pair("a", "1"), pair("b", "2"))
	pairs, err := s.HGetAll(ctx, "h")
	if err != nil {
		t.Fatal(err)
	}
	if len(pairs) != 3 {
		t.Fatalf("HGetAll() len = %d", len(pairs))
	}
	for i, want := range []string{"a", "b", "c"} {
		if string(pairs[i].Field) != want {
			t.Errorf("pairs[%d].Field = %q, want %q", i, pairs[i].Field, want)
		}
	}

	pairs, err = s.HGetAll(ctx, "missing")
	if err != nil || len(pairs) != 0 {
		t.Errorf("HGetAll(missing) = %v, %v", pairs, err)
	}
}

func testEmptyValue(t *testing.T, s storage.HashStore) {
	ctx := context.Background()

	_, _ = s.HSet(ctx, "h", storage.Pair{Field: []byte("f"), Value: []byte{}})
	v, err := s.HGet(ctx, "h", []byte("f"))
	if err != nil || v == nil || len(v) != 0 {
		t.Errorf("HGet(empty) = %#v, %v; want empty non-nil", v, err)
	}
}

func testBinaryFields(t *testing.T, s storage.HashStore) {
	ctx := context.Background()

	field := []byte{0x00, 0xff, 0x10}
	_, _ = s.HSet(ctx, "bin", storage.Pair{Field: field, Value: []byte{0x01}})
	v, _ := s.HGet(ctx, "bin", field)
	if len(v) != 1 || v[0] != 0x01 {
		t.Errorf("HGet(binary) = %v", v)
	}
}

func testKeyIsolation(t *testing.T, s storage.HashStore) {
	ctx := context.Background()

	// "ab"+"c" and "a"+"bc" must not collide.
	_, _ = s.HSet(ctx, "ab", pair("c", "1"))
	_, _ = s.HSet(ctx, "a", pair("bc", "2"))

	if n, _ := s.HLen(ctx, "a"); n != 1 {
		t.Errorf("HLen(a) = %d, want 1", n)
	}
	if v, _ := s.HGet(ctx, "ab", []byte("c")); string(v) != "1" {
		t.Errorf("HGet(ab, c) = %q", v)
	}
	_, _ = s.Del(ctx, "a")
	if ok, _ := s.Exists(ctx, "ab"); !ok {
		t.Error("Del(a) removed ab")
	}
}

func testClosed(t *testing.T, s storage.HashStore) {
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := s.HGet(context.Background(), "h", []byte("f")); !errors.Is(err, storage.ErrClosed) {
		t.Errorf("HGet after Close error = %v, want ErrClosed", err)
	}
}
