package cmap

import (
	"fmt"
	"sync"
	"testing"
)

func TestNewWithShards(t *testing.T) {
	tests := []struct {
		input int
		want  int
	}{
		{0, DefaultShardCount},
		{-4, DefaultShardCount},
		{6, DefaultShardCount},
		{1, 1},
		{8, 8},
		{64, 64},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("shards=%d", tt.input), func(t *testing.T) {
			if got := NewWithShards[string, int](tt.input).ShardCount(); got != tt.want {
				t.Errorf("ShardCount() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestMap_Basic(t *testing.T) {
	m := New[string, []byte]()

	m.Set("inventory", []byte("5"))
	v, ok := m.Get("inventory")
	if !ok || string(v) != "5" {
		t.Fatalf("Get(inventory) = (%q, %v)", v, ok)
	}
	if !m.Has("inventory") || m.Has("missing") {
		t.Error("Has() mismatch")
	}
	if m.Count() != 1 {
		t.Errorf("Count() = %d, want 1", m.Count())
	}

	if !m.Delete("inventory") {
		t.Error("Delete(inventory) = false, want true")
	}
	if m.Delete("inventory") {
		t.Error("second Delete(inventory) = true, want false")
	}

	m.Set("a", nil)
	m.Set("b", nil)
	m.Clear()
	if m.Count() != 0 {
		t.Errorf("Count() after Clear = %d", m.Count())
	}
}

func TestMap_ShardDistribution(t *testing.T) {
	m := NewWithShards[string, int](4)
	for i := 0; i < 400; i++ {
		m.Set(fmt.Sprintf("hash:%d", i), i)
	}

	used := 0
	for _, s := range m.shards {
		if len(s.items) > 0 {
			used++
		}
	}
	if used != 4 {
		t.Errorf("keys landed in %d of 4 shards", used)
	}
}

func TestMap_NonStringKeys(t *testing.T) {
	m := New[int, string]()
	m.Set(1, "one")
	m.Set(2, "two")

	if v, ok := m.Get(1); !ok || v != "one" {
		t.Errorf("Get(1) = (%q, %v)", v, ok)
	}
}

func TestMap_ConcurrentAccess(t *testing.T) {
	m := New[int, int]()
	var wg sync.WaitGroup
	const goroutines, ops = 50, 500

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for j := 0; j < ops; j++ {
				key := base*ops + j
				m.Set(key, j)
				m.Get(key)
				m.Has(key)
			}
		}(i)
	}
	wg.Wait()

	if m.Count() != goroutines*ops {
		t.Errorf("Count() = %d, want %d", m.Count(), goroutines*ops)
	}
}
