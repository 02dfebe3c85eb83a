package cmap

import (
	"sort"
	"sync"
	"testing"
)

func TestRange(t *testing.T) {
	m := New[string, int]()
	m.Set("a", 1)
	m.Set("b", 2)
	m.Set("c", 3)

	collected := make(map[string]int)
	m.Range(func(key string, value int) bool {
		collected[key] = value
		return true
	})

	if len(collected) != 3 {
		t.Errorf("Range collected %d items, want 3", len(collected))
	}

	for k, v := range map[string]int{"a": 1, "b": 2, "c": 3} {
		if collected[k] != v {
			t.Errorf("collected[%s] = %d, want %d", k, collected[k], v)
		}
	}
}

func TestRangeEarlyStop(t *testing.T) {
	m := New[int, int]()
	for i := 0; i < 100; i++ {
		m.Set(i, i)
	}

	count := 0
	m.Range(func(key, value int) bool {
		count++
		return count < 10
	})

	if count != 10 {
		t.Errorf("Range stopped at %d, want 10", count)
	}
}

func TestKeys(t *testing.T) {
	m := New[string, int]()
	m.Set("x", 1)
	m.Set("y", 2)
	m.Set("z", 3)

	keys := m.Keys()
	if len(keys) != 3 {
		t.Errorf("Keys() length = %d, want 3", len(keys))
	}

	sort.Strings(keys)
	expected := []string{"x", "y", "z"}
	for i, k := range keys {
		if k != expected[i] {
			t.Errorf("keys[%d] = %q, want %q", i, k, expected[i])
		}
	}
}

func TestValues(t *testing.T) {
	m := New[string, int]()
	m.Set("x", 10)
	m.Set("y", 20)
	m.Set("z", 30)

	values := m.Values()
	if len(values) != 3 {
		t.Errorf("Values() length = %d, want 3", len(values))
	}

	sort.Ints(values)
	expected := []int{10, 20, 30}
	for i, v := range values {
		if v != expected[i] {
			t.Errorf("values[%d] = %d, want %d", i, v, expected[i])
		}
	}
}

func TestGetOrSet(t *testing.T) {
	m := New[string, int]()

	// First call sets the value
	val, existed := m.GetOrSet("key1", 100)
	if existed || val != 100 {
		t.Errorf("GetOrSet(new) = (%d, %v), want (100, false)", val, existed)
	}

	// Second call returns existing value
	val, existed = m.GetOrSet("key1", 200)
	if !existed || val != 100 {
		t.Errorf("GetOrSet(existing) = (%d, %v), want (100, true)", val, existed)
	}
}

func TestSetIfAbsent(t *testing.T) {
	m := New[string, int]()

	// Should set when absent
	if !m.SetIfAbsent("key1", 100) {
		t.Error("SetIfAbsent(absent) should return true")
	}

	val, _ := m.Get("key1")
	if val != 100 {
		t.Errorf("Get(key1) = %d, want 100", val)
	}

	// Should not set when present
	if m.SetIfAbsent("key1", 200) {
		t.Error("SetIfAbsent(present) should return false")
	}

	val, _ = m.Get("key1")
	if val != 100 {
		t.Errorf("Value changed unexpectedly: %d, want 100", val)
	}
}

func TestUpsert(t *testing.T) {
	m := New[string, int]()

	// Insert new
	result := m.Upsert("key1", 100, func(existing int, exists bool) int {
		if exists {
			return existing + 1
		}
		return 100
	})
	if result != 100 {
		t.Errorf("Upsert(new) = %d, want 100", result)
	}

	// Update existing
	result = m.Upsert("key1", 200, func(existing int, exists bool) int {
		if exists {
			return existing + 50
		}
		return 200
	})
	if result != 150 {
		t.Errorf("Upsert(existing) = %d, want 150", result)
	}
}

func TestPop(t *testing.T) {
	m := New[string, int]()

	m.Set("key1", 100)

	val, ok := m.Pop("key1")
	if !ok || val != 100 {
		t.Errorf("Pop(existing) = (%d, %v), want (100, true)", val, ok)
	}

	if m.Has("key1") {
		t.Error("key1 should not exist after Pop")
	}

	val, ok = m.Pop("key1")
	if ok {
		t.Errorf("Pop(nonexistent) = (%d, %v), want (0, false)", val, ok)
	}
}

func TestConcurrentRange(t *testing.T) {
	m := New[int, int]()

	// Pre-populate
	for i := 0; i < 1000; i++ {
		m.Set(i, i)
	}

	var wg sync.WaitGroup

	// Concurrent range and modifications
	for i := 0; i < 10; i++ {
		wg.Add(2)

		// Reader
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.Range(func(k, v int) bool {
					return true
				})
			}
		}()

		// Writer
		go func(base int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.Set(base*100+j, j)
			}
		}(i + 100)
	}

	wg.Wait()
}
