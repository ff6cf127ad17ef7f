package common

import (
	"testing"
)

func TestLRU(t *testing.T) {
	evicted := 0
	l := NewLRU(128, func(k, v interface{}) {
		if k != v {
			t.Fatalf("Evict values not equal (%v!=%v)", k, v)
		}
		evicted++
	})

	for i := 0; i < 256; i++ {
		l.Add(i, i)
	}

	if l.Len() != 128 {
		t.Fatalf("bad len: %v", l.Len())
	}

	if evicted != 128 {
		t.Fatalf("bad evict count: %v", evicted)
	}

	for i := 0; i < 128; i++ {
		if _, ok := l.Get(i); ok {
			t.Fatalf("key %d should have been evicted", i)
		}
	}

	for i := 128; i < 256; i++ {
		if _, ok := l.Get(i); !ok {
			t.Fatalf("key %d should not have been evicted", i)
		}
	}

	for i := 128; i < 192; i++ {
		if ok := l.Remove(i); !ok {
			t.Fatalf("key %d should have been removed", i)
		}
		if ok := l.Remove(i); ok {
			t.Fatalf("key %d should not be removable twice", i)
		}
		if _, ok := l.Get(i); ok {
			t.Fatalf("key %d should have been deleted", i)
		}
	}
}

func TestLRURecency(t *testing.T) {
	l := NewLRU(2, nil)

	l.Add("a", 1)
	l.Add("b", 2)

	// touch a so b is now the oldest
	if _, ok := l.Get("a"); !ok {
		t.Fatal("a should be present")
	}

	l.Add("c", 3)

	if l.Contains("b") {
		t.Fatal("b should have been evicted")
	}
	if !l.Contains("a") || !l.Contains("c") {
		t.Fatal("a and c should be present")
	}
}

func TestLRUUpdate(t *testing.T) {
	l := NewLRU(2, nil)

	l.Add("a", 1)
	if evicted := l.Add("a", 2); evicted {
		t.Fatal("updating a key should not evict")
	}

	v, ok := l.Get("a")
	if !ok || v != 2 {
		t.Fatalf("bad value: %v", v)
	}
	if l.Len() != 1 {
		t.Fatalf("bad len: %v", l.Len())
	}
}
