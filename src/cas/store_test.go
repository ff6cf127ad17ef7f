package cas

import (
	"fmt"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"

	cm "github.com/pythagoras-dev/pythagoras/src/common"
	"github.com/pythagoras-dev/pythagoras/src/keyval"
)

func newTestStore(t *testing.T) *Store {
	return NewStore(keyval.NewInmemBackend(), 100, 1.0, cm.NewTestEntry(t, logrus.ErrorLevel))
}

func TestStorePutGet(t *testing.T) {
	s := newTestStore(t)

	addr, err := s.Put("hello")
	if err != nil {
		t.Fatal(err)
	}

	var out string
	if err := s.Get(addr, &out); err != nil {
		t.Fatal(err)
	}
	if out != "hello" {
		t.Fatalf("bad value: %s", out)
	}

	ok, err := s.Contains(addr)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("addr should be committed")
	}
}

func TestStorePutIdempotent(t *testing.T) {
	// checkProbability 1 so every duplicate write is verified
	s := newTestStore(t)

	a1, err := s.Put("same value")
	if err != nil {
		t.Fatal(err)
	}

	a2, err := s.Put("same value")
	if err != nil {
		t.Fatal(err)
	}

	if !a1.Equals(a2) {
		t.Fatalf("idempotent Put changed address: %s != %s", a1.String(), a2.String())
	}

	count, err := s.Count()
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("bad count: %d", count)
	}
}

func TestStoreNumericRoundTrip(t *testing.T) {
	s := newTestStore(t)

	addr, err := s.Put(10)
	if err != nil {
		t.Fatal(err)
	}

	// untyped resolution yields the canonical form
	var out interface{}
	if err := s.Get(addr, &out); err != nil {
		t.Fatal(err)
	}
	if out != int64(10) {
		t.Fatalf("bad canonical value: %v (%T)", out, out)
	}

	// typed resolution still works
	var typed int
	if err := s.Get(addr, &typed); err != nil {
		t.Fatal(err)
	}
	if typed != 10 {
		t.Fatalf("bad typed value: %v", typed)
	}

	faddr, err := s.Put(2.5)
	if err != nil {
		t.Fatal(err)
	}
	var f interface{}
	if err := s.Get(faddr, &f); err != nil {
		t.Fatal(err)
	}
	if f != 2.5 {
		t.Fatalf("bad canonical float: %v (%T)", f, f)
	}
}

func TestStoreCanonicalAddresses(t *testing.T) {
	s := newTestStore(t)

	// addressing is over canonical forms, so producer-side integer widths
	// collapse onto one key
	a1, err := s.Put(10)
	if err != nil {
		t.Fatal(err)
	}
	a2, err := s.Put(uint8(10))
	if err != nil {
		t.Fatal(err)
	}
	a3, err := s.Put(int64(10))
	if err != nil {
		t.Fatal(err)
	}

	if !a1.Equals(a2) || !a1.Equals(a3) {
		t.Fatalf("canonical addresses differ: %s, %s, %s",
			a1.String(), a2.String(), a3.String())
	}

	count, err := s.Count()
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("bad count: %d", count)
	}
}

func TestStoreConcurrentAccess(t *testing.T) {
	s := newTestStore(t)

	// enough distinct values to churn the LRU from every goroutine
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				v := fmt.Sprintf("value %d", i)
				addr, err := s.Put(v)
				if err != nil {
					t.Error(err)
					return
				}
				var out string
				if err := s.Get(addr, &out); err != nil {
					t.Error(err)
					return
				}
				if out != v {
					t.Errorf("bad value: %s", out)
					return
				}
			}
		}(g)
	}
	wg.Wait()

	count, err := s.Count()
	if err != nil {
		t.Fatal(err)
	}
	if count != 200 {
		t.Fatalf("bad count: %d", count)
	}
}

func TestStoreGetMissing(t *testing.T) {
	s := newTestStore(t)

	addr, err := AddressOf("never stored")
	if err != nil {
		t.Fatal(err)
	}

	var out string
	if err := s.Get(addr, &out); !cm.Is(err, cm.NotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestStoreConsistencyViolation(t *testing.T) {
	s := newTestStore(t)

	addr, err := s.Put("original")
	if err != nil {
		t.Fatal(err)
	}

	// corrupt the committed bytes behind the store's back, then re-Put;
	// with checkProbability 1 the divergence must surface
	divergent, err := Marshal("tampered")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.backend.Set(valueKey(addr), divergent); err != nil {
		t.Fatal(err)
	}
	s.cache.Remove(addr.String())

	if _, err := s.Put("original"); !cm.Is(err, cm.ConsistencyViolation) {
		t.Fatalf("expected ConsistencyViolation, got %v", err)
	}
}

func TestStoreReadyReplicatesFromPeer(t *testing.T) {
	local := newTestStore(t)
	peer := newTestStore(t)

	addr, err := peer.Put("replicate me")
	if err != nil {
		t.Fatal(err)
	}

	// not ready without peers
	ok, err := local.Ready(addr, nil)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("addr should not be ready locally")
	}

	// ready through the peer, with copy-on-read
	ok, err = local.Ready(addr, []*Store{peer})
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("addr should be ready through the peer")
	}

	// the value must now be committed locally
	ok, err = local.Contains(addr)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("addr should have been replicated locally")
	}

	var out string
	if err := local.Get(addr, &out); err != nil {
		t.Fatal(err)
	}
	if out != "replicate me" {
		t.Fatalf("bad replicated value: %s", out)
	}
}

func TestStoreResolvePeerOrder(t *testing.T) {
	local := newTestStore(t)
	peer1 := newTestStore(t)
	peer2 := newTestStore(t)

	addr, err := peer2.Put("in second peer")
	if err != nil {
		t.Fatal(err)
	}

	var out string
	if err := local.Resolve(addr, []*Store{peer1, peer2}, &out); err != nil {
		t.Fatal(err)
	}
	if out != "in second peer" {
		t.Fatalf("bad value: %s", out)
	}
}

func TestStoreResolveMissing(t *testing.T) {
	local := newTestStore(t)
	peer := newTestStore(t)

	addr, err := AddressOf("nowhere")
	if err != nil {
		t.Fatal(err)
	}

	var out string
	if err := local.Resolve(addr, []*Store{peer}, &out); !cm.Is(err, cm.NotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}
