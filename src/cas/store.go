package cas

import (
	"bytes"
	"math/rand"
	"sync"

	"github.com/sirupsen/logrus"

	cm "github.com/pythagoras-dev/pythagoras/src/common"
	"github.com/pythagoras-dev/pythagoras/src/keyval"
)

const valuesNamespace = "values"

// Store is a write-once content-addressed map from Address to serialized
// value, layered over a keyval backend. Put is idempotent; a key that is
// already committed keeps its original bytes (first-write-wins). An LRU keeps
// hot blobs in memory in front of the backend.
//
// Values handed to Put must be serializable; cyclic graphs are supported for
// address derivation only.
//
// A Store is shared by the calling goroutine and every swarm worker, so the
// LRU, which is not thread-safe on its own, is guarded here.
type Store struct {
	backend keyval.Backend

	cacheMu sync.Mutex
	cache   *cm.LRU

	// checkProbability is the sampling rate at which duplicate writes are
	// verified byte-for-byte against the committed value. Verification is
	// expensive, so it is a tunable, not a constant.
	checkProbability float64

	logger *logrus.Entry
}

// NewStore ...
func NewStore(backend keyval.Backend, cacheSize int, checkProbability float64, logger *logrus.Entry) *Store {
	return &Store{
		backend:          backend,
		cache:            cm.NewLRU(cacheSize, nil),
		checkProbability: checkProbability,
		logger:           logger,
	}
}

func valueKey(addr Address) string {
	return keyval.JoinKey(valuesNamespace, addr.String())
}

// Put stores the canonical form of a value and returns its Address, which is
// derived from that canonical form; Put(int(10)) and Put(uint8(10)) commit
// the same key, and a value later resolved into interface{} compares equal to
// what was put in. If the address is already committed the write is
// discarded, and with probability checkProbability the committed bytes are
// compared against the new ones; divergence surfaces as a
// ConsistencyViolation, since it means either a broken determinism assumption
// or a hash collision.
func (s *Store) Put(v interface{}) (Address, error) {
	c, err := Canonical(v)
	if err != nil {
		return Address{}, err
	}

	addr, err := AddressOf(c)
	if err != nil {
		return Address{}, err
	}

	blob, err := Marshal(c)
	if err != nil {
		return Address{}, err
	}

	key := valueKey(addr)

	written, err := s.backend.SetIfAbsent(key, blob)
	if err != nil {
		return Address{}, err
	}

	if !written && rand.Float64() < s.checkProbability {
		existing, err := s.backend.Get(key)
		if err != nil {
			return Address{}, err
		}
		if !bytes.Equal(existing, blob) {
			s.logger.WithField("address", addr.String()).Error("Value store divergence")
			return Address{}, cm.NewErr("ValueStore", cm.ConsistencyViolation, key)
		}
	}

	s.cacheAdd(addr, blob)

	return addr, nil
}

func (s *Store) cacheAdd(addr Address, blob []byte) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	s.cache.Add(addr.String(), blob)
}

func (s *Store) cacheGet(addr Address) ([]byte, bool) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	blob, ok := s.cache.Get(addr.String())
	if !ok {
		return nil, false
	}
	return blob.([]byte), true
}

func (s *Store) cacheContains(addr Address) bool {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	return s.cache.Contains(addr.String())
}

// PutBytes commits pre-serialized bytes under an address that was derived
// elsewhere. It is used for peer-to-local replication, where re-deriving the
// address would require decoding into the original Go type.
func (s *Store) PutBytes(addr Address, blob []byte) error {
	if _, err := s.backend.SetIfAbsent(valueKey(addr), blob); err != nil {
		return err
	}

	s.cacheAdd(addr, blob)

	return nil
}

// GetBytes returns the serialized value stored under addr, or a NotFound
// error if it is absent locally.
func (s *Store) GetBytes(addr Address) ([]byte, error) {
	if blob, ok := s.cacheGet(addr); ok {
		return blob, nil
	}

	blob, err := s.backend.Get(valueKey(addr))
	if err != nil {
		return nil, err
	}

	s.cacheAdd(addr, blob)

	return blob, nil
}

// Get decodes the value stored under addr into out.
func (s *Store) Get(addr Address, out interface{}) error {
	blob, err := s.GetBytes(addr)
	if err != nil {
		return err
	}

	return Unmarshal(blob, out)
}

// Contains reports whether addr is committed locally.
func (s *Store) Contains(addr Address) (bool, error) {
	if s.cacheContains(addr) {
		return true, nil
	}

	return s.backend.Contains(valueKey(addr))
}

// Ready reports whether addr can be resolved. The local store is consulted
// first; otherwise the peers are searched in the order given, and the first
// hit is copied into the local store before returning true. Ready is
// therefore not side-effect-free: a read can trigger local replication.
func (s *Store) Ready(addr Address, peers []*Store) (bool, error) {
	ok, err := s.Contains(addr)
	if err != nil || ok {
		return ok, err
	}

	for _, peer := range peers {
		ok, err := peer.Contains(addr)
		if err != nil {
			return false, err
		}
		if !ok {
			continue
		}

		blob, err := peer.GetBytes(addr)
		if err != nil {
			return false, err
		}
		if err := s.PutBytes(addr, blob); err != nil {
			return false, err
		}

		return true, nil
	}

	return false, nil
}

// Resolve decodes the value at addr into out, searching the local store then
// the peers, replicating locally on a peer hit. It fails with NotFound if no
// reachable store has the value.
func (s *Store) Resolve(addr Address, peers []*Store, out interface{}) error {
	ok, err := s.Ready(addr, peers)
	if err != nil {
		return err
	}
	if !ok {
		return cm.NewErr("ValueStore", cm.NotFound, addr.String())
	}

	return s.Get(addr, out)
}

// Count returns the number of values committed locally.
func (s *Store) Count() (int, error) {
	keys, err := s.backend.Keys(valuesNamespace + keyval.KeySeparator)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}
