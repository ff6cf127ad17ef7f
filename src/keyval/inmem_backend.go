package keyval

import (
	"strings"
	"sync"
	"time"

	cm "github.com/pythagoras-dev/pythagoras/src/common"
)

// InmemBackend implements the Backend interface with a mutex-protected map.
// It is used for tests and for ephemeral portals that do not need to survive
// the process.
type InmemBackend struct {
	sync.RWMutex
	items      map[string][]byte
	timestamps map[string]time.Time
}

// NewInmemBackend ...
func NewInmemBackend() *InmemBackend {
	return &InmemBackend{
		items:      make(map[string][]byte),
		timestamps: make(map[string]time.Time),
	}
}

// Get implements the Backend interface.
func (b *InmemBackend) Get(key string) ([]byte, error) {
	b.RLock()
	defer b.RUnlock()

	val, ok := b.items[key]
	if !ok {
		return nil, cm.NewErr("InmemBackend", cm.NotFound, key)
	}

	res := make([]byte, len(val))
	copy(res, val)

	return res, nil
}

// Set implements the Backend interface.
func (b *InmemBackend) Set(key string, value []byte) error {
	b.Lock()
	defer b.Unlock()

	b.set(key, value)

	return nil
}

// SetIfAbsent implements the Backend interface.
func (b *InmemBackend) SetIfAbsent(key string, value []byte) (bool, error) {
	b.Lock()
	defer b.Unlock()

	if _, ok := b.items[key]; ok {
		return false, nil
	}

	b.set(key, value)

	return true, nil
}

func (b *InmemBackend) set(key string, value []byte) {
	val := make([]byte, len(value))
	copy(val, value)
	b.items[key] = val
	b.timestamps[key] = time.Now()
}

// Contains implements the Backend interface.
func (b *InmemBackend) Contains(key string) (bool, error) {
	b.RLock()
	defer b.RUnlock()

	_, ok := b.items[key]

	return ok, nil
}

// Delete implements the Backend interface.
func (b *InmemBackend) Delete(key string) error {
	b.Lock()
	defer b.Unlock()

	delete(b.items, key)
	delete(b.timestamps, key)

	return nil
}

// Keys implements the Backend interface.
func (b *InmemBackend) Keys(prefix string) ([]string, error) {
	b.RLock()
	defer b.RUnlock()

	res := []string{}
	for k := range b.items {
		if strings.HasPrefix(k, prefix) {
			res = append(res, k)
		}
	}

	return res, nil
}

// Timestamp implements the Backend interface.
func (b *InmemBackend) Timestamp(key string) (time.Time, error) {
	b.RLock()
	defer b.RUnlock()

	ts, ok := b.timestamps[key]
	if !ok {
		return time.Time{}, cm.NewErr("InmemBackend", cm.NotFound, key)
	}

	return ts, nil
}

// Close implements the Backend interface.
func (b *InmemBackend) Close() error {
	return nil
}

// Path implements the Backend interface.
func (b *InmemBackend) Path() string {
	return ""
}
