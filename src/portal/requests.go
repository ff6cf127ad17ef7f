package portal

import (
	"math/rand"

	cm "github.com/pythagoras-dev/pythagoras/src/common"
	"github.com/pythagoras-dev/pythagoras/src/keyval"
	"github.com/pythagoras-dev/pythagoras/src/work"
)

const requestsNamespace = "requests"

// RequestQueue is the shared set of pending signature keys that some worker
// should execute. Each record carries the serialized signature, so a worker
// that samples the queue can reconstruct the work item with no other channel.
// Records are mutable flags, independent of result lifetime: a key can be
// simultaneously requested and, moments later, resolved; the two maps are
// eventually consistent, never atomically joined.
type RequestQueue struct {
	backend keyval.Backend
}

// NewRequestQueue ...
func NewRequestQueue(backend keyval.Backend) *RequestQueue {
	return &RequestQueue{
		backend: backend,
	}
}

func requestKey(key string) string {
	return keyval.JoinKey(requestsNamespace, key)
}

// Add publishes a signature for background execution, iff it is not already
// pending.
func (q *RequestQueue) Add(sig *work.Signature) error {
	blob, err := sig.Marshal()
	if err != nil {
		return err
	}

	_, err = q.backend.SetIfAbsent(requestKey(sig.Key()), blob)

	return err
}

// Remove drops a pending request. Removing an absent key is a no-op.
func (q *RequestQueue) Remove(key string) error {
	return q.backend.Delete(requestKey(key))
}

// Contains reports whether key is pending.
func (q *RequestQueue) Contains(key string) (bool, error) {
	return q.backend.Contains(requestKey(key))
}

// Get returns the pending signature stored under key.
func (q *RequestQueue) Get(key string) (*work.Signature, error) {
	blob, err := q.backend.Get(requestKey(key))
	if err != nil {
		return nil, err
	}

	sig := new(work.Signature)
	if err := sig.Unmarshal(blob); err != nil {
		return nil, err
	}

	return sig, nil
}

// Sample returns up to n pending signatures chosen uniformly at random.
// Entries that disappear between listing and reading are skipped, since
// concurrent workers remove requests as they complete them.
func (q *RequestQueue) Sample(n int) ([]*work.Signature, error) {
	keys, err := q.backend.Keys(requestsNamespace + keyval.KeySeparator)
	if err != nil {
		return nil, err
	}

	rand.Shuffle(len(keys), func(i, j int) {
		keys[i], keys[j] = keys[j], keys[i]
	})

	if len(keys) > n {
		keys = keys[:n]
	}

	res := make([]*work.Signature, 0, len(keys))
	for _, k := range keys {
		blob, err := q.backend.Get(k)
		if err != nil {
			if cm.Is(err, cm.NotFound) {
				continue
			}
			return nil, err
		}

		sig := new(work.Signature)
		if err := sig.Unmarshal(blob); err != nil {
			return nil, err
		}
		res = append(res, sig)
	}

	return res, nil
}

// Keys returns the pending signature keys.
func (q *RequestQueue) Keys() ([]string, error) {
	prefix := requestsNamespace + keyval.KeySeparator
	keys, err := q.backend.Keys(prefix)
	if err != nil {
		return nil, err
	}

	res := make([]string, len(keys))
	for i, k := range keys {
		res[i] = k[len(prefix):]
	}

	return res, nil
}

// Count returns the number of pending requests.
func (q *RequestQueue) Count() (int, error) {
	keys, err := q.backend.Keys(requestsNamespace + keyval.KeySeparator)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}
