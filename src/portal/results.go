package portal

import (
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/pythagoras-dev/pythagoras/src/cas"
	cm "github.com/pythagoras-dev/pythagoras/src/common"
	"github.com/pythagoras-dev/pythagoras/src/keyval"
)

const resultsNamespace = "results"

// ResultCache maps a signature-derived key to the address of its computed
// result. Records are write-once: pure work items only ever need their first
// result, and first-write-wins lets any number of concurrent executors race
// on the same key without coordination. Duplicate work is wasted CPU, never
// a correctness bug, provided genuine determinism holds; the sampled
// consistency check exists to catch violations of that assumption in the
// field.
type ResultCache struct {
	backend          keyval.Backend
	checkProbability float64
	logger           *logrus.Entry
}

// NewResultCache ...
func NewResultCache(backend keyval.Backend, checkProbability float64, logger *logrus.Entry) *ResultCache {
	return &ResultCache{
		backend:          backend,
		checkProbability: checkProbability,
		logger:           logger,
	}
}

func resultKey(key string) string {
	return keyval.JoinKey(resultsNamespace, key)
}

// Lookup returns the result address recorded for key, or a NotFound error.
// Existence of the record is the sole readiness signal for a call.
func (c *ResultCache) Lookup(key string) (cas.Address, error) {
	blob, err := c.backend.Get(resultKey(key))
	if err != nil {
		return cas.Address{}, err
	}

	var addr cas.Address
	if err := cas.Unmarshal(blob, &addr); err != nil {
		return cas.Address{}, err
	}

	return addr, nil
}

// Contains reports whether a result is recorded for key.
func (c *ResultCache) Contains(key string) (bool, error) {
	return c.backend.Contains(resultKey(key))
}

// Record maps key to the address of its result. The first write wins; a
// second call with the same key is a no-op, except that with probability
// checkProbability the new address is compared to the committed one and a
// mismatch fails with ConsistencyViolation.
func (c *ResultCache) Record(key string, result cas.Address) error {
	blob, err := cas.Marshal(result)
	if err != nil {
		return err
	}

	written, err := c.backend.SetIfAbsent(resultKey(key), blob)
	if err != nil {
		return err
	}

	if !written && rand.Float64() < c.checkProbability {
		existing, err := c.Lookup(key)
		if err != nil {
			return err
		}
		if !existing.Equals(result) {
			c.logger.WithFields(logrus.Fields{
				"key":      key,
				"existing": existing.String(),
				"new":      result.String(),
			}).Error("Result cache divergence")
			return cm.NewErr("ResultCache", cm.ConsistencyViolation, key)
		}
	}

	return nil
}

// Keys returns the signature keys with recorded results.
func (c *ResultCache) Keys() ([]string, error) {
	prefix := resultsNamespace + keyval.KeySeparator
	keys, err := c.backend.Keys(prefix)
	if err != nil {
		return nil, err
	}

	res := make([]string, len(keys))
	for i, k := range keys {
		res[i] = k[len(prefix):]
	}

	return res, nil
}

// Count returns the number of recorded results.
func (c *ResultCache) Count() (int, error) {
	keys, err := c.backend.Keys(resultsNamespace + keyval.KeySeparator)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}
