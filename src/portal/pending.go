package portal

import (
	"fmt"
	"math"
	"math/rand"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	cm "github.com/pythagoras-dev/pythagoras/src/common"
	"github.com/pythagoras-dev/pythagoras/src/work"
)

// NoTimeout makes Pending.Get poll until the result is ready, however long
// that takes.
const NoTimeout = time.Duration(-1)

// Pending is the handle on "this call, whether or not it has run". It holds
// no state beyond the signature and the portal it is bound to; every answer
// is re-derived from the stores, so any number of handles for the same
// signature behave identically across processes.
type Pending struct {
	portal *Portal
	sig    *work.Signature
}

// Signature ...
func (w *Pending) Signature() *work.Signature {
	return w.sig
}

// Key returns the signature-derived cache key.
func (w *Pending) Key() string {
	return w.sig.Key()
}

// Ready reports whether the call's result is available. The local result
// cache is consulted first; otherwise peer portals are searched in order,
// and on a hit the result mapping and the result value are copied into the
// local portal before returning true.
func (w *Pending) Ready() (bool, error) {
	key := w.sig.Key()

	ok, err := w.portal.results.Contains(key)
	if err != nil || ok {
		return ok, err
	}

	for _, peer := range w.portal.peers {
		addr, err := peer.results.Lookup(key)
		if err != nil {
			if cm.Is(err, cm.NotFound) {
				continue
			}
			return false, err
		}

		// pull the result value home before recording the mapping; a peer
		// that knows the mapping but cannot produce the blob is skipped, so
		// a handle never reads ready with an unreachable value behind it
		ok, err := w.portal.store.Ready(addr, w.portal.peerStores())
		if err != nil {
			return false, err
		}
		if !ok {
			continue
		}

		if err := w.portal.results.Record(key, addr); err != nil {
			return false, err
		}

		return true, nil
	}

	return false, nil
}

// RequestExecution publishes the call for background execution. If the
// result already exists, the request record is cleaned up instead.
func (w *Pending) RequestExecution() error {
	ready, err := w.Ready()
	if err != nil {
		return err
	}

	if ready {
		return w.DropExecutionRequest()
	}

	return w.portal.requests.Add(w.sig)
}

// DropExecutionRequest withdraws the call from the request queue. It is
// advisory: a worker already mid-execution will still finish and record its
// result, harmlessly, since the result cache is write-once.
func (w *Pending) DropExecutionRequest() error {
	return w.portal.requests.Remove(w.sig.Key())
}

// Execute runs the call synchronously: resolve the op and its arguments,
// run the body, store the result, record the mapping, drop the request.
// It is safe to call redundantly; when two workers race on the same key the
// second Record is a no-op or a consistency check, never a duplicate entry.
func (w *Pending) Execute() (interface{}, error) {
	key := w.sig.Key()

	attempt := Attempt{
		Time:  time.Now(),
		Node:  w.portal.opts.NodeID,
		Pid:   os.Getpid(),
		Token: w.portal.RuntimeToken(),
	}
	if err := w.portal.attempts.Append(key, attempt); err != nil {
		return nil, err
	}

	op, ok := w.portal.registry.Get(w.sig.OpName)
	if !ok {
		return nil, fmt.Errorf("op %s is not registered", w.sig.OpName)
	}

	args, err := w.sig.Args(w.portal.store, w.portal.peerStores())
	if err != nil {
		return nil, err
	}

	result, err := w.call(op, args)
	if err != nil {
		return nil, err
	}

	addr, err := w.portal.store.Put(result)
	if err != nil {
		return nil, err
	}

	if err := w.portal.results.Record(key, addr); err != nil {
		return nil, err
	}

	if err := w.DropExecutionRequest(); err != nil {
		return nil, err
	}

	// hand back the canonical form read from the store, so inline execution
	// and a later cache hit return identical values
	return w.Result()
}

// call runs the op body with panics converted to errors, so a crashing work
// item cannot take its executor down.
func (w *Pending) call(op *work.Op, args work.ArgMap) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("op %s panicked: %v", op.Name(), r)
		}
	}()

	return op.Call(args)
}

// Result decodes the recorded result value, resolving across peers if the
// blob has not been replicated locally yet.
func (w *Pending) Result() (interface{}, error) {
	addr, err := w.portal.results.Lookup(w.sig.Key())
	if err != nil {
		return nil, err
	}

	var out interface{}
	if err := w.portal.store.Resolve(addr, w.portal.peerStores(), &out); err != nil {
		return nil, err
	}

	return out, nil
}

// Get returns the call's result, polling until it is ready. If the result
// is not available, execution is requested and the caller polls with
// exponential backoff: base 1.0 delay unit, doubling each round, jittered
// by plus/minus 0.5, floored at 1.0 unit. A timeout of NoTimeout polls
// forever; otherwise a Timeout error is returned once the deadline passes.
// The timeout cancels only this caller's wait, never an in-flight execution.
func (w *Pending) Get(timeout time.Duration) (interface{}, error) {
	ready, err := w.Ready()
	if err != nil {
		return nil, err
	}
	if ready {
		return w.Result()
	}

	if err := w.RequestExecution(); err != nil {
		return nil, err
	}

	var deadline time.Time
	if timeout != NoTimeout {
		deadline = time.Now().Add(timeout)
	}

	units := 1.0
	for {
		ready, err := w.Ready()
		if err != nil {
			return nil, err
		}
		if ready {
			return w.Result()
		}

		if timeout != NoTimeout && !time.Now().Before(deadline) {
			return nil, cm.NewErr("Pending", cm.Timeout, w.sig.Key())
		}

		sleepUnits := units + (rand.Float64() - 0.5)
		if sleepUnits < 1.0 {
			sleepUnits = 1.0
		}
		sleep := time.Duration(sleepUnits * float64(w.portal.opts.BaseDelay))
		if timeout != NoTimeout {
			if remaining := time.Until(deadline); sleep > remaining {
				sleep = remaining
			}
		}

		time.Sleep(sleep)
		units *= 2
	}
}

// NeedsExecution decides whether a worker should pick this call up now:
// false when the result already exists, false when the attempt ceiling has
// been exceeded (a dead-letter condition, logged rather than raised), and
// false while the most recent attempt is younger than the exponential
// backoff window. This throttles duplicate concurrent attempts without a
// lock; it is a best-effort heuristic, not a mutual exclusion.
func (w *Pending) NeedsExecution() (bool, error) {
	ready, err := w.Ready()
	if err != nil {
		return false, err
	}
	if ready {
		return false, nil
	}

	key := w.sig.Key()

	count, err := w.portal.attempts.Count(key)
	if err != nil {
		return false, err
	}

	if count > w.portal.opts.MaxAttempts {
		w.portal.logger.WithFields(logrus.Fields{
			"key":      key,
			"attempts": count,
		}).Warn("Attempt ceiling exceeded, dead-lettering work item")

		// dead-lettered items leave the queue so workers stop sampling them;
		// the attempt log remains for monitoring
		if err := w.DropExecutionRequest(); err != nil {
			return false, err
		}

		return false, nil
	}

	if count > 0 {
		_, ts, err := w.portal.attempts.Last(key)
		if err != nil {
			return false, err
		}

		backoff := time.Duration(float64(w.portal.opts.BaseDelay) * math.Pow(2, float64(count)))
		if time.Since(ts) < backoff {
			return false, nil
		}
	}

	return true, nil
}

// CanBeExecuted consults the externally supplied pre-validators, e.g. node
// resource checks. With no validators configured every call is eligible.
func (w *Pending) CanBeExecuted() bool {
	for _, validate := range w.portal.opts.PreValidators {
		if !validate() {
			return false
		}
	}
	return true
}
