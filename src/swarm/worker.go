package swarm

import (
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pythagoras-dev/pythagoras/src/portal"
)

// worker is one member of the pool. Workers share nothing with each other or
// with the principal except the persistence backend; collisions between
// workers picking the same item are self-resolving through the write-once
// result cache, at the cost of wasted duplicate work.
type worker struct {
	id         int
	portal     *portal.Portal
	beacon     *Beacon
	token      string
	conf       Config
	shutdownCh chan struct{}
	logger     *logrus.Entry
}

func (w *worker) run(wg *sync.WaitGroup) {
	defer wg.Done()

	w.logger.Debug("Worker starting")

	for {
		select {
		case <-w.shutdownCh:
			w.logger.Debug("Worker shutting down")
			return
		default:
		}

		if !w.beacon.Alive(w.token) {
			w.logger.Debug("Principal heartbeat lost, worker exiting")
			return
		}

		pending, ok := w.pick()
		if !ok {
			w.idle()
			continue
		}

		w.attempt(pending)
	}
}

// pick samples the request queue and returns one eligible work item chosen
// uniformly at random. Random sampling plus a random pick needs no shared
// ordering structure across independent workers, which is the point.
func (w *worker) pick() (*portal.Pending, bool) {
	n := w.conf.SampleMin
	if w.conf.SampleMax > w.conf.SampleMin {
		n += rand.Intn(w.conf.SampleMax - w.conf.SampleMin + 1)
	}

	sigs, err := w.portal.Requests().Sample(n)
	if err != nil {
		w.logger.WithError(err).Error("Sampling request queue")
		return nil, false
	}

	eligible := []*portal.Pending{}
	for _, sig := range sigs {
		pending := w.portal.Pending(sig)

		needs, err := pending.NeedsExecution()
		if err != nil {
			w.logger.WithError(err).WithField("key", pending.Key()).Error("Checking work item")
			continue
		}

		if needs && pending.CanBeExecuted() {
			eligible = append(eligible, pending)
		}
	}

	if len(eligible) == 0 {
		return nil, false
	}

	return eligible[rand.Intn(len(eligible))], true
}

// attempt runs one execution in its own supervised goroutine, so a crashing
// work item cannot corrupt the worker's loop state; the worker reaps it
// before continuing. Any error is logged and survived; only heartbeat loss
// ends the worker.
func (w *worker) attempt(pending *portal.Pending) {
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				w.logger.WithFields(logrus.Fields{
					"key":   pending.Key(),
					"panic": r,
				}).Error("Execution attempt panicked")
			}
		}()

		if _, err := pending.Execute(); err != nil {
			w.logger.WithError(err).WithField("key", pending.Key()).Error("Execution attempt failed")
			return
		}

		w.logger.WithField("key", pending.Key()).Debug("Executed work item")
	}()

	<-done
}

// idle sleeps a randomized short interval before the next polling round.
func (w *worker) idle() {
	jitter := 0.5 + rand.Float64()
	d := time.Duration(jitter * float64(w.conf.PollInterval))

	select {
	case <-time.After(d):
	case <-w.shutdownCh:
	}
}
