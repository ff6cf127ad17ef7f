// Package swarm implements the leaderless execution scheduler: a principal
// process that publishes a heartbeat and supervises a pool of workers, each
// of which opportunistically drains the shared request queue. There is no
// central coordination; the persistence backend's per-key atomicity is the
// only shared primitive, so workers on any number of machines can share one
// pending-work set.
package swarm

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pythagoras-dev/pythagoras/src/identity"
	"github.com/pythagoras-dev/pythagoras/src/portal"
)

// Default scheduler tunables.
const (
	DefaultWorkers      = 2
	DefaultSampleMin    = 200
	DefaultSampleMax    = 5000
	DefaultPollInterval = 1 * time.Second
)

// Config holds the scheduler tunables.
type Config struct {
	// Workers is the size of the background pool. Zero is valid: the
	// principal then only publishes its heartbeat, and detached workers on
	// other processes do the executing.
	Workers int

	// SampleMin and SampleMax bound the randomized number of request-queue
	// entries a worker examines per round.
	SampleMin int
	SampleMax int

	// PollInterval is the base idle sleep between polling rounds; actual
	// sleeps are jittered around it.
	PollInterval time.Duration
}

// DefaultConfig ...
func DefaultConfig() Config {
	return Config{
		Workers:      DefaultWorkers,
		SampleMin:    DefaultSampleMin,
		SampleMax:    DefaultSampleMax,
		PollInterval: DefaultPollInterval,
	}
}

// Scheduler ties a worker pool's lifetime to a principal process. Start
// publishes the heartbeat and launches the pool; Stop retires the heartbeat
// and waits for the workers to drain out.
type Scheduler struct {
	portal *portal.Portal
	conf   Config

	beacon *Beacon
	token  string

	shutdownCh chan struct{}
	wg         sync.WaitGroup

	runLock sync.Mutex
	running bool

	logger *logrus.Entry
}

// NewScheduler ...
func NewScheduler(p *portal.Portal, id *identity.Identity, conf Config, logger *logrus.Entry) (*Scheduler, error) {
	token, err := identity.RandomToken()
	if err != nil {
		return nil, err
	}

	// attempt log entries made by this pool carry the principal's token
	p.SetRuntimeToken(token)

	return &Scheduler{
		portal:     p,
		conf:       conf,
		beacon:     NewBeacon(p.Backend(), id.NodeSignature()),
		token:      token,
		shutdownCh: make(chan struct{}),
		logger:     logger,
	}, nil
}

// Token returns the runtime token under which this principal published its
// heartbeat.
func (s *Scheduler) Token() string {
	return s.token
}

// Workers returns the configured pool size.
func (s *Scheduler) Workers() int {
	return s.conf.Workers
}

// Start publishes the principal heartbeat and launches the worker pool.
func (s *Scheduler) Start() error {
	s.runLock.Lock()
	defer s.runLock.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already started")
	}

	s.shutdownCh = make(chan struct{})

	hb := Heartbeat{
		NodeSignature: s.beacon.nodeSig,
		Pid:           os.Getpid(),
		Token:         s.token,
	}

	if err := s.beacon.Publish(hb); err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"node":    hb.NodeSignature,
		"pid":     hb.Pid,
		"workers": s.conf.Workers,
	}).Debug("Swarm starting")

	for i := 0; i < s.conf.Workers; i++ {
		w := &worker{
			id:         i,
			portal:     s.portal,
			beacon:     s.beacon,
			token:      s.token,
			conf:       s.conf,
			shutdownCh: s.shutdownCh,
			logger:     s.logger.WithField("worker", i),
		}

		s.wg.Add(1)
		go w.run(&s.wg)
	}

	s.running = true

	return nil
}

// Stop retires the heartbeat and waits for the workers to exit. Workers in
// other processes watching the same heartbeat wind down on their next
// liveness check.
func (s *Scheduler) Stop() error {
	s.runLock.Lock()
	defer s.runLock.Unlock()

	if !s.running {
		return nil
	}

	if err := s.beacon.Clear(); err != nil {
		return err
	}

	close(s.shutdownCh)
	s.wg.Wait()

	s.running = false

	s.logger.Debug("Swarm stopped")

	return nil
}
