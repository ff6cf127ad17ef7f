// Package pythagoras ties the pieces together: configuration, identity,
// persistence backend, portal, swarm scheduler and the optional HTTP
// service. It is the entry point for embedding a node in Go code; the
// command-line binary is a thin wrapper around it.
package pythagoras

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pythagoras-dev/pythagoras/src/config"
	"github.com/pythagoras-dev/pythagoras/src/identity"
	"github.com/pythagoras-dev/pythagoras/src/keyval"
	"github.com/pythagoras-dev/pythagoras/src/portal"
	"github.com/pythagoras-dev/pythagoras/src/service"
	"github.com/pythagoras-dev/pythagoras/src/swarm"
	"github.com/pythagoras-dev/pythagoras/src/work"
)

// Pythagoras is a node: one portal over one backend, a registry of
// executable ops, a swarm scheduler and an optional HTTP service.
type Pythagoras struct {
	Config    *config.Config
	Identity  *identity.Identity
	Backend   keyval.Backend
	Registry  *work.Registry
	Portal    *portal.Portal
	Scheduler *swarm.Scheduler
	Service   *service.Service
}

// NewPythagoras is a factory method that returns a Pythagoras instance with
// a config property. Call Init before Run.
func NewPythagoras(config *config.Config) *Pythagoras {
	engine := &Pythagoras{
		Config:   config,
		Registry: work.NewRegistry(),
	}

	return engine
}

func (p *Pythagoras) initIdentity() error {
	id, err := identity.LoadOrCreate(p.Config.Keyfile())
	if err != nil {
		return fmt.Errorf("failed to load or create identity: %s", err)
	}

	p.Identity = id

	p.Config.Logger().WithField("node", id.NodeSignature()).Debug("IDENTITY")

	return nil
}

func (p *Pythagoras) initBackend() error {
	if !p.Config.Store {
		p.Backend = keyval.NewInmemBackend()

		p.Config.Logger().Debug("created new in-mem backend")
	} else {
		p.Config.Logger().WithField("path", p.Config.DatabaseDir).Debug("Attempting to load or create database")

		backend, err := keyval.NewBadgerBackend(p.Config.DatabaseDir, p.Config.Logger())
		if err != nil {
			return err
		}

		p.Backend = backend

		p.Config.Logger().Debug("loaded badger backend")
	}

	return nil
}

func (p *Pythagoras) initPortal() error {
	opts := portal.Options{
		CacheSize:        p.Config.CacheSize,
		CheckProbability: p.Config.CheckProbability,
		MaxAttempts:      p.Config.MaxAttempts,
		BaseDelay:        p.Config.BaseDelay,
		NodeID:           p.Identity.NodeSignature(),
	}

	p.Portal = portal.NewPortal(p.Backend, p.Registry, opts, p.Config.Logger())

	return nil
}

func (p *Pythagoras) initScheduler() error {
	conf := swarm.Config{
		Workers:      p.Config.Workers,
		SampleMin:    p.Config.SampleMin,
		SampleMax:    p.Config.SampleMax,
		PollInterval: p.Config.PollInterval,
	}

	scheduler, err := swarm.NewScheduler(p.Portal, p.Identity, conf, p.Config.Logger())
	if err != nil {
		return fmt.Errorf("failed to initialize scheduler: %s", err)
	}

	p.Scheduler = scheduler

	return nil
}

func (p *Pythagoras) initService() error {
	if !p.Config.NoService {
		p.Service = service.NewService(
			p.Config.ServiceAddr,
			p.Portal,
			p.Scheduler,
			p.Identity.NodeSignature(),
			p.Config.Moniker,
			p.Config.Logger(),
		)
	}

	return nil
}

// Init initializes the node based on its config.
func (p *Pythagoras) Init() error {
	if err := p.initIdentity(); err != nil {
		return err
	}

	if err := p.initBackend(); err != nil {
		return err
	}

	if err := p.initPortal(); err != nil {
		return err
	}

	if err := p.initScheduler(); err != nil {
		return err
	}

	if err := p.initService(); err != nil {
		return err
	}

	return nil
}

// Run starts the scheduler and the API service, and blocks until an
// interrupt or termination signal arrives.
func (p *Pythagoras) Run() error {
	if p.Service != nil {
		go p.Service.Serve()
	}

	if err := p.Scheduler.Start(); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	return p.Shutdown()
}

// Shutdown stops the scheduler, waits for its workers to drain out, and
// closes the backend.
func (p *Pythagoras) Shutdown() error {
	p.Config.Logger().Debug("Shutting down")

	if err := p.Scheduler.Stop(); err != nil {
		return err
	}

	return p.Portal.Close()
}
