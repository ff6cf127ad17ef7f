// Package portal ties a persistence root's stores together: the
// content-addressed value store, the write-once result cache, the request
// queue and the attempt log all live in separate namespaces of one keyval
// backend. A Portal is passed explicitly through every API; there is no
// ambient global registry of portals, so cross-portal behavior is always
// caller-controlled.
package portal

import (
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pythagoras-dev/pythagoras/src/cas"
	"github.com/pythagoras-dev/pythagoras/src/keyval"
	"github.com/pythagoras-dev/pythagoras/src/work"
)

// Default portal tunables.
const (
	DefaultCacheSize        = 10000
	DefaultCheckProbability = 0.1
	DefaultMaxAttempts      = 5
	DefaultBaseDelay        = 1 * time.Second
)

// Options are the portal tunables.
type Options struct {
	// CacheSize limits the in-memory LRU in front of the value store.
	CacheSize int

	// CheckProbability is the sampling rate for write-once consistency
	// verification, in both the value store and the result cache.
	CheckProbability float64

	// MaxAttempts is the attempt ceiling beyond which a work item is treated
	// as dead-lettered: logged and no longer retried.
	MaxAttempts int

	// BaseDelay is the unit of the exponential backoff applied between
	// attempts and while polling for readiness.
	BaseDelay time.Duration

	// PreValidators are externally supplied eligibility checks consulted by
	// CanBeExecuted, e.g. "is there enough free memory on this node".
	PreValidators []func() bool

	// NodeID identifies this machine in attempt log entries. Defaults to the
	// hostname.
	NodeID string
}

// DefaultOptions ...
func DefaultOptions() Options {
	hostname, _ := os.Hostname()
	return Options{
		CacheSize:        DefaultCacheSize,
		CheckProbability: DefaultCheckProbability,
		MaxAttempts:      DefaultMaxAttempts,
		BaseDelay:        DefaultBaseDelay,
		NodeID:           hostname,
	}
}

// Portal is a persistence root. It owns exactly one backend and the stores
// layered on it; a process may hold references to several portals at once
// (local plus peers).
type Portal struct {
	backend  keyval.Backend
	store    *cas.Store
	results  *ResultCache
	requests *RequestQueue
	attempts *AttemptLog
	registry *work.Registry

	peers []*Portal
	opts  Options

	tokenMu sync.RWMutex
	token   string

	logger *logrus.Entry
}

// NewPortal ...
func NewPortal(backend keyval.Backend, registry *work.Registry, opts Options, logger *logrus.Entry) *Portal {
	return &Portal{
		backend:  backend,
		store:    cas.NewStore(backend, opts.CacheSize, opts.CheckProbability, logger),
		results:  NewResultCache(backend, opts.CheckProbability, logger),
		requests: NewRequestQueue(backend),
		attempts: NewAttemptLog(backend),
		registry: registry,
		opts:     opts,
		logger:   logger,
	}
}

// Store returns the portal's value store.
func (p *Portal) Store() *cas.Store {
	return p.store
}

// Results returns the portal's result cache.
func (p *Portal) Results() *ResultCache {
	return p.results
}

// Requests returns the portal's request queue.
func (p *Portal) Requests() *RequestQueue {
	return p.requests
}

// Attempts returns the portal's attempt log.
func (p *Portal) Attempts() *AttemptLog {
	return p.attempts
}

// Registry returns the op registry workers execute from.
func (p *Portal) Registry() *work.Registry {
	return p.registry
}

// Backend returns the underlying keyval backend.
func (p *Portal) Backend() keyval.Backend {
	return p.backend
}

// SetRuntimeToken attaches the principal's runtime token, so attempt log
// entries record which principal's pool performed each execution.
func (p *Portal) SetRuntimeToken(token string) {
	p.tokenMu.Lock()
	defer p.tokenMu.Unlock()

	p.token = token
}

// RuntimeToken returns the attached runtime token, or "" before a scheduler
// claims the portal.
func (p *Portal) RuntimeToken() string {
	p.tokenMu.RLock()
	defer p.tokenMu.RUnlock()

	return p.token
}

// AddPeer appends a fallback portal. Peers are searched in insertion order
// when an address is not ready locally.
func (p *Portal) AddPeer(peer *Portal) {
	p.peers = append(p.peers, peer)
}

// Peers returns the ordered fallback portals.
func (p *Portal) Peers() []*Portal {
	return p.peers
}

// peerStores returns the peers' value stores, in peer order.
func (p *Portal) peerStores() []*cas.Store {
	res := make([]*cas.Store, len(p.peers))
	for i, peer := range p.peers {
		res[i] = peer.store
	}
	return res
}

// Call derives the signature of executing op with args and returns its
// pending-work handle. Nothing is executed; the handle decides between cache
// hit, inline execution and background request.
func (p *Portal) Call(op *work.Op, args work.ArgMap) (*Pending, error) {
	sig, err := work.NewSignature(p.store, op, args)
	if err != nil {
		return nil, err
	}

	return p.Pending(sig), nil
}

// Pending wraps an existing signature in a pending-work handle bound to this
// portal.
func (p *Portal) Pending(sig *work.Signature) *Pending {
	return &Pending{
		portal: p,
		sig:    sig,
	}
}

// Close closes the underlying backend.
func (p *Portal) Close() error {
	return p.backend.Close()
}
