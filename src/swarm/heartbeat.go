package swarm

import (
	"github.com/pythagoras-dev/pythagoras/src/cas"
	"github.com/pythagoras-dev/pythagoras/src/keyval"
)

const heartbeatNamespace = "heartbeat"

// Heartbeat is the record a principal process writes once at startup,
// namespaced by node signature. Workers poll it; its disappearance or a
// runtime-token mismatch is the liveness signal that ends their loops.
type Heartbeat struct {
	NodeSignature string
	Pid           int
	Token         string
}

// Beacon reads and writes the heartbeat record of one node. The record is
// owned by the principal process and read-only to workers.
type Beacon struct {
	backend keyval.Backend
	nodeSig string
}

// NewBeacon ...
func NewBeacon(backend keyval.Backend, nodeSig string) *Beacon {
	return &Beacon{
		backend: backend,
		nodeSig: nodeSig,
	}
}

func heartbeatKey(nodeSig string) string {
	return keyval.JoinKey(heartbeatNamespace, nodeSig)
}

// Publish writes the heartbeat record, replacing any stale record a dead
// principal left behind.
func (b *Beacon) Publish(hb Heartbeat) error {
	blob, err := cas.Marshal(hb)
	if err != nil {
		return err
	}

	return b.backend.Set(heartbeatKey(b.nodeSig), blob)
}

// Read returns the current heartbeat record, or a NotFound error.
func (b *Beacon) Read() (Heartbeat, error) {
	blob, err := b.backend.Get(heartbeatKey(b.nodeSig))
	if err != nil {
		return Heartbeat{}, err
	}

	var hb Heartbeat
	if err := cas.Unmarshal(blob, &hb); err != nil {
		return Heartbeat{}, err
	}

	return hb, nil
}

// Clear removes the heartbeat record; this is the principal's clean way to
// end its workers.
func (b *Beacon) Clear() error {
	return b.backend.Delete(heartbeatKey(b.nodeSig))
}

// Alive reports whether the principal that issued token is still in charge
// of this node.
func (b *Beacon) Alive(token string) bool {
	hb, err := b.Read()
	if err != nil {
		// missing record and unreachable backend both read as dead
		return false
	}

	return hb.Token == token
}
