package work

import (
	"github.com/pythagoras-dev/pythagoras/src/cas"
)

// Signature deterministically identifies a call: the address of the
// function's normalized source, and the address of a canonicalized mapping
// of argument name to argument address. Two calls with the same function and
// the same argument content produce the same Signature key, regardless of
// argument construction order. Signatures are never mutated and are cheaply
// re-derivable, so they are a projection, not an entity; only their derived
// key is used for cache lookups.
type Signature struct {
	OpName      string
	FuncAddress cas.Address
	ArgsAddress cas.Address

	key string
}

// NewSignature derives the Signature of calling op with args. The argument
// values and the canonical argument map are committed to the store as a side
// effect, so that a worker holding only the signature can resolve everything
// it needs to execute the call.
func NewSignature(store *cas.Store, op *Op, args ArgMap) (*Signature, error) {
	argAddrs := make(map[string]cas.Address, len(args))
	for name, value := range args {
		addr, err := store.Put(value)
		if err != nil {
			return nil, err
		}
		argAddrs[name] = addr
	}

	argsAddr, err := store.Put(argAddrs)
	if err != nil {
		return nil, err
	}

	funcAddr, err := store.Put(op.Source())
	if err != nil {
		return nil, err
	}

	return &Signature{
		OpName:      op.Name(),
		FuncAddress: funcAddr,
		ArgsAddress: argsAddr,
	}, nil
}

// Key returns the cache key derived from the signature. The op name is
// deliberately excluded: the function is identified by the address of its
// normalized source, so renaming an op does not invalidate its cached
// results.
func (s *Signature) Key() string {
	if s.key == "" {
		// digesting two strings cannot fail
		d, _ := cas.Digest([2]string{s.FuncAddress.String(), s.ArgsAddress.String()})
		s.key = d
	}
	return s.key
}

// Args resolves the canonical argument map back into concrete values,
// searching the local store then peers.
func (s *Signature) Args(store *cas.Store, peers []*cas.Store) (ArgMap, error) {
	argAddrs := make(map[string]cas.Address)
	if err := store.Resolve(s.ArgsAddress, peers, &argAddrs); err != nil {
		return nil, err
	}

	args := make(ArgMap, len(argAddrs))
	for name, addr := range argAddrs {
		var value interface{}
		if err := store.Resolve(addr, peers, &value); err != nil {
			return nil, err
		}
		args[name] = value
	}

	return args, nil
}

// Marshal returns the canonical encoding of the Signature, as stored in
// request records.
func (s *Signature) Marshal() ([]byte, error) {
	return cas.Marshal(s)
}

// Unmarshal decodes a Signature from its canonical encoding.
func (s *Signature) Unmarshal(data []byte) error {
	return cas.Unmarshal(data, s)
}
