// Package work defines executable operations and the deterministic call
// signatures that identify "this function, these arguments" independently of
// whether the call has ever run.
package work

import (
	"fmt"
	"sync"
)

// ArgMap maps argument names to argument values.
type ArgMap map[string]interface{}

// Fn is the executable body of an Op. Bodies are expected to be pure: the
// result cache is write-once, so a non-deterministic body is a bug that
// surfaces as a consistency violation.
type Fn func(args ArgMap) (interface{}, error)

// Normalizer is the static-analysis collaborator that turns a callable's raw
// source into its normalized form. How source is parsed and validated is out
// of scope here; the cache only requires that equivalent callables normalize
// to identical strings.
type Normalizer interface {
	Normalize(raw string) (string, error)
}

// IdentityNormalizer passes raw source through untouched.
type IdentityNormalizer struct{}

// Normalize implements the Normalizer interface.
func (IdentityNormalizer) Normalize(raw string) (string, error) {
	return raw, nil
}

// Op couples a name, a normalized source and an executable body. The
// normalized source, not the name, is what addresses the function in
// signatures; the name is only used to find the body in a Registry.
type Op struct {
	name   string
	source string
	fn     Fn
}

// NewOp creates an Op, running raw through the normalizer.
func NewOp(name string, raw string, fn Fn, normalizer Normalizer) (*Op, error) {
	if normalizer == nil {
		normalizer = IdentityNormalizer{}
	}

	source, err := normalizer.Normalize(raw)
	if err != nil {
		return nil, err
	}

	return &Op{
		name:   name,
		source: source,
		fn:     fn,
	}, nil
}

// Name ...
func (o *Op) Name() string {
	return o.name
}

// Source returns the normalized source of the Op.
func (o *Op) Source() string {
	return o.source
}

// Call runs the Op's body.
func (o *Op) Call(args ArgMap) (interface{}, error) {
	return o.fn(args)
}

// Registry maps op names to their executable bodies. Workers use it to turn
// a sampled signature back into something they can run.
type Registry struct {
	sync.RWMutex
	ops map[string]*Op
}

// NewRegistry ...
func NewRegistry() *Registry {
	return &Registry{
		ops: make(map[string]*Op),
	}
}

// Register adds an Op to the registry. Registering two different sources
// under one name is refused, since it would make the name ambiguous.
func (r *Registry) Register(op *Op) error {
	r.Lock()
	defer r.Unlock()

	if existing, ok := r.ops[op.name]; ok {
		if existing.source != op.source {
			return fmt.Errorf("op %s already registered with different source", op.name)
		}
		return nil
	}

	r.ops[op.name] = op

	return nil
}

// Get returns the Op registered under name.
func (r *Registry) Get(name string) (*Op, bool) {
	r.RLock()
	defer r.RUnlock()

	op, ok := r.ops[name]

	return op, ok
}

// Names returns the registered op names.
func (r *Registry) Names() []string {
	r.RLock()
	defer r.RUnlock()

	res := make([]string, 0, len(r.ops))
	for name := range r.ops {
		res = append(res, name)
	}

	return res
}
