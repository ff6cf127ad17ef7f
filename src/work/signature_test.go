package work

import (
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/pythagoras-dev/pythagoras/src/cas"
	cm "github.com/pythagoras-dev/pythagoras/src/common"
	"github.com/pythagoras-dev/pythagoras/src/keyval"
)

func newTestStore(t *testing.T) *cas.Store {
	return cas.NewStore(keyval.NewInmemBackend(), 100, 1.0, cm.NewTestEntry(t, logrus.ErrorLevel))
}

func newTestOp(t *testing.T, name string) *Op {
	op, err := NewOp(name, "def "+name+"(x): return x", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	return op
}

func TestSignatureDeterminism(t *testing.T) {
	store := newTestStore(t)
	op := newTestOp(t, "echo")

	s1, err := NewSignature(store, op, ArgMap{"x": "1", "y": "2"})
	if err != nil {
		t.Fatal(err)
	}

	// same args, different construction order
	args := ArgMap{}
	args["y"] = "2"
	args["x"] = "1"

	s2, err := NewSignature(store, op, args)
	if err != nil {
		t.Fatal(err)
	}

	if s1.Key() != s2.Key() {
		t.Fatalf("keys differ: %s != %s", s1.Key(), s2.Key())
	}
}

func TestSignatureDistinguishesArgs(t *testing.T) {
	store := newTestStore(t)
	op := newTestOp(t, "echo")

	s1, err := NewSignature(store, op, ArgMap{"x": "1"})
	if err != nil {
		t.Fatal(err)
	}

	s2, err := NewSignature(store, op, ArgMap{"x": "2"})
	if err != nil {
		t.Fatal(err)
	}

	if s1.Key() == s2.Key() {
		t.Fatal("different args should not share a key")
	}
}

func TestSignatureIgnoresOpName(t *testing.T) {
	store := newTestStore(t)

	op1, err := NewOp("name_one", "def f(x): return x", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	op2, err := NewOp("name_two", "def f(x): return x", nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	s1, err := NewSignature(store, op1, ArgMap{"x": "1"})
	if err != nil {
		t.Fatal(err)
	}
	s2, err := NewSignature(store, op2, ArgMap{"x": "1"})
	if err != nil {
		t.Fatal(err)
	}

	// the function is addressed by source, so renaming keeps the key
	if s1.Key() != s2.Key() {
		t.Fatalf("renamed op changed key: %s != %s", s1.Key(), s2.Key())
	}
}

func TestSignatureDistinguishesSource(t *testing.T) {
	store := newTestStore(t)

	op1, err := NewOp("f", "def f(x): return x", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	op2, err := NewOp("f", "def f(x): return x + 1", nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	s1, err := NewSignature(store, op1, ArgMap{"x": "1"})
	if err != nil {
		t.Fatal(err)
	}
	s2, err := NewSignature(store, op2, ArgMap{"x": "1"})
	if err != nil {
		t.Fatal(err)
	}

	if s1.Key() == s2.Key() {
		t.Fatal("different sources should not share a key")
	}
}

func TestSignatureArgsResolve(t *testing.T) {
	store := newTestStore(t)
	op := newTestOp(t, "echo")

	sig, err := NewSignature(store, op, ArgMap{"x": "hello", "y": "world"})
	if err != nil {
		t.Fatal(err)
	}

	args, err := sig.Args(store, nil)
	if err != nil {
		t.Fatal(err)
	}

	if len(args) != 2 {
		t.Fatalf("bad arg count: %d", len(args))
	}
	if args["x"] != "hello" || args["y"] != "world" {
		t.Fatalf("bad args: %v", args)
	}
}

func TestSignatureArgsResolveAcrossPeers(t *testing.T) {
	origin := newTestStore(t)
	local := newTestStore(t)
	op := newTestOp(t, "echo")

	sig, err := NewSignature(origin, op, ArgMap{"x": "hello"})
	if err != nil {
		t.Fatal(err)
	}

	// the local store holds nothing; everything resolves through the peer
	args, err := sig.Args(local, []*cas.Store{origin})
	if err != nil {
		t.Fatal(err)
	}

	if args["x"] != "hello" {
		t.Fatalf("bad args: %v", args)
	}
}

func TestSignatureRoundTrip(t *testing.T) {
	store := newTestStore(t)
	op := newTestOp(t, "echo")

	sig, err := NewSignature(store, op, ArgMap{"x": "1"})
	if err != nil {
		t.Fatal(err)
	}

	blob, err := sig.Marshal()
	if err != nil {
		t.Fatal(err)
	}

	back := new(Signature)
	if err := back.Unmarshal(blob); err != nil {
		t.Fatal(err)
	}

	if back.Key() != sig.Key() {
		t.Fatalf("round trip changed key: %s != %s", back.Key(), sig.Key())
	}
	if back.OpName != sig.OpName {
		t.Fatalf("round trip changed op name: %s != %s", back.OpName, sig.OpName)
	}
}
