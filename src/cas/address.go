// Package cas implements the content-addressable value store. Values are
// identified by a deterministic Address derived from their type descriptor
// and the hash of their canonical serialization; the store itself is
// write-once, so any number of uncoordinated writers can Put the same value
// without stepping on each other.
package cas

import (
	"bytes"
	"reflect"

	"github.com/ugorji/go/codec"
)

// Address identifies a value by its type descriptor and content hash. It is
// a pure function of the value's content: immutable, serializable, and
// resolvable against any compatible store.
type Address struct {
	TypeDesc string
	Hash     string
}

// AddressOf derives the Address of an arbitrary value.
func AddressOf(v interface{}) (Address, error) {
	hash, err := Digest(v)
	if err != nil {
		return Address{}, err
	}

	return Address{
		TypeDesc: TypeDescriptor(v),
		Hash:     hash,
	}, nil
}

// TypeDescriptor returns the type-shape component of an Address.
func TypeDescriptor(v interface{}) string {
	if v == nil {
		return "nil"
	}
	return reflect.TypeOf(v).String()
}

// String returns the key form of an Address, used to index stores.
func (a Address) String() string {
	return a.TypeDesc + "@" + a.Hash
}

// IsZero reports whether the Address has not been set.
func (a Address) IsZero() bool {
	return a.TypeDesc == "" && a.Hash == ""
}

// Equals ...
func (a Address) Equals(other Address) bool {
	return a.TypeDesc == other.TypeDesc && a.Hash == other.Hash
}

// jsonHandle returns the codec handle used for every serialization in the
// cache. Canonical mode sorts map keys, so byte output is a pure function of
// content; SignedInteger makes untyped decodes yield int64 for every integer
// instead of splitting them across int64 and uint64.
func jsonHandle() *codec.JsonHandle {
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	jh.SignedInteger = true
	return jh
}

// Canonical returns the canonical in-memory form of v: its canonical encoding
// decoded back into untyped Go values. Integers come back as int64, floats as
// float64, maps as map[string]interface{} and lists as []interface{}. The
// store commits canonical forms, so a value resolved from any store compares
// equal to what Put returned, whichever concrete numeric types the producer
// used.
func Canonical(v interface{}) (interface{}, error) {
	blob, err := Marshal(v)
	if err != nil {
		return nil, err
	}

	var out interface{}
	if err := Unmarshal(blob, &out); err != nil {
		return nil, err
	}

	return out, nil
}

// Marshal returns the canonical encoding of v.
func Marshal(v interface{}) ([]byte, error) {
	b := new(bytes.Buffer)
	enc := codec.NewEncoder(b, jsonHandle())

	if err := enc.Encode(v); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// Unmarshal decodes canonical bytes into out.
func Unmarshal(data []byte, out interface{}) error {
	b := bytes.NewBuffer(data)
	dec := codec.NewDecoder(b, jsonHandle())

	return dec.Decode(out)
}
