package cas

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"reflect"
	"sort"
)

// Digest computes the content hash of an arbitrary value. The traversal
// carries a visited set keyed by object identity, so derivation terminates on
// cyclic graphs: a back-edge hashes as a reference to the position where its
// target first appeared on the current path.
func Digest(v interface{}) (string, error) {
	h := sha256.New()
	d := &digester{
		h:       h,
		visited: make(map[uintptr]int),
	}

	if err := d.walk(reflect.ValueOf(v)); err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

type digester struct {
	h       hash.Hash
	visited map[uintptr]int
	depth   int
}

func (d *digester) tag(format string, args ...interface{}) {
	fmt.Fprintf(d.h, format, args...)
}

func (d *digester) walk(v reflect.Value) error {
	if !v.IsValid() {
		d.tag("nil;")
		return nil
	}

	switch v.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64,
		reflect.String:
		return d.leaf(v)

	case reflect.Interface:
		if v.IsNil() {
			d.tag("nil;")
			return nil
		}
		return d.walk(v.Elem())

	case reflect.Ptr:
		if v.IsNil() {
			d.tag("nil;")
			return nil
		}
		return d.cycleSafe(v.Pointer(), func() error {
			return d.walk(v.Elem())
		})

	case reflect.Slice:
		if v.IsNil() {
			d.tag("nil;")
			return nil
		}
		return d.cycleSafe(v.Pointer(), func() error {
			return d.list(v)
		})

	case reflect.Array:
		return d.list(v)

	case reflect.Map:
		if v.IsNil() {
			d.tag("nil;")
			return nil
		}
		return d.cycleSafe(v.Pointer(), func() error {
			return d.mapping(v)
		})

	case reflect.Struct:
		return d.record(v)

	default:
		return fmt.Errorf("cannot hash value of kind %s", v.Kind())
	}
}

// cycleSafe runs fn with id marked as on the current path. A value that is
// reached again while still on the path hashes as a back-reference instead of
// recursing forever.
func (d *digester) cycleSafe(id uintptr, fn func() error) error {
	if pos, ok := d.visited[id]; ok {
		d.tag("cycle:%d;", pos)
		return nil
	}

	d.visited[id] = d.depth
	d.depth++

	err := fn()

	d.depth--
	delete(d.visited, id)

	return err
}

func (d *digester) leaf(v reflect.Value) error {
	enc, err := Marshal(v.Interface())
	if err != nil {
		return err
	}
	d.tag("%s:", v.Kind())
	d.h.Write(enc)
	d.tag(";")
	return nil
}

func (d *digester) list(v reflect.Value) error {
	d.tag("list(%d:", v.Len())
	for i := 0; i < v.Len(); i++ {
		if err := d.walk(v.Index(i)); err != nil {
			return err
		}
	}
	d.tag(")")
	return nil
}

// mapping hashes map entries in a deterministic order: entries are sorted by
// the digest of their key, which is well-defined for any hashable key type.
func (d *digester) mapping(v reflect.Value) error {
	type pair struct {
		keyDigest string
		key       reflect.Value
	}

	pairs := make([]pair, 0, v.Len())
	for _, k := range v.MapKeys() {
		kd, err := Digest(k.Interface())
		if err != nil {
			return err
		}
		pairs = append(pairs, pair{keyDigest: kd, key: k})
	}

	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].keyDigest < pairs[j].keyDigest
	})

	d.tag("map(%d:", v.Len())
	for _, p := range pairs {
		d.tag("%s=", p.keyDigest)
		if err := d.walk(v.MapIndex(p.key)); err != nil {
			return err
		}
	}
	d.tag(")")
	return nil
}

func (d *digester) record(v reflect.Value) error {
	t := v.Type()
	d.tag("struct(%s:", t.String())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.PkgPath != "" {
			// unexported
			continue
		}
		d.tag("%s=", f.Name)
		if err := d.walk(v.Field(i)); err != nil {
			return err
		}
	}
	d.tag(")")
	return nil
}
