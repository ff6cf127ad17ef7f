package identity

import (
	"encoding/hex"
	"path/filepath"
	"testing"
)

func TestLoadOrCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node_key")

	id1, err := LoadOrCreate(path)
	if err != nil {
		t.Fatal(err)
	}

	if id1.NodeSignature() == "" {
		t.Fatal("empty node signature")
	}

	// loading again must yield the same identity
	id2, err := LoadOrCreate(path)
	if err != nil {
		t.Fatal(err)
	}

	if id1.NodeSignature() != id2.NodeSignature() {
		t.Fatalf("node signature not stable: %s != %s",
			id1.NodeSignature(), id2.NodeSignature())
	}
	if id1.PublicKeyHex() != id2.PublicKeyHex() {
		t.Fatal("public key not stable")
	}

	// uncompressed secp256k1 point: 65 bytes, plain hex
	raw, err := hex.DecodeString(id1.PublicKeyHex())
	if err != nil {
		t.Fatal(err)
	}
	if len(raw) != 65 {
		t.Fatalf("bad public key length: %d", len(raw))
	}
}

func TestDistinctKeysDistinctSignatures(t *testing.T) {
	dir := t.TempDir()

	id1, err := LoadOrCreate(filepath.Join(dir, "key_a"))
	if err != nil {
		t.Fatal(err)
	}
	id2, err := LoadOrCreate(filepath.Join(dir, "key_b"))
	if err != nil {
		t.Fatal(err)
	}

	if id1.NodeSignature() == id2.NodeSignature() {
		t.Fatal("distinct keys should yield distinct signatures")
	}
}

func TestRandomToken(t *testing.T) {
	t1, err := RandomToken()
	if err != nil {
		t.Fatal(err)
	}
	t2, err := RandomToken()
	if err != nil {
		t.Fatal(err)
	}

	if len(t1) != 64 {
		t.Fatalf("bad token length: %d", len(t1))
	}
	if t1 == t2 {
		t.Fatal("tokens should not repeat")
	}
}

func TestKeyRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node_key")
	keyfile := NewKeyfile(path)

	key, err := GenerateKey()
	if err != nil {
		t.Fatal(err)
	}

	if err := keyfile.WriteKey(key); err != nil {
		t.Fatal(err)
	}

	back, err := keyfile.ReadKey()
	if err != nil {
		t.Fatal(err)
	}

	if key.D.Cmp(back.D) != 0 {
		t.Fatal("private scalar changed in round trip")
	}
	if key.PublicKey.X.Cmp(back.PublicKey.X) != 0 ||
		key.PublicKey.Y.Cmp(back.PublicKey.Y) != 0 {
		t.Fatal("public key changed in round trip")
	}
}
