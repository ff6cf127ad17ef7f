package identity

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"os"
)

// Identity is the stable identity of this machine within a swarm. It wraps
// the persisted node key; the node signature derived from its public key is
// used to namespace heartbeat records.
type Identity struct {
	key *ecdsa.PrivateKey
}

// LoadOrCreate reads the node key from keyfilePath, generating and persisting
// a fresh one if none exists yet.
func LoadOrCreate(keyfilePath string) (*Identity, error) {
	keyfile := NewKeyfile(keyfilePath)

	if _, err := os.Stat(keyfilePath); err == nil {
		key, err := keyfile.ReadKey()
		if err != nil {
			return nil, err
		}
		return &Identity{key: key}, nil
	}

	key, err := GenerateKey()
	if err != nil {
		return nil, err
	}

	if err := keyfile.WriteKey(key); err != nil {
		return nil, err
	}

	return &Identity{key: key}, nil
}

// NodeSignature returns the stable per-machine identifier: the hex SHA256 of
// the node's public key.
func (i *Identity) NodeSignature() string {
	sum := sha256.Sum256(FromPublicKey(&i.key.PublicKey))
	return hex.EncodeToString(sum[:])
}

// PublicKeyHex returns the hexadecimal representation of the uncompressed
// public key.
func (i *Identity) PublicKeyHex() string {
	return hex.EncodeToString(FromPublicKey(&i.key.PublicKey))
}

// RandomToken returns a collision-resistant random token used as the
// principal process's runtime identity.
func RandomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
