// Package identity provides the stable anonymous author identity used on
// outgoing messages. The identity is an nkeys user keypair persisted in
// the state directory; the author id is its public key, so it survives
// restarts and never needs a registration round trip.
package identity

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/nats-io/nkeys"
)

const seedFile = "user.nk"

// Identity is the local user's keypair-backed identity.
type Identity struct {
	kp     nkeys.KeyPair
	userID string
}

// Load reads the user seed from dir, creating a fresh keypair on first
// run. The seed file is chmod 0600, like any other credential.
func Load(dir string) (*Identity, error) {
	path := filepath.Join(dir, seedFile)

	seed, err := os.ReadFile(path)
	switch {
	case err == nil:
		kp, err := nkeys.FromSeed(bytes.TrimSpace(seed))
		if err != nil {
			return nil, fmt.Errorf("parse user seed %s: %w", path, err)
		}
		return fromKeyPair(kp)
	case errors.Is(err, fs.ErrNotExist):
		return create(dir, path)
	default:
		return nil, fmt.Errorf("read user seed %s: %w", path, err)
	}
}

func create(dir, path string) (*Identity, error) {
	kp, err := nkeys.CreateUser()
	if err != nil {
		return nil, fmt.Errorf("create user keypair: %w", err)
	}
	seed, err := kp.Seed()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, seed, 0o600); err != nil {
		return nil, fmt.Errorf("write user seed %s: %w", path, err)
	}
	return fromKeyPair(kp)
}

func fromKeyPair(kp nkeys.KeyPair) (*Identity, error) {
	pub, err := kp.PublicKey()
	if err != nil {
		return nil, err
	}
	return &Identity{kp: kp, userID: pub}, nil
}

// UserID returns the stable anonymous author id (the nkeys public key).
func (i *Identity) UserID() string { return i.userID }

// Sign signs data with the user key, for backends that challenge clients.
func (i *Identity) Sign(data []byte) ([]byte, error) {
	return i.kp.Sign(data)
}
