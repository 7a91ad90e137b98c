package password

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"sync"
)

// Hasher is a single password hashing scheme.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
	Recognizes(encodedHash string) bool
	DummyHash() string
	Scheme() string
}

// Chain hashes with a primary scheme and verifies against any scheme it
// knows.
type Chain struct {
	primary Hasher
	all     []Hasher
}

// NewChain returns a Chain hashing with primary and also accepting legacy.
func NewChain(primary Hasher, legacy ...Hasher) (*Chain, error) {
	if primary == nil {
		return nil, errors.New("password: primary hasher is required")
	}
	all := []Hasher{primary}
	for _, h := range legacy {
		if h != nil {
			all = append(all, h)
		}
	}
	return &Chain{primary: primary, all: all}, nil
}

// Hash uses the primary scheme.
func (c *Chain) Hash(password string) (string, error) {
	return c.primary.Hash(password)
}

// Verify dispatches on the hash format.
func (c *Chain) Verify(password, encodedHash string) (bool, error) {
	for _, h := range c.all {
		if h.Recognizes(encodedHash) {
			return h.Verify(password, encodedHash)
		}
	}
	return false, ErrUnknownScheme
}

// DummyHash returns the primary scheme's dummy hash.
func (c *Chain) DummyHash() string {
	return c.primary.DummyHash()
}

// NeedsRehash reports whether encodedHash uses a non-primary scheme or
// weaker argon2id parameters.
func (c *Chain) NeedsRehash(encodedHash string) bool {
	if !c.primary.Recognizes(encodedHash) {
		return true
	}
	if a, ok := c.primary.(*Argon2); ok {
		upgrade, err := a.NeedsUpgrade(encodedHash)
		return err != nil || upgrade
	}
	if b, ok := c.primary.(*Bcrypt); ok {
		return b.NeedsUpgrade(encodedHash)
	}
	return false
}

type lazyDummy struct {
	once sync.Once
	hash string
}

func (d *lazyDummy) get(hash func(string) (string, error)) string {
	d.once.Do(func() {
		buf := make([]byte, 24)
		_, _ = rand.Read(buf)
		d.hash, _ = hash(hex.EncodeToString(buf))
	})
	return d.hash
}
