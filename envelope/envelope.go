package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/pbkdf2"
)

// Algorithm selects the AEAD used by Encrypt and Decrypt.
type Algorithm string

const (
	// AESGCM is AES-256-GCM with a 16-byte IV.
	AESGCM Algorithm = "aes-256-gcm"
	// ChaCha20Poly1305 is ChaCha20-Poly1305 with a 12-byte nonce.
	ChaCha20Poly1305 Algorithm = "chacha20-poly1305"
)

const (
	// DefaultAssociatedData authenticates every blob to this service.
	DefaultAssociatedData = "auth-microservice"
	// DefaultIterations is the PBKDF2-SHA512 work factor.
	DefaultIterations = 10000

	aesIVSize  = 16
	tagSize    = 16
	hashLength = 64
	saltLength = 32
)

var (
	// ErrDecryption is returned for any malformed or unauthenticated blob.
	ErrDecryption = errors.New("envelope: decryption failed")
	// ErrEmptySecret is returned when no key material is configured.
	ErrEmptySecret = errors.New("envelope: secret is required")
	// ErrUnsupportedAlgorithm is returned for unknown Algorithm values.
	ErrUnsupportedAlgorithm = errors.New("envelope: unsupported algorithm")
)

// Config controls how an Envelope is built.
type Config struct {
	Secret         string
	Algorithm      Algorithm
	AssociatedData string
	Iterations     int
	// SeparateKeys derives distinct AEAD and HMAC keys from the secret.
	SeparateKeys bool
	// Random overrides the entropy source. Tests only.
	Random io.Reader
}

// Option mutates a Config before construction.
type Option func(*Config)

// WithAlgorithm selects the AEAD.
func WithAlgorithm(a Algorithm) Option { return func(c *Config) { c.Algorithm = a } }

// WithKeySeparation enables HKDF subkeys for encryption and signing.
func WithKeySeparation() Option { return func(c *Config) { c.SeparateKeys = true } }

// WithAssociatedData overrides the AEAD associated-data tag.
func WithAssociatedData(aad string) Option { return func(c *Config) { c.AssociatedData = aad } }

// Envelope is safe for concurrent use.
type Envelope struct {
	aead       cipher.AEAD
	signingKey []byte
	aad        []byte
	iterations int
	random     io.Reader
}

// HashResult is a PBKDF2 digest paired with the salt that produced it.
type HashResult struct {
	Hash string `json:"hash"`
	Salt string `json:"salt"`
}

// New builds an Envelope keyed from secret.
func New(secret string, opts ...Option) (*Envelope, error) {
	cfg := Config{Secret: secret}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return NewFromConfig(cfg)
}

// NewFromConfig builds an Envelope from a fully populated Config.
func NewFromConfig(cfg Config) (*Envelope, error) {
	if cfg.Secret == "" {
		return nil, ErrEmptySecret
	}
	if cfg.Algorithm == "" {
		cfg.Algorithm = AESGCM
	}
	if cfg.AssociatedData == "" {
		cfg.AssociatedData = DefaultAssociatedData
	}
	if cfg.Iterations <= 0 {
		cfg.Iterations = DefaultIterations
	}
	if cfg.Random == nil {
		cfg.Random = rand.Reader
	}

	root := sha256.Sum256([]byte(cfg.Secret))
	encKey, sigKey := root[:], root[:]
	if cfg.SeparateKeys {
		var err error
		if encKey, err = deriveSubkey(root[:], "authshield/aead"); err != nil {
			return nil, err
		}
		if sigKey, err = deriveSubkey(root[:], "authshield/hmac"); err != nil {
			return nil, err
		}
	}

	aead, err := newAEAD(cfg.Algorithm, encKey)
	if err != nil {
		return nil, err
	}

	return &Envelope{
		aead:       aead,
		signingKey: sigKey,
		aad:        []byte(cfg.AssociatedData),
		iterations: cfg.Iterations,
		random:     cfg.Random,
	}, nil
}

func newAEAD(alg Algorithm, key []byte) (cipher.AEAD, error) {
	switch alg {
	case AESGCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("envelope: aes: %w", err)
		}
		return cipher.NewGCMWithNonceSize(block, aesIVSize)
	case ChaCha20Poly1305:
		aead, err := chacha20poly1305.New(key)
		if err != nil {
			return nil, fmt.Errorf("envelope: chacha20: %w", err)
		}
		return aead, nil
	default:
		return nil, ErrUnsupportedAlgorithm
	}
}

func deriveSubkey(root []byte, info string) ([]byte, error) {
	out := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, root, nil, []byte(info)), out); err != nil {
		return nil, fmt.Errorf("envelope: hkdf: %w", err)
	}
	return out, nil
}

// Encrypt seals plaintext under a fresh IV.
func (e *Envelope) Encrypt(plaintext string) (string, error) {
	iv := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(e.random, iv); err != nil {
		return "", fmt.Errorf("envelope: iv: %w", err)
	}

	sealed := e.aead.Seal(nil, iv, []byte(plaintext), e.aad)
	ct, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	var b strings.Builder
	b.Grow(2 * (len(iv) + len(sealed) + 1))
	b.WriteString(hex.EncodeToString(iv))
	b.WriteByte(':')
	b.WriteString(hex.EncodeToString(tag))
	b.WriteByte(':')
	b.WriteString(hex.EncodeToString(ct))
	return b.String(), nil
}

// Decrypt opens a blob produced by Encrypt.
func (e *Envelope) Decrypt(blob string) (string, error) {
	parts := strings.Split(blob, ":")
	if len(parts) != 3 {
		return "", ErrDecryption
	}

	iv, err := hex.DecodeString(parts[0])
	if err != nil || len(iv) != e.aead.NonceSize() {
		return "", ErrDecryption
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil || len(tag) != tagSize {
		return "", ErrDecryption
	}
	ct, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", ErrDecryption
	}

	plain, err := e.aead.Open(nil, iv, append(ct, tag...), e.aad)
	if err != nil {
		return "", ErrDecryption
	}
	return string(plain), nil
}

// EncryptJSON marshals v and encrypts the result.
func (e *Envelope) EncryptJSON(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("envelope: marshal: %w", err)
	}
	return e.Encrypt(string(raw))
}

// DecryptJSON decrypts blob and unmarshals it into v.
func (e *Envelope) DecryptJSON(blob string, v any) error {
	plain, err := e.Decrypt(blob)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(plain), v); err != nil {
		return ErrDecryption
	}
	return nil
}

// HashWithSalt derives a PBKDF2-SHA512 hash of data. An empty salt is
// replaced by 32 fresh random bytes, hex encoded.
func (e *Envelope) HashWithSalt(data, salt string) (HashResult, error) {
	if salt == "" {
		raw := make([]byte, saltLength)
		if _, err := io.ReadFull(e.random, raw); err != nil {
			return HashResult{}, fmt.Errorf("envelope: salt: %w", err)
		}
		salt = hex.EncodeToString(raw)
	}
	return HashResult{Hash: hex.EncodeToString(e.derive(data, salt)), Salt: salt}, nil
}

// VerifyHash recomputes the hash and compares in constant time.
func (e *Envelope) VerifyHash(data, hash, salt string) bool {
	want, err := hex.DecodeString(hash)
	if err != nil || len(want) != hashLength || salt == "" {
		return false
	}
	return subtle.ConstantTimeCompare(want, e.derive(data, salt)) == 1
}

func (e *Envelope) derive(data, salt string) []byte {
	return pbkdf2.Key([]byte(data), []byte(salt), e.iterations, hashLength, sha512.New)
}

// Sign returns the hex HMAC-SHA256 of data.
func (e *Envelope) Sign(data string) string {
	return hex.EncodeToString(e.mac(data))
}

// VerifySignature checks a signature produced by Sign.
func (e *Envelope) VerifySignature(data, signature string) bool {
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	return hmac.Equal(got, e.mac(data))
}

func (e *Envelope) mac(data string) []byte {
	m := hmac.New(sha256.New, e.signingKey)
	m.Write([]byte(data))
	return m.Sum(nil)
}

// GenerateSecureToken returns length random bytes, base64url encoded without padding.
func (e *Envelope) GenerateSecureToken(length int) (string, error) {
	if length <= 0 {
		length = 32
	}
	raw := make([]byte, length)
	if _, err := io.ReadFull(e.random, raw); err != nil {
		return "", fmt.Errorf("envelope: token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
