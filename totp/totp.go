package totp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const secretBytes = 20

var (
	ErrEmptySecret          = errors.New("totp: empty secret")
	ErrInvalidSecret        = errors.New("totp: secret is not valid base32")
	ErrUnsupportedAlgorithm = errors.New("totp: unsupported algorithm")
)

var secretEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Config holds TOTP parameters. Zero values fall back to SHA1, 6 digits,
// a 30 second period, a skew of one step, and 10 backup codes.
type Config struct {
	Issuer          string
	Algorithm       string
	Digits          int
	Period          int
	Skew            int
	BackupCodeCount int
}

func (c *Config) applyDefaults() {
	if c.Issuer == "" {
		c.Issuer = "Auth Microservice"
	}
	if c.Algorithm == "" {
		c.Algorithm = "SHA1"
	}
	if c.Digits <= 0 {
		c.Digits = 6
	}
	if c.Period <= 0 {
		c.Period = 30
	}
	if c.Skew < 0 {
		c.Skew = 0
	}
	if c.BackupCodeCount <= 0 {
		c.BackupCodeCount = 10
	}
}

// Engine generates and verifies codes. It is safe for concurrent use.
type Engine struct {
	cfg    Config
	now    func() time.Time
	random io.Reader
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithRandom overrides the entropy source.
func WithRandom(r io.Reader) Option {
	return func(e *Engine) {
		if r != nil {
			e.random = r
		}
	}
}

// New creates an Engine. A zero Config.Skew means exact-step matching; use
// DefaultConfig for the standard one-step tolerance.
func New(cfg Config, opts ...Option) *Engine {
	cfg.applyDefaults()
	e := &Engine{cfg: cfg, now: time.Now, random: rand.Reader}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// DefaultConfig returns the authenticator-compatible defaults.
func DefaultConfig() Config {
	cfg := Config{Skew: 1}
	cfg.applyDefaults()
	return cfg
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// GenerateSecret returns 20 random bytes encoded as unpadded base32.
func (e *Engine) GenerateSecret() (string, error) {
	raw := make([]byte, secretBytes)
	if _, err := io.ReadFull(e.random, raw); err != nil {
		return "", fmt.Errorf("totp: secret: %w", err)
	}
	return secretEncoding.EncodeToString(raw), nil
}

// DecodeSecret parses a stored secret. Case and padding are tolerated.
func DecodeSecret(secret string) ([]byte, error) {
	s := strings.ToUpper(strings.TrimRight(strings.TrimSpace(secret), "="))
	if s == "" {
		return nil, ErrEmptySecret
	}
	raw, err := secretEncoding.DecodeString(s)
	if err != nil {
		return nil, ErrInvalidSecret
	}
	return raw, nil
}

// EnrollmentURI builds the otpauth URI. Parameters keep the order
// secret, issuer, algorithm, digits, period.
func EnrollmentURI(issuer, email, secret string, algorithm string, digits, period int) string {
	var b strings.Builder
	b.WriteString("otpauth://totp/")
	b.WriteString(escape(issuer))
	b.WriteByte(':')
	b.WriteString(escape(email))
	b.WriteString("?secret=")
	b.WriteString(escape(secret))
	b.WriteString("&issuer=")
	b.WriteString(escape(issuer))
	b.WriteString("&algorithm=")
	b.WriteString(strings.ToUpper(algorithm))
	b.WriteString("&digits=")
	b.WriteString(strconv.Itoa(digits))
	b.WriteString("&period=")
	b.WriteString(strconv.Itoa(period))
	return b.String()
}

func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// URI builds the enrollment URI for email with the engine's issuer.
func (e *Engine) URI(email, secret string) string {
	return EnrollmentURI(e.cfg.Issuer, email, secret, e.cfg.Algorithm, e.cfg.Digits, e.cfg.Period)
}

// Code returns the code for the time step containing t.
func (e *Engine) Code(secret string, t time.Time) (string, error) {
	raw, err := DecodeSecret(secret)
	if err != nil {
		return "", err
	}
	return hotpCode(raw, t.Unix()/int64(e.cfg.Period), e.cfg.Digits, e.cfg.Algorithm)
}

// Verify checks code against the current step and Skew steps either side.
func (e *Engine) Verify(secret, code string) (bool, error) {
	return e.VerifyAt(secret, code, e.now())
}

// VerifyAt is Verify evaluated at now.
func (e *Engine) VerifyAt(secret, code string, now time.Time) (bool, error) {
	_, ok, err := e.VerifyCounterAt(secret, code, now)
	return ok, err
}

// VerifyCounter is Verify that also returns the time-step counter the code
// matched. Callers use the counter to reject a second use of the same code.
func (e *Engine) VerifyCounter(secret, code string) (int64, bool, error) {
	return e.VerifyCounterAt(secret, code, e.now())
}

// VerifyCounterAt is VerifyCounter evaluated at now.
func (e *Engine) VerifyCounterAt(secret, code string, now time.Time) (int64, bool, error) {
	trimmed := strings.TrimSpace(code)
	if len(trimmed) != e.cfg.Digits || !isNumeric(trimmed) {
		return 0, false, nil
	}

	raw, err := DecodeSecret(secret)
	if err != nil {
		return 0, false, err
	}

	base := now.Unix() / int64(e.cfg.Period)
	var (
		matched int
		hit     int64
	)
	for step := -e.cfg.Skew; step <= e.cfg.Skew; step++ {
		counter := base + int64(step)
		if counter < 0 {
			continue
		}
		generated, err := hotpCode(raw, counter, e.cfg.Digits, e.cfg.Algorithm)
		if err != nil {
			return 0, false, err
		}
		// Every step is compared so timing does not reveal which one matched.
		eq := subtle.ConstantTimeCompare([]byte(generated), []byte(trimmed))
		if eq == 1 && matched == 0 {
			hit = counter
		}
		matched |= eq
	}
	if matched != 1 {
		return 0, false, nil
	}
	return hit, true, nil
}

// ReplayWindow is how long a used counter must be remembered: every step a
// code can still verify in.
func (e *Engine) ReplayWindow() time.Duration {
	return time.Duration(2*e.cfg.Skew+1) * time.Duration(e.cfg.Period) * time.Second
}

func hotpCode(secret []byte, counter int64, digits int, algorithm string) (string, error) {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))

	hf, err := hmacFunc(algorithm)
	if err != nil {
		return "", err
	}
	mac := hmac.New(hf, secret)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := (int(sum[offset])&0x7f)<<24 |
		(int(sum[offset+1])&0xff)<<16 |
		(int(sum[offset+2])&0xff)<<8 |
		(int(sum[offset+3]) & 0xff)

	mod := 1
	for i := 0; i < digits; i++ {
		mod *= 10
	}
	return fmt.Sprintf("%0*d", digits, bin%mod), nil
}

func hmacFunc(algorithm string) (func() hash.Hash, error) {
	switch strings.ToUpper(algorithm) {
	case "", "SHA1":
		return sha1.New, nil
	case "SHA256":
		return sha256.New, nil
	case "SHA512":
		return sha512.New, nil
	default:
		return nil, ErrUnsupportedAlgorithm
	}
}

func isNumeric(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}
