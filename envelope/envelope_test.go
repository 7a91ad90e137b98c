package envelope

import (
	"errors"
	"strings"
	"testing"
)

func newTestEnvelope(t *testing.T, opts ...Option) *Envelope {
	t.Helper()
	env, err := New("test-encryption-key", opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return env
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	for _, alg := range []Algorithm{AESGCM, ChaCha20Poly1305} {
		env := newTestEnvelope(t, WithAlgorithm(alg))
		for _, in := range []string{"", "hello", "user@example.com", `{"sub":"1"}`, strings.Repeat("x", 4096)} {
			blob, err := env.Encrypt(in)
			if err != nil {
				t.Fatalf("%s encrypt: %v", alg, err)
			}
			if strings.Count(blob, ":") != 2 {
				t.Fatalf("%s: blob %q must have two separators", alg, blob)
			}
			out, err := env.Decrypt(blob)
			if err != nil {
				t.Fatalf("%s decrypt: %v", alg, err)
			}
			if out != in {
				t.Fatalf("%s: round trip mismatch", alg)
			}
		}
	}
}

func TestEncryptUsesFreshIV(t *testing.T) {
	env := newTestEnvelope(t)
	a, _ := env.Encrypt("same")
	b, _ := env.Encrypt("same")
	if a == b {
		t.Fatal("two encryptions of the same plaintext must differ")
	}
	if len(strings.Split(a, ":")[0]) != 2*aesIVSize {
		t.Fatalf("expected %d-byte iv", aesIVSize)
	}
}

func TestDecryptRejectsTampering(t *testing.T) {
	env := newTestEnvelope(t)
	blob, _ := env.Encrypt("secret payload")
	parts := strings.Split(blob, ":")

	flip := func(s string) string {
		b := []byte(s)
		if b[0] == '0' {
			b[0] = '1'
		} else {
			b[0] = '0'
		}
		return string(b)
	}

	cases := map[string]string{
		"too few parts":   parts[0] + ":" + parts[1],
		"too many parts":  blob + ":00",
		"bad hex":         "zz:" + parts[1] + ":" + parts[2],
		"short iv":        "00:" + parts[1] + ":" + parts[2],
		"tag flipped":     parts[0] + ":" + flip(parts[1]) + ":" + parts[2],
		"payload flipped": parts[0] + ":" + parts[1] + ":" + flip(parts[2]),
		"empty":           "",
	}
	for name, in := range cases {
		if _, err := env.Decrypt(in); !errors.Is(err, ErrDecryption) {
			t.Fatalf("%s: expected ErrDecryption, got %v", name, err)
		}
	}
}

func TestDecryptRejectsForeignAssociatedData(t *testing.T) {
	a := newTestEnvelope(t)
	b := newTestEnvelope(t, WithAssociatedData("another-service"))
	blob, _ := a.Encrypt("x")
	if _, err := b.Decrypt(blob); !errors.Is(err, ErrDecryption) {
		t.Fatalf("expected ErrDecryption, got %v", err)
	}
}

func TestDecryptRejectsWrongKey(t *testing.T) {
	a := newTestEnvelope(t)
	b, _ := New("other-key")
	blob, _ := a.Encrypt("x")
	if _, err := b.Decrypt(blob); !errors.Is(err, ErrDecryption) {
		t.Fatalf("expected ErrDecryption, got %v", err)
	}
}

func TestHashWithSaltDeterministic(t *testing.T) {
	env := newTestEnvelope(t)
	first, err := env.HashWithSalt("data", "")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if len(first.Salt) != 2*saltLength || len(first.Hash) != 2*hashLength {
		t.Fatalf("unexpected sizes salt=%d hash=%d", len(first.Salt), len(first.Hash))
	}
	again, _ := env.HashWithSalt("data", first.Salt)
	if again.Hash != first.Hash {
		t.Fatal("same input and salt must reproduce the hash")
	}

	if !env.VerifyHash("data", first.Hash, first.Salt) {
		t.Fatal("verify should succeed")
	}
	if env.VerifyHash("datA", first.Hash, first.Salt) {
		t.Fatal("changed data must fail")
	}
	tampered := []byte(first.Hash)
	if tampered[0] == 'a' {
		tampered[0] = 'b'
	} else {
		tampered[0] = 'a'
	}
	if env.VerifyHash("data", string(tampered), first.Salt) {
		t.Fatal("changed hash must fail")
	}
	other, _ := env.HashWithSalt("data", "")
	if env.VerifyHash("data", first.Hash, other.Salt) {
		t.Fatal("changed salt must fail")
	}
	if env.VerifyHash("data", "not-hex", first.Salt) {
		t.Fatal("malformed hash must fail")
	}
}

func TestSignAndVerify(t *testing.T) {
	for _, sep := range []bool{false, true} {
		var env *Envelope
		if sep {
			env = newTestEnvelope(t, WithKeySeparation())
		} else {
			env = newTestEnvelope(t)
		}
		sig := env.Sign("payload")
		if !env.VerifySignature("payload", sig) {
			t.Fatal("signature should verify")
		}
		if env.VerifySignature("payload!", sig) {
			t.Fatal("altered data must fail")
		}
		if env.VerifySignature("payload", "zz") {
			t.Fatal("malformed signature must fail")
		}
	}
}

func TestKeySeparationChangesSignature(t *testing.T) {
	plain := newTestEnvelope(t)
	sep := newTestEnvelope(t, WithKeySeparation())
	if plain.Sign("x") == sep.Sign("x") {
		t.Fatal("separated keys should produce a different signature")
	}
}

func TestGenerateSecureToken(t *testing.T) {
	env := newTestEnvelope(t)
	tok, err := env.GenerateSecureToken(32)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if len(tok) != 43 {
		t.Fatalf("expected 43 url-safe chars, got %d", len(tok))
	}
	if strings.ContainsAny(tok, "+/=") {
		t.Fatalf("token %q is not url safe", tok)
	}
	other, _ := env.GenerateSecureToken(32)
	if tok == other {
		t.Fatal("tokens must be unique")
	}
}

func TestJSONRoundTrip(t *testing.T) {
	env := newTestEnvelope(t)
	type payload struct {
		Sub  string `json:"sub"`
		Type string `json:"type"`
	}
	blob, err := env.EncryptJSON(payload{Sub: "u1", Type: "access"})
	if err != nil {
		t.Fatalf("encrypt json: %v", err)
	}
	var out payload
	if err := env.DecryptJSON(blob, &out); err != nil {
		t.Fatalf("decrypt json: %v", err)
	}
	if out.Sub != "u1" || out.Type != "access" {
		t.Fatalf("unexpected payload %+v", out)
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	if _, err := New(""); !errors.Is(err, ErrEmptySecret) {
		t.Fatalf("expected ErrEmptySecret, got %v", err)
	}
	if _, err := New("k", WithAlgorithm("rot13")); !errors.Is(err, ErrUnsupportedAlgorithm) {
		t.Fatalf("expected ErrUnsupportedAlgorithm, got %v", err)
	}
}

func FuzzDecrypt(f *testing.F) {
	env, err := New("fuzz-key")
	if err != nil {
		f.Fatalf("New: %v", err)
	}
	valid, _ := env.Encrypt("seed")
	f.Add(valid)
	f.Add("::")
	f.Add("00:00:00")
	f.Add("a:b:c:d")

	f.Fuzz(func(t *testing.T, blob string) {
		out, err := env.Decrypt(blob)
		if err != nil {
			if !errors.Is(err, ErrDecryption) {
				t.Fatalf("unexpected error type %v", err)
			}
			return
		}
		if blob == valid && out != "seed" {
			t.Fatalf("seed decrypted to %q", out)
		}
	})
}
