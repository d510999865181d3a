package crypto

import (
	"bytes"
	"errors"
	"testing"
)

// fastKDF keeps tests quick; production parameters are covered by TestDeriveKey.
var fastKDF = KDFParams{Algorithm: KDFArgon2id, Memory: 1024, Time: 1, Threads: 1}

func TestSealOpenRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		opts SealOptions
	}{
		{"argon2id aes-gcm", SealOptions{KDF: fastKDF}},
		{"argon2id xchacha", SealOptions{KDF: fastKDF, Suite: SuiteXChaCha20Poly1305}},
		{"scrypt aes-gcm", SealOptions{KDF: KDFParams{Algorithm: KDFScrypt, N: 1 << 10, R: 8, P: 1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := Seal([]byte("pw1"), []byte(testPhrase), tt.opts)
			if err != nil {
				t.Fatalf("Seal() error = %v", err)
			}

			data, err := MarshalEnvelope(env)
			if err != nil {
				t.Fatalf("MarshalEnvelope() error = %v", err)
			}
			decoded, err := UnmarshalEnvelope(data)
			if err != nil {
				t.Fatalf("UnmarshalEnvelope() error = %v", err)
			}

			plaintext, err := Open([]byte("pw1"), decoded)
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			if string(plaintext) != testPhrase {
				t.Errorf("Open() = %q, want %q", plaintext, testPhrase)
			}

			if _, err := Open([]byte("pw2"), decoded); err != ErrDecryptionFailed {
				t.Errorf("Open() with wrong password error = %v, want %v", err, ErrDecryptionFailed)
			}
		})
	}
}

func TestSealDefaults(t *testing.T) {
	// Only inspect the header; opening with default params is slow.
	env, err := Seal([]byte("pw"), []byte(testPhrase), SealOptions{KDF: fastKDF})
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	if env.Header.Suite != SuiteAESGCM {
		t.Errorf("default suite = %q, want %q", env.Header.Suite, SuiteAESGCM)
	}
	if len(env.Header.Salt) != SaltLength {
		t.Errorf("salt length = %d, want %d", len(env.Header.Salt), SaltLength)
	}
	if len(env.Header.Nonce) != NonceLength {
		t.Errorf("nonce length = %d, want %d", len(env.Header.Nonce), NonceLength)
	}

	other, err := Seal([]byte("pw"), []byte(testPhrase), SealOptions{KDF: fastKDF})
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	if bytes.Equal(env.Header.Salt, other.Header.Salt) {
		t.Error("two seals should use different salts")
	}
}

// TestOpenDetectsHeaderTampering checks every header field is authenticated.
func TestOpenDetectsHeaderTampering(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(e *Envelope)
	}{
		{"salt", func(e *Envelope) { e.Header.Salt[0] ^= 0x01 }},
		{"nonce", func(e *Envelope) { e.Header.Nonce[0] ^= 0x01 }},
		{"kdf time", func(e *Envelope) { e.Header.KDF.Time = 2 }},
		{"kdf memory", func(e *Envelope) { e.Header.KDF.Memory = 2048 }},
		{"ciphertext", func(e *Envelope) { e.Ciphertext[len(e.Ciphertext)-1] ^= 0x01 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := Seal([]byte("pw"), []byte(testPhrase), SealOptions{KDF: fastKDF})
			if err != nil {
				t.Fatalf("Seal() error = %v", err)
			}
			tt.mutate(env)
			if _, err := Open([]byte("pw"), env); err != ErrDecryptionFailed {
				t.Errorf("Open() error = %v, want %v", err, ErrDecryptionFailed)
			}
		})
	}
}

func TestOpenRejectsMalformedHeader(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(e *Envelope)
	}{
		{"unknown suite", func(e *Envelope) { e.Header.Suite = "des" }},
		{"short nonce", func(e *Envelope) { e.Header.Nonce = e.Header.Nonce[:4] }},
		{"short salt", func(e *Envelope) { e.Header.Salt = e.Header.Salt[:2] }},
		{"oversized memory", func(e *Envelope) { e.Header.KDF.Memory = 8 << 20 }},
		{"unknown kdf", func(e *Envelope) { e.Header.KDF.Algorithm = "md5" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := Seal([]byte("pw"), []byte(testPhrase), SealOptions{KDF: fastKDF})
			if err != nil {
				t.Fatalf("Seal() error = %v", err)
			}
			tt.mutate(env)
			if _, err := Open([]byte("pw"), env); !errors.Is(err, ErrInvalidEnvelope) {
				t.Errorf("Open() error = %v, want %v", err, ErrInvalidEnvelope)
			}
		})
	}
}

func TestUnmarshalEnvelopeGarbage(t *testing.T) {
	for _, data := range [][]byte{nil, []byte("not cbor"), {0xa0}} {
		if _, err := UnmarshalEnvelope(data); !errors.Is(err, ErrInvalidEnvelope) {
			t.Errorf("UnmarshalEnvelope(%x) error = %v, want %v", data, err, ErrInvalidEnvelope)
		}
	}
}

func TestMarshalEnvelopeDeterministic(t *testing.T) {
	env, err := Seal([]byte("pw"), []byte(testPhrase), SealOptions{KDF: fastKDF})
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	a, err := MarshalEnvelope(env)
	if err != nil {
		t.Fatalf("MarshalEnvelope() error = %v", err)
	}
	decoded, err := UnmarshalEnvelope(a)
	if err != nil {
		t.Fatalf("UnmarshalEnvelope() error = %v", err)
	}
	b, err := MarshalEnvelope(decoded)
	if err != nil {
		t.Fatalf("MarshalEnvelope() error = %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Error("re-encoding a decoded envelope should give identical bytes")
	}
}
