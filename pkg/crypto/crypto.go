// Package crypto provides cryptographic primitives for seedvault.
//
// This package implements password-based key derivation and authenticated
// encryption for the vault's seed phrase.
//
// # Security Features
//
//   - Argon2id key derivation (64MB memory, 3 iterations, 4 threads) by default
//   - scrypt key derivation as an alternative
//   - AES-256-GCM or XChaCha20-Poly1305 authenticated encryption
//   - Cryptographically secure random salt and nonce generation
//   - Secure memory wiping for sensitive data
//
// # Example Usage
//
//	// Derive a key from password
//	salt := make([]byte, SaltLength)
//	rand.Read(salt)
//	key := crypto.DeriveKey([]byte("password"), salt)
//
//	// Encrypt data
//	ciphertext, nonce, err := crypto.Encrypt(key, plaintext, nil)
//
//	// Decrypt data
//	plaintext, err := crypto.Decrypt(key, ciphertext, nonce, nil)
//
//	// Securely wipe sensitive data
//	crypto.SecureWipe(key)
//
// Seal and Open combine both steps into a self-describing Envelope that
// carries the salt, KDF parameters, cipher suite and nonce next to the
// ciphertext.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

// Argon2id parameters following OWASP recommendations.
const (
	// Argon2Memory is the memory cost in KiB (64MB).
	Argon2Memory = 64 * 1024

	// Argon2Time is the number of iterations.
	Argon2Time = 3

	// Argon2Threads is the degree of parallelism.
	Argon2Threads = 4

	// KeyLength is the length of encryption keys in bytes (256 bits).
	KeyLength = 32

	// NonceLength is the length of GCM nonces in bytes (96 bits).
	NonceLength = 12

	// XNonceLength is the length of XChaCha20-Poly1305 nonces in bytes (192 bits).
	XNonceLength = chacha20poly1305.NonceSizeX

	// SaltLength is the length of KDF salts in bytes (128 bits).
	SaltLength = 16
)

// scrypt parameters. N=2^15, r=8, p=1 is the interactive-login recommendation.
const (
	ScryptN = 1 << 15
	ScryptR = 8
	ScryptP = 1
)

// Upper bounds on KDF parameters accepted from stored data, so a tampered
// file cannot make a decrypt attempt allocate unbounded memory.
const (
	maxArgon2Memory  = 1024 * 1024 // 1 GiB
	maxArgon2Time    = 16
	maxScryptN       = 1 << 20
	maxScryptR       = 32
	maxScryptP       = 16
	minSaltLength    = 8
	maxCiphertextLen = 1 << 16
)

// KDF names a password-based key derivation function.
type KDF string

const (
	// KDFArgon2id selects Argon2id.
	KDFArgon2id KDF = "argon2id"
	// KDFScrypt selects scrypt.
	KDFScrypt KDF = "scrypt"
)

// Suite names an AEAD construction.
type Suite string

const (
	// SuiteAESGCM is AES-256-GCM with a 12-byte random nonce.
	SuiteAESGCM Suite = "aes-256-gcm"
	// SuiteXChaCha20Poly1305 is XChaCha20-Poly1305 with a 24-byte random nonce.
	SuiteXChaCha20Poly1305 Suite = "xchacha20-poly1305"
)

// Sentinel errors returned by crypto functions.
var (
	// ErrInvalidKeyLength indicates the key is not 32 bytes.
	ErrInvalidKeyLength = errors.New("crypto: invalid key length, must be 32 bytes")

	// ErrInvalidNonceLength indicates the nonce does not match the suite.
	ErrInvalidNonceLength = errors.New("crypto: invalid nonce length")

	// ErrDecryptionFailed indicates decryption or authentication tag verification failed.
	// A wrong key and modified ciphertext produce the same error.
	ErrDecryptionFailed = errors.New("crypto: decryption failed, authentication tag verification failed")

	// ErrCiphertextTooShort indicates the ciphertext is shorter than the AEAD tag.
	ErrCiphertextTooShort = errors.New("crypto: ciphertext too short")

	// ErrUnsupportedSuite indicates an unknown cipher suite name.
	ErrUnsupportedSuite = errors.New("crypto: unsupported cipher suite")

	// ErrUnsupportedKDF indicates an unknown key derivation function name.
	ErrUnsupportedKDF = errors.New("crypto: unsupported key derivation function")

	// ErrInvalidKDFParams indicates KDF parameters are missing or out of range.
	ErrInvalidKDFParams = errors.New("crypto: invalid key derivation parameters")
)

// KDFParams describes a key derivation function and its cost parameters.
// Only the fields relevant to Algorithm are used.
type KDFParams struct {
	Algorithm KDF `cbor:"alg" json:"algorithm"`

	// Argon2id
	Memory  uint32 `cbor:"m,omitempty" json:"memory,omitempty"`  // KiB
	Time    uint32 `cbor:"t,omitempty" json:"time,omitempty"`    // iterations
	Threads uint8  `cbor:"p,omitempty" json:"threads,omitempty"` // parallelism

	// scrypt
	N int `cbor:"n,omitempty" json:"n,omitempty"`
	R int `cbor:"r,omitempty" json:"r,omitempty"`
	P int `cbor:"sp,omitempty" json:"p,omitempty"`
}

// DefaultKDFParams returns the Argon2id parameters used by DeriveKey.
func DefaultKDFParams() KDFParams {
	return KDFParams{
		Algorithm: KDFArgon2id,
		Memory:    Argon2Memory,
		Time:      Argon2Time,
		Threads:   Argon2Threads,
	}
}

// ScryptKDFParams returns the default scrypt parameters.
func ScryptKDFParams() KDFParams {
	return KDFParams{Algorithm: KDFScrypt, N: ScryptN, R: ScryptR, P: ScryptP}
}

// Validate checks that the parameters are usable and within safe bounds.
func (p KDFParams) Validate() error {
	switch p.Algorithm {
	case KDFArgon2id:
		if p.Memory == 0 || p.Memory > maxArgon2Memory {
			return fmt.Errorf("%w: argon2id memory %d KiB", ErrInvalidKDFParams, p.Memory)
		}
		if p.Time == 0 || p.Time > maxArgon2Time {
			return fmt.Errorf("%w: argon2id time %d", ErrInvalidKDFParams, p.Time)
		}
		if p.Threads == 0 {
			return fmt.Errorf("%w: argon2id threads must be positive", ErrInvalidKDFParams)
		}
	case KDFScrypt:
		// N must be a power of two greater than 1
		if p.N <= 1 || p.N > maxScryptN || p.N&(p.N-1) != 0 {
			return fmt.Errorf("%w: scrypt N %d", ErrInvalidKDFParams, p.N)
		}
		if p.R <= 0 || p.R > maxScryptR || p.P <= 0 || p.P > maxScryptP {
			return fmt.Errorf("%w: scrypt r=%d p=%d", ErrInvalidKDFParams, p.R, p.P)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedKDF, p.Algorithm)
	}
	return nil
}

// Derive derives a KeyLength-byte key from password and salt.
// Same password, salt and parameters always yield the same key.
func (p KDFParams) Derive(password, salt []byte) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	switch p.Algorithm {
	case KDFScrypt:
		key, err := scrypt.Key(password, salt, p.N, p.R, p.P, KeyLength)
		if err != nil {
			return nil, fmt.Errorf("crypto: scrypt: %w", err)
		}
		return key, nil
	default:
		return argon2.IDKey(password, salt, p.Time, p.Memory, p.Threads, KeyLength), nil
	}
}

// DeriveKey derives a 256-bit encryption key from a password using Argon2id.
//
// The function uses OWASP-recommended parameters:
//   - Memory: 64 MB
//   - Iterations: 3
//   - Parallelism: 4 threads
//
// The salt should be at least 16 bytes of cryptographically secure random data.
// Returns a 32-byte key suitable for AES-256 encryption.
func DeriveKey(password, salt []byte) []byte {
	return argon2.IDKey(password, salt, Argon2Time, Argon2Memory, Argon2Threads, KeyLength)
}

// GenerateSalt returns SaltLength bytes from crypto/rand.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: failed to generate salt: %w", err)
	}
	return salt, nil
}

// newAEAD constructs the AEAD for suite. The key must be KeyLength bytes.
func newAEAD(suite Suite, key []byte) (cipher.AEAD, error) {
	if len(key) != KeyLength {
		return nil, ErrInvalidKeyLength
	}

	switch suite {
	case SuiteAESGCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("crypto: failed to create cipher: %w", err)
		}
		gcm, err := cipher.NewGCM(block)
		if err != nil {
			return nil, fmt.Errorf("crypto: failed to create GCM: %w", err)
		}
		return gcm, nil
	case SuiteXChaCha20Poly1305:
		aead, err := chacha20poly1305.NewX(key)
		if err != nil {
			return nil, fmt.Errorf("crypto: failed to create XChaCha20-Poly1305: %w", err)
		}
		return aead, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedSuite, suite)
	}
}

// SealWith encrypts plaintext under key using suite and a fresh random nonce.
// additionalData is authenticated but not encrypted and may be nil.
// The authentication tag is appended to the ciphertext.
func SealWith(suite Suite, key, plaintext, additionalData []byte) (ciphertext []byte, nonce []byte, err error) {
	aead, err := newAEAD(suite, key)
	if err != nil {
		return nil, nil, err
	}

	// Generate cryptographically secure random nonce
	nonce = make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("crypto: failed to generate nonce: %w", err)
	}

	ciphertext = aead.Seal(nil, nonce, plaintext, additionalData)
	return ciphertext, nonce, nil
}

// OpenWith decrypts ciphertext produced by SealWith. The tag is verified
// before any plaintext is returned; on failure ErrDecryptionFailed is
// returned regardless of whether the key or the data was wrong.
func OpenWith(suite Suite, key, ciphertext, nonce, additionalData []byte) ([]byte, error) {
	aead, err := newAEAD(suite, key)
	if err != nil {
		return nil, err
	}

	if len(nonce) != aead.NonceSize() {
		return nil, ErrInvalidNonceLength
	}

	// Verify ciphertext has minimum length (tag is 16 bytes for both suites)
	if len(ciphertext) < aead.Overhead() {
		return nil, ErrCiphertextTooShort
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, additionalData)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// Encrypt encrypts plaintext using AES-256-GCM authenticated encryption.
//
// The function generates a cryptographically secure random 12-byte nonce
// using crypto/rand. The authentication tag is appended to the ciphertext.
//
// Returns ErrInvalidKeyLength if key is not 32 bytes.
func Encrypt(key, plaintext, additionalData []byte) (ciphertext []byte, nonce []byte, err error) {
	return SealWith(SuiteAESGCM, key, plaintext, additionalData)
}

// Decrypt decrypts ciphertext using AES-256-GCM authenticated encryption.
//
// Returns ErrInvalidKeyLength, ErrInvalidNonceLength, ErrCiphertextTooShort,
// or ErrDecryptionFailed.
func Decrypt(key, ciphertext, nonce, additionalData []byte) ([]byte, error) {
	return OpenWith(SuiteAESGCM, key, ciphertext, nonce, additionalData)
}

// SecureWipe overwrites a byte slice with zeros in a way that prevents
// compiler optimization from removing the operation.
func SecureWipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
	// runtime.KeepAlive ensures the write operations are not optimized away
	// by the compiler since b is still "in use" after the loop.
	runtime.KeepAlive(b)
}
