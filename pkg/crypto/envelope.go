package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ErrInvalidEnvelope indicates an envelope that cannot be parsed or whose
// header is malformed. It is distinct from ErrDecryptionFailed, which covers
// both a wrong password and modified authenticated data.
var ErrInvalidEnvelope = errors.New("crypto: invalid envelope")

// encMode encodes envelopes deterministically; the encoded header doubles as
// AEAD associated data, so the same header must always produce the same bytes.
var encMode cbor.EncMode

// decMode rejects duplicate map keys.
var decMode cbor.DecMode

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:        cbor.SortCanonical,
		IndefLength: cbor.IndefLengthForbidden,
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		IndefLength: cbor.IndefLengthForbidden,
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR decoder mode: %v", err))
	}
}

// Header holds everything needed to re-derive the key and open the ciphertext.
type Header struct {
	KDF   KDFParams `cbor:"kdf"`
	Salt  []byte    `cbor:"salt"`
	Suite Suite     `cbor:"cipher"`
	Nonce []byte    `cbor:"nonce"`
}

// Envelope is a self-describing password-encrypted payload.
type Envelope struct {
	Header     Header `cbor:"h"`
	Ciphertext []byte `cbor:"ct"`
}

// SealOptions selects the KDF and cipher suite for Seal.
// Zero values select DefaultKDFParams and SuiteAESGCM.
type SealOptions struct {
	KDF   KDFParams
	Suite Suite
}

// Seal derives a key from password under a fresh salt and encrypts plaintext
// with a fresh nonce. The header is bound to the ciphertext as associated data.
func Seal(password, plaintext []byte, opts SealOptions) (*Envelope, error) {
	params := opts.KDF
	if params.Algorithm == "" {
		params = DefaultKDFParams()
	}
	suite := opts.Suite
	if suite == "" {
		suite = SuiteAESGCM
	}

	salt, err := GenerateSalt()
	if err != nil {
		return nil, err
	}

	key, err := params.Derive(password, salt)
	if err != nil {
		return nil, err
	}
	defer SecureWipe(key)

	aead, err := newAEAD(suite, key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: failed to generate nonce: %w", err)
	}

	env := &Envelope{
		Header: Header{
			KDF:   params,
			Salt:  salt,
			Suite: suite,
			Nonce: nonce,
		},
	}

	aad, err := env.Header.bytes()
	if err != nil {
		return nil, err
	}
	env.Ciphertext = aead.Seal(nil, nonce, plaintext, aad)

	return env, nil
}

// Open re-derives the key from password and the stored header and decrypts.
// Returns ErrInvalidEnvelope for malformed headers and ErrDecryptionFailed
// when authentication fails.
func Open(password []byte, env *Envelope) ([]byte, error) {
	if err := env.validate(); err != nil {
		return nil, err
	}

	key, err := env.Header.KDF.Derive(password, env.Header.Salt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	defer SecureWipe(key)

	aad, err := env.Header.bytes()
	if err != nil {
		return nil, err
	}

	return OpenWith(env.Header.Suite, key, env.Ciphertext, env.Header.Nonce, aad)
}

// validate checks the header before any expensive key derivation runs.
func (e *Envelope) validate() error {
	if e == nil {
		return fmt.Errorf("%w: nil envelope", ErrInvalidEnvelope)
	}
	if err := e.Header.KDF.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if len(e.Header.Salt) < minSaltLength {
		return fmt.Errorf("%w: salt too short", ErrInvalidEnvelope)
	}

	var nonceLen int
	switch e.Header.Suite {
	case SuiteAESGCM:
		nonceLen = NonceLength
	case SuiteXChaCha20Poly1305:
		nonceLen = XNonceLength
	default:
		return fmt.Errorf("%w: cipher %q", ErrInvalidEnvelope, e.Header.Suite)
	}
	if len(e.Header.Nonce) != nonceLen {
		return fmt.Errorf("%w: nonce length %d", ErrInvalidEnvelope, len(e.Header.Nonce))
	}

	if len(e.Ciphertext) > maxCiphertextLen {
		return fmt.Errorf("%w: ciphertext too large", ErrInvalidEnvelope)
	}
	return nil
}

// bytes returns the canonical encoding of the header used as associated data.
func (h Header) bytes() ([]byte, error) {
	b, err := encMode.Marshal(h)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to encode header: %w", err)
	}
	return b, nil
}

// MarshalEnvelope encodes env to CBOR.
func MarshalEnvelope(env *Envelope) ([]byte, error) {
	b, err := encMode.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to encode envelope: %w", err)
	}
	return b, nil
}

// UnmarshalEnvelope decodes a CBOR envelope and checks its header.
func UnmarshalEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := decMode.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if err := env.validate(); err != nil {
		return nil, err
	}
	return &env, nil
}
