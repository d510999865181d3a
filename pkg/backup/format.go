package backup

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/forest6511/seedvault/pkg/crypto"
)

// MagicNumber opens every backup file: "SVLT_BKP".
var MagicNumber = [8]byte{'S', 'V', 'L', 'T', '_', 'B', 'K', 'P'}

// FormatVersion is the current backup format version.
const FormatVersion = 1

const (
	maxHeaderLen  = 64 * 1024
	minSaltLength = 16
)

// EncryptionMode specifies how the backup is encrypted.
type EncryptionMode string

const (
	// EncryptionModePassword derives keys from a backup password.
	EncryptionModePassword EncryptionMode = "password"
	// EncryptionModeKey uses a separate 32-byte key file.
	EncryptionModeKey EncryptionMode = "key"
)

// KDFParams records how the password was stretched.
type KDFParams struct {
	Salt []byte `json:"salt"`
	crypto.KDFParams
}

// Header contains backup file metadata. It is authenticated by the trailing
// HMAC but not encrypted, so it must never hold secrets.
type Header struct {
	Version        int            `json:"version"`
	CreatedAt      time.Time      `json:"created_at"`
	WordCount      int            `json:"word_count"`
	EncryptionMode EncryptionMode `json:"encryption_mode"`
	KDFParams      *KDFParams     `json:"kdf_params,omitempty"` // nil in key mode
}

// Payload is the encrypted content.
type Payload struct {
	Mnemonic string `json:"mnemonic"`
}

// WriteHeader writes the magic number and length-prefixed header.
func WriteHeader(w io.Writer, header *Header) error {
	if _, err := w.Write(MagicNumber[:]); err != nil {
		return fmt.Errorf("backup: failed to write magic number: %w", err)
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("backup: failed to marshal header: %w", err)
	}

	if err := binary.Write(w, binary.BigEndian, uint32(len(headerJSON))); err != nil {
		return fmt.Errorf("backup: failed to write header length: %w", err)
	}
	if _, err := w.Write(headerJSON); err != nil {
		return fmt.Errorf("backup: failed to write header: %w", err)
	}
	return nil
}

// ReadHeader reads and validates the magic number and header.
func ReadHeader(r io.Reader) (*Header, error) {
	var magic [8]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, ErrInvalidMagic
	}
	if magic != MagicNumber {
		return nil, ErrInvalidMagic
	}

	var headerLen uint32
	if err := binary.Read(r, binary.BigEndian, &headerLen); err != nil {
		return nil, ErrTruncated
	}
	if headerLen > maxHeaderLen {
		return nil, fmt.Errorf("backup: header too large: %d bytes", headerLen)
	}

	headerJSON := make([]byte, headerLen)
	if _, err := io.ReadFull(r, headerJSON); err != nil {
		return nil, ErrTruncated
	}

	var header Header
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		return nil, fmt.Errorf("backup: failed to unmarshal header: %w", err)
	}

	if header.Version < 1 || header.Version > FormatVersion {
		return nil, fmt.Errorf("%w: got %d, max supported %d",
			ErrUnsupportedVersion, header.Version, FormatVersion)
	}
	switch header.EncryptionMode {
	case EncryptionModePassword:
		if header.KDFParams == nil {
			return nil, fmt.Errorf("backup: password mode without kdf_params")
		}
		if err := header.KDFParams.Validate(); err != nil {
			return nil, fmt.Errorf("backup: %w", err)
		}
		if len(header.KDFParams.Salt) < minSaltLength {
			return nil, fmt.Errorf("backup: salt too short: %d bytes", len(header.KDFParams.Salt))
		}
	case EncryptionModeKey:
	default:
		return nil, fmt.Errorf("backup: unknown encryption mode %q", header.EncryptionMode)
	}

	return &header, nil
}

// EncodePayload encodes the payload to JSON bytes.
func EncodePayload(payload *Payload) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("backup: failed to marshal payload: %w", err)
	}
	return data, nil
}

// DecodePayload decodes JSON bytes to a payload.
func DecodePayload(data []byte) (*Payload, error) {
	var payload Payload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return &payload, nil
}
