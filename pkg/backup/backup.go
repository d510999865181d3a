package backup

// File layout:
//
//	magic "SVLT_BKP" (8) | header length (4, big-endian) | header JSON |
//	ciphertext length (4) | nonce || AES-256-GCM ciphertext | HMAC-SHA256 (32)
//
// The HMAC covers every byte before it. A fresh salt is generated for each
// password-mode backup; the vault container's salt is never reused.

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/forest6511/seedvault/pkg/audit"
	"github.com/forest6511/seedvault/pkg/crypto"
	"github.com/forest6511/seedvault/pkg/mnemonic"
	"github.com/forest6511/seedvault/pkg/vault"
)

// maxBackupSize bounds how much is read from a backup file.
const maxBackupSize = 1 << 20

// ConflictMode specifies how Restore treats an existing vault.
type ConflictMode int

const (
	// ConflictError fails with vault.ErrVaultAlreadyExists.
	ConflictError ConflictMode = iota
	// ConflictSkip leaves the existing vault alone.
	ConflictSkip
	// ConflictOverwrite replaces the existing vault.
	ConflictOverwrite
)

// BackupOptions configures the backup operation.
type BackupOptions struct {
	// Output is the destination writer for the backup.
	Output io.Writer
	// Password protects the backup. Independent of the vault password.
	Password []byte
	// KeyFile path for a 32-byte encryption key (overrides Password).
	KeyFile string
	// KDF stretches Password; the zero value selects crypto.DefaultKDFParams.
	KDF crypto.KDFParams
}

// RestoreOptions configures the restore operation.
type RestoreOptions struct {
	// Dir is the target vault directory.
	Dir string
	// VaultPassword encrypts the restored vault container.
	VaultPassword string
	// OnConflict specifies how to handle an existing vault.
	OnConflict ConflictMode
	// DryRun decrypts and validates without writing anything.
	DryRun bool
	// Password for decryption.
	Password []byte
	// KeyFile path for decryption key (overrides Password).
	KeyFile string
}

// RestoreResult contains the result of a restore operation.
type RestoreResult struct {
	WordCount int
	Restored  bool
	Skipped   bool // existing vault kept under ConflictSkip
	DryRun    bool
}

// VerifyResult contains the result of a verify operation.
type VerifyResult struct {
	// Valid indicates the backup passed all integrity checks.
	Valid          bool
	Version        int
	CreatedAt      time.Time
	WordCount      int
	EncryptionMode EncryptionMode
	// Error is set if verification failed.
	Error string
}

// Write encrypts phrase into a backup and writes it to opts.Output.
func Write(phrase string, opts BackupOptions) (*Header, error) {
	if opts.Output == nil {
		return nil, fmt.Errorf("backup: output writer is required")
	}
	if !mnemonic.Validate(phrase) {
		return nil, ErrInvalidPayload
	}
	phrase = mnemonic.Normalize(phrase)

	header := &Header{
		Version:   FormatVersion,
		CreatedAt: time.Now().UTC(),
		WordCount: len(strings.Fields(phrase)),
	}

	var encKey, macKey []byte
	switch {
	case opts.KeyFile != "":
		key, err := ReadKeyFile(opts.KeyFile)
		if err != nil {
			return nil, err
		}
		encKey, macKey, err = splitKeys(key)
		crypto.SecureWipe(key)
		if err != nil {
			return nil, err
		}
		header.EncryptionMode = EncryptionModeKey

	case opts.Password != nil:
		params := opts.KDF
		if params.Algorithm == "" {
			params = crypto.DefaultKDFParams()
		}
		if err := params.Validate(); err != nil {
			return nil, fmt.Errorf("backup: %w", err)
		}
		salt, err := GenerateSalt()
		if err != nil {
			return nil, err
		}
		encKey, macKey, err = DeriveBackupKeys(opts.Password, salt, params)
		if err != nil {
			return nil, err
		}
		header.EncryptionMode = EncryptionModePassword
		header.KDFParams = &KDFParams{Salt: salt, KDFParams: params}

	default:
		return nil, ErrNoKey
	}
	defer crypto.SecureWipe(encKey)
	defer crypto.SecureWipe(macKey)

	payloadBytes, err := EncodePayload(&Payload{Mnemonic: phrase})
	if err != nil {
		return nil, err
	}
	defer crypto.SecureWipe(payloadBytes)

	ciphertext, err := EncryptPayload(payloadBytes, encKey)
	if err != nil {
		return nil, err
	}

	// Assemble in memory so the HMAC covers exactly what is written
	var buf bytes.Buffer
	if err := WriteHeader(&buf, header); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, uint32(len(ciphertext))); err != nil {
		return nil, err
	}
	buf.Write(ciphertext)
	buf.Write(ComputeHMAC(buf.Bytes(), macKey))

	if _, err := opts.Output.Write(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("backup: failed to write backup: %w", err)
	}
	return header, nil
}

// Read verifies and decrypts a backup, returning the normalised phrase.
// keyFile, when set, takes precedence over password.
func Read(data, password []byte, keyFile string) (string, *Header, error) {
	if len(data) < len(MagicNumber)+4+HMACLength {
		if len(data) >= len(MagicNumber) && !bytes.HasPrefix(data, MagicNumber[:]) {
			return "", nil, ErrInvalidMagic
		}
		return "", nil, ErrTruncated
	}

	reader := bytes.NewReader(data)
	header, err := ReadHeader(reader)
	if err != nil {
		return "", nil, err
	}
	headerEnd := len(data) - reader.Len()

	var ciphertextLen uint32
	if err := binary.Read(reader, binary.BigEndian, &ciphertextLen); err != nil {
		return "", nil, ErrTruncated
	}
	if uint64(reader.Len()) != uint64(ciphertextLen)+HMACLength {
		return "", nil, ErrTruncated
	}
	signedEnd := headerEnd + 4 + int(ciphertextLen)
	ciphertext := data[headerEnd+4 : signedEnd]
	storedHMAC := data[signedEnd:]

	encKey, macKey, err := readKeys(header, password, keyFile)
	if err != nil {
		return "", nil, err
	}
	defer crypto.SecureWipe(encKey)
	defer crypto.SecureWipe(macKey)

	if !VerifyHMAC(data[:signedEnd], storedHMAC, macKey) {
		return "", nil, ErrIntegrityFailed
	}

	plaintext, err := DecryptPayload(ciphertext, encKey)
	if err != nil {
		return "", nil, err
	}
	defer crypto.SecureWipe(plaintext)

	payload, err := DecodePayload(plaintext)
	if err != nil {
		return "", nil, err
	}
	if !mnemonic.Validate(payload.Mnemonic) {
		return "", nil, ErrInvalidPayload
	}
	phrase := mnemonic.Normalize(payload.Mnemonic)
	if n := len(strings.Fields(phrase)); n != header.WordCount {
		return "", nil, fmt.Errorf("%w: header declares %d words, payload has %d",
			ErrInvalidPayload, header.WordCount, n)
	}
	return phrase, header, nil
}

func readKeys(header *Header, password []byte, keyFile string) (encKey, macKey []byte, err error) {
	if keyFile != "" {
		if header.EncryptionMode != EncryptionModeKey {
			return nil, nil, fmt.Errorf("backup: file is password-protected, not key-file protected")
		}
		key, err := ReadKeyFile(keyFile)
		if err != nil {
			return nil, nil, err
		}
		defer crypto.SecureWipe(key)
		return splitKeys(key)
	}

	switch header.EncryptionMode {
	case EncryptionModePassword:
		if password == nil {
			return nil, nil, ErrEmptyPassword
		}
		return DeriveBackupKeys(password, header.KDFParams.Salt, header.KDFParams.KDFParams)
	case EncryptionModeKey:
		return nil, nil, fmt.Errorf("backup: file requires a key file")
	default:
		return nil, nil, fmt.Errorf("backup: cannot determine decryption key")
	}
}

// Backup writes the mnemonic held by the unlocked vault v.
// Returns vault.ErrVaultLocked when v is locked.
func Backup(v *vault.Vault, opts BackupOptions) (*Header, error) {
	phrase, err := v.ExportMnemonic()
	if err != nil {
		return nil, err
	}

	header, err := Write(phrase, opts)
	if err != nil {
		return nil, err
	}

	if err := v.LogAudit(audit.OpBackupCreate, map[string]string{
		"mode": string(header.EncryptionMode),
	}); err != nil {
		return header, fmt.Errorf("backup: written, but audit record failed: %w", err)
	}
	return header, nil
}

// Restore decrypts the backup at backupPath and imports it into opts.Dir
// under opts.VaultPassword. The runtime lock state of v does not change.
func Restore(v *vault.Vault, backupPath string, opts RestoreOptions) (*RestoreResult, error) {
	data, err := readBackupFile(backupPath)
	if err != nil {
		return nil, err
	}

	phrase, header, err := Read(data, opts.Password, opts.KeyFile)
	if err != nil {
		return nil, err
	}

	result := &RestoreResult{WordCount: header.WordCount, DryRun: opts.DryRun}
	if opts.DryRun {
		return result, nil
	}

	overwrite := false
	if v.Exists(opts.Dir) {
		switch opts.OnConflict {
		case ConflictSkip:
			result.Skipped = true
			return result, nil
		case ConflictOverwrite:
			overwrite = true
		default:
			return nil, vault.ErrVaultAlreadyExists
		}
	}

	if err := v.Import(opts.Dir, opts.VaultPassword, phrase, overwrite); err != nil {
		return nil, err
	}
	result.Restored = true
	return result, nil
}

// Verify checks backup integrity without restoring. Problems with the
// backup itself are reported in the result, not as an error.
func Verify(backupPath string, password []byte, keyFile string) (*VerifyResult, error) {
	data, err := readBackupFile(backupPath)
	if err != nil {
		return &VerifyResult{Valid: false, Error: err.Error()}, nil
	}

	_, header, err := Read(data, password, keyFile)
	if err != nil {
		return &VerifyResult{Valid: false, Error: err.Error()}, nil
	}

	return &VerifyResult{
		Valid:          true,
		Version:        header.Version,
		CreatedAt:      header.CreatedAt,
		WordCount:      header.WordCount,
		EncryptionMode: header.EncryptionMode,
	}, nil
}

func readBackupFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("backup: failed to read backup file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxBackupSize+1))
	if err != nil {
		return nil, fmt.Errorf("backup: failed to read backup file: %w", err)
	}
	if len(data) > maxBackupSize {
		return nil, fmt.Errorf("backup: file exceeds %d bytes", maxBackupSize)
	}
	return data, nil
}
