// Package backup writes and reads portable encrypted mnemonic backups.
package backup

import "errors"

// Backup/Restore errors
var (
	// ErrInvalidMagic indicates the backup file has an invalid magic number.
	ErrInvalidMagic = errors.New("backup: invalid file, magic number mismatch")

	// ErrUnsupportedVersion indicates the backup format version is not supported.
	ErrUnsupportedVersion = errors.New("backup: unsupported format version")

	// ErrTruncated indicates the file ends before the declared lengths.
	ErrTruncated = errors.New("backup: file truncated")

	// ErrIntegrityFailed indicates the HMAC verification failed.
	ErrIntegrityFailed = errors.New("backup: integrity check failed, HMAC mismatch")

	// ErrDecryptionFailed indicates decryption failed due to invalid key or corruption.
	ErrDecryptionFailed = errors.New("backup: decryption failed")

	// ErrInvalidPayload indicates the decrypted content is not a valid mnemonic.
	ErrInvalidPayload = errors.New("backup: payload is not a valid mnemonic")

	// ErrInvalidKeyFile indicates the key file is invalid or wrong size.
	ErrInvalidKeyFile = errors.New("backup: invalid key file, must be exactly 32 bytes")

	// ErrEmptyPassword indicates an empty password was provided.
	ErrEmptyPassword = errors.New("backup: password cannot be empty")

	// ErrNoKey indicates neither a password nor a key file was supplied.
	ErrNoKey = errors.New("backup: password or key file is required")
)
