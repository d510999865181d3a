package vault

import (
	"errors"
	"fmt"

	"github.com/forest6511/seedvault/pkg/mnemonic"
)

// Errors
var (
	ErrVaultAlreadyExists = errors.New("vault: vault already exists at this path")
	ErrVaultNotFound      = errors.New("vault: vault not found at this path")
	ErrInvalidMnemonic    = errors.New("vault: invalid mnemonic")
	ErrInvalidStrength    = mnemonic.ErrInvalidStrength
	ErrIncorrectPassword  = errors.New("vault: incorrect password")
	ErrCorruptVault       = errors.New("vault: vault is corrupted")
	ErrVaultLocked        = errors.New("vault: vault is locked")
	ErrCooldownActive     = errors.New("vault: cooldown period active")
	ErrClosed             = errors.New("vault: vault is closed")
)

// StorageError reports a filesystem failure while reading or writing vault
// files. It is never used for cryptographic failures.
type StorageError struct {
	Op   string // "read", "write", "delete", "mkdir"
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("vault: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
