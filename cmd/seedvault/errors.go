package main

import (
	"errors"

	"github.com/forest6511/seedvault/internal/config"
	"github.com/forest6511/seedvault/pkg/backup"
	"github.com/forest6511/seedvault/pkg/vault"
)

// friendlyError turns library errors into messages for people.
func friendlyError(err error) string {
	var storageErr *vault.StorageError
	switch {
	case errors.Is(err, vault.ErrVaultNotFound):
		return "no vault found; run 'seedvault create' or 'seedvault import' first"
	case errors.Is(err, vault.ErrVaultAlreadyExists):
		return "a vault already exists in this directory; use --overwrite to replace it"
	case errors.Is(err, vault.ErrCooldownActive):
		return "too many failed attempts; " + err.Error()
	case errors.Is(err, vault.ErrIncorrectPassword):
		return "incorrect password"
	case errors.Is(err, vault.ErrCorruptVault):
		return "the vault file is damaged and cannot be read: " + err.Error()
	case errors.Is(err, vault.ErrInvalidMnemonic):
		return "not a valid BIP39 recovery phrase"
	case errors.Is(err, vault.ErrInvalidStrength):
		return "word count must be 12, 15, 18, 21 or 24"
	case errors.Is(err, vault.ErrVaultLocked):
		return "the vault is locked"
	case errors.Is(err, backup.ErrIntegrityFailed):
		return "backup integrity check failed: wrong password or key, or the file was modified"
	case errors.Is(err, config.ErrInsecure), errors.Is(err, config.ErrSymlink), errors.Is(err, config.ErrNotOwnedByUser):
		return "refusing to use config file: " + err.Error()
	case errors.As(err, &storageErr):
		return "file system error: " + storageErr.Error()
	}
	return err.Error()
}
