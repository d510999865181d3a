package vault

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/forest6511/seedvault/internal/diskspace"
	"github.com/forest6511/seedvault/pkg/crypto"
)

// Constants
const (
	ContainerFileName = "vault.json"
	ContainerVersion  = 1
	FileMode          = 0600 // Owner read/write only
	DirMode           = 0700 // Owner read/write/execute only

	maxContainerSize = 1 << 20
)

// Container is the on-disk vault record.
type Container struct {
	Version   int       `json:"version"`
	Encrypted string    `json:"encrypted"` // base64 CBOR envelope
	CreatedAt time.Time `json:"createdAt"`
}

// sealContainer encrypts phrase under password into a new container.
func sealContainer(phrase []byte, password string, opts crypto.SealOptions, now time.Time) (*Container, error) {
	env, err := crypto.Seal([]byte(password), phrase, opts)
	if err != nil {
		return nil, fmt.Errorf("vault: failed to encrypt mnemonic: %w", err)
	}
	raw, err := crypto.MarshalEnvelope(env)
	if err != nil {
		return nil, err
	}
	return &Container{
		Version:   ContainerVersion,
		Encrypted: base64.StdEncoding.EncodeToString(raw),
		CreatedAt: now.UTC(),
	}, nil
}

// envelope decodes the encrypted payload.
func (c *Container) envelope() (*crypto.Envelope, error) {
	raw, err := base64.StdEncoding.DecodeString(c.Encrypted)
	if err != nil {
		return nil, fmt.Errorf("%w: payload is not base64", ErrCorruptVault)
	}
	env, err := crypto.UnmarshalEnvelope(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptVault, err)
	}
	return env, nil
}

// Store persists one container per directory.
type Store interface {
	// Path returns the container file location inside dir.
	Path(dir string) string
	// Exists reports whether a readable container is present.
	Exists(dir string) bool
	// Read loads the container. Returns ErrVaultNotFound, ErrCorruptVault
	// or *StorageError.
	Read(dir string) (*Container, error)
	// Write atomically replaces the container, creating dir if needed.
	Write(dir string, c *Container) error
	// Delete removes the container. Deleting a missing container succeeds.
	Delete(dir string) error
}

// FileStore keeps containers as vault.json files.
type FileStore struct {
	log *slog.Logger
}

// NewFileStore returns a FileStore. A nil logger discards output.
func NewFileStore(logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &FileStore{log: logger}
}

// Path returns dir/vault.json.
func (s *FileStore) Path(dir string) string {
	return filepath.Join(dir, ContainerFileName)
}

// Exists reports whether the container file is present and readable.
func (s *FileStore) Exists(dir string) bool {
	f, err := os.Open(s.Path(dir))
	if err != nil {
		return false
	}
	defer f.Close()
	info, err := f.Stat()
	return err == nil && info.Mode().IsRegular()
}

// Read loads and parses the container.
func (s *FileStore) Read(dir string) (*Container, error) {
	path := s.Path(dir)
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrVaultNotFound
		}
		return nil, &StorageError{Op: "read", Path: path, Err: err}
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxContainerSize+1))
	if err != nil {
		return nil, &StorageError{Op: "read", Path: path, Err: err}
	}
	if len(data) > maxContainerSize {
		return nil, fmt.Errorf("%w: container exceeds %d bytes", ErrCorruptVault, maxContainerSize)
	}

	var c Container
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptVault, err)
	}
	if c.Version != ContainerVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptVault, c.Version)
	}
	if c.Encrypted == "" {
		return nil, fmt.Errorf("%w: missing encrypted payload", ErrCorruptVault)
	}
	return &c, nil
}

// Write creates dir if missing and atomically replaces the container.
func (s *FileStore) Write(dir string, c *Container) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("vault: failed to marshal container: %w", err)
	}

	if err := os.MkdirAll(dir, DirMode); err != nil {
		return &StorageError{Op: "mkdir", Path: dir, Err: err}
	}

	path := s.Path(dir)
	info, err := diskspace.Require(dir, len(data))
	switch {
	case errors.Is(err, diskspace.ErrInsufficient):
		return &StorageError{Op: "write", Path: path, Err: err}
	case err != nil:
		s.log.Warn("failed to check disk space", "dir", dir, "error", err)
	case info.Low():
		s.log.Warn("disk is nearly full", "dir", dir, "used_pct", info.UsedPct)
	}

	if err := writeFileAtomic(path, data, FileMode); err != nil {
		return &StorageError{Op: "write", Path: path, Err: err}
	}
	return nil
}

// Delete removes the container file.
func (s *FileStore) Delete(dir string) error {
	path := s.Path(dir)
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &StorageError{Op: "delete", Path: path, Err: err}
	}
	return nil
}

// writeFileAtomic writes data to a temp file in the target directory and
// renames it into place, so readers see either the old or the new file.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	syncDir(dir)
	return nil
}
