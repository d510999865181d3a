package vault

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/forest6511/seedvault/pkg/crypto"
)

func testContainer(t *testing.T) *Container {
	t.Helper()
	c, err := sealContainer([]byte(abandonAbout), "pw", crypto.SealOptions{KDF: fastKDF}, time.Now())
	if err != nil {
		t.Fatalf("sealContainer failed: %v", err)
	}
	return c
}

func TestFileStoreRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "v")
	s := NewFileStore(nil)

	if s.Exists(dir) {
		t.Fatal("expected no container yet")
	}
	if _, err := s.Read(dir); !errors.Is(err, ErrVaultNotFound) {
		t.Fatalf("expected ErrVaultNotFound, got %v", err)
	}

	c := testContainer(t)
	if err := s.Write(dir, c); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if !s.Exists(dir) {
		t.Fatal("expected container to exist")
	}

	got, err := s.Read(dir)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if got.Version != ContainerVersion {
		t.Errorf("expected version %d, got %d", ContainerVersion, got.Version)
	}
	if got.Encrypted != c.Encrypted {
		t.Error("encrypted payload changed on disk")
	}
	if !got.CreatedAt.Equal(c.CreatedAt) {
		t.Errorf("createdAt = %v, want %v", got.CreatedAt, c.CreatedAt)
	}
}

func TestFileStorePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permissions")
	}
	dir := filepath.Join(t.TempDir(), "v")
	s := NewFileStore(nil)
	if err := s.Write(dir, testContainer(t)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	info, err := os.Stat(s.Path(dir))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != FileMode {
		t.Errorf("container mode = %o, want %o", info.Mode().Perm(), FileMode)
	}

	info, err = os.Stat(dir)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != DirMode {
		t.Errorf("dir mode = %o, want %o", info.Mode().Perm(), DirMode)
	}
}

func TestFileStoreWriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(nil)
	for i := 0; i < 3; i++ {
		if err := s.Write(dir, testContainer(t)); err != nil {
			t.Fatalf("Write %d failed: %v", i, err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != ContainerFileName {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("expected only %s, found %v", ContainerFileName, names)
	}
}

func TestFileStoreDelete(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(nil)
	if err := s.Write(dir, testContainer(t)); err != nil {
		t.Fatal(err)
	}

	if err := s.Delete(dir); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if s.Exists(dir) {
		t.Error("container still exists")
	}
	if err := s.Delete(dir); err != nil {
		t.Errorf("deleting a missing container should succeed, got %v", err)
	}
}

func TestFileStoreReadOversized(t *testing.T) {
	dir := t.TempDir()
	big := make([]byte, maxContainerSize+10)
	for i := range big {
		big[i] = ' '
	}
	if err := os.WriteFile(filepath.Join(dir, ContainerFileName), big, FileMode); err != nil {
		t.Fatal(err)
	}

	if _, err := NewFileStore(nil).Read(dir); !errors.Is(err, ErrCorruptVault) {
		t.Errorf("expected ErrCorruptVault, got %v", err)
	}
}

func TestFileStoreReadDirectory(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("reading a directory behaves differently on windows")
	}
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, ContainerFileName), DirMode); err != nil {
		t.Fatal(err)
	}

	s := NewFileStore(nil)
	if s.Exists(dir) {
		t.Error("a directory is not a container")
	}

	_, err := s.Read(dir)
	var se *StorageError
	if !errors.As(err, &se) {
		t.Fatalf("expected *StorageError, got %T: %v", err, err)
	}
	if se.Op != "read" {
		t.Errorf("Op = %q, want read", se.Op)
	}
}

func TestStorageError(t *testing.T) {
	err := &StorageError{Op: "write", Path: "/x/vault.json", Err: os.ErrPermission}
	if !errors.Is(err, os.ErrPermission) {
		t.Error("StorageError must unwrap to its cause")
	}
	if err.Error() == "" {
		t.Error("empty error message")
	}
}
