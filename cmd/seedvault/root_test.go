package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/forest6511/seedvault/internal/config"
	"github.com/forest6511/seedvault/pkg/backup"
	"github.com/forest6511/seedvault/pkg/vault"
)

func TestConfigShowAppliesFlags(t *testing.T) {
	c := newCLI(t)

	out := c.mustRun("", "config", "show", "--auto-lock", "90s", "--log-level", "debug")
	for _, want := range []string{
		"vault_dir: " + c.dir,
		"auto_lock: 1m30s",
		"memory_kib: 1024",
		"level: debug",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in config show output:\n%s", want, out)
		}
	}

	if out := c.mustRun("", "config", "path"); strings.TrimSpace(out) != c.config {
		t.Errorf("config path = %q, want %q", strings.TrimSpace(out), c.config)
	}
}

func TestRootRejectsBadSettings(t *testing.T) {
	c := newCLI(t)

	if _, err := c.run("", "status", "--auto-lock=-5s"); err == nil {
		t.Error("expected error for negative auto-lock")
	}
	if _, err := c.run("", "status", "--log-level", "loud"); err == nil {
		t.Error("expected error for unknown log level")
	}

	if err := os.Chmod(c.config, 0666); err != nil {
		t.Fatal(err)
	}
	if _, err := c.run("", "status"); !errors.Is(err, config.ErrInsecure) {
		t.Errorf("expected ErrInsecure for world-writable config, got %v", err)
	}
}

func TestRootMissingExplicitConfig(t *testing.T) {
	c := newCLI(t)
	c.config = filepath.Join(t.TempDir(), "missing.yaml")

	if _, err := c.run("", "status"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}
}

func TestAuditSource(t *testing.T) {
	tests := map[string]string{
		"shell":      "shell",
		"mcp-server": "mcp",
		"status":     "cli",
		"create":     "cli",
	}
	for name, want := range tests {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil {
			t.Fatalf("command %q not found: %v", name, err)
		}
		if got := auditSource(cmd); got != want {
			t.Errorf("auditSource(%s) = %q, want %q", name, got, want)
		}
	}
}

func TestFriendlyError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{vault.ErrVaultNotFound, "no vault found"},
		{fmt.Errorf("wrapped: %w", vault.ErrIncorrectPassword), "incorrect password"},
		{fmt.Errorf("%w: please wait 30s", vault.ErrCooldownActive), "please wait 30s"},
		{vault.ErrCorruptVault, "damaged"},
		{vault.ErrInvalidMnemonic, "not a valid BIP39"},
		{vault.ErrInvalidStrength, "12, 15, 18, 21 or 24"},
		{vault.ErrVaultLocked, "locked"},
		{backup.ErrIntegrityFailed, "integrity check failed"},
		{&vault.StorageError{Op: "write", Path: "/x/vault.json", Err: os.ErrPermission}, "file system error"},
		{config.ErrInsecure, "refusing to use config file"},
		{errors.New("something else"), "something else"},
	}
	for _, tt := range tests {
		if got := friendlyError(tt.err); !strings.Contains(got, tt.want) {
			t.Errorf("friendlyError(%v) = %q, want it to contain %q", tt.err, got, tt.want)
		}
	}
}
