package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forest6511/seedvault/pkg/audit"
	"github.com/forest6511/seedvault/pkg/crypto"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func noEnv(string) (string, bool) { return "", false }

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 5*time.Minute, cfg.AutoLock)
	assert.Equal(t, 256, cfg.Strength)
	assert.Equal(t, crypto.DefaultKDFParams(), cfg.KDFParams())
	assert.Equal(t, string(crypto.SuiteAESGCM), cfg.Cipher)
	assert.True(t, cfg.Throttle)
	assert.True(t, cfg.Audit)
}

func TestLoadFileOverlays(t *testing.T) {
	path := writeConfig(t, `
vault_dir: /tmp/seeds
auto_lock: 90s
strength: 128
cipher: xchacha20-poly1305
kdf:
  algorithm: scrypt
log:
  level: debug
`)

	cfg := Default()
	require.NoError(t, cfg.LoadFile(path))
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "/tmp/seeds", cfg.VaultDir)
	assert.Equal(t, 90*time.Second, cfg.AutoLock)
	assert.Equal(t, 128, cfg.Strength)
	assert.Equal(t, crypto.ScryptKDFParams(), cfg.KDFParams())
	assert.Equal(t, "debug", cfg.Log.Level)

	// Untouched fields keep their defaults
	assert.Equal(t, "text", cfg.Log.Format)
	assert.True(t, cfg.Audit)
}

func TestLoadFileErrors(t *testing.T) {
	cfg := Default()

	err := cfg.LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	err = cfg.LoadFile(writeConfig(t, "auto_lock: [1, 2"))
	assert.ErrorContains(t, err, "failed to parse")
}

func TestLoadFileSecurity(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permissions")
	}

	path := writeConfig(t, "strength: 128\n")
	require.NoError(t, os.Chmod(path, 0666))
	assert.ErrorIs(t, Default().LoadFile(path), ErrInsecure)

	require.NoError(t, os.Chmod(path, 0644))
	assert.NoError(t, Default().LoadFile(path), "world-readable is fine")

	link := filepath.Join(t.TempDir(), "link.yaml")
	require.NoError(t, os.Symlink(path, link))
	assert.ErrorIs(t, Default().LoadFile(link), ErrSymlink)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvDir:      "/env/dir",
		EnvAutoLock: "120",
		EnvLogLevel: "error",
	}
	lookup := func(k string) (string, bool) { v, ok := env[k]; return v, ok }

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(lookup))
	assert.Equal(t, "/env/dir", cfg.VaultDir)
	assert.Equal(t, 2*time.Minute, cfg.AutoLock)
	assert.Equal(t, "error", cfg.Log.Level)

	env[EnvAutoLock] = "soon"
	assert.Error(t, Default().ApplyEnv(lookup))
}

func TestLoadLayering(t *testing.T) {
	path := writeConfig(t, "vault_dir: /from/file\nauto_lock: 1m\n")
	t.Setenv(EnvAutoLock, "off")
	t.Setenv(EnvDir, "")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/from/file", cfg.VaultDir, "empty env does not override")
	assert.Zero(t, cfg.AutoLock, "env beats file")
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv(EnvConfig, "")

	// Missing default file is fine
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 256, cfg.Strength)

	// Missing explicit file is not
	_, err = Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadFromEnvPath(t *testing.T) {
	path := writeConfig(t, "strength: 160\n")
	t.Setenv(EnvConfig, path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 160, cfg.Strength)
}

func TestParseAutoLock(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"0", 0, false},
		{"off", 0, false},
		{"300", 5 * time.Minute, false},
		{"90s", 90 * time.Second, false},
		{" 1h ", time.Hour, false},
		{"-5", 0, true},
		{"-1m", 0, true},
		{"later", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseAutoLock(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty dir", func(c *Config) { c.VaultDir = "" }},
		{"negative auto-lock", func(c *Config) { c.AutoLock = -time.Second }},
		{"bad strength", func(c *Config) { c.Strength = 100 }},
		{"unknown kdf", func(c *Config) { c.KDF.Algorithm = "pbkdf2" }},
		{"zero argon memory", func(c *Config) { c.KDF.MemoryKiB = 0 }},
		{"unknown cipher", func(c *Config) { c.Cipher = "des" }},
		{"unknown log level", func(c *Config) { c.Log.Level = "loud" }},
		{"unknown log format", func(c *Config) { c.Log.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestVaultOptions(t *testing.T) {
	cfg := Default()
	opts := cfg.VaultOptions(audit.SourceShell, nil)
	assert.Equal(t, crypto.SuiteAESGCM, opts.Suite)
	assert.Equal(t, audit.SourceShell, opts.AuditSource)
	assert.True(t, opts.Audit)
	assert.NotNil(t, opts.Throttle)

	cfg.Throttle = false
	assert.Nil(t, cfg.VaultOptions(audit.SourceCLI, nil).Throttle)
}

func TestMarshalRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.AutoLock = 45 * time.Second

	data, err := cfg.Marshal()
	require.NoError(t, err)
	assert.Contains(t, string(data), "auto_lock: 45s")

	path := writeConfig(t, string(data))
	got := &Config{}
	require.NoError(t, got.LoadFile(path))
	assert.Equal(t, cfg, got)
}
