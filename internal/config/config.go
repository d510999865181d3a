// Package config loads seedvault settings from defaults, an optional YAML
// file and SEEDVAULT_* environment variables, in that order. Command-line
// flags are applied last by the caller.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/forest6511/seedvault/internal/logging"
	"github.com/forest6511/seedvault/pkg/crypto"
	"github.com/forest6511/seedvault/pkg/mnemonic"
	"github.com/forest6511/seedvault/pkg/vault"
)

// FileName is the config file looked up in the default vault directory.
const FileName = "config.yaml"

// Environment variables read by ApplyEnv.
const (
	EnvDir      = "SEEDVAULT_DIR"
	EnvAutoLock = "SEEDVAULT_AUTO_LOCK"
	EnvLogLevel = "SEEDVAULT_LOG_LEVEL"
	EnvConfig   = "SEEDVAULT_CONFIG"
)

const maxConfigSize = 64 * 1024

var (
	// ErrInsecure is returned when the config file is group or world writable.
	ErrInsecure = errors.New("config: file is writable by group or others")

	// ErrSymlink is returned when the config file is a symlink.
	ErrSymlink = errors.New("config: file is a symlink")

	// ErrNotOwnedByUser is returned when the config file belongs to another user.
	ErrNotOwnedByUser = errors.New("config: file not owned by current user")
)

// KDFConfig selects the key derivation for new containers.
type KDFConfig struct {
	Algorithm   string `yaml:"algorithm"`
	MemoryKiB   uint32 `yaml:"memory_kib"`
	Iterations  uint32 `yaml:"iterations"`
	Parallelism uint8  `yaml:"parallelism"`
	ScryptN     int    `yaml:"scrypt_n"`
	ScryptR     int    `yaml:"scrypt_r"`
	ScryptP     int    `yaml:"scrypt_p"`
}

// LogConfig controls diagnostic output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config holds the effective settings.
type Config struct {
	VaultDir string        `yaml:"vault_dir"`
	AutoLock time.Duration `yaml:"auto_lock"` // 0 disables auto-lock
	Strength int           `yaml:"strength"`  // bits for new mnemonics
	KDF      KDFConfig     `yaml:"kdf"`
	Cipher   string        `yaml:"cipher"`
	Throttle bool          `yaml:"throttle"`
	Audit    bool          `yaml:"audit"`
	Log      LogConfig     `yaml:"log"`
}

// Default returns the built-in settings.
func Default() *Config {
	dir, err := vault.DefaultDir()
	if err != nil {
		dir = ".seedvault"
	}
	return &Config{
		VaultDir: dir,
		AutoLock: 5 * time.Minute,
		Strength: mnemonic.DefaultStrength,
		KDF: KDFConfig{
			Algorithm:   string(crypto.KDFArgon2id),
			MemoryKiB:   crypto.Argon2Memory,
			Iterations:  crypto.Argon2Time,
			Parallelism: crypto.Argon2Threads,
			ScryptN:     crypto.ScryptN,
			ScryptR:     crypto.ScryptR,
			ScryptP:     crypto.ScryptP,
		},
		Cipher:   string(crypto.SuiteAESGCM),
		Throttle: true,
		Audit:    true,
		Log:      LogConfig{Level: "warn", Format: logging.FormatText},
	}
}

// DefaultPath returns the config file location inside the default vault
// directory.
func DefaultPath() string {
	dir, err := vault.DefaultDir()
	if err != nil {
		return FileName
	}
	return filepath.Join(dir, FileName)
}

// Load builds a Config from defaults, the file at path and the environment.
// An empty path selects $SEEDVAULT_CONFIG or DefaultPath, and a missing file
// there is not an error. A path given explicitly must exist.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = os.Getenv(EnvConfig)
		explicit = path != ""
	}
	if path == "" {
		path = DefaultPath()
	}

	if err := cfg.LoadFile(path); err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			err = nil
		} else {
			return nil, err
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile overlays the YAML file at path onto c. Fields absent from the
// file keep their current values. The file must not be a symlink, must be
// owned by the current user and must not be writable by others.
func (c *Config) LoadFile(path string) error {
	f, err := openConfigFile(path)
	if err != nil {
		return err
	}
	defer f.Close()

	// fstat the opened descriptor so the checks apply to what we read
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("config: failed to stat %s: %w", path, err)
	}
	if err := checkFileSecurity(path, info); err != nil {
		return err
	}

	content, err := io.ReadAll(io.LimitReader(f, maxConfigSize+1))
	if err != nil {
		return fmt.Errorf("config: failed to read %s: %w", path, err)
	}
	if len(content) > maxConfigSize {
		return fmt.Errorf("config: %s exceeds %d bytes", path, maxConfigSize)
	}

	if err := yaml.Unmarshal(content, c); err != nil {
		return fmt.Errorf("config: failed to parse %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays SEEDVAULT_DIR, SEEDVAULT_AUTO_LOCK and
// SEEDVAULT_LOG_LEVEL. lookup is usually os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvDir); ok && v != "" {
		c.VaultDir = v
	}
	if v, ok := lookup(EnvAutoLock); ok && v != "" {
		d, err := ParseAutoLock(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", EnvAutoLock, err)
		}
		c.AutoLock = d
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Log.Level = v
	}
	return nil
}

// ParseAutoLock accepts a Go duration ("90s", "5m") or a bare number of
// seconds. "0" and "off" disable auto-lock.
func ParseAutoLock(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "off" {
		return 0, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("negative auto-lock %q", s)
		}
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid auto-lock %q", s)
	}
	if d < 0 {
		return 0, fmt.Errorf("negative auto-lock %q", s)
	}
	return d, nil
}

// Validate checks the settings for consistency.
func (c *Config) Validate() error {
	if c.VaultDir == "" {
		return errors.New("config: vault_dir is empty")
	}
	if c.AutoLock < 0 {
		return fmt.Errorf("config: negative auto_lock %v", c.AutoLock)
	}
	if _, err := mnemonic.WordCount(c.Strength); err != nil {
		return fmt.Errorf("config: strength %d: %w", c.Strength, err)
	}
	if err := c.KDFParams().Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	switch crypto.Suite(c.Cipher) {
	case crypto.SuiteAESGCM, crypto.SuiteXChaCha20Poly1305:
	default:
		return fmt.Errorf("config: unknown cipher %q", c.Cipher)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	switch c.Log.Format {
	case logging.FormatText, logging.FormatJSON:
	default:
		return fmt.Errorf("config: unknown log format %q", c.Log.Format)
	}
	return nil
}

// KDFParams converts the KDF section for pkg/crypto.
func (c *Config) KDFParams() crypto.KDFParams {
	if crypto.KDF(c.KDF.Algorithm) == crypto.KDFScrypt {
		return crypto.KDFParams{
			Algorithm: crypto.KDFScrypt,
			N:         c.KDF.ScryptN,
			R:         c.KDF.ScryptR,
			P:         c.KDF.ScryptP,
		}
	}
	return crypto.KDFParams{
		Algorithm: crypto.KDF(c.KDF.Algorithm),
		Memory:    c.KDF.MemoryKiB,
		Time:      c.KDF.Iterations,
		Threads:   c.KDF.Parallelism,
	}
}

// VaultOptions returns vault options for the given audit source.
func (c *Config) VaultOptions(source string, logger *slog.Logger) vault.Options {
	opts := vault.Options{
		Suite:       crypto.Suite(c.Cipher),
		KDF:         c.KDFParams(),
		Logger:      logger,
		Audit:       c.Audit,
		AuditSource: source,
	}
	if c.Throttle {
		opts.Throttle = vault.DefaultThrottlePolicy()
	}
	return opts
}

// Marshal renders c as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
