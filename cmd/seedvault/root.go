package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/forest6511/seedvault/internal/config"
	"github.com/forest6511/seedvault/internal/logging"
	"github.com/forest6511/seedvault/pkg/audit"
	"github.com/forest6511/seedvault/pkg/vault"
)

var (
	cfg    *config.Config
	v      *vault.Vault
	logger *slog.Logger
)

// Global flags
var (
	configPath   string
	dirFlag      string
	logLevelFlag string
	autoLockFlag string
)

var rootCmd = &cobra.Command{
	Use:     "seedvault",
	Short:   "seedvault keeps a BIP39 recovery phrase encrypted on disk",
	Long:    `An identity vault that stores one BIP39 mnemonic per directory, encrypted under a password.`,
	Version: version,

	SilenceUsage:  true,
	SilenceErrors: true,

	// PersistentPreRunE runs before every subcommand and builds the Vault
	// from the layered configuration.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if dirFlag != "" {
			c.VaultDir = dirFlag
		}
		if logLevelFlag != "" {
			c.Log.Level = logLevelFlag
		}
		if autoLockFlag != "" {
			d, err := config.ParseAutoLock(autoLockFlag)
			if err != nil {
				return fmt.Errorf("--auto-lock: %w", err)
			}
			c.AutoLock = d
		}
		if err := c.Validate(); err != nil {
			return err
		}

		l, err := logging.New(c.Log.Level, c.Log.Format, cmd.ErrOrStderr())
		if err != nil {
			return err
		}

		closeVault()
		cfg, logger = c, l
		v = vault.New(c.VaultOptions(auditSource(cmd), l))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.seedvault/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dirFlag, "dir", "", "vault directory (default ~/.seedvault)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&autoLockFlag, "auto-lock", "", "auto-lock after duration (e.g. 90s, 5m, off)")
}

// auditSource names the caller recorded in audit events.
func auditSource(cmd *cobra.Command) string {
	switch cmd.Name() {
	case "shell":
		return audit.SourceShell
	case "mcp-server":
		return audit.SourceMCP
	default:
		return audit.SourceCLI
	}
}

// closeVault locks and releases the current Vault, if any.
func closeVault() {
	if v != nil {
		v.Close()
		v = nil
	}
}

// unlock opens the configured vault for the duration of one command.
func unlock(cmd *cobra.Command) error {
	if !v.Exists(cfg.VaultDir) {
		return vault.ErrVaultNotFound
	}
	if err := checkCooldown(); err != nil {
		return err
	}
	password, err := askPassword(cmd, "Enter password: ")
	if err != nil {
		return err
	}
	return v.Unlock(cfg.VaultDir, password, cfg.AutoLock)
}

// checkCooldown fails early so the user is not prompted for a password
// that would be rejected anyway.
func checkCooldown() error {
	if d := v.RemainingCooldown(cfg.VaultDir); d > 0 {
		return fmt.Errorf("%w: please wait %v", vault.ErrCooldownActive, d.Round(time.Second))
	}
	return nil
}
