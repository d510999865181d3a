package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/forest6511/seedvault/pkg/backup"
	"github.com/forest6511/seedvault/pkg/vault"
)

var (
	backupOutput      string
	backupStdout      bool
	backupKeyFile     string
	backupGenerateKey bool
	backupForce       bool

	restoreOnConflict string
	restoreDryRun     bool
)

func init() {
	rootCmd.AddCommand(backupCmd)
	backupCmd.AddCommand(backupCreateCmd)
	backupCmd.AddCommand(backupVerifyCmd)
	backupCmd.AddCommand(backupRestoreCmd)

	backupCreateCmd.Flags().StringVarP(&backupOutput, "output", "o", "", "Output file path")
	backupCreateCmd.Flags().BoolVar(&backupStdout, "stdout", false, "Output to stdout (for piping)")
	backupCreateCmd.Flags().StringVar(&backupKeyFile, "key-file", "", "Encryption key file (32 bytes) instead of a backup password")
	backupCreateCmd.Flags().BoolVar(&backupGenerateKey, "generate-key", false, "Create the --key-file first")
	backupCreateCmd.Flags().BoolVarP(&backupForce, "force", "f", false, "Overwrite existing file")

	for _, c := range []*cobra.Command{backupVerifyCmd, backupRestoreCmd} {
		c.Flags().StringVar(&backupKeyFile, "key-file", "", "Decryption key file (32 bytes)")
	}
	backupRestoreCmd.Flags().StringVar(&restoreOnConflict, "on-conflict", "error", "When a vault exists: error, skip, overwrite")
	backupRestoreCmd.Flags().BoolVar(&restoreDryRun, "dry-run", false, "Decrypt and validate without writing")
}

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Create, verify and restore encrypted backup files",
}

var backupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Write the recovery phrase to an encrypted backup file",
	Long: `Write the recovery phrase to a portable encrypted backup file.

The backup is protected by its own password, independent of the vault
password, or by a 32-byte key file.

Examples:
  # Backup to a file
  seedvault backup create -o seed.svbk

  # Backup to stdout (for piping)
  seedvault backup create --stdout > seed.svbk

  # Use a new key file instead of a password
  seedvault backup create -o seed.svbk --key-file seed.key --generate-key`,
	Args: cobra.NoArgs,
	RunE: executeBackupCreate,
}

func executeBackupCreate(cmd *cobra.Command, args []string) error {
	if err := validateBackupFlags(); err != nil {
		return err
	}
	if !backupStdout && !backupForce {
		if _, err := os.Stat(backupOutput); err == nil {
			return fmt.Errorf("output file already exists: %s (use --force to overwrite)", backupOutput)
		}
	}

	if err := unlock(cmd); err != nil {
		return err
	}
	defer v.Lock()

	opts := backup.BackupOptions{KeyFile: backupKeyFile, KDF: cfg.KDFParams()}
	if backupKeyFile == "" {
		password, err := askBackupPassword(cmd, true)
		if err != nil {
			return err
		}
		opts.Password = password
	} else if backupGenerateKey {
		if err := backup.GenerateKeyFile(backupKeyFile); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Key file written to %s. Store it apart from the backup.\n", backupKeyFile)
	}

	var output io.Writer = cmd.OutOrStdout()
	if !backupStdout {
		f, err := os.OpenFile(backupOutput, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		output = f
	}
	opts.Output = output

	header, err := backup.Backup(v, opts)
	if err != nil {
		return fmt.Errorf("backup failed: %w", err)
	}
	if !backupStdout {
		fmt.Fprintf(cmd.OutOrStdout(), "Backup created: %s (%d words, %s)\n",
			backupOutput, header.WordCount, header.EncryptionMode)
	}
	return nil
}

func validateBackupFlags() error {
	if !backupStdout && backupOutput == "" {
		return fmt.Errorf("either --output or --stdout is required")
	}
	if backupStdout && backupOutput != "" {
		return fmt.Errorf("--output and --stdout are mutually exclusive")
	}
	if backupGenerateKey && backupKeyFile == "" {
		return fmt.Errorf("--generate-key requires --key-file")
	}
	return nil
}

var backupVerifyCmd = &cobra.Command{
	Use:   "verify <file>",
	Short: "Check a backup file's integrity without restoring it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := backupSecret(cmd, args[0])
		if err != nil {
			return err
		}

		result, err := backup.Verify(args[0], password, backupKeyFile)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if !result.Valid {
			fmt.Fprintf(out, "Backup is NOT valid: %s\n", result.Error)
			return fmt.Errorf("backup verification failed")
		}
		fmt.Fprintln(out, "Backup is valid")
		fmt.Fprintf(out, "  Version:    %d\n", result.Version)
		fmt.Fprintf(out, "  Created:    %s\n", result.CreatedAt.Local().Format("2006-01-02 15:04:05"))
		fmt.Fprintf(out, "  Words:      %d\n", result.WordCount)
		fmt.Fprintf(out, "  Protection: %s\n", result.EncryptionMode)
		return nil
	},
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore <file>",
	Short: "Restore the recovery phrase from a backup into the vault",
	Long: `Decrypt a backup file and store its recovery phrase in the vault directory
under a new vault password.

Examples:
  # Check the backup decrypts without touching the vault
  seedvault backup restore seed.svbk --dry-run

  # Replace an existing vault
  seedvault backup restore seed.svbk --on-conflict overwrite`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := parseConflictMode(restoreOnConflict)
		if err != nil {
			return err
		}
		exists := v.Exists(cfg.VaultDir)
		if exists && mode == backup.ConflictError && !restoreDryRun {
			return vault.ErrVaultAlreadyExists
		}

		password, err := backupSecret(cmd, args[0])
		if err != nil {
			return err
		}
		opts := backup.RestoreOptions{
			Dir:        cfg.VaultDir,
			OnConflict: mode,
			DryRun:     restoreDryRun,
			Password:   password,
			KeyFile:    backupKeyFile,
		}
		if !restoreDryRun && !(exists && mode == backup.ConflictSkip) {
			if opts.VaultPassword, err = askNewPassword(cmd); err != nil {
				return err
			}
		}

		result, err := backup.Restore(v, args[0], opts)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		switch {
		case result.DryRun:
			fmt.Fprintf(out, "Dry run: backup holds a valid %d-word phrase\n", result.WordCount)
		case result.Skipped:
			fmt.Fprintln(out, "Vault exists, restore skipped")
		default:
			fmt.Fprintf(out, "Restored %d-word phrase into %s\n", result.WordCount, cfg.VaultDir)
		}
		return nil
	},
}

// backupSecret asks for the backup password unless the file is protected
// by a key file or --key-file was given.
func backupSecret(cmd *cobra.Command, path string) ([]byte, error) {
	if backupKeyFile != "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open backup: %w", err)
	}
	header, err := backup.ReadHeader(f)
	f.Close()
	if err != nil {
		return nil, err
	}
	if header.EncryptionMode != backup.EncryptionModePassword {
		return nil, fmt.Errorf("backup is protected by a key file; pass --key-file")
	}
	return askBackupPassword(cmd, false)
}

func parseConflictMode(s string) (backup.ConflictMode, error) {
	switch s {
	case "error", "":
		return backup.ConflictError, nil
	case "skip":
		return backup.ConflictSkip, nil
	case "overwrite":
		return backup.ConflictOverwrite, nil
	}
	return 0, fmt.Errorf("invalid --on-conflict %q: want error, skip or overwrite", s)
}
