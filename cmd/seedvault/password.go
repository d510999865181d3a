package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forest6511/seedvault/pkg/vault"
)

func init() {
	rootCmd.AddCommand(passwordCmd)
	passwordCmd.AddCommand(passwordChangeCmd)
}

// passwordCmd is the parent command for password operations.
var passwordCmd = &cobra.Command{
	Use:   "password",
	Short: "Vault password operations",
}

// passwordChangeCmd re-encrypts the vault under a new password.
var passwordChangeCmd = &cobra.Command{
	Use:   "change",
	Short: "Change the vault password",
	Long: `Change the vault password.

The recovery phrase is decrypted with the current password and encrypted
again under the new one with a fresh salt. The file is replaced atomically:
either the change fully succeeds or the old file stays in place.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !v.Exists(cfg.VaultDir) {
			return vault.ErrVaultNotFound
		}
		if err := checkCooldown(); err != nil {
			return err
		}

		current, err := askPassword(cmd, "Enter current password: ")
		if err != nil {
			return err
		}
		next, err := askNewPassword(cmd)
		if err != nil {
			return err
		}
		if next == current {
			return fmt.Errorf("new password must differ from the current one")
		}

		if err := v.ChangePassword(cfg.VaultDir, current, next); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Password changed.")
		return nil
	},
}
