package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forest6511/seedvault/pkg/vault"
)

var deleteYes bool

func init() {
	rootCmd.AddCommand(deleteCmd)
	deleteCmd.Flags().BoolVarP(&deleteYes, "yes", "y", false, "Skip the confirmation prompt")
}

var deleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete the vault after verifying the password",
	Long: `Delete the encrypted vault file. The password is checked first.

The recovery phrase cannot be recovered from this machine afterwards. The
audit log is kept.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !v.Exists(cfg.VaultDir) {
			return vault.ErrVaultNotFound
		}
		if !deleteYes {
			ok, err := confirm(cmd, fmt.Sprintf("Delete the vault in %s?", cfg.VaultDir))
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
				return nil
			}
		}
		if err := checkCooldown(); err != nil {
			return err
		}

		password, err := askPassword(cmd, "Enter password: ")
		if err != nil {
			return err
		}
		if err := v.Delete(cfg.VaultDir, password); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Vault deleted from %s\n", cfg.VaultDir)
		return nil
	},
}
