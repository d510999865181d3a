package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/forest6511/seedvault/internal/diskspace"
	"github.com/forest6511/seedvault/pkg/mnemonic"
	"github.com/forest6511/seedvault/pkg/vault"
)

var showPlain bool

func init() {
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(statusCmd)

	showCmd.Flags().BoolVar(&showPlain, "plain", false, "Print the phrase on one line")
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Unlock the vault and print the recovery phrase",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := unlock(cmd); err != nil {
			return err
		}
		defer v.Lock()

		phrase, err := v.ExportMnemonic()
		if err != nil {
			return err
		}
		if showPlain {
			fmt.Fprintln(cmd.OutOrStdout(), phrase)
			return nil
		}
		printWords(cmd.OutOrStdout(), phrase)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show vault location and state without unlocking",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		store := vault.NewFileStore(logger)
		fmt.Fprintf(out, "Vault:      %s\n", store.Path(cfg.VaultDir))

		c, err := store.Read(cfg.VaultDir)
		switch {
		case errors.Is(err, vault.ErrVaultNotFound):
			fmt.Fprintln(out, "State:      no vault")
		case errors.Is(err, vault.ErrCorruptVault):
			fmt.Fprintln(out, "State:      corrupted")
		case err != nil:
			return err
		default:
			fmt.Fprintln(out, "State:      present (locked)")
			fmt.Fprintf(out, "Written:    %s\n", c.CreatedAt.Local().Format(time.RFC3339))
		}

		if d := v.RemainingCooldown(cfg.VaultDir); d > 0 {
			fmt.Fprintf(out, "Cooldown:   %v remaining\n", d.Round(time.Second))
		}
		if cfg.AutoLock > 0 {
			fmt.Fprintf(out, "Auto-lock:  %v\n", cfg.AutoLock)
		} else {
			fmt.Fprintln(out, "Auto-lock:  off")
		}
		fmt.Fprintf(out, "Audit log:  %s\n", onOff(cfg.Audit))

		if info, err := diskspace.Check(cfg.VaultDir); err == nil && info.Low() {
			fmt.Fprintf(out, "Warning:    disk is %d%% full\n", info.UsedPct)
		}
		return nil
	},
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

// phraseInfo describes a phrase without revealing it.
func phraseInfo(phrase string) string {
	strength, err := mnemonic.StrengthOf(phrase)
	if err != nil {
		return "invalid phrase"
	}
	words, _ := mnemonic.WordCount(strength)
	return fmt.Sprintf("%d words, %d bits of entropy, checksum valid", words, strength)
}
