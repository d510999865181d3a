package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forest6511/seedvault/pkg/mnemonic"
	"github.com/forest6511/seedvault/pkg/vault"
)

// Create and import flags
var (
	createWords     int
	importOverwrite bool
	importStdin     bool
)

func init() {
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(importCmd)

	createCmd.Flags().IntVarP(&createWords, "words", "w", 0, "Number of words: 12, 15, 18, 21 or 24 (default from config, 24)")
	importCmd.Flags().BoolVar(&importOverwrite, "overwrite", false, "Replace an existing vault")
	importCmd.Flags().BoolVar(&importStdin, "stdin", false, "Read the recovery phrase from standard input")
}

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a vault holding a new recovery phrase",
	Long: `Generate a new BIP39 recovery phrase and store it encrypted under a new password.

The phrase is printed once. Write it down and keep it offline: the password
only protects this copy.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		strength := cfg.Strength
		if createWords != 0 {
			var err error
			if strength, err = strengthForWords(createWords); err != nil {
				return err
			}
		}
		if v.Exists(cfg.VaultDir) {
			return vault.ErrVaultAlreadyExists
		}

		password, err := askNewPassword(cmd)
		if err != nil {
			return err
		}

		phrase, err := v.Create(cfg.VaultDir, password, strength)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Vault created at %s\n\n", cfg.VaultDir)
		fmt.Fprintln(out, "Your recovery phrase (write it down, it will not be shown again unprompted):")
		fmt.Fprintln(out)
		printWords(out, phrase)
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Store an existing recovery phrase in a vault",
	Long: `Store an existing BIP39 recovery phrase encrypted under a new password.

The phrase is normalised (Unicode NFKD, lower case, single spaces) and must
pass the BIP39 checksum.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if v.Exists(cfg.VaultDir) && !importOverwrite {
			return vault.ErrVaultAlreadyExists
		}

		var (
			phrase string
			err    error
		)
		if importStdin {
			phrase, err = readLine(cmd)
		} else {
			phrase, err = readSecret(cmd, "Enter recovery phrase: ")
		}
		if err != nil {
			return fmt.Errorf("failed to read recovery phrase: %w", err)
		}
		if !mnemonic.Validate(phrase) {
			return vault.ErrInvalidMnemonic
		}

		password, err := askNewPassword(cmd)
		if err != nil {
			return err
		}

		if err := v.Import(cfg.VaultDir, password, phrase, importOverwrite); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Recovery phrase imported into %s (%d words)\n",
			cfg.VaultDir, len(strings.Fields(phrase)))
		return nil
	},
}

// strengthForWords maps a word count to entropy bits.
func strengthForWords(words int) (int, error) {
	for _, s := range mnemonic.Strengths {
		if n, _ := mnemonic.WordCount(s); n == words {
			return s, nil
		}
	}
	return 0, vault.ErrInvalidStrength
}

// printWords prints a phrase as a numbered list, four words per row.
func printWords(w io.Writer, phrase string) {
	words := strings.Fields(phrase)
	for i, word := range words {
		fmt.Fprintf(w, "%2d. %-10s", i+1, word)
		if (i+1)%4 == 0 || i == len(words)-1 {
			fmt.Fprintln(w)
		}
	}
}
