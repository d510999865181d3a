package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forest6511/seedvault/pkg/mnemonic"
)

const maxGenerateCount = 100

// Generate and validate flags
var (
	generateWords int
	generateCount int
	validateStdin bool
)

func init() {
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(validateCmd)

	generateCmd.Flags().IntVarP(&generateWords, "words", "w", 24, "Number of words: 12, 15, 18, 21 or 24")
	generateCmd.Flags().IntVarP(&generateCount, "count", "n", 1, "Number of phrases to generate (1-100)")
	validateCmd.Flags().BoolVar(&validateStdin, "stdin", false, "Read the phrase from standard input")
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Print new recovery phrases without storing them",
	Long: `Generate BIP39 recovery phrases from the system's secure random source.

Nothing is written to disk. Use 'seedvault create' to generate and store a
phrase in one step.

Examples:
  # One 24-word phrase
  seedvault generate

  # Three 12-word phrases
  seedvault generate -w 12 -n 3`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if generateCount < 1 || generateCount > maxGenerateCount {
			return fmt.Errorf("count must be between 1 and %d", maxGenerateCount)
		}
		strength, err := strengthForWords(generateWords)
		if err != nil {
			return err
		}
		for i := 0; i < generateCount; i++ {
			phrase, err := mnemonic.Generate(strength)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), phrase)
		}
		return nil
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate [words...]",
	Short: "Check whether a recovery phrase is valid BIP39",
	Long: `Check a recovery phrase against the BIP39 English wordlist and checksum.

Without arguments the phrase is prompted for without echo, which keeps it
out of shell history.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var phrase string
		switch {
		case len(args) > 0:
			phrase = strings.Join(args, " ")
		case validateStdin:
			line, err := readLine(cmd)
			if err != nil {
				return fmt.Errorf("failed to read recovery phrase: %w", err)
			}
			phrase = line
		default:
			line, err := readSecret(cmd, "Enter recovery phrase: ")
			if err != nil {
				return err
			}
			phrase = line
		}

		if !mnemonic.Validate(phrase) {
			return fmt.Errorf("invalid recovery phrase")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Valid: %s\n", phraseInfo(phrase))
		return nil
	},
}
