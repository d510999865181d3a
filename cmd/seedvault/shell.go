package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/forest6511/seedvault/pkg/vault"
)

func init() {
	rootCmd.AddCommand(shellCmd)
}

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Interactive session that keeps the vault unlocked in memory",
	Long: `Start an interactive session. The vault is unlocked once and stays
unlocked in this process until 'lock', the auto-lock timeout or exit.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rl, err := readline.NewEx(&readline.Config{
			Prompt:          "seedvault> ",
			InterruptPrompt: "^C",
			EOFPrompt:       "exit",
		})
		if err != nil {
			return fmt.Errorf("failed to create readline: %w", err)
		}
		defer rl.Close()

		sh := &shell{
			out: rl.Stdout(),
			readPassword: func(prompt string) (string, error) {
				if pw, ok := fromEnv(envPassword); ok {
					return pw, nil
				}
				b, err := rl.ReadPassword(prompt)
				return string(b), err
			},
		}
		defer v.Lock()

		sh.printHelp()
		if v.Exists(cfg.VaultDir) {
			sh.exec("unlock")
		}

		for {
			rl.SetPrompt(sh.prompt())
			line, err := rl.Readline()
			if err != nil {
				if errors.Is(err, readline.ErrInterrupt) {
					continue
				}
				fmt.Fprintln(sh.out, "Exiting...")
				return nil
			}
			if sh.exec(line) {
				return nil
			}
		}
	},
}

// shell dispatches REPL commands against the package vault.
type shell struct {
	out          io.Writer
	readPassword func(prompt string) (string, error)
}

func (s *shell) prompt() string {
	if v.IsUnlocked() {
		return "seedvault (unlocked)> "
	}
	return "seedvault (locked)> "
}

// exec runs one input line and reports whether the session should end.
func (s *shell) exec(line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false
	}

	var err error
	switch strings.ToLower(parts[0]) {
	case "help", "?":
		s.printHelp()
	case "status", "s":
		s.cmdStatus()
	case "unlock", "u":
		err = s.cmdUnlock()
	case "lock", "l":
		v.Lock()
		fmt.Fprintln(s.out, "Locked.")
	case "show":
		err = s.cmdShow()
	case "info", "i":
		err = s.cmdInfo()
	case "verify":
		err = s.cmdVerify()
	case "quit", "exit", "q":
		fmt.Fprintln(s.out, "Exiting...")
		return true
	default:
		fmt.Fprintf(s.out, "Unknown command: %s (type 'help' for commands)\n", parts[0])
	}
	if err != nil {
		fmt.Fprintln(s.out, "Error:", friendlyError(err))
	}
	return false
}

func (s *shell) cmdStatus() {
	st := v.Status()
	if !st.Unlocked {
		fmt.Fprintf(s.out, "Locked (%s)\n", cfg.VaultDir)
		return
	}
	fmt.Fprintf(s.out, "Unlocked (%s) since %s\n", st.Dir, st.UnlockedAt.Local().Format("15:04:05"))
	if st.ExpiresAt.IsZero() {
		fmt.Fprintln(s.out, "Auto-lock: off")
		return
	}
	fmt.Fprintf(s.out, "Auto-lock in %v\n", time.Until(st.ExpiresAt).Round(time.Second))
}

func (s *shell) cmdUnlock() error {
	if !v.Exists(cfg.VaultDir) {
		return vault.ErrVaultNotFound
	}
	if err := checkCooldown(); err != nil {
		return err
	}
	password, err := s.readPassword("Enter password: ")
	if err != nil {
		return err
	}
	if err := v.Unlock(cfg.VaultDir, password, cfg.AutoLock); err != nil {
		return err
	}
	fmt.Fprintln(s.out, "Unlocked.")
	return nil
}

func (s *shell) cmdShow() error {
	phrase, err := v.ExportMnemonic()
	if err != nil {
		return err
	}
	printWords(s.out, phrase)
	return nil
}

func (s *shell) cmdInfo() error {
	phrase := v.Mnemonic()
	if phrase == "" {
		return vault.ErrVaultLocked
	}
	fmt.Fprintln(s.out, phraseInfo(phrase))
	return nil
}

func (s *shell) cmdVerify() error {
	result, err := v.VerifyAudit()
	if err != nil {
		return err
	}
	if !result.Valid {
		fmt.Fprintf(s.out, "Audit log verification FAILED (%d of %d records verified)\n",
			result.RecordsVerified, result.RecordsTotal)
		return nil
	}
	fmt.Fprintf(s.out, "Audit log verified: %d records\n", result.RecordsTotal)
	return nil
}

func (s *shell) printHelp() {
	fmt.Fprintln(s.out, `
seedvault shell commands:
  status, s     - Show lock state and auto-lock countdown
  unlock, u     - Unlock the vault
  lock, l       - Lock the vault and wipe the phrase from memory
  show          - Print the recovery phrase
  info, i       - Word count and strength of the held phrase
  verify        - Verify the audit log chain
  help, ?       - Show this help
  exit, q       - Lock and leave`)
}
