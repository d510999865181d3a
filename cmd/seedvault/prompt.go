package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/forest6511/seedvault/pkg/vault"
)

// Environment variables for non-interactive use. Each is read once and
// then cleared from the process environment.
const (
	envPassword       = "SEEDVAULT_PASSWORD"
	envNewPassword    = "SEEDVAULT_NEW_PASSWORD"
	envBackupPassword = "SEEDVAULT_BACKUP_PASSWORD"
)

var errPasswordMismatch = errors.New("passwords do not match")

// lineReaders keeps one buffered reader per input so consecutive prompts on
// a pipe do not lose buffered lines.
var lineReaders = map[io.Reader]*bufio.Reader{}

// readLine reads one line from the command's input, without the newline.
func readLine(cmd *cobra.Command) (string, error) {
	in := cmd.InOrStdin()
	r, ok := lineReaders[in]
	if !ok {
		r = bufio.NewReader(in)
		lineReaders[in] = r
	}
	line, err := r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// readSecret prompts on stderr and reads without echo when the input is a
// terminal. Piped input is read line by line.
func readSecret(cmd *cobra.Command, prompt string) (string, error) {
	fmt.Fprint(cmd.ErrOrStderr(), prompt)
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(b), nil
	}
	line, err := readLine(cmd)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return line, nil
}

// fromEnv returns and clears the named variable.
func fromEnv(name string) (string, bool) {
	val, ok := os.LookupEnv(name)
	if !ok || val == "" {
		return "", false
	}
	os.Unsetenv(name)
	return val, true
}

// askPassword returns the vault password from SEEDVAULT_PASSWORD or a prompt.
func askPassword(cmd *cobra.Command, prompt string) (string, error) {
	if pw, ok := fromEnv(envPassword); ok {
		return pw, nil
	}
	return readSecret(cmd, prompt)
}

// askNewPassword asks for a new vault password twice and enforces the
// password policy. SEEDVAULT_NEW_PASSWORD skips the prompts.
func askNewPassword(cmd *cobra.Command) (string, error) {
	pw, ok := fromEnv(envNewPassword)
	if !ok {
		var err error
		if pw, err = readSecret(cmd, "Enter new password: "); err != nil {
			return "", err
		}
		again, err := readSecret(cmd, "Confirm new password: ")
		if err != nil {
			return "", err
		}
		if pw != again {
			return "", errPasswordMismatch
		}
	}
	if err := checkPasswordPolicy(cmd, pw); err != nil {
		return "", err
	}
	return pw, nil
}

func checkPasswordPolicy(cmd *cobra.Command, pw string) error {
	result := vault.ValidateMasterPassword(pw)
	if !result.Valid {
		return fmt.Errorf("password validation failed: %s", result.Warnings[0])
	}
	for _, w := range result.Warnings {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %s\n", w)
	}
	return nil
}

// askBackupPassword reads the backup password from SEEDVAULT_BACKUP_PASSWORD
// or a prompt, confirming it when a new backup is written.
func askBackupPassword(cmd *cobra.Command, confirmIt bool) ([]byte, error) {
	if pw, ok := fromEnv(envBackupPassword); ok {
		return []byte(pw), nil
	}
	pw, err := readSecret(cmd, "Enter backup password: ")
	if err != nil {
		return nil, err
	}
	if pw == "" {
		return nil, errors.New("backup password must not be empty")
	}
	if confirmIt {
		again, err := readSecret(cmd, "Confirm backup password: ")
		if err != nil {
			return nil, err
		}
		if pw != again {
			return nil, errPasswordMismatch
		}
	}
	return []byte(pw), nil
}

// confirm asks a yes/no question; anything but y or yes is no.
func confirm(cmd *cobra.Command, question string) (bool, error) {
	fmt.Fprintf(cmd.ErrOrStderr(), "%s [y/N]: ", question)
	line, err := readLine(cmd)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}
