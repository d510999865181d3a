package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const (
	testPassword = "correct-horse-9"
	testPhrase   = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
)

// fastConfig keeps key derivation in the low milliseconds.
const fastConfig = `kdf:
  algorithm: argon2id
  memory_kib: 1024
  iterations: 1
  parallelism: 1
auto_lock: 0s
throttle: true
audit: true
log:
  level: error
`

// cli drives rootCmd against a temporary vault directory.
type cli struct {
	t      *testing.T
	dir    string
	config string
	stderr bytes.Buffer
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	for _, name := range []string{envPassword, envNewPassword, envBackupPassword} {
		t.Setenv(name, "")
	}

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(fastConfig), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return &cli{t: t, dir: filepath.Join(t.TempDir(), "vault"), config: path}
}

// run executes one command with stdin as its input and returns stdout.
func (c *cli) run(stdin string, args ...string) (string, error) {
	c.t.Helper()
	resetFlags(rootCmd)

	var out bytes.Buffer
	c.stderr.Reset()
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&c.stderr)
	rootCmd.SetArgs(append([]string{"--config", c.config, "--dir", c.dir}, args...))

	err := rootCmd.Execute()
	closeVault()
	return out.String(), err
}

// mustRun is run that fails the test on error.
func (c *cli) mustRun(stdin string, args ...string) string {
	c.t.Helper()
	out, err := c.run(stdin, args...)
	if err != nil {
		c.t.Fatalf("seedvault %s: %v\nstderr: %s", strings.Join(args, " "), err, c.stderr.String())
	}
	return out
}

// importTestPhrase stores testPhrase under testPassword.
func (c *cli) importTestPhrase() {
	c.t.Helper()
	c.mustRun(lines(testPhrase, testPassword, testPassword), "import", "--stdin")
}

func lines(ss ...string) string {
	return strings.Join(ss, "\n") + "\n"
}

// resetFlags restores every flag to its default so one test's flags do not
// leak into the next Execute.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if f.Changed {
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		}
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}
