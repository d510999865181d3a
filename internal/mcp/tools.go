package mcp

import (
	"context"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/forest6511/seedvault/pkg/mnemonic"
	"github.com/forest6511/seedvault/pkg/vault"
)

// VaultStatusInput takes no arguments.
type VaultStatusInput struct{}

// VaultStatusOutput represents output for vault_status tool.
type VaultStatusOutput struct {
	Unlocked         bool   `json:"unlocked"`
	Dir              string `json:"dir"`
	ContainerExists  bool   `json:"container_exists"`
	UnlockedAt       string `json:"unlocked_at,omitempty"`
	ExpiresAt        string `json:"expires_at,omitempty"`
	RemainingSeconds int64  `json:"remaining_seconds,omitempty"`
}

// VaultLockInput takes no arguments.
type VaultLockInput struct{}

// VaultLockOutput represents output for vault_lock tool.
type VaultLockOutput struct {
	WasUnlocked bool `json:"was_unlocked"`
	Unlocked    bool `json:"unlocked"`
}

// MnemonicInfoInput takes no arguments.
type MnemonicInfoInput struct{}

// MnemonicInfoOutput represents output for mnemonic_info tool. Nothing here
// can be used to reconstruct the phrase.
type MnemonicInfoOutput struct {
	WordCount     int  `json:"word_count"`
	StrengthBits  int  `json:"strength_bits"`
	ChecksumValid bool `json:"checksum_valid"`
}

// handleVaultStatus handles the vault_status tool call.
func (s *Server) handleVaultStatus(_ context.Context, _ *mcp.CallToolRequest, _ VaultStatusInput) (*mcp.CallToolResult, VaultStatusOutput, error) {
	st := s.vault.Status()

	output := VaultStatusOutput{
		Unlocked:        st.Unlocked,
		Dir:             s.dir,
		ContainerExists: s.vault.Exists(s.dir),
	}
	if st.Unlocked {
		output.UnlockedAt = st.UnlockedAt.Format(time.RFC3339)
		if !st.ExpiresAt.IsZero() {
			output.ExpiresAt = st.ExpiresAt.Format(time.RFC3339)
			if remaining := time.Until(st.ExpiresAt); remaining > 0 {
				output.RemainingSeconds = int64(remaining.Seconds())
			}
		}
	}
	return nil, output, nil
}

// handleVaultLock handles the vault_lock tool call.
func (s *Server) handleVaultLock(_ context.Context, _ *mcp.CallToolRequest, _ VaultLockInput) (*mcp.CallToolResult, VaultLockOutput, error) {
	was := s.vault.IsUnlocked()
	s.vault.Lock()
	s.log.Info("vault locked by mcp client", "dir", s.dir)
	return nil, VaultLockOutput{WasUnlocked: was, Unlocked: s.vault.IsUnlocked()}, nil
}

// handleMnemonicInfo handles the mnemonic_info tool call.
func (s *Server) handleMnemonicInfo(_ context.Context, _ *mcp.CallToolRequest, _ MnemonicInfoInput) (*mcp.CallToolResult, MnemonicInfoOutput, error) {
	phrase := s.vault.Mnemonic()
	if phrase == "" {
		return nil, MnemonicInfoOutput{}, vault.ErrVaultLocked
	}

	output := MnemonicInfoOutput{
		WordCount:     len(strings.Fields(phrase)),
		ChecksumValid: mnemonic.Validate(phrase),
	}
	if bits, err := mnemonic.StrengthOf(phrase); err == nil {
		output.StrengthBits = bits
	}
	return nil, output, nil
}
