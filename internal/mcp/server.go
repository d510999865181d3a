// Package mcp implements the MCP (Model Context Protocol) server for seedvault.
// Agents can inspect and lock the vault but never receive mnemonic words.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/forest6511/seedvault/pkg/audit"
	"github.com/forest6511/seedvault/pkg/vault"
)

// PasswordEnv is read once at startup and then cleared.
const PasswordEnv = "SEEDVAULT_PASSWORD"

// ErrNoPassword is returned when neither ServerOptions.Password nor
// SEEDVAULT_PASSWORD is set.
var ErrNoPassword = errors.New("no password provided: set SEEDVAULT_PASSWORD environment variable")

// Server represents the MCP server for seedvault.
type Server struct {
	server *mcp.Server
	vault  *vault.Vault
	dir    string
	log    *slog.Logger
}

// ServerOptions contains configuration options for the MCP server.
type ServerOptions struct {
	// Dir is the vault directory. If empty, defaults to ~/.seedvault
	Dir string

	// Password unlocks the vault. If empty, SEEDVAULT_PASSWORD is used.
	Password string

	// AutoLock is passed to Unlock; 0 keeps the vault unlocked until the
	// server stops or an agent calls vault_lock.
	AutoLock time.Duration

	// Vault is the runtime to serve. nil creates one with default options.
	Vault *vault.Vault

	Logger  *slog.Logger
	Version string
}

// NewServer unlocks the vault and registers the tools.
func NewServer(opts *ServerOptions) (*Server, error) {
	if opts == nil {
		opts = &ServerOptions{}
	}

	dir := opts.Dir
	if dir == "" {
		var err error
		if dir, err = vault.DefaultDir(); err != nil {
			return nil, err
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	password := opts.Password
	if password == "" {
		password = os.Getenv(PasswordEnv)
		// Clear the environment variable after reading
		os.Unsetenv(PasswordEnv)
	}
	if password == "" {
		return nil, ErrNoPassword
	}

	v := opts.Vault
	if v == nil {
		v = vault.New(vault.Options{Logger: logger, AuditSource: audit.SourceMCP})
	}
	if err := v.Unlock(dir, password, opts.AutoLock); err != nil {
		return nil, fmt.Errorf("failed to unlock vault: %w", err)
	}

	version := opts.Version
	if version == "" {
		version = "dev"
	}
	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "seedvault",
			Version: version,
		},
		nil,
	)

	s := &Server{
		server: mcpServer,
		vault:  v,
		dir:    dir,
		log:    logger,
	}
	s.registerTools()
	return s, nil
}

// registerTools registers all MCP tools with the server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "vault_status",
		Description: "Report whether the seed vault is unlocked, which directory it serves and when it auto-locks. Never returns mnemonic words.",
	}, s.handleVaultStatus)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "vault_lock",
		Description: "Lock the seed vault immediately and erase the mnemonic from memory. Unlocking again requires restarting the server.",
	}, s.handleVaultLock)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "mnemonic_info",
		Description: "Describe the held mnemonic: word count, entropy strength in bits and BIP39 checksum validity. Never returns the words.",
	}, s.handleMnemonicInfo)
}

// Run serves MCP over stdio until ctx is done or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	defer s.vault.Lock()
	s.log.Info("mcp server started", "dir", s.dir)
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// Close locks the vault.
func (s *Server) Close() error {
	s.vault.Lock()
	return nil
}
