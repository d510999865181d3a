package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/forest6511/seedvault/internal/mcp"
)

func init() {
	rootCmd.AddCommand(mcpServerCmd)
}

// mcpServerCmd starts the MCP server for AI coding assistant integration
var mcpServerCmd = &cobra.Command{
	Use:   "mcp-server",
	Short: "Start the MCP server for AI assistant integration",
	Long: `Start an MCP (Model Context Protocol) server over stdio.

Agents can check whether the vault is unlocked, lock it and read the word
count and strength of the held phrase. No tool ever returns the words.

Available tools:
  - vault_status:  lock state, directory and auto-lock deadline
  - vault_lock:    lock the vault and wipe the phrase
  - mnemonic_info: word count, entropy bits, checksum validity

Authentication:
  Set SEEDVAULT_PASSWORD before starting the server. The password is read
  once and immediately cleared from the environment.

Example MCP configuration:
  {
    "mcpServers": {
      "seedvault": {
        "type": "stdio",
        "command": "/path/to/seedvault",
        "args": ["mcp-server"],
        "env": {
          "SEEDVAULT_PASSWORD": "your-vault-password"
        }
      }
    }
  }`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCPServer()
	},
}

func runMCPServer() error {
	server, err := mcp.NewServer(&mcp.ServerOptions{
		Dir:      cfg.VaultDir,
		AutoLock: cfg.AutoLock,
		Vault:    v,
		Logger:   logger,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	// Set up signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case <-sigChan:
			cancel()
			server.Close()
		case <-ctx.Done():
		}
	}()

	if err := server.Run(ctx); err != nil {
		// Don't report context canceled as an error
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("MCP server error: %w", err)
	}
	return nil
}
