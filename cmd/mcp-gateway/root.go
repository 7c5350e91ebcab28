package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "mcp-gateway",
		Short: "OAuth 2.1 authorization server in front of the LLM Rank MCP endpoint",
		Long: `mcp-gateway lets MCP clients register dynamically, obtain tokens with the
authorization code flow and PKCE, and call the MCP endpoint with a bearer token.`,
		Version:      version,
		SilenceUsage: true,
	}
	rootCmd.SetVersionTemplate(`{{printf "mcp-gateway version %s\n" .Version}}`)

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newKeygenCmd())
	return rootCmd
}
