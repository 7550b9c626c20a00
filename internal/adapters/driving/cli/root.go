// Package cli wires the command line interface for the MCP server.
package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/getset-labs/pox-mcp/internal/auth"
	"github.com/getset-labs/pox-mcp/internal/config"
	"github.com/getset-labs/pox-mcp/internal/logger"
)

var (
	// Version is set by goreleaser ldflags.
	version = "dev"

	// Verbose enables debug logging.
	verbose bool

	// configPath is an optional TOML config file.
	configPath string

	// runServer starts the MCP server; injected by main.
	runServer RunFunc

	// authMiddleware backs the auth subcommands; injected by main.
	authMiddleware *auth.Middleware
)

// RunFunc starts the MCP server with the loaded configuration.
type RunFunc func(ctx context.Context, cfg *config.Server) error

// SetRunner injects the server entrypoint.
func SetRunner(fn RunFunc) {
	runServer = fn
}

// SetAuthMiddleware injects the auth middleware for the auth
// subcommands.
func SetAuthMiddleware(m *auth.Middleware) {
	authMiddleware = m
}

// SetVersion sets the version string for the CLI. Must update the
// command directly: init has already copied the default into it.
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// rootCmd is the base command; running it starts the MCP server.
var rootCmd = &cobra.Command{
	Use:   "poxmcp",
	Short: "MCP server for Microsoft Entra ID, Intune and Global Secure Access",
	Long: `poxmcp exposes Microsoft Graph workflows as MCP tools: Entra ID
directory management, Intune device management, identity governance and
Global Secure Access Internet Access configuration.

The server speaks MCP over stdio by default; set TRANSPORT=http for the
streamable HTTP transport.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if err := logger.Setup(cfg.LogLevel, cfg.LogFile); err != nil {
			return err
		}
		if verbose {
			logger.SetVerbose(true)
		}
		return runServer(cmd.Context(), cfg)
	},
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.Version = version
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose debug output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a TOML config file")
}
