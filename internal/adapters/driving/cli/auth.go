package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Inspect and manage Entra ID authentication state",
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and cache a token without starting the server",
	Long: `Acquires a token using the configured authentication mode and stores
it in the token cache. In delegated mode this runs the device code
sign-in, printing the verification URL and code on stderr.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if authMiddleware == nil {
			return errors.New("auth middleware not initialised")
		}
		tok, err := authMiddleware.GetToken(cmd.Context())
		if err != nil {
			return err
		}
		if tok == "" {
			return errors.New("authentication is disabled; set ENTRA_ENABLE_AUTH=true and configure credentials")
		}
		fmt.Fprintln(cmd.OutOrStdout(), "signed in, token cached")
		return nil
	},
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show authentication configuration and token state",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if authMiddleware == nil {
			return errors.New("auth middleware not initialised")
		}
		out, err := json.MarshalIndent(authMiddleware.Status(), "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

var authClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear the cached token, forcing a fresh sign-in",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if authMiddleware == nil {
			return errors.New("auth middleware not initialised")
		}
		authMiddleware.ClearCache()
		fmt.Fprintln(cmd.OutOrStdout(), "token cache cleared")
		return nil
	},
}

func init() {
	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authStatusCmd)
	authCmd.AddCommand(authClearCmd)
	rootCmd.AddCommand(authCmd)
}
