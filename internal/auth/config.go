// Package auth implements OAuth2 authentication against Microsoft
// Entra ID: configuration, token caching, client credential and device
// code flows, and the middleware that gates Graph-calling tools.
package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Mode selects how tokens are acquired.
type Mode string

const (
	// ModeApplication uses the client credentials grant (app-only).
	ModeApplication Mode = "application"
	// ModeDelegated uses the device code flow on behalf of a user.
	ModeDelegated Mode = "delegated"
)

// Placeholder used when required identifiers are absent from the
// environment. Auth is disabled rather than failing at load time.
const notConfigured = "not-configured"

const (
	defaultScope       = "https://graph.microsoft.com/.default"
	defaultRedirectURI = "http://localhost:8000/callback"
)

// Config holds Entra ID authentication settings.
type Config struct {
	TenantID       string
	ClientID       string
	ClientSecret   string
	Authority      string
	Scopes         []string
	RedirectURI    string
	EnableAuth     bool
	Mode           Mode
	TokenCachePath string
}

// ConfigFromEnv loads authentication configuration from ENTRA_*
// environment variables. Missing tenant or client id disables auth
// instead of returning an error; Validate catches the hard failures
// later, before any network call.
func ConfigFromEnv() *Config {
	tenantID := os.Getenv("ENTRA_TENANT_ID")
	clientID := os.Getenv("ENTRA_CLIENT_ID")

	if tenantID == "" || clientID == "" {
		slog.Warn("ENTRA_TENANT_ID and ENTRA_CLIENT_ID not set, authentication disabled")
		cfg := &Config{
			TenantID:   valueOr(tenantID, notConfigured),
			ClientID:   valueOr(clientID, notConfigured),
			EnableAuth: false,
		}
		cfg.applyDefaults()
		return cfg
	}

	cfg := &Config{
		TenantID:       tenantID,
		ClientID:       clientID,
		ClientSecret:   os.Getenv("ENTRA_CLIENT_SECRET"),
		Authority:      os.Getenv("ENTRA_AUTHORITY"),
		RedirectURI:    os.Getenv("ENTRA_REDIRECT_URI"),
		EnableAuth:     strings.EqualFold(os.Getenv("ENTRA_ENABLE_AUTH"), "true"),
		Mode:           Mode(os.Getenv("ENTRA_AUTH_MODE")),
		TokenCachePath: os.Getenv("ENTRA_TOKEN_CACHE_PATH"),
		Scopes:         parseScopes(os.Getenv("ENTRA_SCOPES")),
	}
	cfg.applyDefaults()

	slog.Info("auth config loaded from environment",
		"enabled", cfg.EnableAuth, "mode", string(cfg.Mode))
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Authority == "" {
		c.Authority = "https://login.microsoftonline.com/" + c.TenantID
	}
	if len(c.Scopes) == 0 {
		c.Scopes = []string{defaultScope}
	}
	if c.RedirectURI == "" {
		c.RedirectURI = defaultRedirectURI
	}
	if c.Mode == "" {
		c.Mode = ModeApplication
	}
	if c.TokenCachePath == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			c.TokenCachePath = filepath.Join(home, ".pox-mcp", "token_cache.json")
		}
	}
}

// Validate checks the configuration. When auth is disabled it always
// passes; when enabled, missing identifiers or an unknown mode are
// configuration errors surfaced before any network exchange.
func (c *Config) Validate() error {
	if c.Mode != ModeApplication && c.Mode != ModeDelegated {
		return fmt.Errorf("auth mode must be either %q or %q, got %q",
			ModeApplication, ModeDelegated, c.Mode)
	}

	if !c.EnableAuth {
		return nil
	}

	if c.TenantID == "" || c.TenantID == notConfigured {
		return errors.New("tenant_id is required when authentication is enabled")
	}
	if c.ClientID == "" || c.ClientID == notConfigured {
		return errors.New("client_id is required when authentication is enabled")
	}
	if c.Mode == ModeApplication && c.ClientSecret == "" {
		return errors.New("client_secret is required for application authentication mode")
	}
	if len(c.Scopes) == 0 {
		return errors.New("scopes must be a non-empty list")
	}

	return nil
}

// TokenURL returns the OAuth2 token endpoint for the tenant.
func (c *Config) TokenURL() string {
	return c.Authority + "/oauth2/v2.0/token"
}

// DeviceCodeURL returns the device authorization endpoint.
func (c *Config) DeviceCodeURL() string {
	return c.Authority + "/oauth2/v2.0/devicecode"
}

// SafeConfig renders the configuration for logging with the client
// secret masked.
func (c *Config) SafeConfig() map[string]any {
	secret := ""
	if c.ClientSecret != "" {
		secret = "***"
	}
	return map[string]any{
		"tenant_id":        c.TenantID,
		"client_id":        c.ClientID,
		"client_secret":    secret,
		"authority":        c.Authority,
		"scopes":           c.Scopes,
		"redirect_uri":     c.RedirectURI,
		"enable_auth":      c.EnableAuth,
		"auth_mode":        string(c.Mode),
		"token_cache_path": c.TokenCachePath,
	}
}

func parseScopes(s string) []string {
	if s == "" {
		return nil
	}
	var scopes []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			scopes = append(scopes, trimmed)
		}
	}
	return scopes
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
