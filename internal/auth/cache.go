package auth

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// expiryBuffer is subtracted from the token lifetime so tokens are
// refreshed before they actually lapse mid-request.
const expiryBuffer = 5 * time.Minute

// defaultExpiresIn is assumed when the token endpoint omits expires_in.
const defaultExpiresIn = 3600

// TokenCache holds the current access and refresh tokens and persists
// them to disk. It is an explicitly owned object: every Provider gets
// its own cache, there is no process-global state.
type TokenCache struct {
	mu   sync.Mutex
	tok  *oauth2.Token
	path string
	now  func() time.Time
}

// NewTokenCache creates a cache persisting to path. An empty path
// disables disk persistence. A previously cached token is loaded
// eagerly; one that is already expired is discarded along with its
// file.
func NewTokenCache(path string) *TokenCache {
	c := &TokenCache{path: path, now: time.Now}
	c.load()
	return c
}

// Store records a token pair. refreshToken may be empty (application
// mode never gets one). expiresIn is in seconds; zero or negative
// falls back to one hour.
func (c *TokenCache) Store(accessToken, refreshToken string, expiresIn int) {
	if expiresIn <= 0 {
		expiresIn = defaultExpiresIn
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.tok = &oauth2.Token{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		Expiry:       c.now().Add(time.Duration(expiresIn) * time.Second),
	}
	c.save()

	slog.Debug("token stored", "expiry", c.tok.Expiry.Format(time.RFC3339))
}

// AccessToken returns the cached access token, or "" when none is held.
// It does not check expiry; pair with Expired.
func (c *TokenCache) AccessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tok == nil {
		return ""
	}
	return c.tok.AccessToken
}

// RefreshToken returns the cached refresh token, or "".
func (c *TokenCache) RefreshToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tok == nil {
		return ""
	}
	return c.tok.RefreshToken
}

// Expired reports whether the cached token is absent or within the
// expiry buffer of lapsing.
func (c *TokenCache) Expired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expiredLocked()
}

func (c *TokenCache) expiredLocked() bool {
	if c.tok == nil || c.tok.AccessToken == "" {
		return true
	}
	return !c.now().Before(c.tok.Expiry.Add(-expiryBuffer))
}

// Clear wipes the in-memory tokens and removes the cache file.
func (c *TokenCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.tok = nil
	if c.path != "" {
		if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
			slog.Warn("failed to remove token cache file", "path", c.path, "error", err)
		}
	}
	slog.Debug("token cache cleared")
}

// Info returns a status snapshot for diagnostics. The token value
// itself is never included.
func (c *TokenCache) Info() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()

	info := map[string]any{
		"has_token":         c.tok != nil && c.tok.AccessToken != "",
		"expired":           c.expiredLocked(),
		"has_refresh_token": c.tok != nil && c.tok.RefreshToken != "",
		"cache_file":        c.path,
		"cache_file_exists": false,
	}
	if c.tok != nil && !c.tok.Expiry.IsZero() {
		info["expiry"] = c.tok.Expiry.Format(time.RFC3339)
	}
	if c.path != "" {
		if _, err := os.Stat(c.path); err == nil {
			info["cache_file_exists"] = true
		}
	}
	return info
}

// save writes the cache file with owner-only permissions. Callers hold mu.
func (c *TokenCache) save() {
	if c.path == "" || c.tok == nil {
		return
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		slog.Warn("failed to create token cache directory", "error", err)
		return
	}

	data, err := json.MarshalIndent(c.tok, "", "  ")
	if err != nil {
		slog.Warn("failed to encode token cache", "error", err)
		return
	}

	if err := os.WriteFile(c.path, data, 0o600); err != nil {
		slog.Warn("failed to write token cache file", "path", c.path, "error", err)
	}
}

// load restores a persisted token. Corrupt or expired cache files are
// discarded, never fatal.
func (c *TokenCache) load() {
	if c.path == "" {
		return
	}

	data, err := os.ReadFile(c.path)
	if err != nil {
		return
	}

	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		slog.Warn("discarding corrupt token cache file", "path", c.path)
		_ = os.Remove(c.path)
		return
	}

	c.tok = &tok
	if c.expiredLocked() {
		slog.Debug("cached token expired, discarding")
		c.tok = nil
		_ = os.Remove(c.path)
		return
	}

	slog.Debug("token loaded from cache", "expiry", tok.Expiry.Format(time.RFC3339))
}
