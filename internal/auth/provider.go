package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"
)

// Sentinel errors for the authentication subsystem.
var (
	// ErrAuthDisabled indicates authentication is turned off by config.
	ErrAuthDisabled = errors.New("auth: authentication is disabled")

	// ErrNoToken indicates no valid token could be produced.
	ErrNoToken = errors.New("auth: no valid token available")
)

// Provider acquires and caches Entra ID access tokens. Application
// mode uses the client credentials grant; delegated mode uses the
// device code flow with refresh token renewal.
//
// Concurrent Token calls with an empty cache coalesce into a single
// network exchange.
type Provider struct {
	cfg    *Config
	cache  *TokenCache
	client *http.Client
	group  singleflight.Group

	// prompt receives device code instructions. Defaults to stderr so
	// the STDIO transport is not disturbed.
	prompt io.Writer
}

// NewProvider creates a Provider owning the given token cache.
func NewProvider(cfg *Config, cache *TokenCache) *Provider {
	return &Provider{
		cfg:    cfg,
		cache:  cache,
		client: &http.Client{Timeout: 30 * time.Second},
		prompt: os.Stderr,
	}
}

// Token returns a valid access token, reusing the cache when possible.
func (p *Provider) Token(ctx context.Context) (string, error) {
	return p.token(ctx, false)
}

// ForceToken discards the cached token and performs a fresh exchange.
func (p *Provider) ForceToken(ctx context.Context) (string, error) {
	return p.token(ctx, true)
}

func (p *Provider) token(ctx context.Context, force bool) (string, error) {
	if !p.cfg.EnableAuth {
		return "", ErrAuthDisabled
	}

	if !force && !p.cache.Expired() {
		slog.Debug("using cached access token")
		return p.cache.AccessToken(), nil
	}

	// Exactly one exchange runs regardless of how many callers arrive
	// while it is in flight.
	tok, err, _ := p.group.Do("token", func() (any, error) {
		// A racing caller may have refilled the cache already.
		if !force && !p.cache.Expired() {
			return p.cache.AccessToken(), nil
		}
		return p.acquire(ctx)
	})
	if err != nil {
		return "", err
	}
	return tok.(string), nil
}

// acquire runs the refresh-then-acquire ladder for the configured mode.
func (p *Provider) acquire(ctx context.Context) (string, error) {
	if p.cfg.Mode == ModeDelegated {
		if refresh := p.cache.RefreshToken(); refresh != "" {
			tok, err := p.refreshGrant(ctx, refresh)
			if err == nil {
				return tok, nil
			}
			// A dead refresh token means the whole cached state is stale.
			slog.Warn("token refresh failed, clearing cache", "error", err)
			p.cache.Clear()
		}
		return p.deviceCodeFlow(ctx)
	}
	return p.clientCredentials(ctx)
}

// ClearCache wipes cached tokens so the next Token call performs a
// fresh exchange.
func (p *Provider) ClearCache() {
	p.cache.Clear()
	slog.Info("token cache cleared, next request will re-authenticate")
}

// IsAuthenticated reports whether an unexpired token is cached.
func (p *Provider) IsAuthenticated() bool {
	return p.cfg.EnableAuth && !p.cache.Expired()
}

// Status reports the provider state for the diagnostics surface.
func (p *Provider) Status() map[string]any {
	return map[string]any{
		"enabled":       p.cfg.EnableAuth,
		"mode":          string(p.cfg.Mode),
		"authenticated": p.IsAuthenticated(),
		"token_info":    p.cache.Info(),
	}
}

// ValidateToken performs a basic structural check: a JWT has three
// non-empty dot-separated segments. No signature verification, Graph
// does that server side.
func ValidateToken(tok string) bool {
	parts := strings.Split(tok, ".")
	if len(parts) != 3 {
		return false
	}
	for _, part := range parts {
		if part == "" {
			return false
		}
	}
	return true
}

// tokenResponse is the OAuth2 token endpoint payload.
type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int    `json:"expires_in"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// clientCredentials performs the application-mode grant.
func (p *Provider) clientCredentials(ctx context.Context) (string, error) {
	slog.Info("acquiring token via client credentials grant")

	cc := clientcredentials.Config{
		ClientID:     p.cfg.ClientID,
		ClientSecret: p.cfg.ClientSecret,
		TokenURL:     p.cfg.TokenURL(),
		Scopes:       p.cfg.Scopes,
		// The Microsoft identity platform expects the credentials in the
		// form body, not a Basic auth header.
		AuthStyle: oauth2.AuthStyleInParams,
	}

	tok, err := cc.Token(context.WithValue(ctx, oauth2.HTTPClient, p.client))
	if err != nil {
		return "", fmt.Errorf("client credentials grant: %w", err)
	}

	expiresIn := int(time.Until(tok.Expiry).Seconds())
	p.cache.Store(tok.AccessToken, "", expiresIn)

	slog.Info("token acquired", "expiry", tok.Expiry.Format(time.RFC3339))
	return tok.AccessToken, nil
}

// refreshGrant exchanges a refresh token for a new token pair.
// Only reachable in delegated mode; application tokens are simply
// re-acquired.
func (p *Provider) refreshGrant(ctx context.Context, refreshToken string) (string, error) {
	slog.Info("refreshing access token")

	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("client_id", p.cfg.ClientID)
	if p.cfg.ClientSecret != "" {
		data.Set("client_secret", p.cfg.ClientSecret)
	}
	data.Set("refresh_token", refreshToken)
	data.Set("scope", strings.Join(p.cfg.Scopes, " "))

	resp, err := p.postForm(ctx, p.cfg.TokenURL(), data)
	if err != nil {
		return "", err
	}
	if resp.Error != "" {
		return "", fmt.Errorf("token refresh failed: %s", resp.Error)
	}
	if resp.AccessToken == "" {
		return "", errors.New("token refresh returned no access token")
	}

	// Entra may rotate the refresh token; keep the old one otherwise.
	newRefresh := resp.RefreshToken
	if newRefresh == "" {
		newRefresh = refreshToken
	}
	p.cache.Store(resp.AccessToken, newRefresh, resp.ExpiresIn)

	return resp.AccessToken, nil
}

// deviceCodeResponse is the device authorization endpoint payload.
type deviceCodeResponse struct {
	DeviceCode      string `json:"device_code"`
	UserCode        string `json:"user_code"`
	VerificationURI string `json:"verification_uri"`
	ExpiresIn       int    `json:"expires_in"`
	Interval        int    `json:"interval"`
	Message         string `json:"message"`
}

// deviceCodeFlow runs the full delegated-mode login: initiate, show
// the user instructions, poll until approved. Polling stops when the
// device code itself expires (expires_in from the initiation
// response) or ctx is cancelled, whichever comes first.
func (p *Provider) deviceCodeFlow(ctx context.Context) (string, error) {
	slog.Info("starting device code flow")

	data := url.Values{}
	data.Set("client_id", p.cfg.ClientID)
	data.Set("scope", strings.Join(p.cfg.Scopes, " "))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.DeviceCodeURL(),
		strings.NewReader(data.Encode()))
	if err != nil {
		return "", fmt.Errorf("create device code request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	httpResp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("device code request: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("device code request failed with status %d: %w",
			httpResp.StatusCode, ErrNoToken)
	}

	var dc deviceCodeResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&dc); err != nil {
		return "", fmt.Errorf("decode device code response: %w", err)
	}

	if dc.Message != "" {
		fmt.Fprintln(p.prompt, dc.Message)
	} else {
		fmt.Fprintf(p.prompt, "To sign in, visit %s and enter the code %s\n",
			dc.VerificationURI, dc.UserCode)
	}

	return p.pollForToken(ctx, dc)
}

// pollForToken polls the token endpoint at the server-provided
// interval until the user approves, the code expires, or ctx is done.
func (p *Provider) pollForToken(ctx context.Context, dc deviceCodeResponse) (string, error) {
	interval := dc.Interval
	if interval <= 0 {
		interval = 5
	}
	expiresIn := dc.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 900
	}

	deadline := time.NewTimer(time.Duration(expiresIn) * time.Second)
	defer deadline.Stop()
	ticker := time.NewTicker(time.Duration(interval) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-deadline.C:
			return "", fmt.Errorf("device code expired before sign-in completed: %w", ErrNoToken)
		case <-ticker.C:
			data := url.Values{}
			data.Set("grant_type", "urn:ietf:params:oauth:grant-type:device_code")
			data.Set("client_id", p.cfg.ClientID)
			data.Set("device_code", dc.DeviceCode)

			resp, err := p.postForm(ctx, p.cfg.TokenURL(), data)
			if err != nil {
				return "", err
			}

			switch resp.Error {
			case "":
				p.cache.Store(resp.AccessToken, resp.RefreshToken, resp.ExpiresIn)
				slog.Info("device code sign-in complete")
				return resp.AccessToken, nil
			case "authorization_pending":
				continue
			case "slow_down":
				interval += 5
				ticker.Reset(time.Duration(interval) * time.Second)
			default:
				return "", fmt.Errorf("device code flow failed: %s", resp.Error)
			}
		}
	}
}

// postForm posts url-encoded form data to the token endpoint and
// decodes the response regardless of HTTP status; OAuth2 errors come
// back in the body.
func (p *Provider) postForm(ctx context.Context, endpoint string, data url.Values) (*tokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
		strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	return &tr, nil
}
