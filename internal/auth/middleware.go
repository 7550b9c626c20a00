package auth

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/getset-labs/pox-mcp/internal/core/ports/driven"
)

// Middleware owns the auth configuration and provider and gates tool
// execution on a valid token. It implements driven.TokenProvider so
// the Graph connector can consume it directly.
//
// Startup authentication runs as an explicit background task: the
// server registers tools immediately and the first tool call awaits
// the in-flight result instead of racing it.
type Middleware struct {
	cfg      *Config
	provider *Provider

	mu      sync.Mutex
	startup chan struct{}
	started bool
}

var _ driven.TokenProvider = (*Middleware)(nil)

// NewMiddleware validates cfg and builds the middleware. Configuration
// errors surface here, before any network call is attempted.
func NewMiddleware(cfg *Config, cache *TokenCache) (*Middleware, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("auth config validation failed: %w", err)
	}
	return &Middleware{
		cfg:      cfg,
		provider: NewProvider(cfg, cache),
	}, nil
}

// StartBackground launches the initial token acquisition without
// blocking the caller. Safe to call once; later Token calls wait for
// the task to settle before consulting the provider.
func (m *Middleware) StartBackground(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return
	}
	m.started = true

	if !m.cfg.EnableAuth {
		slog.Info("authentication disabled, skipping startup auth")
		return
	}

	done := make(chan struct{})
	m.startup = done

	go func() {
		defer close(done)
		if _, err := m.provider.Token(ctx); err != nil {
			// Not fatal: tools will retry on their first call.
			slog.Warn("startup authentication failed", "error", err)
			return
		}
		slog.Info("startup authentication complete")
	}()
}

// awaitStartup blocks until the background auth task (if any) has
// settled or ctx is cancelled.
func (m *Middleware) awaitStartup(ctx context.Context) error {
	m.mu.Lock()
	done := m.startup
	m.mu.Unlock()

	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetToken returns a valid access token, waiting for the startup task
// first. When auth is disabled it returns an empty token and no error
// so tools can run against mock deployments.
func (m *Middleware) GetToken(ctx context.Context) (string, error) {
	if !m.cfg.EnableAuth {
		return "", nil
	}
	if err := m.awaitStartup(ctx); err != nil {
		return "", err
	}
	return m.provider.Token(ctx)
}

// IsAuthenticated reports whether a valid token is currently cached.
func (m *Middleware) IsAuthenticated() bool {
	return m.provider.IsAuthenticated()
}

// RequireAuth is the explicit pre-call gate for Graph-calling tools.
// It returns ErrNoToken (wrapped) when authentication is enabled but
// no token can be produced.
func (m *Middleware) RequireAuth(ctx context.Context) error {
	if !m.cfg.EnableAuth {
		return fmt.Errorf("%w: set ENTRA_ENABLE_AUTH=true and configure credentials", ErrAuthDisabled)
	}
	tok, err := m.GetToken(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoToken, err)
	}
	if tok == "" {
		return ErrNoToken
	}
	return nil
}

// AuthHeaders returns the Authorization header map for a Graph call.
func (m *Middleware) AuthHeaders(ctx context.Context) (map[string]string, error) {
	tok, err := m.GetToken(ctx)
	if err != nil {
		return nil, err
	}
	if tok == "" {
		return nil, ErrNoToken
	}
	return map[string]string{"Authorization": "Bearer " + tok}, nil
}

// ClearCache forces re-authentication on the next token request.
func (m *Middleware) ClearCache() {
	m.provider.ClearCache()
}

// Status reports the middleware and provider state.
func (m *Middleware) Status() map[string]any {
	return m.provider.Status()
}

// Config exposes the validated configuration (for safe logging).
func (m *Middleware) Config() *Config {
	return m.cfg
}
