// Package mcpserver is the driving adapter that exposes the tool
// services over the Model Context Protocol, on stdio or streamable
// HTTP.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/getset-labs/pox-mcp/internal/auth"
	"github.com/getset-labs/pox-mcp/internal/config"
	"github.com/getset-labs/pox-mcp/internal/core/services"
)

const (
	serverName    = "pox-mcp"
	serverVersion = "1.0.0"
)

// Services bundles the tool services the server exposes.
type Services struct {
	EID         *services.EIDService
	Intune      *services.IntuneService
	IGA         *services.IGAService
	Network     *services.NetworkAccessService
	POC         *services.POCService
	Diagnostics *services.DiagnosticsService
}

// Server hosts the MCP tool surface.
type Server struct {
	cfg  *config.Server
	auth *auth.Middleware
	svcs Services
	mcp  *mcp.Server
}

// New builds the MCP server and registers every tool.
func New(cfg *config.Server, authMW *auth.Middleware, svcs Services) *Server {
	s := &Server{
		cfg:  cfg,
		auth: authMW,
		svcs: svcs,
		mcp: mcp.NewServer(&mcp.Implementation{
			Name:    serverName,
			Version: serverVersion,
		}, nil),
	}
	s.registerTools()
	return s
}

// Run serves MCP on the configured transport until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	switch s.cfg.Transport {
	case config.TransportHTTP:
		return s.runHTTP(ctx)
	default:
		slog.Info("serving MCP on stdio")
		return s.mcp.Run(ctx, &mcp.StdioTransport{})
	}
}

// runHTTP serves the streamable HTTP transport and shuts down
// gracefully on ctx cancellation.
func (s *Server) runHTTP(ctx context.Context) error {
	handler := mcp.NewStreamableHTTPHandler(
		func(*http.Request) *mcp.Server { return s.mcp },
		&mcp.StreamableHTTPOptions{Stateless: s.cfg.StatelessHTTP},
	)

	mux := http.NewServeMux()
	mux.Handle(s.cfg.HTTPPath, handler)

	addr := net.JoinHostPort(s.cfg.HTTPHost, fmt.Sprint(s.cfg.HTTPPort))
	srv := &http.Server{
		Addr:        addr,
		Handler:     mux,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("serving MCP over HTTP", "addr", addr, "path", s.cfg.HTTPPath, "stateless", s.cfg.StatelessHTTP)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	}
}
