package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/getset-labs/pox-mcp/internal/adapters/driving/cli"
	"github.com/getset-labs/pox-mcp/internal/adapters/driving/mcpserver"
	"github.com/getset-labs/pox-mcp/internal/auth"
	"github.com/getset-labs/pox-mcp/internal/config"
	"github.com/getset-labs/pox-mcp/internal/connectors/microsoft"
	"github.com/getset-labs/pox-mcp/internal/core/services"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	cli.SetVersion(version)

	authCfg := auth.ConfigFromEnv()
	cache := auth.NewTokenCache(authCfg.TokenCachePath)
	middleware, err := auth.NewMiddleware(authCfg, cache)
	if err != nil {
		log.Printf("auth setup failed: %v", err)
		return 1
	}
	cli.SetAuthMiddleware(middleware)

	cli.SetRunner(func(ctx context.Context, cfg *config.Server) error {
		ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()

		// Token acquisition starts in the background so the server
		// accepts connections immediately; tool calls wait for it.
		middleware.StartBackground(ctx)

		graph := microsoft.NewClient(middleware)
		blob := microsoft.NewBlobClient()

		eid := services.NewEIDService(graph)
		iga := services.NewIGAService(graph)
		srv := mcpserver.New(cfg, middleware, mcpserver.Services{
			EID:         eid,
			Intune:      services.NewIntuneService(graph, blob),
			IGA:         iga,
			Network:     services.NewNetworkAccessService(graph),
			POC:         services.NewPOCService(eid, iga),
			Diagnostics: services.NewDiagnosticsService(graph, middleware),
		})
		return srv.Run(ctx)
	})

	if err := cli.Execute(context.Background()); err != nil {
		log.Printf("error: %v", err)
		return 1
	}
	return 0
}
