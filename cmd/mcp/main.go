// Command mcp exposes the get-data and set-data tools over MCP stdio.
// Logs go to ADDRKV_LOG or stderr; stdout carries the protocol.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"

	"github.com/leonardcser/addrkv/internal/app"
	"github.com/leonardcser/addrkv/internal/config"
	"github.com/leonardcser/addrkv/internal/logger"
	"github.com/leonardcser/addrkv/internal/tools"
)

func main() {
	if err := logger.InitFromEnv(); err != nil {
		panic(err)
	}
	defer logger.Close()

	logger.Infof("Starting addrkv MCP server")

	cfg, err := config.Parse(flag.CommandLine, os.Args[1:])
	if err != nil {
		logger.Errorf("config: %v", err)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg, app.Options{StartDaemon: app.StartCacheDaemon(cfg)})
	if err != nil {
		logger.Errorf("open engines: %v", err)
		return
	}
	defer a.Close()
	a.StartJanitor(ctx, app.JanitorInterval)

	s := server.NewMCPServer(
		"addrkv",
		"0.1.0",
		server.WithRecovery(),
		server.WithToolCapabilities(false),
	)
	s.AddTool(tools.NewGetDataTool(), tools.GetDataHandler(a.Coordinator))
	logger.Infof("Registered %s tool", tools.GetDataTool)
	s.AddTool(tools.NewSetDataTool(), tools.SetDataHandler(a.Coordinator, cfg.CacheTTL))
	logger.Infof("Registered %s tool", tools.SetDataTool)

	logger.Infof("Starting MCP server on stdio")
	if err := server.ServeStdio(s); err != nil {
		logger.Errorf("server error: %v", err)
	}
}
