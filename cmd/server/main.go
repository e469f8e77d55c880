// Command server runs the addrkv HTTP service with a gRPC health endpoint.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/leonardcser/addrkv/internal/api"
	"github.com/leonardcser/addrkv/internal/app"
	"github.com/leonardcser/addrkv/internal/config"
	"github.com/leonardcser/addrkv/internal/logger"
	"github.com/leonardcser/addrkv/internal/platform/otel"
)

func main() {
	if err := run(); err != nil {
		logger.Errorf("server error: %v", err)
		_ = logger.Close()
		os.Exit(1)
	}
	_ = logger.Close()
}

func run() error {
	if err := logger.InitFromEnv(); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	cfg, err := config.Parse(flag.CommandLine, os.Args[1:])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Setup(ctx, "addrkv", cfg.TracingEndpoint())
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warnf("shutdown tracing: %v", err)
		}
	}()

	logger.Infof("Starting addrkv server")
	a, err := app.Open(ctx, cfg, app.Options{StartDaemon: app.StartCacheDaemon(cfg)})
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warnf("close engines: %v", err)
		}
	}()
	a.StartJanitor(ctx, app.JanitorInterval)

	handler := api.NewHandler(a.Coordinator, cfg.CacheTTL, cfg.BodyLimit)
	srv, err := app.NewServer(cfg.HTTPAddr, cfg.HealthAddr, handler.Routes())
	if err != nil {
		return err
	}
	return srv.Serve(ctx)
}
