// Command cache-server runs the shared cache daemon: a bbolt TTL cache served
// over a unix socket. Install it as addrkv-cache so clients can auto-start it.
package main

import (
	"context"
	"flag"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/leonardcser/addrkv/internal/app"
	"github.com/leonardcser/addrkv/internal/cache"
	"github.com/leonardcser/addrkv/internal/config"
	"github.com/leonardcser/addrkv/internal/logger"
)

func main() {
	if err := logger.InitFromEnv(); err != nil {
		panic(err)
	}
	defer logger.Close()

	cfg, err := config.Parse(flag.CommandLine, os.Args[1:])
	if err != nil {
		logger.Errorf("config: %v", err)
		return
	}
	sock := cfg.SocketPath()

	// Ensure socket dir exists and remove stale socket
	_ = os.MkdirAll(filepath.Dir(sock), 0o755)
	_ = os.Remove(sock)

	l, err := net.Listen("unix", sock)
	if err != nil {
		logger.Errorf("listen on %s: %v", sock, err)
		return
	}
	_ = os.Chmod(sock, 0o600)

	store, err := cache.Open(cfg.CachePath, cache.Options{Bucket: "addrkv"})
	if err != nil {
		_ = l.Close()
		logger.Errorf("open cache at %s: %v", cfg.CachePath, err)
		return
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go cache.RunJanitor(ctx, store, app.JanitorInterval, func(n int, err error) {
		if err != nil {
			logger.Warnf("cache purge failed: %v", err)
		}
	})

	logger.Infof("Cache daemon serving %s on %s", cfg.CachePath, sock)
	if err := cache.Serve(ctx, l, store); err != nil {
		logger.Errorf("serve: %v", err)
	}
	_ = os.Remove(sock)
}
