package app

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/leonardcser/addrkv/internal/cache"
	"github.com/leonardcser/addrkv/internal/config"
	"github.com/leonardcser/addrkv/internal/logger"
)

// DaemonBinary is the cache daemon executable started on demand.
const DaemonBinary = "addrkv-cache"

const (
	daemonWait     = 5 * time.Second
	daemonPollStep = 200 * time.Millisecond
)

// ConnectCache returns a client for the daemon listening on sock. When the
// daemon is not reachable, start is called once and the socket is polled
// until it answers or daemonWait elapses. A nil start disables auto-start.
func ConnectCache(ctx context.Context, sock string, start func() error) (*cache.Client, error) {
	client := cache.NewClient(sock)
	err := client.Ping(ctx)
	if err == nil {
		return client, nil
	}
	if start == nil {
		return nil, fmt.Errorf("connect cache daemon at %s: %w", sock, err)
	}

	logger.Warnf("Failed to connect to cache daemon: %v, attempting to start daemon", err)
	if startErr := start(); startErr != nil {
		logger.Errorf("Failed to start cache daemon: %v", startErr)
	} else {
		logger.Infof("Cache daemon started")
	}

	deadline := time.Now().Add(daemonWait)
	for time.Now().Before(deadline) {
		if err = client.Ping(ctx); err == nil {
			return client, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(daemonPollStep):
		}
	}
	return nil, fmt.Errorf("connect cache daemon at %s after startup attempt: %w", sock, err)
}

// StartCacheDaemon returns a starter for ConnectCache that launches
// DaemonBinary detached, looking next to the running executable first, then on
// PATH, then in the working directory. The child is told the socket and cache
// file resolved in cfg, however they were supplied.
func StartCacheDaemon(cfg config.Config) func() error {
	return func() error {
		path, err := findDaemon()
		if err != nil {
			return err
		}
		cmd, err := daemonCommand(path, cfg)
		if err != nil {
			return err
		}
		return cmd.Start()
	}
}

func findDaemon() (string, error) {
	if exePath, err := os.Executable(); err == nil {
		sibling := filepath.Join(filepath.Dir(exePath), DaemonBinary)
		if _, statErr := os.Stat(sibling); statErr == nil {
			return sibling, nil
		}
	}
	if path, err := exec.LookPath(DaemonBinary); err == nil {
		return path, nil
	}
	if _, err := os.Stat("./" + DaemonBinary); err == nil {
		return "./" + DaemonBinary, nil
	}
	return "", exec.ErrNotFound
}

// daemonCommand builds the daemon invocation with absolute -cache-sock and
// -cache-path flags.
func daemonCommand(path string, cfg config.Config) (*exec.Cmd, error) {
	sock, err := filepath.Abs(cfg.SocketPath())
	if err != nil {
		return nil, fmt.Errorf("resolve cache socket: %w", err)
	}
	cachePath, err := filepath.Abs(cfg.CachePath)
	if err != nil {
		return nil, fmt.Errorf("resolve cache path: %w", err)
	}
	cmd := exec.Command(path, "-cache-sock="+sock, "-cache-path="+cachePath)
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Env = os.Environ()
	return cmd, nil
}
