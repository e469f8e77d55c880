// Package app assembles the filter, cache, store and coordinator from a
// config.Config and serves them.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/leonardcser/addrkv/internal/cache"
	"github.com/leonardcser/addrkv/internal/config"
	"github.com/leonardcser/addrkv/internal/coordinator"
	"github.com/leonardcser/addrkv/internal/filter"
	"github.com/leonardcser/addrkv/internal/logger"
	"github.com/leonardcser/addrkv/internal/store"
)

// JanitorInterval is how often expired cache entries are purged.
const JanitorInterval = time.Minute

// App owns the engines behind one Coordinator.
type App struct {
	Coordinator *coordinator.Coordinator
	Filter      *filter.Cuckoo

	cfg     config.Config
	cache   cache.KV
	store   store.Store
	closers []func() error
}

// Options tunes Open.
type Options struct {
	// StartDaemon is called when the cache daemon is unreachable. Nil
	// disables auto-start.
	StartDaemon func() error
	// Coordinator options appended after the config-derived ones.
	Coordinator []coordinator.Option
}

// Open builds every engine named by cfg and rebuilds the filter from the
// durable store. On error everything opened so far is closed.
func Open(ctx context.Context, cfg config.Config, opts Options) (_ *App, err error) {
	a := &App{cfg: cfg, Filter: filter.NewCuckoo(cfg.FilterCapacity)}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	if a.cache, err = a.openCache(ctx, opts.StartDaemon); err != nil {
		return nil, err
	}
	if a.store, err = a.openStore(ctx); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.store.Close)

	n, err := filter.Rebuild(ctx, a.Filter, a.store)
	if err != nil {
		return nil, err
	}
	logger.Infof("Filter rebuilt from store with %d keys", n)

	var copts []coordinator.Option
	if cfg.Repopulate {
		copts = append(copts, coordinator.WithRepopulate(cfg.CacheTTL))
	}
	copts = append(copts, opts.Coordinator...)
	a.Coordinator = coordinator.New(a.Filter, a.cache, a.store, copts...)
	return a, nil
}

func (a *App) openCache(ctx context.Context, startDaemon func() error) (cache.KV, error) {
	switch a.cfg.CacheDriver {
	case config.CacheMemory:
		logger.Infof("Using in-memory cache")
		return cache.NewMemory(nil), nil
	case config.CacheBolt:
		s, err := cache.Open(a.cfg.CachePath, cache.Options{Bucket: "addrkv"})
		if err != nil {
			return nil, fmt.Errorf("open bbolt cache: %w", err)
		}
		a.closers = append(a.closers, s.Close)
		logger.Infof("Using bbolt cache at %s", a.cfg.CachePath)
		return s, nil
	case config.CacheDaemon:
		sock := a.cfg.SocketPath()
		logger.Infof("Attempting to connect to cache daemon at %s", sock)
		c, err := ConnectCache(ctx, sock, startDaemon)
		if err != nil {
			return nil, err
		}
		logger.Infof("Successfully connected to cache daemon")
		return c, nil
	default:
		return nil, fmt.Errorf("unknown cache driver %q", a.cfg.CacheDriver)
	}
}

func (a *App) openStore(ctx context.Context) (store.Store, error) {
	switch a.cfg.StoreDriver {
	case config.StoreSQLite:
		s, err := store.OpenSQLite(ctx, a.cfg.StorePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, nil
	case config.StoreBolt:
		s, err := store.OpenBolt(a.cfg.StorePath)
		if err != nil {
			return nil, fmt.Errorf("open bbolt store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", a.cfg.StoreDriver)
	}
}

// StartJanitor purges expired entries in the background until ctx is done.
// Engines that cannot purge locally, such as the daemon client, are skipped.
func (a *App) StartJanitor(ctx context.Context, interval time.Duration) {
	p, ok := a.cache.(cache.Purger)
	if !ok {
		return
	}
	go cache.RunJanitor(ctx, p, interval, func(n int, err error) {
		if err != nil {
			logger.Warnf("cache purge failed: %v", err)
			return
		}
		if n > 0 {
			logger.Debugf("cache purge removed %d entries", n)
		}
	})
}

// Close releases engines in reverse open order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
