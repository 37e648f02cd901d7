package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"github.com/twwat/imxup-sub002/internal/config"
	"github.com/twwat/imxup-sub002/internal/driver"
	"github.com/twwat/imxup-sub002/internal/engine"
	"github.com/twwat/imxup-sub002/internal/ipc"
	"github.com/twwat/imxup-sub002/internal/logging"
	"github.com/twwat/imxup-sub002/internal/queue"
	"github.com/twwat/imxup-sub002/internal/scanner"
	"github.com/twwat/imxup-sub002/internal/store"
	"github.com/twwat/imxup-sub002/internal/uploader"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "imxupd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, cfgPath, found, err := config.Load("")
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if !found {
		log.Printf("no config file found, using defaults (looked at %s)", cfgPath)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}

	// Single instance per data directory.
	lock := flock.New(cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another imxupd instance holds %s", cfg.LockPath())
	}
	defer lock.Unlock()

	st, err := store.Open(cfg, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	mgr, worker, drv, cleanup, err := wire(cfg, st, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	worker.Start()
	defer worker.Stop()
	if err := mgr.Start(ctx); err != nil {
		return fmt.Errorf("start queue manager: %w", err)
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer flushCancel()
		if err := mgr.Stop(flushCtx); err != nil {
			logger.Warn("final flush failed", logging.Error(err))
		}
	}()

	srv, err := ipc.NewServer(ctx, cfg.SocketPath(), mgr, drv, st, logger)
	if err != nil {
		return fmt.Errorf("start control socket: %w", err)
	}
	defer srv.Close()
	srv.Serve()

	driverDone := make(chan struct{})
	go func() {
		defer close(driverDone)
		drv.Run(ctx)
	}()

	logger.Info("imxupd started",
		logging.String("config", cfgPath),
		logging.String("db", st.Path()),
		logging.String("socket", cfg.SocketPath()))

	<-ctx.Done()
	logger.Info("imxupd shutting down")
	<-driverDone
	return nil
}

// wire assembles the scan worker, queue manager, transfer pools, and driver.
// The scan worker and manager reference each other, so the worker's handler
// is bound after the manager exists.
func wire(cfg *config.Config, st *store.Store, logger *slog.Logger) (*queue.Manager, *scanner.Worker, *driver.Driver, func(), error) {
	handler := &deferredHandler{}
	worker := scanner.NewWorker(cfg.Scan, handler, logger)
	mgr := queue.NewManager(st, worker, cfg, logger)
	handler.Handler = mgr

	opts := uploader.Options{
		Endpoint:       cfg.Upload.Endpoint,
		APIKey:         cfg.Upload.APIKey,
		ConnectTimeout: time.Duration(cfg.Upload.ConnectTimeout) * time.Second,
		ReadTimeout:    time.Duration(cfg.Upload.ReadTimeout) * time.Second,
	}
	primary, err := uploader.NewPool(opts, cfg.Upload.BatchSize)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("build transfer pool: %w", err)
	}
	pools := []*uploader.Pool{primary}

	var mirrors []driver.Mirror
	if cfg.Mirror.Enabled {
		for _, dest := range cfg.Mirror.Destinations {
			mopts := opts
			mopts.Endpoint = dest.Endpoint
			if dest.APIKey != "" {
				mopts.APIKey = dest.APIKey
			}
			pool, err := uploader.NewPool(mopts, cfg.Upload.BatchSize)
			if err != nil {
				for _, p := range pools {
					p.Close()
				}
				return nil, nil, nil, nil, fmt.Errorf("build mirror pool %s: %w", dest.Name, err)
			}
			pools = append(pools, pool)
			mirrors = append(mirrors, driver.Mirror{Name: dest.Name, Pool: engine.NewSlotPool(pool)})
		}
	}

	drv := driver.New(mgr, st, engine.NewSlotPool(primary), mirrors, cfg, logger)
	cleanup := func() {
		for _, p := range pools {
			p.Close()
		}
	}
	return mgr, worker, drv, cleanup, nil
}

// deferredHandler breaks the worker/manager construction cycle.
type deferredHandler struct {
	scanner.Handler
}
