// Package app wires the hub, its stores and the HTTP server into a daemon,
// and coordinates their startup and shutdown.
package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/corey/dashhub/internal/adapters/bbolt"
	"github.com/corey/dashhub/internal/adapters/fsnotify"
	promadapter "github.com/corey/dashhub/internal/adapters/prometheus"
	"github.com/corey/dashhub/internal/adapters/sqlite"
	"github.com/corey/dashhub/internal/adapters/web"
	"github.com/corey/dashhub/internal/config"
	"github.com/corey/dashhub/internal/hub"
	"github.com/corey/dashhub/internal/ports"
)

// App is the daemon: every long-lived component, owned in one place.
type App struct {
	Paths         *Paths
	Store         ports.Store
	Broadcaster   *hub.Broadcaster
	Registry      *hub.Registry
	Notifications *hub.Notifications
	WebServer     *web.Server

	cfg      *config.Config
	logger   *zap.Logger
	stopOnce sync.Once
	stopErr  error
}

// OpenStore opens the store selected by cfg.Store.Driver.
func OpenStore(cfg *config.Config, paths *Paths) (ports.Store, error) {
	path, err := paths.StorePath(cfg.Store.Driver, cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	if cfg.Store.Driver == config.DriverBbolt {
		s, err := bbolt.NewStore(path)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	s, err := sqlite.NewStore(path)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// New creates an App with all dependencies wired. Does not start services.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	paths := NewPaths(cfg.DataDir)
	if err := paths.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	if n, err := paths.Migrate(); err != nil {
		logger.Warn("migrate data dir", zap.Error(err))
	} else if n > 0 {
		logger.Info("migrated runtime files", zap.Int("files", n))
	}

	store, err := OpenStore(cfg, paths)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := promadapter.NewMetrics(reg)

	hubLog := logger.Named("hub")
	bc := hub.NewBroadcaster(hubLog, metrics)
	registry := hub.NewRegistry(hub.RegistryConfig{
		Broadcaster: bc,
		NewWatcher:  fsnotify.Factory(logger),
		QuietPeriod: cfg.QuietPeriod(),
		Logger:      hubLog,
		Metrics:     metrics,
	})
	notes := hub.NewNotifications(store, bc, hubLog, metrics)

	a := &App{
		Paths:         paths,
		Store:         store,
		Broadcaster:   bc,
		Registry:      registry,
		Notifications: notes,
		cfg:           cfg,
		logger:        logger,
	}
	a.WebServer = web.NewServer(web.Config{
		Projects:      store,
		Registry:      registry,
		Notifications: notes,
		Gatherer:      reg,
		Logger:        logger,
		KeepAlive:     cfg.KeepAlive(),
		StreamBuffer:  cfg.StreamBuffer,
		PortFilePath:  paths.PortFile,
	})
	return a, nil
}

// Start binds the HTTP server and records the daemon's PID.
func (a *App) Start() error {
	if err := a.WebServer.Start(a.cfg.HTTP.Addr); err != nil {
		return fmt.Errorf("start http: %w", err)
	}
	// Non-fatal: the PID file only helps external tooling.
	if err := os.WriteFile(a.Paths.PIDFile, []byte(strconv.Itoa(os.Getpid())), 0644); err != nil {
		a.logger.Warn("write pid file", zap.String("path", a.Paths.PIDFile), zap.Error(err))
	}
	a.logger.Info("dashhub started",
		zap.String("url", a.WebServer.URL()),
		zap.String("store", a.cfg.Store.Driver),
		zap.Duration("quiet_period", a.cfg.QuietPeriod()),
	)
	return nil
}

// Stop shuts everything down in dependency order. Idempotent.
//
//  1. stop every watch session (pending settles cancelled, watchers closed)
//  2. close every stream, which ends the SSE handlers
//  3. shut the HTTP server down and remove the port and PID files
//  4. close the store
func (a *App) Stop() error {
	a.stopOnce.Do(func() {
		var errs []error
		if err := a.Registry.Shutdown(); err != nil {
			errs = append(errs, fmt.Errorf("stop watch sessions: %w", err))
		}
		n := a.Broadcaster.CloseAll()
		a.logger.Debug("streams closed", zap.Int("connections", n))

		a.WebServer.Stop()
		a.Paths.CleanEphemeral()

		if err := a.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
		a.stopErr = errors.Join(errs...)
		a.logger.Info("dashhub stopped")
	})
	return a.stopErr
}
