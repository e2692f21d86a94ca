package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/corey/dashhub/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the hub in the foreground",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, paths, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// Check if already running
	if client, err := daemonClient(paths); err == nil && client.Ping(cmd.Context()) {
		fmt.Println("⚡ dashhub already running")
		return nil
	}

	if err := paths.EnsureDirs(); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	logger, err := app.NewLogger(cfg.Log.Level, cfg.Log.Format, paths.DaemonLog)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	a, err := app.New(cfg, logger)
	if err != nil {
		if isDBLockError(err) {
			return fmt.Errorf("%w\n%s", err, diagnoseDBLock(cmd.Context(), paths))
		}
		return fmt.Errorf("init: %w", err)
	}
	if err := a.Start(); err != nil {
		_ = a.Stop()
		return err
	}

	// Wait for shutdown signal
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info("shutting down", zap.String("url", a.WebServer.URL()))
	return a.Stop()
}
