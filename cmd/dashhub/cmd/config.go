package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show configuration",
	Long:  "Shows the resolved configuration, store location, and daemon status. No daemon required.",
	RunE:  runConfig,
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, paths, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	storePath, err := paths.StorePath(cfg.Store.Driver, cfg.Store.Path)
	if err != nil {
		return err
	}

	fmt.Print(formatConfig(cfg, storePath))

	daemonStatus := fmt.Sprintf("%s✗ not running%s", colorYellow, colorReset)
	if client, err := daemonClient(paths); err == nil && client.Ping(cmd.Context()) {
		port, _ := paths.ReadPort()
		daemonStatus = fmt.Sprintf("%s✓ running%s at http://localhost:%d", colorGreen, colorReset, port)
	}
	fmt.Printf("  Daemon:       %s\n", daemonStatus)
	return nil
}
