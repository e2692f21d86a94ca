package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/corey/dashhub/internal/adapters/web"
	"github.com/corey/dashhub/internal/app"
	"github.com/corey/dashhub/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:          "dashhub",
	Short:        "dashhub — live change and notification hub for the dashboard",
	Long:         "Watches project .git directories and streams debounced changes and notifications to dashboard clients over SSE.",
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&cfgFile, "config", "", "YAML config file")
	f.String("data-dir", config.DefaultDataDir(), "directory for the database and runtime files")
	f.Int("quiet-period", config.DefaultQuietPeriodMs, "debounce quiet period in milliseconds")
	f.Int("keep-alive", config.DefaultKeepAliveMs, "SSE keep-alive interval in milliseconds")
	f.String("addr", config.DefaultHTTPAddr, "HTTP listen address")
	f.String("store", config.DefaultStoreDriver, "store driver: sqlite or bbolt")
	f.String("store-path", "", "database file (default: derived from --data-dir)")
	f.String("log-level", config.DefaultLogLevel, "log level")
	f.String("log-format", config.DefaultLogFormat, "log format: console or json")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(projectCmd)
	rootCmd.AddCommand(notifyCmd)
}

// loadConfig resolves the configuration for cmd, honoring explicitly set flags.
func loadConfig(cmd *cobra.Command) (*config.Config, *app.Paths, error) {
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, nil, err
	}
	return cfg, app.NewPaths(cfg.DataDir), nil
}

// daemonClient returns a client for the running daemon, found through the
// port file it writes on startup.
func daemonClient(paths *app.Paths) (*web.Client, error) {
	port, err := paths.ReadPort()
	if err != nil {
		return nil, err
	}
	return web.NewClient(fmt.Sprintf("http://127.0.0.1:%d", port)), nil
}
