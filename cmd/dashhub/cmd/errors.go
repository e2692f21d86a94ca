package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	bolt "go.etcd.io/bbolt"

	"github.com/corey/dashhub/internal/app"
)

// isDBLockError reports whether err is a bbolt file-lock timeout. sqlite
// databases are opened in WAL mode and never hit this.
func isDBLockError(err error) bool {
	return errors.Is(err, bolt.ErrTimeout)
}

// diagnoseDBLock explains who holds the bbolt lock: the running daemon, a
// crashed one that left its port file behind, or an unknown process.
func diagnoseDBLock(ctx context.Context, paths *app.Paths) string {
	client, err := daemonClient(paths)
	if err == nil && client.Ping(ctx) {
		return "database is locked by the running daemon\n" +
			"  → stop it first (Ctrl-C or kill its PID from " + paths.PIDFile + ")\n" +
			"  → or point this command at --store sqlite"
	}

	if _, err := os.Stat(paths.PortFile); err == nil {
		return fmt.Sprintf("database is locked — a port file exists but the daemon is not responding\n"+
			"  → a previous daemon may have crashed\n"+
			"  → find the process:  ps aux | grep 'dashhub serve'\n"+
			"  → kill it:           kill <PID>\n"+
			"  → clean up:          rm %s", paths.PortFile)
	}

	return "database is locked by another process\n" +
		"  → find the process:  ps aux | grep 'dashhub'\n" +
		"  → kill it:           kill <PID>\n" +
		"  → then retry your command"
}
