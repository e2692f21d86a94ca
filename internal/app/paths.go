package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/corey/dashhub/internal/config"
)

// Paths holds all resolved filesystem paths under the data directory.
// All fields are pre-computed strings.
type Paths struct {
	Root     string // <data>/
	SQLiteDB string // <data>/dashboard.db
	BoltDB   string // <data>/dashboard.bolt

	LogDir    string // <data>/log/
	DaemonLog string // <data>/log/dashhub.log

	RunDir   string // <data>/run/
	PIDFile  string // <data>/run/dashhub.pid
	PortFile string // <data>/run/http.port
}

// NewPaths constructs all resolved paths from a data directory.
func NewPaths(dataDir string) *Paths {
	return &Paths{
		Root:     dataDir,
		SQLiteDB: filepath.Join(dataDir, "dashboard.db"),
		BoltDB:   filepath.Join(dataDir, "dashboard.bolt"),

		LogDir:    filepath.Join(dataDir, "log"),
		DaemonLog: filepath.Join(dataDir, "log", "dashhub.log"),

		RunDir:   filepath.Join(dataDir, "run"),
		PIDFile:  filepath.Join(dataDir, "run", "dashhub.pid"),
		PortFile: filepath.Join(dataDir, "run", "http.port"),
	}
}

// StorePath returns the database file for a store driver. An explicit
// override wins.
func (p *Paths) StorePath(driver, override string) (string, error) {
	if override != "" {
		return override, nil
	}
	switch driver {
	case config.DriverSQLite:
		return p.SQLiteDB, nil
	case config.DriverBbolt:
		return p.BoltDB, nil
	}
	return "", fmt.Errorf("unknown store driver %q", driver)
}

// EnsureDirs creates all subdirectories. Idempotent.
func (p *Paths) EnsureDirs() error {
	for _, d := range []string{p.Root, p.LogDir, p.RunDir} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return err
		}
	}
	return nil
}

// migration defines a single file move from the old flat layout.
type migration struct {
	oldName string // relative to Root
	newPath string // absolute destination path
}

// Migrate moves runtime files left in the data directory root by older
// builds into run/. Returns the number of files moved. Idempotent: skips if
// the source is missing or the destination already exists.
func (p *Paths) Migrate() (int, error) {
	moves := []migration{
		{"dashhub.pid", p.PIDFile},
		{"http.port", p.PortFile},
	}

	count := 0
	for _, m := range moves {
		oldPath := filepath.Join(p.Root, m.oldName)
		if _, err := os.Stat(oldPath); err != nil {
			continue
		}
		// Don't overwrite existing destination.
		if _, err := os.Stat(m.newPath); err == nil {
			continue
		}
		if err := os.Rename(oldPath, m.newPath); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// CleanEphemeral removes the PID file and port file.
// Called on clean daemon shutdown.
func (p *Paths) CleanEphemeral() {
	os.Remove(p.PIDFile)
	os.Remove(p.PortFile)
}

// ReadPort returns the port a running daemon recorded in the port file.
func (p *Paths) ReadPort() (int, error) {
	data, err := os.ReadFile(p.PortFile)
	if err != nil {
		return 0, fmt.Errorf("daemon not running (no %s): %w", p.PortFile, err)
	}
	var port int
	if _, err := fmt.Sscanf(string(data), "%d", &port); err != nil || port <= 0 {
		return 0, fmt.Errorf("corrupt port file %s", p.PortFile)
	}
	return port, nil
}
