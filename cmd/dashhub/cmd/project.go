package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/corey/dashhub/internal/app"
	"github.com/corey/dashhub/internal/ports"
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage watchable projects",
}

var projectAddCmd = &cobra.Command{
	Use:   "add <id> <path>",
	Short: "Register or update a project",
	Long:  "Registers a repository so dashboard clients can watch it at /api/project/<id>/git/watch.",
	Args:  cobra.ExactArgs(2),
	RunE:  runProjectAdd,
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered projects",
	Args:  cobra.NoArgs,
	RunE:  runProjectList,
}

var projectName string

func init() {
	projectAddCmd.Flags().StringVar(&projectName, "name", "", "display name (default: directory name)")
	projectCmd.AddCommand(projectAddCmd)
	projectCmd.AddCommand(projectListCmd)
}

// openStore opens the configured store directly. With the bbolt driver
// this fails while the daemon holds the file lock.
func openStore(cmd *cobra.Command) (ports.Store, error) {
	cfg, paths, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	store, err := app.OpenStore(cfg, paths)
	if err != nil {
		if isDBLockError(err) {
			return nil, fmt.Errorf("%w\n%s", err, diagnoseDBLock(cmd.Context(), paths))
		}
		return nil, err
	}
	return store, nil
}

func runProjectAdd(cmd *cobra.Command, args []string) error {
	id := args[0]
	path, err := filepath.Abs(args[1])
	if err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", path)
	}
	if _, err := os.Stat(filepath.Join(path, ".git")); err != nil {
		fmt.Printf("%s⚠ %s has no .git directory; watch requests will report an error%s\n", colorYellow, path, colorReset)
	}

	name := projectName
	if name == "" {
		name = filepath.Base(path)
	}

	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.SaveProject(cmd.Context(), ports.Project{ID: id, Name: name, Path: path}); err != nil {
		return err
	}
	fmt.Printf("⚡ project %s%s%s → %s\n", colorCyan, id, colorReset, path)
	return nil
}

func runProjectList(cmd *cobra.Command, args []string) error {
	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	projects, err := store.Projects(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Print(formatProjects(projects))
	return nil
}
