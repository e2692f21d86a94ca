package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check daemon status",
	RunE:  runHealth,
}

func runHealth(cmd *cobra.Command, args []string) error {
	_, paths, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	client, err := daemonClient(paths)
	if err != nil || !client.Ping(cmd.Context()) {
		fmt.Println("⚡ dashhub is not running")
		return nil
	}

	health, err := client.Health(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Print(formatHealth(health))

	unread, err := client.Unread(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Print(formatUnread(unread))
	return nil
}
