package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/corey/dashhub/internal/ports"
)

var notifyCmd = &cobra.Command{
	Use:   "notify <title> [message...]",
	Short: "Publish a notification to connected dashboards",
	Long:  "Stores a notification in the running daemon and pushes it to every open notification stream.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runNotify,
}

var notifyReadAllCmd = &cobra.Command{
	Use:   "read-all",
	Short: "Mark unread notifications read",
	Args:  cobra.NoArgs,
	RunE:  runNotifyReadAll,
}

var notifyOpts ports.NewNotification

func init() {
	f := notifyCmd.Flags()
	f.StringVarP(&notifyOpts.ProjectID, "project", "p", "", "project id (required)")
	f.StringVarP(&notifyOpts.Type, "type", "t", "manual", "notification type")
	f.StringVarP(&notifyOpts.Severity, "severity", "s", ports.SeverityInfo, "info, success, warning or error")
	f.StringVar(&notifyOpts.Link, "link", "", "link target")
	f.StringVar(&notifyOpts.LinkType, "link-type", "", "link kind, e.g. session or url")
	_ = notifyCmd.MarkFlagRequired("project")

	notifyReadAllCmd.Flags().StringVarP(&notifyOpts.ProjectID, "project", "p", "", "only this project")
	notifyCmd.AddCommand(notifyReadAllCmd)
}

func runNotify(cmd *cobra.Command, args []string) error {
	_, paths, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	client, err := daemonClient(paths)
	if err != nil {
		return err
	}

	in := notifyOpts
	in.Title = args[0]
	in.Message = strings.Join(args[1:], " ")

	n, err := client.Notify(cmd.Context(), in)
	if err != nil {
		return err
	}
	fmt.Printf("⚡ %s%s%s #%d %s\n", severityColor(n.Severity), n.Severity, colorReset, n.ID, n.Title)
	return nil
}

func runNotifyReadAll(cmd *cobra.Command, args []string) error {
	_, paths, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	client, err := daemonClient(paths)
	if err != nil {
		return err
	}

	n, err := client.MarkAllRead(cmd.Context(), notifyOpts.ProjectID)
	if err != nil {
		return err
	}
	fmt.Printf("⚡ %d notifications marked read\n", n)
	return nil
}
