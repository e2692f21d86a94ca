package cmd

import (
	"fmt"
	"strings"

	"github.com/corey/dashhub/internal/adapters/web"
	"github.com/corey/dashhub/internal/config"
	"github.com/corey/dashhub/internal/ports"
)

// ANSI color codes for terminal output.
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorCyan   = "\033[36m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
	colorGray   = "\033[90m"
)

// formatHealth formats a HealthResult for terminal display.
func formatHealth(h *web.HealthResult) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s⚡ dashhub%s\n", colorBold, colorReset))
	sb.WriteString(fmt.Sprintf("  Status:       %s%s%s\n", colorGreen, h.Status, colorReset))
	sb.WriteString(fmt.Sprintf("  Uptime:       %s\n", h.Uptime))
	sb.WriteString(fmt.Sprintf("  Watching:     %d projects\n", h.WatchSessions))
	sb.WriteString(fmt.Sprintf("  Subscribers:  %d notification streams\n", h.GlobalSubscribers))
	return sb.String()
}

// formatUnread formats the unread summary, one line per project.
func formatUnread(u *web.UnreadResult) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("  Unread:       %d\n", u.Total))
	for _, sev := range []string{ports.SeverityError, ports.SeverityWarning, ports.SeverityInfo, ports.SeveritySuccess} {
		if n := u.BySeverity[sev]; n > 0 {
			sb.WriteString(fmt.Sprintf("    %s%-8s%s %d\n", severityColor(sev), sev, colorReset, n))
		}
	}
	return sb.String()
}

// formatProjects formats registered projects for terminal display.
func formatProjects(projects []ports.Project) string {
	if len(projects) == 0 {
		return fmt.Sprintf("%s⚡ no projects registered%s\n", colorGray, colorReset)
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s⚡ %d projects%s\n", colorBold, len(projects), colorReset))
	for _, p := range projects {
		sb.WriteString(fmt.Sprintf("  %s%s%s  %s", colorCyan, p.ID, colorReset, p.Path))
		if p.Name != "" && p.Name != p.ID {
			sb.WriteString(fmt.Sprintf("  %s(%s)%s", colorGray, p.Name, colorReset))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// formatConfig formats the resolved configuration.
func formatConfig(cfg *config.Config, storePath string) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s⚡ dashhub config%s\n", colorBold, colorReset))
	sb.WriteString(fmt.Sprintf("  Data dir:     %s\n", cfg.DataDir))
	sb.WriteString(fmt.Sprintf("  Store:        %s (%s)\n", cfg.Store.Driver, storePath))
	sb.WriteString(fmt.Sprintf("  Listen:       %s\n", cfg.HTTP.Addr))
	sb.WriteString(fmt.Sprintf("  Quiet period: %s\n", cfg.QuietPeriod()))
	sb.WriteString(fmt.Sprintf("  Keep-alive:   %s\n", cfg.KeepAlive()))
	sb.WriteString(fmt.Sprintf("  Log:          %s, %s\n", cfg.Log.Level, cfg.Log.Format))
	return sb.String()
}

func severityColor(sev string) string {
	switch sev {
	case ports.SeverityError:
		return colorRed
	case ports.SeverityWarning:
		return colorYellow
	case ports.SeveritySuccess:
		return colorGreen
	}
	return colorCyan
}
