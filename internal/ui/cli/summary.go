package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	domainErrors "modernity/internal/core/errors"
	"modernity/internal/core/ports"
	"modernity/internal/data/history"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#3B82F6")).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#64748B")).
			Width(10)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981")).
			Bold(true)

	dropStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F87171"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#334155")).
			Padding(0, 1)
)

func renderSummary(result ports.AnalyzeResult) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(result.Report.Library))
	b.WriteString("\n")

	line := func(label, value string) {
		b.WriteString(labelStyle.Render(label))
		b.WriteString(value)
		b.WriteString("\n")
	}
	line("versions", successStyle.Render(fmt.Sprintf("%d of %d analyzed", len(result.Report.Rows), result.Requested)))
	if rows := result.Report.Rows; len(rows) > 0 {
		line("span", fmt.Sprintf("%s (%s) .. %s (%s)",
			rows[0].Version.Version, rows[0].Version.PublishedAt.Format("2006-01-02"),
			rows[len(rows)-1].Version.Version, rows[len(rows)-1].Version.PublishedAt.Format("2006-01-02")))
	}
	line("table", result.Path)
	line("took", result.Duration.Round(time.Millisecond).String())
	if result.RunID != "" {
		line("run", result.RunID)
	}

	for _, dropped := range result.Dropped {
		reason := string(domainErrors.CodeOf(dropped.Err))
		if reason == "" {
			reason = "error"
		}
		b.WriteString(dropStyle.Render(fmt.Sprintf("dropped %s: %s", dropped.Release.Version, reason)))
		b.WriteString("\n")
	}
	return boxStyle.Render(strings.TrimRight(b.String(), "\n"))
}

func renderHistory(runs []history.Run) string {
	if len(runs) == 0 {
		return "No recorded runs."
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render("History"))
	for _, run := range runs {
		b.WriteString(fmt.Sprintf("\n%s  %s  %d/%d analyzed, %d dropped",
			run.StartedAt.Format("2006-01-02 15:04:05"),
			run.ID,
			run.Analyzed,
			run.Requested,
			run.Dropped,
		))
	}
	return b.String()
}
