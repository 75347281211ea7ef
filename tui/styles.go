package tui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/lukemcguire/termcrawl/result"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true)
	successStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	errorStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	categoryStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	dimStyle      = lipgloss.NewStyle().Faint(true)
	urlStyle      = lipgloss.NewStyle()
	countStyle    = lipgloss.NewStyle().Align(lipgloss.Right)
	totalStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10")).Align(lipgloss.Right)
)

// RenderSummary produces a Lip Gloss styled summary of a crawl: the top n
// pages by total hits, the failure breakdown and the crawl statistics.
func RenderSummary(report *result.Report, n int, failures map[result.ErrorCategory]int) string {
	if report == nil {
		return errorStyle.Render("No results available.")
	}

	var builder strings.Builder

	top := result.Top(report.Pages, n)
	if len(top) == 0 {
		builder.WriteString(errorStyle.Render("No pages were analyzed."))
		builder.WriteString("\n")
	} else {
		builder.WriteString(successStyle.Render(fmt.Sprintf("Top %d pages by total hits", len(top))))
		builder.WriteString("\n")
		builder.WriteString(RenderTable(report.Terms, top))
		builder.WriteString("\n")
	}

	if failed := renderFailures(failures); failed != "" {
		builder.WriteString("\n")
		builder.WriteString(failed)
	}

	builder.WriteString("\n")
	builder.WriteString(titleStyle.Render(fmt.Sprintf(
		"Visited %d pages, %d failed, %d skipped as duplicates",
		report.Stats.Visited, report.Stats.Failed, report.Stats.Skipped,
	)))
	builder.WriteString("\n")
	builder.WriteString(dimStyle.Render(fmt.Sprintf(
		"%d URLs left in the queue, finished in %s",
		report.Stats.Queued, report.Stats.Duration.Round(time.Millisecond),
	)))
	builder.WriteString("\n")

	return builder.String()
}

// RenderTable renders ranked pages as a bordered table with one column per
// term followed by the total.
func RenderTable(terms []string, entries []result.Entry) string {
	lastCol := len(terms) + 1
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, result.Row(terms, e))
	}

	return table.New().
		Border(lipgloss.RoundedBorder()).
		Headers(result.Header(terms)...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == 0:
				return urlStyle
			case col == lastCol:
				return totalStyle
			}
			return countStyle
		}).
		Rows(rows...).
		Render()
}

// renderFailures lists failure counts per category in display order.
func renderFailures(failures map[result.ErrorCategory]int) string {
	var builder strings.Builder
	for _, cat := range result.CategoryOrder {
		count := failures[cat]
		if count == 0 {
			continue
		}
		builder.WriteString(categoryStyle.Render(result.FormatCategory(cat)))
		builder.WriteString(": ")
		builder.WriteString(strconv.Itoa(count))
		builder.WriteString("\n")
	}
	return builder.String()
}
