package tui

import (
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/lukemcguire/termcrawl/store"
)

// RenderRuns renders stored crawl runs as a table, one row per run.
// IDs are shortened to their first idLen characters.
func RenderRuns(runs []store.RunSummary, idLen int) string {
	if len(runs) == 0 {
		return dimStyle.Render("No crawls recorded yet.") + "\n"
	}

	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		id := run.ID
		if idLen > 0 && len(id) > idLen {
			id = id[:idLen]
		}
		rows = append(rows, []string{
			id,
			run.StartedAt.Local().Format(time.DateTime),
			run.SeedURL,
			strings.Join(run.Terms, ","),
			strconv.Itoa(run.Visited),
			strconv.Itoa(run.Failed),
			run.Duration.Round(time.Millisecond).String(),
		})
	}

	return table.New().
		Border(lipgloss.RoundedBorder()).
		Headers("ID", "Started", "Seed", "Terms", "Visited", "Failed", "Duration").
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == 0:
				return categoryStyle
			case col >= 4:
				return countStyle
			}
			return urlStyle
		}).
		Rows(rows...).
		Render() + "\n"
}
