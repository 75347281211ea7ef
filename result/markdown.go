package result

import (
	"fmt"
	"io"
	"strconv"

	"github.com/nao1215/markdown"
)

// WriteMarkdown writes a Markdown report with crawl details and the top n
// pages as a table.
func WriteMarkdown(w io.Writer, report *Report, n int) error {
	md := markdown.NewMarkdown(w)

	md.H1("Term frequency report")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Seed URL", report.SeedURL},
			{"Started", report.StartedAt.Format("2006-01-02 15:04:05 MST")},
			{"Duration", report.Stats.Duration.Round(1_000_000).String()},
			{"Pages Visited", strconv.Itoa(report.Stats.Visited)},
			{"Failed Fetches", strconv.Itoa(report.Stats.Failed)},
		},
	})
	md.PlainText("")

	top := Top(report.Pages, n)
	md.H2(fmt.Sprintf("Top %d pages", len(top)))
	md.PlainText("")
	if len(top) == 0 {
		md.PlainText("No pages were analyzed.")
	} else {
		rows := make([][]string, 0, len(top))
		for _, e := range top {
			rows = append(rows, Row(report.Terms, e))
		}
		md.Table(markdown.TableSet{
			Header: Header(report.Terms),
			Rows:   rows,
		})
	}

	if err := md.Build(); err != nil {
		return fmt.Errorf("write markdown output: %w", err)
	}
	return nil
}
