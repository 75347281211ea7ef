package result

import (
	"fmt"
	"io"
	"strings"
)

// PrintTop writes the top n pages as space separated columns to w,
// preceded by a header line and followed by a crawl summary.
func PrintTop(w io.Writer, report *Report, n int) {
	writef := func(format string, a ...any) { _, _ = fmt.Fprintf(w, format, a...) }

	top := Top(report.Pages, n)
	if len(top) == 0 {
		writef("No pages were analyzed.\n")
	} else {
		writef("Top %d pages by total hits\n", len(top))
		writef("%s\n", strings.Join(Header(report.Terms), " "))
		for _, e := range top {
			writef("%s\n", strings.Join(Row(report.Terms, e), " "))
		}
	}
	writef("Visited %d pages, %d failed, %d skipped as duplicates\n",
		report.Stats.Visited, report.Stats.Failed, report.Stats.Skipped)
}
