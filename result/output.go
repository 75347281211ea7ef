package result

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
)

// pageJSON is the JSON shape of one ranked page.
type pageJSON struct {
	URL    string         `json:"url"`
	Counts map[string]int `json:"counts"`
	Total  int            `json:"total"`
}

// WriteJSON writes the entries as a formatted JSON array to the writer.
// Every term is present in each page's counts, zero included.
func WriteJSON(w io.Writer, terms []string, entries []Entry) error {
	pages := make([]pageJSON, 0, len(entries))
	for _, e := range entries {
		counts := make(map[string]int, len(terms))
		for _, term := range terms {
			counts[term] = e.Counts[term]
		}
		pages = append(pages, pageJSON{URL: e.URL, Counts: counts, Total: e.Total()})
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(pages); err != nil {
		return fmt.Errorf("write json output: %w", err)
	}
	return nil
}

// WriteCSV writes the entries as CSV to the writer.
// Always includes a header row, even if there are no entries.
// Column order: Page, one column per term in the given order, Total.
func WriteCSV(w io.Writer, terms []string, entries []Entry) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(Header(terms)); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, e := range entries {
		if err := cw.Write(Row(terms, e)); err != nil {
			return fmt.Errorf("write csv record for %s: %w", e.URL, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv output: %w", err)
	}
	return nil
}

// Header returns the export header row for terms.
func Header(terms []string) []string {
	header := make([]string, 0, len(terms)+2)
	header = append(header, "Page")
	header = append(header, terms...)
	return append(header, "Total")
}

// Row returns the export row for one entry, aligned with Header(terms).
func Row(terms []string, e Entry) []string {
	row := make([]string, 0, len(terms)+2)
	row = append(row, e.URL)
	for _, term := range terms {
		row = append(row, strconv.Itoa(e.Counts[term]))
	}
	return append(row, strconv.Itoa(e.Total()))
}
