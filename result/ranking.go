// Package result holds per-page term statistics, ranks pages by total term
// frequency and exports the ranking as CSV, JSON, Markdown or plain text.
package result

import "sort"

// SortedByTotal returns every page ordered by total term count, highest
// first. Pages with equal totals are ordered by URL.
func SortedByTotal(stats PageStats) []Entry {
	entries := make([]Entry, 0, len(stats))
	for _, u := range stats.URLs() {
		entries = append(entries, Entry{URL: u, Counts: stats[u]})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Total() > entries[j].Total()
	})
	return entries
}

// Top returns at most n pages from the front of SortedByTotal.
func Top(stats PageStats, n int) []Entry {
	entries := SortedByTotal(stats)
	if n < 0 {
		n = 0
	}
	if n < len(entries) {
		entries = entries[:n]
	}
	return entries
}
