package result

import (
	"sort"
	"time"
)

// Counts maps a search term to its number of occurrences on one page.
type Counts map[string]int

// Total returns the sum of all term counts.
func (c Counts) Total() int {
	total := 0
	for _, n := range c {
		total += n
	}
	return total
}

// PageStats maps a page URL to its term counts.
type PageStats map[string]Counts

// URLs returns the page URLs in lexical order.
func (p PageStats) URLs() []string {
	urls := make([]string, 0, len(p))
	for u := range p {
		urls = append(urls, u)
	}
	sort.Strings(urls)
	return urls
}

// Entry is one row of a ranking: a page and its counts.
type Entry struct {
	URL    string
	Counts Counts
}

// Total returns the entry's summed term count.
func (e Entry) Total() int {
	return e.Counts.Total()
}

// CrawlStats contains aggregate statistics for a crawl.
type CrawlStats struct {
	Visited  int           // Pages fetched and counted
	Failed   int           // Fetches that failed (budget untouched)
	Skipped  int           // Frontier entries dropped as already visited
	Queued   int           // Frontier entries left when the crawl stopped
	Duration time.Duration // Total time taken for the crawl
}

// Report is the complete output of a crawl.
type Report struct {
	SeedURL   string
	Terms     []string // Column order for exports
	Pages     PageStats
	Stats     CrawlStats
	StartedAt time.Time
}
