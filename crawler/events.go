package crawler

import "github.com/lukemcguire/termcrawl/result"

// CrawlEvent reports progress after one frontier entry was processed.
type CrawlEvent struct {
	URL           string
	Depth         int // Remaining link depth of the processed entry
	Hits          int // Total term hits on the page (0 on failure)
	Error         string
	ErrorCategory result.ErrorCategory
	Visited       int
	Failed        int
	Budget        int // Pages the crawl may still process
	Queued        int // Frontier entries waiting
}
