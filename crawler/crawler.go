// Package crawler walks the pages reachable from a seed URL and counts term
// occurrences on each one. It implements breadth-first crawling bounded by
// link depth and a page budget, with optional bounded parallel fetching,
// robots.txt compliance, adaptive rate limiting and progress event streaming.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/unicode/norm"

	"github.com/lukemcguire/termcrawl/matcher"
	"github.com/lukemcguire/termcrawl/result"
)

var (
	// ErrAlreadyRun is returned by Run on a Crawler that has already run.
	ErrAlreadyRun = errors.New("crawler already run")
	// ErrNoSeed is returned by New when the seed URL is empty.
	ErrNoSeed = errors.New("seed URL is required")
	// ErrNoFetcher is returned by New when the fetcher is nil.
	ErrNoFetcher = errors.New("fetcher is required")
)

// Config holds crawler configuration.
type Config struct {
	SeedURL       string   // The page the crawl starts from
	Terms         []string // Terms to count, matched case-insensitively
	LinkDepth     int      // Link hops followed from the seed (default 8); <= 0 visits only the seed
	MaxPages      int      // Pages to process successfully (default 10000); <= 0 crawls nothing
	Concurrency   int      // Pages fetched in parallel (default 1)
	MemoryLimitMB int64    // Soft memory limit; 0 disables the memory watcher
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig(seedURL string, terms []string) Config {
	return Config{
		SeedURL:     seedURL,
		Terms:       terms,
		LinkDepth:   8,
		MaxPages:    10000,
		Concurrency: 1,
	}
}

// Option configures optional Crawler behaviour.
type Option func(*Crawler)

// WithLogger sets the logger for fetch failures and crawl progress.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Crawler) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithProgress streams a CrawlEvent for every processed page. The crawler
// never closes ch.
func WithProgress(ch chan<- CrawlEvent) Option {
	return func(c *Crawler) {
		c.progressCh = ch
	}
}

// Crawler runs one breadth-first crawl. Only the Run loop touches the
// frontier, the visited set and the budget; fetches in a batch run in
// parallel but their results are committed in dequeue order.
type Crawler struct {
	cfg        Config
	fetcher    Fetcher
	automaton  *matcher.Automaton
	terms      []string
	logger     *zap.Logger
	progressCh chan<- CrawlEvent

	frontier frontier
	visited  *VisitedFilter
	budget   int
	ran      atomic.Bool

	mu    sync.Mutex // guards pages and stats for readers outside Run
	pages result.PageStats
	stats result.CrawlStats
}

// fetchOutcome is the result of fetching one batch entry.
type fetchOutcome struct {
	page *Page
	err  error
}

// New creates a Crawler. Terms are lowercased and deduplicated, keeping the
// first occurrence order; empty terms are dropped.
func New(cfg Config, fetcher Fetcher, opts ...Option) (*Crawler, error) {
	if cfg.SeedURL == "" {
		return nil, ErrNoSeed
	}
	if fetcher == nil {
		return nil, ErrNoFetcher
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}

	terms := normalizeTerms(cfg.Terms)
	c := &Crawler{
		cfg:       cfg,
		fetcher:   fetcher,
		automaton: matcher.New(terms),
		terms:     terms,
		logger:    zap.NewNop(),
		budget:    max(cfg.MaxPages, 0),
		pages:     make(result.PageStats),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Run crawls from the seed until the frontier is empty or the page budget is
// spent. Fetch failures are logged and skipped; they never fail the crawl.
// If ctx is cancelled, Run stops between pages and returns the partial
// report together with the context error.
func (c *Crawler) Run(ctx context.Context) (*result.Report, error) {
	if !c.ran.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRun
	}
	started := time.Now()

	visited, err := NewVisitedFilter(c.cfg.MaxPages)
	if err != nil {
		return nil, fmt.Errorf("create visited filter: %w", err)
	}
	c.visited = visited
	defer func() {
		if closeErr := visited.Close(); closeErr != nil {
			c.logger.Warn("close visited filter", zap.Error(closeErr))
		}
	}()

	var watcher *MemoryWatcher
	if c.cfg.MemoryLimitMB > 0 {
		watcher = NewMemoryWatcher(c.cfg.MemoryLimitMB)
		defer watcher.Restore()
		watcher.OnChange(func(level PressureLevel, usedPercent float64) {
			c.logger.Warn("memory pressure changed",
				zap.Stringer("level", level),
				zap.Float64("used_percent", usedPercent),
				zap.Int64("limit_mb", c.cfg.MemoryLimitMB),
			)
		})
	}

	c.logger.Info("crawl started",
		zap.String("seed", c.cfg.SeedURL),
		zap.Strings("terms", c.terms),
		zap.Int("depth", c.cfg.LinkDepth),
		zap.Int("max_pages", c.cfg.MaxPages),
		zap.Int("concurrency", c.cfg.Concurrency),
	)

	c.frontier.push(queueEntry{URL: c.cfg.SeedURL, Depth: c.cfg.LinkDepth})

	for c.budget > 0 && c.frontier.len() > 0 {
		if ctx.Err() != nil {
			break
		}

		batch := c.nextBatch()
		if len(batch) == 0 {
			continue
		}

		outcomes := c.fetchBatch(ctx, batch)
		for i, entry := range batch {
			c.commit(ctx, entry, outcomes[i])
		}

		if watcher != nil {
			watcher.Check()
		}
	}

	report := c.report(started)
	// Fetches dropped by a cancellation leave the frontier short, so the
	// loop may also end with an empty frontier after ctx is done.
	if ctxErr := ctx.Err(); ctxErr != nil {
		c.logger.Info("crawl cancelled", zap.Int("visited", report.Stats.Visited))
		return report, fmt.Errorf("crawl cancelled: %w", ctxErr)
	}
	c.logger.Info("crawl finished",
		zap.Int("visited", report.Stats.Visited),
		zap.Int("failed", report.Stats.Failed),
		zap.Int("skipped", report.Stats.Skipped),
		zap.Duration("duration", report.Stats.Duration),
	)
	return report, nil
}

// nextBatch dequeues up to min(Concurrency, budget) entries to fetch
// together. Entries already visited are discarded on the way. The batch
// stops before a URL it already holds so the duplicate is discarded after
// the first copy commits, exactly as a one-at-a-time loop would.
func (c *Crawler) nextBatch() []queueEntry {
	limit := min(c.cfg.Concurrency, c.budget)
	batch := make([]queueEntry, 0, limit)
	inBatch := make(map[string]struct{}, limit)

	for len(batch) < limit {
		entry, ok := c.frontier.peek()
		if !ok {
			break
		}
		if c.isVisited(entry.URL) {
			c.frontier.pop()
			c.mu.Lock()
			c.stats.Skipped++
			c.mu.Unlock()
			continue
		}
		if _, dup := inBatch[entry.URL]; dup {
			break
		}
		c.frontier.pop()
		inBatch[entry.URL] = struct{}{}
		batch = append(batch, entry)
	}
	return batch
}

// fetchBatch fetches every batch entry, in parallel when the batch holds
// more than one, and returns the outcomes in batch order.
func (c *Crawler) fetchBatch(ctx context.Context, batch []queueEntry) []fetchOutcome {
	outcomes := make([]fetchOutcome, len(batch))
	if len(batch) == 1 {
		page, err := c.fetcher.Fetch(ctx, batch[0].URL)
		outcomes[0] = fetchOutcome{page: page, err: err}
		return outcomes
	}

	var group errgroup.Group
	group.SetLimit(c.cfg.Concurrency)
	for i, entry := range batch {
		group.Go(func() error {
			page, err := c.fetcher.Fetch(ctx, entry.URL)
			outcomes[i] = fetchOutcome{page: page, err: err}
			return nil
		})
	}
	_ = group.Wait() // workers report through outcomes
	return outcomes
}

// commit records one fetch outcome: counts on success, expansion of links
// while depth remains, and a progress event either way.
func (c *Crawler) commit(ctx context.Context, entry queueEntry, out fetchOutcome) {
	if out.err == nil && out.page == nil {
		out.err = errors.New("fetcher returned no page")
	}
	if out.err != nil {
		if ctx.Err() != nil {
			// The crawl is stopping; the fetch did not fail on its own.
			return
		}
		c.fail(ctx, entry, out.err)
		return
	}

	counts := result.Counts(c.automaton.CountOccurrences(foldCase(out.page.Text)))

	c.mu.Lock()
	c.pages[entry.URL] = counts
	c.stats.Visited++
	visitedCount, failedCount := c.stats.Visited, c.stats.Failed
	c.mu.Unlock()
	c.visited.Add(entry.URL)
	c.budget--

	if entry.Depth > 0 {
		for _, link := range out.page.Links {
			if link.Href == "" || strings.HasPrefix(link.Href, "#") || link.URL == "" {
				continue
			}
			c.frontier.push(queueEntry{URL: link.URL, Depth: entry.Depth - 1})
		}
	}

	hits := counts.Total()
	c.logger.Debug("page visited",
		zap.String("url", entry.URL),
		zap.Int("depth", entry.Depth),
		zap.Int("hits", hits),
		zap.Int("links", len(out.page.Links)),
	)
	c.emit(ctx, CrawlEvent{
		URL:     entry.URL,
		Depth:   entry.Depth,
		Hits:    hits,
		Visited: visitedCount,
		Failed:  failedCount,
		Budget:  c.budget,
		Queued:  c.frontier.len(),
	})
}

// fail reports a fetch failure. The page gets no entry and costs no budget.
func (c *Crawler) fail(ctx context.Context, entry queueEntry, err error) {
	category := classifyFetchError(err)

	c.mu.Lock()
	c.stats.Failed++
	visitedCount, failedCount := c.stats.Visited, c.stats.Failed
	c.mu.Unlock()

	c.logger.Warn("fetch failed",
		zap.String("url", entry.URL),
		zap.String("category", string(category)),
		zap.Error(err),
	)
	c.emit(ctx, CrawlEvent{
		URL:           entry.URL,
		Depth:         entry.Depth,
		Error:         err.Error(),
		ErrorCategory: category,
		Visited:       visitedCount,
		Failed:        failedCount,
		Budget:        c.budget,
		Queued:        c.frontier.len(),
	})
}

// emit sends evt on the progress channel unless ctx is done first.
func (c *Crawler) emit(ctx context.Context, evt CrawlEvent) {
	if c.progressCh == nil {
		return
	}
	select {
	case c.progressCh <- evt:
	case <-ctx.Done():
	}
}

// isVisited reports whether url already has an entry. The bloom filter
// settles most misses without touching the page table.
func (c *Crawler) isVisited(url string) bool {
	if !c.visited.MayContain(url) {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pages[url]
	return ok
}

func (c *Crawler) report(started time.Time) *result.Report {
	c.mu.Lock()
	stats := c.stats
	c.mu.Unlock()
	stats.Queued = c.frontier.len()
	stats.Duration = time.Since(started)

	return &result.Report{
		SeedURL:   c.cfg.SeedURL,
		Terms:     c.Terms(),
		Pages:     c.Stats(),
		Stats:     stats,
		StartedAt: started,
	}
}

// Stats returns a copy of the per-page term counts collected so far.
func (c *Crawler) Stats() result.PageStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(result.PageStats, len(c.pages))
	for url, counts := range c.pages {
		copied := make(result.Counts, len(counts))
		for term, n := range counts {
			copied[term] = n
		}
		out[url] = copied
	}
	return out
}

// Terms returns the normalized terms in column order.
func (c *Crawler) Terms() []string {
	return append([]string(nil), c.terms...)
}

// foldCase lowercases s and composes it to NFC so that terms and page text
// compare equal regardless of case or Unicode composition.
func foldCase(s string) string {
	return norm.NFC.String(strings.ToLower(s))
}

func normalizeTerms(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	terms := make([]string, 0, len(raw))
	for _, t := range raw {
		t = foldCase(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		terms = append(terms, t)
	}
	return terms
}
