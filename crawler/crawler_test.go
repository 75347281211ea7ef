package crawler_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"runtime/debug"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lukemcguire/termcrawl/crawler"
	"github.com/lukemcguire/termcrawl/result"
)

var errNotFound = errors.New("not found")

// fakePage is one page of a fakeSite. Links are used as both href and URL.
type fakePage struct {
	text  string
	links []string
	fail  bool
}

// fakeSite is an in-memory Fetcher that records every fetch.
type fakeSite struct {
	pages map[string]fakePage

	mu      sync.Mutex
	fetched []string
}

func (s *fakeSite) Fetch(_ context.Context, url string) (*crawler.Page, error) {
	s.mu.Lock()
	s.fetched = append(s.fetched, url)
	s.mu.Unlock()

	p, ok := s.pages[url]
	if !ok || p.fail {
		return nil, fmt.Errorf("fetch %s: %w", url, errNotFound)
	}
	page := &crawler.Page{URL: url, Text: p.text}
	for _, l := range p.links {
		page.Links = append(page.Links, crawler.Link{Href: l, URL: l})
	}
	return page, nil
}

func (s *fakeSite) fetches() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.fetched...)
}

// mustNewCrawler creates a crawler or fails the test.
func mustNewCrawler(t *testing.T, cfg crawler.Config, f crawler.Fetcher, opts ...crawler.Option) *crawler.Crawler {
	t.Helper()
	c, err := crawler.New(cfg, f, opts...)
	require.NoError(t, err)
	return c
}

func run(t *testing.T, cfg crawler.Config, f crawler.Fetcher, opts ...crawler.Option) *result.Report {
	t.Helper()
	report, err := mustNewCrawler(t, cfg, f, opts...).Run(context.Background())
	require.NoError(t, err)
	return report
}

func TestDefaultConfig(t *testing.T) {
	cfg := crawler.DefaultConfig("https://example.com", []string{"go"})

	assert.Equal(t, "https://example.com", cfg.SeedURL)
	assert.Equal(t, []string{"go"}, cfg.Terms)
	assert.Equal(t, 8, cfg.LinkDepth)
	assert.Equal(t, 10000, cfg.MaxPages)
	assert.Equal(t, 1, cfg.Concurrency)
	assert.Zero(t, cfg.MemoryLimitMB)
}

func TestNewValidation(t *testing.T) {
	site := &fakeSite{}

	_, err := crawler.New(crawler.Config{}, site)
	assert.ErrorIs(t, err, crawler.ErrNoSeed)

	_, err = crawler.New(crawler.Config{SeedURL: "P0"}, nil)
	assert.ErrorIs(t, err, crawler.ErrNoFetcher)
}

func TestSeedPageCounts(t *testing.T) {
	site := &fakeSite{pages: map[string]fakePage{
		"P0": {text: "an x and another x"},
	}}

	report := run(t, crawler.Config{SeedURL: "P0", Terms: []string{"x"}, LinkDepth: 8, MaxPages: 10}, site)

	require.Len(t, report.Pages, 1)
	assert.Equal(t, 2, report.Pages["P0"]["x"])
	assert.Equal(t, "P0", report.SeedURL)
	assert.Equal(t, []string{"x"}, report.Terms)
	assert.Equal(t, 1, report.Stats.Visited)
}

func TestTermsAreCaseInsensitive(t *testing.T) {
	site := &fakeSite{pages: map[string]fakePage{
		"P0": {text: "GO go Go gO, Rustaceans"},
	}}
	cfg := crawler.Config{SeedURL: "P0", Terms: []string{"Go", "go", "", "RUST", "absent"}, MaxPages: 1}

	c := mustNewCrawler(t, cfg, site)
	assert.Equal(t, []string{"go", "rust", "absent"}, c.Terms())

	_, err := c.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, result.Counts{"go": 4, "rust": 1, "absent": 0}, c.Stats()["P0"])
}

func TestTermsMatchAcrossUnicodeComposition(t *testing.T) {
	// Page text spells "café" with a combining acute accent, the term with
	// the precomposed letter.
	site := &fakeSite{pages: map[string]fakePage{
		"P0": {text: "CAFÉ and café"},
	}}
	cfg := crawler.Config{SeedURL: "P0", Terms: []string{"Café"}, MaxPages: 1}

	c := mustNewCrawler(t, cfg, site)
	_, err := c.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, result.Counts{"café": 2}, c.Stats()["P0"])
}

func TestNoTermsYieldsEmptyCounts(t *testing.T) {
	site := &fakeSite{pages: map[string]fakePage{"P0": {text: "anything"}}}

	report := run(t, crawler.Config{SeedURL: "P0", MaxPages: 1}, site)

	require.Contains(t, report.Pages, "P0")
	assert.Empty(t, report.Pages["P0"])
	assert.Zero(t, report.Pages["P0"].Total())
}

func TestCrawlDeduplicatesCycles(t *testing.T) {
	site := &fakeSite{pages: map[string]fakePage{
		"A": {text: "a", links: []string{"A", "B", "C"}},
		"B": {text: "b", links: []string{"C", "A", "B"}},
		"C": {text: "c", links: []string{"A"}},
	}}

	report := run(t, crawler.Config{SeedURL: "A", LinkDepth: 10, MaxPages: 100}, site)

	assert.Len(t, report.Pages, 3)
	assert.Equal(t, []string{"A", "B", "C"}, site.fetches(), "each page fetched once")
	assert.Equal(t, 3, report.Stats.Visited)
	assert.Positive(t, report.Stats.Skipped)
	assert.Zero(t, report.Stats.Queued)
}

func TestDepthZeroVisitsOnlySeed(t *testing.T) {
	site := &fakeSite{pages: map[string]fakePage{
		"P0": {text: "x", links: []string{"P1", "P2"}},
		"P1": {text: "x"},
		"P2": {text: "x"},
	}}

	for _, depth := range []int{0, -3} {
		t.Run(fmt.Sprintf("depth %d", depth), func(t *testing.T) {
			site.fetched = nil
			report := run(t, crawler.Config{SeedURL: "P0", Terms: []string{"x"}, LinkDepth: depth, MaxPages: 10}, site)

			assert.Equal(t, []string{"P0"}, report.Pages.URLs())
			assert.Equal(t, []string{"P0"}, site.fetches())
		})
	}
}

func TestDepthBoundsExpansion(t *testing.T) {
	site := &fakeSite{pages: map[string]fakePage{
		"P0": {links: []string{"P1"}},
		"P1": {links: []string{"P2"}},
		"P2": {links: []string{"P3"}},
		"P3": {},
	}}

	report := run(t, crawler.Config{SeedURL: "P0", LinkDepth: 2, MaxPages: 10}, site)

	assert.Equal(t, []string{"P0", "P1", "P2"}, report.Pages.URLs())
	assert.NotContains(t, site.fetches(), "P3")
}

func TestBreadthFirstOrder(t *testing.T) {
	site := &fakeSite{pages: map[string]fakePage{
		"root": {links: []string{"a", "b"}},
		"a":    {links: []string{"c"}},
		"b":    {links: []string{"d", "e"}},
		"c":    {},
		"d":    {},
		"e":    {},
	}}

	run(t, crawler.Config{SeedURL: "root", LinkDepth: 8, MaxPages: 100}, site)

	assert.Equal(t, []string{"root", "a", "b", "c", "d", "e"}, site.fetches())
}

func TestBudgetBoundsPages(t *testing.T) {
	pages := map[string]fakePage{}
	for i := range 20 {
		pages[fmt.Sprintf("P%d", i)] = fakePage{text: "x", links: []string{fmt.Sprintf("P%d", i+1), fmt.Sprintf("P%d", i+2)}}
	}

	tests := []struct {
		name        string
		maxPages    int
		concurrency int
		want        int
	}{
		{"sequential", 5, 1, 5},
		{"parallel", 5, 8, 5},
		{"zero crawls nothing", 0, 1, 0},
		{"negative crawls nothing", -1, 4, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			site := &fakeSite{pages: pages}
			report := run(t, crawler.Config{
				SeedURL:     "P0",
				Terms:       []string{"x"},
				LinkDepth:   50,
				MaxPages:    tt.maxPages,
				Concurrency: tt.concurrency,
			}, site)

			assert.Len(t, report.Pages, tt.want)
			assert.Len(t, site.fetches(), tt.want, "no fetch beyond the budget")
		})
	}
}

func TestFailedFetchDoesNotConsumeBudget(t *testing.T) {
	site := &fakeSite{pages: map[string]fakePage{
		"P0":   {links: []string{"bad1", "bad2", "good"}},
		"bad1": {fail: true},
		"good": {text: "x"},
	}}

	report := run(t, crawler.Config{SeedURL: "P0", Terms: []string{"x"}, LinkDepth: 1, MaxPages: 2}, site)

	assert.Equal(t, []string{"P0", "good"}, report.Pages.URLs())
	assert.Equal(t, 2, report.Stats.Failed)
	assert.Equal(t, 2, report.Stats.Visited)
}

func TestSeedFailureLeavesStatsEmpty(t *testing.T) {
	site := &fakeSite{pages: map[string]fakePage{}}

	c := mustNewCrawler(t, crawler.Config{SeedURL: "P0", Terms: []string{"x"}, LinkDepth: 8, MaxPages: 10}, site)
	report, err := c.Run(context.Background())

	require.NoError(t, err)
	assert.Empty(t, report.Pages)
	assert.Empty(t, c.Stats())
	assert.Equal(t, 1, report.Stats.Failed)
}

func TestEmptyAndFragmentLinksAreDropped(t *testing.T) {
	var (
		mu      sync.Mutex
		fetched []string
	)
	fetcher := crawler.FetcherFunc(func(_ context.Context, url string) (*crawler.Page, error) {
		mu.Lock()
		fetched = append(fetched, url)
		mu.Unlock()
		if url != "seed" {
			return &crawler.Page{URL: url}, nil
		}
		return &crawler.Page{URL: url, Links: []crawler.Link{
			{Href: "", URL: "empty-target"},
			{Href: "#section", URL: "fragment-target"},
			{Href: "kept", URL: "kept-target"},
			{Href: "unresolvable", URL: ""},
		}}, nil
	})

	report := run(t, crawler.Config{SeedURL: "seed", LinkDepth: 3, MaxPages: 10}, fetcher)

	assert.Equal(t, []string{"kept-target", "seed"}, report.Pages.URLs())
	assert.Equal(t, []string{"seed", "kept-target"}, fetched)
}

func TestParallelMatchesSequential(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 99))
	words := []string{"ab", "ba", "abab", "b", "c", "zz"}

	for round := range 20 {
		pages := map[string]fakePage{}
		n := 5 + rng.IntN(30)
		for i := range n {
			var p fakePage
			p.fail = rng.IntN(6) == 0
			for range rng.IntN(8) {
				p.text += words[rng.IntN(len(words))] + " "
			}
			for range rng.IntN(5) {
				p.links = append(p.links, fmt.Sprintf("n%d", rng.IntN(n+3)))
			}
			pages[fmt.Sprintf("n%d", i)] = p
		}
		cfg := crawler.Config{
			SeedURL:   "n0",
			Terms:     []string{"ab", "b", "abab"},
			LinkDepth: rng.IntN(5),
			MaxPages:  1 + rng.IntN(n),
		}

		seqSite := &fakeSite{pages: pages}
		seq := run(t, cfg, seqSite)

		cfg.Concurrency = 2 + rng.IntN(6)
		parSite := &fakeSite{pages: pages}
		par := run(t, cfg, parSite)

		assert.Equal(t, seq.Pages, par.Pages, "round %d", round)
		assert.Equal(t, seq.Stats.Visited, par.Stats.Visited, "round %d", round)
		assert.Equal(t, seq.Stats.Failed, par.Stats.Failed, "round %d", round)
		assert.Equal(t, seq.Stats.Skipped, par.Stats.Skipped, "round %d", round)
		assert.Equal(t, seq.Stats.Queued, par.Stats.Queued, "round %d", round)
		assert.ElementsMatch(t, seqSite.fetches(), parSite.fetches(), "round %d", round)
	}
}

func TestRunTwice(t *testing.T) {
	site := &fakeSite{pages: map[string]fakePage{"P0": {}}}
	c := mustNewCrawler(t, crawler.Config{SeedURL: "P0", MaxPages: 1}, site)

	_, err := c.Run(context.Background())
	require.NoError(t, err)

	_, err = c.Run(context.Background())
	assert.ErrorIs(t, err, crawler.ErrAlreadyRun)
}

func TestRunCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	fetcher := crawler.FetcherFunc(func(_ context.Context, url string) (*crawler.Page, error) {
		calls++
		if calls == 2 {
			cancel()
		}
		next := fmt.Sprintf("P%d", calls)
		return &crawler.Page{URL: url, Links: []crawler.Link{{Href: next, URL: next}}}, nil
	})

	c := mustNewCrawler(t, crawler.Config{SeedURL: "P0", LinkDepth: 100, MaxPages: 100}, fetcher)
	report, err := c.Run(ctx)

	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.Equal(t, []string{"P0", "P1"}, report.Pages.URLs())
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, report.Stats.Queued)
}

func TestRunCancellationOnLastPage(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fetcher := crawler.FetcherFunc(func(ctx context.Context, url string) (*crawler.Page, error) {
		if url == "P0" {
			return &crawler.Page{URL: url, Links: []crawler.Link{{Href: "P1", URL: "P1"}}}, nil
		}
		cancel()
		return nil, ctx.Err()
	})

	c := mustNewCrawler(t, crawler.Config{SeedURL: "P0", LinkDepth: 1, MaxPages: 10}, fetcher)
	report, err := c.Run(ctx)

	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.Equal(t, []string{"P0"}, report.Pages.URLs())
	assert.Zero(t, report.Stats.Failed, "a cancelled fetch is not a failure")
}

func TestProgressEvents(t *testing.T) {
	site := &fakeSite{pages: map[string]fakePage{
		"P0": {text: "x x", links: []string{"P1", "P2"}},
		"P1": {text: "x"},
		"P2": {fail: true},
	}}
	events := make(chan crawler.CrawlEvent, 10)

	run(t, crawler.Config{SeedURL: "P0", Terms: []string{"x"}, LinkDepth: 1, MaxPages: 10}, site, crawler.WithProgress(events))
	close(events)

	var got []crawler.CrawlEvent
	for evt := range events {
		got = append(got, evt)
	}
	require.Len(t, got, 3)

	assert.Equal(t, crawler.CrawlEvent{URL: "P0", Depth: 1, Hits: 2, Visited: 1, Budget: 9, Queued: 2}, got[0])
	assert.Equal(t, crawler.CrawlEvent{URL: "P1", Depth: 0, Hits: 1, Visited: 2, Budget: 8, Queued: 1}, got[1])

	assert.Equal(t, "P2", got[2].URL)
	assert.Equal(t, 1, got[2].Failed)
	assert.Equal(t, 8, got[2].Budget)
	assert.Contains(t, got[2].Error, "not found")
	assert.Equal(t, result.CategoryUnknown, got[2].ErrorCategory)
}

func TestMemoryLimitIsRestored(t *testing.T) {
	before := debug.SetMemoryLimit(-1)
	site := &fakeSite{pages: map[string]fakePage{"P0": {text: "x"}}}

	report := run(t, crawler.Config{SeedURL: "P0", Terms: []string{"x"}, MaxPages: 1, MemoryLimitMB: 4096}, site)

	assert.Len(t, report.Pages, 1)
	assert.Equal(t, before, debug.SetMemoryLimit(-1))
}

// newTestServer creates an httptest server with a small site.
// Site structure:
//
//	/        -> links to /page1, /page2, mailto, #top
//	/page1   -> links to /page2 (dedup), /broken, / (cycle)
//	/page2   -> no outgoing links
//	/broken  -> 404
func newTestServer() *httptest.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		if _, err := fmt.Fprint(w, `<html><body>
			<h1>Gophers</h1>
			<p>The gopher is the Go mascot. go go</p>
			<a href="/page1">one</a>
			<a href="/page2">two</a>
			<a href="mailto:someone@example.com">mail</a>
			<a href="#top">top</a>
		</body></html>`); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})

	mux.HandleFunc("/page1", func(w http.ResponseWriter, _ *http.Request) {
		if _, err := fmt.Fprint(w, `<html><body>
			<p>A gopher page</p>
			<a href="/page2">two again</a>
			<a href="/broken">broken</a>
			<a href="/">home</a>
		</body></html>`); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})

	mux.HandleFunc("/page2", func(w http.ResponseWriter, _ *http.Request) {
		if _, err := fmt.Fprint(w, `<html><body><p>Nothing here</p></body></html>`); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})

	mux.HandleFunc("/broken", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})

	return httptest.NewServer(mux)
}

// TestCrawlerIntegration runs a crawl over HTTP from the seed through
// discovered links, including a broken page.
func TestCrawlerIntegration(t *testing.T) {
	ts := newTestServer()
	defer ts.Close()

	for _, concurrency := range []int{1, 3} {
		t.Run(fmt.Sprintf("concurrency %d", concurrency), func(t *testing.T) {
			fetcher := crawler.NewHTTPFetcher(crawler.HTTPFetcherConfig{RateLimit: 100})
			cfg := crawler.DefaultConfig(ts.URL+"/", []string{"Gopher", "go"})
			cfg.Concurrency = concurrency

			report := run(t, cfg, fetcher)

			assert.Equal(t, result.PageStats{
				ts.URL + "/":      {"gopher": 2, "go": 5},
				ts.URL + "/page1": {"gopher": 1, "go": 1},
				ts.URL + "/page2": {"gopher": 0, "go": 0},
			}, report.Pages)
			assert.Equal(t, 3, report.Stats.Visited)
			assert.Equal(t, 1, report.Stats.Failed)
			assert.Equal(t, 2, report.Stats.Skipped)

			top := result.SortedByTotal(report.Pages)
			require.Len(t, top, 3)
			assert.Equal(t, ts.URL+"/", top[0].URL)
		})
	}
}
