// Package tui provides the Bubble Tea terminal UI for termcrawl,
// displaying live crawl progress and a styled table of the top pages.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lukemcguire/termcrawl/crawler"
	"github.com/lukemcguire/termcrawl/result"
)

// Runner runs a crawl to completion.
type Runner interface {
	Run(ctx context.Context) (*result.Report, error)
}

// RunnerFunc adapts a plain function to the Runner interface.
type RunnerFunc func(ctx context.Context) (*result.Report, error)

// Run calls f(ctx).
func (f RunnerFunc) Run(ctx context.Context) (*result.Report, error) {
	return f(ctx)
}

// Model is the Bubble Tea model for the crawl TUI.
type Model struct {
	ctx        context.Context
	cancel     context.CancelFunc
	runner     Runner
	spinner    spinner.Model
	progressCh <-chan crawler.CrawlEvent
	topN       int

	visited  int
	failed   int
	budget   int
	queued   int
	hits     int
	current  string
	failures map[result.ErrorCategory]int
	stopping bool
	done     bool
	report   *result.Report
	err      error
	width    int
}

// NewModel creates a TUI model wired to the given runner and progress
// channel. topN is the number of pages shown in the final table.
func NewModel(ctx context.Context, cancel context.CancelFunc, runner Runner, progressCh <-chan crawler.CrawlEvent, topN int) Model {
	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	return Model{
		ctx:        ctx,
		cancel:     cancel,
		runner:     runner,
		spinner:    spin,
		progressCh: progressCh,
		topN:       topN,
		failures:   make(map[result.ErrorCategory]int),
	}
}

// Init starts the spinner, crawl, and progress listener concurrently.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.startCrawl(), waitForProgress(m.progressCh))
}

// startCrawl returns a tea.Cmd that runs the crawl and sends CrawlDoneMsg.
func (m Model) startCrawl() tea.Cmd {
	return func() tea.Msg {
		report, err := m.runner.Run(m.ctx)
		if err != nil {
			err = fmt.Errorf("crawl: %w", err)
		}
		return CrawlDoneMsg{Report: report, Err: err}
	}
}

// Update handles messages from the Bubble Tea runtime.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.stopping || m.done {
				return m, tea.Quit
			}
			// Stop between pages and wait for the partial report.
			m.stopping = true
			m.cancel()
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case CrawlProgressMsg:
		evt := msg.Event
		m.visited = evt.Visited
		m.failed = evt.Failed
		m.budget = evt.Budget
		m.queued = evt.Queued
		m.current = evt.URL
		m.hits += evt.Hits
		if evt.Error != "" {
			cat := evt.ErrorCategory
			if cat == "" {
				cat = result.CategoryUnknown
			}
			if m.failures == nil {
				m.failures = make(map[result.ErrorCategory]int)
			}
			m.failures[cat]++
		}
		return m, waitForProgress(m.progressCh)

	case progressClosedMsg:
		return m, nil

	case CrawlDoneMsg:
		m.done = true
		m.report = msg.Report
		m.err = msg.Err
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the current TUI state.
func (m Model) View() string {
	if m.done {
		var b strings.Builder
		if m.report != nil {
			b.WriteString(RenderSummary(m.report, m.topN, m.failures))
		}
		if m.err != nil {
			b.WriteString(errorStyle.Render("Error: " + m.err.Error()))
			b.WriteString("\n")
		}
		return b.String()
	}

	status := "Crawling..."
	if m.stopping {
		status = "Stopping..."
	}
	current := m.current
	if m.width > 4 && len(current) > m.width-4 {
		current = current[:m.width-5] + "…"
	}
	return fmt.Sprintf("%s %s visited %d, failed %d, budget %d, queued %d, hits %d\n%s\n",
		m.spinner.View(), status, m.visited, m.failed, m.budget, m.queued, m.hits,
		dimStyle.Render("  "+current))
}

// Report returns the crawl report, or nil if the crawl has not finished.
func (m Model) Report() *result.Report {
	return m.report
}

// Err returns the error the crawl ended with.
func (m Model) Err() error {
	return m.err
}

// Failures returns the number of failed fetches per category.
func (m Model) Failures() map[result.ErrorCategory]int {
	return m.failures
}
