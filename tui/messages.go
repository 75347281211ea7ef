package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/lukemcguire/termcrawl/crawler"
	"github.com/lukemcguire/termcrawl/result"
)

// CrawlProgressMsg carries one processed page.
type CrawlProgressMsg struct {
	Event crawler.CrawlEvent
}

// CrawlDoneMsg signals the crawl has completed. Report may be partial when
// Err reports a cancellation.
type CrawlDoneMsg struct {
	Report *result.Report
	Err    error
}

// progressClosedMsg signals the progress channel was closed.
type progressClosedMsg struct{}

// waitForProgress returns a tea.Cmd that reads one event from the progress
// channel. The final report arrives separately through CrawlDoneMsg.
func waitForProgress(ch <-chan crawler.CrawlEvent) tea.Cmd {
	return func() tea.Msg {
		evt, ok := <-ch
		if !ok {
			return progressClosedMsg{}
		}
		return CrawlProgressMsg{Event: evt}
	}
}
