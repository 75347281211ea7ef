package result

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func sampleStats() PageStats {
	return PageStats{
		"https://example.com/":  {"go": 1, "rust": 0},
		"https://example.com/a": {"go": 5, "rust": 2},
		"https://example.com/b": {"go": 0, "rust": 1},
		"https://example.com/c": {"go": 3, "rust": 4},
		"https://example.com/d": {"go": 1, "rust": 0},
	}
}

func TestCountsTotal(t *testing.T) {
	assert.Equal(t, 0, Counts{}.Total())
	assert.Equal(t, 0, Counts(nil).Total())
	assert.Equal(t, 9, Counts{"a": 4, "b": 5}.Total())
}

func TestSortedByTotal(t *testing.T) {
	entries := SortedByTotal(sampleStats())

	var urls []string
	var totals []int
	for _, e := range entries {
		urls = append(urls, e.URL)
		totals = append(totals, e.Total())
	}

	assert.Equal(t, []int{7, 7, 1, 1, 1}, totals)
	// Ties are broken by URL.
	assert.Equal(t, []string{
		"https://example.com/a",
		"https://example.com/c",
		"https://example.com/",
		"https://example.com/b",
		"https://example.com/d",
	}, urls)
}

func TestSortedByTotalEmpty(t *testing.T) {
	assert.Empty(t, SortedByTotal(nil))
	assert.Empty(t, SortedByTotal(PageStats{}))
}

func TestSortedByTotalDoesNotMutate(t *testing.T) {
	stats := sampleStats()
	_ = SortedByTotal(stats)

	assert.Equal(t, sampleStats(), stats)
}

func TestTop(t *testing.T) {
	tests := []struct {
		name string
		n    int
		want int
	}{
		{"fewer than available", 2, 2},
		{"exactly available", 5, 5},
		{"more than available", 10, 5},
		{"zero", 0, 0},
		{"negative", -1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, Top(sampleStats(), tt.n), tt.want)
		})
	}
}

func TestTopKeepsRankingOrder(t *testing.T) {
	top := Top(sampleStats(), 2)

	assert.Equal(t, "https://example.com/a", top[0].URL)
	assert.Equal(t, "https://example.com/c", top[1].URL)
}
