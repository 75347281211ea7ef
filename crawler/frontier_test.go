package crawler

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrontierFIFO(t *testing.T) {
	var f frontier

	_, ok := f.pop()
	assert.False(t, ok, "empty frontier")

	f.push(queueEntry{URL: "a", Depth: 2})
	f.push(queueEntry{URL: "b", Depth: 1})
	f.push(queueEntry{URL: "a", Depth: 0})
	assert.Equal(t, 3, f.len())

	head, ok := f.peek()
	require.True(t, ok)
	assert.Equal(t, queueEntry{URL: "a", Depth: 2}, head)
	assert.Equal(t, 3, f.len(), "peek does not consume")

	for _, want := range []queueEntry{{"a", 2}, {"b", 1}, {"a", 0}} {
		got, ok := f.pop()
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
	assert.Zero(t, f.len())
}

func TestFrontierCompaction(t *testing.T) {
	var f frontier
	for i := range 5000 {
		f.push(queueEntry{URL: fmt.Sprintf("u%d", i)})
	}
	for i := range 4000 {
		got, ok := f.pop()
		require.True(t, ok)
		require.Equal(t, fmt.Sprintf("u%d", i), got.URL)
	}

	assert.Equal(t, 1000, f.len())
	assert.Less(t, f.head, 1100, "consumed prefix should be reclaimed")

	f.push(queueEntry{URL: "tail"})
	for i := 4000; i < 5000; i++ {
		got, _ := f.pop()
		assert.Equal(t, fmt.Sprintf("u%d", i), got.URL)
	}
	got, _ := f.pop()
	assert.Equal(t, "tail", got.URL)
}
