package crawler

// queueEntry is a page waiting to be visited and the number of link hops
// still allowed below it.
type queueEntry struct {
	URL   string
	Depth int
}

// frontier is a FIFO queue of pending pages. The same URL may be queued
// more than once; duplicates are dropped when dequeued.
type frontier struct {
	items []queueEntry
	head  int
}

func (f *frontier) push(e queueEntry) {
	f.items = append(f.items, e)
}

func (f *frontier) peek() (queueEntry, bool) {
	if f.head >= len(f.items) {
		return queueEntry{}, false
	}
	return f.items[f.head], true
}

func (f *frontier) pop() (queueEntry, bool) {
	e, ok := f.peek()
	if !ok {
		return e, false
	}
	f.items[f.head] = queueEntry{}
	f.head++

	// Reclaim the consumed prefix once it dominates the backing array.
	if f.head > 1024 && f.head*2 >= len(f.items) {
		f.items = append(f.items[:0:0], f.items[f.head:]...)
		f.head = 0
	}
	return e, true
}

func (f *frontier) len() int {
	return len(f.items) - f.head
}
