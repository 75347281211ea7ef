// Package matcher provides an Aho-Corasick automaton that counts every
// occurrence of a fixed set of terms in a single pass over a text.
package matcher

// noPattern marks a node whose prefix is not a whole pattern.
const noPattern = -1

// root is the arena index of the trie root.
const root = 0

// node is a trie node. Transitions are on UTF-8 bytes; since a valid
// UTF-8 pattern starts with a lead byte, every match starts on a rune
// boundary of valid text. Back-references (suffix, output) are arena indices.
type node struct {
	children map[byte]int32
	suffix   int32 // longest proper suffix that is also a pattern prefix
	output   int32 // nearest pattern-completing node on the suffix chain, or root
	pattern  int32 // pattern id, or noPattern
}

// Match reports one occurrence of a pattern in a scanned text.
type Match struct {
	Pattern int // index into Patterns()
	Start   int // byte offset of the first byte (inclusive)
	End     int // byte offset after the last byte (exclusive)
}

// Automaton is an immutable Aho-Corasick automaton. It is safe for
// concurrent use once built.
type Automaton struct {
	nodes    []node
	patterns []string
}

// New builds an automaton for patterns. Duplicates keep their first
// position, so pattern ids follow input order. Empty patterns are dropped:
// they have no node and can never match.
func New(patterns []string) *Automaton {
	a := &Automaton{
		nodes: []node{newNode()},
	}

	seen := make(map[string]struct{}, len(patterns))
	for _, p := range patterns {
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		a.insert(p, int32(len(a.patterns)))
		a.patterns = append(a.patterns, p)
	}

	order := a.buildSuffixLinks()
	a.buildOutputLinks(order)
	return a
}

func newNode() node {
	return node{
		children: make(map[byte]int32),
		pattern:  noPattern,
	}
}

// insert walks or creates one node per byte of p and tags the last one.
func (a *Automaton) insert(p string, id int32) {
	current := int32(root)
	for i := 0; i < len(p); i++ {
		b := p[i]
		next, ok := a.nodes[current].children[b]
		if !ok {
			next = int32(len(a.nodes))
			a.nodes = append(a.nodes, newNode())
			a.nodes[current].children[b] = next
		}
		current = next
	}
	a.nodes[current].pattern = id
}

// buildSuffixLinks assigns suffix links breadth-first and returns the visit
// order (root excluded) so later passes can reuse it.
func (a *Automaton) buildSuffixLinks() []int32 {
	a.nodes[root].suffix = root

	order := make([]int32, 0, len(a.nodes)-1)
	for _, child := range a.nodes[root].children {
		a.nodes[child].suffix = root
		order = append(order, child)
	}

	// order doubles as the BFS queue: parents always precede children.
	for head := 0; head < len(order); head++ {
		parent := order[head]
		for b, child := range a.nodes[parent].children {
			a.nodes[child].suffix = a.childSuffix(parent, b)
			order = append(order, child)
		}
	}
	return order
}

// childSuffix computes the suffix link of parent's child on b. parent is
// never the root here.
func (a *Automaton) childSuffix(parent int32, b byte) int32 {
	return a.fallback(a.nodes[parent].suffix, b)
}

// fallback follows suffix links from n until a node with a transition on b
// is found and returns that transition's target, or root if none exists.
func (a *Automaton) fallback(n int32, b byte) int32 {
	for n != root {
		if _, ok := a.nodes[n].children[b]; ok {
			break
		}
		n = a.nodes[n].suffix
	}
	if next, ok := a.nodes[n].children[b]; ok {
		return next
	}
	return root
}

func (a *Automaton) buildOutputLinks(order []int32) {
	a.nodes[root].output = root
	for _, idx := range order {
		suffix := a.nodes[idx].suffix
		if a.nodes[suffix].pattern != noPattern {
			a.nodes[idx].output = suffix
		} else {
			a.nodes[idx].output = a.nodes[suffix].output
		}
	}
}

// step moves the cursor on b. Without a direct transition it falls back
// along the suffix chain of current; when nothing matches it returns root.
func (a *Automaton) step(current int32, b byte) int32 {
	if next, ok := a.nodes[current].children[b]; ok {
		return next
	}
	return a.fallback(a.nodes[current].suffix, b)
}

// Scan calls fn for every pattern occurrence in text, in order of end
// position. Overlapping and nested occurrences are all reported; at one end
// position the longest pattern comes first.
func (a *Automaton) Scan(text string, fn func(Match)) {
	if len(a.patterns) == 0 {
		return
	}
	current := int32(root)
	for i := 0; i < len(text); i++ {
		current = a.step(current, text[i])
		end := i + 1
		for n := current; n != root; n = a.nodes[n].output {
			id := a.nodes[n].pattern
			if id == noPattern {
				continue
			}
			fn(Match{
				Pattern: int(id),
				Start:   end - len(a.patterns[id]),
				End:     end,
			})
		}
	}
}

// Counts returns occurrence counts indexed by pattern id.
func (a *Automaton) Counts(text string) []int {
	counts := make([]int, len(a.patterns))
	a.Scan(text, func(m Match) {
		counts[m.Pattern]++
	})
	return counts
}

// CountOccurrences returns the number of occurrences of every pattern in
// text. Patterns that do not occur are present with a count of zero.
func (a *Automaton) CountOccurrences(text string) map[string]int {
	counts := a.Counts(text)
	occurrences := make(map[string]int, len(a.patterns))
	for id, p := range a.patterns {
		occurrences[p] = counts[id]
	}
	return occurrences
}

// Patterns returns the stored patterns in id order.
func (a *Automaton) Patterns() []string {
	out := make([]string, len(a.patterns))
	copy(out, a.patterns)
	return out
}

// Len returns the number of distinct patterns.
func (a *Automaton) Len() int {
	return len(a.patterns)
}
