package tui

import "slices"

// Board is owner-affine demo state: counters and recent lines. It has no
// lock; every mutation is dispatched to the owner.
type Board struct {
	capacity int
	counts   map[string]int
	lines    []string
	total    int
}

func NewBoard(capacity int) *Board {
	if capacity <= 0 {
		capacity = 10
	}
	return &Board{
		capacity: capacity,
		counts:   make(map[string]int),
	}
}

// Add counts one update from source and keeps line among the recent ones.
func (b *Board) Add(source, line string) {
	b.counts[source]++
	b.total++
	b.lines = append(b.lines, line)
	if len(b.lines) > b.capacity {
		b.lines = b.lines[len(b.lines)-b.capacity:]
	}
}

func (b *Board) Total() int {
	return b.total
}

func (b *Board) Count(source string) int {
	return b.counts[source]
}

// Sources returns the sources seen so far, sorted.
func (b *Board) Sources() []string {
	out := make([]string, 0, len(b.counts))
	for s := range b.counts {
		out = append(out, s)
	}
	slices.Sort(out)
	return out
}

// Lines returns the recent lines, oldest first.
func (b *Board) Lines() []string {
	return slices.Clone(b.lines)
}
