package session

// HistoryCap is the maximum number of results kept per history buffer.
// Pushing beyond it evicts the oldest entry.
const HistoryCap = 10

// History is a bounded, newest-first list of results. The zero value is an
// empty buffer ready for use. No deduplication: repeated operations on the
// same URI each produce a new entry.
type History[T any] struct {
	items []T
}

// Push inserts item at the front, evicting the oldest entry when the buffer
// is full.
func (h *History[T]) Push(item T) {
	h.items = append([]T{item}, h.items...)
	if len(h.items) > HistoryCap {
		h.items = h.items[:HistoryCap]
	}
}

// Snapshot returns a copy of the buffer contents, newest first.
func (h *History[T]) Snapshot() []T {
	out := make([]T, len(h.items))
	copy(out, h.items)
	return out
}

// Len returns the number of buffered entries.
func (h *History[T]) Len() int {
	return len(h.items)
}
