package memdom

import (
	"sync"

	"github.com/pthm/livefrag"
)

// HistoryEntry is one recorded history write.
type HistoryEntry struct {
	URL      string
	State    []byte
	Replaced bool
}

// History is an in-memory livefrag.History recording every write, for
// tests and simulation.
type History struct {
	mu      sync.Mutex
	entries []HistoryEntry
}

var _ livefrag.History = (*History)(nil)

// NewHistory creates an empty history.
func NewHistory() *History {
	return &History{}
}

// Replace overwrites the current entry (or creates the first one).
func (h *History) Replace(url string, state []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	entry := HistoryEntry{URL: url, State: state, Replaced: true}
	if len(h.entries) == 0 {
		h.entries = append(h.entries, entry)
		return
	}
	h.entries[len(h.entries)-1] = entry
}

// Push appends a new entry.
func (h *History) Push(url string, state []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, HistoryEntry{URL: url, State: state})
}

// Entries returns a copy of the recorded entries, oldest first.
func (h *History) Entries() []HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]HistoryEntry, len(h.entries))
	copy(out, h.entries)
	return out
}

// Len returns the number of entries.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}
