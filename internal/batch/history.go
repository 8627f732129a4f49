package batch

import (
	"slices"
	"strings"
	"sync"
)

// history is the rolling avoidance list shared by every worker slot.
type history struct {
	mu     sync.Mutex
	size   int
	themes []string
}

func newHistory(size int, seed []string) *history {
	h := &history{size: size}
	for _, t := range seed {
		h.push(t)
	}
	return h
}

// snapshot returns a copy, oldest first.
func (h *history) snapshot() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.themes)
}

// push appends theme, dropping the oldest entry beyond size. Blank themes
// are ignored.
func (h *history) push(theme string) {
	theme = strings.TrimSpace(theme)
	if theme == "" || h.size <= 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.themes = append(h.themes, theme)
	if over := len(h.themes) - h.size; over > 0 {
		h.themes = slices.Delete(h.themes, 0, over)
	}
}
