package drowsiness

import (
	"slices"
	"time"
)

// Window is an ordered trailing window of event timestamps.
type Window struct {
	span   time.Duration
	stamps []time.Time
}

// NewWindow returns an empty window covering span.
func NewWindow(span time.Duration) *Window {
	return &Window{span: span}
}

// Add appends t. Timestamps must be added in non-decreasing order.
func (w *Window) Add(t time.Time) {
	w.stamps = append(w.stamps, t)
}

// Prune drops every entry older than the span, keeping those with now-t <= span.
func (w *Window) Prune(now time.Time) {
	cut := 0
	for cut < len(w.stamps) && now.Sub(w.stamps[cut]) > w.span {
		cut++
	}
	if cut > 0 {
		w.stamps = slices.Delete(w.stamps, 0, cut)
	}
}

// Len returns the number of entries currently held.
func (w *Window) Len() int {
	return len(w.stamps)
}

// Timestamps returns a copy of the held entries, oldest first.
func (w *Window) Timestamps() []time.Time {
	return slices.Clone(w.stamps)
}
