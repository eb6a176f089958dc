package editor

import (
	"reflect"
	"time"

	"github.com/alimasry/go-page-editor/schema"
)

// Snapshot is one point in a page's edit history.
type Snapshot struct {
	Sections     []schema.Section
	GlobalStyles schema.GlobalStyles
}

func (s Snapshot) clone() Snapshot {
	return Snapshot{
		Sections:     schema.CloneSections(s.Sections),
		GlobalStyles: s.GlobalStyles,
	}
}

// History is a linear undo/redo log of snapshots. It is not safe for
// concurrent use; one editing session owns it.
//
// Snapshots stored in past and future are never modified after they are
// pushed. Mutations receive a deep copy of the present.
type History struct {
	present Snapshot
	past    []Snapshot
	future  []Snapshot
	version int

	maxDepth int
	window   time.Duration
	now      func() time.Time

	lastKey string
	lastAt  time.Time
}

// Option configures a History.
type Option func(*History)

// WithMaxDepth caps the number of undo steps kept. Zero means unlimited.
func WithMaxDepth(n int) Option {
	return func(h *History) { h.maxDepth = n }
}

// WithCoalesceWindow sets how close together two ApplyCoalesced calls with
// the same key must be to share one undo step.
func WithCoalesceWindow(d time.Duration) Option {
	return func(h *History) { h.window = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(h *History) { h.now = now }
}

// NewHistory starts a history at initial with empty past and future.
func NewHistory(initial Snapshot, opts ...Option) *History {
	h := &History{
		present: initial.clone(),
		window:  time.Second,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Present returns a copy of the current snapshot.
func (h *History) Present() Snapshot {
	return h.present.clone()
}

// Version counts accepted edits, undos and redos.
func (h *History) Version() int { return h.version }

func (h *History) CanUndo() bool { return len(h.past) > 0 }
func (h *History) CanRedo() bool { return len(h.future) > 0 }

// Apply runs m against a copy of the present. On error nothing changes. A
// result equal to the present is not recorded. Otherwise the present moves to
// the past and the future is discarded.
func (h *History) Apply(m Mutation) error {
	return h.ApplyCoalesced("", m)
}

// ApplyCoalesced is Apply, except that consecutive calls with the same
// non-empty key inside the coalesce window collapse into one undo step.
func (h *History) ApplyCoalesced(key string, m Mutation) error {
	next, err := m(schema.CloneSections(h.present.Sections))
	if err != nil {
		return err
	}
	h.commit(key, Snapshot{Sections: next, GlobalStyles: h.present.GlobalStyles})
	return nil
}

// SetGlobalStyles records a style change as its own undo step.
func (h *History) SetGlobalStyles(styles schema.GlobalStyles) {
	h.commit("", Snapshot{Sections: h.present.Sections, GlobalStyles: styles})
}

func (h *History) commit(key string, next Snapshot) {
	next = next.clone()
	if reflect.DeepEqual(next, h.present) {
		return
	}
	now := h.now()
	coalesce := key != "" && key == h.lastKey && len(h.past) > 0 && now.Sub(h.lastAt) <= h.window
	if !coalesce {
		h.past = append(h.past, h.present)
		if h.maxDepth > 0 && len(h.past) > h.maxDepth {
			h.past = append([]Snapshot(nil), h.past[len(h.past)-h.maxDepth:]...)
		}
	}
	h.present = next
	h.future = nil
	h.lastKey, h.lastAt = key, now
	h.version++
}

// Undo steps back one snapshot. It reports whether anything changed.
func (h *History) Undo() bool {
	if len(h.past) == 0 {
		return false
	}
	last := len(h.past) - 1
	h.future = append(h.future, h.present)
	h.present = h.past[last]
	h.past = h.past[:last]
	h.lastKey = ""
	h.version++
	return true
}

// Redo re-applies the most recently undone snapshot. It reports whether
// anything changed.
func (h *History) Redo() bool {
	if len(h.future) == 0 {
		return false
	}
	last := len(h.future) - 1
	h.past = append(h.past, h.present)
	h.present = h.future[last]
	h.future = h.future[:last]
	h.lastKey = ""
	h.version++
	return true
}

// Reset discards all history and starts over at s.
func (h *History) Reset(s Snapshot) {
	h.present = s.clone()
	h.past = nil
	h.future = nil
	h.lastKey = ""
	h.version++
}
