package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"slices"
	"sync"
	"time"
)

// Entry is one log record seen by a tee.
type Entry struct {
	Time    time.Time
	Level   slog.Level
	Message string
	// Group is the dot-separated slog group, empty at top level.
	Group string
}

// TeeHandler forwards every record to base and additionally passes records at
// or above minLevel to callback.
type TeeHandler struct {
	base     slog.Handler
	callback func(Entry)
	minLevel slog.Level
	group    string
}

// NewTeeHandler wraps base. A nil callback makes the handler a plain
// pass-through.
func NewTeeHandler(base slog.Handler, minLevel slog.Level, callback func(Entry)) *TeeHandler {
	return &TeeHandler{base: base, callback: callback, minLevel: minLevel}
}

// Enabled defers to base; minLevel only gates the callback.
func (h *TeeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.base.Enabled(ctx, level)
}

// Handle forwards record to base, then to the callback. The base error is
// returned even when the callback runs.
func (h *TeeHandler) Handle(ctx context.Context, record slog.Record) error {
	err := h.base.Handle(ctx, record)
	if h.callback != nil && record.Level >= h.minLevel {
		h.invoke(Entry{Time: record.Time, Level: record.Level, Message: record.Message, Group: h.group})
	}
	return err
}

func (h *TeeHandler) invoke(e Entry) {
	defer func() {
		if r := recover(); r != nil {
			// Not slog: that would re-enter this handler.
			fmt.Fprintf(os.Stderr, "[logging] tee callback panicked: %v\n%s\n", r, debug.Stack())
		}
	}()
	h.callback(e)
}

// WithAttrs implements slog.Handler.
func (h *TeeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	return &TeeHandler{base: h.base.WithAttrs(attrs), callback: h.callback, minLevel: h.minLevel, group: h.group}
}

// WithGroup implements slog.Handler.
func (h *TeeHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	group := name
	if h.group != "" {
		group = h.group + "." + name
	}
	return &TeeHandler{base: h.base.WithGroup(name), callback: h.callback, minLevel: h.minLevel, group: group}
}

// Recent keeps the last entries passed to Add in a fixed-size ring.
type Recent struct {
	mu      sync.Mutex
	entries []Entry
	next    int
	full    bool
}

// NewRecent returns a ring holding up to size entries.
func NewRecent(size int) *Recent {
	if size <= 0 {
		size = 1
	}
	return &Recent{entries: make([]Entry, size)}
}

// Add records e, evicting the oldest entry when full.
func (r *Recent) Add(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[r.next] = e
	r.next = (r.next + 1) % len(r.entries)
	if r.next == 0 {
		r.full = true
	}
}

// Entries returns the retained entries, oldest first.
func (r *Recent) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		return slices.Clone(r.entries[:r.next])
	}
	return append(slices.Clone(r.entries[r.next:]), r.entries[:r.next]...)
}
