// Package keyboardtest provides in-memory keyboard backends for tests of
// packages built on top of keyboard.
package keyboardtest

import (
	"slices"
	"sync"
	"time"

	"keytype/internal/keyboard"
)

// Scanner answers OS scan queries from fixed tables. Characters absent from
// the tables report keyboard.NoMapping.
type Scanner struct {
	Wide   map[rune]int
	Narrow map[byte]int
}

// ScanWide implements keyboard.KeyScanner.
func (s Scanner) ScanWide(r rune) int {
	if v, ok := s.Wide[r]; ok {
		return v
	}
	return keyboard.NoMapping
}

// ScanNarrow implements keyboard.KeyScanner.
func (s Scanner) ScanNarrow(c byte) int {
	if v, ok := s.Narrow[c]; ok {
		return v
	}
	return keyboard.NoMapping
}

// Injector records every batch it receives. Setting Err makes every
// subsequent Inject fail without recording.
type Injector struct {
	mu      sync.Mutex
	batches [][]keyboard.Transition
	Err     error
	// Block, when non-nil, is received from before each batch is recorded.
	Block chan struct{}
}

// Inject implements keyboard.Injector.
func (i *Injector) Inject(batch []keyboard.Transition) error {
	if i.Block != nil {
		<-i.Block
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.Err != nil {
		return i.Err
	}
	i.batches = append(i.batches, slices.Clone(batch))
	return nil
}

// Batches returns a copy of the recorded batches.
func (i *Injector) Batches() [][]keyboard.Transition {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([][]keyboard.Transition, len(i.batches))
	for n, b := range i.batches {
		out[n] = slices.Clone(b)
	}
	return out
}

// Transitions flattens all recorded batches.
func (i *Injector) Transitions() []keyboard.Transition {
	var out []keyboard.Transition
	for _, b := range i.Batches() {
		out = append(out, b...)
	}
	return out
}

// New returns a Neo2 keyboard over an empty scanner and a fresh injector.
// Sleeps are skipped.
func New() (*keyboard.Keyboard, *Injector) {
	injector := &Injector{}
	k, err := keyboard.New(keyboard.Options{
		Scanner:  Scanner{},
		Injector: injector,
		Sleep:    func(time.Duration) {},
	})
	if err != nil {
		// Options are static; New only fails on programmer error.
		panic(err)
	}
	return k, injector
}
