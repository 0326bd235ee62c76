package keyboard

import (
	"slices"
	"sync"
	"time"
)

// fakeScanner answers OS scan queries from a map and counts calls.
type fakeScanner struct {
	mu     sync.Mutex
	wide   map[rune]int
	narrow map[byte]int
	calls  int
}

func (s *fakeScanner) ScanWide(r rune) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if v, ok := s.wide[r]; ok {
		return v
	}
	return NoMapping
}

func (s *fakeScanner) ScanNarrow(c byte) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if v, ok := s.narrow[c]; ok {
		return v
	}
	return NoMapping
}

func (s *fakeScanner) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// recordingInjector keeps a copy of every batch and can fail a given batch.
type recordingInjector struct {
	batches [][]Transition
	failAt  int // 1-based batch number to fail; 0 never fails
	failErr error
}

func (r *recordingInjector) Inject(batch []Transition) error {
	if r.failAt > 0 && len(r.batches)+1 == r.failAt {
		return r.failErr
	}
	r.batches = append(r.batches, slices.Clone(batch))
	return nil
}

type sleepRecorder struct {
	sleeps []time.Duration
}

func (s *sleepRecorder) sleep(d time.Duration) {
	s.sleeps = append(s.sleeps, d)
}

func newTestKeyboard(scanner *fakeScanner, injector Injector, sleeper *sleepRecorder, layout string) *Keyboard {
	if scanner == nil {
		scanner = &fakeScanner{}
	}
	if injector == nil {
		injector = &recordingInjector{}
	}
	opts := Options{Scanner: scanner, Injector: injector, Layout: layout}
	if sleeper != nil {
		opts.Sleep = sleeper.sleep
	}
	k, err := New(opts)
	if err != nil {
		panic(err)
	}
	return k
}

func down(code int) Event { return Event{Code: code, Down: true} }
func up(code int) Event   { return Event{Code: code, Down: false} }

func withSettle(ev Event, d time.Duration) Event {
	ev.Settle = d
	return ev
}
