// Package typist serializes keyboard work. All dispatches run on one worker
// goroutine, so characters from concurrent requests never interleave.
package typist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"keytype/internal/keyboard"
	"keytype/internal/workerutil"

	"golang.org/x/text/unicode/norm"
)

const (
	defaultQueueSize = 32
	// MaxSettle bounds per-request settle overrides.
	MaxSettle = 10 * time.Second
)

var (
	// ErrClosed is returned for jobs submitted to, or still queued in, a
	// closed service.
	ErrClosed = errors.New("typist: service closed")
	// ErrInvalidJob marks jobs rejected before any key was injected.
	ErrInvalidJob = errors.New("typist: invalid job")
)

// JobKind selects what a Job does.
type JobKind string

const (
	JobText    JobKind = "text"
	JobPress   JobKind = "press"
	JobHold    JobKind = "hold"
	JobRelease JobKind = "release"
)

// Job is one unit of keyboard work.
type Job struct {
	Kind JobKind
	// Text is typed by JobText.
	Text string
	// Keys is the chord for press, hold and release, e.g. "ctrl+shift+a".
	Keys string
	// Settle is the pause after each character or chord.
	Settle time.Duration
}

// Options configures a Service.
type Options struct {
	Keyboard *keyboard.Keyboard
	// DefaultSettle applies to requests that do not carry their own delay.
	DefaultSettle time.Duration
	QueueSize     int
}

type pendingJob struct {
	job  Job
	done chan error
}

// Service owns the single writer to the keyboard.
type Service struct {
	kb            *keyboard.Keyboard
	defaultSettle time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	jobs   chan *pendingJob

	mu     sync.RWMutex
	closed bool

	// held is only touched by the worker, and by Close after it has stopped.
	held map[string]keyboard.Typeable
}

// New starts a Service.
func New(opts Options) (*Service, error) {
	if opts.Keyboard == nil {
		return nil, errors.New("typist: keyboard is required")
	}
	if opts.DefaultSettle < 0 || opts.DefaultSettle > MaxSettle {
		return nil, fmt.Errorf("typist: default settle %s out of range", opts.DefaultSettle)
	}
	size := opts.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		kb:            opts.Keyboard,
		defaultSettle: opts.DefaultSettle,
		ctx:           ctx,
		cancel:        cancel,
		jobs:          make(chan *pendingJob, size),
		held:          map[string]keyboard.Typeable{},
	}
	workerutil.RunWithPanicRecovery(ctx, "typist", &s.wg, s.loop, workerutil.RecoveryOptions{})
	return s, nil
}

// Submit queues job and waits for its result. Cancelling ctx abandons the
// wait; a job already being typed still runs to completion.
func (s *Service) Submit(ctx context.Context, job Job) error {
	if err := validateJob(job); err != nil {
		return err
	}
	p := &pendingJob{job: job, done: make(chan error, 1)}

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrClosed
	}
	select {
	case s.jobs <- p:
	case <-ctx.Done():
		s.mu.RUnlock()
		return ctx.Err()
	case <-s.ctx.Done():
		s.mu.RUnlock()
		return ErrClosed
	}
	s.mu.RUnlock()

	select {
	case err := <-p.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the worker, fails queued jobs with ErrClosed and releases any
// keys left down by hold jobs.
func (s *Service) Close() error {
	s.cancel()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.wg.Wait()
drain:
	for {
		select {
		case p := <-s.jobs:
			p.done <- ErrClosed
		default:
			break drain
		}
	}
	return s.releaseHeld()
}

func (s *Service) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case p := <-s.jobs:
			if ctx.Err() != nil {
				p.done <- ErrClosed
				return
			}
			s.runPending(p)
		}
	}
}

// runPending answers p even when the job panics, then lets the panic reach
// the recovery wrapper so the worker restarts.
func (s *Service) runPending(p *pendingJob) {
	defer func() {
		if r := recover(); r != nil {
			p.done <- fmt.Errorf("typist: %s job panicked: %v", p.job.Kind, r)
			panic(r)
		}
	}()
	started := time.Now()
	err := s.run(p.job)
	slog.Debug("[typist] job finished",
		"kind", p.job.Kind,
		"chars", len([]rune(p.job.Text)),
		"elapsed", time.Since(started),
		"error", err,
	)
	p.done <- err
}

func (s *Service) run(job Job) error {
	if job.Kind == JobText {
		return s.kb.TypeText(normalizeText(job.Text), job.Settle)
	}

	t, err := s.kb.ParseChord(job.Keys)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidJob, err)
	}
	switch job.Kind {
	case JobPress:
		return s.kb.Press(t, job.Settle)
	case JobHold:
		if err := s.kb.Hold(t, job.Settle); err != nil {
			return err
		}
		s.held[t.Name()] = t
		return nil
	case JobRelease:
		if err := s.kb.Release(t, job.Settle); err != nil {
			return err
		}
		delete(s.held, t.Name())
		return nil
	}
	return fmt.Errorf("%w: unknown kind %q", ErrInvalidJob, job.Kind)
}

func (s *Service) releaseHeld() error {
	var errs []error
	for name, t := range s.held {
		slog.Info("[typist] releasing held keys on close", "keys", name)
		if err := s.kb.Release(t, 0); err != nil {
			errs = append(errs, err)
		}
		delete(s.held, name)
	}
	return errors.Join(errs...)
}

// normalizeText composes combining sequences (NFC) so that "e" followed by
// U+0301 resolves as the single key for "é".
func normalizeText(text string) string {
	return norm.NFC.String(text)
}

func validateJob(job Job) error {
	if job.Settle < 0 || job.Settle > MaxSettle {
		return fmt.Errorf("%w: settle %s out of range", ErrInvalidJob, job.Settle)
	}
	switch job.Kind {
	case JobText:
		return nil
	case JobPress, JobHold, JobRelease:
		if job.Keys == "" {
			return fmt.Errorf("%w: %s requires keys", ErrInvalidJob, job.Kind)
		}
		return nil
	}
	return fmt.Errorf("%w: unknown kind %q", ErrInvalidJob, job.Kind)
}
