package keyboard

import (
	"log/slog"
	"time"
)

// Dispatch injects events in batches. Events are accumulated until one
// carries a non-zero settle delay; that event closes the batch, the batch is
// injected as one call, and the keyboard sleeps for the delay. Events left
// after the last delay form a final batch with no sleep.
//
// An injector failure aborts the dispatch immediately. Batches already
// injected stay injected and nothing is retried.
func (k *Keyboard) Dispatch(events []Event) error {
	var pending []Transition
	batch := 0
	for _, ev := range events {
		pending = append(pending, ev.transition())
		if ev.Settle <= 0 {
			continue
		}
		if err := k.inject(batch, pending); err != nil {
			return err
		}
		batch++
		pending = nil
		k.sleep(ev.Settle)
	}
	if len(pending) > 0 {
		return k.inject(batch, pending)
	}
	return nil
}

func (k *Keyboard) inject(batch int, transitions []Transition) error {
	slog.Debug("[keyboard] inject batch", "batch", batch, "size", len(transitions))
	if err := k.injector.Inject(transitions); err != nil {
		slog.Warn("[keyboard] injection failed, aborting dispatch", "batch", batch, "error", err)
		return &InjectionError{Batch: batch, Err: err}
	}
	return nil
}

// Press types t as one complete keystroke.
func (k *Keyboard) Press(t Typeable, settle time.Duration) error {
	return k.Dispatch(t.Events(settle))
}

// Hold presses the modifiers and base key of t and leaves them down.
func (k *Keyboard) Hold(t Typeable, settle time.Duration) error {
	return k.Dispatch(t.OnEvents(settle))
}

// Release lets go of keys previously pressed by Hold.
func (k *Keyboard) Release(t Typeable, settle time.Duration) error {
	return k.Dispatch(t.OffEvents(settle))
}

// TypeText resolves all of text before injecting anything, then types it as
// one dispatch with settle after each character.
func (k *Keyboard) TypeText(text string, settle time.Duration) error {
	typeables, err := k.ResolveText(text)
	if err != nil {
		return err
	}
	events := make([]Event, 0, 2*len(typeables))
	for _, t := range typeables {
		events = append(events, t.Events(settle)...)
	}
	return k.Dispatch(events)
}
