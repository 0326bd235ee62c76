package keyboard

import (
	"slices"
	"time"
)

// Typeable is one character expressed as a keyboard action: a base key code
// plus the modifier codes that must be held while it is pressed.
// Modifiers are applied outside-in: the first modifier is pressed first and
// released last. A Typeable is immutable once constructed.
type Typeable struct {
	code      int
	modifiers []int
	name      string
}

// NewTypeable creates an unnamed Typeable. The code is not range checked.
func NewTypeable(code int, modifiers []int) Typeable {
	return Typeable{code: code, modifiers: slices.Clone(modifiers)}
}

// NewNamedTypeable creates a Typeable carrying a diagnostic label.
func NewNamedTypeable(name string, code int, modifiers []int) Typeable {
	t := NewTypeable(code, modifiers)
	t.name = name
	return t
}

// Code returns the base virtual-key code.
func (t Typeable) Code() int { return t.code }

// Modifiers returns a copy of the ordered modifier codes.
func (t Typeable) Modifiers() []int { return slices.Clone(t.modifiers) }

// Name returns the diagnostic label, or "" when unset.
func (t Typeable) Name() string { return t.name }

// OnEvents presses every modifier in stored order and then the base key,
// leaving all of them held. The base key press carries settle.
func (t Typeable) OnEvents(settle time.Duration) []Event {
	events := make([]Event, 0, len(t.modifiers)+1)
	for _, m := range t.modifiers {
		events = append(events, Event{Code: m, Down: true})
	}
	return append(events, Event{Code: t.code, Down: true, Settle: settle})
}

// OffEvents is the release counterpart of OnEvents. The release sequence is
// built in press order and then reversed as a whole, so the base key release
// (carrying settle) comes first and the modifiers follow in reverse order.
func (t Typeable) OffEvents(settle time.Duration) []Event {
	events := make([]Event, 0, len(t.modifiers)+1)
	for _, m := range t.modifiers {
		events = append(events, Event{Code: m, Down: false})
	}
	events = append(events, Event{Code: t.code, Down: false, Settle: settle})
	slices.Reverse(events)
	return events
}

// Events returns a complete keystroke: modifiers down, base key down and up
// (the release carries settle), modifiers up in reverse order.
func (t Typeable) Events(settle time.Duration) []Event {
	events := []Event{
		{Code: t.code, Down: true},
		{Code: t.code, Down: false, Settle: settle},
	}
	for i := len(t.modifiers) - 1; i >= 0; i-- {
		m := t.modifiers[i]
		events = slices.Insert(events, 0, Event{Code: m, Down: true})
		events = append(events, Event{Code: m, Down: false})
	}
	return events
}

// String renders the Typeable for logs. It is not meant for comparisons.
func (t Typeable) String() string {
	return "Typeable(" + t.name + ")" + formatEvents(t.Events(0))
}
