// Package keyboard resolves characters to virtual-key actions and dispatches
// synthetic key transitions in timed batches.
//
// Resolution tries the alternate layout table first and only falls back to
// the OS character query for characters the table does not know. Dispatch
// groups transitions into batches that end at every event carrying a settle
// delay, injects each batch in one call, and sleeps after it.
//
// A Keyboard holds no lock. Resolution is safe for concurrent use; Dispatch
// must be driven by a single caller at a time.
package keyboard

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// NoMapping is the packed value a KeyScanner returns for a character the
// active OS layout cannot produce.
const NoMapping = -1

// Bits of the packed scan result above the virtual-key byte.
const (
	scanShiftBit = 0x0100
	scanCtrlBit  = 0x0200
	scanAltBit   = 0x0400
	codeMask     = 0x00FF
)

// KeyScanner is the OS character-to-virtual-key query. The low byte of the
// result is the virtual-key code and bits 8..10 flag shift, ctrl and alt.
type KeyScanner interface {
	ScanWide(r rune) int
	ScanNarrow(c byte) int
}

// Injector delivers one batch of transitions to the OS as a single unit.
type Injector interface {
	Inject(batch []Transition) error
}

// InjectorFunc adapts a function to the Injector interface.
type InjectorFunc func(batch []Transition) error

// Inject calls f.
func (f InjectorFunc) Inject(batch []Transition) error { return f(batch) }

// Options configures a Keyboard.
type Options struct {
	Scanner  KeyScanner
	Injector Injector
	// Sleep waits after a delay-bearing batch. Defaults to time.Sleep.
	Sleep func(time.Duration)
	// Modifiers overrides individual modifier codes; zero fields keep the
	// Windows defaults.
	Modifiers ModifierCodes
	// Layout names the alternate layout table (LayoutNeo2 when empty,
	// LayoutNone to always ask the OS).
	Layout string
}

// Keyboard is the key resolver and dispatcher.
type Keyboard struct {
	scanner  KeyScanner
	injector Injector
	sleep    func(time.Duration)
	codes    ModifierCodes
	layout   *Layout
}

// New validates opts and constructs a Keyboard. The layout table is built
// once here and never changes afterwards.
func New(opts Options) (*Keyboard, error) {
	if opts.Scanner == nil {
		return nil, errors.New("keyboard requires a key scanner")
	}
	if opts.Injector == nil {
		return nil, errors.New("keyboard requires an injector")
	}
	codes := opts.Modifiers.withDefaults()
	layout, err := LayoutByName(opts.Layout, codes)
	if err != nil {
		return nil, err
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	slog.Debug("[keyboard] constructed", "layout", layout.Name())
	return &Keyboard{
		scanner:  opts.Scanner,
		injector: opts.Injector,
		sleep:    sleep,
		codes:    codes,
		layout:   layout,
	}, nil
}

// ModifierCodes returns the modifier codes in effect.
func (k *Keyboard) ModifierCodes() ModifierCodes { return k.codes }

// Layout returns the alternate layout table, or nil when none is active.
func (k *Keyboard) Layout() *Layout { return k.layout }

// KeycodeAndModifiers asks the OS for the key producing r (wide query).
func (k *Keyboard) KeycodeAndModifiers(r rune) (int, []int, error) {
	return k.unpackScan(r, k.scanner.ScanWide(r))
}

// KeycodeAndModifiersNarrow asks the OS for the key producing the
// single-byte character c (narrow query).
func (k *Keyboard) KeycodeAndModifiersNarrow(c byte) (int, []int, error) {
	return k.unpackScan(rune(c), k.scanner.ScanNarrow(c))
}

// unpackScan splits a packed scan result. Only one modifier is reported,
// with shift taking priority over ctrl and ctrl over alt.
func (k *Keyboard) unpackScan(r rune, packed int) (int, []int, error) {
	if packed == NoMapping {
		return 0, nil, &UnresolvedCharacterError{Char: r}
	}
	var modifiers []int
	switch {
	case packed&scanShiftBit != 0:
		modifiers = []int{k.codes.Shift}
	case packed&scanCtrlBit != 0:
		modifiers = []int{k.codes.Ctrl}
	case packed&scanAltBit != 0:
		modifiers = []int{k.codes.Alt}
	}
	return packed & codeMask, modifiers, nil
}

// ResolveTypeable returns the Typeable for r, preferring the alternate
// layout table over the OS query.
func (k *Keyboard) ResolveTypeable(r rune) (Typeable, error) {
	if t, ok := k.lookupLayout(r); ok {
		return t, nil
	}
	code, modifiers, err := k.KeycodeAndModifiers(r)
	if err != nil {
		return Typeable{}, err
	}
	return NewTypeable(code, modifiers), nil
}

// ResolveTypeableNarrow is ResolveTypeable for a single-byte character; the
// OS fallback uses the narrow query.
func (k *Keyboard) ResolveTypeableNarrow(c byte) (Typeable, error) {
	if t, ok := k.lookupLayout(rune(c)); ok {
		return t, nil
	}
	code, modifiers, err := k.KeycodeAndModifiersNarrow(c)
	if err != nil {
		return Typeable{}, err
	}
	return NewTypeable(code, modifiers), nil
}

func (k *Keyboard) lookupLayout(r rune) (Typeable, bool) {
	code, modifiers, ok := k.layout.Lookup(r)
	if !ok {
		return Typeable{}, false
	}
	return Typeable{code: code & codeMask, modifiers: modifiers}, true
}

// ResolveText resolves every rune of text, stopping at the first rune that
// cannot be resolved.
func (k *Keyboard) ResolveText(text string) ([]Typeable, error) {
	typeables := make([]Typeable, 0, len(text))
	for i, r := range text {
		t, err := k.resolveTextRune(r)
		if err != nil {
			return nil, fmt.Errorf("resolve text at byte %d: %w", i, err)
		}
		typeables = append(typeables, t)
	}
	return typeables, nil
}

// resolveTextRune falls back to Enter and Tab for control characters the
// OS query does not map on some layouts.
func (k *Keyboard) resolveTextRune(r rune) (Typeable, error) {
	t, err := k.ResolveTypeable(r)
	if err == nil {
		return t, nil
	}
	switch r {
	case '\n', '\r':
		return NewTypeable(vkReturn, nil), nil
	case '\t':
		return NewTypeable(vkTab, nil), nil
	}
	return Typeable{}, err
}
