package keyboard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypeableEventsWithoutModifiers(t *testing.T) {
	got := NewTypeable(65, nil).Events(0)
	assert.Equal(t, []Event{down(65), up(65)}, got)
}

func TestTypeableEventsWithSingleModifier(t *testing.T) {
	mod2 := DefaultModifierCodes().Mod2
	got := NewTypeable(321, []int{mod2}).Events(0)
	assert.Equal(t, []Event{down(mod2), down(321), up(321), up(mod2)}, got)
}

func TestTypeableEventsNestModifiers(t *testing.T) {
	got := NewTypeable(88, []int{1, 2, 3}).Events(7 * time.Millisecond)
	want := []Event{
		down(1), down(2), down(3),
		down(88), withSettle(up(88), 7*time.Millisecond),
		up(3), up(2), up(1),
	}
	assert.Equal(t, want, got)
}

func TestTypeableOnEvents(t *testing.T) {
	got := NewTypeable(88, []int{1, 2}).OnEvents(5)
	assert.Equal(t, []Event{down(1), down(2), withSettle(down(88), 5)}, got)
}

func TestTypeableOffEventsReverseWholeSequence(t *testing.T) {
	got := NewTypeable(88, []int{1, 2}).OffEvents(5)
	// The delay stays on the base key release, which ends up first.
	assert.Equal(t, []Event{withSettle(up(88), 5), up(2), up(1)}, got)
}

func TestTypeableOnOffWithoutModifiers(t *testing.T) {
	typ := NewTypeable(13, nil)
	assert.Equal(t, []Event{withSettle(down(13), time.Second)}, typ.OnEvents(time.Second))
	assert.Equal(t, []Event{withSettle(up(13), time.Second)}, typ.OffEvents(time.Second))
}

func TestTypeableIsImmutable(t *testing.T) {
	mods := []int{1, 2}
	typ := NewTypeable(70, mods)
	mods[0] = 99

	got := typ.Modifiers()
	require.Equal(t, []int{1, 2}, got)
	got[1] = 42
	assert.Equal(t, []int{1, 2}, typ.Modifiers())
}

func TestTypeableAcceptsAnyCode(t *testing.T) {
	typ := NewTypeable(-5, nil)
	assert.Equal(t, -5, typ.Code())
	assert.Equal(t, []Event{down(-5), up(-5)}, typ.Events(0))
}

func TestTypeableString(t *testing.T) {
	named := NewNamedTypeable("Ctrl+A", 65, []int{17})
	assert.Equal(t, "Ctrl+A", named.Name())
	assert.Equal(t,
		"Typeable(Ctrl+A)[(17, true, 0s), (65, true, 0s), (65, false, 0s), (17, false, 0s)]",
		named.String())
	assert.Equal(t, "Typeable()[(65, true, 0s), (65, false, 0s)]", NewTypeable(65, nil).String())
}
