package keyboard

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Options{Injector: &recordingInjector{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scanner")

	_, err = New(Options{Scanner: &fakeScanner{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "injector")
}

func TestNewRejectsUnknownLayout(t *testing.T) {
	_, err := New(Options{Scanner: &fakeScanner{}, Injector: &recordingInjector{}, Layout: "dvorak"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown keyboard layout")
}

func TestNewFillsModifierDefaults(t *testing.T) {
	k, err := New(Options{
		Scanner:   &fakeScanner{},
		Injector:  &recordingInjector{},
		Modifiers: ModifierCodes{Mod3: 20},
	})
	require.NoError(t, err)

	codes := k.ModifierCodes()
	assert.Equal(t, 20, codes.Mod3)
	assert.Equal(t, DefaultModifierCodes().Shift, codes.Shift)
	assert.Equal(t, DefaultModifierCodes().Mod4, codes.Mod4)
	assert.Equal(t, LayoutNeo2, k.Layout().Name())
}

func TestResolveTypeableUsesLayoutTableWithoutOSQuery(t *testing.T) {
	scanner := &fakeScanner{}
	k := newTestKeyboard(scanner, nil, nil, LayoutNeo2)

	for _, r := range k.Layout().Chars() {
		code, mods, ok := k.Layout().Lookup(r)
		require.True(t, ok)

		got, err := k.ResolveTypeable(r)
		require.NoError(t, err, "char %q", r)
		assert.Equal(t, code&0xFF, got.Code(), "char %q", r)
		assert.Equal(t, mods, got.Modifiers(), "char %q", r)
		assert.Empty(t, got.Name())
	}
	assert.Zero(t, scanner.callCount(), "layout hits must not query the OS")
}

func TestResolveTypeableMasksLayoutCodes(t *testing.T) {
	codes := DefaultModifierCodes()
	k := newTestKeyboard(nil, nil, nil, LayoutNeo2)

	tests := []struct {
		char     rune
		wantCode int
		wantMods []int
	}{
		{'a', 65, nil},
		{'A', 321 & 0xFF, []int{codes.Mod2}},
		{'2', 2236 & 0xFF, []int{codes.Mod4}},
		{'!', 4171 & 0xFF, []int{codes.Mod3}},
		{'^', 186, []int{codes.Mod3}},
		{'.', 190, nil},
		{' ', 32, nil},
	}
	for _, tt := range tests {
		t.Run(string(tt.char), func(t *testing.T) {
			got, err := k.ResolveTypeable(tt.char)
			require.NoError(t, err)
			assert.Equal(t, tt.wantCode, got.Code())
			assert.Equal(t, tt.wantMods, got.Modifiers())
		})
	}
}

func TestResolveTypeableFallsBackToOS(t *testing.T) {
	scanner := &fakeScanner{wide: map[rune]int{'é': 0x0132}}
	k := newTestKeyboard(scanner, nil, nil, LayoutNeo2)

	got, err := k.ResolveTypeable('é')
	require.NoError(t, err)
	assert.Equal(t, 0x32, got.Code())
	assert.Equal(t, []int{k.ModifierCodes().Shift}, got.Modifiers())
	assert.Equal(t, 1, scanner.callCount())
}

func TestResolveTypeableUnresolved(t *testing.T) {
	scanner := &fakeScanner{}
	k := newTestKeyboard(scanner, nil, nil, LayoutNeo2)

	_, err := k.ResolveTypeable('€')
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnresolvedCharacter))

	var unresolved *UnresolvedCharacterError
	require.ErrorAs(t, err, &unresolved)
	assert.Equal(t, '€', unresolved.Char)
	assert.Equal(t, 1, scanner.callCount())
}

func TestResolveTypeableWithoutLayoutAlwaysQueriesOS(t *testing.T) {
	scanner := &fakeScanner{wide: map[rune]int{'A': 0x0141}}
	k := newTestKeyboard(scanner, nil, nil, LayoutNone)
	require.Nil(t, k.Layout())

	got, err := k.ResolveTypeable('A')
	require.NoError(t, err)
	assert.Equal(t, 0x41, got.Code())
	assert.Equal(t, []int{k.ModifierCodes().Shift}, got.Modifiers())
	assert.Equal(t, 1, scanner.callCount())
}

func TestKeycodeAndModifiersPriority(t *testing.T) {
	codes := DefaultModifierCodes()
	tests := []struct {
		name     string
		packed   int
		wantCode int
		wantMods []int
	}{
		{"plain", 0x0041, 0x41, nil},
		{"shift", 0x0141, 0x41, []int{codes.Shift}},
		{"ctrl", 0x0241, 0x41, []int{codes.Ctrl}},
		{"alt", 0x0441, 0x41, []int{codes.Alt}},
		{"shift wins over ctrl and alt", 0x0741, 0x41, []int{codes.Shift}},
		{"ctrl wins over alt", 0x0641, 0x41, []int{codes.Ctrl}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scanner := &fakeScanner{wide: map[rune]int{'x': tt.packed}}
			k := newTestKeyboard(scanner, nil, nil, LayoutNone)

			code, mods, err := k.KeycodeAndModifiers('x')
			require.NoError(t, err)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantMods, mods)
		})
	}
}

func TestKeycodeAndModifiersNarrowUsesNarrowQuery(t *testing.T) {
	scanner := &fakeScanner{
		wide:   map[rune]int{'q': 0x0051},
		narrow: map[byte]int{'q': 0x0251},
	}
	k := newTestKeyboard(scanner, nil, nil, LayoutNone)

	code, mods, err := k.KeycodeAndModifiersNarrow('q')
	require.NoError(t, err)
	assert.Equal(t, 0x51, code)
	assert.Equal(t, []int{k.ModifierCodes().Ctrl}, mods)

	_, _, err = k.KeycodeAndModifiersNarrow('z')
	assert.ErrorIs(t, err, ErrUnresolvedCharacter)
}

func TestResolveTypeableNarrowPrefersLayout(t *testing.T) {
	scanner := &fakeScanner{narrow: map[byte]int{'~': 0x01C0}}
	k := newTestKeyboard(scanner, nil, nil, LayoutNeo2)

	got, err := k.ResolveTypeableNarrow('~')
	require.NoError(t, err)
	assert.Equal(t, 4176&0xFF, got.Code())
	assert.Zero(t, scanner.callCount())

	k = newTestKeyboard(scanner, nil, nil, LayoutNone)
	got, err = k.ResolveTypeableNarrow('~')
	require.NoError(t, err)
	assert.Equal(t, 0xC0, got.Code())
	assert.Equal(t, 1, scanner.callCount())
}

func TestResolveTypeableIsIdempotent(t *testing.T) {
	scanner := &fakeScanner{wide: map[rune]int{'ß': 0x00DB}}
	injector := &recordingInjector{}
	k := newTestKeyboard(scanner, injector, nil, LayoutNeo2)

	for _, r := range []rune{'A', 'ß'} {
		first, err := k.ResolveTypeable(r)
		require.NoError(t, err)
		second, err := k.ResolveTypeable(r)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	}
	assert.Empty(t, injector.batches)
}

func TestResolveTypeableConcurrent(t *testing.T) {
	scanner := &fakeScanner{wide: map[rune]int{'ä': 0x00DE}}
	k := newTestKeyboard(scanner, nil, nil, LayoutNeo2)

	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			for _, r := range "Hello, wörld? ä" {
				if r == 'ö' {
					continue
				}
				if _, err := k.ResolveTypeable(r); err != nil {
					t.Errorf("ResolveTypeable(%q) error = %v", r, err)
				}
			}
		})
	}
	wg.Wait()
}

func TestResolveTextFallsBackForControlCharacters(t *testing.T) {
	k := newTestKeyboard(nil, nil, nil, LayoutNeo2)

	got, err := k.ResolveText("a\n\t")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 65, got[0].Code())
	assert.Equal(t, vkReturn, got[1].Code())
	assert.Equal(t, vkTab, got[2].Code())
}

func TestResolveTextReportsPosition(t *testing.T) {
	k := newTestKeyboard(nil, nil, nil, LayoutNeo2)

	_, err := k.ResolveText("ab€")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnresolvedCharacter)
	assert.Contains(t, err.Error(), "byte 2")
}
