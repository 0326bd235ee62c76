package keyboard

import (
	"fmt"
	"slices"
	"strings"
)

// Layout names accepted by LayoutByName.
const (
	LayoutNeo2 = "neo2"
	LayoutNone = "none"
)

// level selects which layout modifier an entry needs.
type level uint8

const (
	level1 level = iota // no modifier
	level2              // Mod2 (shift)
	level3              // Mod3
	level4              // Mod4
)

type layoutEntry struct {
	char  rune
	code  int
	level level
}

type layoutKey struct {
	code      int
	modifiers []int
}

// Layout is an immutable character table for one alternate physical
// keyboard layout. Codes above 0xFF carry layout-specific shift state in
// their upper bits; Keyboard masks them when resolving.
type Layout struct {
	name string
	keys map[rune]layoutKey
}

// neo2Entries is the static Neo2 table.
var neo2Entries = []layoutEntry{
	{' ', 32, level1},
	{'a', 65, level1}, {'b', 66, level1}, {'c', 67, level1}, {'d', 68, level1},
	{'e', 69, level1}, {'f', 70, level1}, {'g', 71, level1}, {'h', 72, level1},
	{'i', 73, level1}, {'j', 74, level1}, {'k', 75, level1}, {'l', 76, level1},
	{'m', 77, level1}, {'n', 78, level1}, {'o', 79, level1}, {'p', 80, level1},
	{'q', 81, level1}, {'r', 82, level1}, {'s', 83, level1}, {'t', 84, level1},
	{'u', 85, level1}, {'v', 86, level1}, {'w', 87, level1}, {'x', 88, level1},
	{'y', 89, level1}, {'z', 90, level1},
	{'A', 321, level2}, {'B', 322, level2}, {'C', 323, level2}, {'D', 324, level2},
	{'E', 325, level2}, {'F', 326, level2}, {'G', 327, level2}, {'H', 328, level2},
	{'I', 329, level2}, {'J', 330, level2}, {'K', 331, level2}, {'L', 332, level2},
	{'M', 333, level2}, {'N', 334, level2}, {'O', 335, level2}, {'P', 336, level2},
	{'Q', 337, level2}, {'R', 338, level2}, {'S', 339, level2}, {'T', 340, level2},
	{'U', 341, level2}, {'V', 342, level2}, {'W', 343, level2}, {'X', 344, level2},
	{'Y', 345, level2}, {'Z', 346, level2},
	{'0', 48, level1},
	{'1', 49, level1},
	{'2', 2236, level4},
	{'3', 51, level1},
	{'4', 52, level1},
	{'5', 53, level1},
	{'6', 2132, level4},
	{'7', 55, level1},
	{'8', 56, level1},
	{'9', 57, level1},
	{'!', 4171, level3},
	{'@', 4185, level3},
	{'#', 4316, level3},
	{'$', 4317, level3},
	{'%', 4173, level3},
	{'^', 186, level3},
	{'&', 4177, level3},
	{'*', 2096, level4},
	{'(', 4174, level3},
	{')', 4178, level3},
	{'-', 189, level4},
	{'_', 4182, level3},
	{'+', 2129, level4},
	{'`', 191, level3},
	{'~', 4176, level3},
	{'[', 4172, level3},
	{']', 4163, level3},
	{'{', 4161, level3},
	{'}', 4165, level3},
	{'\\', 4181, level3},
	{'|', 4318, level3},
	{':', 4164, level3},
	{';', 4170, level3},
	{'\'', 4286, level3},
	{'"', 4284, level3},
	{',', 2116, level4},
	{'.', 190, level1},
	{'/', 2105, level4},
	{'<', 4168, level3},
	{'>', 4167, level3},
	{'?', 4179, level3},
	{'=', 4166, level3},
}

// NewNeo2Layout builds the Neo2 table against the given modifier codes.
func NewNeo2Layout(codes ModifierCodes) *Layout {
	return newLayout(LayoutNeo2, neo2Entries, codes.withDefaults())
}

// LayoutByName returns the named layout, or nil for LayoutNone.
// An empty name selects Neo2.
func LayoutByName(name string, codes ModifierCodes) (*Layout, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case LayoutNeo2, "":
		return NewNeo2Layout(codes), nil
	case LayoutNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown keyboard layout %q", name)
	}
}

func newLayout(name string, entries []layoutEntry, codes ModifierCodes) *Layout {
	keys := make(map[rune]layoutKey, len(entries))
	for _, e := range entries {
		var mods []int
		switch e.level {
		case level2:
			mods = []int{codes.Mod2}
		case level3:
			mods = []int{codes.Mod3}
		case level4:
			mods = []int{codes.Mod4}
		}
		keys[e.char] = layoutKey{code: e.code, modifiers: mods}
	}
	return &Layout{name: name, keys: keys}
}

// Name returns the layout name.
func (l *Layout) Name() string {
	if l == nil {
		return LayoutNone
	}
	return l.name
}

// Lookup returns the raw table code and modifiers for r. The code is not
// masked. ok is false when r has no entry; that is not an error.
func (l *Layout) Lookup(r rune) (code int, modifiers []int, ok bool) {
	if l == nil {
		return 0, nil, false
	}
	k, ok := l.keys[r]
	if !ok {
		return 0, nil, false
	}
	return k.code, slices.Clone(k.modifiers), true
}

// Chars returns every character in the table, sorted.
func (l *Layout) Chars() []rune {
	if l == nil {
		return nil
	}
	chars := make([]rune, 0, len(l.keys))
	for r := range l.keys {
		chars = append(chars, r)
	}
	slices.Sort(chars)
	return chars
}
