package keyboard

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"
)

type chordModifier int

const (
	chordCtrl chordModifier = iota
	chordShift
	chordAlt
	chordWin
)

var chordModifierByName = map[string]chordModifier{
	"CTRL":    chordCtrl,
	"CONTROL": chordCtrl,
	"SHIFT":   chordShift,
	"ALT":     chordAlt,
	"WIN":     chordWin,
	"SUPER":   chordWin,
}

var chordModifierLabel = map[chordModifier]string{
	chordCtrl:  "Ctrl",
	chordShift: "Shift",
	chordAlt:   "Alt",
	chordWin:   "Win",
}

// namedKeys maps key names to virtual-key codes. Aliases share a code but
// normalize to the first spelling listed in canonicalKeyName.
var namedKeys = map[string]int{
	"ENTER":       vkReturn,
	"RETURN":      vkReturn,
	"TAB":         vkTab,
	"SPACE":       vkSpace,
	"ESC":         vkEscape,
	"ESCAPE":      vkEscape,
	"BACKSPACE":   vkBack,
	"DELETE":      vkDelete,
	"DEL":         vkDelete,
	"INSERT":      vkInsert,
	"INS":         vkInsert,
	"HOME":        vkHome,
	"END":         vkEnd,
	"PGUP":        vkPrior,
	"PAGEUP":      vkPrior,
	"PGDOWN":      vkNext,
	"PAGEDOWN":    vkNext,
	"LEFT":        vkLeft,
	"RIGHT":       vkRight,
	"UP":          vkUp,
	"DOWN":        vkDown,
	"CAPSLOCK":    vkCapital,
	"PAUSE":       vkPause,
	"PRINTSCREEN": vkSnapshot,
	"APPS":        vkApps,
}

var canonicalKeyName = map[string]string{
	"RETURN":   "ENTER",
	"ESCAPE":   "ESC",
	"DEL":      "DELETE",
	"INS":      "INSERT",
	"PAGEUP":   "PGUP",
	"PAGEDOWN": "PGDOWN",
}

// ParseChord parses a key spec such as "Ctrl+Shift+F12", "alt+tab" or
// "ctrl+a" into a named Typeable. Explicit modifiers are pressed in the
// order written, followed by any modifier the key itself needs. A single
// character key is resolved with ResolveTypeable.
func (k *Keyboard) ParseChord(spec string) (Typeable, error) {
	raw := strings.TrimSpace(spec)
	if raw == "" {
		return Typeable{}, fmt.Errorf("key spec is empty")
	}

	// The last character is never a separator so "ctrl++" names the plus key.
	keyToken := raw
	var modTokens []string
	if i := strings.LastIndex(raw[:len(raw)-1], "+"); i >= 0 {
		modTokens = strings.Split(raw[:i], "+")
		keyToken = raw[i+1:]
	}

	var modifiers []int
	var labels []string
	seen := map[chordModifier]struct{}{}
	for _, token := range modTokens {
		mod, ok := chordModifierByName[strings.ToUpper(strings.TrimSpace(token))]
		if !ok {
			return Typeable{}, fmt.Errorf("unknown modifier %q in key spec %q", token, raw)
		}
		if _, dup := seen[mod]; dup {
			continue
		}
		seen[mod] = struct{}{}
		modifiers = append(modifiers, k.chordModifierCode(mod))
		labels = append(labels, chordModifierLabel[mod])
	}

	key, label, err := k.parseChordKey(keyToken)
	if err != nil {
		return Typeable{}, fmt.Errorf("%w in key spec %q", err, raw)
	}
	for _, m := range key.modifiers {
		if !slices.Contains(modifiers, m) {
			modifiers = append(modifiers, m)
		}
	}

	name := strings.Join(append(labels, label), "+")
	return NewNamedTypeable(name, key.code, modifiers), nil
}

func (k *Keyboard) chordModifierCode(mod chordModifier) int {
	switch mod {
	case chordShift:
		return k.codes.Shift
	case chordAlt:
		return k.codes.Alt
	case chordWin:
		return k.codes.Win
	default:
		return k.codes.Ctrl
	}
}

func (k *Keyboard) parseChordKey(raw string) (Typeable, string, error) {
	token := raw
	if utf8.RuneCountInString(raw) > 1 {
		token = strings.TrimSpace(raw)
	}
	if token == "" {
		return Typeable{}, "", fmt.Errorf("missing key token")
	}

	if utf8.RuneCountInString(token) == 1 {
		r, _ := utf8.DecodeRuneInString(token)
		t, err := k.ResolveTypeable(r)
		if err != nil {
			return Typeable{}, "", err
		}
		return t, token, nil
	}

	upper := strings.ToUpper(token)
	if code, ok := namedKeys[upper]; ok {
		if canonical, ok := canonicalKeyName[upper]; ok {
			upper = canonical
		}
		return NewTypeable(code, nil), upper, nil
	}
	if code, ok := functionKey(upper); ok {
		return NewTypeable(code, nil), upper, nil
	}

	if strings.HasPrefix(upper, "0X") {
		value, err := strconv.ParseUint(upper[2:], 16, 8)
		if err != nil {
			return Typeable{}, "", fmt.Errorf("invalid hex key %q", raw)
		}
		if value == 0 {
			return Typeable{}, "", fmt.Errorf("key code 0x00 is not a valid virtual key")
		}
		return NewTypeable(int(value), nil), upper, nil
	}

	return Typeable{}, "", fmt.Errorf("unknown key %q", raw)
}

// functionKey maps F1..F24 to VK_F1..VK_F24.
func functionKey(name string) (int, bool) {
	if len(name) < 2 || name[0] != 'F' {
		return 0, false
	}
	n, err := strconv.Atoi(name[1:])
	if err != nil || n < 1 || n > 24 {
		return 0, false
	}
	return vkF1 + n - 1, true
}
