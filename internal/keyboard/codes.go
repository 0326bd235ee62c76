package keyboard

// Virtual-key codes used by this package (winuser.h).
const (
	vkBack     = 0x08
	vkTab      = 0x09
	vkReturn   = 0x0D
	vkShift    = 0x10
	vkControl  = 0x11
	vkMenu     = 0x12
	vkPause    = 0x13
	vkCapital  = 0x14
	vkEscape   = 0x1B
	vkSpace    = 0x20
	vkPrior    = 0x21
	vkNext     = 0x22
	vkEnd      = 0x23
	vkHome     = 0x24
	vkLeft     = 0x25
	vkUp       = 0x26
	vkRight    = 0x27
	vkDown     = 0x28
	vkSnapshot = 0x2C
	vkInsert   = 0x2D
	vkDelete   = 0x2E
	vkLWin     = 0x5B
	vkRWin     = 0x5C
	vkApps     = 0x5D
	vkDivide   = 0x6F
	vkF1       = 0x70
	vkNumLock  = 0x90
	vkLMenu    = 0xA4
	vkRControl = 0xA3
	vkRMenu    = 0xA5
	vkOem8     = 0xDF
	vkOem102   = 0xE2
)

// ModifierCodes holds the virtual-key codes used for modifiers. Shift, Ctrl
// and Alt are reported by the OS query; Mod2, Mod3 and Mod4 are the Neo2
// layout levels used by the alternate layout table. The values are fixed for
// the lifetime of a Keyboard.
type ModifierCodes struct {
	Shift int
	Ctrl  int
	Alt   int
	Mod2  int
	Mod3  int
	Mod4  int
	Win   int
}

// DefaultModifierCodes returns the standard Windows codes.
func DefaultModifierCodes() ModifierCodes {
	return ModifierCodes{
		Shift: vkShift,
		Ctrl:  vkControl,
		Alt:   vkLMenu,
		Mod2:  vkShift,
		Mod3:  vkOem102,
		Mod4:  vkOem8,
		Win:   vkLWin,
	}
}

// withDefaults fills zero fields from DefaultModifierCodes.
func (c ModifierCodes) withDefaults() ModifierCodes {
	d := DefaultModifierCodes()
	for _, f := range []struct {
		dst *int
		def int
	}{
		{&c.Shift, d.Shift},
		{&c.Ctrl, d.Ctrl},
		{&c.Alt, d.Alt},
		{&c.Mod2, d.Mod2},
		{&c.Mod3, d.Mod3},
		{&c.Mod4, d.Mod4},
		{&c.Win, d.Win},
	} {
		if *f.dst == 0 {
			*f.dst = f.def
		}
	}
	return c
}
