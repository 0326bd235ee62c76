//go:build windows

package keyboard

import (
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32DLL = windows.NewLazySystemDLL("user32.dll")

	procVkKeyScanA     = user32DLL.NewProc("VkKeyScanA")
	procVkKeyScanW     = user32DLL.NewProc("VkKeyScanW")
	procMapVirtualKeyW = user32DLL.NewProc("MapVirtualKeyW")
	procSendInput      = user32DLL.NewProc("SendInput")
)

const (
	inputKeyboard = 1

	keyeventfExtendedKey = 0x0001
	keyeventfKeyUp       = 0x0002

	mapvkVKToVSC = 0
)

// extendedKeys are virtual keys whose scan code carries the E0 prefix.
var extendedKeys = map[int]struct{}{
	vkRMenu: {}, vkRControl: {}, vkInsert: {}, vkDelete: {}, vkHome: {},
	vkEnd: {}, vkPrior: {}, vkNext: {}, vkLeft: {}, vkUp: {}, vkRight: {},
	vkDown: {}, vkNumLock: {}, vkSnapshot: {}, vkDivide: {}, vkLWin: {},
	vkRWin: {}, vkApps: {},
}

// keybdInput mirrors the Win32 KEYBDINPUT struct.
type keybdInput struct {
	wVk         uint16
	wScan       uint16
	dwFlags     uint32
	time        uint32
	dwExtraInfo uintptr
}

// keyboardInput mirrors a Win32 INPUT struct holding a KEYBDINPUT. The
// trailing padding sizes the union to MOUSEINPUT, its largest member, so the
// layout matches sizeof(INPUT) on both 32-bit and 64-bit Windows.
type keyboardInput struct {
	inputType uint32
	ki        keybdInput
	_         [8]byte
}

// SystemScanner queries user32 VkKeyScanA/VkKeyScanW.
type SystemScanner struct{}

// ScanWide calls VkKeyScanW.
func (SystemScanner) ScanWide(r rune) int {
	if r > 0xFFFF {
		// Outside the BMP; VkKeyScanW takes a single UTF-16 unit.
		return NoMapping
	}
	ret, _, _ := procVkKeyScanW.Call(uintptr(uint16(r)))
	return int(int16(ret))
}

// ScanNarrow calls VkKeyScanA.
func (SystemScanner) ScanNarrow(c byte) int {
	ret, _, _ := procVkKeyScanA.Call(uintptr(c))
	return int(int16(ret))
}

// SystemInjector sends transitions with user32 SendInput.
type SystemInjector struct{}

// Inject sends the whole batch in one SendInput call.
func (SystemInjector) Inject(batch []Transition) error {
	if len(batch) == 0 {
		return nil
	}
	inputs := make([]keyboardInput, len(batch))
	for i, tr := range batch {
		inputs[i] = newKeyboardInput(tr)
	}
	sent, _, callErr := procSendInput.Call(
		uintptr(len(inputs)),
		uintptr(unsafe.Pointer(&inputs[0])),
		unsafe.Sizeof(inputs[0]),
	)
	if int(sent) == len(inputs) {
		return nil
	}
	if callErr == windows.Errno(0) {
		callErr = errors.New("input blocked by another thread or UIPI")
	}
	return fmt.Errorf("SendInput inserted %d of %d events: %w", sent, len(inputs), callErr)
}

func newKeyboardInput(tr Transition) keyboardInput {
	scan, _, _ := procMapVirtualKeyW.Call(uintptr(tr.Code&codeMask), mapvkVKToVSC)
	var flags uint32
	if _, ok := extendedKeys[tr.Code]; ok {
		flags |= keyeventfExtendedKey
	}
	if !tr.Down {
		flags |= keyeventfKeyUp
	}
	return keyboardInput{
		inputType: inputKeyboard,
		ki: keybdInput{
			wVk:     uint16(tr.Code),
			wScan:   uint16(scan),
			dwFlags: flags,
		},
	}
}

// NewSystem builds a Keyboard backed by user32.
func NewSystem(opts Options) (*Keyboard, error) {
	if err := user32DLL.Load(); err != nil {
		return nil, fmt.Errorf("user32.dll is unavailable: %w", err)
	}
	opts.Scanner = SystemScanner{}
	opts.Injector = SystemInjector{}
	return New(opts)
}
