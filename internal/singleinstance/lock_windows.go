//go:build windows

package singleinstance

import (
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sys/windows"
)

// Lock holds a named mutex handle. The kernel releases the mutex when the
// owning process exits, so a crashed daemon never blocks a restart.
type Lock struct {
	handle windows.Handle
}

// TryLock acquires the named mutex or returns ErrAlreadyRunning.
func TryLock(name string) (*Lock, error) {
	if name == "" {
		return nil, errors.New("mutex name is required")
	}
	nameUTF16, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return nil, fmt.Errorf("invalid mutex name %q: %w", name, err)
	}
	h, err := windows.CreateMutex(nil, true, nameUTF16)
	if errors.Is(err, windows.ERROR_ALREADY_EXISTS) {
		closeHandle(h)
		return nil, ErrAlreadyRunning
	}
	if err != nil {
		closeHandle(h)
		return nil, fmt.Errorf("CreateMutex %q: %w", name, err)
	}
	return &Lock{handle: h}, nil
}

// Release closes the mutex handle. Safe on a nil receiver and idempotent.
func (l *Lock) Release() error {
	if l == nil || l.handle == 0 {
		return nil
	}
	err := windows.CloseHandle(l.handle)
	l.handle = 0
	return err
}

func closeHandle(h windows.Handle) {
	if h == 0 {
		return
	}
	if err := windows.CloseHandle(h); err != nil {
		slog.Debug("[singleinstance] close duplicate handle failed", "error", err)
	}
}
