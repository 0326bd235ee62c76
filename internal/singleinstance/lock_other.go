//go:build !windows

package singleinstance

// Lock is a no-op outside Windows.
type Lock struct{}

// TryLock always succeeds outside Windows.
func TryLock(_ string) (*Lock, error) { return &Lock{}, nil }

// Release is a no-op outside Windows.
func (l *Lock) Release() error { return nil }
