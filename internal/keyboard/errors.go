package keyboard

import (
	"errors"
	"fmt"
)

var (
	// ErrUnresolvedCharacter matches UnresolvedCharacterError values.
	ErrUnresolvedCharacter = errors.New("character has no key mapping")
	// ErrInjectionFailure matches InjectionError values.
	ErrInjectionFailure = errors.New("key injection failed")
	// ErrUnsupportedPlatform is returned by NewSystem where no OS backend exists.
	ErrUnsupportedPlatform = errors.New("key injection is only supported on Windows")
)

// UnresolvedCharacterError reports a character that neither the alternate
// layout nor the active OS layout can produce.
type UnresolvedCharacterError struct {
	Char rune
}

func (e *UnresolvedCharacterError) Error() string {
	return fmt.Sprintf("unknown char: %q", e.Char)
}

func (e *UnresolvedCharacterError) Is(target error) bool {
	return target == ErrUnresolvedCharacter
}

// InjectionError reports a batch the injector refused. Batches before it
// were already delivered and are not rolled back.
type InjectionError struct {
	Batch int
	Err   error
}

func (e *InjectionError) Error() string {
	return fmt.Sprintf("inject batch %d: %v", e.Batch, e.Err)
}

func (e *InjectionError) Is(target error) bool {
	return target == ErrInjectionFailure
}

func (e *InjectionError) Unwrap() error { return e.Err }
