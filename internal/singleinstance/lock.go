// Package singleinstance keeps a second keytyped from starting for the same
// user. Two daemons would both inject every request.
package singleinstance

import (
	"errors"

	"keytype/internal/userutil"
)

// ErrAlreadyRunning is returned by TryLock when another daemon holds the lock.
var ErrAlreadyRunning = errors.New("keytyped is already running for this user")

const mutexPrefix = `Global\keytype-`

// DefaultMutexName returns the mutex name for the current user. It mirrors
// the pipe name so that one lock guards one pipe.
func DefaultMutexName() string {
	return mutexNameFor(userutil.CurrentUsername())
}

func mutexNameFor(username string) string {
	return mutexPrefix + userutil.SanitizeUsername(username)
}
