//go:build windows

package singleinstance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryLock(t *testing.T) {
	t.Run("second lock returns ErrAlreadyRunning", func(t *testing.T) {
		lock1, err := TryLock(`Local\keytype-test-second`)
		require.NoError(t, err)
		defer lock1.Release()

		lock2, err := TryLock(`Local\keytype-test-second`)
		assert.ErrorIs(t, err, ErrAlreadyRunning)
		assert.Nil(t, lock2)
	})

	t.Run("reacquirable after release", func(t *testing.T) {
		lock1, err := TryLock(`Local\keytype-test-reacquire`)
		require.NoError(t, err)
		require.NoError(t, lock1.Release())

		lock2, err := TryLock(`Local\keytype-test-reacquire`)
		require.NoError(t, err)
		defer lock2.Release()
	})

	t.Run("release idempotent", func(t *testing.T) {
		lock, err := TryLock(`Local\keytype-test-idempotent`)
		require.NoError(t, err)
		require.NoError(t, lock.Release())
		assert.NoError(t, lock.Release())
	})

	t.Run("nil lock release safe", func(t *testing.T) {
		var lock *Lock
		assert.NoError(t, lock.Release())
	})

	t.Run("empty name", func(t *testing.T) {
		lock, err := TryLock("")
		assert.Error(t, err)
		assert.Nil(t, lock)
	})
}
