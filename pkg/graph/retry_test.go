package graph

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryPolicy(t *testing.T) {
	transient := errors.New("deadlock detected")
	fatal := errors.New("syntax error")

	newPolicy := func(sleeps *int) retryPolicy {
		return retryPolicy{
			maxRetries: 3,
			delay:      time.Second,
			retryable:  func(err error) bool { return errors.Is(err, transient) },
			sleep:      func(time.Duration) { *sleeps++ },
		}
	}

	t.Run("succeeds first try without sleeping", func(t *testing.T) {
		sleeps := 0
		p := newPolicy(&sleeps)

		calls := 0
		err := p.do(func() error {
			calls++
			return nil
		})

		require.NoError(t, err)
		assert.Equal(t, 1, calls)
		assert.Equal(t, 0, sleeps)
	})

	t.Run("retries transient errors then succeeds", func(t *testing.T) {
		sleeps := 0
		p := newPolicy(&sleeps)

		calls := 0
		err := p.do(func() error {
			calls++
			if calls < 3 {
				return transient
			}
			return nil
		})

		require.NoError(t, err)
		assert.Equal(t, 3, calls)
		assert.Equal(t, 2, sleeps)
	})

	t.Run("gives up after exactly four attempts", func(t *testing.T) {
		sleeps := 0
		p := newPolicy(&sleeps)

		calls := 0
		err := p.do(func() error {
			calls++
			return transient
		})

		require.Error(t, err)
		assert.Equal(t, 4, calls)
		assert.Equal(t, 3, sleeps)
		assert.ErrorIs(t, err, transient)
		assert.Contains(t, err.Error(), "without parallel loading")
	})

	t.Run("non-retryable error fails immediately", func(t *testing.T) {
		sleeps := 0
		p := newPolicy(&sleeps)

		calls := 0
		err := p.do(func() error {
			calls++
			return fatal
		})

		require.Error(t, err)
		assert.Equal(t, 1, calls)
		assert.Equal(t, 0, sleeps)
		assert.ErrorIs(t, err, fatal)
	})
}
