package timer

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func TestTimer(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tm := New(clock)

	_, err := tm.Elapsed()
	require.ErrorIs(t, err, ErrNotStarted)
	require.ErrorIs(t, tm.Stop(), ErrNotStarted)

	require.NoError(t, tm.Start())
	require.ErrorIs(t, tm.Start(), ErrAlreadyStarted)

	clock.Advance(10 * time.Millisecond)
	first, err := tm.Elapsed()
	require.NoError(t, err)
	require.Equal(t, 10*time.Millisecond, first)

	clock.Advance(5 * time.Millisecond)
	second, err := tm.Elapsed()
	require.NoError(t, err)
	require.Greater(t, second, first)

	require.NoError(t, tm.Stop())
	require.ErrorIs(t, tm.Stop(), ErrAlreadyStopped)
	require.ErrorIs(t, tm.Start(), ErrAlreadyStarted)

	clock.Advance(time.Second)
	frozen, err := tm.Elapsed()
	require.NoError(t, err)
	require.Equal(t, 15*time.Millisecond, frozen)
}

func TestTimerRealClock(t *testing.T) {
	tm := Start(nil)
	prev, err := tm.Elapsed()
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		time.Sleep(time.Millisecond)
		cur, err := tm.Elapsed()
		require.NoError(t, err)
		require.GreaterOrEqual(t, cur, prev)
		prev = cur
	}
}
