package elector

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/git-hulk/go-quorum/redlock"
	"github.com/git-hulk/go-quorum/store/storetest"
)

type CountRunner struct {
	count atomic.Int32
}

func (r *CountRunner) RunAsLeader(_ context.Context) error {
	r.count.Inc()
	time.Sleep(50 * time.Millisecond)
	return nil
}

func (r *CountRunner) RunAsObserver(_ context.Context) error {
	time.Sleep(50 * time.Millisecond)
	return nil
}

func TestNew(t *testing.T) {
	masters, _ := storetest.NewMasters(t, 1)

	_, err := New("elector", masters, time.Second, nil)
	require.ErrorIs(t, err, ErrNilRunner)
	_, err = New("elector", masters, 100*time.Millisecond, &CountRunner{})
	require.ErrorIs(t, err, ErrSessionTimeoutTooShort)
	_, err = New("", masters, time.Second, &CountRunner{})
	require.ErrorIs(t, err, redlock.ErrEmptyKey)

	e, err := New("elector", masters, time.Minute, &CountRunner{})
	require.NoError(t, err)
	require.Equal(t, 10*time.Second, e.heartbeatInterval())
	require.Equal(t, time.Minute, e.Lock().AutoReleaseTime())
}

func TestElector(t *testing.T) {
	masters, _ := storetest.NewMasters(t, 3)
	key := "test-elector1-key"
	sessionTimeout := time.Second
	runner := &CountRunner{}

	var changes atomic.Int32
	elector1, err := New(key, masters, sessionTimeout, runner, WithLeaderChangeFn(func(bool) {
		changes.Inc()
	}))
	require.NoError(t, err)
	defer func() {
		require.NoError(t, elector1.Stop())
	}()
	require.NoError(t, elector1.Run(context.Background()))
	require.True(t, elector1.IsLeader())
	require.ErrorIs(t, elector1.Run(context.Background()), ErrAlreadyStarted)

	elector2, err := New(key, masters, sessionTimeout, runner)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, elector2.Stop())
	}()
	require.NoError(t, elector2.Run(context.Background()))
	require.False(t, elector2.IsLeader())
	require.ErrorIs(t, elector2.Resign(context.Background()), ErrNotLeader)

	t.Run("check count", func(t *testing.T) {
		time.Sleep(500 * time.Millisecond)
		require.GreaterOrEqual(t, runner.count.Load(), int32(5))
		// the leader kept its lease alive across heartbeats
		require.Positive(t, elector1.Lock().Extensions())
		require.True(t, elector1.IsLeader())
		require.False(t, elector2.IsLeader())
	})

	t.Run("resign", func(t *testing.T) {
		require.NoError(t, elector1.Resign(context.Background()))
		require.False(t, elector1.IsLeader())
		require.Eventually(t, func() bool {
			return elector2.IsLeader()
		}, sessionTimeout, 50*time.Millisecond)
	})

	t.Run("stop", func(t *testing.T) {
		require.NoError(t, elector2.Stop())
		require.False(t, elector2.IsLeader())

		// need to wait for a longer time since the elector1 may be still in resign yield period
		require.Eventually(t, func() bool {
			return elector1.IsLeader()
		}, sessionTimeout*3, 50*time.Millisecond)
		require.EqualValues(t, 3, changes.Load())
	})
}

func TestElectorLosesLeadership(t *testing.T) {
	masters, servers := storetest.NewMasters(t, 3)
	e, err := New("lost", masters, time.Second, &CountRunner{})
	require.NoError(t, err)
	defer func() {
		require.NoError(t, e.Stop())
	}()
	require.NoError(t, e.Run(context.Background()))
	require.True(t, e.IsLeader())

	// someone else took over the key on every master
	for _, srv := range servers {
		require.NoError(t, srv.Set(e.Lock().Key(), "intruder"))
	}
	require.Eventually(t, func() bool {
		return !e.IsLeader()
	}, 2*time.Second, 50*time.Millisecond)

	for _, srv := range servers {
		srv.Del(e.Lock().Key())
	}
	require.Eventually(t, func() bool {
		return e.IsLeader()
	}, 2*time.Second, 50*time.Millisecond)
}
