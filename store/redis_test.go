package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/git-hulk/go-quorum/store"
)

var echoTTL = store.NewScript("echo-ttl", `
if redis.call('get', KEYS[1]) == ARGV[1] then
	return redis.call('pttl', KEYS[1])
else
	return 0
end`)

func newMaster(t *testing.T) (*store.RedisMaster, *miniredis.Miniredis) {
	srv := miniredis.RunT(t)
	m, err := store.Dial("redis://"+srv.Addr()+"/0", store.Timeouts{Read: time.Second})
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, m.Close())
	})
	return m, srv
}

func TestRedisMaster(t *testing.T) {
	ctx := context.Background()
	m, srv := newMaster(t)
	require.Equal(t, srv.Addr(), m.Name())

	_, err := m.Get(ctx, "missing")
	require.ErrorIs(t, err, store.ErrKeyNotFound)

	t.Run("lease", func(t *testing.T) {
		ok, err := m.SetNX(ctx, "lease", "token-1", 3*time.Second)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = m.SetNX(ctx, "lease", "token-2", 3*time.Second)
		require.NoError(t, err)
		require.False(t, ok)

		value, err := m.Get(ctx, "lease")
		require.NoError(t, err)
		require.Equal(t, "token-1", value)
		require.Equal(t, 3*time.Second, srv.TTL("lease"))

		srv.FastForward(4 * time.Second)
		_, err = m.Get(ctx, "lease")
		require.ErrorIs(t, err, store.ErrKeyNotFound)
	})

	t.Run("plain setnx", func(t *testing.T) {
		ok, err := m.SetNX(ctx, "counter", "0", 0)
		require.NoError(t, err)
		require.True(t, ok)
		ok, err = m.SetNX(ctx, "counter", "7", 0)
		require.NoError(t, err)
		require.False(t, ok)
		require.Zero(t, srv.TTL("counter"))

		n, err := m.Del(ctx, "counter")
		require.NoError(t, err)
		require.EqualValues(t, 1, n)
		n, err = m.Del(ctx, "counter")
		require.NoError(t, err)
		require.EqualValues(t, 0, n)
	})

	t.Run("script", func(t *testing.T) {
		require.NoError(t, m.Load(ctx, echoTTL))
		_, err := m.SetNX(ctx, "scripted", "mine", 2*time.Second)
		require.NoError(t, err)

		reply, err := m.Eval(ctx, echoTTL, []string{"scripted"}, "mine")
		require.NoError(t, err)
		ttl, err := store.Int64(reply)
		require.NoError(t, err)
		require.EqualValues(t, 2000, ttl)

		reply, err = m.Eval(ctx, echoTTL, []string{"scripted"}, "theirs")
		require.NoError(t, err)
		ttl, err = store.Int64(reply)
		require.NoError(t, err)
		require.Zero(t, ttl)
	})
}

func TestInt64(t *testing.T) {
	v, err := store.Int64(nil)
	require.NoError(t, err)
	require.Zero(t, v)

	_, err = store.Int64("3")
	require.ErrorIs(t, err, store.ErrUnexpectedReply)
}

func TestDialInvalidURL(t *testing.T) {
	_, err := store.Dial("mysql://localhost", store.Timeouts{})
	require.Error(t, err)
}

func TestNames(t *testing.T) {
	a, _ := newMaster(t)
	b, _ := newMaster(t)
	require.Equal(t, []string{a.Name(), b.Name()}, store.Names([]store.Master{a, b}))
}
