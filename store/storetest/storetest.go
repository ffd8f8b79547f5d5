// Package storetest provides masters for tests: miniredis-backed servers,
// call recorders and masters that always fail.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/git-hulk/go-quorum/store"
)

// ErrTimeout is what a Down master fails with unless told otherwise.
var ErrTimeout = errors.New("i/o timeout")

// NewMasters starts n miniredis servers and returns a master for each of them.
// Everything is closed when the test ends.
func NewMasters(t testing.TB, n int) ([]store.Master, []*miniredis.Miniredis) {
	t.Helper()

	masters := make([]store.Master, 0, n)
	servers := make([]*miniredis.Miniredis, 0, n)
	for i := 0; i < n; i++ {
		srv := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{
			Addr:         srv.Addr(),
			DialTimeout:  200 * time.Millisecond,
			ReadTimeout:  200 * time.Millisecond,
			WriteTimeout: 200 * time.Millisecond,
			MaxRetries:   -1,
		})
		t.Cleanup(func() {
			require.NoError(t, client.Close())
		})
		masters = append(masters, store.NewRedisMaster(client))
		servers = append(servers, srv)
	}
	return masters, servers
}

// FastForward advances the clock of every server, expiring keys whose ttl ran out.
func FastForward(servers []*miniredis.Miniredis, d time.Duration) {
	for _, srv := range servers {
		srv.FastForward(d)
	}
}

// Recorder forwards to Inner and counts every call except Name.
type Recorder struct {
	Inner store.Master

	calls atomic.Int64
}

func NewRecorder(inner store.Master) *Recorder {
	return &Recorder{Inner: inner}
}

func (r *Recorder) Calls() int64 {
	return r.calls.Load()
}

func (r *Recorder) Name() string {
	return r.Inner.Name()
}

func (r *Recorder) Get(ctx context.Context, key string) (string, error) {
	r.calls.Inc()
	return r.Inner.Get(ctx, key)
}

func (r *Recorder) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	r.calls.Inc()
	return r.Inner.SetNX(ctx, key, value, ttl)
}

func (r *Recorder) Del(ctx context.Context, key string) (int64, error) {
	r.calls.Inc()
	return r.Inner.Del(ctx, key)
}

func (r *Recorder) Eval(ctx context.Context, script *store.Script, keys []string, args ...interface{}) (interface{}, error) {
	r.calls.Inc()
	return r.Inner.Eval(ctx, script, keys, args...)
}

func (r *Recorder) Load(ctx context.Context, scripts ...*store.Script) error {
	r.calls.Inc()
	return r.Inner.Load(ctx, scripts...)
}

func (r *Recorder) Close() error {
	return r.Inner.Close()
}

// Down is a master that fails every call with Err after Delay.
type Down struct {
	name  string
	Err   error
	Delay time.Duration
}

func NewDown(name string) *Down {
	return &Down{name: name, Err: ErrTimeout}
}

func (d *Down) fail(ctx context.Context) error {
	if d.Delay > 0 {
		select {
		case <-time.After(d.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return d.Err
}

func (d *Down) Name() string {
	return d.name
}

func (d *Down) Get(ctx context.Context, _ string) (string, error) {
	return "", d.fail(ctx)
}

func (d *Down) SetNX(ctx context.Context, _, _ string, _ time.Duration) (bool, error) {
	return false, d.fail(ctx)
}

func (d *Down) Del(ctx context.Context, _ string) (int64, error) {
	return 0, d.fail(ctx)
}

func (d *Down) Eval(ctx context.Context, _ *store.Script, _ []string, _ ...interface{}) (interface{}, error) {
	return nil, d.fail(ctx)
}

func (d *Down) Load(ctx context.Context, _ ...*store.Script) error {
	return d.fail(ctx)
}

func (d *Down) Close() error {
	return nil
}

// WithDown returns masters followed by n Down masters.
func WithDown(masters []store.Master, n int) []store.Master {
	out := append([]store.Master{}, masters...)
	for i := 0; i < n; i++ {
		out = append(out, NewDown(fmt.Sprintf("down-%d", i)))
	}
	return out
}
