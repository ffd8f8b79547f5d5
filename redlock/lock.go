// Package redlock implements the Redlock distributed lock on top of a set of
// independent masters.
//
// A lock is held when a majority of masters store this lock's token under
// its key. Every acquisition writes a fresh token, extend and release only
// touch masters still holding it, so a holder whose lease already expired can
// never affect the lease of whoever acquired the lock after it.
package redlock

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/atomic"

	"github.com/git-hulk/go-quorum/internal"
	"github.com/git-hulk/go-quorum/internal/metrics"
	"github.com/git-hulk/go-quorum/internal/timer"
	"github.com/git-hulk/go-quorum/quorum"
	"github.com/git-hulk/go-quorum/store"
)

const (
	keyPrefix = "redlock:"

	clockDriftFactor = 0.01
	clockDriftFloor  = 2 * time.Millisecond
)

// Lock is a lease on a key held by a majority of masters.
//
// A Lock is not safe for overlapping Acquire, Extend and Release calls from
// several goroutines, use one Lock per holder.
type Lock struct {
	key      string
	executor *quorum.Executor

	autoReleaseTime time.Duration
	numExtensions   int
	retryDelay      time.Duration
	raiseOnErrors   bool
	clock           clockwork.Clock
	executorOpts    []quorum.Option

	token      atomic.String
	extensions atomic.Int64
}

func New(key string, masters []store.Master, opts ...Option) (*Lock, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	l := &Lock{
		key:             keyPrefix + key,
		autoReleaseTime: DefaultAutoReleaseTime,
		numExtensions:   DefaultNumExtensions,
		retryDelay:      DefaultRetryDelay,
		clock:           clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(l)
	}
	switch {
	case l.autoReleaseTime <= 0:
		return nil, ErrInvalidAutoReleaseTime
	case l.retryDelay <= 0:
		return nil, ErrInvalidRetryDelay
	case l.numExtensions < 0:
		return nil, ErrInvalidNumExtensions
	}

	executor, err := quorum.NewExecutor(masters, l.executorOpts...)
	if err != nil {
		return nil, err
	}
	l.executor = executor
	return l, nil
}

// Key returns the key stored on the masters.
func (l *Lock) Key() string {
	return l.key
}

// Token returns the token of the current acquisition, empty if none.
func (l *Lock) Token() string {
	return l.token.Load()
}

func (l *Lock) AutoReleaseTime() time.Duration {
	return l.autoReleaseTime
}

// Extensions returns how many times the current lease was extended.
func (l *Lock) Extensions() int {
	return int(l.extensions.Load())
}

func (l *Lock) String() string {
	return fmt.Sprintf("<redlock key=%s masters=%v>", l.key, l.executor.Names())
}

// drift is subtracted from every validity computation to absorb clock skew
// between the client and the masters.
func (l *Lock) drift() time.Duration {
	return time.Duration(float64(l.autoReleaseTime)*clockDriftFactor) + clockDriftFloor
}

// Prepare loads the lock scripts on the masters. It is optional, scripts are
// sent on first use otherwise.
func (l *Lock) Prepare(ctx context.Context) error {
	tally, err := quorum.Collect(ctx, l.executor, "prepare", func(ctx context.Context, m store.Master) (bool, error) {
		return true, m.Load(ctx, scripts()...)
	}, isTrue)
	if err != nil {
		return err
	}
	if !tally.Achieved() {
		return l.executor.Fail(quorum.ErrQuorumNotAchieved, l.key, tally.Errs)
	}
	return nil
}

// Acquire takes the lock. By default it blocks, retrying after a random
// pause of at most the retry delay, until it succeeds, ctx ends or the
// timeout given with WithTimeout elapses. A non-blocking call makes a
// single attempt and must not be given a timeout.
func (l *Lock) Acquire(ctx context.Context, opts ...AcquireOption) (bool, error) {
	o := acquireOptions{blocking: true}
	for _, opt := range opts {
		opt(&o)
	}

	if !o.blocking {
		if o.hasTimeout {
			return false, ErrTimeoutWithoutBlocking
		}
		return l.acquireMasters(ctx)
	}
	if o.hasTimeout && o.timeout <= 0 {
		return l.acquireMasters(ctx)
	}

	b := l.retryBackOff(o.timeout)
	for attempt := 1; ; attempt++ {
		acquired, err := l.acquireMasters(ctx)
		if acquired || err != nil {
			if acquired && attempt > 1 {
				internal.GetLogger().Printf("Acquired lock[%s] after %d attempts", l.key, attempt)
			}
			return acquired, err
		}

		delay := b.NextBackOff()
		if delay == backoff.Stop {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-l.clock.After(delay):
		}
	}
}

// TryAcquire makes a single attempt to take the lock.
func (l *Lock) TryAcquire(ctx context.Context) (bool, error) {
	return l.Acquire(ctx, WithBlocking(false))
}

// retryBackOff spreads the pauses uniformly over [0, retryDelay]: with a
// multiplier of 1 the interval never grows and a randomization factor of 1
// draws from [0, 2*interval].
func (l *Lock) retryBackOff(timeout time.Duration) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = l.retryDelay / 2
	b.MaxInterval = l.retryDelay / 2
	b.Multiplier = 1
	b.RandomizationFactor = 1
	b.MaxElapsedTime = timeout
	b.Clock = l.clock
	b.Reset()
	return b
}

func (l *Lock) acquireMasters(ctx context.Context) (bool, error) {
	token := uuid.NewString()
	l.token.Store(token)
	l.extensions.Store(0)

	t := timer.Start(l.clock)
	tally, err := quorum.Collect(ctx, l.executor, "acquire", func(ctx context.Context, m store.Master) (bool, error) {
		return m.SetNX(ctx, l.key, token, l.autoReleaseTime)
	}, isTrue)
	if err == nil && tally.Achieved() {
		elapsed, _ := t.Elapsed()
		if l.autoReleaseTime-elapsed-l.drift() > 0 {
			metrics.LockAcquireTotal.WithLabelValues(metrics.Status(true)).Inc()
			return true, nil
		}
		internal.GetLogger().Printf("Lock[%s] reached quorum too late, elapsed: %v", l.key, elapsed)
	}
	metrics.LockAcquireTotal.WithLabelValues(metrics.Status(false)).Inc()

	// Best effort, whatever was taken expires on its own anyway.
	l.token.Store("")
	_, _ = l.releaseMasters(context.WithoutCancel(ctx), "cleanup", token)

	if err != nil {
		return false, err
	}
	if l.raiseOnErrors && l.executor.Impossible(tally.Errs) {
		return false, l.executor.Fail(quorum.ErrQuorumNotAchieved, l.key, tally.Errs)
	}
	return false, nil
}

// Locked returns the remaining validity of the lease if a majority of masters
// still hold this lock's token, zero otherwise.
//
// Replies are sorted from the longest ttl down and the one at the quorum
// position is used, so a minority reporting a stale long ttl cannot inflate
// the result. Masters holding another token reply 0 and take part in the sort.
func (l *Lock) Locked(ctx context.Context) (time.Duration, error) {
	token := l.token.Load()
	if token == "" {
		return 0, nil
	}

	tally, err := quorum.Collect(ctx, l.executor, "locked", func(ctx context.Context, m store.Master) (time.Duration, error) {
		reply, err := m.Eval(ctx, acquiredScript, []string{l.key}, token)
		if err != nil {
			return 0, err
		}
		ms, err := store.Int64(reply)
		return time.Duration(ms) * time.Millisecond, err
	}, func(ttl time.Duration) bool {
		return ttl > 0
	})
	if err != nil {
		return 0, err
	}
	if tally.Achieved() {
		ttls := append([]time.Duration{}, tally.Values...)
		sort.Slice(ttls, func(i, j int) bool { return ttls[i] > ttls[j] })
		if validity := ttls[l.executor.Quorum()-1] - l.drift(); validity > 0 {
			return validity, nil
		}
		return 0, nil
	}
	if l.raiseOnErrors && l.executor.Impossible(tally.Errs) {
		return 0, l.executor.Fail(quorum.ErrQuorumNotAchieved, l.key, tally.Errs)
	}
	return 0, nil
}

// Extend resets the lease to the full auto release time on the masters still
// holding this lock's token. It fails with ErrTooManyExtensions once
// the extension budget is spent, and with ErrExtendUnlockedLock if a
// majority no longer holds the token.
func (l *Lock) Extend(ctx context.Context) error {
	if l.extensions.Load() >= int64(l.numExtensions) {
		metrics.LockExtendTotal.WithLabelValues(metrics.Status(false)).Inc()
		return l.executor.Fail(ErrTooManyExtensions, l.key, nil)
	}
	token := l.token.Load()
	if token == "" {
		metrics.LockExtendTotal.WithLabelValues(metrics.Status(false)).Inc()
		return l.executor.Fail(ErrExtendUnlockedLock, l.key, nil)
	}

	tally, err := quorum.Collect(ctx, l.executor, "extend", func(ctx context.Context, m store.Master) (bool, error) {
		reply, err := m.Eval(ctx, extendScript, []string{l.key}, token, l.autoReleaseTime.Milliseconds())
		if err != nil {
			return false, err
		}
		n, err := store.Int64(reply)
		return n == 1, err
	}, isTrue)
	if err != nil {
		return err
	}
	metrics.LockExtendTotal.WithLabelValues(metrics.Status(tally.Achieved())).Inc()
	if !tally.Achieved() {
		return l.executor.Fail(ErrExtendUnlockedLock, l.key, tally.Errs)
	}
	l.extensions.Inc()
	return nil
}

// Release deletes the key on the masters holding this lock's token. The local
// token is dropped whatever the outcome, so the next Acquire starts clean.
func (l *Lock) Release(ctx context.Context) error {
	token := l.token.Load()
	l.token.Store("")
	l.extensions.Store(0)
	if token == "" {
		metrics.LockReleaseTotal.WithLabelValues(metrics.Status(false)).Inc()
		return l.executor.Fail(ErrReleaseUnlockedLock, l.key, nil)
	}

	tally, err := l.releaseMasters(ctx, "release", token)
	if err != nil {
		return err
	}
	metrics.LockReleaseTotal.WithLabelValues(metrics.Status(tally.Achieved())).Inc()
	if !tally.Achieved() {
		return l.executor.Fail(ErrReleaseUnlockedLock, l.key, tally.Errs)
	}
	return nil
}

func (l *Lock) releaseMasters(ctx context.Context, op, token string) (*quorum.Tally[bool], error) {
	return quorum.Collect(ctx, l.executor, op, func(ctx context.Context, m store.Master) (bool, error) {
		reply, err := m.Eval(ctx, releaseScript, []string{l.key}, token)
		if err != nil {
			return false, err
		}
		n, err := store.Int64(reply)
		return n == 1, err
	}, isTrue)
}

func isTrue(ok bool) bool {
	return ok
}
