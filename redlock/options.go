package redlock

import (
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/git-hulk/go-quorum/quorum"
)

const (
	DefaultAutoReleaseTime = 10 * time.Second
	DefaultNumExtensions   = 3
	DefaultRetryDelay      = 200 * time.Millisecond
)

type Option func(l *Lock)

// WithAutoReleaseTime sets the lease duration written to every master.
func WithAutoReleaseTime(d time.Duration) Option {
	return func(l *Lock) {
		l.autoReleaseTime = d
	}
}

// WithNumExtensions sets how many times a lease may be extended before it
// has to be released and acquired again.
func WithNumExtensions(n int) Option {
	return func(l *Lock) {
		l.numExtensions = n
	}
}

// WithRetryDelay sets the upper bound of the random pause between two
// attempts of a blocking acquire.
func WithRetryDelay(d time.Duration) Option {
	return func(l *Lock) {
		l.retryDelay = d
	}
}

// WithRaiseOnErrors makes Acquire and Locked fail with quorum.ErrQuorumNotAchieved
// when master errors alone made the majority unreachable, instead of
// reporting the lock as not held.
func WithRaiseOnErrors(raise bool) Option {
	return func(l *Lock) {
		l.raiseOnErrors = raise
	}
}

func WithClock(clock clockwork.Clock) Option {
	return func(l *Lock) {
		l.clock = clock
	}
}

func WithExecutorOptions(opts ...quorum.Option) Option {
	return func(l *Lock) {
		l.executorOpts = append(l.executorOpts, opts...)
	}
}

type acquireOptions struct {
	blocking   bool
	timeout    time.Duration
	hasTimeout bool
}

type AcquireOption func(o *acquireOptions)

// WithBlocking controls whether Acquire retries until it gets the lock, true by default.
func WithBlocking(blocking bool) AcquireOption {
	return func(o *acquireOptions) {
		o.blocking = blocking
	}
}

// WithTimeout bounds the retry loop of a blocking acquire. It does not bound
// the calls to individual masters, those rely on their socket timeouts.
func WithTimeout(d time.Duration) AcquireOption {
	return func(o *acquireOptions) {
		o.timeout = d
		o.hasTimeout = true
	}
}
