// Package elector runs leader election on top of a redlock lock: the leader
// is whoever holds the lock, and keeps holding it by extending the lease on
// every heartbeat.
package elector

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/atomic"

	"github.com/git-hulk/go-quorum/internal"
	"github.com/git-hulk/go-quorum/quorum"
	"github.com/git-hulk/go-quorum/redlock"
	"github.com/git-hulk/go-quorum/store"
)

const (
	maxHeartbeatInterval = 10 * time.Second
	minHeartbeatInterval = 100 * time.Millisecond

	// the heartbeat interval will be sessionTimeout / sessionCheckCount
	sessionCheckCount = 5
)

const (
	electStateNone = iota + 1
	electStateRunning
	electStateStopped
)

type Runner interface {
	RunAsLeader(ctx context.Context) error
	RunAsObserver(ctx context.Context) error
}

type LeaderChangeFn func(isLeader bool)

type Option func(e *Elector)

// WithLeaderChangeFn registers fn to be called from the heartbeat loop
// whenever leadership is gained or lost.
func WithLeaderChangeFn(fn LeaderChangeFn) Option {
	return func(e *Elector) {
		e.leaderChangedFn = fn
	}
}

func WithClock(clock clockwork.Clock) Option {
	return func(e *Elector) {
		e.clock = clock
	}
}

// WithLockOptions passes extra options to the underlying lock.
func WithLockOptions(opts ...redlock.Option) Option {
	return func(e *Elector) {
		e.lockOpts = append(e.lockOpts, opts...)
	}
}

type Elector struct {
	state  atomic.Int32
	runner Runner
	lock   *redlock.Lock
	clock  clockwork.Clock

	sessionTimeout  time.Duration
	lastResigned    atomic.Time
	leaderChangedFn LeaderChangeFn
	lockOpts        []redlock.Option

	isLeader atomic.Bool

	wg         sync.WaitGroup
	cancel     context.CancelFunc
	shutdownCh chan struct{}
}

// New is used to create an elector instance. The session timeout is the
// lease of the leader lock, a leader that stops heartbeating loses the
// leadership once it runs out.
func New(key string, masters []store.Master, sessionTimeout time.Duration, runner Runner, opts ...Option) (*Elector, error) {
	if runner == nil {
		return nil, ErrNilRunner
	}
	if sessionTimeout < sessionCheckCount*minHeartbeatInterval {
		return nil, ErrSessionTimeoutTooShort
	}
	e := &Elector{
		runner:         runner,
		clock:          clockwork.NewRealClock(),
		sessionTimeout: sessionTimeout,
		shutdownCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}

	lockOpts := append([]redlock.Option{
		redlock.WithAutoReleaseTime(sessionTimeout),
		// the leader extends for as long as it lives
		redlock.WithNumExtensions(math.MaxInt),
		redlock.WithClock(e.clock),
	}, e.lockOpts...)
	lock, err := redlock.New(key, masters, lockOpts...)
	if err != nil {
		return nil, err
	}
	e.lock = lock
	e.state.Store(electStateNone)
	return e, nil
}

// Run is used to start the elector instance and send heartbeats periodically
func (e *Elector) Run(ctx context.Context) error {
	if !e.state.CompareAndSwap(electStateNone, electStateRunning) {
		return ErrAlreadyStarted
	}

	acquired, err := e.lock.TryAcquire(ctx)
	if err != nil {
		e.state.Store(electStateNone)
		return err
	}
	e.setLeader(acquired)

	ctx, e.cancel = context.WithCancel(ctx)
	e.wg.Add(2)
	go func() {
		defer e.wg.Done()
		e.heartbeat(ctx)
	}()
	go func() {
		defer e.wg.Done()
		e.runLoop(ctx)
	}()
	return nil
}

// IsLeader is used to check if the elector is leader
func (e *Elector) IsLeader() bool {
	return e.isLeader.Load()
}

func (e *Elector) Lock() *redlock.Lock {
	return e.lock
}

func (e *Elector) heartbeatInterval() time.Duration {
	interval := e.sessionTimeout / sessionCheckCount
	if interval > maxHeartbeatInterval {
		interval = maxHeartbeatInterval
	}
	if interval < minHeartbeatInterval {
		interval = minHeartbeatInterval
	}
	return interval
}

// heartbeat extends the lease while leader and tries to take the lock otherwise.
func (e *Elector) heartbeat(ctx context.Context) {
	ticker := e.clock.NewTicker(e.heartbeatInterval())
	defer ticker.Stop()

	for {
		select {
		case <-e.shutdownCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if e.isLeader.Load() {
				err := e.lock.Extend(ctx)
				if err == nil {
					continue
				}
				internal.GetLogger().Printf("Failed to extend leader lock[%s], err: %v", e.lock.Key(), err)
				if errors.Is(err, quorum.ErrQuorumNotAchieved) {
					e.setLeader(false)
				}
				continue
			}

			// Don't try to elect leader again before elapsed timeout if it resigned recently.
			if e.clock.Since(e.lastResigned.Load()) < e.sessionTimeout {
				continue
			}
			acquired, err := e.lock.TryAcquire(ctx)
			if err != nil {
				internal.GetLogger().Printf("Failed to elect on lock[%s], err: %v", e.lock.Key(), err)
				continue
			}
			if acquired {
				e.setLeader(true)
			}
		}
	}
}

func (e *Elector) setLeader(isLeader bool) {
	if e.isLeader.Swap(isLeader) == isLeader {
		return
	}
	if isLeader {
		internal.GetLogger().Printf("Elected as leader of lock[%s]", e.lock.Key())
	} else {
		internal.GetLogger().Printf("Lost leadership of lock[%s]", e.lock.Key())
	}
	if e.leaderChangedFn != nil && e.state.Load() == electStateRunning {
		e.leaderChangedFn(isLeader)
	}
}

func (e *Elector) runLoop(ctx context.Context) {
	for {
		select {
		case <-e.shutdownCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		var err error
		if e.isLeader.Load() {
			err = e.runner.RunAsLeader(ctx)
		} else {
			err = e.runner.RunAsObserver(ctx)
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			internal.GetLogger().Printf("Runner of lock[%s] failed, err: %v", e.lock.Key(), err)
		}
	}
}

// Resign gives up the leadership, returns ErrNotLeader if not leader. The
// elector won't run for leader again within one session timeout.
func (e *Elector) Resign(ctx context.Context) error {
	if !e.isLeader.Load() {
		return ErrNotLeader
	}
	e.lastResigned.Store(e.clock.Now())
	e.setLeader(false)
	return e.lock.Release(ctx)
}

// Stop is used to stop the elector instance, the lock is released if held.
func (e *Elector) Stop() error {
	if e.state.Swap(electStateStopped) == electStateStopped {
		return nil
	}

	close(e.shutdownCh)
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()

	if e.isLeader.Swap(false) {
		return e.lock.Release(context.Background())
	}
	return nil
}
