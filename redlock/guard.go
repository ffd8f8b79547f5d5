package redlock

import (
	"context"

	"go.uber.org/multierr"

	"github.com/git-hulk/go-quorum/quorum"
)

// Guard holds an acquired lock until Close.
type Guard struct {
	lock *Lock
}

// Guard acquires the lock, blocking unless told otherwise, and fails with
// quorum.ErrQuorumNotAchieved when the lock could not be taken.
func (l *Lock) Guard(ctx context.Context, opts ...AcquireOption) (*Guard, error) {
	acquired, err := l.Acquire(ctx, opts...)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, l.executor.Fail(quorum.ErrQuorumNotAchieved, l.key, nil)
	}
	return &Guard{lock: l}, nil
}

func (g *Guard) Lock() *Lock {
	return g.lock
}

// Close releases the lock. If the lease expired while guarded the release
// fails with ErrReleaseUnlockedLock.
func (g *Guard) Close() error {
	return g.lock.Release(context.Background())
}

// Do runs fn while holding the lock and releases it afterwards. The returned
// error combines the error of fn with the release error.
func (l *Lock) Do(ctx context.Context, fn func(ctx context.Context) error, opts ...AcquireOption) (err error) {
	g, err := l.Guard(ctx, opts...)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, g.Close())
	}()
	return fn(ctx)
}
