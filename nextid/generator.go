// Package nextid hands out strictly increasing ids from a counter kept on a
// set of independent masters.
//
// An id is returned only after a majority of masters accepted it, and a
// master only accepts ids greater than the one it stores. Any two majorities
// overlap, so an id can never be returned twice and every id is greater than
// all ids returned before it. Ids may be skipped under contention.
package nextid

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strconv"

	"github.com/git-hulk/go-quorum/internal"
	"github.com/git-hulk/go-quorum/internal/metrics"
	"github.com/git-hulk/go-quorum/quorum"
	"github.com/git-hulk/go-quorum/store"
)

const (
	keyPrefix = "nextid:"

	DefaultNumTries = 3
)

type Option func(g *Generator)

// WithNumTries sets how many read-compute-write cycles Next runs before
// giving up with quorum.ErrQuorumNotAchieved.
func WithNumTries(n int) Option {
	return func(g *Generator) {
		g.numTries = n
	}
}

func WithExecutorOptions(opts ...quorum.Option) Option {
	return func(g *Generator) {
		g.executorOpts = append(g.executorOpts, opts...)
	}
}

// Generator is safe for concurrent use, and so are several generators
// sharing a key.
type Generator struct {
	key      string
	executor *quorum.Executor

	numTries     int
	executorOpts []quorum.Option
}

// New creates a generator and initializes the counter to 0 on every master
// that does not have it yet. The initialization is not waited for.
func New(ctx context.Context, key string, masters []store.Master, opts ...Option) (*Generator, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	g := &Generator{
		key:      keyPrefix + key,
		numTries: DefaultNumTries,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.numTries <= 0 {
		return nil, ErrInvalidNumTries
	}

	executor, err := quorum.NewExecutor(masters, g.executorOpts...)
	if err != nil {
		return nil, err
	}
	g.executor = executor
	g.initialize(ctx)
	return g, nil
}

func (g *Generator) initialize(ctx context.Context) {
	replies := quorum.Dispatch(ctx, g.executor, func(ctx context.Context, m store.Master) (bool, error) {
		return m.SetNX(ctx, g.key, "0", 0)
	})
	go func() {
		for range g.executor.Masters() {
			if reply := <-replies; reply.Err != nil {
				internal.GetLogger().Printf("Failed to init id generator[%s] on master[%s], err: %v",
					g.key, reply.Master.Name(), reply.Err)
			}
		}
	}()
}

// Key returns the key stored on the masters.
func (g *Generator) Key() string {
	return g.key
}

func (g *Generator) String() string {
	return fmt.Sprintf("<nextid key=%s masters=%v>", g.key, g.executor.Names())
}

// Next returns an id greater than every id returned before it by any
// generator on the same key and masters. A cycle whose read or write misses
// the majority is retried, up to the number of tries.
func (g *Generator) Next(ctx context.Context) (int64, error) {
	var errs []error
	for try := 0; try < g.numTries; try++ {
		if try > 0 {
			metrics.NextIDRetriesTotal.Inc()
		}
		current, err := g.Current(ctx)
		if err != nil {
			var qerr *quorum.Error
			if !errors.As(err, &qerr) {
				return 0, err
			}
			errs = qerr.Errors()
			continue
		}

		next := current + 1
		tally, err := quorum.Collect(ctx, g.executor, "next_write", func(ctx context.Context, m store.Master) (int64, error) {
			reply, err := m.Eval(ctx, setIDScript, []string{g.key}, next)
			if err != nil {
				return 0, err
			}
			return store.Int64(reply)
		}, func(written int64) bool {
			return written == next
		})
		if err != nil {
			return 0, err
		}
		if tally.Achieved() {
			metrics.NextIDTotal.Inc()
			return next, nil
		}
		errs = tally.Errs
	}
	return 0, g.executor.Fail(quorum.ErrQuorumNotAchieved, g.key, errs)
}

// Current returns the highest counter seen on a majority of masters. Absent
// counters read as 0.
func (g *Generator) Current(ctx context.Context) (int64, error) {
	tally, err := quorum.Collect(ctx, g.executor, "next_read", func(ctx context.Context, m store.Master) (int64, error) {
		value, err := m.Get(ctx, g.key)
		if errors.Is(err, store.ErrKeyNotFound) {
			return 0, nil
		}
		if err != nil {
			return 0, err
		}
		id, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidCounter, value)
		}
		return id, nil
	}, func(int64) bool {
		return true
	})
	if err != nil {
		return 0, err
	}
	if !tally.Achieved() {
		return 0, g.executor.Fail(quorum.ErrQuorumNotAchieved, g.key, tally.Errs)
	}
	var current int64
	for _, id := range tally.Values {
		current = max(current, id)
	}
	return current, nil
}

// All yields ids from Next until the consumer stops or Next fails. The
// failing call is yielded with its error and ends the sequence.
func (g *Generator) All(ctx context.Context) iter.Seq2[int64, error] {
	return func(yield func(int64, error) bool) {
		for {
			id, err := g.Next(ctx)
			if !yield(id, err) || err != nil {
				return
			}
		}
	}
}

// Reset deletes the counter, so the next id is 1 again. Ids handed out
// before the reset will be handed out again.
func (g *Generator) Reset(ctx context.Context) error {
	tally, err := quorum.Collect(ctx, g.executor, "reset", func(ctx context.Context, m store.Master) (int64, error) {
		return m.Del(ctx, g.key)
	}, func(int64) bool {
		return true
	})
	if err != nil {
		return err
	}
	if !tally.Achieved() {
		return g.executor.Fail(quorum.ErrQuorumNotAchieved, g.key, tally.Errs)
	}
	return nil
}
