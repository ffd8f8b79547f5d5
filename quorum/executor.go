// Package quorum runs one operation against every master concurrently and
// decides by majority whether it succeeded.
//
// Masters do not talk to each other, all agreement is counted client side.
// A round stops being waited on as soon as its outcome is known, either the
// majority already confirmed or too few masters are left to reach it.
// Calls still in flight are left to finish in the background, their
// replies are dropped.
package quorum

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"

	"github.com/git-hulk/go-quorum/internal"
	"github.com/git-hulk/go-quorum/internal/metrics"
	"github.com/git-hulk/go-quorum/store"
)

const tracerName = "github.com/git-hulk/go-quorum/quorum"

// Size returns the number of masters that must agree among n.
func Size(n int) int {
	return n/2 + 1
}

// Func is the operation run against a single master.
type Func[T any] func(ctx context.Context, m store.Master) (T, error)

// Reply is the outcome of a Func on one master.
type Reply[T any] struct {
	Master store.Master
	Value  T
	Err    error
}

type Option func(e *Executor)

// WithTracerProvider sets where round spans go, the global provider by default.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Executor) {
		e.tracer = tp.Tracer(tracerName)
	}
}

// Executor fans operations out to a fixed set of masters.
type Executor struct {
	masters []store.Master
	names   []string
	quorum  int
	tracer  trace.Tracer
}

func NewExecutor(masters []store.Master, opts ...Option) (*Executor, error) {
	if len(masters) == 0 {
		return nil, ErrNoMasters
	}
	e := &Executor{
		masters: append([]store.Master{}, masters...),
		names:   store.Names(masters),
		quorum:  Size(len(masters)),
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *Executor) Masters() []store.Master {
	return e.masters
}

func (e *Executor) Names() []string {
	return e.names
}

func (e *Executor) Quorum() int {
	return e.quorum
}

// Fail builds the error reported by a primitive whose round did not reach quorum.
func (e *Executor) Fail(kind error, key string, errs []error) *Error {
	return &Error{
		Kind:    kind,
		Key:     key,
		Masters: e.names,
		Err:     multierr.Combine(errs...),
	}
}

// Impossible reports whether the errors alone rule out a majority.
func (e *Executor) Impossible(errs []error) bool {
	return len(errs) > len(e.masters)-e.quorum
}

// Dispatch runs fn once per master, each in its own goroutine, and returns
// the replies in completion order. The channel is buffered for every master,
// so nobody has to keep reading it. Calls are not cancelled with ctx.
func Dispatch[T any](ctx context.Context, e *Executor, fn Func[T]) <-chan Reply[T] {
	detached := context.WithoutCancel(ctx)
	replies := make(chan Reply[T], len(e.masters))
	for _, m := range e.masters {
		go func(m store.Master) {
			value, err := fn(detached, m)
			replies <- Reply[T]{Master: m, Value: value, Err: err}
		}(m)
	}
	return replies
}

// Tally is what a round observed up to the moment it was decided.
type Tally[T any] struct {
	// Successes counts replies accepted by the round.
	Successes int
	// Values holds every reply without error, accepted or not, in completion order.
	Values []T
	// Errs holds the per-master errors, each prefixed with the master name.
	Errs []error
	// Pending is the number of masters that had not replied when the round ended.
	Pending int
	Quorum  int
}

func (t *Tally[T]) Achieved() bool {
	return t.Successes >= t.Quorum
}

// Collect runs fn against every master and counts replies for which accept
// returns true. It returns as soon as the majority is reached or can no longer
// be reached. The error is non-nil only when ctx ended first.
func Collect[T any](ctx context.Context, e *Executor, op string, fn Func[T], accept func(T) bool) (*Tally[T], error) {
	ctx, span := e.tracer.Start(ctx, "quorum."+op, trace.WithAttributes(
		attribute.Int("quorum.masters", len(e.masters)),
		attribute.Int("quorum.size", e.quorum),
	))
	defer span.End()

	start := time.Now()
	tally := &Tally[T]{Pending: len(e.masters), Quorum: e.quorum}
	replies := Dispatch(ctx, e, fn)

	var err error
	for !tally.Achieved() && tally.Successes+tally.Pending >= e.quorum {
		select {
		case reply := <-replies:
			tally.Pending--
			if reply.Err != nil {
				tally.Errs = append(tally.Errs, fmt.Errorf("master %s: %w", reply.Master.Name(), reply.Err))
				metrics.MasterErrorsTotal.WithLabelValues(op, reply.Master.Name()).Inc()
				internal.GetLogger().Printf("Failed to %s on master[%s], err: %v", op, reply.Master.Name(), reply.Err)
				continue
			}
			tally.Values = append(tally.Values, reply.Value)
			if accept(reply.Value) {
				tally.Successes++
			}
		case <-ctx.Done():
			err = ctx.Err()
		}
		if err != nil {
			break
		}
	}

	result := metrics.ResultNotAchieved
	switch {
	case err != nil:
		result = metrics.ResultCanceled
		span.SetStatus(codes.Error, err.Error())
	case tally.Achieved():
		result = metrics.ResultAchieved
	default:
		span.SetStatus(codes.Error, ErrQuorumNotAchieved.Error())
	}
	span.SetAttributes(
		attribute.Int("quorum.successes", tally.Successes),
		attribute.Int("quorum.errors", len(tally.Errs)),
		attribute.Bool("quorum.achieved", tally.Achieved()),
	)
	metrics.QuorumRoundsTotal.WithLabelValues(op, result).Inc()
	metrics.QuorumRoundDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	return tally, err
}
