package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/git-hulk/go-quorum/elector"
	"github.com/git-hulk/go-quorum/nextid"
	"github.com/git-hulk/go-quorum/redlock"
)

func newLockCommand(a *app) *cobra.Command {
	var (
		hold     time.Duration
		timeout  time.Duration
		noBlock  bool
		doExtend bool
	)
	cmd := &cobra.Command{
		Use:   "lock <key>",
		Short: "Acquire a lock, hold it for a while and release it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			lock, err := redlock.New(args[0], a.masters, a.cfg.LockOptions()...)
			if err != nil {
				return err
			}

			opts := []redlock.AcquireOption{redlock.WithBlocking(!noBlock)}
			if cmd.Flags().Changed("timeout") {
				opts = append(opts, redlock.WithTimeout(timeout))
			}
			acquired, err := lock.Acquire(ctx, opts...)
			if err != nil {
				return err
			}
			if !acquired {
				return fmt.Errorf("lock %s is held by someone else", lock.Key())
			}
			validity, err := lock.Locked(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "acquired %s token=%s validity=%v\n", lock.Key(), lock.Token(), validity)

			// Extending halfway through each lease keeps the lock for the whole hold.
			deadline := time.After(hold)
			ticker := time.NewTicker(lock.AutoReleaseTime() / 2)
			defer ticker.Stop()
		wait:
			for {
				select {
				case <-ctx.Done():
					break wait
				case <-deadline:
					break wait
				case <-ticker.C:
					if !doExtend {
						continue
					}
					if err := lock.Extend(ctx); err != nil {
						a.logger.Warn("extend failed", zap.String("key", lock.Key()), zap.Error(err))
					}
				}
			}

			if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "released %s\n", lock.Key())
			return nil
		},
	}
	cmd.Flags().DurationVar(&hold, "hold", time.Second, "how long to hold the lock")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "give up a blocking acquire after this long")
	cmd.Flags().BoolVar(&noBlock, "no-block", false, "make a single acquire attempt")
	cmd.Flags().BoolVar(&doExtend, "extend", false, "extend the lease while holding")
	return cmd
}

func newNextIDCommand(a *app) *cobra.Command {
	var (
		count   int
		workers int
	)
	cmd := &cobra.Command{
		Use:   "nextid <key>",
		Short: "Print ids from a distributed id generator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var mu sync.Mutex
			g, ctx := errgroup.WithContext(ctx)
			for i := 0; i < workers; i++ {
				gen, err := nextid.New(ctx, args[0], a.masters, a.cfg.NextIDOptions()...)
				if err != nil {
					return err
				}
				g.Go(func() error {
					n := 0
					for id, err := range gen.All(ctx) {
						if err != nil {
							return err
						}
						mu.Lock()
						fmt.Fprintln(cmd.OutOrStdout(), id)
						mu.Unlock()
						if n++; n == count {
							break
						}
					}
					return nil
				})
			}
			return g.Wait()
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 1, "ids to generate per worker")
	cmd.Flags().IntVar(&workers, "workers", 1, "generators running concurrently")
	return cmd
}

func newResetCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reset <key>",
		Short: "Reset an id generator so it starts from 1 again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gen, err := nextid.New(cmd.Context(), args[0], a.masters, a.cfg.NextIDOptions()...)
			if err != nil {
				return err
			}
			if err := gen.Reset(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reset %s\n", gen.Key())
			return nil
		},
	}
}

// logRunner only reports which role it runs in.
type logRunner struct {
	logger   *zap.Logger
	interval time.Duration
}

func (r *logRunner) RunAsLeader(ctx context.Context) error {
	r.logger.Info("running as leader")
	return r.sleep(ctx)
}

func (r *logRunner) RunAsObserver(ctx context.Context) error {
	r.logger.Debug("running as observer")
	return r.sleep(ctx)
}

func (r *logRunner) sleep(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(r.interval):
		return nil
	}
}

func newElectCommand(a *app) *cobra.Command {
	var sessionTimeout time.Duration
	cmd := &cobra.Command{
		Use:   "elect <key>",
		Short: "Take part in a leader election until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := a.logger.With(zap.String("key", args[0]))
			runner := &logRunner{logger: logger, interval: time.Second}
			e, err := elector.New(args[0], a.masters, sessionTimeout, runner,
				elector.WithLeaderChangeFn(func(isLeader bool) {
					fmt.Fprintf(cmd.OutOrStdout(), "leader=%v\n", isLeader)
				}),
				elector.WithLockOptions(redlock.WithRetryDelay(a.cfg.Lock.RetryDelay)),
			)
			if err != nil {
				return err
			}
			if err := e.Run(cmd.Context()); err != nil {
				return err
			}
			if !e.IsLeader() {
				fmt.Fprintln(cmd.OutOrStdout(), "leader=false")
			}
			<-cmd.Context().Done()
			return e.Stop()
		},
	}
	cmd.Flags().DurationVar(&sessionTimeout, "session-timeout", 3*time.Second, "lease of the leader lock")
	return cmd
}
