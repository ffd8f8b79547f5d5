package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/git-hulk/go-quorum/config"
	"github.com/git-hulk/go-quorum/internal"
	"github.com/git-hulk/go-quorum/store"
)

// app is the state shared by every command, set up before the command runs.
type app struct {
	cfg     *config.Config
	masters []store.Master
	logger  *zap.Logger
	metrics *http.Server
}

func newRootCommand() (*cobra.Command, *app) {
	a := &app{}
	var metricsAddr string

	root := &cobra.Command{
		Use:           "quorumctl",
		Short:         "Distributed locks and ids on independent redis masters",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd, metricsAddr)
		},
	}
	config.BindFlags(root.PersistentFlags())
	root.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address while running")

	root.AddCommand(
		newLockCommand(a),
		newNextIDCommand(a),
		newResetCommand(a),
		newElectCommand(a),
	)
	return root, a
}

// execute runs the command and tears down what setup built, whether the
// command failed or not.
func execute(ctx context.Context, root *cobra.Command, a *app) error {
	err := root.ExecuteContext(ctx)
	return multierr.Append(err, a.teardown())
}

func (a *app) setup(cmd *cobra.Command, metricsAddr string) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}
	a.cfg = cfg

	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	zc := zap.NewProductionConfig()
	zc.Level = level
	if a.logger, err = zc.Build(); err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	internal.SetLogger(internal.NewZapLogger(a.logger))

	if a.masters, err = cfg.Dial(); err != nil {
		return err
	}
	a.logger.Debug("dialed masters", zap.Strings("masters", store.Names(a.masters)))

	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		a.metrics = &http.Server{Addr: metricsAddr, Handler: mux}
		go func() {
			if err := a.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("metrics server failed", zap.Error(err))
			}
		}()
	}
	return nil
}

func (a *app) teardown() error {
	var err error
	if a.metrics != nil {
		err = multierr.Append(err, a.metrics.Close())
	}
	err = multierr.Append(err, config.Close(a.masters))
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	return err
}
