package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"quickseek/internal/api"
	"quickseek/internal/logging"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Index, watch and serve searches over HTTP",
		Long: `Build the index of every volume that has none, keep all indexes current
from filesystem notifications and serve searches over HTTP.

Endpoints:
  GET  /search?q=<prefix>&limit=<n>
  POST /open   {"path": "<absolute path>"}
  GET  /healthz
  GET  /metrics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if listen != "" {
				opts.cfg.Listen = listen
			}
			return runServe(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config)")
	return cmd
}

func runServe(parent context.Context, opts *rootOptions) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(opts.cfg)
	if err != nil {
		return err
	}
	reg, maint, err := a.registry(nil)
	if err != nil {
		return err
	}
	defer func() { _ = reg.Close() }()

	log := logging.Named("serve")
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return maint.Run(ctx)
	})
	g.Go(func() error {
		return api.NewServer(a.engine(), reg).ListenAndServe(ctx, opts.cfg.Listen)
	})
	g.Go(func() error {
		if err := reg.Start(ctx); err != nil {
			return err
		}
		log.Info("all volumes ready", logging.Int("volumes", len(reg.Volumes())))
		reg.ReconcileEvery(ctx, opts.cfg.ReconcileInterval)
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
