package main

import (
	"fmt"

	"quickseek/internal/builder"
	"quickseek/internal/config"
	"quickseek/internal/ignore"
	"quickseek/internal/maintainer"
	"quickseek/internal/query"
	"quickseek/internal/shard"
	"quickseek/internal/volume"
)

// app holds the components shared by the commands.
type app struct {
	cfg   *config.Config
	store *shard.Store
}

func openApp(cfg *config.Config) (*app, error) {
	store, err := shard.Open(cfg.IndexDir, shard.WithCacheSize(cfg.CacheShards))
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}
	return &app{cfg: cfg, store: store}, nil
}

func (a *app) engine() *query.Engine {
	return query.New(a.store)
}

func (a *app) matcher() *ignore.Matcher {
	return ignore.New(a.cfg.Ignore,
		ignore.WithHidden(a.cfg.IgnoreHidden),
		ignore.WithPrefixes(a.store.Dir()))
}

// registry discovers the volumes and wires builder and maintainer to them.
func (a *app) registry(reporter builder.Reporter) (*volume.Registry, *maintainer.Maintainer, error) {
	volumes, err := volume.Discover(a.cfg.Volumes)
	if err != nil {
		return nil, nil, err
	}

	opts := []builder.Option{builder.WithWorkers(a.cfg.Workers)}
	if reporter != nil {
		opts = append(opts, builder.WithReporter(reporter))
	}
	b := builder.New(a.store, a.matcher(), opts...)
	m := maintainer.New(a.store, a.matcher(), maintainer.WithQueueSize(a.cfg.QueueSize))

	reg := volume.NewRegistry(volumes, a.store, b, m, volume.IgnoreOptions{
		Patterns:     a.cfg.Ignore,
		IgnoreHidden: a.cfg.IgnoreHidden,
	}, a.cfg.Workers)
	return reg, m, nil
}
