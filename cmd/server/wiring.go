package main

import (
	"context"
	"fmt"

	appctx "github.com/coolnight20187/python-7ty-system/internal/app"
	"github.com/coolnight20187/python-7ty-system/internal/cache"
	"github.com/coolnight20187/python-7ty-system/internal/config"
	"github.com/coolnight20187/python-7ty-system/internal/fetch"
	"github.com/coolnight20187/python-7ty-system/internal/frontend"
	"github.com/coolnight20187/python-7ty-system/internal/queue"
	"github.com/coolnight20187/python-7ty-system/internal/repository"
)

// buildApp wires the worker of the configured front-end from its on-disk state.
func buildApp(ctx context.Context, cfg *config.Config) (*appctx.App, error) {
	profile, err := frontend.Lookup(cfg.Worker.Frontend)
	if err != nil {
		return nil, err
	}

	storage, err := queue.BuildStorageFromDSN(cfg.Data.QueueDSN, profile.QueueSchema())
	if err != nil {
		return nil, fmt.Errorf("cannot init queue storage: %w", err)
	}
	q, err := queue.New(storage, profile.QueueSchema())
	if err != nil {
		return nil, fmt.Errorf("cannot init queue: %w", err)
	}

	snapshots, err := repository.NewSnapshotRepository(cfg.Data.CacheSnapshotPath)
	if err != nil {
		return nil, fmt.Errorf("cannot init cache repository: %w", err)
	}
	snap, err := snapshots.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("cannot load cache snapshot: %w", err)
	}

	fetcher, err := fetch.NewHTTPFetcher(cfg.Worker.Origin, cfg.Worker.UpstreamURL, cfg.Worker.FetchTimeout)
	if err != nil {
		return nil, fmt.Errorf("cannot init fetcher: %w", err)
	}

	a, err := appctx.New(cfg, profile, q, cache.NewStore(*snap), snapshots, fetcher)
	if err != nil {
		return nil, fmt.Errorf("cannot init app: %w", err)
	}
	if cfg.Worker.ManifestPath != "" {
		m, err := repository.NewManifestRepository(cfg.Worker.ManifestPath)
		if err != nil {
			a.Shutdown()
			return nil, fmt.Errorf("cannot init manifest: %w", err)
		}
		a.Manifest = m
	}
	return a, nil
}
