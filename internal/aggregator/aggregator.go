// Package aggregator fans fetch work out across source fetchers and collects
// their candidates into one batch.
package aggregator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/panjf2000/ants/v2"

	"NewsCollector/internal/domain"
	"NewsCollector/internal/ports"
)

// Aggregator groups enabled sources by type, hands each group to the first
// fetcher that supports it, and runs the groups concurrently on a bounded
// worker pool. A failing fetcher is logged and contributes nothing; it never
// fails the batch.
type Aggregator struct {
	sources  ports.SourceRepository
	fetchers []ports.SourceFetcher
	pool     *ants.Pool
	logger   *slog.Logger
}

var _ ports.CandidateAggregator = (*Aggregator)(nil)

// New builds the aggregator and its worker pool. Fetcher order matters: the
// first fetcher supporting a source type wins.
func New(sources ports.SourceRepository, fetchers []ports.SourceFetcher, poolSize int, logger *slog.Logger) (*Aggregator, error) {
	if poolSize <= 0 {
		poolSize = 4
	}

	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}

	return &Aggregator{
		sources:  sources,
		fetchers: fetchers,
		pool:     pool,
		logger:   logger,
	}, nil
}

// Aggregate fetches candidates from every enabled source.
func (a *Aggregator) Aggregate(ctx context.Context) ([]domain.ArticleCandidate, error) {
	enabled, err := a.sources.ListEnabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("list enabled sources: %w", err)
	}
	if len(enabled) == 0 {
		a.logger.Info("aggregate: no enabled sources")
		return nil, nil
	}

	return a.fetchAll(ctx, enabled), nil
}

// AggregateSource fetches candidates from a single source, used by the
// on-demand admin trigger.
func (a *Aggregator) AggregateSource(ctx context.Context, source domain.Source) ([]domain.ArticleCandidate, error) {
	f := a.fetcherFor(source.Type)
	if f == nil {
		return nil, fmt.Errorf("no fetcher for source type %s", source.Type)
	}

	cands, err := f.Fetch(ctx, []domain.Source{source})
	if err != nil {
		return nil, fmt.Errorf("fetch source %d: %w", source.ID, err)
	}
	return cands, nil
}

// Release shuts the worker pool down.
func (a *Aggregator) Release() {
	a.pool.Release()
}

// fetchAll submits one pool task per fetcher that has work. Results come back
// in fetcher registration order so output stays deterministic for a given
// source set.
func (a *Aggregator) fetchAll(ctx context.Context, enabled []domain.Source) []domain.ArticleCandidate {
	type batch struct {
		fetcher ports.SourceFetcher
		sources []domain.Source
	}

	var batches []batch
	for _, f := range a.fetchers {
		var mine []domain.Source
		for _, s := range enabled {
			if f.Supports(s.Type) && a.fetcherFor(s.Type) == f {
				mine = append(mine, s)
			}
		}
		if len(mine) > 0 {
			batches = append(batches, batch{fetcher: f, sources: mine})
		}
	}

	results := make([][]domain.ArticleCandidate, len(batches))
	var wg sync.WaitGroup

	for i, b := range batches {
		wg.Add(1)
		if err := a.pool.Submit(func() {
			defer wg.Done()
			cands, err := b.fetcher.Fetch(ctx, b.sources)
			if err != nil {
				a.logger.Warn("aggregate: fetcher failed", "sources", len(b.sources), "error", err)
				return
			}
			results[i] = cands
		}); err != nil {
			wg.Done()
			a.logger.Warn("aggregate: pool submit failed", "error", err)
		}
	}
	wg.Wait()

	var out []domain.ArticleCandidate
	for _, r := range results {
		out = append(out, r...)
	}

	a.logger.Info("aggregate: done", "sources", len(enabled), "fetcher_batches", len(batches), "candidates", len(out))
	return out
}

func (a *Aggregator) fetcherFor(t domain.SourceType) ports.SourceFetcher {
	for _, f := range a.fetchers {
		if f.Supports(t) {
			return f
		}
	}
	return nil
}
