package discovery

import (
	"context"
	"log/slog"
	"time"

	"archwatch/internal/config"
	"archwatch/internal/domain"
	"archwatch/internal/logging"
	"archwatch/internal/ports"
	"archwatch/internal/scanner"
)

// Service fans one fetch request out to the configured sources, picking
// each source's scanner strategy from the registry. Sources run
// sequentially; one broken source never takes down the others.
type Service struct {
	sources  []config.SourceConfig
	registry *scanner.Registry
	store    ports.SeenStore
	logger   *slog.Logger
	now      func() time.Time
}

var _ ports.ArticleSource = (*Service)(nil)

// NewService wires the fan-out.
func NewService(sources []config.SourceConfig, registry *scanner.Registry, store ports.SeenStore, logger *slog.Logger) *Service {
	return &Service{
		sources:  sources,
		registry: registry,
		store:    store,
		logger:   logging.Component(logger, "sources"),
		now:      time.Now,
	}
}

// Fetch runs every requested source. An empty sourceIDs slice means all
// configured sources. Feed-based results are diffed against the seen
// store here; the discovery scanners diff internally. Per-source run
// counters come back alongside the articles, a failing source included.
func (s *Service) Fetch(ctx context.Context, sourceIDs []string, lookback time.Duration) ([]domain.ArticleRecord, []domain.RunStats, error) {
	requested := make(map[string]bool, len(sourceIDs))
	for _, id := range sourceIDs {
		requested[id] = true
	}

	var all []domain.ArticleRecord
	var reports []domain.RunStats
	for _, src := range s.sources {
		if len(requested) > 0 && !requested[src.ID] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return all, reports, err
		}

		articles, stats, err := s.fetchSource(ctx, src, lookback)
		if err != nil {
			s.logger.Error("source failed", "source", src.ID, "error", err)
			stats.Errors++
		}
		reports = append(reports, stats)
		all = append(all, articles...)
	}
	return all, reports, nil
}

func (s *Service) fetchSource(ctx context.Context, src config.SourceConfig, lookback time.Duration) ([]domain.ArticleRecord, domain.RunStats, error) {
	strategy, err := s.registry.Resolve(src.Scanner)
	if err != nil {
		return nil, domain.RunStats{SourceID: src.ID}, err
	}

	articles, stats, err := strategy.Scan(ctx, scanner.Request{
		Source:   src,
		Lookback: lookback,
		Now:      s.now(),
	})
	if err != nil {
		return nil, stats, err
	}

	if src.Scanner != "rss" {
		// Discovery scanners already diffed against the store.
		return articles, stats, nil
	}

	fresh, err := s.filterSeen(ctx, src.ID, articles)
	if err != nil {
		return nil, stats, err
	}
	stats.New = len(fresh)
	stats.Emitted = len(fresh)
	return fresh, stats, nil
}

// filterSeen drops feed entries whose GUID is already tracked. Marking
// happens downstream, after the article survives the whole pipeline.
func (s *Service) filterSeen(ctx context.Context, sourceID string, articles []domain.ArticleRecord) ([]domain.ArticleRecord, error) {
	if len(articles) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(articles))
	for _, a := range articles {
		ids = append(ids, a.GUID)
	}
	fresh, err := s.store.FilterNew(ctx, sourceID, ids)
	if err != nil {
		return nil, err
	}

	keep := make(map[string]bool, len(fresh))
	for _, id := range fresh {
		keep[id] = true
	}

	out := articles[:0]
	for _, a := range articles {
		if keep[a.GUID] {
			out = append(out, a)
		}
	}
	s.logger.Info("feed diffed", "source", sourceID, "fetched", len(articles), "new", len(out))
	return out, nil
}
