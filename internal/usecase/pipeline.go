package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"archwatch/internal/domain"
	"archwatch/internal/logging"
	"archwatch/internal/ports"
)

// PipelineDeps wires all driven adapters into the orchestration
// pipeline. Every adapter except Source and Store is optional; a nil
// adapter disables its stage.
type PipelineDeps struct {
	Source     ports.ArticleSource
	Store      ports.SeenStore
	Filter     ports.RelevanceFilter
	Summarizer ports.Summarizer
	Images     ports.ImageFetcher
	Candidates ports.CandidateStore
	Notifier   ports.Notifier
	Logger     *slog.Logger
}

// RunOptions tune a single pipeline run.
type RunOptions struct {
	// SourceIDs restricts the run; empty means every configured source.
	SourceIDs []string
	Lookback  time.Duration
	// Limit caps how many articles survive into the digest. 0 = no cap.
	Limit int
	// SkipFilter bypasses the AI relevance filter.
	SkipFilter bool
}

// Pipeline implements the end-to-end ingestion workflow: fetch, filter,
// summarize, download images, publish, notify. Stages after the fetch
// degrade individually: a failing stage logs and the article continues
// with what it has.
type Pipeline struct {
	source     ports.ArticleSource
	store      ports.SeenStore
	filter     ports.RelevanceFilter
	summarizer ports.Summarizer
	images     ports.ImageFetcher
	candidates ports.CandidateStore
	notifier   ports.Notifier
	logger     *slog.Logger
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	return &Pipeline{
		source:     deps.Source,
		store:      deps.Store,
		filter:     deps.Filter,
		summarizer: deps.Summarizer,
		images:     deps.Images,
		candidates: deps.Candidates,
		notifier:   deps.Notifier,
		logger:     logging.Component(deps.Logger, "pipeline"),
	}
}

// Run executes one full pass. Only a failed fetch is a run error;
// everything downstream degrades per article or per stage.
func (p *Pipeline) Run(ctx context.Context, opts RunOptions) error {
	articles, reports, err := p.source.Fetch(ctx, opts.SourceIDs, opts.Lookback)
	if err != nil {
		return fmt.Errorf("fetch articles: %w", err)
	}
	p.publishReport(ctx, reports)
	if len(articles) == 0 {
		p.logger.Info("no new articles")
		return nil
	}
	p.logger.Info("articles fetched", "count", len(articles))

	included, excluded := p.applyFilter(ctx, articles, opts.SkipFilter)
	if len(excluded) > 0 {
		// Excluded articles are remembered so the filter does not see
		// them again on the next run.
		p.markSeen(ctx, excluded)
	}

	if opts.Limit > 0 && len(included) > opts.Limit {
		p.logger.Info("capping digest", "limit", opts.Limit, "included", len(included))
		included = included[:opts.Limit]
	}
	if len(included) == 0 {
		p.logger.Info("nothing passed the filter")
		return nil
	}

	for i := range included {
		p.summarize(ctx, &included[i])
		p.attachImage(ctx, &included[i])
	}

	p.publish(ctx, included)

	if p.notifier != nil {
		if err := p.notifier.PublishDigest(ctx, included); err != nil {
			p.logger.Error("digest delivery failed", "error", err)
		}
	}

	p.markSeen(ctx, included)
	p.logger.Info("run finished", "emitted", len(included), "excluded", len(excluded))
	return nil
}

// applyFilter runs the AI relevance filter. A filter error includes the
// article; a broken filter must not silently drop news.
func (p *Pipeline) applyFilter(ctx context.Context, articles []domain.ArticleRecord, skip bool) (included, excluded []domain.ArticleRecord) {
	if skip || p.filter == nil {
		return articles, nil
	}

	for _, article := range articles {
		ok, reason, err := p.filter.Filter(ctx, article)
		if err != nil {
			p.logger.Warn("filter failed, including article", "link", article.Link, "error", err)
			included = append(included, article)
			continue
		}
		if !ok {
			p.logger.Info("article excluded", "link", article.Link, "reason", reason)
			excluded = append(excluded, article)
			continue
		}
		included = append(included, article)
	}
	return included, excluded
}

func (p *Pipeline) summarize(ctx context.Context, article *domain.ArticleRecord) {
	if p.summarizer == nil {
		return
	}
	headline, summary, tag, err := p.summarizer.Summarize(ctx, *article)
	if err != nil {
		p.logger.Warn("summarization failed, keeping raw entry", "link", article.Link, "error", err)
		return
	}
	article.Headline = headline
	article.Summary = summary
	article.Tag = tag
}

func (p *Pipeline) attachImage(ctx context.Context, article *domain.ArticleRecord) {
	if p.images == nil || article.HeroImage == nil || article.HeroImage.URL == "" {
		return
	}
	data, contentType, err := p.images.Fetch(ctx, article.HeroImage.URL)
	if err != nil {
		p.logger.Warn("hero image download failed", "url", article.HeroImage.URL, "error", err)
		return
	}
	article.HeroImage.Bytes = data
	article.HeroImage.ContentType = contentType
}

func (p *Pipeline) publish(ctx context.Context, articles []domain.ArticleRecord) {
	if p.candidates == nil {
		return
	}
	for _, article := range articles {
		if _, err := p.candidates.SaveCandidate(ctx, article); err != nil {
			p.logger.Error("candidate publish failed", "link", article.Link, "error", err)
		}
	}
	if _, err := p.candidates.SaveManifest(ctx, articles); err != nil {
		p.logger.Error("manifest publish failed", "error", err)
	}
}

// publishReport uploads the per-source scraping counters. Diagnostics
// only; a failed upload never affects the run.
func (p *Pipeline) publishReport(ctx context.Context, reports []domain.RunStats) {
	if p.candidates == nil || len(reports) == 0 {
		return
	}
	if _, err := p.candidates.SaveRunReport(ctx, reports); err != nil {
		p.logger.Warn("run report publish failed", "error", err)
	}
}

// markSeen records articles under their GUID so they are not refetched.
// Discovery-scanned articles are already tracked; the upsert just bumps
// last_checked for those.
func (p *Pipeline) markSeen(ctx context.Context, articles []domain.ArticleRecord) {
	if p.store == nil || len(articles) == 0 {
		return
	}

	bySource := make(map[string][]domain.SeenRecord)
	for _, a := range articles {
		id := a.GUID
		if id == "" {
			id = a.Link
		}
		bySource[a.SourceID] = append(bySource[a.SourceID], domain.SeenRecord{
			Identifier: id,
			Headline:   a.Title,
			Status:     domain.SeenResolved,
		})
	}
	for sourceID, records := range bySource {
		if _, err := p.store.MarkSeen(ctx, sourceID, records); err != nil {
			p.logger.Error("mark seen failed", "source", sourceID, "error", err)
		}
	}
}
