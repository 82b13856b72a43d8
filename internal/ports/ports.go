package ports

import (
	"context"
	"time"

	"archwatch/internal/domain"
)

// SeenStore is the durable, source-scoped de-duplication memory.
type SeenStore interface {
	// IsNew reports whether the identifier has never been seen for the source.
	IsNew(ctx context.Context, sourceID, identifier string) (bool, error)
	// FilterNew returns the subset of identifiers not present for the source.
	FilterNew(ctx context.Context, sourceID string, identifiers []string) ([]string, error)
	// MarkSeen upserts identifiers; re-marking only bumps last_checked.
	MarkSeen(ctx context.Context, sourceID string, records []domain.SeenRecord) (int, error)
	// RewriteIdentifier promotes a placeholder row to its canonical URL.
	// If newID already exists for the source the stale placeholder is removed.
	RewriteIdentifier(ctx context.Context, sourceID, oldID, newID string) error
	// Stats returns diagnostic counts; empty sourceID means all sources.
	Stats(ctx context.Context, sourceID string) (domain.SeenStats, error)
	// Clear wipes every record for one source.
	Clear(ctx context.Context, sourceID string) (int64, error)
	Close()
}

// BrowserSession drives one rendered page at a time.
// Close must be called on every exit path.
type BrowserSession interface {
	Navigate(ctx context.Context, url string) error
	// Content returns the rendered HTML of the current page.
	Content(ctx context.Context) (string, error)
	// Evaluate runs a JS function body on the current page and decodes
	// its JSON return value into out.
	Evaluate(ctx context.Context, script string, out any) error
	Screenshot(ctx context.Context) ([]byte, error)
	Close(ctx context.Context) error
}

// BrowserFactory opens sessions; one session per source per run.
type BrowserFactory interface {
	NewSession(ctx context.Context, userAgent string, timeout time.Duration) (BrowserSession, error)
}

// HeadlineExtractor reads headlines off a homepage screenshot, in visual
// order, capped by the model prompt.
type HeadlineExtractor interface {
	ExtractHeadlines(ctx context.Context, screenshot []byte, sourceName string) ([]string, error)
}

// DateExtractor pulls a publication date out of free article text.
// A nil time with nil error means "no date found".
type DateExtractor interface {
	ExtractDate(ctx context.Context, articleText string, today time.Time) (*time.Time, error)
}

// RelevanceFilter decides whether an article belongs in the digest.
type RelevanceFilter interface {
	Filter(ctx context.Context, article domain.ArticleRecord) (include bool, reason string, err error)
}

// Summarizer writes the editorial headline, summary and tag.
type Summarizer interface {
	Summarize(ctx context.Context, article domain.ArticleRecord) (headline, summary, tag string, err error)
}

// ArticleSource pulls articles from upstream feeds. The per-source run
// counters come back with the articles.
type ArticleSource interface {
	Fetch(ctx context.Context, sourceIDs []string, lookback time.Duration) ([]domain.ArticleRecord, []domain.RunStats, error)
}

// ImageFetcher downloads hero images and normalizes them for storage.
type ImageFetcher interface {
	Fetch(ctx context.Context, url string) (data []byte, contentType string, err error)
}

// CandidateStore publishes articles, images, the run manifest and the
// per-source scraping report.
type CandidateStore interface {
	SaveCandidate(ctx context.Context, article domain.ArticleRecord) (string, error)
	SaveManifest(ctx context.Context, articles []domain.ArticleRecord) (string, error)
	SaveRunReport(ctx context.Context, reports []domain.RunStats) (string, error)
}

// Notifier streams digests and status lines to the editorial channel.
type Notifier interface {
	PublishDigest(ctx context.Context, articles []domain.ArticleRecord) error
	NotifyError(ctx context.Context, message string) error
}

// Scheduler controls when pipelines execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
