// Package discovery finds new articles on sources that have no usable
// feed. The visual strategy reads headlines off a homepage screenshot
// and resolves each one to its article link on the live page; the
// pattern strategy walks the rendered DOM directly.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"archwatch/internal/config"
	"archwatch/internal/domain"
	"archwatch/internal/logging"
	"archwatch/internal/match"
	"archwatch/internal/pagemeta"
	"archwatch/internal/ports"
	"archwatch/internal/scanner"
)

// Policy gates page fetches. Implementations must fail open: an
// unreachable robots.txt never blocks discovery.
type Policy interface {
	Allowed(ctx context.Context, rawURL, userAgent string) bool
}

// allowAll is the policy used when none is wired.
type allowAll struct{}

func (allowAll) Allowed(context.Context, string, string) bool { return true }

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// candidateScript collects article-like containers around every anchor
// on the page, in DOM order. The longest anchor text in a container is
// its headline link; caption links lose to it.
const candidateScript = `
const containers = Array.from(document.querySelectorAll('article, .post, .entry, [class*="article"], [class*="card"], [class*="item"]'));
const pool = containers.length > 0 ? containers : Array.from(document.querySelectorAll('a[href]')).map(a => a.parentElement);
const seen = new Set();
const data = [];
pool.forEach((container, index) => {
	if (!container || seen.has(container)) return;
	seen.add(container);
	const anchors = Array.from(container.querySelectorAll('a[href]'));
	if (anchors.length === 0) return;
	let best = anchors[0];
	anchors.forEach(a => { if (a.textContent.trim().length > best.textContent.trim().length) best = a; });
	const linkText = best.textContent.trim().replace(/\s+/g, ' ');
	if (linkText.length <= 5) return;
	const excerptEl = container.querySelector('p, .excerpt, .description, [class*="excerpt"]');
	const imgEl = container.querySelector('img');
	data.push({
		index: data.length,
		link_text: linkText,
		href: best.href,
		description: excerptEl ? excerptEl.textContent.trim().slice(0, 300) : '',
		image_url: imgEl ? imgEl.src : ''
	});
});
return data.slice(0, 60);
`

// Visual discovers articles by screenshotting a homepage, asking the
// vision model for headlines and resolving each new headline to a link.
type Visual struct {
	store     ports.SeenStore
	browsers  ports.BrowserFactory
	headlines ports.HeadlineExtractor
	matchers  []match.Matcher
	metadata  *pagemeta.Fetcher
	policy    Policy
	maxPerRun int
	timeout   time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

var _ scanner.Scanner = (*Visual)(nil)

// VisualDeps carries the orchestrator's collaborators.
type VisualDeps struct {
	Store     ports.SeenStore
	Browsers  ports.BrowserFactory
	Headlines ports.HeadlineExtractor
	// Matchers are tried in order; the first hit wins. Typically the
	// containment matcher first, the semantic one as fallback.
	Matchers  []match.Matcher
	Metadata  *pagemeta.Fetcher
	Policy    Policy
	MaxPerRun int
	Timeout   time.Duration
	Logger    *slog.Logger
}

// NewVisual wires the orchestrator.
func NewVisual(deps VisualDeps) *Visual {
	policy := deps.Policy
	if policy == nil {
		policy = allowAll{}
	}
	maxPerRun := deps.MaxPerRun
	if maxPerRun <= 0 {
		maxPerRun = 10
	}
	return &Visual{
		store:     deps.Store,
		browsers:  deps.Browsers,
		headlines: deps.Headlines,
		matchers:  deps.Matchers,
		metadata:  deps.Metadata,
		policy:    policy,
		maxPerRun: maxPerRun,
		timeout:   deps.Timeout,
		logger:    logging.Component(deps.Logger, "discovery"),
		now:       time.Now,
	}
}

// Name identifies the strategy in the registry.
func (v *Visual) Name() string { return "visual" }

// Scan runs one discovery pass over a source. Per-headline failures are
// counted skips; only a failure before any headline is processed aborts
// the source. Articles that come back are already recorded as resolved
// in the seen store.
func (v *Visual) Scan(ctx context.Context, req scanner.Request) ([]domain.ArticleRecord, domain.RunStats, error) {
	src := req.Source
	logger := v.logger.With("source", src.ID)
	stats := domain.RunStats{SourceID: src.ID}

	userAgent := ""
	if src.RequiresUserAgent {
		userAgent = defaultUserAgent
	}

	if !v.policy.Allowed(ctx, src.BaseURL, userAgent) {
		logger.Warn("homepage disallowed by robots policy")
		return nil, stats, nil
	}

	session, err := v.browsers.NewSession(ctx, userAgent, src.ScrapeTimeout(v.timeout))
	if err != nil {
		return nil, stats, fmt.Errorf("open session for %s: %w", src.ID, err)
	}
	defer func() {
		if err := session.Close(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("session close failed", "error", err)
		}
	}()

	headlines, err := v.extractHeadlines(ctx, session, src.BaseURL, src.Name)
	if err != nil {
		return nil, stats, err
	}
	stats.Extracted = len(headlines)

	fresh, err := v.store.FilterNew(ctx, src.ID, headlines)
	if err != nil {
		return nil, stats, fmt.Errorf("diff headlines for %s: %w", src.ID, err)
	}
	stats.New = len(fresh)
	logger.Info("headlines diffed", "extracted", stats.Extracted, "new", stats.New)

	if len(fresh) > v.maxPerRun {
		logger.Info("capping headlines for this run", "cap", v.maxPerRun, "new", len(fresh))
		fresh = fresh[:v.maxPerRun]
	}

	var articles []domain.ArticleRecord
	for _, headline := range fresh {
		if err := ctx.Err(); err != nil {
			return articles, stats, err
		}

		article, reason := v.processHeadline(ctx, session, src, headline, &stats, logger)
		if reason != domain.SkipNone {
			stats.Add(reason)
			continue
		}
		stats.Emitted++
		articles = append(articles, article)
	}

	// Persist every observed headline that resolved to nothing, so it is
	// not retried forever. Resolved ones are already stored under their
	// URL with the headline annotation; a second diff finds the rest.
	if leftovers, err := v.store.FilterNew(ctx, src.ID, headlines); err != nil {
		logger.Warn("placeholder diff failed", "error", err)
	} else if len(leftovers) > 0 {
		records := make([]domain.SeenRecord, 0, len(leftovers))
		for _, h := range leftovers {
			records = append(records, domain.SeenRecord{
				Identifier: h,
				Headline:   h,
				Status:     domain.SeenPlaceholder,
			})
		}
		if _, err := v.store.MarkSeen(ctx, src.ID, records); err != nil {
			logger.Warn("placeholder persist failed", "error", err)
		}
	}

	logger.Info("discovery run finished", "stats", stats.Summary())
	return articles, stats, nil
}

func (v *Visual) extractHeadlines(ctx context.Context, session ports.BrowserSession, url, sourceName string) ([]string, error) {
	if err := session.Navigate(ctx, url); err != nil {
		return nil, fmt.Errorf("navigate homepage %s: %w", url, err)
	}
	shot, err := session.Screenshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("screenshot %s: %w", url, err)
	}
	headlines, err := v.headlines.ExtractHeadlines(ctx, shot, sourceName)
	if err != nil {
		return nil, fmt.Errorf("extract headlines: %w", err)
	}
	return headlines, nil
}

// processHeadline resolves one headline to an emitted article. Any skip
// outcome leaves the headline for the end-of-run placeholder sweep,
// except a successful resolve, which is recorded immediately.
func (v *Visual) processHeadline(ctx context.Context, session ports.BrowserSession, src config.SourceConfig, headline string, stats *domain.RunStats, logger *slog.Logger) (domain.ArticleRecord, domain.SkipReason) {
	resolved, ok := v.resolve(ctx, session, src.BaseURL, headline, logger)
	if !ok {
		logger.Info("headline did not resolve", "headline", headline)
		return domain.ArticleRecord{}, domain.SkipUnresolved
	}
	stats.Resolved++

	link := domain.ResolveURL(src.BaseURL, resolved.Link)
	userAgent := ""
	if src.RequiresUserAgent {
		userAgent = defaultUserAgent
	}
	if !v.policy.Allowed(ctx, link, userAgent) {
		logger.Info("article disallowed by robots policy", "link", link)
		return domain.ArticleRecord{}, domain.SkipDisallowed
	}

	meta, err := v.metadata.Fetch(ctx, session, link)
	if err != nil {
		logger.Warn("metadata fetch failed", "link", link, "error", err)
		return domain.ArticleRecord{}, domain.SkipNavigation
	}
	if meta.Published != nil {
		stats.Dated++
	}

	if !pagemeta.WithinAge(meta.Published, src.MaxArticleAgeDays, v.now()) {
		logger.Info("article too old", "link", link, "published", meta.Published)
		// Too-old articles are still resolved; record them so the
		// headline never reads as new again.
		v.rewrite(ctx, src.ID, headline, link, logger)
		return domain.ArticleRecord{}, domain.SkipTooOld
	}

	article, err := domain.NewArticleRecord(headline, link, src.ID, src.Name)
	if err != nil {
		logger.Warn("invalid article record", "headline", headline, "error", err)
		return domain.ArticleRecord{}, domain.SkipInvalid
	}
	article.Description = domain.CleanText(resolved.Description)
	article.Published = meta.Published
	article.GUID = link
	article.CustomScraped = true
	article.Headline = headline
	if meta.Hero != nil {
		article.HeroImage = meta.Hero
	} else if resolved.ImageURL != "" {
		article.HeroImage = &domain.HeroImage{
			URL:    domain.ResolveURL(src.BaseURL, resolved.ImageURL),
			Origin: "listing",
		}
	}

	v.rewrite(ctx, src.ID, headline, link, logger)
	return article, domain.SkipNone
}

// resolve extracts candidate containers from the homepage and runs the
// matcher chain over them.
func (v *Visual) resolve(ctx context.Context, session ports.BrowserSession, baseURL, headline string, logger *slog.Logger) (match.Match, bool) {
	if err := session.Navigate(ctx, baseURL); err != nil {
		logger.Warn("renavigate homepage failed", "error", err)
		return match.Match{}, false
	}

	var candidates []match.Candidate
	if err := session.Evaluate(ctx, candidateScript, &candidates); err != nil {
		logger.Warn("candidate extraction failed", "error", err)
		return match.Match{}, false
	}
	if len(candidates) == 0 {
		return match.Match{}, false
	}

	for _, m := range v.matchers {
		found, ok, err := m.Match(ctx, headline, candidates)
		if err != nil {
			logger.Warn("matcher failed", "error", err)
			continue
		}
		if ok {
			return found, true
		}
	}
	return match.Match{}, false
}

func (v *Visual) rewrite(ctx context.Context, sourceID, headline, link string, logger *slog.Logger) {
	if err := v.store.RewriteIdentifier(ctx, sourceID, headline, link); err != nil {
		logger.Warn("identifier rewrite failed", "headline", headline, "link", link, "error", err)
	}
}
