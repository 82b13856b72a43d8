package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"archwatch/internal/config"
	"archwatch/internal/domain"
	"archwatch/internal/logging"
	"archwatch/internal/pagemeta"
	"archwatch/internal/ports"
	"archwatch/internal/scanner"
)

// Pattern discovers articles by walking the rendered homepage DOM for
// article-shaped containers. No AI round trips; sources with stable
// markup get this strategy.
type Pattern struct {
	store     ports.SeenStore
	browsers  ports.BrowserFactory
	metadata  *pagemeta.Fetcher
	policy    Policy
	maxPerRun int
	timeout   time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

var _ scanner.Scanner = (*Pattern)(nil)

// PatternDeps carries the scanner's collaborators.
type PatternDeps struct {
	Store     ports.SeenStore
	Browsers  ports.BrowserFactory
	Metadata  *pagemeta.Fetcher
	Policy    Policy
	MaxPerRun int
	Timeout   time.Duration
	Logger    *slog.Logger
}

// NewPattern wires the scanner.
func NewPattern(deps PatternDeps) *Pattern {
	policy := deps.Policy
	if policy == nil {
		policy = allowAll{}
	}
	maxPerRun := deps.MaxPerRun
	if maxPerRun <= 0 {
		maxPerRun = 10
	}
	return &Pattern{
		store:     deps.Store,
		browsers:  deps.Browsers,
		metadata:  deps.Metadata,
		policy:    policy,
		maxPerRun: maxPerRun,
		timeout:   deps.Timeout,
		logger:    logging.Component(deps.Logger, "pattern"),
		now:       time.Now,
	}
}

// Name identifies the strategy in the registry.
func (p *Pattern) Name() string { return "pattern" }

// listing is one article-shaped container found on the homepage.
type listing struct {
	title     string
	link      string
	excerpt   string
	imageURL  string
	published *time.Time
}

// Scan renders the homepage, lifts article containers out of the DOM
// and emits the new ones inside the age window. Emitted articles are
// recorded as resolved in the seen store under their URL.
func (p *Pattern) Scan(ctx context.Context, req scanner.Request) ([]domain.ArticleRecord, domain.RunStats, error) {
	src := req.Source
	logger := p.logger.With("source", src.ID)
	stats := domain.RunStats{SourceID: src.ID}

	userAgent := ""
	if src.RequiresUserAgent {
		userAgent = defaultUserAgent
	}
	if !p.policy.Allowed(ctx, src.BaseURL, userAgent) {
		logger.Warn("homepage disallowed by robots policy")
		return nil, stats, nil
	}

	session, err := p.browsers.NewSession(ctx, userAgent, src.ScrapeTimeout(p.timeout))
	if err != nil {
		return nil, stats, fmt.Errorf("open session for %s: %w", src.ID, err)
	}
	defer func() {
		if err := session.Close(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("session close failed", "error", err)
		}
	}()

	if err := session.Navigate(ctx, src.BaseURL); err != nil {
		return nil, stats, fmt.Errorf("navigate homepage %s: %w", src.BaseURL, err)
	}
	html, err := session.Content(ctx)
	if err != nil {
		return nil, stats, fmt.Errorf("read homepage %s: %w", src.BaseURL, err)
	}

	listings, err := parseListings(html, src.BaseURL)
	if err != nil {
		return nil, stats, fmt.Errorf("parse homepage %s: %w", src.BaseURL, err)
	}
	stats.Extracted = len(listings)

	byLink := make(map[string]listing, len(listings))
	links := make([]string, 0, len(listings))
	for _, l := range listings {
		if _, dup := byLink[l.link]; dup {
			continue
		}
		byLink[l.link] = l
		links = append(links, l.link)
	}

	fresh, err := p.store.FilterNew(ctx, src.ID, links)
	if err != nil {
		return nil, stats, fmt.Errorf("diff listings for %s: %w", src.ID, err)
	}
	stats.New = len(fresh)
	logger.Info("listings diffed", "extracted", stats.Extracted, "new", stats.New)

	if len(fresh) > p.maxPerRun {
		fresh = fresh[:p.maxPerRun]
	}

	var articles []domain.ArticleRecord
	for _, link := range fresh {
		if err := ctx.Err(); err != nil {
			return articles, stats, err
		}

		article, reason := p.processListing(ctx, session, src, byLink[link], logger, &stats)
		if reason != domain.SkipNone {
			stats.Add(reason)
			continue
		}
		stats.Emitted++
		articles = append(articles, article)
	}

	logger.Info("pattern run finished", "stats", stats.Summary())
	return articles, stats, nil
}

func (p *Pattern) processListing(ctx context.Context, session ports.BrowserSession, src config.SourceConfig, l listing, logger *slog.Logger, stats *domain.RunStats) (domain.ArticleRecord, domain.SkipReason) {
	userAgent := ""
	if src.RequiresUserAgent {
		userAgent = defaultUserAgent
	}
	if !p.policy.Allowed(ctx, l.link, userAgent) {
		return domain.ArticleRecord{}, domain.SkipDisallowed
	}
	stats.Resolved++

	published := l.published
	var hero *domain.HeroImage

	// The listing often carries the date; only visit the article page
	// when it does not.
	if published == nil {
		meta, err := p.metadata.Fetch(ctx, session, l.link)
		if err != nil {
			logger.Warn("metadata fetch failed", "link", l.link, "error", err)
			return domain.ArticleRecord{}, domain.SkipNavigation
		}
		published = meta.Published
		hero = meta.Hero
	}
	if published != nil {
		stats.Dated++
	}

	if !pagemeta.WithinAge(published, src.MaxArticleAgeDays, p.now()) {
		logger.Info("article too old", "link", l.link, "published", published)
		p.markResolved(ctx, src.ID, l, logger)
		return domain.ArticleRecord{}, domain.SkipTooOld
	}

	article, err := domain.NewArticleRecord(l.title, l.link, src.ID, src.Name)
	if err != nil {
		logger.Warn("invalid article record", "title", l.title, "error", err)
		return domain.ArticleRecord{}, domain.SkipInvalid
	}
	article.Description = domain.CleanText(l.excerpt)
	article.Published = published
	article.GUID = l.link
	article.CustomScraped = true
	if hero != nil {
		article.HeroImage = hero
	} else if l.imageURL != "" {
		article.HeroImage = &domain.HeroImage{URL: l.imageURL, Origin: "listing"}
	}

	p.markResolved(ctx, src.ID, l, logger)
	return article, domain.SkipNone
}

func (p *Pattern) markResolved(ctx context.Context, sourceID string, l listing, logger *slog.Logger) {
	_, err := p.store.MarkSeen(ctx, sourceID, []domain.SeenRecord{{
		Identifier: l.link,
		Headline:   l.title,
		Status:     domain.SeenResolved,
	}})
	if err != nil {
		logger.Warn("mark seen failed", "link", l.link, "error", err)
	}
}

// parseListings lifts article containers out of homepage HTML. The
// container selectors mirror what architecture blogs actually publish:
// article elements first, then post/entry classed blocks.
func parseListings(html, baseURL string) ([]listing, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	selection := doc.Find("article")
	if selection.Length() == 0 {
		selection = doc.Find(".post, .entry, [class*=\"article\"]")
	}

	var listings []listing
	selection.Each(func(_ int, container *goquery.Selection) {
		title := strings.TrimSpace(container.Find("h1, h2, h3, .title, [class*=\"title\"]").First().Text())
		href, _ := container.Find("a[href]").First().Attr("href")
		if title == "" || href == "" {
			return
		}

		l := listing{
			title:   domain.CleanText(title),
			link:    domain.ResolveURL(baseURL, href),
			excerpt: strings.TrimSpace(container.Find("p, .excerpt, .description").First().Text()),
		}
		if src, ok := container.Find("img[src]").First().Attr("src"); ok {
			l.imageURL = domain.ResolveURL(baseURL, src)
		}
		if t, ok := pagemeta.ParseDate(container.Text()); ok {
			l.published = &t
		}
		listings = append(listings, l)
	})
	return listings, nil
}
