package rss

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"archwatch/internal/domain"
	"archwatch/internal/logging"
	"archwatch/internal/scanner"
)

// Scanner pulls articles from a source's RSS or Atom feed.
type Scanner struct {
	parser *gofeed.Parser
	logger *slog.Logger
}

var _ scanner.Scanner = (*Scanner)(nil)

// NewScanner builds the feed strategy with its own HTTP client.
func NewScanner(logger *slog.Logger) *Scanner {
	parser := gofeed.NewParser()
	parser.Client = &http.Client{Timeout: 20 * time.Second}
	return &Scanner{
		parser: parser,
		logger: logging.Component(logger, "rss"),
	}
}

// Name identifies the strategy in the registry.
func (s *Scanner) Name() string { return "rss" }

// Scan fetches the feed and keeps entries inside the lookback window.
// Entries without any date are kept; dropping them would lose articles
// from feeds that simply omit timestamps.
func (s *Scanner) Scan(ctx context.Context, req scanner.Request) ([]domain.ArticleRecord, domain.RunStats, error) {
	stats := domain.RunStats{SourceID: req.Source.ID}
	if req.Source.RSSURL == "" {
		return nil, stats, fmt.Errorf("source %s has no feed URL", req.Source.ID)
	}

	feed, err := s.parser.ParseURLWithContext(req.Source.RSSURL, ctx)
	if err != nil {
		return nil, stats, fmt.Errorf("parse feed %s: %w", req.Source.RSSURL, err)
	}
	stats.Extracted = len(feed.Items)

	cutoff := req.Now.Add(-req.Lookback)
	articles := make([]domain.ArticleRecord, 0, len(feed.Items))
	for _, item := range feed.Items {
		published := itemDate(item)
		if published != nil && published.Before(cutoff) {
			continue
		}

		guid := item.GUID
		if guid == "" {
			guid = item.Link
		}

		article, err := domain.NewArticleRecord(item.Title, item.Link, req.Source.ID, req.Source.Name)
		if err != nil {
			s.logger.Warn("skipping invalid feed entry",
				"source", req.Source.ID, "title", item.Title, "error", err)
			continue
		}
		article.Description = domain.CleanText(item.Description)
		article.Published = published
		article.GUID = guid
		if url := itemImage(item); url != "" {
			article.HeroImage = &domain.HeroImage{URL: url, Origin: "feed"}
		}
		articles = append(articles, article)
	}

	stats.Emitted = len(articles)
	s.logger.Info("feed scanned",
		"source", req.Source.ID, "total", len(feed.Items), "recent", len(articles))
	return articles, stats, nil
}

func itemDate(item *gofeed.Item) *time.Time {
	if item.PublishedParsed != nil {
		t := item.PublishedParsed.UTC()
		return &t
	}
	if item.UpdatedParsed != nil {
		t := item.UpdatedParsed.UTC()
		return &t
	}
	return nil
}

// itemImage prefers an explicit item image, then image enclosures and
// media extensions.
func itemImage(item *gofeed.Item) string {
	if item.Image != nil && item.Image.URL != "" {
		return item.Image.URL
	}
	for _, enc := range item.Enclosures {
		if strings.HasPrefix(enc.Type, "image/") && enc.URL != "" {
			return enc.URL
		}
	}
	for _, contents := range item.Extensions["media"]["content"] {
		if url := contents.Attrs["url"]; url != "" {
			return url
		}
	}
	for _, thumbs := range item.Extensions["media"]["thumbnail"] {
		if url := thumbs.Attrs["url"]; url != "" {
			return url
		}
	}
	return ""
}
