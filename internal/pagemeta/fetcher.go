// Package pagemeta extracts publication dates and hero images from
// resolved article pages.
package pagemeta

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"archwatch/internal/domain"
	"archwatch/internal/ports"
)

// Metadata is what a resolved article URL yields. Either field may be
// absent; absence is not an error.
type Metadata struct {
	Published *time.Time
	Hero      *domain.HeroImage
}

// Fetcher navigates to an article URL and extracts its metadata.
// Date extraction tries, in order: machine-readable attributes, the
// regex pattern set, and finally the AI extractor when one is wired.
type Fetcher struct {
	dates        ports.DateExtractor
	sanityWindow time.Duration
	logger       *slog.Logger
	now          func() time.Time
}

// NewFetcher builds a metadata fetcher. dates may be nil, which
// disables the AI fallback. sanityDays bounds how old a parsed date may
// be before it is discarded as a misparse.
func NewFetcher(dates ports.DateExtractor, sanityDays int, logger *slog.Logger) *Fetcher {
	if sanityDays <= 0 {
		sanityDays = 365
	}
	return &Fetcher{
		dates:        dates,
		sanityWindow: time.Duration(sanityDays) * 24 * time.Hour,
		logger:       logger,
		now:          time.Now,
	}
}

// Fetch navigates the session to url and returns whatever metadata the
// page gives up. Navigation failure is the only error path; missing
// date or image comes back as absent fields.
func (f *Fetcher) Fetch(ctx context.Context, session ports.BrowserSession, url string) (Metadata, error) {
	if err := session.Navigate(ctx, url); err != nil {
		return Metadata{}, fmt.Errorf("navigate %s: %w", url, err)
	}

	html, err := session.Content(ctx)
	if err != nil {
		return Metadata{}, fmt.Errorf("page content %s: %w", url, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Metadata{}, fmt.Errorf("parse %s: %w", url, err)
	}

	var meta Metadata
	meta.Published = f.extractDate(ctx, doc)
	meta.Hero = ExtractHero(doc, url)
	return meta, nil
}

func (f *Fetcher) extractDate(ctx context.Context, doc *goquery.Document) *time.Time {
	now := f.now().UTC()

	// Machine-readable attributes first.
	if raw, ok := doc.Find("time[datetime]").First().Attr("datetime"); ok {
		if t, ok := ParseDate(raw); ok && Plausible(t, now, f.sanityWindow) {
			return &t
		}
	}
	if raw, ok := doc.Find(`meta[property="article:published_time"]`).First().Attr("content"); ok {
		if t, ok := ParseDate(raw); ok && Plausible(t, now, f.sanityWindow) {
			return &t
		}
	}

	// Pattern scan over the main content area.
	text := articleText(doc)
	if t, ok := ParseDate(text); ok {
		if Plausible(t, now, f.sanityWindow) {
			return &t
		}
		f.logger.Debug("date outside sanity window, discarding", "parsed", t)
	}

	// AI fallback, relative phrases included.
	if f.dates != nil {
		t, err := f.dates.ExtractDate(ctx, text, now)
		if err != nil {
			f.logger.Warn("ai date extraction failed", "error", err)
			return nil
		}
		if t != nil && Plausible(*t, now, f.sanityWindow) {
			return t
		}
	}

	return nil
}

// articleText returns the first part of the main content block, enough
// for date patterns and cheap to send to the model.
func articleText(doc *goquery.Document) string {
	const limit = 2000

	for _, selector := range []string{"article", "main", ".content", ".post"} {
		if sel := doc.Find(selector).First(); sel.Length() > 0 {
			return truncate(domain.CleanText(sel.Text()), limit)
		}
	}
	return truncate(domain.CleanText(doc.Find("body").Text()), limit)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
